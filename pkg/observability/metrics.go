package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/tally/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Planner call outcomes.
const (
	OutcomeFinal   = "final"
	OutcomeActions = "actions"
	OutcomeError   = "error"
)

// Metrics holds the assistant's Prometheus collectors.
type Metrics struct {
	registry       *prometheus.Registry
	turns          *prometheus.CounterVec
	plannerCalls   *prometheus.CounterVec
	actions        *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them, with the Go and
// process collectors, on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_turns_total",
				Help: "Total number of turns by terminal status",
			},
			[]string{"status"},
		),
		plannerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_planner_calls_total",
				Help: "Total number of planner attempts by outcome",
			},
			[]string{"outcome"},
		),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_actions_total",
				Help: "Total number of dispatched actions by outcome",
			},
			[]string{"action", "outcome"},
		),
		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tally_action_duration_seconds",
				Help:    "Duration of action executions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),
	}
	m.registry.MustRegister(
		m.turns,
		m.plannerCalls,
		m.actions,
		m.actionDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns lifecycle hooks that record metrics.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnPlannerReturn: func(_ context.Context, e *domain.PlannerEvent) {
			outcome := OutcomeActions
			switch {
			case e.Err != nil:
				outcome = OutcomeError
			case e.Final:
				outcome = OutcomeFinal
			}
			m.plannerCalls.WithLabelValues(outcome).Inc()
		},
		OnActionEnd: func(_ context.Context, e *domain.ActionEvent) {
			outcome := "succeeded"
			if !e.Outcome.OK() {
				outcome = "failed"
			}
			m.actions.WithLabelValues(e.Call.Name, outcome).Inc()
			m.actionDuration.WithLabelValues(e.Call.Name).Observe(e.Duration.Seconds())
		},
		OnTurnEnd: func(_ context.Context, e *domain.TurnEvent) {
			m.turns.WithLabelValues(string(e.Status)).Inc()
		},
	}
}
