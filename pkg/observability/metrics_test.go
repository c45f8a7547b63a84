package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/tally/pkg/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Hooks(t *testing.T) {
	m := NewMetrics()
	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnPlannerReturn(ctx, &domain.PlannerEvent{Calls: 2})
	hooks.OnPlannerReturn(ctx, &domain.PlannerEvent{Err: errors.New("503")})
	hooks.OnPlannerReturn(ctx, &domain.PlannerEvent{Final: true})
	hooks.OnActionEnd(ctx, &domain.ActionEvent{
		Call:     domain.ActionCall{Name: "create_task"},
		Outcome:  domain.Succeeded("ok"),
		Duration: 20 * time.Millisecond,
	})
	hooks.OnActionEnd(ctx, &domain.ActionEvent{
		Call:    domain.ActionCall{Name: "create_task"},
		Outcome: domain.Failed("nope"),
	})
	hooks.OnTurnEnd(ctx, &domain.TurnEvent{Status: domain.TurnDone})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.plannerCalls.WithLabelValues(OutcomeActions)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.plannerCalls.WithLabelValues(OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.plannerCalls.WithLabelValues(OutcomeFinal)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("create_task", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("create_task", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turns.WithLabelValues("done")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.actionDuration))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.Hooks().OnTurnEnd(context.Background(), &domain.TurnEvent{Status: domain.TurnBudgetExhausted})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `tally_turns_total{status="budget_exhausted"} 1`)
}

func TestAuditHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	hooks := domain.MergeHooks(AuditHooks(logger))

	hooks.OnActionEnd(context.Background(), &domain.ActionEvent{
		EventBase: domain.EventBase{ConversationID: "c1"},
		Call:      domain.ActionCall{ID: "call-1", Name: "log_expense"},
		Outcome:   domain.Failed("amount must be positive"),
	})

	out := buf.String()
	assert.Contains(t, out, "msg=action_end")
	assert.Contains(t, out, "conversation_id=c1")
	assert.True(t, strings.Contains(out, `outcome="failed: amount must be positive"`))
}
