package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventPlannerCall   EventType = "planner_call"
	EventPlannerReturn EventType = "planner_return"
	EventActionStart   EventType = "action_start"
	EventActionEnd     EventType = "action_end"
	EventTurnEnd       EventType = "turn_end"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp      time.Time `json:"timestamp"`
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id,omitempty"`
}

// PlannerEvent describes one planner attempt.
type PlannerEvent struct {
	EventBase
	Step     int           `json:"step"`
	Attempt  int           `json:"attempt"`
	Duration time.Duration `json:"duration,omitempty"`
	Final    bool          `json:"final,omitempty"`
	Calls    int           `json:"calls,omitempty"`
	Err      error         `json:"-"`
}

// ActionEvent describes one action dispatch.
type ActionEvent struct {
	EventBase
	Step     int           `json:"step"`
	Call     ActionCall    `json:"call"`
	Outcome  ActionOutcome `json:"outcome"`
	Duration time.Duration `json:"duration,omitempty"`
}

// TurnEvent is emitted once when a turn reaches a terminal state.
type TurnEvent struct {
	EventBase
	Status       TurnStatus    `json:"status"`
	Steps        int           `json:"steps"`
	PlannerCalls int           `json:"planner_calls"`
	Duration     time.Duration `json:"duration"`
}

// LifecycleHooks defines callbacks for engine observability.
// Nil hooks are skipped.
type LifecycleHooks struct {
	OnPlannerCall   func(context.Context, *PlannerEvent)
	OnPlannerReturn func(context.Context, *PlannerEvent)
	OnActionStart   func(context.Context, *ActionEvent)
	OnActionEnd     func(context.Context, *ActionEvent)
	OnTurnEnd       func(context.Context, *TurnEvent)
}

// MergeHooks fans every callback out to all given hooks, in order.
func MergeHooks(hooks ...LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnPlannerCall: func(ctx context.Context, e *PlannerEvent) {
			for _, h := range hooks {
				if h.OnPlannerCall != nil {
					h.OnPlannerCall(ctx, e)
				}
			}
		},
		OnPlannerReturn: func(ctx context.Context, e *PlannerEvent) {
			for _, h := range hooks {
				if h.OnPlannerReturn != nil {
					h.OnPlannerReturn(ctx, e)
				}
			}
		},
		OnActionStart: func(ctx context.Context, e *ActionEvent) {
			for _, h := range hooks {
				if h.OnActionStart != nil {
					h.OnActionStart(ctx, e)
				}
			}
		},
		OnActionEnd: func(ctx context.Context, e *ActionEvent) {
			for _, h := range hooks {
				if h.OnActionEnd != nil {
					h.OnActionEnd(ctx, e)
				}
			}
		},
		OnTurnEnd: func(ctx context.Context, e *TurnEvent) {
			for _, h := range hooks {
				if h.OnTurnEnd != nil {
					h.OnTurnEnd(ctx, e)
				}
			}
		},
	}
}
