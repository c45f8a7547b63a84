package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/tally/pkg/domain"
)

// AuditHooks logs every lifecycle event at debug level.
func AuditHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnPlannerCall: func(ctx context.Context, e *domain.PlannerEvent) {
			logger.DebugContext(ctx, "planner_call",
				"conversation_id", e.ConversationID,
				"step", e.Step,
				"attempt", e.Attempt,
			)
		},
		OnPlannerReturn: func(ctx context.Context, e *domain.PlannerEvent) {
			logger.DebugContext(ctx, "planner_return",
				"conversation_id", e.ConversationID,
				"step", e.Step,
				"final", e.Final,
				"calls", e.Calls,
				"duration", e.Duration,
				"err", e.Err,
			)
		},
		OnActionStart: func(ctx context.Context, e *domain.ActionEvent) {
			logger.DebugContext(ctx, "action_start",
				"conversation_id", e.ConversationID,
				"step", e.Step,
				"action", e.Call.Name,
				"call_id", e.Call.ID,
			)
		},
		OnActionEnd: func(ctx context.Context, e *domain.ActionEvent) {
			logger.DebugContext(ctx, "action_end",
				"conversation_id", e.ConversationID,
				"action", e.Call.Name,
				"call_id", e.Call.ID,
				"outcome", e.Outcome.String(),
				"duration", e.Duration,
			)
		},
		OnTurnEnd: func(ctx context.Context, e *domain.TurnEvent) {
			logger.DebugContext(ctx, "turn_end",
				"conversation_id", e.ConversationID,
				"status", e.Status,
				"steps", e.Steps,
				"planner_calls", e.PlannerCalls,
				"duration", e.Duration,
			)
		},
	}
}
