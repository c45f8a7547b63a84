package ports

import (
	"context"

	"github.com/aretw0/tally/pkg/domain"
)

// PlanRequest is the input of one planner call: the full conversation so far
// and the actions the planner may request.
type PlanRequest struct {
	Messages []domain.Message
	Actions  []domain.ActionDefinition
}

// Planner wraps the external language-model capability.
// It must be safe to call repeatedly with the same conversation.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (domain.PlannerResponse, error)
}

// PlannerFunc adapts a function to the Planner interface.
type PlannerFunc func(ctx context.Context, req PlanRequest) (domain.PlannerResponse, error)

func (f PlannerFunc) Plan(ctx context.Context, req PlanRequest) (domain.PlannerResponse, error) {
	return f(ctx, req)
}
