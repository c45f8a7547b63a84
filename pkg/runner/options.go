package runner

import (
	"log/slog"

	"github.com/aretw0/tally/pkg/domain"
)

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.Logger = logger
	}
}

// WithInputHandler configures a custom IOHandler.
func WithInputHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.Handler = handler
	}
}

// WithIdentity sets the caller identity attached to every request.
func WithIdentity(identity domain.Identity) Option {
	return func(r *Runner) {
		r.Identity = identity
	}
}

// WithConversationID continues a persisted conversation.
func WithConversationID(id string) Option {
	return func(r *Runner) {
		r.ConversationID = id
	}
}

// WithBudget overrides the step budget of every request.
func WithBudget(n int) Option {
	return func(r *Runner) {
		r.Budget = n
	}
}
