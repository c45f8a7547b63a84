package runner

import (
	"context"

	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/ports"
)

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (CLI/TUI) and JSON (Structured) modes.
type IOHandler interface {
	// Input reads the next user message.
	Input(ctx context.Context) (string, error)

	// Emitter returns the stream the next turn writes its answer to.
	// It is called once per turn.
	Emitter() ports.Emitter

	// Reply presents the outcome of the turn after its stream has closed.
	Reply(ctx context.Context, reply domain.Reply) error

	// SystemOutput presents a meta-message to the user (e.g. command feedback, errors).
	// This is distinct from the assistant's answer.
	SystemOutput(ctx context.Context, msg string) error
}
