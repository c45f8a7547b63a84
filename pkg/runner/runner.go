package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aretw0/tally"
	"github.com/aretw0/tally/internal/logging"
	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/ports"
)

// Commands understood by the interactive loop.
const (
	CommandExit  = "/exit"
	CommandReset = "/reset"
	CommandHelp  = "/help"
)

// Assistant answers one user message. *tally.Assistant satisfies it.
type Assistant interface {
	Respond(ctx context.Context, req tally.Request, emitter ports.Emitter) (domain.Reply, error)
}

// Runner drives an interactive conversation with an Assistant using provided IO.
// It uses an IOHandler strategy to abstract the interaction mode (Text vs JSON).
//
// Interrupting a running turn cancels that turn only; interrupting at the
// prompt, or reaching the end of input, ends the session.
type Runner struct {
	// Handler is the strategy for IO. Defaults to a TextHandler on Stdin/Stdout.
	Handler IOHandler

	// Logger is used for internal debug logging.
	// If nil, a no-op logger is used.
	Logger *slog.Logger

	// Identity is attached to every request.
	Identity domain.Identity

	// ConversationID names a persisted conversation to continue. Optional.
	ConversationID string

	// Budget overrides the assistant's default step budget when positive.
	Budget int

	history []domain.HistoryTurn
}

// NewRunner creates a new Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		Logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reads messages until the input ends, the user exits or ctx is cancelled.
func (r *Runner) Run(ctx context.Context, assistant Assistant) error {
	if assistant == nil {
		return errors.New("assistant is required")
	}
	if err := r.Identity.Validate(); err != nil {
		return err
	}
	handler := r.resolveHandler()
	log := r.logger()

	signals := NewSignalManager(ctx)
	defer signals.Stop()

	for {
		text, err := handler.Input(signals.Context())
		if err != nil {
			signals.CheckRace()
			if signals.Context().Err() != nil || errors.Is(err, io.EOF) {
				log.Debug("session ended", "reason", err)
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}

		if quit, handled, err := r.command(ctx, handler, text); handled {
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
			continue
		}

		reply, err := assistant.Respond(signals.Context(), r.request(text), handler.Emitter())
		if err != nil {
			log.Debug("request rejected", "err", err)
			if err := handler.SystemOutput(ctx, "Error: "+err.Error()); err != nil {
				return fmt.Errorf("output error: %w", err)
			}
			continue
		}
		if err := handler.Reply(ctx, reply); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
		log.Debug("turn finished",
			"conversation_id", reply.ConversationID,
			"status", reply.Status,
			"steps", reply.Steps,
			"planner_calls", reply.PlannerCalls,
		)
		r.remember(text, reply)

		if ctx.Err() != nil {
			return nil
		}
		if signals.Interrupted() {
			signals.Reset()
		}
	}
}

// History returns the text turns exchanged so far.
func (r *Runner) History() []domain.HistoryTurn {
	return append([]domain.HistoryTurn(nil), r.history...)
}

func (r *Runner) command(ctx context.Context, handler IOHandler, text string) (quit, handled bool, err error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case CommandExit, "/quit", "exit", "quit":
		return true, true, nil
	case CommandReset:
		r.history = nil
		r.ConversationID = ""
		return false, true, handler.SystemOutput(ctx, "Conversation reset.")
	case CommandHelp:
		return false, true, handler.SystemOutput(ctx, fmt.Sprintf(
			"%s starts a new conversation, %s leaves. Ctrl+C cancels the running request.",
			CommandReset, CommandExit))
	default:
		return false, false, nil
	}
}

func (r *Runner) request(text string) tally.Request {
	return tally.Request{
		ConversationID: r.ConversationID,
		History:        r.History(),
		Message:        text,
		Identity:       r.Identity,
		Budget:         r.Budget,
	}
}

// remember records a finished turn. Cancelled turns leave no trace in the history.
func (r *Runner) remember(text string, reply domain.Reply) {
	if reply.ConversationID != "" {
		r.ConversationID = reply.ConversationID
	}
	if reply.Status == domain.TurnCancelled {
		return
	}
	r.history = append(r.history,
		domain.HistoryTurn{Role: domain.RoleUser, Text: text},
		domain.HistoryTurn{Role: domain.RoleAssistant, Text: reply.Text},
	)
}

// resolveHandler ensures a valid IOHandler is set.
func (r *Runner) resolveHandler() IOHandler {
	if r.Handler == nil {
		r.Handler = NewTextHandler(os.Stdin, os.Stdout)
	}
	return r.Handler
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return logging.NewNop()
	}
	return r.Logger
}
