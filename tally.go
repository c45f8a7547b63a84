package tally

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/tally/internal/logging"
	"github.com/aretw0/tally/internal/runtime"
	"github.com/aretw0/tally/pkg/actions"
	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/ports"
	"github.com/aretw0/tally/pkg/registry"
	"github.com/aretw0/tally/pkg/session"
	"github.com/google/uuid"
)

// DefaultStepBudget is the number of action rounds a turn may run when the request sets none.
const DefaultStepBudget = 5

// Assistant is the high-level entry point of the library.
// It wraps the internal runtime and owns the action registry.
// An Assistant is safe for concurrent use by many conversations.
type Assistant struct {
	engine   *runtime.Engine
	registry *registry.Registry
	sessions *session.Manager
	budget   int
	logger   *slog.Logger

	runtimeOpts   []runtime.EngineOption
	actionOpts    []actions.Option
	actionTimeout time.Duration
	extra         []registry.Entry
	hooks         domain.LifecycleHooks
}

// Option defines a functional option for configuring the Assistant.
type Option func(*Assistant)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assistant) {
		a.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(a *Assistant) {
		a.hooks = hooks
	}
}

// WithStepBudget sets the default step budget.
func WithStepBudget(n int) Option {
	return func(a *Assistant) {
		a.budget = n
	}
}

// WithPlannerTimeout bounds every planner attempt.
func WithPlannerTimeout(d time.Duration) Option {
	return func(a *Assistant) {
		a.runtimeOpts = append(a.runtimeOpts, runtime.WithPlannerTimeout(d))
	}
}

// WithPlannerRetries sets how many times a failed planner attempt is retried.
func WithPlannerRetries(n int) Option {
	return func(a *Assistant) {
		a.runtimeOpts = append(a.runtimeOpts, runtime.WithPlannerRetries(n))
	}
}

// WithRetryBackoff sets the pause between planner attempts.
func WithRetryBackoff(d time.Duration) Option {
	return func(a *Assistant) {
		a.runtimeOpts = append(a.runtimeOpts, runtime.WithRetryBackoff(d))
	}
}

// WithActionTimeout bounds every action execution. Zero disables the bound.
func WithActionTimeout(d time.Duration) Option {
	return func(a *Assistant) {
		a.actionTimeout = d
	}
}

// WithProgress enables or disables progress events on the stream.
func WithProgress(enabled bool) Option {
	return func(a *Assistant) {
		a.runtimeOpts = append(a.runtimeOpts, runtime.WithProgress(enabled))
	}
}

// WithChunkSize sets the approximate size of streamed text deltas.
func WithChunkSize(n int) Option {
	return func(a *Assistant) {
		a.runtimeOpts = append(a.runtimeOpts, runtime.WithChunkSize(n))
	}
}

// WithClock overrides the clock used for relative dates and timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Assistant) {
		a.runtimeOpts = append(a.runtimeOpts, runtime.WithClock(now))
		a.actionOpts = append(a.actionOpts, actions.WithClock(now))
	}
}

// WithActions registers extra actions next to the built-in ones.
func WithActions(entries ...registry.Entry) Option {
	return func(a *Assistant) {
		a.extra = append(a.extra, entries...)
	}
}

// WithSessions persists conversations: requests carrying a ConversationID
// continue the stored transcript instead of the supplied history.
func WithSessions(m *session.Manager) Option {
	return func(a *Assistant) {
		a.sessions = m
	}
}

// New initializes an Assistant with the built-in CRM actions backed by store.
func New(planner ports.Planner, store ports.RecordCreator, opts ...Option) (*Assistant, error) {
	if planner == nil {
		return nil, errors.New("planner is required")
	}
	if store == nil {
		return nil, errors.New("record store is required")
	}

	a := &Assistant{
		budget:        DefaultStepBudget,
		logger:        logging.NewNop(),
		actionTimeout: registry.DefaultActionTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.budget <= 0 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidBudget, a.budget)
	}

	entries := append(actions.Default(store, a.actionOpts...), a.extra...)
	reg, err := registry.New(entries,
		registry.WithActionTimeout(a.actionTimeout),
		registry.WithLogger(a.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build action registry: %w", err)
	}
	a.registry = reg

	runtimeOpts := append([]runtime.EngineOption{
		runtime.WithLogger(a.logger),
		runtime.WithLifecycleHooks(a.hooks),
	}, a.runtimeOpts...)
	a.engine = runtime.NewEngine(planner, reg, runtimeOpts...)

	return a, nil
}

// Request is one inbound user message.
type Request struct {
	// ConversationID names a persisted conversation. Optional.
	ConversationID string `json:"conversation_id,omitempty"`
	// History is the prior conversation as role-tagged text turns.
	History []domain.HistoryTurn `json:"history,omitempty"`
	// Message is the new user message.
	Message string `json:"message"`
	// Identity scopes every side effect. Never read by the planner loop.
	Identity domain.Identity `json:"-"`
	// Budget overrides the default step budget when positive.
	Budget int `json:"budget,omitempty"`
}

// Respond runs one turn and streams the answer to emitter (which may be nil).
// The error is non-nil only for malformed requests or when a persisted
// conversation cannot be loaded or saved; every other failure is reported in the Reply.
func (a *Assistant) Respond(ctx context.Context, req Request, emitter ports.Emitter) (domain.Reply, error) {
	if err := req.Identity.Validate(); err != nil {
		return domain.Reply{}, err
	}
	if strings.TrimSpace(req.Message) == "" {
		return domain.Reply{}, domain.ErrEmptyMessage
	}
	budget := a.budget
	if req.Budget > 0 {
		budget = req.Budget
	} else if req.Budget < 0 {
		return domain.Reply{}, fmt.Errorf("%w: %d", domain.ErrInvalidBudget, req.Budget)
	}

	if a.sessions == nil {
		conv, err := seed(historyMessages(req.History), req.Message)
		if err != nil {
			return domain.Reply{}, err
		}
		return a.run(ctx, req.ConversationID, conv, req.Identity, budget, emitter)
	}

	id := req.ConversationID
	if id == "" {
		id = uuid.NewString()
	}

	var reply domain.Reply
	err := a.sessions.Update(ctx, id, req.Identity.UserID, func(ctx context.Context, t *domain.Transcript) error {
		prior := t.Messages
		if len(prior) == 0 {
			prior = historyMessages(req.History)
		}
		conv, err := seed(prior, req.Message)
		if err != nil {
			return err
		}
		reply, err = a.run(ctx, id, conv, req.Identity, budget, emitter)
		if err != nil {
			return err
		}
		t.Messages = reply.Messages
		return nil
	})
	if err != nil {
		return domain.Reply{}, err
	}
	return reply, nil
}

func (a *Assistant) run(ctx context.Context, id string, conv *domain.Conversation, identity domain.Identity, budget int, emitter ports.Emitter) (domain.Reply, error) {
	reply, err := a.engine.Run(ctx, runtime.Input{
		ConversationID: id,
		Conversation:   conv,
		Identity:       identity,
		Budget:         budget,
	}, emitter)
	if err != nil {
		return domain.Reply{}, err
	}
	reply.ConversationID = id
	return reply, nil
}

// Registry exposes the action registry.
func (a *Assistant) Registry() *registry.Registry {
	return a.registry
}

// Actions lists the declared actions in registration order.
func (a *Assistant) Actions() []domain.ActionDefinition {
	return a.registry.Definitions()
}

// Sessions returns the conversation manager, or nil when conversations are not persisted.
func (a *Assistant) Sessions() *session.Manager {
	return a.sessions
}

// StepBudget is the default budget applied to requests that set none.
func (a *Assistant) StepBudget() int {
	return a.budget
}

func historyMessages(history []domain.HistoryTurn) []domain.Message {
	msgs := make([]domain.Message, 0, len(history))
	for _, h := range history {
		msgs = append(msgs, h.Message())
	}
	return msgs
}

func seed(prior []domain.Message, message string) (*domain.Conversation, error) {
	msgs := append(append([]domain.Message(nil), prior...), domain.NewUserText(message))
	conv, err := domain.NewConversation(msgs...)
	if err != nil {
		return nil, fmt.Errorf("invalid history: %w", err)
	}
	return conv, nil
}
