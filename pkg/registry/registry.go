package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/aretw0/tally/internal/logging"
	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/schema"
)

// DefaultActionTimeout bounds a single executor call when no timeout is configured.
const DefaultActionTimeout = 10 * time.Second

// Executor performs the side effect of one action with validated arguments.
// Implementations translate every failure into domain.Failed and never panic
// on purpose; Dispatch recovers them anyway.
type Executor interface {
	Execute(ctx context.Context, args map[string]any, identity domain.Identity) domain.ActionOutcome
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, args map[string]any, identity domain.Identity) domain.ActionOutcome

func (f ExecutorFunc) Execute(ctx context.Context, args map[string]any, identity domain.Identity) domain.ActionOutcome {
	return f(ctx, args, identity)
}

// Entry pairs an action declaration with its executor.
type Entry struct {
	Action   schema.Action
	Executor Executor
}

// Registry is a fixed table from action name to (schema, executor).
// It is built once and never mutated, so it is safe for concurrent reads without locking.
type Registry struct {
	entries map[string]Entry
	order   []string
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures the Registry.
type Option func(*Registry)

// WithActionTimeout bounds every executor call. Zero or negative disables the bound.
func WithActionTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.timeout = d
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New builds a registry from the given entries.
// Empty names, missing executors and duplicate names are rejected.
func New(entries []Entry, opts ...Option) (*Registry, error) {
	r := &Registry{
		entries: make(map[string]Entry, len(entries)),
		timeout: DefaultActionTimeout,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, e := range entries {
		name := e.Action.Name
		if strings.TrimSpace(name) == "" {
			return nil, errors.New("action name is required")
		}
		if e.Executor == nil {
			return nil, fmt.Errorf("action %q: executor is required", name)
		}
		if _, dup := r.entries[name]; dup {
			return nil, fmt.Errorf("action %q registered twice", name)
		}
		r.entries[name] = e
		r.order = append(r.order, name)
	}
	return r, nil
}

// MustNew is like New but panics on error. Intended for static tables built at startup.
func MustNew(entries []Entry, opts ...Option) *Registry {
	r, err := New(entries, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns the executor registered for name.
func (r *Registry) Resolve(name string) (Executor, bool) {
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.Executor, true
}

// Action returns the declaration registered for name.
func (r *Registry) Action(name string) (schema.Action, bool) {
	e, ok := r.entries[name]
	return e.Action, ok
}

// Names returns the action names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Definitions returns the planner-facing action descriptions in registration order.
func (r *Registry) Definitions() []domain.ActionDefinition {
	defs := make([]domain.ActionDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.entries[name].Action.Definition())
	}
	return defs
}

// Validate checks raw arguments for the named action and returns the typed arguments.
// Unknown names yield a schema.KindUnknownAction error.
func (r *Registry) Validate(name string, raw map[string]any) (map[string]any, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, schema.UnknownAction(name)
	}
	return e.Action.Validate(raw)
}

// Dispatch validates the call and, only when the arguments are valid, runs its executor.
// It never panics and never returns an error: every failure is folded into domain.Failed.
func (r *Registry) Dispatch(ctx context.Context, call domain.ActionCall, identity domain.Identity) domain.ActionOutcome {
	log := r.logger.With("action", call.Name, "call_id", call.ID)

	args, err := r.Validate(call.Name, call.Args)
	if err != nil {
		log.Warn("Action rejected by validation", "err", err)
		return domain.Failed(DescribeValidation(err))
	}
	if e, ok := r.entries[call.Name]; ok {
		if extra := schema.Unknown(e.Action.Schema, call.Args); len(extra) > 0 {
			log.Debug("Dropped unknown arguments", "fields", extra)
		}
	}

	exec, _ := r.Resolve(call.Name)
	return r.run(ctx, log, exec, args, identity)
}

func (r *Registry) run(ctx context.Context, log *slog.Logger, exec Executor, args map[string]any, identity domain.Identity) domain.ActionOutcome {
	if err := ctx.Err(); err != nil {
		return domain.Failed(interruption(err))
	}

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	done := make(chan domain.ActionOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				log.Error("Action executor panicked", "panic", p, "stack", string(debug.Stack()))
				done <- domain.Failedf("internal error: %v", p)
			}
		}()
		done <- exec.Execute(runCtx, args, identity)
	}()

	select {
	case outcome := <-done:
		return outcome
	case <-runCtx.Done():
	}

	select {
	case outcome := <-done:
		return outcome
	default:
	}
	// The executor still holds the store. Wait for it so the next call never
	// overlaps it, then report the interruption.
	reason := interruption(runCtx.Err())
	log.Warn("Action interrupted, waiting for executor to return", "err", runCtx.Err())
	late := <-done
	if late.OK() {
		log.Warn("Action finished after interruption", "summary", late.Summary())
	} else {
		log.Debug("Action failed after interruption", "reason", late.Reason())
	}
	return domain.Failed(reason)
}

func interruption(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	return "cancelled"
}

// DescribeValidation renders a validation error as a single line suitable for
// an action result the planner reads.
func DescribeValidation(err error) string {
	errs := schema.ValidationErrors(err)
	if len(errs) == 0 {
		return "invalid arguments: " + err.Error()
	}

	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		var ve *schema.ValidationError
		if errors.As(e, &ve) && ve.Kind == schema.KindUnknownAction {
			return ve.Error()
		}
		parts = append(parts, e.Error())
	}
	return "invalid arguments: " + strings.Join(parts, "; ")
}
