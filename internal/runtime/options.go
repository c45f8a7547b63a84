package runtime

import (
	"log/slog"
	"time"

	"github.com/aretw0/tally/pkg/domain"
)

const (
	// DefaultPlannerTimeout bounds a single planner attempt.
	DefaultPlannerTimeout = 30 * time.Second
	// DefaultPlannerRetries is the number of extra attempts after a planner failure.
	DefaultPlannerRetries = 1
	// DefaultChunkSize is the approximate size of each streamed text delta.
	DefaultChunkSize = 48
)

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithPlannerTimeout bounds every planner attempt.
func WithPlannerTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.plannerTimeout = d
		}
	}
}

// WithPlannerRetries sets how many times a failed planner attempt is retried.
// Negative values are treated as zero.
func WithPlannerRetries(n int) EngineOption {
	return func(e *Engine) {
		if n < 0 {
			n = 0
		}
		e.plannerRetries = n
	}
}

// WithRetryBackoff sets the pause between planner attempts.
func WithRetryBackoff(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.backoff = d
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithProgress enables or disables intermediate progress events on the stream.
func WithProgress(enabled bool) EngineOption {
	return func(e *Engine) {
		e.progress = enabled
	}
}

// WithChunkSize sets the approximate size of streamed text deltas.
func WithChunkSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// WithClock overrides the clock used for event timestamps and durations.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}
