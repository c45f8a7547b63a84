package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/aretw0/tally/internal/logging"
	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/ports"
	"github.com/aretw0/tally/pkg/registry"
	"github.com/aretw0/tally/pkg/stream"
	"github.com/google/uuid"
)

// Engine is the bounded-step orchestration loop.
// It is stateless between runs and safe for concurrent use by many conversations.
type Engine struct {
	planner        ports.Planner
	registry       *registry.Registry
	plannerTimeout time.Duration
	plannerRetries int
	backoff        time.Duration
	hooks          domain.LifecycleHooks
	logger         *slog.Logger
	progress       bool
	chunkSize      int
	now            func() time.Time
}

// NewEngine creates a new engine with dependencies.
func NewEngine(planner ports.Planner, reg *registry.Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		planner:        planner,
		registry:       reg,
		plannerTimeout: DefaultPlannerTimeout,
		plannerRetries: DefaultPlannerRetries,
		logger:         logging.NewNop(),
		progress:       true,
		chunkSize:      DefaultChunkSize,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Input is everything one run needs.
type Input struct {
	ConversationID string
	// Conversation is seeded by the caller (history plus the new user message)
	// and owned by the engine until Run returns.
	Conversation *domain.Conversation
	Identity     domain.Identity
	// Budget is the maximum number of action rounds.
	Budget int
}

// Validate reports request malformations detected before the loop starts.
func (in Input) Validate() error {
	if in.Conversation == nil {
		return errors.New("conversation is required")
	}
	if in.Conversation.Pending() > 0 {
		return domain.ErrPendingResults
	}
	if in.Budget <= 0 {
		return domain.ErrInvalidBudget
	}
	return in.Identity.Validate()
}

type phase int

const (
	phasePlanning phase = iota
	phaseExecuting
	phaseDone
	phaseBudgetExhausted
	phaseUnavailable
	phaseCancelled
)

func (p phase) status() domain.TurnStatus {
	switch p {
	case phaseDone:
		return domain.TurnDone
	case phaseBudgetExhausted:
		return domain.TurnBudgetExhausted
	case phaseCancelled:
		return domain.TurnCancelled
	default:
		return domain.TurnUnavailable
	}
}

// turn is the mutable state of a single run.
type turn struct {
	in           Input
	emitter      ports.Emitter
	log          *slog.Logger
	started      time.Time
	steps        int
	plannerCalls int
	results      []domain.ActionResult
	queued       []domain.ActionCall // requested by the planner, not yet dispatched
	unexecuted   []domain.ActionCall // requested but never dispatched
	finalText    string
}

// Run drives one turn to a terminal state.
// The returned error is non-nil only for request malformations; every other
// failure is reported through the Reply status and its text.
func (e *Engine) Run(ctx context.Context, in Input, emitter ports.Emitter) (domain.Reply, error) {
	if err := in.Validate(); err != nil {
		return domain.Reply{}, fmt.Errorf("invalid turn: %w", err)
	}
	if emitter == nil {
		emitter = stream.Discard
	}

	t := &turn{
		in:      in,
		emitter: emitter,
		started: e.now(),
		log: e.logger.With(
			"conversation_id", in.ConversationID,
			"user_id", in.Identity.UserID,
		),
	}
	t.log.Debug("Turn started", "budget", in.Budget, "seed_messages", in.Conversation.Len())

	state := phasePlanning
	for {
		switch state {
		case phasePlanning:
			state = e.plan(ctx, t)
		case phaseExecuting:
			state = e.execute(ctx, t)
		default:
			return e.finish(ctx, t, state), nil
		}
	}
}

// plan asks the planner for the next move: a final answer or a new action round.
func (e *Engine) plan(ctx context.Context, t *turn) phase {
	if ctx.Err() != nil {
		return phaseCancelled
	}
	e.emitProgress(ctx, t, ports.ProgressEvent{Stage: ports.StagePlanning, Step: t.steps + 1})

	resp, err := e.callPlanner(ctx, t)
	if err != nil {
		if ctx.Err() != nil {
			return phaseCancelled
		}
		t.log.Error("Planner unavailable", "step", t.steps+1, "err", err)
		return phaseUnavailable
	}

	if resp.IsFinal() {
		t.finalText = resp.Text
		return phaseDone
	}

	calls := assignCallIDs(resp.Calls)
	if t.steps >= t.in.Budget {
		t.log.Warn("Step budget exhausted", "budget", t.in.Budget, "requested", len(calls))
		t.unexecuted = calls
		return phaseBudgetExhausted
	}

	if err := t.in.Conversation.Append(domain.NewActionRequest(calls, resp.Text)); err != nil {
		t.log.Error("Conversation rejected action request", "err", err)
		return phaseUnavailable
	}
	t.steps++
	t.queued = calls
	return phaseExecuting
}

// execute dispatches the queued calls strictly in order and folds every
// outcome into the conversation before returning to planning.
func (e *Engine) execute(ctx context.Context, t *turn) phase {
	for len(t.queued) > 0 {
		call := t.queued[0]

		if ctx.Err() != nil {
			// Keep the conversation well formed: owed results are recorded as cancelled.
			t.unexecuted = append(t.unexecuted, t.queued...)
			for _, c := range t.queued {
				_ = t.in.Conversation.Append(domain.NewActionResult(domain.ActionResult{
					CallID: c.ID, Name: c.Name, Outcome: domain.Failed("cancelled"),
				}))
			}
			t.queued = nil
			return phaseCancelled
		}
		t.queued = t.queued[1:]

		result := e.dispatch(ctx, t, call)
		t.results = append(t.results, result)
		if err := t.in.Conversation.Append(domain.NewActionResult(result)); err != nil {
			t.log.Error("Conversation rejected action result", "call_id", call.ID, "err", err)
			return phaseUnavailable
		}
	}
	return phasePlanning
}

func (e *Engine) dispatch(ctx context.Context, t *turn, call domain.ActionCall) domain.ActionResult {
	log := t.log.With("step", t.steps, "action", call.Name, "call_id", call.ID)

	event := &domain.ActionEvent{
		EventBase: e.eventBase(t, domain.EventActionStart),
		Step:      t.steps,
		Call:      call,
	}
	if e.hooks.OnActionStart != nil {
		e.hooks.OnActionStart(ctx, event)
	}
	e.emitProgress(ctx, t, ports.ProgressEvent{
		Stage: ports.StageActionStart, Step: t.steps, Action: call.Name, CallID: call.ID,
	})

	start := e.now()
	outcome := e.registry.Dispatch(ctx, call, t.in.Identity)
	elapsed := e.now().Sub(start)

	if outcome.OK() {
		log.Info("Action succeeded", "duration", elapsed)
	} else {
		log.Warn("Action failed", "reason", outcome.Reason(), "duration", elapsed)
	}

	end := &domain.ActionEvent{
		EventBase: e.eventBase(t, domain.EventActionEnd),
		Step:      t.steps,
		Call:      call,
		Outcome:   outcome,
		Duration:  elapsed,
	}
	if e.hooks.OnActionEnd != nil {
		e.hooks.OnActionEnd(ctx, end)
	}
	e.emitProgress(ctx, t, ports.ProgressEvent{
		Stage: ports.StageActionEnd, Step: t.steps, Action: call.Name, CallID: call.ID, Outcome: &outcome,
	})

	return domain.ActionResult{CallID: call.ID, Name: call.Name, Outcome: outcome}
}

// callPlanner performs one planning step: at most 1+retries attempts, each bounded by
// the planner timeout. Cancellation of ctx is returned as ctx.Err().
func (e *Engine) callPlanner(ctx context.Context, t *turn) (domain.PlannerResponse, error) {
	req := ports.PlanRequest{
		Messages: t.in.Conversation.Messages(),
		Actions:  e.registry.Definitions(),
	}

	var lastErr error
	for attempt := 1; attempt <= e.plannerRetries+1; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, e.backoff); err != nil {
				return domain.PlannerResponse{}, err
			}
		}
		if err := ctx.Err(); err != nil {
			return domain.PlannerResponse{}, err
		}

		t.plannerCalls++
		event := &domain.PlannerEvent{
			EventBase: e.eventBase(t, domain.EventPlannerCall),
			Step:      t.steps + 1,
			Attempt:   attempt,
		}
		if e.hooks.OnPlannerCall != nil {
			e.hooks.OnPlannerCall(ctx, event)
		}

		start := e.now()
		resp, err := e.attempt(ctx, req)
		ret := *event
		ret.Type = domain.EventPlannerReturn
		ret.Timestamp = e.now()
		ret.Duration = ret.Timestamp.Sub(start)
		ret.Err = err
		ret.Final = err == nil && resp.IsFinal()
		ret.Calls = len(resp.Calls)
		if e.hooks.OnPlannerReturn != nil {
			e.hooks.OnPlannerReturn(ctx, &ret)
		}

		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return domain.PlannerResponse{}, ctx.Err()
		}
		lastErr = err
		t.log.Warn("Planner attempt failed", "attempt", attempt, "err", err)
	}
	return domain.PlannerResponse{}, fmt.Errorf("%w: %v", domain.ErrPlannerUnavailable, lastErr)
}

// attempt runs a single planner call under the planner timeout. Planners that
// ignore their context are abandoned when the deadline passes; panics become errors.
func (e *Engine) attempt(ctx context.Context, req ports.PlanRequest) (domain.PlannerResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.plannerTimeout)
	defer cancel()

	type result struct {
		resp domain.PlannerResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				e.logger.Error("Planner panicked", "panic", p, "stack", string(debug.Stack()))
				done <- result{err: fmt.Errorf("planner panic: %v", p)}
			}
		}()
		resp, err := e.planner.Plan(callCtx, req)
		done <- result{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return domain.PlannerResponse{}, ctx.Err()
		}
		return domain.PlannerResponse{}, fmt.Errorf("planner timed out after %s", e.plannerTimeout)
	}
}

// finish produces the single terminal message, closes the stream and reports the turn.
func (e *Engine) finish(ctx context.Context, t *turn, state phase) domain.Reply {
	status := state.status()
	text := e.terminalText(t, state)

	// The caller may have cancelled ctx; the stream and hooks must still be closed out.
	closeCtx := context.WithoutCancel(ctx)

	if state != phaseCancelled {
		if err := t.in.Conversation.Append(domain.NewAssistantText(text)); err != nil {
			t.log.Error("Conversation rejected terminal message", "err", err)
		}
	}

	switch state {
	case phaseDone, phaseBudgetExhausted:
		e.emitText(closeCtx, t, text)
		if err := t.emitter.Complete(closeCtx); err != nil {
			t.log.Warn("Stream completion failed", "err", err)
		}
	case phaseUnavailable:
		e.emitText(closeCtx, t, text)
		if err := t.emitter.Abort(closeCtx, AbortUnavailable); err != nil {
			t.log.Warn("Stream abort failed", "err", err)
		}
	default:
		if err := t.emitter.Abort(closeCtx, AbortCancelled); err != nil {
			t.log.Warn("Stream abort failed", "err", err)
		}
	}

	duration := e.now().Sub(t.started)
	t.log.Info("Turn finished",
		"status", status,
		"steps", t.steps,
		"planner_calls", t.plannerCalls,
		"actions", len(t.results),
		"duration", duration,
	)
	if e.hooks.OnTurnEnd != nil {
		e.hooks.OnTurnEnd(closeCtx, &domain.TurnEvent{
			EventBase:    e.eventBase(t, domain.EventTurnEnd),
			Status:       status,
			Steps:        t.steps,
			PlannerCalls: t.plannerCalls,
			Duration:     duration,
		})
	}

	return domain.Reply{
		Status:       status,
		Text:         text,
		Steps:        t.steps,
		PlannerCalls: t.plannerCalls,
		Results:      append([]domain.ActionResult(nil), t.results...),
		Messages:     t.in.Conversation.Messages(),
	}
}

func (e *Engine) terminalText(t *turn, state phase) string {
	switch state {
	case phaseDone:
		if t.finalText != "" {
			return t.finalText
		}
		return DoneMessage(t.results)
	case phaseBudgetExhausted:
		return BudgetMessage(t.in.Budget, t.results, t.unexecuted)
	case phaseCancelled:
		return CancelledMessage(t.results, t.unexecuted)
	default:
		return UnavailableMessage(t.results)
	}
}

func (e *Engine) emitText(ctx context.Context, t *turn, text string) {
	for _, chunk := range stream.Chunk(text, e.chunkSize) {
		if err := t.emitter.Delta(ctx, chunk); err != nil {
			t.log.Warn("Stream delta failed", "err", err)
			return
		}
	}
}

func (e *Engine) emitProgress(ctx context.Context, t *turn, ev ports.ProgressEvent) {
	if !e.progress {
		return
	}
	if err := t.emitter.Progress(ctx, ev); err != nil {
		t.log.Debug("Stream progress failed", "err", err)
	}
}

func (e *Engine) eventBase(t *turn, typ domain.EventType) domain.EventBase {
	return domain.EventBase{
		Timestamp:      e.now(),
		Type:           typ,
		ConversationID: t.in.ConversationID,
	}
}

// assignCallIDs returns a copy of calls where missing or repeated IDs are replaced.
func assignCallIDs(calls []domain.ActionCall) []domain.ActionCall {
	out := make([]domain.ActionCall, len(calls))
	seen := make(map[string]bool, len(calls))
	for i, c := range calls {
		if c.ID == "" || seen[c.ID] {
			c.ID = "call_" + uuid.NewString()
		}
		seen[c.ID] = true
		out[i] = c
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
