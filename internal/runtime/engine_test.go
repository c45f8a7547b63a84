package runtime

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/tally/pkg/actions"
	"github.com/aretw0/tally/pkg/adapters/memory"
	"github.com/aretw0/tally/pkg/adapters/scripted"
	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/ports"
	"github.com/aretw0/tally/pkg/registry"
	"github.com/aretw0/tally/pkg/schema"
	"github.com/aretw0/tally/pkg/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = domain.Identity{UserID: "u-alice", Name: "Alice"}
	today = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
)

func fixedClock() time.Time { return today }

func call(id, name string, args map[string]any) domain.ActionCall {
	return domain.ActionCall{ID: id, Name: name, Args: args}
}

func newInput(t *testing.T, budget int, text string) Input {
	t.Helper()
	conv, err := domain.NewConversation(domain.NewUserText(text))
	require.NoError(t, err)
	return Input{ConversationID: "conv-1", Conversation: conv, Identity: alice, Budget: budget}
}

func newCRM(t *testing.T) (*registry.Registry, *memory.Records) {
	t.Helper()
	store := memory.NewRecords(memory.WithClock(fixedClock))
	reg, err := registry.New(actions.Default(store, actions.WithClock(fixedClock)))
	require.NoError(t, err)
	return reg, store
}

func kinds(msgs []domain.Message) []domain.MessageKind {
	out := make([]domain.MessageKind, len(msgs))
	for i, m := range msgs {
		out[i] = m.Kind
	}
	return out
}

func TestEngine_ExpenseAndTaskInOneStep(t *testing.T) {
	reg, store := newCRM(t)
	planner := scripted.New([]scripted.Step{
		scripted.Reply(domain.RequestActions([]domain.ActionCall{
			call("c1", actions.NameLogExpense, map[string]any{"amount": 42, "description": "coffee"}),
			call("c2", actions.NameCreateTask, map[string]any{"title": "follow up", "dueDate": "tomorrow"}),
		}, "")),
		scripted.Reply(domain.Final("Logged the $42 coffee expense and created a follow-up task for tomorrow.")),
	})
	rec := &stream.Recorder{}

	reply, err := NewEngine(planner, reg, WithClock(fixedClock)).Run(context.Background(), newInput(t, 5, "log a $42 expense for coffee and remind me to follow up tomorrow"), rec)
	require.NoError(t, err)

	assert.Equal(t, domain.TurnDone, reply.Status)
	assert.Equal(t, 1, reply.Steps)
	assert.Equal(t, 2, reply.PlannerCalls)
	require.Len(t, reply.Results, 2)
	assert.True(t, reply.Results[0].Outcome.OK(), reply.Results[0].Outcome.String())
	assert.True(t, reply.Results[1].Outcome.OK(), reply.Results[1].Outcome.String())
	assert.Equal(t, "Logged the $42 coffee expense and created a follow-up task for tomorrow.", reply.Text)

	assert.Equal(t, []domain.MessageKind{
		domain.KindUserText,
		domain.KindActionRequest,
		domain.KindActionResult,
		domain.KindActionResult,
		domain.KindAssistantText,
	}, kinds(reply.Messages))

	assert.Equal(t, reply.Text, rec.Text())
	assert.True(t, rec.Completed())

	tasks, err := store.List(context.Background(), alice.UserID, domain.EntityTask)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "2026-03-11", tasks[0].Fields["dueDate"])

	// The second planner call sees both results in request order.
	reqs := planner.Requests()
	require.Len(t, reqs, 2)
	msgs := reqs[1].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, "c1", msgs[2].Result.CallID)
	assert.Equal(t, "c2", msgs[3].Result.CallID)
	assert.Len(t, reqs[0].Actions, 3)
}

func TestEngine_InvalidArgumentsAreFoldedIntoConversation(t *testing.T) {
	reg, store := newCRM(t)
	planner := scripted.New([]scripted.Step{
		scripted.Reply(domain.RequestActions([]domain.ActionCall{
			call("c1", actions.NameCreateDeal, map[string]any{"title": "Acme", "amount": "not-a-number"}),
		}, "")),
		scripted.Reply(domain.Final("Sorry, I could not create the deal.")),
	})

	reply, err := NewEngine(planner, reg).Run(context.Background(), newInput(t, 5, "new deal"), nil)
	require.NoError(t, err)

	assert.Equal(t, domain.TurnDone, reply.Status)
	require.Len(t, reply.Results, 1)
	outcome := reply.Results[0].Outcome
	assert.False(t, outcome.OK())
	assert.Contains(t, outcome.Reason(), "amount")
	assert.Equal(t, 0, store.Len())

	second := planner.Requests()[1].Messages
	last := second[len(second)-1]
	require.Equal(t, domain.KindActionResult, last.Kind)
	assert.False(t, last.Result.Outcome.OK())
}

func TestEngine_BudgetExhaustedWithoutExtraPlannerCall(t *testing.T) {
	reg, _ := newCRM(t)
	planner := scripted.New([]scripted.Step{
		scripted.Reply(domain.RequestActions([]domain.ActionCall{
			call("c1", actions.NameCreateTask, map[string]any{"title": "one"}),
		}, "")),
		scripted.Reply(domain.RequestActions([]domain.ActionCall{
			call("c2", actions.NameCreateTask, map[string]any{"title": "two"}),
		}, "")),
		scripted.Reply(domain.Final("never reached")),
	})
	rec := &stream.Recorder{}

	reply, err := NewEngine(planner, reg).Run(context.Background(), newInput(t, 1, "two tasks"), rec)
	require.NoError(t, err)

	assert.Equal(t, domain.TurnBudgetExhausted, reply.Status)
	assert.Equal(t, 2, planner.Calls())
	assert.Equal(t, 1, planner.Remaining())
	assert.Equal(t, 1, reply.Steps)
	assert.Contains(t, reply.Text, "step limit (1)")
	assert.Contains(t, reply.Text, "Completed:\n- create_task")
	assert.Contains(t, reply.Text, "Not executed:\n- create_task")
	assert.True(t, rec.Completed())
	assert.Equal(t, reply.Text, rec.Text())

	last := reply.Messages[len(reply.Messages)-1]
	assert.Equal(t, domain.KindAssistantText, last.Kind)
}

func TestEngine_FailureIsolation(t *testing.T) {
	var (
		mu  sync.Mutex
		ran []string
	)
	track := func(name string, outcome domain.ActionOutcome) registry.Entry {
		return registry.Entry{
			Action: schema.Action{Name: name, Schema: schema.Schema{}},
			Executor: registry.ExecutorFunc(func(ctx context.Context, args map[string]any, id domain.Identity) domain.ActionOutcome {
				mu.Lock()
				ran = append(ran, name)
				mu.Unlock()
				return outcome
			}),
		}
	}
	reg := registry.MustNew([]registry.Entry{
		track("a", domain.Succeeded("a done")),
		track("b", domain.Failed("b broke")),
		{
			Action: schema.Action{Name: "c"},
			Executor: registry.ExecutorFunc(func(context.Context, map[string]any, domain.Identity) domain.ActionOutcome {
				panic("c exploded")
			}),
		},
		track("d", domain.Succeeded("d done")),
	})
	planner := scripted.New([]scripted.Step{
		scripted.Reply(domain.RequestActions([]domain.ActionCall{
			call("1", "a", nil), call("2", "b", nil), call("3", "c", nil), call("4", "missing", nil), call("5", "d", nil),
		}, "")),
		scripted.Reply(domain.Final("")),
	})

	reply, err := NewEngine(planner, reg).Run(context.Background(), newInput(t, 3, "go"), nil)
	require.NoError(t, err)

	assert.Equal(t, domain.TurnDone, reply.Status)
	assert.Equal(t, []string{"a", "b", "d"}, ran)
	require.Len(t, reply.Results, 5)
	var ids []string
	for _, r := range reply.Results {
		ids = append(ids, r.CallID)
	}
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, ids)
	assert.Equal(t, "b broke", reply.Results[1].Outcome.Reason())
	assert.Contains(t, reply.Results[2].Outcome.Reason(), "internal error")
	assert.Contains(t, reply.Results[3].Outcome.Reason(), `unknown action "missing"`)

	// An empty final text falls back to a generated summary.
	assert.True(t, strings.HasPrefix(reply.Text, "Done."))
	assert.Contains(t, reply.Text, "Failed:\n- b: b broke")
}

func TestEngine_ActionsSeeEarlierWrites(t *testing.T) {
	store := memory.NewRecords()
	var seen int
	probe := registry.Entry{
		Action: schema.Action{Name: "count_deals"},
		Executor: registry.ExecutorFunc(func(ctx context.Context, _ map[string]any, id domain.Identity) domain.ActionOutcome {
			deals, err := store.List(ctx, id.UserID, domain.EntityDeal)
			if err != nil {
				return domain.Failed(err.Error())
			}
			seen = len(deals)
			return domain.Succeeded("counted")
		}),
	}
	reg := registry.MustNew(append(actions.Default(store), probe))

	planner := scripted.New([]scripted.Step{
		scripted.Reply(domain.RequestActions([]domain.ActionCall{
			call("c1", actions.NameCreateDeal, map[string]any{"title": "Acme", "amount": 1000}),
			call("c2", "count_deals", nil),
		}, "")),
		scripted.Reply(domain.Final("ok")),
	})

	_, err := NewEngine(planner, reg).Run(context.Background(), newInput(t, 2, "deal"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, seen)
}

func TestEngine_PlannerRetriedOnceThenUnavailable(t *testing.T) {
	reg, _ := newCRM(t)
	planner := scripted.New([]scripted.Step{
		scripted.Fail(errors.New("503")),
		scripted.Fail(errors.New("503")),
		scripted.Reply(domain.Final("never")),
	})
	rec := &stream.Recorder{}

	reply, err := NewEngine(planner, reg).Run(context.Background(), newInput(t, 3, "hi"), rec)
	require.NoError(t, err)

	assert.Equal(t, domain.TurnUnavailable, reply.Status)
	assert.Equal(t, 2, planner.Calls())
	assert.Equal(t, 2, reply.PlannerCalls)
	assert.True(t, strings.HasPrefix(reply.Text, "Sorry, the assistant is unavailable right now."))

	reason, aborted := rec.Aborted()
	assert.True(t, aborted)
	assert.Equal(t, AbortUnavailable, reason)
	assert.Equal(t, reply.Text, rec.Text())
}

func TestEngine_PlannerRetrySucceeds(t *testing.T) {
	reg, _ := newCRM(t)
	planner := scripted.New([]scripted.Step{
		scripted.Fail(errors.New("flaky")),
		scripted.Reply(domain.Final("hello")),
	})

	reply, err := NewEngine(planner, reg, WithRetryBackoff(time.Millisecond)).Run(context.Background(), newInput(t, 3, "hi"), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TurnDone, reply.Status)
	assert.Equal(t, "hello", reply.Text)
}

func TestEngine_PlannerTimeout(t *testing.T) {
	reg, _ := newCRM(t)
	block := func(ctx context.Context, _ ports.PlanRequest) (domain.PlannerResponse, error) {
		<-ctx.Done()
		return domain.PlannerResponse{}, ctx.Err()
	}
	planner := scripted.New([]scripted.Step{scripted.Do(block), scripted.Do(block)})

	reply, err := NewEngine(planner, reg, WithPlannerTimeout(10*time.Millisecond)).Run(context.Background(), newInput(t, 3, "hi"), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TurnUnavailable, reply.Status)
	assert.Equal(t, 2, planner.Calls())
}

func TestEngine_PlannerPanicIsUnavailable(t *testing.T) {
	reg, _ := newCRM(t)
	planner := ports.PlannerFunc(func(context.Context, ports.PlanRequest) (domain.PlannerResponse, error) {
		panic("model exploded")
	})

	reply, err := NewEngine(planner, reg, WithPlannerRetries(0)).Run(context.Background(), newInput(t, 3, "hi"), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TurnUnavailable, reply.Status)
	assert.Equal(t, 1, reply.PlannerCalls)
}

// cancelAfter cancels the turn once the named action has finished.
type cancelAfter struct {
	*stream.Recorder
	action string
	cancel context.CancelFunc
}

func (c cancelAfter) Progress(ctx context.Context, ev ports.ProgressEvent) error {
	if ev.Stage == ports.StageActionEnd && ev.Action == c.action {
		c.cancel()
	}
	return c.Recorder.Progress(ctx, ev)
}

func TestEngine_CancelledBetweenActions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var executed []string
	entry := func(name string) registry.Entry {
		return registry.Entry{
			Action: schema.Action{Name: name},
			Executor: registry.ExecutorFunc(func(context.Context, map[string]any, domain.Identity) domain.ActionOutcome {
				executed = append(executed, name)
				return domain.Succeeded(name + " committed")
			}),
		}
	}
	reg := registry.MustNew([]registry.Entry{entry("first"), entry("second")})
	planner := scripted.New([]scripted.Step{
		scripted.Reply(domain.RequestActions([]domain.ActionCall{call("1", "first", nil), call("2", "second", nil)}, "")),
		scripted.Reply(domain.Final("never")),
	})
	rec := &stream.Recorder{}

	reply, err := NewEngine(planner, reg).Run(ctx, newInput(t, 3, "go"), cancelAfter{Recorder: rec, action: "first", cancel: cancel})
	require.NoError(t, err)

	assert.Equal(t, domain.TurnCancelled, reply.Status)
	assert.Equal(t, []string{"first"}, executed)
	assert.Equal(t, 1, planner.Calls())
	require.Len(t, reply.Results, 1)
	assert.True(t, reply.Results[0].Outcome.OK())
	assert.Contains(t, reply.Text, "Not executed:\n- second")

	reason, aborted := rec.Aborted()
	assert.True(t, aborted)
	assert.Equal(t, AbortCancelled, reason)
	assert.False(t, rec.Completed())

	// The owed result is recorded as cancelled so the conversation stays well formed.
	last := reply.Messages[len(reply.Messages)-1]
	require.Equal(t, domain.KindActionResult, last.Kind)
	assert.Equal(t, "2", last.Result.CallID)
	assert.Equal(t, "cancelled", last.Result.Outcome.Reason())
}

func TestEngine_CancelledBeforeStart(t *testing.T) {
	reg, _ := newCRM(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	planner := scripted.New([]scripted.Step{scripted.Reply(domain.Final("never"))})
	rec := &stream.Recorder{}

	reply, err := NewEngine(planner, reg).Run(ctx, newInput(t, 3, "hi"), rec)
	require.NoError(t, err)
	assert.Equal(t, domain.TurnCancelled, reply.Status)
	assert.Equal(t, 0, planner.Calls())
	_, aborted := rec.Aborted()
	assert.True(t, aborted)
}

func TestEngine_MalformedInput(t *testing.T) {
	reg, _ := newCRM(t)
	engine := NewEngine(scripted.New(nil), reg)

	in := newInput(t, 3, "hi")
	in.Identity = domain.Identity{}
	_, err := engine.Run(context.Background(), in, nil)
	assert.ErrorIs(t, err, domain.ErrMissingIdentity)

	in = newInput(t, 0, "hi")
	_, err = engine.Run(context.Background(), in, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidBudget)

	_, err = engine.Run(context.Background(), Input{Identity: alice, Budget: 1}, nil)
	assert.Error(t, err)
}

func TestEngine_AssignsMissingAndDuplicateCallIDs(t *testing.T) {
	reg, _ := newCRM(t)
	planner := scripted.New([]scripted.Step{
		scripted.Reply(domain.RequestActions([]domain.ActionCall{
			call("", actions.NameCreateTask, map[string]any{"title": "a"}),
			call("dup", actions.NameCreateTask, map[string]any{"title": "b"}),
			call("dup", actions.NameCreateTask, map[string]any{"title": "c"}),
		}, "")),
		scripted.Reply(domain.Final("ok")),
	})

	reply, err := NewEngine(planner, reg).Run(context.Background(), newInput(t, 1, "three"), nil)
	require.NoError(t, err)
	require.Len(t, reply.Results, 3)

	seen := map[string]bool{}
	for _, r := range reply.Results {
		assert.NotEmpty(t, r.CallID)
		assert.False(t, seen[r.CallID], "duplicate id %s", r.CallID)
		seen[r.CallID] = true
	}
	assert.Equal(t, "dup", reply.Results[1].CallID)
}

func TestEngine_HooksAndProgress(t *testing.T) {
	reg, _ := newCRM(t)
	planner := scripted.New([]scripted.Step{
		scripted.Reply(domain.RequestActions([]domain.ActionCall{
			call("c1", actions.NameCreateTask, map[string]any{"title": "a"}),
		}, "")),
		scripted.Reply(domain.Final("ok")),
	})

	var (
		plannerCalls, actionEnds int
		turn                     *domain.TurnEvent
	)
	hooks := domain.LifecycleHooks{
		OnPlannerCall: func(context.Context, *domain.PlannerEvent) { plannerCalls++ },
		OnActionEnd: func(_ context.Context, ev *domain.ActionEvent) {
			actionEnds++
			assert.True(t, ev.Outcome.OK())
		},
		OnTurnEnd: func(_ context.Context, ev *domain.TurnEvent) { turn = ev },
	}
	rec := &stream.Recorder{}

	_, err := NewEngine(planner, reg, WithLifecycleHooks(hooks)).Run(context.Background(), newInput(t, 2, "task"), rec)
	require.NoError(t, err)

	assert.Equal(t, 2, plannerCalls)
	assert.Equal(t, 1, actionEnds)
	require.NotNil(t, turn)
	assert.Equal(t, domain.TurnDone, turn.Status)
	assert.Equal(t, "conv-1", turn.ConversationID)

	var stages []ports.ProgressStage
	for _, ev := range rec.ProgressEvents() {
		stages = append(stages, ev.Stage)
	}
	assert.Equal(t, []ports.ProgressStage{
		ports.StagePlanning, ports.StageActionStart, ports.StageActionEnd, ports.StagePlanning,
	}, stages)
}

func TestEngine_ChunkedDeltas(t *testing.T) {
	reg, _ := newCRM(t)
	text := "This answer is long enough to be split into several streamed chunks."
	planner := scripted.New([]scripted.Step{scripted.Reply(domain.Final(text))})
	rec := &stream.Recorder{}

	_, err := NewEngine(planner, reg, WithChunkSize(16), WithProgress(false)).Run(context.Background(), newInput(t, 1, "hi"), rec)
	require.NoError(t, err)
	assert.Greater(t, len(rec.Deltas()), 1)
	assert.Equal(t, text, rec.Text())
	assert.Empty(t, rec.ProgressEvents())
}
