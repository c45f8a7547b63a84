package registry_test

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/registry"
	"github.com/aretw0/tally/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var user = domain.Identity{UserID: "u-1"}

func dealAction() schema.Action {
	return schema.Action{
		Name:        "create_deal",
		Description: "Create a sales deal",
		Schema: schema.Schema{
			"title":  {Type: schema.NonEmpty(), Required: true},
			"amount": {Type: schema.NonNegative(), Required: true},
			"stage":  {Type: schema.Enum("lead", "won"), Default: "lead"},
		},
	}
}

// countingExecutor records every call and the arguments it observed.
type countingExecutor struct {
	calls atomic.Int32
	last  map[string]any
}

func (c *countingExecutor) Execute(_ context.Context, args map[string]any, id domain.Identity) domain.ActionOutcome {
	c.calls.Add(1)
	c.last = args
	return domain.Succeeded(fmt.Sprintf("deal %v for %s", args["title"], id.UserID))
}

func TestNew_RejectsInvalidTables(t *testing.T) {
	exec := &countingExecutor{}

	_, err := registry.New([]registry.Entry{
		{Action: dealAction(), Executor: exec},
		{Action: dealAction(), Executor: exec},
	})
	assert.ErrorContains(t, err, "registered twice")

	_, err = registry.New([]registry.Entry{{Action: schema.Action{Name: " "}, Executor: exec}})
	assert.Error(t, err)

	_, err = registry.New([]registry.Entry{{Action: dealAction()}})
	assert.ErrorContains(t, err, "executor is required")

	assert.Panics(t, func() {
		registry.MustNew([]registry.Entry{{Action: dealAction()}})
	})
}

func TestResolve_IsStable(t *testing.T) {
	exec := &countingExecutor{}
	reg := registry.MustNew([]registry.Entry{{Action: dealAction(), Executor: exec}})

	first, ok := reg.Resolve("create_deal")
	require.True(t, ok)
	second, ok := reg.Resolve("create_deal")
	require.True(t, ok)
	assert.Same(t, first, second)

	_, ok = reg.Resolve("fly_to_moon")
	assert.False(t, ok)
	assert.Equal(t, []string{"create_deal"}, reg.Names())
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		name        string
		call        domain.ActionCall
		wantOK      bool
		wantText    string
		wantInvoked bool
	}{
		{
			name:        "valid arguments reach the executor",
			call:        domain.ActionCall{ID: "1", Name: "create_deal", Args: map[string]any{"title": "Acme", "amount": 1200.0}},
			wantOK:      true,
			wantText:    "deal Acme for u-1",
			wantInvoked: true,
		},
		{
			name:     "unknown action",
			call:     domain.ActionCall{ID: "2", Name: "fly_to_moon"},
			wantText: `unknown action "fly_to_moon"`,
		},
		{
			name:     "wrong type",
			call:     domain.ActionCall{ID: "3", Name: "create_deal", Args: map[string]any{"title": "Acme", "amount": "not-a-number"}},
			wantText: `field "amount"`,
		},
		{
			name:     "empty object collects every missing field",
			call:     domain.ActionCall{ID: "4", Name: "create_deal", Args: map[string]any{}},
			wantText: `field "amount": required; field "title": required`,
		},
		{
			name:     "nil args",
			call:     domain.ActionCall{ID: "5", Name: "create_deal"},
			wantText: "invalid arguments",
		},
		{
			name:        "extra fields are dropped",
			call:        domain.ActionCall{ID: "6", Name: "create_deal", Args: map[string]any{"title": "Acme", "amount": 5, "owner_id": "mallory"}},
			wantOK:      true,
			wantText:    "deal Acme",
			wantInvoked: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &countingExecutor{}
			reg := registry.MustNew([]registry.Entry{{Action: dealAction(), Executor: exec}})

			var outcome domain.ActionOutcome
			assert.NotPanics(t, func() {
				outcome = reg.Dispatch(context.Background(), tt.call, user)
			})

			assert.Equal(t, tt.wantOK, outcome.OK())
			assert.Contains(t, outcome.String(), tt.wantText)
			if tt.wantInvoked {
				assert.Equal(t, int32(1), exec.calls.Load())
				assert.NotContains(t, exec.last, "owner_id")
				assert.Equal(t, "lead", exec.last["stage"])
			} else {
				assert.Equal(t, int32(0), exec.calls.Load(), "executor must never observe invalid arguments")
			}
		})
	}
}

func TestDispatch_Timeout(t *testing.T) {
	slow := registry.ExecutorFunc(func(ctx context.Context, _ map[string]any, _ domain.Identity) domain.ActionOutcome {
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
		return domain.Succeeded("too late")
	})
	reg := registry.MustNew(
		[]registry.Entry{{Action: dealAction(), Executor: slow}},
		registry.WithActionTimeout(20*time.Millisecond),
	)

	outcome := reg.Dispatch(context.Background(), domain.ActionCall{
		Name: "create_deal", Args: map[string]any{"title": "x", "amount": 1},
	}, user)

	assert.False(t, outcome.OK())
	assert.Equal(t, "timed out", outcome.Reason())
}

func TestDispatch_TimeoutWaitsForExecutor(t *testing.T) {
	var finished atomic.Bool
	stubborn := registry.ExecutorFunc(func(context.Context, map[string]any, domain.Identity) domain.ActionOutcome {
		time.Sleep(60 * time.Millisecond)
		finished.Store(true)
		return domain.Succeeded("written")
	})
	reg := registry.MustNew(
		[]registry.Entry{{Action: dealAction(), Executor: stubborn}},
		registry.WithActionTimeout(10*time.Millisecond),
	)

	outcome := reg.Dispatch(context.Background(), domain.ActionCall{
		Name: "create_deal", Args: map[string]any{"title": "x", "amount": 1},
	}, user)

	assert.Equal(t, "timed out", outcome.Reason())
	assert.True(t, finished.Load(), "Dispatch returns only once the executor has")
}

func TestDispatch_CancelledBeforeStart(t *testing.T) {
	exec := &countingExecutor{}
	reg := registry.MustNew([]registry.Entry{{Action: dealAction(), Executor: exec}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := reg.Dispatch(ctx, domain.ActionCall{
		Name: "create_deal", Args: map[string]any{"title": "x", "amount": 1},
	}, user)

	assert.Equal(t, "cancelled", outcome.Reason())
	assert.Equal(t, int32(0), exec.calls.Load())
}

func TestDispatch_RecoversPanics(t *testing.T) {
	boom := registry.ExecutorFunc(func(context.Context, map[string]any, domain.Identity) domain.ActionOutcome {
		panic("store exploded")
	})
	reg := registry.MustNew([]registry.Entry{{Action: dealAction(), Executor: boom}})

	outcome := reg.Dispatch(context.Background(), domain.ActionCall{
		Name: "create_deal", Args: map[string]any{"title": "x", "amount": 1},
	}, user)

	assert.False(t, outcome.OK())
	assert.True(t, strings.HasPrefix(outcome.Reason(), "internal error"))
}

func TestDefinitions(t *testing.T) {
	reg := registry.MustNew([]registry.Entry{{Action: dealAction(), Executor: &countingExecutor{}}})

	defs := reg.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "create_deal", defs[0].Name)
	assert.Equal(t, "Create a sales deal", defs[0].Description)
	assert.Equal(t, "object", defs[0].Parameters["type"])

	args, err := reg.Validate("create_deal", map[string]any{"title": "x", "amount": 3})
	require.NoError(t, err)
	assert.Equal(t, 3.0, args["amount"])

	_, err = reg.Validate("nope", nil)
	assert.True(t, schema.HasKind(err, schema.KindUnknownAction))
}
