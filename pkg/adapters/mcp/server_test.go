package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/aretw0/tally"
	"github.com/aretw0/tally/pkg/actions"
	httpadapter "github.com/aretw0/tally/pkg/adapters/http"
	"github.com/aretw0/tally/pkg/adapters/memory"
	"github.com/aretw0/tally/pkg/adapters/scripted"
	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var frank = domain.Identity{UserID: "u-frank"}

func newServer(t *testing.T, planner *scripted.Planner, opts ...Option) (*Server, *memory.Records) {
	t.Helper()
	records := memory.NewRecords()
	assistant, err := tally.New(planner, records)
	require.NoError(t, err)
	s, err := NewServer(assistant, opts...)
	require.NoError(t, err)
	return s, records
}

// call sends one JSON-RPC request and returns its "result" object.
func call(t *testing.T, ctx context.Context, s *Server, method string, params any) map[string]any {
	t.Helper()
	p, err := json.Marshal(params)
	require.NoError(t, err)
	msg := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":%q,"params":%s}`, method, p)

	resp := s.MCPServer().HandleMessage(ctx, json.RawMessage(msg))
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var out struct {
		Result map[string]any `json:"result"`
		Error  any            `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Nil(t, out.Error, string(raw))
	return out.Result
}

func TestListTools(t *testing.T) {
	s, _ := newServer(t, scripted.New(nil), WithIdentity(frank))

	result := call(t, context.Background(), s, "tools/list", map[string]any{})
	var names []string
	for _, tool := range result["tools"].([]any) {
		names = append(names, tool.(map[string]any)["name"].(string))
	}
	assert.ElementsMatch(t, []string{actions.NameCreateTask, actions.NameCreateDeal, actions.NameLogExpense, "chat"}, names)
}

func TestActionTool(t *testing.T) {
	s, records := newServer(t, scripted.New(nil), WithIdentity(frank))

	result := call(t, context.Background(), s, "tools/call", map[string]any{
		"name":      actions.NameCreateDeal,
		"arguments": map[string]any{"title": "Acme renewal", "amount": 1200},
	})
	assert.NotEqual(t, true, result["isError"])
	deals, err := records.List(context.Background(), frank.UserID, domain.EntityDeal)
	require.NoError(t, err)
	require.Len(t, deals, 1)
	assert.Equal(t, "Acme renewal", deals[0].Fields["title"])

	result = call(t, context.Background(), s, "tools/call", map[string]any{
		"name":      actions.NameLogExpense,
		"arguments": map[string]any{"amount": 0, "description": "nothing"},
	})
	assert.Equal(t, true, result["isError"])
	assert.Equal(t, 1, records.Len())
}

func TestActionTool_UsesTransportIdentity(t *testing.T) {
	s, records := newServer(t, scripted.New(nil))

	result := call(t, context.Background(), s, "tools/call", map[string]any{
		"name":      actions.NameCreateTask,
		"arguments": map[string]any{"title": "anonymous"},
	})
	assert.Equal(t, true, result["isError"], "no identity, no side effect")
	assert.Equal(t, 0, records.Len())

	ctx := httpadapter.WithIdentity(context.Background(), domain.Identity{UserID: "u-grace"})
	call(t, ctx, s, "tools/call", map[string]any{
		"name":      actions.NameCreateTask,
		"arguments": map[string]any{"title": "from SSE"},
	})
	tasks, err := records.List(context.Background(), "u-grace", domain.EntityTask)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestChatTool(t *testing.T) {
	planner := scripted.New([]scripted.Step{
		scripted.Reply(domain.RequestActions([]domain.ActionCall{
			{ID: "c1", Name: actions.NameCreateTask, Args: map[string]any{"title": "call Acme"}},
		}, "")),
		scripted.Reply(domain.Final("Task created.")),
	})
	s, records := newServer(t, planner, WithIdentity(frank))

	result := call(t, context.Background(), s, "tools/call", map[string]any{
		"name":      "chat",
		"arguments": map[string]any{"message": "remind me to call Acme"},
	})
	assert.NotEqual(t, true, result["isError"])
	structured := result["structuredContent"].(map[string]any)
	assert.Equal(t, "done", structured["status"])
	assert.Equal(t, "Task created.", structured["text"])
	assert.Equal(t, float64(1), structured["steps"])
	assert.Equal(t, 1, records.Len())
}

func TestChatTool_RejectsEmptyMessage(t *testing.T) {
	s, _ := newServer(t, scripted.New(nil), WithIdentity(frank))

	result := call(t, context.Background(), s, "tools/call", map[string]any{
		"name":      "chat",
		"arguments": map[string]any{"message": " "},
	})
	assert.Equal(t, true, result["isError"])
}

func TestChatTool_History(t *testing.T) {
	planner := scripted.New([]scripted.Step{scripted.Reply(domain.Final("Noted."))}, scripted.WithRepeatLast())
	s, _ := newServer(t, planner, WithIdentity(frank))

	result := call(t, context.Background(), s, "tools/call", map[string]any{
		"name": "chat",
		"arguments": map[string]any{
			"message": "and now?",
			"history": []map[string]any{{"role": "user", "text": "earlier\x00\x1b"}},
		},
	})
	assert.NotEqual(t, true, result["isError"])
	require.Len(t, planner.Requests(), 1)
	msgs := planner.Requests()[0].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "earlier", msgs[0].Text)

	result = call(t, context.Background(), s, "tools/call", map[string]any{
		"name": "chat",
		"arguments": map[string]any{
			"message": "and now?",
			"history": []map[string]any{{"role": "user", "text": strings.Repeat("x", runner.DefaultMaxInputSize+1)}},
		},
	})
	assert.Equal(t, true, result["isError"])
	assert.Equal(t, 1, planner.Calls())
}

func TestActionsResource(t *testing.T) {
	s, _ := newServer(t, scripted.New(nil), WithIdentity(frank))

	result := call(t, context.Background(), s, "resources/read", map[string]any{"uri": ActionsURI})
	contents := result["contents"].([]any)
	require.Len(t, contents, 1)
	var defs []domain.ActionDefinition
	require.NoError(t, json.Unmarshal([]byte(contents[0].(map[string]any)["text"].(string)), &defs))
	assert.Len(t, defs, 3)
}
