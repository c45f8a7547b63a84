package container

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/tally"
	"github.com/aretw0/tally/internal/config"
	"github.com/aretw0/tally/internal/logging"
	"github.com/aretw0/tally/pkg/domain"
)

const script = `
steps:
  - calls:
      - name: create_task
        args: {title: Call Ana, description: "mobile 555-0101"}
  - text: Created the task.
`

var user = domain.Identity{UserID: "u-1", Name: "Ana"}

func scriptedConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o600))

	cfg := config.Default()
	cfg.Planner.Provider = config.ProviderScripted
	cfg.Planner.Script = path
	return cfg
}

func TestNew_Memory(t *testing.T) {
	c, err := New(scriptedConfig(t), WithLogger(logging.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NotNil(t, c.Sessions())
	assert.Equal(t, 5, c.Assistant().StepBudget())

	reply, err := c.Assistant().Respond(context.Background(), tally.Request{
		Message:  "remind me to call Ana",
		Identity: user,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TurnDone, reply.Status)
	assert.Equal(t, "Created the task.", reply.Text)
	require.NotEmpty(t, reply.ConversationID)

	tasks, err := c.Records().List(context.Background(), user.UserID, domain.EntityTask)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	ids, err := c.Sessions().List(context.Background(), user.UserID)
	require.NoError(t, err)
	assert.Equal(t, []string{reply.ConversationID}, ids)
}

func TestNew_WithoutPersistence(t *testing.T) {
	cfg := scriptedConfig(t)
	cfg.Transcripts.Persist = false

	c, err := New(cfg, WithLogger(logging.NewNop()))
	require.NoError(t, err)
	assert.Nil(t, c.Sessions())
	assert.Nil(t, c.Assistant().Sessions())
}

func TestNew_RedisEncryptedAndRedacted(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := scriptedConfig(t)
	cfg.Store.Driver = config.DriverRedis
	cfg.Store.Addr = mr.Addr()
	cfg.Store.Prefix = "it:"
	cfg.Transcripts.Redact = []string{"^description$"}
	cfg.Transcripts.EncryptionKey = base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))

	c, err := New(cfg, WithLogger(logging.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	reply, err := c.Assistant().Respond(ctx, tally.Request{Message: "call Ana", Identity: user}, nil)
	require.NoError(t, err)
	require.Equal(t, domain.TurnDone, reply.Status)

	raw, err := mr.Get("it:conversation:" + reply.ConversationID)
	require.NoError(t, err)
	assert.NotContains(t, raw, "Created the task.", "messages are encrypted at rest")

	transcript, err := c.Sessions().Load(ctx, reply.ConversationID, user.UserID)
	require.NoError(t, err)
	var masked bool
	for _, m := range transcript.Messages {
		for _, call := range m.Calls {
			if call.Args["description"] == "***" {
				masked = true
			}
		}
	}
	assert.True(t, masked, "redacted args are masked in the stored transcript")

	tasks, err := c.Records().List(ctx, user.UserID, domain.EntityTask)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestNew_Errors(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		cfg := config.Default()
		cfg.Engine.StepBudget = 0
		_, err := New(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid config")
	})

	t.Run("unreachable redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		cfg := scriptedConfig(t)
		cfg.Store.Driver = config.DriverRedis
		cfg.Store.Addr = addr
		_, err := New(cfg, WithLogger(logging.NewNop()))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connect to redis")
	})

	t.Run("missing script", func(t *testing.T) {
		cfg := config.Default()
		cfg.Planner.Provider = config.ProviderScripted
		cfg.Planner.Script = filepath.Join(t.TempDir(), "absent.yaml")
		_, err := New(cfg, WithLogger(logging.NewNop()))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "open planner script")
	})
}
