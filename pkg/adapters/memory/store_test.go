package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/tally/pkg/adapters/memory"
	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunTranscriptStoreContract(t, store)
}

func TestMemoryRecords_Contract(t *testing.T) {
	ports.RunRecordStoreContract(t, memory.NewRecords())
}

func TestMemoryStore_Isolation(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	tr := &domain.Transcript{
		OwnerID: "u1",
		Messages: []domain.Message{
			domain.NewActionRequest([]domain.ActionCall{{ID: "c1", Name: "create_task", Args: map[string]any{"title": "a"}}}, ""),
		},
	}
	require.NoError(t, store.Save(ctx, "conv", tr))

	// Mutating the caller's copy must not leak into the store.
	tr.Messages[0].Calls[0].Args["title"] = "mutated"

	loaded, err := store.Load(ctx, "conv")
	require.NoError(t, err)
	assert.Equal(t, "conv", loaded.ID)
	assert.Equal(t, "a", loaded.Messages[0].Calls[0].Args["title"])
}

func TestMemoryRecords_CancelledContext(t *testing.T) {
	records := memory.NewRecords()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := records.Create(ctx, domain.EntityTask, map[string]any{"title": "x"}, "u1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, records.Len())
}
