package ports

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/tally/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunRecordStoreContract runs a suite of tests to verify that a RecordStore implementation
// adheres to the defined interface contract.
func RunRecordStoreContract(t *testing.T, store RecordStore) {
	ctx := context.Background()
	owner := "contract-owner-" + time.Now().Format("20060102150405.000")

	t.Run("Create and Get", func(t *testing.T) {
		id, err := store.Create(ctx, domain.EntityTask, map[string]any{"title": "follow up", "priority": 1}, owner)
		require.NoError(t, err, "Create should not return error")
		require.NotEmpty(t, id)

		rec, err := store.Get(ctx, id)
		require.NoError(t, err, "Get should not return error")
		assert.Equal(t, id, rec.ID)
		assert.Equal(t, domain.EntityTask, rec.Kind)
		assert.Equal(t, owner, rec.OwnerID)
		assert.Equal(t, "follow up", rec.Fields["title"])
		// JSON-backed stores return numbers as float64; only check presence.
		assert.NotNil(t, rec.Fields["priority"])
		assert.False(t, rec.CreatedAt.IsZero())
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, "non-existent-"+owner)
		assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	})

	t.Run("Owner is required", func(t *testing.T) {
		_, err := store.Create(ctx, domain.EntityDeal, map[string]any{"title": "x"}, "")
		assert.Error(t, err)
	})

	t.Run("List is scoped by owner and kind", func(t *testing.T) {
		other := owner + "-other"
		_, err := store.Create(ctx, domain.EntityExpense, map[string]any{"amount": 42.0}, owner)
		require.NoError(t, err)
		_, err = store.Create(ctx, domain.EntityExpense, map[string]any{"amount": 7.0}, other)
		require.NoError(t, err)

		expenses, err := store.List(ctx, owner, domain.EntityExpense)
		require.NoError(t, err)
		require.Len(t, expenses, 1)
		assert.Equal(t, owner, expenses[0].OwnerID)

		all, err := store.List(ctx, owner, "")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(all), 2)
		for _, r := range all {
			assert.Equal(t, owner, r.OwnerID)
		}
	})

	t.Run("Concurrent creates get distinct IDs", func(t *testing.T) {
		const n = 16
		ids := make(chan string, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id, err := store.Create(ctx, domain.EntityTask, map[string]any{"title": fmt.Sprintf("t%d", i)}, owner)
				assert.NoError(t, err)
				ids <- id
			}(i)
		}
		wg.Wait()
		close(ids)

		seen := map[string]bool{}
		for id := range ids {
			assert.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
		}
	})
}

// RunTranscriptStoreContract runs a suite of tests to verify that a TranscriptStore
// implementation adheres to the defined interface contract.
func RunTranscriptStoreContract(t *testing.T, store TranscriptStore) {
	ctx := context.Background()
	convID := "contract-test-conversation-" + time.Now().Format("20060102150405")
	owner := "owner-" + convID

	newTranscript := func(id string) *domain.Transcript {
		return &domain.Transcript{
			ID:      id,
			OwnerID: owner,
			Messages: []domain.Message{
				domain.NewUserText("log a coffee"),
				domain.NewActionRequest([]domain.ActionCall{{ID: "c1", Name: "log_expense", Args: map[string]any{"amount": 4.5}}}, ""),
				domain.NewActionResult(domain.ActionResult{CallID: "c1", Name: "log_expense", Outcome: domain.Succeeded("logged")}),
				domain.NewAssistantText("Done."),
			},
			UpdatedAt: time.Now().UTC().Truncate(time.Second),
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		tr := newTranscript(convID)
		require.NoError(t, store.Save(ctx, convID, tr), "Save should not return error")

		loaded, err := store.Load(ctx, convID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, owner, loaded.OwnerID)
		require.Len(t, loaded.Messages, 4)
		assert.Equal(t, domain.KindActionResult, loaded.Messages[2].Kind)
		assert.True(t, loaded.Messages[2].Result.Outcome.OK())
		assert.Equal(t, "Done.", loaded.Messages[3].Text)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+convID)
		assert.ErrorIs(t, err, domain.ErrTranscriptNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, convID, newTranscript(convID)))

		require.NoError(t, store.Delete(ctx, convID), "Delete should not return error")

		_, err := store.Load(ctx, convID)
		assert.ErrorIs(t, err, domain.ErrTranscriptNotFound, "Load after Delete should return ErrTranscriptNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := convID + "-1"
		id2 := convID + "-2"
		_ = store.Save(ctx, id1, newTranscript(id1))
		_ = store.Save(ctx, id2, newTranscript(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx, owner)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)

		others, err := store.List(ctx, "someone-else")
		require.NoError(t, err)
		assert.NotContains(t, others, id1)
	})
}
