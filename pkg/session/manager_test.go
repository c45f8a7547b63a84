package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/tally/pkg/adapters/memory"
	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/ports"
	"github.com/aretw0/tally/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SlowStore simulates latency to provoke lost updates if locking is missing.
type SlowStore struct {
	*memory.Store
}

func (s SlowStore) Load(ctx context.Context, id string) (*domain.Transcript, error) {
	time.Sleep(5 * time.Millisecond)
	return s.Store.Load(ctx, id)
}

func (s SlowStore) Save(ctx context.Context, id string, t *domain.Transcript) error {
	time.Sleep(5 * time.Millisecond)
	return s.Store.Save(ctx, id, t)
}

func TestManager_UpdateSerialisesTurns(t *testing.T) {
	manager := session.NewManager(SlowStore{memory.NewStore()})
	ctx := context.Background()

	const writers = 10
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := manager.Update(ctx, "conv", "u1", func(_ context.Context, tr *domain.Transcript) error {
				tr.Messages = append(tr.Messages, domain.NewUserText("hi"))
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	tr, err := manager.Load(ctx, "conv", "u1")
	require.NoError(t, err)
	assert.Len(t, tr.Messages, writers, "every read-modify-write must see the previous one")
}

func TestManager_LoadOrStart(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	manager := session.NewManager(memory.NewStore(), session.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	tr, err := manager.LoadOrStart(ctx, "new", "u1")
	require.NoError(t, err)
	assert.Equal(t, "new", tr.ID)
	assert.Equal(t, "u1", tr.OwnerID)
	assert.Empty(t, tr.Messages)

	// Not persisted until saved.
	_, err = manager.Load(ctx, "new", "u1")
	assert.ErrorIs(t, err, domain.ErrTranscriptNotFound)

	require.NoError(t, manager.Save(ctx, tr))
	ids, err := manager.List(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, ids)
}

func TestManager_OwnerIsolation(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()
	require.NoError(t, manager.Save(ctx, &domain.Transcript{ID: "c1", OwnerID: "alice"}))

	_, err := manager.Load(ctx, "c1", "bob")
	assert.ErrorIs(t, err, session.ErrNotOwner)

	err = manager.Update(ctx, "c1", "bob", func(context.Context, *domain.Transcript) error { return nil })
	assert.ErrorIs(t, err, session.ErrNotOwner)

	assert.ErrorIs(t, manager.Delete(ctx, "c1", "bob"), session.ErrNotOwner)
	require.NoError(t, manager.Delete(ctx, "c1", "alice"))
	_, err = manager.Load(ctx, "c1", "alice")
	assert.ErrorIs(t, err, domain.ErrTranscriptNotFound)
}

type recordingLocker struct {
	mu       sync.Mutex
	locked   []string
	released int
}

func (l *recordingLocker) Lock(_ context.Context, key string, _ time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	l.locked = append(l.locked, key)
	l.mu.Unlock()
	return func(context.Context) error {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
		return nil
	}, nil
}

func TestManager_DistributedLockReleasedAfterCancel(t *testing.T) {
	locker := &recordingLocker{}
	manager := session.NewManager(memory.NewStore(), session.WithLocker(locker))
	ctx, cancel := context.WithCancel(context.Background())

	err := manager.WithLock(ctx, "conv", func(context.Context) error {
		cancel()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"conv"}, locker.locked)
	assert.Equal(t, 1, locker.released)
}
