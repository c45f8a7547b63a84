package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/tally/pkg/adapters/redis"
	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	ports.RunTranscriptStoreContract(t, redis.NewFromClient(client))
}

func TestRedisRecords_Contract(t *testing.T) {
	_, client := newClient(t)
	ports.RunRecordStoreContract(t, redis.NewRecords(client))
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)

	now := time.Now()
	clock := func() time.Time { return now }
	store := redis.NewFromClient(client, redis.WithTTL(time.Second), redis.WithClock(clock))
	ctx := context.Background()

	transcript := &domain.Transcript{
		ID:       "conv-ttl",
		OwnerID:  "u1",
		Messages: []domain.Message{domain.NewUserText("hi")},
	}
	require.NoError(t, store.Save(ctx, "conv-ttl", transcript))

	ids, err := store.List(ctx, "u1")
	require.NoError(t, err)
	assert.Contains(t, ids, "conv-ttl")

	// Expire the key in miniredis and move the index clock past the TTL.
	mr.FastForward(2 * time.Second)
	now = now.Add(2 * time.Second)

	_, err = store.Load(ctx, "conv-ttl")
	assert.ErrorIs(t, err, domain.ErrTranscriptNotFound)

	ids, err = store.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRedisStore_PrefixAndDeleteUnknown(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithPrefix("test:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "c1", &domain.Transcript{ID: "c1", OwnerID: "u1"}))
	assert.True(t, mr.Exists("test:conversation:c1"))

	assert.NoError(t, store.Delete(ctx, "missing"))
	require.NoError(t, store.Delete(ctx, "c1"))
	assert.False(t, mr.Exists("test:conversation:c1"))
}

func TestRedisRecords_Layout(t *testing.T) {
	mr, client := newClient(t)
	created := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	records := redis.NewRecords(client, redis.WithRecordsClock(func() time.Time { return created }))
	ctx := context.Background()

	id, err := records.Create(ctx, domain.EntityDeal, map[string]any{"title": "Acme", "amount": 1200.0}, "u1")
	require.NoError(t, err)

	assert.Equal(t, "deal", mr.HGet("tally:record:"+id, "kind"))
	assert.Equal(t, "u1", mr.HGet("tally:record:"+id, "owner"))
	members, err := mr.ZMembers("tally:records:u1:deal")
	require.NoError(t, err)
	assert.Equal(t, []string{id}, members)

	rec, err := records.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, created.Equal(rec.CreatedAt))
	assert.Equal(t, 1200.0, rec.Fields["amount"])

	tasks, err := records.List(ctx, "u1", domain.EntityTask)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
