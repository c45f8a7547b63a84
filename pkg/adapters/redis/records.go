package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/ports"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// Records implements ports.RecordStore using Redis.
//
// A record is a hash (kind, owner, created_at, fields as JSON). Two ZSETs per
// owner, one across kinds and one per kind, index record IDs by creation time.
type Records struct {
	client *backend.Client
	prefix string
	now    func() time.Time
}

var _ ports.RecordStore = (*Records)(nil)

// RecordsOption configures Records.
type RecordsOption func(*Records)

// WithRecordsPrefix sets the key prefix.
func WithRecordsPrefix(prefix string) RecordsOption {
	return func(r *Records) {
		r.prefix = prefix
	}
}

// WithRecordsClock overrides the creation timestamp source.
func WithRecordsClock(now func() time.Time) RecordsOption {
	return func(r *Records) {
		r.now = now
	}
}

// NewRecords creates a Redis record store from an existing client.
func NewRecords(client *backend.Client, opts ...RecordsOption) *Records {
	r := &Records{
		client: client,
		prefix: DefaultPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Records) key(id string) string {
	return r.prefix + "record:" + id
}

func (r *Records) ownerIndex(ownerID string, kind domain.EntityKind) string {
	if kind == "" {
		return r.prefix + "records:" + ownerID
	}
	return r.prefix + "records:" + ownerID + ":" + string(kind)
}

// Create stores a new record and returns its ID.
func (r *Records) Create(ctx context.Context, kind domain.EntityKind, fields map[string]any, ownerID string) (string, error) {
	if ownerID == "" {
		return "", domain.ErrMissingIdentity
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to marshal fields: %w", err)
	}

	id := uuid.NewString()
	created := r.now().UTC()
	score := float64(created.UnixMilli())

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.key(id), map[string]any{
		"kind":       string(kind),
		"owner":      ownerID,
		"created_at": created.Format(time.RFC3339Nano),
		"fields":     data,
	})
	pipe.ZAdd(ctx, r.ownerIndex(ownerID, ""), backend.Z{Score: score, Member: id})
	pipe.ZAdd(ctx, r.ownerIndex(ownerID, kind), backend.Z{Score: score, Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to create %s in redis: %w", kind, err)
	}
	return id, nil
}

// Get retrieves a record by ID.
func (r *Records) Get(ctx context.Context, id string) (*domain.Record, error) {
	vals, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	if len(vals) == 0 {
		return nil, domain.ErrRecordNotFound
	}
	return decodeRecord(id, vals)
}

// List returns the owner's records oldest first, optionally filtered by kind.
func (r *Records) List(ctx context.Context, ownerID string, kind domain.EntityKind) ([]domain.Record, error) {
	ids, err := r.client.ZRange(ctx, r.ownerIndex(ownerID, kind), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*backend.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, backend.Nil) {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	out := make([]domain.Record, 0, len(ids))
	for i, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			continue
		}
		rec, err := decodeRecord(ids[i], vals)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

func decodeRecord(id string, vals map[string]string) (*domain.Record, error) {
	rec := &domain.Record{
		ID:      id,
		Kind:    domain.EntityKind(vals["kind"]),
		OwnerID: vals["owner"],
	}
	if ts := vals["created_at"]; ts != "" {
		created, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("record %s: bad created_at %s: %w", id, strconv.Quote(ts), err)
		}
		rec.CreatedAt = created
	}
	if err := json.Unmarshal([]byte(vals["fields"]), &rec.Fields); err != nil {
		return nil, fmt.Errorf("record %s: failed to unmarshal fields: %w", id, err)
	}
	return rec, nil
}
