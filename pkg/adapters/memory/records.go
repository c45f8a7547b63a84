package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aretw0/tally/pkg/domain"
	"github.com/google/uuid"
)

// Records implements ports.RecordStore in memory.
// Safe for concurrent use.
type Records struct {
	mu    sync.RWMutex
	data  map[string]domain.Record
	order []string
	now   func() time.Time
}

// RecordsOption configures Records.
type RecordsOption func(*Records)

// WithClock overrides the clock used for CreatedAt.
func WithClock(now func() time.Time) RecordsOption {
	return func(r *Records) {
		r.now = now
	}
}

// NewRecords creates a new in-memory record store.
func NewRecords(opts ...RecordsOption) *Records {
	r := &Records{
		data: make(map[string]domain.Record),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create stores a new record owned by ownerID and returns its ID.
func (r *Records) Create(ctx context.Context, kind domain.EntityKind, fields map[string]any, ownerID string) (string, error) {
	if ownerID == "" {
		return "", errors.New("owner is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rec := domain.Record{
		ID:        uuid.NewString(),
		Kind:      kind,
		OwnerID:   ownerID,
		Fields:    copyMap(fields),
		CreatedAt: r.now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[rec.ID] = rec
	r.order = append(r.order, rec.ID)
	return rec.ID, nil
}

// Get retrieves a record by ID.
func (r *Records) Get(ctx context.Context, id string) (*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.data[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	rec.Fields = copyMap(rec.Fields)
	return &rec, nil
}

// List returns the records of ownerID in creation order, optionally filtered by kind.
func (r *Records) List(ctx context.Context, ownerID string, kind domain.EntityKind) ([]domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Record
	for _, id := range r.order {
		rec := r.data[id]
		if rec.OwnerID != ownerID || (kind != "" && rec.Kind != kind) {
			continue
		}
		rec.Fields = copyMap(rec.Fields)
		out = append(out, rec)
	}
	return out, nil
}

// Len returns the number of stored records.
func (r *Records) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}
