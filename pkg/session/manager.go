package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/tally/internal/logging"
	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 2 * time.Minute

// ErrNotOwner is returned when a conversation belongs to another user.
var ErrNotOwner = errors.New("conversation belongs to another user")

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates conversation access, ensuring safe concurrent operations.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.TranscriptStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock overrides the clock used to stamp new transcripts.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a new Manager with the given transcript store.
func NewManager(store ports.TranscriptStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(id) after unlocking.
func (m *Manager) acquire(id string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, id)
	}
}

// Load retrieves a conversation owned by ownerID.
func (m *Manager) Load(ctx context.Context, id, ownerID string) (*domain.Transcript, error) {
	var transcript *domain.Transcript
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		var err error
		transcript, err = m.load(ctx, id, ownerID)
		return err
	})
	return transcript, err
}

// LoadOrStart loads a conversation, or returns a fresh empty one when none exists.
// The fresh transcript is not persisted until Save.
func (m *Manager) LoadOrStart(ctx context.Context, id, ownerID string) (*domain.Transcript, error) {
	var transcript *domain.Transcript
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		var err error
		transcript, err = m.loadOrStart(ctx, id, ownerID)
		return err
	})
	return transcript, err
}

// Save persists the transcript, stamping UpdatedAt.
func (m *Manager) Save(ctx context.Context, transcript *domain.Transcript) error {
	return m.WithLock(ctx, transcript.ID, func(ctx context.Context) error {
		return m.save(ctx, transcript)
	})
}

// Delete removes a conversation owned by ownerID.
func (m *Manager) Delete(ctx context.Context, id, ownerID string) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		if _, err := m.load(ctx, id, ownerID); err != nil {
			return err
		}
		return m.store.Delete(ctx, id)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context, ownerID string) ([]string, error) {
	return m.store.List(ctx, ownerID)
}

// Store returns the underlying transcript store.
func (m *Manager) Store() ports.TranscriptStore {
	return m.store
}

// Update runs fn on the conversation while holding its lock and saves the
// result when fn succeeds. This is the read-modify-write path of one turn.
func (m *Manager) Update(ctx context.Context, id, ownerID string, fn func(ctx context.Context, t *domain.Transcript) error) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		transcript, err := m.loadOrStart(ctx, id, ownerID)
		if err != nil {
			return err
		}
		if err := fn(ctx, transcript); err != nil {
			return err
		}
		// Persist even if ctx was cancelled during fn: its side effects are committed.
		return m.save(context.WithoutCancel(ctx), transcript)
	})
}

// WithLock executes a function while holding the lock for the conversation.
func (m *Manager) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	entry := m.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(id)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, id, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// Release even when the request was cancelled.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"conversation_id", id,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

func (m *Manager) load(ctx context.Context, id, ownerID string) (*domain.Transcript, error) {
	transcript, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if transcript.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	return transcript, nil
}

func (m *Manager) loadOrStart(ctx context.Context, id, ownerID string) (*domain.Transcript, error) {
	transcript, err := m.load(ctx, id, ownerID)
	if err == nil {
		return transcript, nil
	}
	if !errors.Is(err, domain.ErrTranscriptNotFound) {
		return nil, fmt.Errorf("failed to check conversation existence: %w", err)
	}
	return &domain.Transcript{ID: id, OwnerID: ownerID, UpdatedAt: m.now().UTC()}, nil
}

func (m *Manager) save(ctx context.Context, transcript *domain.Transcript) error {
	transcript.UpdatedAt = m.now().UTC()
	return m.store.Save(ctx, transcript.ID, transcript)
}
