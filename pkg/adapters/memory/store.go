package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/tally/pkg/domain"
)

// Store implements ports.TranscriptStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.Transcript
	mu   sync.RWMutex
}

// NewStore creates a new in-memory transcript store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Transcript),
	}
}

// Save persists the transcript in memory.
func (s *Store) Save(ctx context.Context, conversationID string, transcript *domain.Transcript) error {
	// Copy to ensure isolation, similar to serialization
	copied := copyTranscript(transcript)
	copied.ID = conversationID

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[conversationID] = copied
	return nil
}

// Load retrieves the transcript from memory.
func (s *Store) Load(ctx context.Context, conversationID string) (*domain.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.data[conversationID]
	if !ok {
		return nil, domain.ErrTranscriptNotFound
	}

	// Copy on read so callers can't mutate store state through the pointer
	return copyTranscript(t), nil
}

// Delete removes the transcript.
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, conversationID)
	return nil
}

// List returns the conversations owned by ownerID.
func (s *Store) List(ctx context.Context, ownerID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id, t := range s.data {
		if t.OwnerID == ownerID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func copyTranscript(t *domain.Transcript) *domain.Transcript {
	out := *t
	out.Messages = make([]domain.Message, len(t.Messages))
	for i, m := range t.Messages {
		out.Messages[i] = copyMessage(m)
	}
	return &out
}

func copyMessage(m domain.Message) domain.Message {
	if m.Calls != nil {
		calls := make([]domain.ActionCall, len(m.Calls))
		for i, c := range m.Calls {
			c.Args = copyMap(c.Args)
			calls[i] = c
		}
		m.Calls = calls
	}
	if m.Result != nil {
		r := *m.Result
		m.Result = &r
	}
	return m
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = copyMap(sub)
		} else {
			out[k] = v
		}
	}
	return out
}
