package ports

import (
	"context"

	"github.com/aretw0/tally/pkg/domain"
)

// RecordCreator is the narrow data-store capability action executors use.
// Every record is attributed to ownerID.
type RecordCreator interface {
	Create(ctx context.Context, kind domain.EntityKind, fields map[string]any, ownerID string) (string, error)
}

// RecordStore extends RecordCreator with the read side used by inspection surfaces.
// The orchestration loop never reads from the store.
type RecordStore interface {
	RecordCreator

	// Get retrieves a record by ID.
	// Returns domain.ErrRecordNotFound if the record does not exist.
	Get(ctx context.Context, id string) (*domain.Record, error)

	// List returns the records of one owner, oldest first. An empty kind lists every kind.
	List(ctx context.Context, ownerID string, kind domain.EntityKind) ([]domain.Record, error)
}

// TranscriptStore persists conversations between requests.
type TranscriptStore interface {
	// Save persists the transcript for a given conversation ID.
	Save(ctx context.Context, conversationID string, transcript *domain.Transcript) error

	// Load retrieves the transcript for a given conversation ID.
	// Returns domain.ErrTranscriptNotFound if the conversation does not exist.
	Load(ctx context.Context, conversationID string) (*domain.Transcript, error)

	// Delete removes the transcript for a given conversation ID.
	Delete(ctx context.Context, conversationID string) error

	// List returns the conversation IDs owned by ownerID.
	List(ctx context.Context, ownerID string) ([]string, error)
}
