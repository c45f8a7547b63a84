package domain

import "time"

// EntityKind names a CRM entity the data store can create.
type EntityKind string

const (
	EntityTask    EntityKind = "task"
	EntityDeal    EntityKind = "deal"
	EntityExpense EntityKind = "expense"
)

// Record is a stored CRM entity. OwnerID is always the creating user.
type Record struct {
	ID        string         `json:"id"`
	Kind      EntityKind     `json:"kind"`
	OwnerID   string         `json:"owner_id"`
	Fields    map[string]any `json:"fields"`
	CreatedAt time.Time      `json:"created_at"`
}

// Transcript is a persisted conversation.
// Sealed carries the encrypted form of Messages when the store encrypts at rest.
type Transcript struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Messages  []Message `json:"messages"`
	Sealed    string    `json:"sealed,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
