package storage

import "time"

// Turn statuses owned by the store. Completed turns carry the answer status instead.
const (
	TurnPending    = "pending"
	TurnSuperseded = "superseded"
)

// Turn is one question and its answer within a chat session.
type Turn struct {
	ID          string     // UUID
	SessionID   string     // Foreign key to sessions.id
	Question    string     // User's question
	Answer      string     // Empty until completed
	Status      string     // pending, superseded, or the answer status
	CreatedAt   time.Time  // When the turn began
	CompletedAt *time.Time // Nil while pending or superseded
}
