// Package sessions persists per-user conversation history.
package sessions

import (
	"context"

	"github.com/chatrelay/chatrelay/pkg/models"
)

// Store is the conversation history contract. Implementations must be safe
// for concurrent use. Concurrent turns for the same user are resolved
// last-write-wins; no per-user locking is assumed.
type Store interface {
	// GetMessages returns the stored history for a user. An unknown user
	// yields an empty slice and a nil error.
	GetMessages(ctx context.Context, userID string) ([]models.Message, error)

	// SetMessages replaces the stored history for a user. A nil slice is
	// rejected by implementations with a warning and no write; use Clear to
	// wipe history.
	SetMessages(ctx context.Context, userID string, messages []models.Message) error

	// Clear wipes the user's history, equivalent to storing an empty slice.
	Clear(ctx context.Context, userID string) error

	// DeleteUser removes the user's record entirely.
	DeleteUser(ctx context.Context, userID string) error

	// Close releases any underlying resources.
	Close() error
}
