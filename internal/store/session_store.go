package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/coursecert/internal/models"
)

// Sentinel errors for session store operations
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

// SessionStore defines the interface for server-side browser sessions.
type SessionStore interface {
	// Create stores a new session.
	Create(ctx context.Context, session *models.Session) error

	// Get retrieves a session by ID.
	// Returns ErrSessionNotFound or ErrSessionExpired.
	Get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)

	// Delete removes a session (logout).
	Delete(ctx context.Context, sessionID uuid.UUID) error

	// DeleteExpired removes all expired sessions and returns the count.
	DeleteExpired(ctx context.Context) (int, error)
}
