package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/coursecert/internal/models"
)

// Sentinel errors for principal store operations
var (
	ErrPrincipalNotFound      = errors.New("principal not found")
	ErrPrincipalAlreadyExists = errors.New("principal already exists")
)

// PrincipalStore manages learner accounts.
type PrincipalStore interface {
	// Create creates a new principal.
	// Returns ErrPrincipalAlreadyExists if the ID or GitHub ID is taken.
	Create(ctx context.Context, principal *models.Principal) error

	// Get retrieves a principal by ID.
	Get(ctx context.Context, principalID uuid.UUID) (*models.Principal, error)

	// GetByGitHubID retrieves a principal by GitHub user ID (used during OAuth login).
	GetByGitHubID(ctx context.Context, githubID string) (*models.Principal, error)

	// Update updates the profile fields (name, login, email, avatar) of a principal.
	Update(ctx context.Context, principal *models.Principal) error
}
