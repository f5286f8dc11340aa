package models

import (
	"time"

	"github.com/google/uuid"
)

// Principal is a learner account. Accounts are created on first GitHub login.
type Principal struct {
	PrincipalID uuid.UUID // UUIDv7
	Name        string    // Display name, may be empty

	GitHubID    *string
	GitHubLogin *string
	Email       *string
	AvatarURL   *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
