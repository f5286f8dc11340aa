package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/coursecert/internal/models"
	"github.com/wolfeidau/coursecert/internal/store"
)

// PrincipalStore implements store.PrincipalStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type PrincipalStore struct {
	mu sync.RWMutex

	principals         map[uuid.UUID]*models.Principal // principal_id -> Principal
	principalsByGitHub map[string]uuid.UUID            // github_id -> principal_id
}

// NewPrincipalStore creates a new in-memory principal store.
func NewPrincipalStore() *PrincipalStore {
	return &PrincipalStore{
		principals:         make(map[uuid.UUID]*models.Principal),
		principalsByGitHub: make(map[string]uuid.UUID),
	}
}

// Create creates a new principal in memory.
func (s *PrincipalStore) Create(ctx context.Context, principal *models.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.principals[principal.PrincipalID]; exists {
		return store.ErrPrincipalAlreadyExists
	}

	if principal.GitHubID != nil {
		if _, exists := s.principalsByGitHub[*principal.GitHubID]; exists {
			return store.ErrPrincipalAlreadyExists
		}
	}

	clone := clonePrincipal(principal)
	s.principals[clone.PrincipalID] = clone
	if clone.GitHubID != nil {
		s.principalsByGitHub[*clone.GitHubID] = clone.PrincipalID
	}

	return nil
}

// Get retrieves a principal by ID.
func (s *PrincipalStore) Get(ctx context.Context, principalID uuid.UUID) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	principal, exists := s.principals[principalID]
	if !exists {
		return nil, store.ErrPrincipalNotFound
	}

	return clonePrincipal(principal), nil
}

// GetByGitHubID retrieves a principal by GitHub user ID.
func (s *PrincipalStore) GetByGitHubID(ctx context.Context, githubID string) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.principalsByGitHub[githubID]
	if !exists {
		return nil, store.ErrPrincipalNotFound
	}

	return clonePrincipal(s.principals[id]), nil
}

// Update replaces the profile fields of an existing principal.
func (s *PrincipalStore) Update(ctx context.Context, principal *models.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.principals[principal.PrincipalID]
	if !exists {
		return store.ErrPrincipalNotFound
	}

	updated := clonePrincipal(principal)
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now()

	if existing.GitHubID != nil {
		delete(s.principalsByGitHub, *existing.GitHubID)
	}
	if updated.GitHubID != nil {
		s.principalsByGitHub[*updated.GitHubID] = updated.PrincipalID
	}
	s.principals[updated.PrincipalID] = updated

	return nil
}

func clonePrincipal(p *models.Principal) *models.Principal {
	clone := *p
	clone.GitHubID = cloneString(p.GitHubID)
	clone.GitHubLogin = cloneString(p.GitHubLogin)
	clone.Email = cloneString(p.Email)
	clone.AvatarURL = cloneString(p.AvatarURL)
	return &clone
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
