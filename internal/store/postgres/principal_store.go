package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/coursecert/internal/models"
	"github.com/wolfeidau/coursecert/internal/store"
)

const principalColumns = `principal_id, name, github_id, github_login, email, avatar_url, created_at, updated_at`

// PrincipalStore implements store.PrincipalStore using PostgreSQL.
type PrincipalStore struct {
	pool *pgxpool.Pool
}

// NewPrincipalStore creates a new PostgreSQL-backed principal store.
// It shares the connection pool with other stores.
func NewPrincipalStore(pool *pgxpool.Pool) *PrincipalStore {
	return &PrincipalStore{
		pool: pool,
	}
}

// Create creates a new principal in the database.
func (s *PrincipalStore) Create(ctx context.Context, principal *models.Principal) error {
	query := `INSERT INTO principals (` + principalColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		principal.PrincipalID,
		principal.Name,
		principal.GitHubID,
		principal.GitHubLogin,
		principal.Email,
		principal.AvatarURL,
		principal.CreatedAt,
		principal.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrPrincipalAlreadyExists
		}
		return fmt.Errorf("failed to create principal: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("principal_id", principal.PrincipalID.String()).
		Msg("Created principal")

	return nil
}

// Get retrieves a principal by ID.
func (s *PrincipalStore) Get(ctx context.Context, principalID uuid.UUID) (*models.Principal, error) {
	return s.getOne(ctx, `SELECT `+principalColumns+` FROM principals WHERE principal_id = $1`, principalID)
}

// GetByGitHubID retrieves a principal by GitHub user ID.
func (s *PrincipalStore) GetByGitHubID(ctx context.Context, githubID string) (*models.Principal, error) {
	return s.getOne(ctx, `SELECT `+principalColumns+` FROM principals WHERE github_id = $1`, githubID)
}

// Update replaces the profile fields of an existing principal.
func (s *PrincipalStore) Update(ctx context.Context, principal *models.Principal) error {
	principal.UpdatedAt = time.Now()

	query := `
		UPDATE principals SET
			name = $2,
			github_id = $3,
			github_login = $4,
			email = $5,
			avatar_url = $6,
			updated_at = $7
		WHERE principal_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		principal.PrincipalID,
		principal.Name,
		principal.GitHubID,
		principal.GitHubLogin,
		principal.Email,
		principal.AvatarURL,
		principal.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update principal: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrPrincipalNotFound
	}

	return nil
}

func (s *PrincipalStore) getOne(ctx context.Context, query string, arg any) (*models.Principal, error) {
	var p models.Principal
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&p.PrincipalID,
		&p.Name,
		&p.GitHubID,
		&p.GitHubLogin,
		&p.Email,
		&p.AvatarURL,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to get principal: %w", mapPostgresError(err))
	}

	return &p, nil
}
