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

const certificateColumns = `cert_id, user_id, full_name, course_key, issued_at, storage_path, updated_at`

// CertificateStore implements store.CertificateStore using PostgreSQL.
type CertificateStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewCertificateStore creates a new PostgreSQL-backed certificate store.
func NewCertificateStore(pool *pgxpool.Pool) *CertificateStore {
	return &CertificateStore{
		pool: pool,
		now:  time.Now,
	}
}

// Upsert inserts the certificate or merges it into the existing row.
// The owner check is part of the conflict clause, so a row owned by another
// account is left untouched and no row is returned.
func (s *CertificateStore) Upsert(ctx context.Context, cert *models.Certificate, merge store.Merge) (*models.Certificate, error) {
	query := `
		INSERT INTO certificates (` + certificateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (cert_id) DO UPDATE SET
			full_name    = CASE WHEN $8::boolean THEN EXCLUDED.full_name ELSE certificates.full_name END,
			course_key   = CASE WHEN $9::boolean THEN EXCLUDED.course_key ELSE certificates.course_key END,
			storage_path = COALESCE(EXCLUDED.storage_path, certificates.storage_path),
			updated_at   = EXCLUDED.updated_at
		WHERE certificates.user_id = EXCLUDED.user_id
		RETURNING ` + certificateColumns

	now := s.now().UTC()
	issuedAt := cert.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = now
	}

	rows, err := s.pool.Query(ctx, query,
		cert.CertID,
		cert.UserID,
		cert.FullName,
		cert.CourseKey,
		issuedAt,
		cert.StoragePath,
		now,
		merge.FullName,
		merge.CourseKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert certificate: %w", mapPostgresError(err))
	}

	stored, err := pgx.CollectExactlyOneRow(rows, scanCertificate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrCertificateOwnerMismatch
		}
		return nil, fmt.Errorf("failed to upsert certificate: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("cert_id", stored.CertID).
		Str("user_id", stored.UserID.String()).
		Bool("has_artifact", stored.HasArtifact()).
		Msg("Upserted certificate")

	return stored, nil
}

// Get retrieves a certificate by ID.
func (s *CertificateStore) Get(ctx context.Context, certID string) (*models.Certificate, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE cert_id = $1`, certID)
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate: %w", mapPostgresError(err))
	}

	cert, err := pgx.CollectExactlyOneRow(rows, scanCertificate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrCertificateNotFound
		}
		return nil, fmt.Errorf("failed to get certificate: %w", mapPostgresError(err))
	}

	return cert, nil
}

// ListByUser returns certificates owned by userID, newest first.
func (s *CertificateStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Certificate, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	query := `
		SELECT ` + certificateColumns + `
		FROM certificates
		WHERE user_id = $1
		ORDER BY issued_at DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", mapPostgresError(err))
	}

	certs, err := pgx.CollectRows(rows, scanCertificate)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", mapPostgresError(err))
	}

	return certs, nil
}

func scanCertificate(row pgx.CollectableRow) (*models.Certificate, error) {
	var c models.Certificate
	err := row.Scan(
		&c.CertID,
		&c.UserID,
		&c.FullName,
		&c.CourseKey,
		&c.IssuedAt,
		&c.StoragePath,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.IssuedAt = c.IssuedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}
