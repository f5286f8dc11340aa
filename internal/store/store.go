package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/coursecert/internal/models"
)

// Sentinel errors for certificate store operations
var (
	ErrCertificateNotFound = errors.New("certificate not found")

	// ErrCertificateOwnerMismatch is returned when an upsert targets a
	// certificate that already belongs to a different account.
	ErrCertificateOwnerMismatch = errors.New("certificate is owned by another account")

	// ErrThrottled is returned when the backing service rejects a request due to rate limits.
	ErrThrottled = errors.New("request throttled")
)

// Merge selects the fields an update overwrites. Unselected fields keep
// their stored value and the certificate's value only applies on insert.
type Merge struct {
	FullName  bool
	CourseKey bool
}

// MergeAll overwrites every mutable field on update.
var MergeAll = Merge{FullName: true, CourseKey: true}

// CertificateStore defines the interface for certificate record storage.
type CertificateStore interface {
	// Upsert inserts the certificate or merges it into the existing record with
	// the same CertID. On update FullName and CourseKey are overwritten only
	// when selected by merge, StoragePath is only written when non-nil, and
	// IssuedAt keeps its original value. The write is atomic and conditional
	// on UserID matching the stored owner; a mismatch returns
	// ErrCertificateOwnerMismatch.
	// The stored record is returned.
	Upsert(ctx context.Context, cert *models.Certificate, merge Merge) (*models.Certificate, error)

	// Get retrieves a certificate by ID.
	// Returns ErrCertificateNotFound if no record exists.
	Get(ctx context.Context, certID string) (*models.Certificate, error)

	// ListByUser returns the certificates owned by an account, newest first.
	// A limit of 0 applies the default of 100.
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Certificate, error)
}

// DefaultListLimit caps ListByUser results when no limit is requested.
const DefaultListLimit = 100
