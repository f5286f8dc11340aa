package models

import (
	"time"

	"github.com/google/uuid"
)

// Certificate is the persisted record of one issued course certificate.
// CertID is minted by the caller and is the only public lookup key.
type Certificate struct {
	CertID    string    // "<course-key>-<token>", immutable
	UserID    uuid.UUID // owning account, never exposed by verification
	FullName  string    // name as printed on the document
	CourseKey string

	IssuedAt  time.Time // set on first registration only
	UpdatedAt time.Time

	// StoragePath points at the uploaded artifact in the certificate bucket.
	// Nil when the document was only downloaded.
	StoragePath *string
}

// HasArtifact returns true if an uploaded document exists for this certificate.
func (c *Certificate) HasArtifact() bool {
	return c.StoragePath != nil && *c.StoragePath != ""
}

// Public returns the projection of the record that anonymous verifiers may see.
func (c *Certificate) Public() *PublicCertificate {
	pub := &PublicCertificate{
		CertID:    c.CertID,
		FullName:  c.FullName,
		CourseKey: c.CourseKey,
		IssuedAt:  c.IssuedAt,
	}
	if c.StoragePath != nil {
		pub.StoragePath = *c.StoragePath
	}
	return pub
}

// PublicCertificate is the verification view of a certificate.
type PublicCertificate struct {
	CertID      string    `json:"cert_id"`
	FullName    string    `json:"full_name"`
	CourseKey   string    `json:"course_key"`
	IssuedAt    time.Time `json:"issued_at"`
	StoragePath string    `json:"storage_path,omitempty"`
}
