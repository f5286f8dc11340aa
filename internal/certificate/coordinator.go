package certificate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goodsign/monday"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/coursecert/internal/auth"
	"github.com/wolfeidau/coursecert/internal/blob"
	"github.com/wolfeidau/coursecert/internal/models"
	"github.com/wolfeidau/coursecert/internal/render"
	"github.com/wolfeidau/coursecert/internal/store"
	"github.com/wolfeidau/coursecert/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Renderer produces certificate documents.
type Renderer interface {
	Render(ctx context.Context, doc render.Document) ([]byte, error)
}

// RegisterInput is the body of a registration request.
type RegisterInput struct {
	CertID      string
	FullName    string  // optional, see ResolveFullName
	CourseKey   string  // optional, DefaultCourseKey when empty
	StoragePath *string // optional, only written when set
}

// StoreInput describes an artifact upload.
type StoreInput struct {
	CertID    string
	CourseKey string
	PDF       []byte
	Sign      bool          // mint a signed URL after upload
	TTL       time.Duration // signed URL lifetime, blob.StoreURLTTL when zero
}

// StoreResult is the outcome of an upload. SignedURL is empty when signing
// was not requested or failed.
type StoreResult struct {
	StoragePath string
	SignedURL   string
}

// IssueInput describes a certificate to render.
type IssueInput struct {
	CertID      string // optional, only used by Save to re-render an existing certificate
	CourseKey   string
	CourseTitle string
	FullName    string
	Locale      monday.Locale
	Sign        bool // Save only
}

// Issued is a rendered and registered certificate.
type Issued struct {
	Certificate *models.Certificate
	PDF         []byte
}

// Saved is a rendered, uploaded and registered certificate.
type Saved struct {
	Certificate *models.Certificate
	StoragePath string
	SignedURL   string
}

// Coordinator registers certificate metadata and uploads documents. It holds
// no locks, concurrent writes to one certificate are settled by the store.
type Coordinator struct {
	certs    store.CertificateStore
	blobs    blob.Store
	renderer Renderer
	now      func() time.Time
	newID    func(courseKey string) string
}

// NewCoordinator creates a coordinator. blobs and renderer may be nil, the
// operations needing them then fail with ErrConfiguration.
func NewCoordinator(certs store.CertificateStore, blobs blob.Store, renderer Renderer) *Coordinator {
	return &Coordinator{
		certs:    certs,
		blobs:    blobs,
		renderer: renderer,
		now:      time.Now,
		newID:    NewCertID,
	}
}

// Register upserts certificate metadata for the caller. A fullName or
// courseKey left out keeps the stored value on update; the fallbacks only
// apply when the record is created.
func (c *Coordinator) Register(ctx context.Context, identity *auth.Identity, in RegisterInput) (*models.Certificate, error) {
	if identity == nil {
		return nil, ErrUnauthenticated
	}

	certID := strings.TrimSpace(in.CertID)
	if certID == "" {
		return nil, fmt.Errorf("%w: certId is required", ErrValidation)
	}

	courseKey, err := ParseCourseKey(in.CourseKey)
	if err != nil {
		return nil, err
	}
	courseKeySet := strings.TrimSpace(in.CourseKey) != ""

	var storagePath *string
	if in.StoragePath != nil {
		if p := strings.TrimSpace(*in.StoragePath); p != "" {
			pathCourseKey, err := checkStoragePath(p, identity, certID)
			if err != nil {
				return nil, err
			}
			switch {
			case courseKeySet && pathCourseKey != courseKey:
				return nil, fmt.Errorf("%w: storagePath does not match courseKey %q", ErrValidation, courseKey)
			case !courseKeySet:
				courseKey = pathCourseKey
			}
			storagePath = &p
		}
	}

	fullName := strings.TrimSpace(in.FullName)

	return c.register(ctx, &models.Certificate{
		CertID:      certID,
		UserID:      identity.AccountID,
		FullName:    ResolveFullName(fullName, identity),
		CourseKey:   courseKey,
		StoragePath: storagePath,
	}, store.Merge{FullName: fullName != "", CourseKey: courseKeySet})
}

// checkStoragePath accepts only the caller's own document for certID, laid
// out as "<courseKey>/<userId>/<certId>.pdf", and returns its course key.
func checkStoragePath(path string, identity *auth.Identity, certID string) (string, error) {
	courseKey, owner, pathCertID, err := blob.ParseObjectKey(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if owner != identity.AccountID || pathCertID != certID {
		return "", fmt.Errorf("%w: storagePath must be %s", ErrValidation,
			blob.ObjectKey(courseKey, identity.AccountID, certID))
	}
	if _, err := ParseCourseKey(courseKey); err != nil {
		return "", err
	}
	return courseKey, nil
}

func (c *Coordinator) register(ctx context.Context, cert *models.Certificate, merge store.Merge) (*models.Certificate, error) {
	if c.certs == nil {
		return nil, fmt.Errorf("%w: record store", ErrConfiguration)
	}

	stored, err := c.certs.Upsert(ctx, cert, merge)
	if err != nil {
		if errors.Is(err, store.ErrCertificateOwnerMismatch) {
			log.Warn().
				Str("cert_id", cert.CertID).
				Str("account_id", cert.UserID.String()).
				Msg("registration rejected, certificate owned by another account")
			return nil, fmt.Errorf("%w: %s", ErrForbidden, cert.CertID)
		}
		return nil, fmt.Errorf("failed to register certificate: %w", err)
	}

	telemetry.GetMetrics().CertificatesRegisteredTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("stored", stored.HasArtifact())))

	log.Info().
		Str("cert_id", stored.CertID).
		Str("course_key", stored.CourseKey).
		Bool("stored", stored.HasArtifact()).
		Msg("certificate registered")

	return stored, nil
}

// StoreArtifact uploads the document to "<courseKey>/<userId>/<certId>.pdf"
// and optionally mints a signed link. The link is never persisted.
func (c *Coordinator) StoreArtifact(ctx context.Context, identity *auth.Identity, in StoreInput) (*StoreResult, error) {
	if identity == nil {
		return nil, ErrUnauthenticated
	}
	if c.blobs == nil {
		return nil, fmt.Errorf("%w: blob storage", ErrConfiguration)
	}

	certID := strings.TrimSpace(in.CertID)
	if certID == "" {
		return nil, fmt.Errorf("%w: certId is required", ErrValidation)
	}
	if len(in.PDF) == 0 {
		return nil, fmt.Errorf("%w: document is empty", ErrValidation)
	}

	courseKey, err := ParseCourseKey(in.CourseKey)
	if err != nil {
		return nil, err
	}

	key := blob.ObjectKey(courseKey, identity.AccountID, certID)

	if err := c.blobs.Put(ctx, key, in.PDF, blob.ContentTypePDF); err != nil {
		return nil, fmt.Errorf("failed to upload certificate: %w", err)
	}

	telemetry.GetMetrics().CertificatesStoredTotal.Add(ctx, 1)

	result := &StoreResult{StoragePath: key}

	if in.Sign {
		ttl := in.TTL
		if ttl <= 0 {
			ttl = blob.StoreURLTTL
		}
		result.SignedURL = c.signedURL(ctx, key, ttl)
	}

	return result, nil
}

// Issue renders a new certificate for the caller and registers it without a
// stored artifact. This is the download flow.
func (c *Coordinator) Issue(ctx context.Context, identity *auth.Identity, in IssueInput) (*Issued, error) {
	if identity == nil {
		return nil, ErrUnauthenticated
	}

	courseKey, err := ParseCourseKey(in.CourseKey)
	if err != nil {
		return nil, err
	}

	cert := &models.Certificate{
		CertID:    c.newID(courseKey),
		UserID:    identity.AccountID,
		FullName:  ResolveFullName(in.FullName, identity),
		CourseKey: courseKey,
		IssuedAt:  c.now().UTC().Truncate(time.Second),
	}

	pdf, err := c.render(ctx, cert, in)
	if err != nil {
		return nil, err
	}

	stored, err := c.register(ctx, cert, store.MergeAll)
	if err != nil {
		return nil, err
	}

	return &Issued{Certificate: stored, PDF: pdf}, nil
}

// Save renders the certificate, uploads it and registers the storage path.
// With a CertID the existing record is re-rendered using its stored name,
// course and issue date unless the input overrides them.
func (c *Coordinator) Save(ctx context.Context, identity *auth.Identity, in IssueInput) (*Saved, error) {
	if identity == nil {
		return nil, ErrUnauthenticated
	}
	if c.blobs == nil {
		return nil, fmt.Errorf("%w: blob storage", ErrConfiguration)
	}
	if c.certs == nil {
		return nil, fmt.Errorf("%w: record store", ErrConfiguration)
	}

	cert, err := c.prepareSave(ctx, identity, in)
	if err != nil {
		return nil, err
	}

	pdf, err := c.render(ctx, cert, in)
	if err != nil {
		return nil, err
	}

	uploaded, err := c.StoreArtifact(ctx, identity, StoreInput{
		CertID:    cert.CertID,
		CourseKey: cert.CourseKey,
		PDF:       pdf,
		Sign:      in.Sign,
	})
	if err != nil {
		return nil, err
	}

	// storage_path is only recorded once the upload succeeded
	cert.StoragePath = &uploaded.StoragePath

	stored, err := c.register(ctx, cert, store.MergeAll)
	if err != nil {
		return nil, err
	}

	return &Saved{
		Certificate: stored,
		StoragePath: uploaded.StoragePath,
		SignedURL:   uploaded.SignedURL,
	}, nil
}

func (c *Coordinator) prepareSave(ctx context.Context, identity *auth.Identity, in IssueInput) (*models.Certificate, error) {
	courseKey, err := ParseCourseKey(in.CourseKey)
	if err != nil {
		return nil, err
	}

	certID := strings.TrimSpace(in.CertID)
	if certID == "" {
		return &models.Certificate{
			CertID:    c.newID(courseKey),
			UserID:    identity.AccountID,
			FullName:  ResolveFullName(in.FullName, identity),
			CourseKey: courseKey,
			IssuedAt:  c.now().UTC().Truncate(time.Second),
		}, nil
	}

	existing, err := c.certs.Get(ctx, certID)
	switch {
	case errors.Is(err, store.ErrCertificateNotFound):
		return &models.Certificate{
			CertID:    certID,
			UserID:    identity.AccountID,
			FullName:  ResolveFullName(in.FullName, identity),
			CourseKey: courseKey,
			IssuedAt:  c.now().UTC().Truncate(time.Second),
		}, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	if existing.UserID != identity.AccountID {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, certID)
	}

	cert := &models.Certificate{
		CertID:    existing.CertID,
		UserID:    existing.UserID,
		FullName:  existing.FullName,
		CourseKey: existing.CourseKey,
		IssuedAt:  existing.IssuedAt,
	}
	if name := strings.TrimSpace(in.FullName); name != "" {
		cert.FullName = name
	}
	if strings.TrimSpace(in.CourseKey) != "" {
		cert.CourseKey = courseKey
	}

	return cert, nil
}

func (c *Coordinator) render(ctx context.Context, cert *models.Certificate, in IssueInput) ([]byte, error) {
	if c.renderer == nil {
		return nil, fmt.Errorf("%w: renderer", ErrConfiguration)
	}

	pdf, err := c.renderer.Render(ctx, render.Document{
		FullName:    cert.FullName,
		CourseTitle: in.CourseTitle,
		CourseKey:   cert.CourseKey,
		IssuedAt:    cert.IssuedAt,
		CertID:      cert.CertID,
		Locale:      in.Locale,
	})
	if err != nil {
		log.Error().Err(err).Str("cert_id", cert.CertID).Msg("render failed")
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}

	return pdf, nil
}

// signedURL presigns key, returning an empty string on failure.
func (c *Coordinator) signedURL(ctx context.Context, key string, ttl time.Duration) string {
	signed, err := c.blobs.PresignGet(ctx, key, ttl)
	if err != nil {
		telemetry.GetMetrics().BlobSignErrorsTotal.Add(ctx, 1)
		log.Warn().Err(err).Str("key", key).Msg("failed to sign certificate url")
		return ""
	}
	return signed
}

// List returns the caller's certificates, newest first.
func (c *Coordinator) List(ctx context.Context, identity *auth.Identity, limit int) ([]*models.Certificate, error) {
	if identity == nil {
		return nil, ErrUnauthenticated
	}
	if c.certs == nil {
		return nil, fmt.Errorf("%w: record store", ErrConfiguration)
	}

	certs, err := c.certs.ListByUser(ctx, identity.AccountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	return certs, nil
}
