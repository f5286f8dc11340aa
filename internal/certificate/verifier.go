package certificate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/coursecert/internal/blob"
	"github.com/wolfeidau/coursecert/internal/models"
	"github.com/wolfeidau/coursecert/internal/store"
	"github.com/wolfeidau/coursecert/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// VerifyResult is the public outcome of a lookup. Not found is a result,
// not an error.
type VerifyResult struct {
	Found     bool                      `json:"found"`
	Record    *models.PublicCertificate `json:"record,omitempty"`
	SignedURL string                    `json:"signedUrl,omitempty"`
}

// Verifier answers anonymous verification lookups.
type Verifier struct {
	certs store.CertificateStore
	blobs blob.Store
	ttl   time.Duration
}

// NewVerifier creates a verifier. blobs may be nil, results then never
// carry a signed URL.
func NewVerifier(certs store.CertificateStore, blobs blob.Store) *Verifier {
	return &Verifier{
		certs: certs,
		blobs: blobs,
		ttl:   blob.VerifyURLTTL,
	}
}

// Verify looks up certID by exact match.
func (v *Verifier) Verify(ctx context.Context, certID string) (*VerifyResult, error) {
	if v.certs == nil {
		return nil, fmt.Errorf("%w: record store", ErrConfiguration)
	}

	certID = strings.TrimSpace(certID)
	if certID == "" {
		return nil, fmt.Errorf("%w: cid is required", ErrValidation)
	}

	cert, err := v.certs.Get(ctx, certID)
	if err != nil {
		if errors.Is(err, store.ErrCertificateNotFound) {
			v.count(ctx, false)
			return &VerifyResult{Found: false}, nil
		}
		log.Error().Err(err).Str("cert_id", certID).Msg("certificate lookup failed")
		return nil, fmt.Errorf("%w: %w", ErrLookup, err)
	}

	v.count(ctx, true)

	result := &VerifyResult{Found: true, Record: cert.Public()}
	if cert.HasArtifact() {
		result.SignedURL = v.signedURL(ctx, *cert.StoragePath)
	}

	return result, nil
}

// signedURL returns a link to an existing artifact, or an empty string.
func (v *Verifier) signedURL(ctx context.Context, key string) string {
	if v.blobs == nil {
		return ""
	}

	exists, err := v.blobs.Exists(ctx, key)
	if err != nil {
		telemetry.GetMetrics().BlobSignErrorsTotal.Add(ctx, 1)
		log.Warn().Err(err).Str("key", key).Msg("failed to check certificate artifact")
		return ""
	}
	if !exists {
		log.Warn().Str("key", key).Msg("certificate artifact missing from storage")
		return ""
	}

	signed, err := v.blobs.PresignGet(ctx, key, v.ttl)
	if err != nil {
		telemetry.GetMetrics().BlobSignErrorsTotal.Add(ctx, 1)
		log.Warn().Err(err).Str("key", key).Msg("failed to sign certificate url")
		return ""
	}

	return signed
}

func (v *Verifier) count(ctx context.Context, found bool) {
	telemetry.GetMetrics().CertificatesVerifiedTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("found", found)))
}
