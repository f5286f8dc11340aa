// Package blob stores rendered certificate documents in a private bucket and
// hands out short-lived signed links to them.
package blob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContentTypePDF is the content type of every certificate artifact.
const ContentTypePDF = "application/pdf"

// Default signed URL lifetimes.
const (
	StoreURLTTL  = 30 * time.Minute
	VerifyURLTTL = 10 * time.Minute
)

// Store is a private object store for certificate artifacts.
type Store interface {
	// EnsureBucket creates the private bucket if it does not exist yet.
	EnsureBucket(ctx context.Context) error

	// Put uploads body under key, replacing any existing object.
	Put(ctx context.Context, key string, body []byte, contentType string) error

	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// PresignGet returns a URL granting read access to key until ttl elapses.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ObjectKey returns the storage path of a certificate document:
// "<courseKey>/<userId>/<certId>.pdf".
func ObjectKey(courseKey string, userID uuid.UUID, certID string) string {
	return fmt.Sprintf("%s/%s/%s.pdf", courseKey, userID, certID)
}

// ParseObjectKey splits a storage path produced by ObjectKey.
func ParseObjectKey(key string) (courseKey string, userID uuid.UUID, certID string, err error) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 || parts[0] == "" || !strings.HasSuffix(parts[2], ".pdf") {
		return "", uuid.Nil, "", fmt.Errorf("invalid object key %q", key)
	}

	userID, err = uuid.Parse(parts[1])
	if err != nil {
		return "", uuid.Nil, "", fmt.Errorf("invalid object key %q: %w", key, err)
	}

	certID = strings.TrimSuffix(parts[2], ".pdf")
	if certID == "" {
		return "", uuid.Nil, "", fmt.Errorf("invalid object key %q", key)
	}

	return parts[0], userID, certID, nil
}

// validKey rejects keys that would escape the bucket layout.
func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return fmt.Errorf("invalid object key %q", key)
	}
	return nil
}
