package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/coursecert/internal/models"
	"github.com/wolfeidau/coursecert/internal/store"
)

// CertificateStore is an in-memory implementation of store.CertificateStore for development and testing.
type CertificateStore struct {
	mu     sync.RWMutex
	certs  map[string]*models.Certificate      // indexed by cert ID
	byUser map[uuid.UUID][]*models.Certificate // indexed by owner
	now    func() time.Time
}

// NewCertificateStore creates a new in-memory certificate store.
func NewCertificateStore() *CertificateStore {
	return &CertificateStore{
		certs:  make(map[string]*models.Certificate),
		byUser: make(map[uuid.UUID][]*models.Certificate),
		now:    time.Now,
	}
}

// Upsert inserts or merges certificate metadata keyed on CertID.
func (s *CertificateStore) Upsert(ctx context.Context, cert *models.Certificate, merge store.Merge) (*models.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()

	existing, exists := s.certs[cert.CertID]
	if !exists {
		stored := copyCert(cert)
		if stored.IssuedAt.IsZero() {
			stored.IssuedAt = now
		}
		stored.UpdatedAt = now

		s.certs[stored.CertID] = stored
		s.byUser[stored.UserID] = append(s.byUser[stored.UserID], stored)

		return copyCert(stored), nil
	}

	if existing.UserID != cert.UserID {
		return nil, store.ErrCertificateOwnerMismatch
	}

	if merge.FullName {
		existing.FullName = cert.FullName
	}
	if merge.CourseKey {
		existing.CourseKey = cert.CourseKey
	}
	if cert.StoragePath != nil {
		path := *cert.StoragePath
		existing.StoragePath = &path
	}
	existing.UpdatedAt = now

	return copyCert(existing), nil
}

// Get retrieves a certificate by ID.
func (s *CertificateStore) Get(ctx context.Context, certID string) (*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cert, exists := s.certs[certID]
	if !exists {
		return nil, store.ErrCertificateNotFound
	}

	return copyCert(cert), nil
}

// ListByUser returns certificates owned by userID, newest first.
func (s *CertificateStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	owned := s.byUser[userID]
	result := make([]*models.Certificate, 0, len(owned))
	for _, cert := range owned {
		result = append(result, copyCert(cert))
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].IssuedAt.After(result[j].IssuedAt)
	})

	if len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// copyCert creates a deep copy of a certificate record
func copyCert(cert *models.Certificate) *models.Certificate {
	c := *cert
	if cert.StoragePath != nil {
		path := *cert.StoragePath
		c.StoragePath = &path
	}
	return &c
}
