package certificate

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/coursecert/internal/auth"
	"github.com/wolfeidau/coursecert/internal/blob"
	"github.com/wolfeidau/coursecert/internal/models"
	"github.com/wolfeidau/coursecert/internal/render"
	"github.com/wolfeidau/coursecert/internal/store"
	"github.com/wolfeidau/coursecert/internal/store/memory"
)

// fakeRenderer records the documents it was asked to render.
type fakeRenderer struct {
	mu   sync.Mutex
	docs []render.Document
	err  error
}

func (f *fakeRenderer) Render(ctx context.Context, doc render.Document) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.docs = append(f.docs, doc)
	return []byte("%PDF-1.3 " + doc.CertID + " " + doc.FullName), nil
}

// faultyBlobs wraps a MemoryStore with injectable failures.
type faultyBlobs struct {
	*blob.MemoryStore
	putErr     error
	existsErr  error
	presignErr error
}

func (f *faultyBlobs) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.MemoryStore.Put(ctx, key, body, contentType)
}

func (f *faultyBlobs) Exists(ctx context.Context, key string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.MemoryStore.Exists(ctx, key)
}

func (f *faultyBlobs) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return f.MemoryStore.PresignGet(ctx, key, ttl)
}

// failingStore returns err from every operation.
type failingStore struct{ err error }

func (f failingStore) Upsert(context.Context, *models.Certificate, store.Merge) (*models.Certificate, error) {
	return nil, f.err
}

func (f failingStore) Get(context.Context, string) (*models.Certificate, error) { return nil, f.err }

func (f failingStore) ListByUser(context.Context, uuid.UUID, int) ([]*models.Certificate, error) {
	return nil, f.err
}

type fixture struct {
	certs       *memory.CertificateStore
	blobs       *faultyBlobs
	renderer    *fakeRenderer
	coordinator *Coordinator
	verifier    *Verifier
}

func newFixture() *fixture {
	f := &fixture{
		certs:    memory.NewCertificateStore(),
		blobs:    &faultyBlobs{MemoryStore: blob.NewMemoryStore("http://localhost:8080/blob")},
		renderer: &fakeRenderer{},
	}
	f.coordinator = NewCoordinator(f.certs, f.blobs, f.renderer)
	f.verifier = NewVerifier(f.certs, f.blobs)
	return f
}

func jane() *auth.Identity {
	return &auth.Identity{AccountID: uuid.New(), Name: "Jane Doe", Email: "jane@example.com", Method: auth.MethodSession}
}

func TestRegister_thenVerify(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	user := jane()

	_, err := f.coordinator.Register(ctx, user, RegisterInput{
		CertID:    "pe-beginner-abc123",
		FullName:  "Jane Doe",
		CourseKey: "pe-beginner",
	})
	require.NoError(t, err)

	res, err := f.verifier.Verify(ctx, "pe-beginner-abc123")
	require.NoError(t, err)
	require.True(t, res.Found)
	require.Equal(t, "Jane Doe", res.Record.FullName)
	require.Equal(t, "pe-beginner", res.Record.CourseKey)
	require.Empty(t, res.Record.StoragePath)
	require.Empty(t, res.SignedURL)
}

func TestRegister_secondCallAddsStoragePath(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	user := jane()

	first, err := f.coordinator.Register(ctx, user, RegisterInput{CertID: "pe-beginner-abc123", FullName: "Jane Doe"})
	require.NoError(t, err)

	path := blob.ObjectKey("pe-beginner", user.AccountID, "pe-beginner-abc123")
	second, err := f.coordinator.Register(ctx, user, RegisterInput{
		CertID:      "pe-beginner-abc123",
		FullName:    "Jane Doe",
		StoragePath: &path,
	})
	require.NoError(t, err)

	require.Equal(t, path, *second.StoragePath)
	require.Equal(t, first.FullName, second.FullName)
	require.Equal(t, first.CourseKey, second.CourseKey)
	require.True(t, first.IssuedAt.Equal(second.IssuedAt))

	// a later registration without storage keeps the path
	third, err := f.coordinator.Register(ctx, user, RegisterInput{CertID: "pe-beginner-abc123", FullName: "Jane Doe"})
	require.NoError(t, err)
	require.Equal(t, path, *third.StoragePath)
}

func TestRegister_secondCallKeepsFirstValues(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	user := jane()

	_, err := f.coordinator.Register(ctx, user, RegisterInput{
		CertID:    "rag-beginner-abc",
		FullName:  "J. D. Custom",
		CourseKey: "rag-beginner",
	})
	require.NoError(t, err)

	path := blob.ObjectKey("rag-beginner", user.AccountID, "rag-beginner-abc")
	_, err = f.coordinator.Register(ctx, user, RegisterInput{CertID: "rag-beginner-abc", StoragePath: &path})
	require.NoError(t, err)

	res, err := f.verifier.Verify(ctx, "rag-beginner-abc")
	require.NoError(t, err)
	require.True(t, res.Found)
	require.Equal(t, "J. D. Custom", res.Record.FullName)
	require.Equal(t, "rag-beginner", res.Record.CourseKey)
	require.Equal(t, path, res.Record.StoragePath)

	t.Run("explicit values still override", func(t *testing.T) {
		stored, err := f.coordinator.Register(ctx, user, RegisterInput{CertID: "rag-beginner-abc", FullName: "Jane Doe"})
		require.NoError(t, err)
		require.Equal(t, "Jane Doe", stored.FullName)
		require.Equal(t, "rag-beginner", stored.CourseKey)
		require.Equal(t, path, *stored.StoragePath)
	})
}

func TestRegister_storagePath(t *testing.T) {
	ctx := context.Background()
	user := jane()
	other := jane()

	tests := []struct {
		name      string
		courseKey string
		path      string
	}{
		{name: "another account", path: blob.ObjectKey("pe-beginner", other.AccountID, "pe-beginner-abc123")},
		{name: "another certificate", path: blob.ObjectKey("pe-beginner", user.AccountID, "pe-beginner-xyz")},
		{name: "course key mismatch", courseKey: "pe-beginner", path: blob.ObjectKey("pe-advanced", user.AccountID, "pe-beginner-abc123")},
		{name: "invalid course segment", path: blob.ObjectKey("PE_Beginner", user.AccountID, "pe-beginner-abc123")},
		{name: "outside the layout", path: "shared/pe-beginner-abc123.pdf"},
		{name: "not a pdf", path: user.AccountID.String() + "/pe-beginner-abc123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			path := tt.path

			_, err := f.coordinator.Register(ctx, user, RegisterInput{
				CertID:      "pe-beginner-abc123",
				CourseKey:   tt.courseKey,
				StoragePath: &path,
			})
			require.ErrorIs(t, err, ErrValidation)

			_, err = f.certs.Get(ctx, "pe-beginner-abc123")
			require.ErrorIs(t, err, store.ErrCertificateNotFound)
		})
	}

	t.Run("course key taken from the path on insert", func(t *testing.T) {
		f := newFixture()
		path := blob.ObjectKey("pe-advanced", user.AccountID, "pe-advanced-abc")

		stored, err := f.coordinator.Register(ctx, user, RegisterInput{CertID: "pe-advanced-abc", StoragePath: &path})
		require.NoError(t, err)
		require.Equal(t, "pe-advanced", stored.CourseKey)
		require.Equal(t, path, *stored.StoragePath)
	})
}

func TestRegister_courseKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	user := jane()

	stored, err := f.coordinator.Register(ctx, user, RegisterInput{CertID: "rag-101-abc", CourseKey: " rag-101 "})
	require.NoError(t, err)
	require.Equal(t, "rag-101", stored.CourseKey)

	for _, key := range []string{"PE_Beginner.v2", "pe beginner", "-pe", "pe--beginner"} {
		t.Run(key, func(t *testing.T) {
			_, err := f.coordinator.Register(ctx, user, RegisterInput{CertID: "c-" + key, CourseKey: key})
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestRegister_idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	user := jane()

	in := RegisterInput{CertID: "pe-beginner-abc123", FullName: "Jane Doe", CourseKey: "pe-beginner"}
	_, err := f.coordinator.Register(ctx, user, in)
	require.NoError(t, err)
	_, err = f.coordinator.Register(ctx, user, in)
	require.NoError(t, err)

	list, err := f.coordinator.List(ctx, user, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestRegister_errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	t.Run("no identity", func(t *testing.T) {
		_, err := f.coordinator.Register(ctx, nil, RegisterInput{CertID: "pe-beginner-abc123"})
		require.ErrorIs(t, err, ErrUnauthenticated)

		_, err = f.coordinator.Register(ctx, nil, RegisterInput{})
		require.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("empty cert id", func(t *testing.T) {
		_, err := f.coordinator.Register(ctx, jane(), RegisterInput{CertID: "   "})
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("other owner", func(t *testing.T) {
		owner := jane()
		_, err := f.coordinator.Register(ctx, owner, RegisterInput{CertID: "pe-beginner-owned"})
		require.NoError(t, err)

		_, err = f.coordinator.Register(ctx, jane(), RegisterInput{CertID: "pe-beginner-owned", FullName: "Mallory"})
		require.ErrorIs(t, err, ErrForbidden)

		res, err := f.verifier.Verify(ctx, "pe-beginner-owned")
		require.NoError(t, err)
		require.Equal(t, "Jane Doe", res.Record.FullName)
	})

	t.Run("no record store", func(t *testing.T) {
		_, err := NewCoordinator(nil, nil, nil).Register(ctx, jane(), RegisterInput{CertID: "x"})
		require.ErrorIs(t, err, ErrConfiguration)
	})

	t.Run("store failure is passed through", func(t *testing.T) {
		boom := errors.New("connection reset")
		_, err := NewCoordinator(failingStore{err: boom}, nil, nil).Register(ctx, jane(), RegisterInput{CertID: "x"})
		require.ErrorIs(t, err, boom)
		require.NotErrorIs(t, err, ErrForbidden)
	})
}

func TestRegister_defaults(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	stored, err := f.coordinator.Register(ctx, &auth.Identity{AccountID: uuid.New(), Email: "sam@example.org"},
		RegisterInput{CertID: "c1", StoragePath: new(string)})
	require.NoError(t, err)
	require.Equal(t, "sam", stored.FullName)
	require.Equal(t, DefaultCourseKey, stored.CourseKey)
	require.Nil(t, stored.StoragePath)
}

func TestStoreArtifact(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	user := jane()

	res, err := f.coordinator.StoreArtifact(ctx, user, StoreInput{
		CertID:    "pe-beginner-abc123",
		CourseKey: "pe-beginner",
		PDF:       []byte("%PDF-1.3"),
		Sign:      true,
	})
	require.NoError(t, err)
	require.Equal(t, "pe-beginner/"+user.AccountID.String()+"/pe-beginner-abc123.pdf", res.StoragePath)
	require.NotEmpty(t, res.SignedURL)

	body, contentType, ok := f.blobs.Get(res.StoragePath)
	require.True(t, ok)
	require.Equal(t, blob.ContentTypePDF, contentType)
	require.Equal(t, "%PDF-1.3", string(body))

	// the record store is untouched by an upload
	_, err = f.certs.Get(ctx, "pe-beginner-abc123")
	require.ErrorIs(t, err, store.ErrCertificateNotFound)

	t.Run("sign failure leaves url empty", func(t *testing.T) {
		f.blobs.presignErr = errors.New("no credentials")
		defer func() { f.blobs.presignErr = nil }()

		res, err := f.coordinator.StoreArtifact(ctx, user, StoreInput{CertID: "c2", PDF: []byte("x"), Sign: true})
		require.NoError(t, err)
		require.Empty(t, res.SignedURL)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := f.coordinator.StoreArtifact(ctx, user, StoreInput{CertID: "c3"})
		require.ErrorIs(t, err, ErrValidation)

		_, err = f.coordinator.StoreArtifact(ctx, nil, StoreInput{CertID: "c3", PDF: []byte("x")})
		require.ErrorIs(t, err, ErrUnauthenticated)

		_, err = NewCoordinator(f.certs, nil, nil).StoreArtifact(ctx, user, StoreInput{CertID: "c3", PDF: []byte("x")})
		require.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestIssue(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.coordinator.now = func() time.Time { return time.Date(2025, 3, 4, 10, 30, 15, 999, time.UTC) }
	user := jane()

	issued, err := f.coordinator.Issue(ctx, user, IssueInput{CourseKey: "pe-beginner", CourseTitle: "Custom"})
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(issued.PDF, []byte("%PDF")))
	require.Contains(t, issued.Certificate.CertID, "pe-beginner-")
	require.Equal(t, "Jane Doe", issued.Certificate.FullName)
	require.Nil(t, issued.Certificate.StoragePath)

	require.Len(t, f.renderer.docs, 1)
	doc := f.renderer.docs[0]
	require.Equal(t, issued.Certificate.CertID, doc.CertID)
	require.Equal(t, "Custom", doc.CourseTitle)
	require.Equal(t, time.Date(2025, 3, 4, 10, 30, 15, 0, time.UTC), doc.IssuedAt)
	require.True(t, doc.IssuedAt.Equal(issued.Certificate.IssuedAt))

	res, err := f.verifier.Verify(ctx, issued.Certificate.CertID)
	require.NoError(t, err)
	require.True(t, res.Found)

	t.Run("render failure registers nothing", func(t *testing.T) {
		f := newFixture()
		f.renderer.err = errors.New("font missing")

		_, err := f.coordinator.Issue(ctx, user, IssueInput{})
		require.ErrorIs(t, err, ErrRender)

		list, err := f.coordinator.List(ctx, user, 0)
		require.NoError(t, err)
		require.Empty(t, list)
	})

	t.Run("invalid course key", func(t *testing.T) {
		_, err := f.coordinator.Issue(ctx, user, IssueInput{CourseKey: "PE-Beginner"})
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("no renderer", func(t *testing.T) {
		_, err := NewCoordinator(f.certs, f.blobs, nil).Issue(ctx, user, IssueInput{})
		require.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestSave(t *testing.T) {
	ctx := context.Background()
	user := jane()

	t.Run("new certificate", func(t *testing.T) {
		f := newFixture()

		saved, err := f.coordinator.Save(ctx, user, IssueInput{CourseKey: "pe-advanced", Sign: true})
		require.NoError(t, err)
		require.NotEmpty(t, saved.SignedURL)
		require.Equal(t, saved.StoragePath, *saved.Certificate.StoragePath)

		exists, err := f.blobs.Exists(ctx, saved.StoragePath)
		require.NoError(t, err)
		require.True(t, exists)
	})

	t.Run("re-render existing certificate", func(t *testing.T) {
		f := newFixture()

		issued, err := f.coordinator.Issue(ctx, user, IssueInput{FullName: "Jane Q. Doe"})
		require.NoError(t, err)

		saved, err := f.coordinator.Save(ctx, user, IssueInput{CertID: issued.Certificate.CertID})
		require.NoError(t, err)
		require.Equal(t, issued.Certificate.CertID, saved.Certificate.CertID)
		require.Equal(t, "Jane Q. Doe", saved.Certificate.FullName)
		require.True(t, issued.Certificate.IssuedAt.Equal(saved.Certificate.IssuedAt))

		require.Len(t, f.renderer.docs, 2)
		require.Equal(t, f.renderer.docs[0].IssuedAt, f.renderer.docs[1].IssuedAt)
	})

	t.Run("other owner", func(t *testing.T) {
		f := newFixture()

		issued, err := f.coordinator.Issue(ctx, user, IssueInput{})
		require.NoError(t, err)

		_, err = f.coordinator.Save(ctx, jane(), IssueInput{CertID: issued.Certificate.CertID})
		require.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("upload failure does not record a storage path", func(t *testing.T) {
		f := newFixture()

		issued, err := f.coordinator.Issue(ctx, user, IssueInput{})
		require.NoError(t, err)

		f.blobs.putErr = errors.New("bucket missing")
		_, err = f.coordinator.Save(ctx, user, IssueInput{CertID: issued.Certificate.CertID})
		require.Error(t, err)

		stored, err := f.certs.Get(ctx, issued.Certificate.CertID)
		require.NoError(t, err)
		require.Nil(t, stored.StoragePath)
	})

	t.Run("no blob storage", func(t *testing.T) {
		f := newFixture()
		_, err := NewCoordinator(f.certs, nil, f.renderer).Save(ctx, user, IssueInput{})
		require.ErrorIs(t, err, ErrConfiguration)
	})
}

func TestVerify(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown id", func(t *testing.T) {
		f := newFixture()

		res, err := f.verifier.Verify(ctx, "does-not-exist")
		require.NoError(t, err)
		require.False(t, res.Found)
		require.Nil(t, res.Record)
		require.Empty(t, res.SignedURL)
	})

	t.Run("stored artifact gets a signed url", func(t *testing.T) {
		f := newFixture()

		saved, err := f.coordinator.Save(ctx, jane(), IssueInput{})
		require.NoError(t, err)

		res, err := f.verifier.Verify(ctx, saved.Certificate.CertID)
		require.NoError(t, err)
		require.True(t, res.Found)
		require.Equal(t, saved.StoragePath, res.Record.StoragePath)
		require.NotEmpty(t, res.SignedURL)
	})

	t.Run("missing blob", func(t *testing.T) {
		f := newFixture()
		user := jane()

		path := blob.ObjectKey("pe-beginner", user.AccountID, "pe-beginner-abc123")
		_, err := f.coordinator.Register(ctx, user, RegisterInput{CertID: "pe-beginner-abc123", StoragePath: &path})
		require.NoError(t, err)

		res, err := f.verifier.Verify(ctx, "pe-beginner-abc123")
		require.NoError(t, err)
		require.True(t, res.Found)
		require.Empty(t, res.SignedURL)
	})

	t.Run("blob errors degrade to no url", func(t *testing.T) {
		f := newFixture()

		saved, err := f.coordinator.Save(ctx, jane(), IssueInput{})
		require.NoError(t, err)

		f.blobs.existsErr = errors.New("timeout")
		res, err := f.verifier.Verify(ctx, saved.Certificate.CertID)
		require.NoError(t, err)
		require.True(t, res.Found)
		require.Empty(t, res.SignedURL)

		f.blobs.existsErr = nil
		f.blobs.presignErr = errors.New("no credentials")
		res, err = f.verifier.Verify(ctx, saved.Certificate.CertID)
		require.NoError(t, err)
		require.Empty(t, res.SignedURL)
	})

	t.Run("no blob store", func(t *testing.T) {
		f := newFixture()

		saved, err := f.coordinator.Save(ctx, jane(), IssueInput{})
		require.NoError(t, err)

		res, err := NewVerifier(f.certs, nil).Verify(ctx, saved.Certificate.CertID)
		require.NoError(t, err)
		require.True(t, res.Found)
		require.Empty(t, res.SignedURL)
	})

	t.Run("lookup failure", func(t *testing.T) {
		_, err := NewVerifier(failingStore{err: errors.New("db down")}, nil).Verify(ctx, "x")
		require.ErrorIs(t, err, ErrLookup)
	})

	t.Run("empty id", func(t *testing.T) {
		_, err := newFixture().verifier.Verify(ctx, " ")
		require.ErrorIs(t, err, ErrValidation)
	})
}
