package commands

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/goodsign/monday"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/coursecert/internal/blob"
	"github.com/wolfeidau/coursecert/internal/models"
	"github.com/wolfeidau/coursecert/internal/render"
	"github.com/wolfeidau/coursecert/internal/secrets"
	"github.com/wolfeidau/coursecert/internal/store"
	memorystore "github.com/wolfeidau/coursecert/internal/store/memory"
)

func parseServerCmd(t *testing.T, args ...string) *ServerCmd {
	t.Helper()

	var cli struct {
		Server ServerCmd `cmd:""`
	}
	parser, err := kong.New(&cli, kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	require.NoError(t, err)

	_, err = parser.Parse(append([]string{"server"}, args...))
	require.NoError(t, err)
	return &cli.Server
}

func TestServerCmd_defaults(t *testing.T) {
	cmd := parseServerCmd(t)

	require.Equal(t, "0.0.0.0:8080", cmd.Listen)
	require.Equal(t, "memory", cmd.StoreType)
	require.Equal(t, "memory", cmd.Blob.Type)
	require.Equal(t, "certificates", cmd.Blob.Bucket)
	require.Equal(t, "en_US", cmd.Render.Locale)
	require.Equal(t, 168*time.Hour, cmd.Auth.SessionTTL)
	require.Equal(t, int32(10), cmd.PostgresStore.MaxConns)
	require.Equal(t, 5*time.Second, cmd.PostgresStore.StatementTimeout)

	require.NoError(t, cmd.Blob.Validate())
	require.NoError(t, cmd.Render.Validate())
	require.NoError(t, cmd.Auth.Validate())
}

func TestServerCmd_flags(t *testing.T) {
	cmd := parseServerCmd(t,
		"--store-type=postgres",
		"--postgres-conn-string=postgres://localhost/certs",
		"--blob-type=s3",
		"--blob-bucket=my-certs",
		"--render-locale=de-DE",
		"--auth-client-id=abc",
		"--auth-client-secret=shh",
		"--auth-callback-url=https://example.com/github/callback",
	)

	require.Equal(t, "postgres", cmd.StoreType)
	require.NoError(t, cmd.PostgresStore.Validate())
	require.Equal(t, "my-certs", cmd.Blob.Bucket)
	require.NoError(t, cmd.Render.Validate())
	require.NoError(t, cmd.Auth.Validate())
}

func TestServerCmd_invalidStoreType(t *testing.T) {
	var cli struct {
		Server ServerCmd `cmd:""`
	}
	parser, err := kong.New(&cli, kong.Exit(func(int) {}))
	require.NoError(t, err)

	_, err = parser.Parse([]string{"server", "--store-type=sqlite"})
	require.Error(t, err)
}

func TestFlags_Validate(t *testing.T) {
	tests := []struct {
		name   string
		flags  interface{ Validate() error }
		errMsg string
	}{
		{
			name:   "postgres without connection string",
			flags:  &PostgresStoreFlags{MaxConns: 20, MinConns: 5},
			errMsg: "connection string is required",
		},
		{
			name:   "postgres min above max",
			flags:  &PostgresStoreFlags{ConnString: "postgres://x", MaxConns: 2, MinConns: 5},
			errMsg: "cannot exceed",
		},
		{
			name:   "aws without table",
			flags:  &AWSStoreFlags{},
			errMsg: "certificates table name is required",
		},
		{
			name:   "s3 without bucket",
			flags:  &BlobFlags{Type: "s3"},
			errMsg: "bucket is required",
		},
		{
			name:   "unsupported locale",
			flags:  &RenderFlags{Locale: "xx_XX"},
			errMsg: "unsupported locale",
		},
		{
			name:   "client id without secret",
			flags:  &AuthFlags{ClientID: "abc", SessionTTL: time.Hour},
			errMsg: "client secret is required",
		},
		{
			name:   "client id with bad callback",
			flags:  &AuthFlags{ClientID: "abc", ClientSecret: "shh", CallbackURL: "not a url", SessionTTL: time.Hour},
			errMsg: "invalid GitHub callback URL",
		},
		{
			name:   "zero session ttl",
			flags:  &AuthFlags{},
			errMsg: "session TTL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.flags.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestAuthFlags_Secrets(t *testing.T) {
	flags := &AuthFlags{
		SigningKeyFile: "/etc/coursecert/signing.pem",
		TLSCertSSM:     "/coursecert/tls/cert",
		TLSKeySSM:      "/coursecert/tls/key",
	}

	cfg := flags.Secrets()
	require.Equal(t, secrets.Source{Path: "/etc/coursecert/signing.pem"}, cfg.SigningKey)
	require.Equal(t, "ssm:/coursecert/tls/cert", cfg.TLSCert.String())
	require.True(t, flags.usesSSM())

	require.False(t, (&AuthFlags{SigningKeyFile: "key.pem"}).usesSSM())
}

func TestCreateStores_memory(t *testing.T) {
	cmd := parseServerCmd(t)

	stores, err := cmd.createStores(context.Background(), newAWSClients(cmd))
	require.NoError(t, err)
	defer stores.Close()

	require.IsType(t, &memorystore.CertificateStore{}, stores.Certificates)
	require.NotNil(t, stores.Principals)
	require.NotNil(t, stores.Sessions)
}

func TestCreateStores_awsRequiresTable(t *testing.T) {
	cmd := parseServerCmd(t, "--store-type=aws")

	_, err := cmd.createStores(context.Background(), newAWSClients(cmd))
	require.ErrorContains(t, err, "failed to validate aws flags")
}

func TestCreateBlobStore(t *testing.T) {
	t.Run("memory store is served under /blob", func(t *testing.T) {
		cmd := parseServerCmd(t, "--base-url=http://certs.test")
		mux := http.NewServeMux()

		store, err := cmd.createBlobStore(context.Background(), newAWSClients(cmd), mux)
		require.NoError(t, err)
		require.IsType(t, &blob.MemoryStore{}, store)

		ctx := context.Background()
		require.NoError(t, store.Put(ctx, "k/u/c.pdf", []byte("%PDF-1.3"), "application/pdf"))
		signed, err := store.PresignGet(ctx, "k/u/c.pdf", time.Minute)
		require.NoError(t, err)
		require.Contains(t, signed, "http://certs.test/blob/k/u/c.pdf")

		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, signed, nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "%PDF-1.3", w.Body.String())
	})

	t.Run("disabled", func(t *testing.T) {
		cmd := parseServerCmd(t, "--blob-disabled")

		store, err := cmd.createBlobStore(context.Background(), newAWSClients(cmd), http.NewServeMux())
		require.NoError(t, err)
		require.Nil(t, store)
	})
}

func TestCreateRenderer(t *testing.T) {
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "courses.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte("fallback: Course\ncourses:\n  go-basics: Go Basics\n"), 0o600))

	cmd := parseServerCmd(t, "--render-catalog="+catalogPath, "--render-brand-name=Academy")

	renderer, catalog, err := cmd.createRenderer(monday.LocaleDeDE)
	require.NoError(t, err)
	require.NotNil(t, renderer)

	title, ok := catalog.Lookup("go-basics")
	require.True(t, ok)
	require.Equal(t, "Go Basics", title)

	pdf, err := renderer.Render(context.Background(), render.Document{
		FullName:  "Jane Doe",
		CourseKey: "go-basics",
		IssuedAt:  time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC),
		CertID:    "go-basics-abc123",
	})
	require.NoError(t, err)
	require.True(t, len(pdf) > 4 && string(pdf[:4]) == "%PDF")

	t.Run("missing catalog file", func(t *testing.T) {
		cmd := parseServerCmd(t, "--render-catalog="+filepath.Join(dir, "missing.yaml"))
		_, _, err := cmd.createRenderer(monday.LocaleEnUS)
		require.ErrorContains(t, err, "course catalog")
	})

	t.Run("name font", func(t *testing.T) {
		fontPath := filepath.Join("..", "..", "..", "..", "internal", "render", "fonts", "DejaVuSans.ttf")
		cmd := parseServerCmd(t, "--render-name-font="+fontPath)

		renderer, _, err := cmd.createRenderer(monday.LocaleEnUS)
		require.NoError(t, err)

		_, err = renderer.Render(context.Background(), render.Document{
			FullName: "Ольга Петрова",
			IssuedAt: time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC),
			CertID:   "course-abc123",
		})
		require.NoError(t, err)
	})

	t.Run("invalid name font", func(t *testing.T) {
		fontPath := filepath.Join(dir, "name.ttf")
		require.NoError(t, os.WriteFile(fontPath, []byte("not a font"), 0o600))

		cmd := parseServerCmd(t, "--render-name-font="+fontPath)
		_, _, err := cmd.createRenderer(monday.LocaleEnUS)
		require.ErrorContains(t, err, "name font")
	})
}

func TestNewKeyManager(t *testing.T) {
	generated, err := newKeyManager(&secrets.Material{})
	require.NoError(t, err)

	pemBytes, err := generated.PrivateKeyPEM()
	require.NoError(t, err)

	loaded, err := newKeyManager(&secrets.Material{SigningKey: pemBytes})
	require.NoError(t, err)
	require.Equal(t, generated.Kid(), loaded.Kid())

	_, err = newKeyManager(&secrets.Material{SigningKey: []byte("not a key")})
	require.ErrorContains(t, err, "signing key")
}

func TestSweepSessions(t *testing.T) {
	sessions := memorystore.NewSessionStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Now()
	expiredID := uuid.New()
	require.NoError(t, sessions.Create(ctx, &models.Session{
		SessionID:   expiredID,
		PrincipalID: uuid.New(),
		CreatedAt:   now.Add(-2 * time.Hour),
		ExpiresAt:   now.Add(-time.Hour),
		LastUsedAt:  now.Add(-2 * time.Hour),
	}))

	done := make(chan struct{})
	go func() {
		sweepSessions(ctx, sessions, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, err := sessions.Get(ctx, expiredID)
		return errors.Is(err, store.ErrSessionNotFound)
	}, time.Second, 20*time.Millisecond)

	cancel()
	<-done
}
