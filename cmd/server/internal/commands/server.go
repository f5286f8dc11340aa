package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goodsign/monday"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wolfeidau/coursecert/internal/auth"
	"github.com/wolfeidau/coursecert/internal/blob"
	"github.com/wolfeidau/coursecert/internal/certificate"
	"github.com/wolfeidau/coursecert/internal/client"
	httpmiddleware "github.com/wolfeidau/coursecert/internal/http"
	"github.com/wolfeidau/coursecert/internal/logger"
	"github.com/wolfeidau/coursecert/internal/login"
	"github.com/wolfeidau/coursecert/internal/render"
	"github.com/wolfeidau/coursecert/internal/secrets"
	"github.com/wolfeidau/coursecert/internal/server"
	"github.com/wolfeidau/coursecert/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

type ServerCmd struct {
	// Server configuration
	Listen  string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"COURSECERT_LISTEN"`
	BaseURL string `help:"public base URL, used as token issuer and in verification links" default:"http://localhost:8080" env:"COURSECERT_BASE_URL"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"http://localhost:8080" env:"COURSECERT_CORS_ORIGINS"`

	// Development and operational modes
	Development      bool          `help:"development mode - auto-setup LocalStack infrastructure" default:"false" env:"COURSECERT_DEVELOPMENT"`
	DevelopmentClean bool          `help:"clean resources on startup in development mode (deletes all data)" default:"false" env:"COURSECERT_DEVELOPMENT_CLEAN"`
	LocalStackURL    string        `help:"LocalStack endpoint used in development mode" default:"http://localhost:4566" env:"COURSECERT_LOCALSTACK_URL"`
	Tracing          bool          `help:"enable tracing" default:"false" env:"COURSECERT_TRACING"`
	TraceSampleRatio float64       `help:"fraction of traces sampled" default:"1" env:"COURSECERT_TRACE_SAMPLE_RATIO"`
	SessionSweep     time.Duration `help:"interval between expired session cleanups" default:"1h" env:"COURSECERT_SESSION_SWEEP"`

	// Store configuration
	StoreType     string             `help:"store type (memory, aws, or postgres)" default:"memory" env:"COURSECERT_STORE_TYPE" enum:"memory,aws,postgres"`
	AWSStore      AWSStoreFlags      `embed:"" prefix:"aws-"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
	Blob          BlobFlags          `embed:"" prefix:"blob-"`
	Render        RenderFlags        `embed:"" prefix:"render-"`
	Auth          AuthFlags          `embed:"" prefix:"auth-"`
}

func (c *ServerCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	for _, v := range []interface{ Validate() error }{&c.Blob, &c.Render, &c.Auth} {
		if err := v.Validate(); err != nil {
			return err
		}
	}

	// Setup telemetry if enabled
	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "coursecert-server",
			Version:     globals.Version,
			SampleRatio: c.TraceSampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	clients := newAWSClients(c)

	// Development mode: auto-setup LocalStack infrastructure
	if c.Development {
		if err := c.setupDevelopment(ctx, clients); err != nil {
			return err
		}
	}

	stores, err := c.createStores(ctx, clients)
	if err != nil {
		return err
	}
	defer stores.Close()

	mux := http.NewServeMux()

	blobs, err := c.createBlobStore(ctx, clients, mux)
	if err != nil {
		return err
	}

	var ssmClient secrets.ParameterGetter
	if c.Auth.usesSSM() {
		if ssmClient, err = clients.SSM(ctx); err != nil {
			return err
		}
	}
	material, err := secrets.NewLoader(ssmClient).LoadAll(ctx, c.Auth.Secrets())
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}

	keyManager, err := newKeyManager(material)
	if err != nil {
		return err
	}

	locale, _ := render.ParseLocale(c.Render.Locale)

	renderer, catalog, err := c.createRenderer(locale)
	if err != nil {
		return err
	}

	coordinator := certificate.NewCoordinator(stores.Certificates, blobs, renderer)
	verifier := certificate.NewVerifier(stores.Certificates, blobs)

	server.NewServer(server.Config{
		Coordinator:   coordinator,
		Verifier:      verifier,
		Blobs:         blobs,
		Catalog:       catalog,
		DefaultLocale: locale,
	}).Register(mux)

	mux.Handle("GET /{$}", http.RedirectHandler("/verify", http.StatusFound))

	// GitHub login is optional; without it only bearer tokens authenticate
	var sessions auth.SessionProvider
	if c.Auth.ClientID != "" {
		gh, err := login.NewGithub(c.Auth.ClientID, c.Auth.ClientSecret, c.Auth.CallbackURL,
			login.Stores{Sessions: stores.Sessions, Principals: stores.Principals}, c.Auth.SessionTTL)
		if err != nil {
			return fmt.Errorf("failed to initialize GitHub OAuth: %w", err)
		}
		mux.HandleFunc("GET /login", gh.LoginHandler)
		mux.HandleFunc("GET /github/callback", gh.CallbackHandler)
		mux.HandleFunc("/logout", gh.LogoutHandler)
		sessions = gh

		go sweepSessions(ctx, stores.Sessions, c.SessionSweep)
	} else {
		log.Warn().Msg("GitHub login is disabled (no --auth-client-id), only bearer tokens authenticate")
	}

	tokens := auth.NewHandler(keyManager, sessions, c.BaseURL)
	mux.HandleFunc("GET /.well-known/openid-configuration", tokens.DiscoveryHandler())
	mux.HandleFunc("GET /.well-known/jwks.json", tokens.JWKSHandler())
	mux.HandleFunc("/auth/token", tokens.TokenHandler())

	log.Info().
		Str("issuer", c.BaseURL).
		Str("kid", keyManager.Kid()).
		Msg("Token issuer initialized")

	tokenVerifier := auth.NewVerifier(keyManager, c.BaseURL)

	var handler http.Handler = server.Protect(
		auth.IdentityMiddleware(tokenVerifier, sessions)(mux),
		c.CORSOrigins,
	)
	handler = httpmiddleware.Chain(handler,
		httpmiddleware.ClientIPMiddleware(),
		httpmiddleware.AccessLog(log),
	)
	if c.Tracing {
		handler = otelhttp.NewHandler(handler, "coursecert")
	}

	tlsConfig, err := material.TLSConfig()
	if err != nil {
		return fmt.Errorf("failed to load TLS key pair: %w", err)
	}

	srv := configureHTTPServer(c.Listen, handler)
	srv.TLSConfig = tlsConfig

	errCh := make(chan error, 1)
	go func() {
		if tlsConfig != nil {
			log.Info().Str("addr", c.Listen).Str("base_url", c.BaseURL).Msg("Starting HTTPS server")
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		log.Warn().Str("addr", c.Listen).Str("base_url", c.BaseURL).Msg("Starting HTTP server without TLS")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newKeyManager(material *secrets.Material) (*auth.KeyManager, error) {
	if len(material.SigningKey) == 0 {
		log.Warn().Msg("No signing key configured, generated an ephemeral key; bearer tokens will not survive a restart")
		return auth.NewKeyManager()
	}

	km, err := auth.NewKeyManagerFromPEM(material.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}
	return km, nil
}

func (c *ServerCmd) createRenderer(locale monday.Locale) (*render.Renderer, *render.Catalog, error) {
	catalog := render.DefaultCatalog()
	if c.Render.Catalog != "" {
		var err error
		if catalog, err = render.LoadCatalog(c.Render.Catalog); err != nil {
			return nil, nil, fmt.Errorf("failed to load course catalog: %w", err)
		}
	}
	log.Info().Int("courses", catalog.Len()).Str("path", c.Render.Catalog).Msg("Course catalog loaded")

	var nameFont []byte
	if c.Render.NameFont != "" {
		var err error
		if nameFont, err = render.LoadFont(c.Render.NameFont); err != nil {
			return nil, nil, fmt.Errorf("failed to load name font: %w", err)
		}
	}

	logos := render.NewLogoLoader(client.NewCachingHTTPClient(c.Render.LogoCache))

	renderer := render.New(render.Config{
		SignerName:    c.Render.SignerName,
		SignerTitle:   c.Render.SignerTitle,
		VerifyBaseURL: c.BaseURL + "/verify",
		LogoURL:       c.Render.LogoURL,
		BrandName:     c.Render.BrandName,
		DefaultLocale: locale,
		NameFont:      nameFont,
	}, catalog, logos)

	return renderer, catalog, nil
}

func (c *ServerCmd) createBlobStore(ctx context.Context, clients *awsClients, mux *http.ServeMux) (blob.Store, error) {
	if c.Blob.Disabled {
		log.Warn().Msg("Blob storage is disabled, certificates can be registered and verified without downloads")
		return nil, nil
	}

	switch c.Blob.Type {
	case "s3":
		s3Store, err := clients.S3Store(ctx)
		if err != nil {
			return nil, err
		}
		log.Info().Str("bucket", s3Store.Bucket()).Msg("Using S3 blob store")
		return s3Store, nil

	default:
		memStore := blob.NewMemoryStore(c.BaseURL + "/blob")
		mux.Handle("/blob/", http.StripPrefix("/blob", memStore.Handler()))
		log.Info().Msg("Using in-memory blob store")
		return memStore, nil
	}
}
