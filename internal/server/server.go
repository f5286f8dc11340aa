// Package server exposes certificate issuance and verification over HTTP.
package server

import (
	"net/http"
	"strings"

	"filippo.io/csrf"
	"github.com/goodsign/monday"
	"github.com/rs/cors"
	"github.com/wolfeidau/coursecert/internal/blob"
	"github.com/wolfeidau/coursecert/internal/certificate"
	"github.com/wolfeidau/coursecert/internal/render"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// Config wires the server to its collaborators. Blobs may be nil when
// artifact storage is not configured.
type Config struct {
	Coordinator   *certificate.Coordinator
	Verifier      *certificate.Verifier
	Blobs         blob.Store
	Catalog       *render.Catalog
	DefaultLocale monday.Locale
}

// Server holds the certificate HTTP handlers.
type Server struct {
	coordinator   *certificate.Coordinator
	verifier      *certificate.Verifier
	blobs         blob.Store
	catalog       *render.Catalog
	defaultLocale monday.Locale
}

// NewServer creates a server from cfg.
func NewServer(cfg Config) *Server {
	if cfg.Catalog == nil {
		cfg.Catalog = render.DefaultCatalog()
	}
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = render.DefaultLocale
	}
	return &Server{
		coordinator:   cfg.Coordinator,
		verifier:      cfg.Verifier,
		blobs:         cfg.Blobs,
		catalog:       cfg.Catalog,
		defaultLocale: cfg.DefaultLocale,
	}
}

// Register adds the certificate routes to mux. Identity must already be
// attached to request contexts by auth.IdentityMiddleware.
func (s *Server) Register(mux *http.ServeMux) {
	// Health check endpoint for load balancer
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /api/certificates/register", s.handleRegister)
	mux.HandleFunc("POST /api/certificates/issue", s.handleIssue)
	mux.HandleFunc("POST /api/certificates/save", s.handleSave)
	mux.HandleFunc("GET /api/certificates/verify", s.handleVerify)
	mux.HandleFunc("GET /api/certificates", s.handleList)
	mux.HandleFunc("POST /api/storage/ensure-cert-bucket", s.handleEnsureBucket)

	mux.HandleFunc("GET /verify", s.handleVerifyPage)
	mux.HandleFunc("POST /verify", s.handleVerifyForm)
}

// Handler returns a mux serving only the certificate routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// Protect applies CORS to API routes and cross-origin request protection to
// everything else.
func Protect(h http.Handler, corsOrigins []string) http.Handler {
	api := withCORS(corsOrigins, h)
	protection := csrf.New()
	html := protection.Handler(h)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAPIRoute(r.URL.Path) {
			api.ServeHTTP(w, r)
			return
		}
		html.ServeHTTP(w, r)
	})
}

// isAPIRoute returns true if the path is an API route that needs CORS instead of CSRF
func isAPIRoute(path string) bool {
	return strings.HasPrefix(path, "/api/") ||
		strings.HasPrefix(path, "/.well-known/")
}

func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Accept-Language"},
		ExposedHeaders:   []string{"X-Certificate-Id", "Content-Disposition"},
		AllowCredentials: true, // Required for cookie-based authentication
	})
	return middleware.Handler(h)
}
