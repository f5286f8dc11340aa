package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Handler serves the token endpoints of the service.
type Handler struct {
	keys     *KeyManager
	sessions SessionProvider
	issuer   string // base URL of this service
	ttl      time.Duration
}

// NewHandler creates a handler issuing tokens as issuer.
func NewHandler(keys *KeyManager, sessions SessionProvider, issuer string) *Handler {
	return &Handler{
		keys:     keys,
		sessions: sessions,
		issuer:   issuer,
		ttl:      DefaultTokenTTL,
	}
}

// DiscoveryHandler returns the discovery document at /.well-known/openid-configuration
func (h *Handler) DiscoveryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		config := map[string]any{
			"issuer":                                h.issuer,
			"jwks_uri":                              h.issuer + "/.well-known/jwks.json",
			"token_endpoint":                        h.issuer + "/auth/token",
			"response_types_supported":              []string{"token"},
			"subject_types_supported":               []string{"public"},
			"id_token_signing_alg_values_supported": []string{"ES256"},
		}

		w.Header().Set("Cache-Control", "public, max-age=86400")
		writeJSON(w, http.StatusOK, config)
	}
}

// JWKSHandler returns the public key in JWKS format at /.well-known/jwks.json
func (h *Handler) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debug().Str("kid", h.keys.Kid()).Msg("JWKS request")

		w.Header().Set("Cache-Control", "public, max-age=3600")
		writeJSON(w, http.StatusOK, map[string]any{
			"keys": []any{h.keys.JWK()},
		})
	}
}

// TokenHandler issues a bearer token for the logged in user at POST /auth/token
func (h *Handler) TokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}

		if h.sessions == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		identity, err := h.sessions.SessionIdentity(r)
		if err != nil {
			log.Debug().Err(err).Msg("Token request without valid session")
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		token, expiresAt, err := h.keys.IssueToken(h.issuer, identity, h.ttl)
		if err != nil {
			log.Error().Err(err).Msg("Failed to sign JWT")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}

		log.Info().
			Str("account_id", identity.AccountID.String()).
			Time("expires_at", expiresAt).
			Msg("Issued bearer token")

		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": token,
			"token_type":   "Bearer",
			"expires_in":   int(time.Until(expiresAt).Seconds()),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
