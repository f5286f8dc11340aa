package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestHandler_JWKS(t *testing.T) {
	km := newTestKeys(t)
	h := NewHandler(km, nil, testIssuer)

	rec := httptest.NewRecorder()
	h.JWKSHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Keys, 1)
	require.Equal(t, km.Kid(), body.Keys[0]["kid"])
}

func TestHandler_Discovery(t *testing.T) {
	h := NewHandler(newTestKeys(t), nil, testIssuer)

	rec := httptest.NewRecorder()
	h.DiscoveryHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/openid-configuration", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, testIssuer, body["issuer"])
	require.Equal(t, testIssuer+"/.well-known/jwks.json", body["jwks_uri"])
}

func TestHandler_Token(t *testing.T) {
	km := newTestKeys(t)
	user := &Identity{AccountID: uuid.New(), Name: "Jane Doe", Method: MethodSession}
	h := NewHandler(km, &stubSessions{identity: user}, testIssuer)

	t.Run("without session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.TokenHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/token", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.TokenHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/token", nil))
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("with session", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/auth/token", nil)
		r.AddCookie(&http.Cookie{Name: "_session", Value: "opaque"})
		rec := httptest.NewRecorder()
		h.TokenHandler().ServeHTTP(rec, r)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

		var body struct {
			AccessToken string `json:"access_token"`
			TokenType   string `json:"token_type"`
			ExpiresIn   int    `json:"expires_in"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "Bearer", body.TokenType)
		require.Greater(t, body.ExpiresIn, 3500)

		identity, err := NewVerifier(km, testIssuer).Verify(body.AccessToken)
		require.NoError(t, err)
		require.Equal(t, user.AccountID, identity.AccountID)
		require.Equal(t, "Jane Doe", identity.Name)
	})
}
