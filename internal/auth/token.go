package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is the lifetime of bearer tokens minted for a session.
const DefaultTokenTTL = time.Hour

var ErrInvalidToken = errors.New("invalid token")

// Claims are the bearer token claims. The subject is the account ID.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs a bearer token for identity valid for ttl.
func (km *KeyManager) IssueToken(issuer string, identity *Identity, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := &Claims{
		Name:  identity.Name,
		Email: identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   identity.AccountID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token, err := km.SignJWT(claims)
	if err != nil {
		return "", time.Time{}, err
	}

	return token, expiresAt, nil
}

// Verifier validates bearer tokens signed by a KeyManager.
type Verifier struct {
	keys   *KeyManager
	issuer string
}

// NewVerifier creates a verifier accepting tokens from issuer signed by keys.
func NewVerifier(keys *KeyManager, issuer string) *Verifier {
	return &Verifier{keys: keys, issuer: issuer}
}

// Verify parses and validates tokenString and returns the caller identity.
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid != v.keys.Kid() {
			return nil, fmt.Errorf("unknown kid %q", kid)
		}
		return v.keys.PublicKey(), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	accountID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not an account id", ErrInvalidToken)
	}

	return &Identity{
		AccountID: accountID,
		Name:      claims.Name,
		Email:     claims.Email,
		Method:    MethodBearer,
	}, nil
}

// VerifyRequest validates the bearer token in the Authorization header.
func (v *Verifier) VerifyRequest(r *http.Request) (*Identity, error) {
	token := extractBearerToken(r)
	if token == "" {
		return nil, fmt.Errorf("%w: missing bearer token", ErrInvalidToken)
	}
	return v.Verify(token)
}

func extractBearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
