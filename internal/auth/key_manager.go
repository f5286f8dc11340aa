package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mr-tron/base58"
)

// KeyManager holds the ECDSA P-256 keypair used to sign bearer tokens.
type KeyManager struct {
	privateKey *ecdsa.PrivateKey
	publicKey  *ecdsa.PublicKey
	kid        string // Key ID (fingerprint)
}

// NewKeyManager creates a KeyManager with a fresh keypair. Tokens signed by a
// generated key do not survive a restart.
func NewKeyManager() (*KeyManager, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key: %w", err)
	}
	return newKeyManager(privateKey)
}

// NewKeyManagerFromPEM loads a PEM encoded EC private key (SEC 1 or PKCS #8).
func NewKeyManagerFromPEM(privateKeyPEM []byte) (*KeyManager, error) {
	privateKey, err := jwt.ParseECPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	if privateKey.Curve != elliptic.P256() {
		return nil, fmt.Errorf("signing key must use the P-256 curve")
	}
	return newKeyManager(privateKey)
}

// newKeyManager computes the kid as the base58-encoded SHA256 hash of the
// public key DER bytes.
func newKeyManager(privateKey *ecdsa.PrivateKey) (*KeyManager, error) {
	pubKeyDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	hash := sha256.Sum256(pubKeyDER)

	return &KeyManager{
		privateKey: privateKey,
		publicKey:  &privateKey.PublicKey,
		kid:        base58.Encode(hash[:]),
	}, nil
}

// Kid returns the key ID (fingerprint) for this keypair.
func (km *KeyManager) Kid() string {
	return km.kid
}

// PublicKey returns the verification key.
func (km *KeyManager) PublicKey() *ecdsa.PublicKey {
	return km.publicKey
}

// PrivateKeyPEM encodes the signing key as a PKCS #8 PEM block.
func (km *KeyManager) PrivateKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(km.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// SignJWT signs claims with the private key. The header carries the kid.
func (km *KeyManager) SignJWT(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = km.kid

	tokenString, err := token.SignedString(km.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}

	return tokenString, nil
}

// JWK returns the public key in JWK (JSON Web Key) format.
func (km *KeyManager) JWK() map[string]any {
	// P-256 coordinates are fixed width, big.Int.Bytes drops leading zeros
	x := make([]byte, 32)
	y := make([]byte, 32)
	km.publicKey.X.FillBytes(x)
	km.publicKey.Y.FillBytes(y)

	return map[string]any{
		"kty": "EC",
		"use": "sig",
		"crv": "P-256",
		"kid": km.kid,
		"x":   base64.RawURLEncoding.EncodeToString(x),
		"y":   base64.RawURLEncoding.EncodeToString(y),
		"alg": "ES256",
	}
}
