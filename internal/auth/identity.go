package auth

import (
	"context"

	"github.com/google/uuid"
)

// Method records how a caller authenticated.
type Method string

const (
	MethodSession Method = "session"
	MethodBearer  Method = "bearer"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	AccountID uuid.UUID
	Name      string // display name, may be empty
	Email     string // contact email, may be empty
	Method    Method
}

type contextKey int

const (
	identityContextKey contextKey = iota
)

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext returns the caller identity, if the request was authenticated.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	return identity, ok && identity != nil
}
