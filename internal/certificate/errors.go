// Package certificate issues, registers and verifies course certificates.
package certificate

import "errors"

// Sentinel errors returned by the Coordinator and Verifier. HTTP handlers
// translate them to status codes.
var (
	// ErrConfiguration means a required backend (record store, blob store,
	// renderer) is not configured. Reported to clients without detail.
	ErrConfiguration = errors.New("server is not configured for this operation")

	ErrUnauthenticated = errors.New("sign in required")
	ErrValidation      = errors.New("invalid request")
	ErrForbidden       = errors.New("certificate belongs to another account")
	ErrRender          = errors.New("failed to render certificate")

	// ErrLookup wraps record store failures during verification.
	ErrLookup = errors.New("certificate lookup failed")
)
