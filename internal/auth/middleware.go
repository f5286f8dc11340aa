package auth

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// SessionProvider resolves the browser session of a request.
type SessionProvider interface {
	// SessionIdentity returns the identity of the session cookie on r, or an
	// error when there is no valid session.
	SessionIdentity(r *http.Request) (*Identity, error)
}

// IdentityMiddleware attaches the caller identity to the request context.
// A valid bearer token from the Authorization header wins; otherwise the
// session cookie is used, including when the token is missing, rejected or
// cannot be checked. Requests are never rejected here; handlers decide whether
// an identity is required.
func IdentityMiddleware(verifier *Verifier, sessions SessionProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identity, ok := bearerIdentity(verifier, r); ok {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
				return
			}

			if sessions != nil {
				identity, err := sessions.SessionIdentity(r)
				if err == nil {
					log.Debug().
						Str("account_id", identity.AccountID.String()).
						Msg("identity: session authenticated")

					next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
					return
				}
				log.Debug().Err(err).Msg("identity: no session")
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerIdentity(verifier *Verifier, r *http.Request) (*Identity, bool) {
	if extractBearerToken(r) == "" {
		return nil, false
	}
	if verifier == nil {
		log.Debug().Msg("identity: bearer token presented but no verifier configured")
		return nil, false
	}

	identity, err := verifier.VerifyRequest(r)
	if err != nil {
		log.Debug().Err(err).Msg("identity: bearer token rejected")
		return nil, false
	}

	log.Debug().
		Str("account_id", identity.AccountID.String()).
		Msg("identity: bearer authenticated")
	return identity, true
}
