package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/screenleads/backend/pkg/api"
	"github.com/screenleads/backend/pkg/debug"
	"github.com/screenleads/backend/pkg/observability"
	"github.com/screenleads/backend/pkg/transport"
)

// bearerPrefix is the case-sensitive scheme prefix of the Authorization header.
const bearerPrefix = "Bearer "

// BearerAuthenticator turns a bearer token into an identity.
type BearerAuthenticator struct {
	Verifier CredentialVerifier
	Loader   IdentityLoader

	// Now is the clock used to re-check expiry. Defaults to time.Now.
	Now func() time.Time
}

// AuthenticateToken verifies token, loads the identity it names and checks
// that both agree. Errors wrap ErrInvalidCredential or ErrIdentityNotFound
// for credential problems; any other error is unexpected.
func (a *BearerAuthenticator) AuthenticateToken(ctx context.Context, token string) (*Identity, error) {
	claims, err := a.Verifier.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, ErrInvalidCredential) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	id, err := a.Loader.LoadIdentity(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("loading identity for %q: %w", claims.Subject, err)
	}
	if id == nil {
		return nil, ErrIdentityNotFound
	}

	if id.Subject != claims.Subject {
		return nil, fmt.Errorf("%w: token subject does not match identity", ErrInvalidCredential)
	}

	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	if !claims.ExpiresAt.IsZero() && !now().Before(claims.ExpiresAt) {
		return nil, fmt.Errorf("%w: token expired", ErrInvalidCredential)
	}

	return id, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(bearerPrefix):]), true
}

// Middleware returns the bearer authentication stage.
//
// Public paths and requests without a bearer credential pass through
// untouched. A request whose context already carries an identity is not
// re-authenticated. Any credential failure, including an unexpected loader
// error, ends the request with the same 401 body; the identity is attached
// only after every check has succeeded.
func Middleware(authn *BearerAuthenticator, public PublicMatcher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				observability.AuthAttemptsTotal.WithLabelValues("preflight").Inc()
				next.ServeHTTP(w, r)
				return
			}

			if public != nil && public.IsPublic(r.URL.Path) {
				observability.AuthAttemptsTotal.WithLabelValues("public").Inc()
				next.ServeHTTP(w, r)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				observability.AuthAttemptsTotal.WithLabelValues("anonymous").Inc()
				next.ServeHTTP(w, r)
				return
			}

			if IdentityFromContext(r.Context()) != nil {
				observability.AuthAttemptsTotal.WithLabelValues("reused").Inc()
				next.ServeHTTP(w, r)
				return
			}

			id, err := authn.AuthenticateToken(r.Context(), token)
			if err != nil {
				outcome := failureOutcome(err)
				observability.AuthAttemptsTotal.WithLabelValues(outcome).Inc()
				if outcome == "error" {
					slog.Error("identity lookup failed",
						"path", r.URL.Path,
						"remote_addr", r.RemoteAddr,
						"error", err,
					)
				} else {
					slog.Warn("authentication failed",
						"path", r.URL.Path,
						"remote_addr", r.RemoteAddr,
						"reason", outcome,
					)
					debug.Log("auth", "rejected credential", "token", debug.Mask(token), "error", err)
				}
				WriteUnauthenticated(w)
				return
			}

			observability.AuthAttemptsTotal.WithLabelValues("authenticated").Inc()
			debug.Log("auth", "authentication succeeded",
				"subject", id.Subject,
				"path", r.URL.Path,
			)

			next.ServeHTTP(w, r.WithContext(SetIdentity(r.Context(), id)))
		})
	}
}

func failureOutcome(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredential):
		return "invalid_credential"
	case errors.Is(err, ErrIdentityNotFound):
		return "identity_not_found"
	default:
		return "error"
	}
}

// WriteUnauthenticated writes the uniform 401 response.
func WriteUnauthenticated(w http.ResponseWriter) {
	transport.WriteAuthError(w)
}

// WriteForbidden writes a 403 response.
func WriteForbidden(w http.ResponseWriter, message string) {
	transport.WriteErrorResponse(w, api.NewForbiddenError(message), http.StatusForbidden)
}
