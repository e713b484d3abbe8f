package tenant

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/screenleads/backend/pkg/api"
	"github.com/screenleads/backend/pkg/auth"
	"github.com/screenleads/backend/pkg/debug"
	"github.com/screenleads/backend/pkg/storage"
	"github.com/screenleads/backend/pkg/transport"
)

// Isolation is the tenant isolation stage.
type Isolation struct {
	Pool     storage.SessionPool
	Resolver *Resolver

	// CleanupTimeout bounds deactivation (default: DefaultCleanupTimeout).
	CleanupTimeout time.Duration
}

// Middleware runs each request inside a Guard for the caller's scope. The
// session and scope are bound to the request context for the handler.
// The handler is not run when the restriction cannot be activated.
func (iso *Isolation) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		resolver := iso.Resolver
		if resolver == nil {
			resolver = &Resolver{}
		}
		principal := auth.PrincipalFromContext(ctx)
		scope, err := resolver.Resolve(ctx, principal)
		if err != nil {
			slog.Error("tenant scope resolution failed",
				"path", r.URL.Path,
				"request_id", transport.RequestIDFromContext(ctx),
				"error", err,
			)
			transport.WriteAPIError(w, api.NewActivationError())
			return
		}

		debug.Trace("tenant", "scope resolved",
			"principal", principal.Kind().String(),
			"scope", scope.String(),
			"path", r.URL.Path,
		)

		guard, err := Open(ctx, iso.Pool, scope, iso.CleanupTimeout)
		if err != nil {
			slog.Error("tenant isolation failed",
				"path", r.URL.Path,
				"scope", scope.String(),
				"request_id", transport.RequestIDFromContext(ctx),
				"error", err,
			)
			if errors.Is(err, ErrActivation) {
				transport.WriteAPIError(w, api.NewActivationError())
				return
			}
			transport.WriteErrorResponse(w, api.NewServerError("storage unavailable"), http.StatusServiceUnavailable)
			return
		}
		defer guard.Close()

		ctx = storage.WithSession(ctx, guard.Session())
		ctx = WithScope(ctx, scope)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
