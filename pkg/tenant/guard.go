package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/screenleads/backend/pkg/debug"
	"github.com/screenleads/backend/pkg/observability"
	"github.com/screenleads/backend/pkg/storage"
)

// ErrActivation is returned when the restriction for a request could not
// be put in place.
var ErrActivation = errors.New("tenant restriction activation failed")

// DefaultCleanupTimeout bounds deactivation at the end of a request.
const DefaultCleanupTimeout = 5 * time.Second

// Guard holds one session with the restriction of one scope active. Close
// must be called exactly once the work under the scope is done; it is safe
// to call more than once.
type Guard struct {
	session   storage.Session
	scope     Scope
	activated bool
	closed    bool

	// cleanupCtx survives cancellation of the request context.
	cleanupCtx     context.Context
	cleanupTimeout time.Duration
}

// Open acquires a session from pool and activates the restriction for
// scope on it. On activation failure the session is released and the
// returned error wraps ErrActivation.
func Open(ctx context.Context, pool storage.SessionPool, scope Scope, cleanupTimeout time.Duration) (*Guard, error) {
	sess, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring session: %w", err)
	}

	if cleanupTimeout <= 0 {
		cleanupTimeout = DefaultCleanupTimeout
	}
	g := &Guard{
		session:        sess,
		scope:          scope,
		cleanupCtx:     context.WithoutCancel(ctx),
		cleanupTimeout: cleanupTimeout,
	}

	if scope.Restricted() {
		if err := sess.ActivateRestriction(ctx, scope.RestrictionID()); err != nil {
			observability.RestrictionActivationFailuresTotal.Inc()
			sess.Release()
			return nil, fmt.Errorf("%w: %w", ErrActivation, err)
		}
		g.activated = true
		observability.RestrictionActivationsTotal.WithLabelValues(scope.Kind().String()).Inc()
		observability.ActiveRestrictions.Inc()
		debug.Log("tenant", "restriction activated", "scope", scope.String())
	}

	return g, nil
}

// Session returns the guarded session.
func (g *Guard) Session() storage.Session { return g.session }

// Scope returns the scope the guard was opened with.
func (g *Guard) Scope() Scope { return g.scope }

// Close deactivates the restriction, if one was activated, and releases
// the session. Deactivation failures are logged and counted but never
// returned; the session pool discards a session whose restriction may
// still be active.
func (g *Guard) Close() {
	if g.closed {
		return
	}
	g.closed = true
	defer g.session.Release()

	if !g.activated {
		return
	}
	observability.ActiveRestrictions.Dec()

	ctx, cancel := context.WithTimeout(g.cleanupCtx, g.cleanupTimeout)
	defer cancel()

	if err := g.session.DeactivateRestriction(ctx); err != nil {
		observability.RestrictionCleanupFailuresTotal.Inc()
		slog.Warn("tenant restriction cleanup failed",
			"scope", g.scope.String(),
			"error", err,
		)
		return
	}
	observability.RestrictionDeactivationsTotal.Inc()
	debug.Log("tenant", "restriction deactivated", "scope", g.scope.String())
}
