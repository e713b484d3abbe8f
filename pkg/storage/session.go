package storage

import "context"

// NoAccessCompanyID is the tenant id activated for callers that may see no
// tenant data at all. No company carries it, so every restricted read
// returns nothing.
const NoAccessCompanyID int64 = -1

// Session is one unit of data access, typically a pooled connection, held
// for the duration of a request. It carries at most one tenant restriction.
//
// Activation and deactivation are paired by the caller. DeactivateRestriction
// is idempotent. Release returns the session to its pool; a session whose
// restriction may still be active is discarded instead of reused.
type Session interface {
	ActivateRestriction(ctx context.Context, companyID int64) error
	DeactivateRestriction(ctx context.Context) error
	RestrictionActive(ctx context.Context) (bool, error)
	Release()
}

// SessionPool hands out sessions. Every acquired session starts without a
// restriction.
type SessionPool interface {
	Acquire(ctx context.Context) (Session, error)
}

// sessionKey is a private type for the session context key, preventing
// collisions with other packages.
type sessionKey struct{}

// WithSession binds a session to the context.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session bound to the context, or nil.
func SessionFromContext(ctx context.Context) Session {
	if s, ok := ctx.Value(sessionKey{}).(Session); ok {
		return s
	}
	return nil
}
