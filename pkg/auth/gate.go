package auth

import (
	"context"
	"log/slog"
	"net/http"
)

// UserCounter reports the number of registered accounts.
type UserCounter interface {
	CountUsers(ctx context.Context) (int64, error)
}

// RegistrationGate decides who may create accounts. The very first account
// can be created by anyone; after that only administrators may register
// new users.
type RegistrationGate struct {
	Users UserCounter
}

// AllowRegister reports whether the caller in ctx may register a user.
// A failure to count users denies registration.
func (g *RegistrationGate) AllowRegister(ctx context.Context) bool {
	n, err := g.Users.CountUsers(ctx)
	if err != nil {
		slog.Error("counting users for registration gate", "error", err)
		return false
	}
	if n == 0 {
		return true
	}
	return IdentityFromContext(ctx).IsElevated()
}

// Middleware rejects registration requests the gate does not allow:
// 401 without an identity, 403 for a non-administrator.
func (g *RegistrationGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.AllowRegister(r.Context()) {
			next.ServeHTTP(w, r)
			return
		}
		DenyRegistration(w, r)
	})
}

// DenyRegistration writes the gate's rejection for the caller of r.
func DenyRegistration(w http.ResponseWriter, r *http.Request) {
	if IdentityFromContext(r.Context()) == nil {
		WriteUnauthenticated(w)
		return
	}
	WriteForbidden(w, "only administrators may register users")
}
