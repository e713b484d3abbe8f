package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/screenleads/backend/pkg/auth"
	"github.com/screenleads/backend/pkg/debug"
)

// Resolver maps the caller of a request to its Scope.
type Resolver struct {
	// Loader resolves subjects for principals that carry no loaded identity.
	Loader auth.IdentityLoader
}

// Resolve returns the scope of p. Credential sets and raw subjects are
// looked up by subject first and then resolved like an identity; an unknown
// subject yields NoAccess. Only unexpected lookup failures are returned as
// errors.
func (r *Resolver) Resolve(ctx context.Context, p auth.Principal) (Scope, error) {
	switch p.Kind() {
	case auth.PrincipalIdentity:
		return ForIdentity(p.Identity()), nil
	case auth.PrincipalCredentials, auth.PrincipalSubject:
		return r.resolveSubject(ctx, p.Subject())
	case auth.PrincipalAPIKey:
		return ForAPIKey(p.APIKey()), nil
	default:
		return NoAccess(), nil
	}
}

func (r *Resolver) resolveSubject(ctx context.Context, subject string) (Scope, error) {
	if r.Loader == nil {
		return NoAccess(), nil
	}
	id, err := r.Loader.LoadIdentity(ctx, subject)
	if errors.Is(err, auth.ErrIdentityNotFound) {
		debug.Log("tenant", "subject not found, no access", "subject", subject)
		return NoAccess(), nil
	}
	if err != nil {
		return NoAccess(), fmt.Errorf("resolving scope for %q: %w", subject, err)
	}
	return ForIdentity(id), nil
}

// ForIdentity resolves an identity: administrators are unrestricted,
// members of a company see that company, everyone else sees nothing.
func ForIdentity(id *auth.Identity) Scope {
	if id == nil {
		return NoAccess()
	}
	if id.IsElevated() {
		return Unrestricted()
	}
	if companyID, ok := id.TenantID(); ok {
		return Tenant(companyID)
	}
	return NoAccess()
}

// ForAPIKey resolves an API key: a key scoped to a company sees that
// company, a key without a company scope is global.
func ForAPIKey(k *auth.APIKeyPrincipal) Scope {
	if k == nil {
		return NoAccess()
	}
	if k.CompanyScope == nil {
		return Unrestricted()
	}
	return Tenant(*k.CompanyScope)
}
