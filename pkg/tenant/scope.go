package tenant

import (
	"context"
	"strconv"

	"github.com/screenleads/backend/pkg/storage"
)

// Kind is the shape of a Scope.
type Kind int

const (
	// KindNoAccess matches no tenant data. It is the zero value.
	KindNoAccess Kind = iota

	// KindTenant restricts data to one company.
	KindTenant

	// KindUnrestricted sees every company.
	KindUnrestricted
)

func (k Kind) String() string {
	switch k {
	case KindTenant:
		return "tenant"
	case KindUnrestricted:
		return "unrestricted"
	default:
		return "no_access"
	}
}

// Scope is the resolved data visibility of one request.
type Scope struct {
	kind      Kind
	companyID int64
}

// Unrestricted returns the scope of callers with global visibility.
func Unrestricted() Scope { return Scope{kind: KindUnrestricted} }

// NoAccess returns the scope that matches no tenant data.
func NoAccess() Scope { return Scope{kind: KindNoAccess} }

// Tenant returns the scope restricted to one company. Non-positive ids
// yield NoAccess.
func Tenant(companyID int64) Scope {
	if companyID <= 0 {
		return NoAccess()
	}
	return Scope{kind: KindTenant, companyID: companyID}
}

// Kind returns the scope's shape.
func (s Scope) Kind() Kind { return s.kind }

// CompanyID returns the company of a tenant scope.
func (s Scope) CompanyID() (int64, bool) {
	return s.companyID, s.kind == KindTenant
}

// Restricted reports whether a restriction must be active for this scope.
func (s Scope) Restricted() bool { return s.kind != KindUnrestricted }

// RestrictionID returns the company id to activate. NoAccess maps to
// storage.NoAccessCompanyID.
func (s Scope) RestrictionID() int64 {
	if s.kind == KindTenant {
		return s.companyID
	}
	return storage.NoAccessCompanyID
}

// Allows reports whether data of companyID is visible in this scope.
func (s Scope) Allows(companyID int64) bool {
	switch s.kind {
	case KindUnrestricted:
		return true
	case KindTenant:
		return s.companyID == companyID
	default:
		return false
	}
}

func (s Scope) String() string {
	if s.kind == KindTenant {
		return "tenant(" + strconv.FormatInt(s.companyID, 10) + ")"
	}
	return s.kind.String()
}

// scopeKey is a private type for the scope context key.
type scopeKey struct{}

// WithScope stores the resolved scope in the context.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFromContext returns the scope resolved for the request. Without one
// it returns NoAccess and false.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	return s, ok
}
