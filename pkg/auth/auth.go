package auth

import (
	"context"
	"errors"
	"slices"
	"time"
)

// Well-known role names.
const (
	// RoleAdmin grants global visibility and is exempt from tenant restriction.
	RoleAdmin = "ROLE_ADMIN"

	// RoleCompanyViewer is assigned to accounts registered after bootstrap.
	RoleCompanyViewer = "ROLE_COMPANY_VIEWER"

	// RoleAPIClient is carried by callers authenticated with an API key.
	RoleAPIClient = "API_CLIENT"
)

// Identity represents the authenticated caller of one request.
type Identity struct {
	// Subject is the unique, stable identifier (the username).
	Subject string

	// Roles lists the granted role names.
	Roles []string

	// CompanyID references the tenant the caller belongs to, if any.
	CompanyID *int64
}

// HasRole reports whether the identity carries the given role.
func (id *Identity) HasRole(role string) bool {
	if id == nil {
		return false
	}
	return slices.Contains(id.Roles, role)
}

// IsElevated reports whether the identity has global visibility.
func (id *Identity) IsElevated() bool {
	return id.HasRole(RoleAdmin)
}

// TenantID returns the company the identity belongs to.
func (id *Identity) TenantID() (int64, bool) {
	if id == nil || id.CompanyID == nil {
		return 0, false
	}
	return *id.CompanyID, true
}

// Claims is the verified content of a bearer credential.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Roles     []string
}

// CredentialVerifier validates an opaque bearer token. Malformed, forged and
// expired tokens are reported as errors wrapping ErrInvalidCredential.
type CredentialVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// IdentityLoader resolves a subject to its identity. It returns
// ErrIdentityNotFound when the subject is blank or unknown.
type IdentityLoader interface {
	LoadIdentity(ctx context.Context, subject string) (*Identity, error)
}

// PublicMatcher decides whether a path can be reached without authentication.
type PublicMatcher interface {
	IsPublic(path string) bool
}

// Sentinel errors.
var (
	ErrInvalidCredential = errors.New("invalid credential")
	ErrIdentityNotFound  = errors.New("identity not found")
	ErrUnauthenticated   = errors.New("authentication required")
	ErrForbidden         = errors.New("access denied")
	ErrTooManyRequests   = errors.New("rate limit exceeded")
)

// IsAuthenticationFailure reports whether err must be answered with the
// uniform unauthenticated response.
func IsAuthenticationFailure(err error) bool {
	return errors.Is(err, ErrInvalidCredential) ||
		errors.Is(err, ErrIdentityNotFound) ||
		errors.Is(err, ErrUnauthenticated)
}
