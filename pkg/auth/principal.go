package auth

import (
	"context"
	"slices"
)

// PrincipalKind tags the shape of a Principal.
type PrincipalKind int

const (
	// PrincipalNone means nobody is authenticated.
	PrincipalNone PrincipalKind = iota

	// PrincipalIdentity carries a fully loaded Identity.
	PrincipalIdentity

	// PrincipalCredentials carries a generic credential set that still has
	// to be looked up by subject.
	PrincipalCredentials

	// PrincipalSubject carries only a raw subject string.
	PrincipalSubject

	// PrincipalAPIKey carries an API key principal.
	PrincipalAPIKey
)

func (k PrincipalKind) String() string {
	switch k {
	case PrincipalIdentity:
		return "identity"
	case PrincipalCredentials:
		return "credentials"
	case PrincipalSubject:
		return "subject"
	case PrincipalAPIKey:
		return "api_key"
	default:
		return "none"
	}
}

// Credentials is a credential set that names a subject but has not been
// resolved to an Identity.
type Credentials struct {
	Subject string
	Roles   []string
}

// APIKeyPrincipal is the caller established by an API key.
type APIKeyPrincipal struct {
	KeyID       int64
	ClientID    string
	Live        bool
	Permissions []string

	// CompanyScope restricts the key to one company. Nil grants access to
	// every company.
	CompanyScope *int64
}

// HasPermission checks a "resource:action" permission. Grants of the form
// "resource:*", "*:action", "*:*" and "*" are honoured.
func (p *APIKeyPrincipal) HasPermission(resource, action string) bool {
	if p == nil || len(p.Permissions) == 0 {
		return false
	}
	candidates := []string{
		resource + ":" + action,
		resource + ":*",
		"*:" + action,
		"*:*",
		"*",
	}
	for _, c := range candidates {
		if slices.Contains(p.Permissions, c) {
			return true
		}
	}
	return false
}

// Principal is the caller of a request in one of several shapes. Exactly one
// accessor returns a meaningful value, selected by Kind.
type Principal struct {
	kind        PrincipalKind
	identity    *Identity
	credentials Credentials
	subject     string
	apiKey      *APIKeyPrincipal
}

// FromIdentity wraps a loaded identity. A nil identity yields the empty principal.
func FromIdentity(id *Identity) Principal {
	if id == nil {
		return Principal{}
	}
	return Principal{kind: PrincipalIdentity, identity: id}
}

// FromCredentials wraps a credential set.
func FromCredentials(c Credentials) Principal {
	return Principal{kind: PrincipalCredentials, credentials: c}
}

// FromSubject wraps a raw subject string.
func FromSubject(subject string) Principal {
	return Principal{kind: PrincipalSubject, subject: subject}
}

// FromAPIKey wraps an API key principal. A nil key yields the empty principal.
func FromAPIKey(k *APIKeyPrincipal) Principal {
	if k == nil {
		return Principal{}
	}
	return Principal{kind: PrincipalAPIKey, apiKey: k}
}

func (p Principal) Kind() PrincipalKind      { return p.kind }
func (p Principal) Identity() *Identity      { return p.identity }
func (p Principal) Credentials() Credentials { return p.credentials }
func (p Principal) RawSubject() string       { return p.subject }
func (p Principal) APIKey() *APIKeyPrincipal { return p.apiKey }
func (p Principal) IsAuthenticated() bool    { return p.kind != PrincipalNone }

// Subject returns the subject named by the principal, whatever its shape.
func (p Principal) Subject() string {
	switch p.kind {
	case PrincipalIdentity:
		return p.identity.Subject
	case PrincipalCredentials:
		return p.credentials.Subject
	case PrincipalSubject:
		return p.subject
	case PrincipalAPIKey:
		return p.apiKey.ClientID
	default:
		return ""
	}
}

// PrincipalFromContext returns the caller of the request. A bearer identity
// takes precedence over an API key.
func PrincipalFromContext(ctx context.Context) Principal {
	if id := IdentityFromContext(ctx); id != nil {
		return FromIdentity(id)
	}
	if k := APIKeyFromContext(ctx); k != nil {
		return FromAPIKey(k)
	}
	return Principal{}
}
