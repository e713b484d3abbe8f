package auth

import "context"

// identityKey is a private type for the identity context key.
type identityKey struct{}

// apiKeyKey is a private type for the API key principal context key.
type apiKeyKey struct{}

// SetIdentity stores the authenticated identity in the context.
func SetIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext retrieves the authenticated identity.
// Returns nil if no identity is set.
func IdentityFromContext(ctx context.Context) *Identity {
	if v, ok := ctx.Value(identityKey{}).(*Identity); ok {
		return v
	}
	return nil
}

// SetAPIKey stores an API key principal in the context.
func SetAPIKey(ctx context.Context, p *APIKeyPrincipal) context.Context {
	return context.WithValue(ctx, apiKeyKey{}, p)
}

// APIKeyFromContext retrieves the API key principal, or nil.
func APIKeyFromContext(ctx context.Context) *APIKeyPrincipal {
	if v, ok := ctx.Value(apiKeyKey{}).(*APIKeyPrincipal); ok {
		return v
	}
	return nil
}
