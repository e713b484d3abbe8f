package auth

import "net/http"

// Preflight requests carry no credentials and pass every guard below.
func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions
}

// RequireAuthenticated rejects requests that carry neither a bearer
// identity nor an API key principal.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isPreflight(r) && !PrincipalFromContext(r.Context()).IsAuthenticated() {
			WriteUnauthenticated(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireIdentity rejects requests without a bearer identity. API key
// principals are not accepted.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isPreflight(r) && IdentityFromContext(r.Context()) == nil {
			WriteUnauthenticated(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission admits bearer identities, and API key principals that
// hold resource:action.
func RequirePermission(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPreflight(r) {
				next.ServeHTTP(w, r)
				return
			}
			p := PrincipalFromContext(r.Context())
			switch p.Kind() {
			case PrincipalIdentity:
				next.ServeHTTP(w, r)
			case PrincipalAPIKey:
				if !p.APIKey().HasPermission(resource, action) {
					WriteForbidden(w, "api key lacks permission "+resource+":"+action)
					return
				}
				next.ServeHTTP(w, r)
			default:
				WriteUnauthenticated(w)
			}
		})
	}
}
