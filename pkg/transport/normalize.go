package transport

import (
	"net/http"

	"github.com/screenleads/backend/pkg/auth/route"
)

// NormalizePath collapses repeated slashes in the request path before
// routing and authentication see it. RawPath is cleared so the router
// matches the cleaned path.
func NormalizePath() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cleaned := route.CleanPath(r.URL.Path); cleaned != r.URL.Path {
				r2 := r.Clone(r.Context())
				r2.URL.Path = cleaned
				r2.URL.RawPath = ""
				r = r2
			}
			next.ServeHTTP(w, r)
		})
	}
}
