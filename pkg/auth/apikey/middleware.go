package apikey

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/screenleads/backend/pkg/api"
	"github.com/screenleads/backend/pkg/auth"
	"github.com/screenleads/backend/pkg/debug"
	"github.com/screenleads/backend/pkg/observability"
	"github.com/screenleads/backend/pkg/transport"
)

// Header names.
const (
	HeaderKey         = "X-API-KEY"
	HeaderClientID    = "client-id"
	HeaderClientIDAlt = "client_id"
)

// Default per-minute request budgets.
const (
	DefaultTestLimit = 100
	DefaultLiveLimit = 1000
)

// Stage is the API key authentication stage.
type Stage struct {
	Authenticator *Authenticator

	// Limiter counts requests per key. Nil disables rate limiting.
	Limiter auth.RateLimiter

	TestLimit int
	LiveLimit int

	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *Stage) limitFor(p *auth.APIKeyPrincipal) int {
	if p.Live {
		if s.LiveLimit > 0 {
			return s.LiveLimit
		}
		return DefaultLiveLimit
	}
	if s.TestLimit > 0 {
		return s.TestLimit
	}
	return DefaultTestLimit
}

func (s *Stage) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Middleware attaches an API key principal to requests that carry a valid
// key and no bearer identity. Requests with an invalid key continue
// without a principal; authorization decides what they may do. A key over
// its budget is rejected with 429.
func (s *Stage) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.IdentityFromContext(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(HeaderKey)
		clientID := r.Header.Get(HeaderClientIDAlt)
		if clientID == "" {
			clientID = r.Header.Get(HeaderClientID)
		}
		if key == "" || clientID == "" {
			next.ServeHTTP(w, r)
			return
		}

		principal, err := s.Authenticator.Authenticate(r.Context(), clientID, key)
		if err != nil {
			outcome := "invalid"
			if !errors.Is(err, ErrInvalidKey) && !errors.Is(err, ErrInvalidFormat) {
				outcome = "error"
				slog.Error("api key lookup failed", "client_id", clientID, "error", err)
			} else {
				slog.Warn("api key rejected",
					"client_id", clientID,
					"key", debug.Mask(key),
					"path", r.URL.Path,
				)
			}
			observability.APIKeyAttemptsTotal.WithLabelValues(outcome).Inc()
			next.ServeHTTP(w, r)
			return
		}

		if s.Limiter != nil {
			limitKey := "apikey:" + strconv.FormatInt(principal.KeyID, 10)
			decision, err := s.Limiter.Allow(r.Context(), limitKey, s.limitFor(principal))
			if err != nil {
				slog.Warn("api key rate limit unavailable", "key_id", principal.KeyID, "error", err)
			} else {
				resetIn := s.resetSeconds(decision.ResetAt)
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.Itoa(resetIn))
				if !decision.Allowed {
					observability.APIKeyAttemptsTotal.WithLabelValues("rate_limited").Inc()
					observability.RateLimitRejectedTotal.WithLabelValues("apikey").Inc()
					slog.Warn("api key rate limit exceeded",
						"key_id", principal.KeyID,
						"live", principal.Live,
						"limit", decision.Limit,
					)
					w.Header().Set("Retry-After", strconv.Itoa(resetIn))
					transport.WriteAPIError(w, api.NewTooManyRequestsError(
						"rate limit of "+strconv.Itoa(decision.Limit)+" requests per minute exceeded",
					))
					return
				}
			}
		}

		observability.APIKeyAttemptsTotal.WithLabelValues("authenticated").Inc()
		debug.Log("auth", "api key accepted",
			"key_id", principal.KeyID,
			"client_id", principal.ClientID,
			"live", principal.Live,
		)
		next.ServeHTTP(w, r.WithContext(auth.SetAPIKey(r.Context(), principal)))
	})
}

func (s *Stage) resetSeconds(at time.Time) int {
	secs := int(math.Ceil(at.Sub(s.now()).Seconds()))
	return max(secs, 0)
}
