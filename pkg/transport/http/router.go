package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/screenleads/backend/pkg/auth"
	"github.com/screenleads/backend/pkg/auth/apikey"
	"github.com/screenleads/backend/pkg/observability"
	"github.com/screenleads/backend/pkg/realtime"
	"github.com/screenleads/backend/pkg/storage"
	"github.com/screenleads/backend/pkg/tenant"
	"github.com/screenleads/backend/pkg/transport"
)

// TokenIssuer issues access tokens for authenticated accounts.
type TokenIssuer interface {
	Issue(id *auth.Identity) (string, time.Time, error)
}

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps are the collaborators wired into the router.
type Deps struct {
	Authn  *auth.BearerAuthenticator
	Public auth.PublicMatcher
	Tokens TokenIssuer

	Users   storage.UserStore
	Tenants storage.TenantReader
	Pool    storage.SessionPool
	Health  HealthChecker

	// APIKeys is optional; without it API keys are ignored.
	APIKeys *apikey.Stage

	// LoginThrottle is optional.
	LoginThrottle *transport.Throttle

	// Hub is optional; without it the websocket routes are not mounted.
	Hub *realtime.Hub

	CleanupTimeout time.Duration
	MaxBodySize    int64
	Logger         *slog.Logger
}

// NewRouter builds the request pipeline: recovery, request id, access
// log, metrics, path normalisation, bearer authentication and API key
// authentication run for every request; authorization and tenant
// isolation run per route group.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := d.MaxBodySize
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	h := &handlers{
		tokens:  d.Tokens,
		users:   d.Users,
		tenants: d.Tenants,
		health:  d.Health,
		maxBody: maxBody,
	}
	gate := &auth.RegistrationGate{Users: d.Users}
	isolation := &tenant.Isolation{
		Pool:           d.Pool,
		Resolver:       &tenant.Resolver{Loader: d.Authn.Loader},
		CleanupTimeout: d.CleanupTimeout,
	}

	r := chi.NewRouter()
	r.Use(
		transport.Recovery(logger),
		transport.RequestID(),
		transport.Logging(logger),
		observability.MetricsMiddleware,
		transport.NormalizePath(),
		auth.Middleware(d.Authn, d.Public),
	)
	if d.APIKeys != nil {
		r.Use(d.APIKeys.Middleware)
	}

	// Public.
	r.Group(func(r chi.Router) {
		if d.LoginThrottle != nil {
			r.Use(d.LoginThrottle.Middleware)
		}
		r.Post("/auth/login", h.login)
	})
	r.Get("/healthz", h.healthz)
	r.Get("/actuator/health", h.actuatorHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/v3/api-docs", serveAPIDocs)
	r.Get("/v3/api-docs/*", serveAPIDocs)
	r.Get("/swagger-ui.html", redirectSwagger)
	r.Get("/swagger-ui/*", serveSwaggerUI)

	// Bootstrap.
	r.With(gate.Middleware).Post("/auth/register", h.register)

	// Bearer identity only.
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireIdentity)
		r.Get("/auth/me", h.me)
		r.Post("/auth/refresh", h.refresh)
		if d.Hub != nil {
			r.Post("/ws/command/*", d.Hub.ServeCommand)
		}
	})

	// Tenant-scoped data.
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuthenticated)
		r.With(auth.RequirePermission("companies", "read"), isolation.Middleware).Get("/companies", h.listCompanies)
		r.With(auth.RequirePermission("devices", "read"), isolation.Middleware).Get("/devices", h.listDevices)
	})

	if d.Hub != nil {
		r.Get("/ws/status", d.Hub.ServeStatus)
		r.Get("/ws/connect", d.Hub.ServeConnect)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		transport.WriteAPIError(w, apiNotFound(r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		transport.WriteErrorResponse(w, apiMethodNotAllowed(r.Method), http.StatusMethodNotAllowed)
	})

	return r
}
