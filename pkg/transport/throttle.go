package transport

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/screenleads/backend/pkg/api"
	"github.com/screenleads/backend/pkg/observability"
)

// ThrottleConfig configures per-client token buckets.
type ThrottleConfig struct {
	// Rate is the sustained number of requests per second.
	Rate rate.Limit

	// Burst is the bucket size.
	Burst int

	// IdleTTL is how long an unused client bucket is kept (default: 10 minutes).
	IdleTTL time.Duration

	// Name labels rejections in metrics and logs.
	Name string
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle limits requests per client address with token buckets.
type Throttle struct {
	cfg ThrottleConfig

	mu      sync.Mutex
	clients map[string]*clientLimiter
	now     func() time.Time
}

// NewThrottle creates a throttle. Call Sweep periodically, or run Start, to
// drop idle clients.
func NewThrottle(cfg ThrottleConfig) *Throttle {
	if cfg.IdleTTL == 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Name == "" {
		cfg.Name = "throttle"
	}
	return &Throttle{
		cfg:     cfg,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

// Start sweeps idle clients until stop is closed.
func (t *Throttle) Start(stop <-chan struct{}) {
	ticker := time.NewTicker(t.cfg.IdleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.Sweep()
		case <-stop:
			return
		}
	}
}

// Sweep removes clients idle for longer than IdleTTL.
func (t *Throttle) Sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for key, c := range t.clients {
		if now.Sub(c.lastSeen) > t.cfg.IdleTTL {
			delete(t.clients, key)
		}
	}
}

// Clients returns the number of tracked clients.
func (t *Throttle) Clients() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}

func (t *Throttle) allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	c, ok := t.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(t.cfg.Rate, t.cfg.Burst)}
		t.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Middleware rejects requests beyond the client's budget with 429.
func (t *Throttle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.allow(ClientAddr(r)) {
			observability.RateLimitRejectedTotal.WithLabelValues(t.cfg.Name).Inc()
			retryAfter := 1
			if t.cfg.Rate > 0 {
				retryAfter = max(int(math.Ceil(1/float64(t.cfg.Rate))), 1)
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			WriteAPIError(w, api.NewTooManyRequestsError("too many requests, retry later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientAddr returns the host part of the request's remote address.
func ClientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
