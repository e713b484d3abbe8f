package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

// RateLimitDecision is the outcome of one rate limit check.
type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int) (RateLimitDecision, error)
}

// ErrLimiterFull is returned when the in-process limiter tracks too many keys.
var ErrLimiterFull = errors.New("rate limiter capacity exceeded")

// InProcessLimiter is a fixed-window rate limiter that tracks request
// counts per key in memory.
type InProcessLimiter struct {
	window  time.Duration
	maxKeys int
	now     func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
}

type counter struct {
	count     int
	windowEnd time.Time
}

// NewInProcessLimiter creates a limiter with the given window length
// (default one minute).
func NewInProcessLimiter(window time.Duration) *InProcessLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &InProcessLimiter{
		window:   window,
		maxKeys:  10000,
		now:      time.Now,
		counters: make(map[string]*counter),
	}
}

// Allow records one request for key. A non-positive limit disables limiting.
func (l *InProcessLimiter) Allow(_ context.Context, key string, limit int) (RateLimitDecision, error) {
	if limit <= 0 {
		return RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.counters[key]
	if !ok || !now.Before(c.windowEnd) {
		if !ok && len(l.counters) >= l.maxKeys {
			l.gc(now)
			if len(l.counters) >= l.maxKeys {
				return RateLimitDecision{}, ErrLimiterFull
			}
		}
		c = &counter{windowEnd: now.Add(l.window)}
		l.counters[key] = c
	}

	if c.count >= limit {
		return RateLimitDecision{Allowed: false, Limit: limit, Remaining: 0, ResetAt: c.windowEnd}, nil
	}
	c.count++
	return RateLimitDecision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - c.count,
		ResetAt:   c.windowEnd,
	}, nil
}

func (l *InProcessLimiter) gc(now time.Time) {
	for key, c := range l.counters {
		if !now.Before(c.windowEnd) {
			delete(l.counters, key)
		}
	}
}
