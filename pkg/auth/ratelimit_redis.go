package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisAllowScript increments the window counter and starts its expiry on
// the first hit.
var redisAllowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisLimiter is a fixed-window rate limiter shared by every replica
// through Redis.
type RedisLimiter struct {
	client    redis.UniversalClient
	window    time.Duration
	keyPrefix string
	now       func() time.Time
}

// NewRedisLimiter creates a limiter on an existing client.
func NewRedisLimiter(client redis.UniversalClient, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{
		client:    client,
		window:    window,
		keyPrefix: "screenleads:ratelimit:",
		now:       time.Now,
	}
}

// Allow records one request for key. A non-positive limit disables limiting.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int) (RateLimitDecision, error) {
	if limit <= 0 {
		return RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}

	result, err := redisAllowScript.Run(ctx, l.client, []string{l.keyPrefix + key}, l.window.Milliseconds()).Result()
	if err != nil {
		return RateLimitDecision{}, fmt.Errorf("running rate limit script: %w", err)
	}
	values, ok := result.([]any)
	if !ok || len(values) < 2 {
		return RateLimitDecision{}, errors.New("unexpected redis rate limit response")
	}
	current, ok := values[0].(int64)
	if !ok {
		return RateLimitDecision{}, errors.New("invalid redis counter response")
	}
	ttlMillis, _ := values[1].(int64)

	resetAt := l.now()
	if ttlMillis > 0 {
		resetAt = resetAt.Add(time.Duration(ttlMillis) * time.Millisecond)
	}
	remaining := max(limit-int(current), 0)

	return RateLimitDecision{
		Allowed:   current <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
