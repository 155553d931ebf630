package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// leakyBucketScript performs the leak-then-consume step as one atomic
// operation so concurrent requests for the same key cannot race between
// read and write. Returns {allowed, remaining, retryAfterSeconds}.
var leakyBucketScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local tokens = 0
local last_leak = now
local data = redis.call('HMGET', key, 'tokens', 'last_leak')
if data[1] then
  tokens = tonumber(data[1])
  last_leak = tonumber(data[2])
end

local elapsed = now - last_leak
local leaked = math.floor(elapsed * rate)
if leaked > 0 then
  tokens = math.max(0, tokens - leaked)
  last_leak = now
end

if tokens >= capacity then
  local retry_after = math.ceil((tokens - capacity + 1) / rate)
  redis.call('HSET', key, 'tokens', tokens, 'last_leak', last_leak)
  redis.call('EXPIRE', key, ttl)
  return {0, 0, retry_after}
end

tokens = tokens + 1
redis.call('HSET', key, 'tokens', tokens, 'last_leak', last_leak)
redis.call('EXPIRE', key, ttl)
return {1, capacity - tokens, 0}
`)

// Result is the outcome of one admission attempt.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is a leaky-bucket admission gate keyed by caller identity. Redis
// failures fail open: an outage in the cache must not become a denial of
// service against legitimate traffic.
type Limiter struct {
	client   *redis.Client
	capacity int
	leakRate float64
	ttl      time.Duration
	logger   *slog.Logger
}

// NewLimiter creates a limiter admitting capacity requests per key, draining
// at leakRate requests per second. Bucket state expires after ttl of
// inactivity.
func NewLimiter(client *redis.Client, capacity int, leakRate float64, ttl time.Duration, logger *slog.Logger) *Limiter {
	return &Limiter{
		client:   client,
		capacity: capacity,
		leakRate: leakRate,
		ttl:      ttl,
		logger:   logger,
	}
}

// TryConsume attempts to admit one request for the given key.
func (l *Limiter) TryConsume(ctx context.Context, key string) Result {
	res, err := leakyBucketScript.Run(ctx, l.client,
		[]string{"ratelimit:" + key},
		time.Now().Unix(),
		l.leakRate,
		l.capacity,
		int(l.ttl.Seconds()),
	).Int64Slice()
	if err != nil {
		l.logger.ErrorContext(ctx, "rate limiter unavailable, failing open",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return Result{Allowed: true, Remaining: l.capacity}
	}

	if len(res) != 3 {
		l.logger.ErrorContext(ctx, "rate limiter returned malformed result, failing open",
			slog.String("key", key),
		)
		return Result{Allowed: true, Remaining: l.capacity}
	}

	return Result{
		Allowed:    res[0] == 1,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Second,
	}
}

// Reset clears the bucket for a key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, "ratelimit:"+key).Err(); err != nil {
		return fmt.Errorf("reset rate limit bucket %s: %w", key, err)
	}
	return nil
}
