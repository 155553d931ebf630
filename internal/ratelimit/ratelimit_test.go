package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, capacity int, leakRate float64) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewLimiter(client, capacity, leakRate, time.Hour, logger), mr
}

func TestTryConsume_AdmitsUpToCapacityThenRejects(t *testing.T) {
	const capacity = 5
	limiter, _ := newTestLimiter(t, capacity, 1)
	ctx := context.Background()

	for i := 0; i < capacity; i++ {
		res := limiter.TryConsume(ctx, "1.2.3.4")
		assert.True(t, res.Allowed, "admission %d", i+1)
		assert.Equal(t, capacity-i-1, res.Remaining)
	}

	res := limiter.TryConsume(ctx, "1.2.3.4")
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestTryConsume_KeysAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, 1)
	ctx := context.Background()

	assert.True(t, limiter.TryConsume(ctx, "a").Allowed)
	assert.False(t, limiter.TryConsume(ctx, "a").Allowed)
	assert.True(t, limiter.TryConsume(ctx, "b").Allowed)
}

func TestTryConsume_BucketLeaksOverTime(t *testing.T) {
	limiter, mr := newTestLimiter(t, 2, 1)
	ctx := context.Background()

	assert.True(t, limiter.TryConsume(ctx, "k").Allowed)
	assert.True(t, limiter.TryConsume(ctx, "k").Allowed)
	assert.False(t, limiter.TryConsume(ctx, "k").Allowed)

	// miniredis time is frozen; Lua sees the wall-clock "now" argument we
	// pass in, so advance real time by resetting and replaying is not
	// possible. Instead shrink the stored last_leak to simulate elapsed time.
	mr.HSet("ratelimit:k", "last_leak", "0")

	res := limiter.TryConsume(ctx, "k")
	assert.True(t, res.Allowed, "bucket should have fully drained")
}

func TestTryConsume_FailsOpenOnRedisError(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1, 1)
	mr.Close()

	res := limiter.TryConsume(context.Background(), "k")
	assert.True(t, res.Allowed)
}

func TestReset(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, 1)
	ctx := context.Background()

	assert.True(t, limiter.TryConsume(ctx, "k").Allowed)
	assert.False(t, limiter.TryConsume(ctx, "k").Allowed)

	require.NoError(t, limiter.Reset(ctx, "k"))
	assert.True(t, limiter.TryConsume(ctx, "k").Allowed)
}
