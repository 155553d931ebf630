package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flowPayload struct {
	Email string `json:"email"`
	Count int    `json:"count"`
}

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStore_SetGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	in := flowPayload{Email: "a@x.com", Count: 2}
	require.NoError(t, store.Set(ctx, Key(FlowVerifyCode, "tok-1"), in, time.Minute))

	var out flowPayload
	require.NoError(t, store.Get(ctx, Key(FlowVerifyCode, "tok-1"), &out))
	assert.Equal(t, in, out)
}

func TestRedisStore_GetMissingKey(t *testing.T) {
	store, _ := newTestStore(t)

	var out flowPayload
	err := store.Get(context.Background(), Key(FlowLoginAttempt, "absent"), &out)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_ExpiredKeyIsAbsent(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, Key(FlowOAuthState, "st-1"), flowPayload{}, 10*time.Second))

	mr.FastForward(11 * time.Second)

	var out flowPayload
	assert.ErrorIs(t, store.Get(ctx, Key(FlowOAuthState, "st-1"), &out), ErrNotFound)

	ok, err := store.Exists(ctx, Key(FlowOAuthState, "st-1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_DeleteIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", flowPayload{}, time.Minute))
	require.NoError(t, store.Delete(ctx, "k"))
	require.NoError(t, store.Delete(ctx, "k"))

	ok, err := store.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "oauth_state:abc", Key(FlowOAuthState, "abc"))
}
