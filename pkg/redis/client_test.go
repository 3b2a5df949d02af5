package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolyard/marketplace-backend/pkg/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), config.RedisConfig{URL: "redis://" + mr.Addr()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "tyd:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "tyd:lock:confirm:pi_1", client.LockKey("confirm", "pi_1"))
	assert.Equal(t, "tyd:guest_cart:device-1", client.GuestCartKey("device-1"))
	assert.Equal(t, "tyd:checkout_session:s1", client.CheckoutSessionKey("s1"))
	assert.Equal(t, "tyd:recently_viewed:user-1", client.RecentlyViewedKey("user-1"))
	assert.Equal(t, "tyd:idempotency:scope", client.IdempotencyKey("scope", ""))
}

func TestOptionsRequireAddress(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{Address: "localhost:6379", PoolSize: 7, DB: 2})
	require.NoError(t, err)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, 2, opts.DB)
}

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)

	require.NoError(t, client.Set(ctx, "k", "v", time.Minute))
	got, err := client.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	require.NoError(t, client.Del(ctx, "k"))
	_, err = client.Get(ctx, "k")
	assert.True(t, IsNil(err))
}

func TestAcquireLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	release, ok, err := client.AcquireLock(ctx, "confirm", "pi_1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = client.AcquireLock(ctx, "confirm", "pi_1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while held")

	release(ctx)
	_, ok, err = client.AcquireLock(ctx, "confirm", "pi_1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockReleaseKeepsSomeoneElsesLock(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)

	staleRelease, ok, err := client.AcquireLock(ctx, "confirm", "pi_2", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok, err = client.AcquireLock(ctx, "confirm", "pi_2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	staleRelease(ctx)
	assert.True(t, mr.Exists(client.LockKey("confirm", "pi_2")), "stale holder must not release the new lock")
}

func TestNilClientReportsNotInitialized(t *testing.T) {
	var client *Client
	_, err := client.Get(context.Background(), "k")
	assert.ErrorIs(t, err, errNotInitialized)
	assert.NoError(t, client.Close())
}

func TestPushCappedMovesToFrontAndTrims(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	key := client.RecentlyViewedKey("viewer")

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, client.PushCapped(ctx, key, id, 3, time.Hour))
	}
	got, err := client.Range(ctx, key, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c", "b"}, got)

	require.NoError(t, client.PushCapped(ctx, key, "b", 3, time.Hour))
	got, err = client.Range(ctx, key, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "d", "c"}, got)
}

func TestPushCappedRejectsZeroCap(t *testing.T) {
	client, _ := newTestClient(t)
	require.Error(t, client.PushCapped(context.Background(), "k", "v", 0, 0))
}

func TestIncrWithTTLSetsExpiryOnFirstHit(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	key := client.RateLimitKey("login", "ip", "10.0.0.1")
	assert.Equal(t, "tyd:rl:login:ip:10.0.0.1", key)

	count, err := client.IncrWithTTL(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, time.Minute, mr.TTL(key))

	mr.FastForward(30 * time.Second)
	count, err = client.IncrWithTTL(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, 30*time.Second, mr.TTL(key))
}
