package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/nclexprep/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDisabledCheckoutLimiterAllowsEverything(t *testing.T) {
	limiter, err := NewCheckoutLimiter(nil, config.Config{}, zap.NewNop())
	require.NoError(t, err)
	require.Nil(t, limiter)
	assert.False(t, limiter.Enabled())

	allowed, err := limiter.AllowCheckout(context.Background(), "user_456")
	require.NoError(t, err)
	assert.True(t, allowed)

	token, ok, err := limiter.TryLockCheckout(context.Background(), "user_456")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, token)
	assert.NoError(t, limiter.ReleaseCheckout(context.Background(), "user_456", token))
}

func TestNewCheckoutLimiterValidatesConfig(t *testing.T) {
	cases := []config.RateLimitConfig{
		{Enabled: true},
		{Enabled: true, RedisAddr: "localhost:6379", CheckoutUserRate: 0, CheckoutUserBurst: 3, CheckoutLockTTLSeconds: 30},
		{Enabled: true, RedisAddr: "localhost:6379", CheckoutUserRate: 0.2, CheckoutUserBurst: 3, CheckoutLockTTLSeconds: 0},
	}
	for _, rl := range cases {
		_, err := NewCheckoutLimiter(nil, config.Config{RateLimit: rl}, zap.NewNop())
		assert.Error(t, err)
	}
}

func TestLockerWithoutClient(t *testing.T) {
	var locker *Locker
	_, _, err := locker.TryLock(context.Background(), "checkout:lock:user", time.Second)
	assert.ErrorIs(t, err, ErrLockNotConfigured)
	assert.NoError(t, locker.Release(context.Background(), "checkout:lock:user", "token"))
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 30*time.Second, bucketTTL(0.2, 3))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
	assert.Equal(t, time.Second, bucketTTL(0, 0))
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestTokenBucketBurstThenRefill(t *testing.T) {
	mr, client := newTestRedis(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mr.SetTime(now)

	bucket, err := newTokenBucket(client, 0.5, 2)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := bucket.take(ctx, "checkout:user:user_456")
		require.NoError(t, err)
		assert.True(t, ok, "take %d", i)
	}
	ok, err := bucket.take(ctx, "checkout:user:user_456")
	require.NoError(t, err)
	assert.False(t, ok)

	// other users have their own bucket
	ok, err = bucket.take(ctx, "checkout:user:user_789")
	require.NoError(t, err)
	assert.True(t, ok)

	// 0.5 tokens/s: one token after two seconds, not before
	mr.SetTime(now.Add(time.Second))
	ok, err = bucket.take(ctx, "checkout:user:user_456")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.SetTime(now.Add(3 * time.Second))
	ok, err = bucket.take(ctx, "checkout:user:user_456")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 8*time.Second, mr.TTL("checkout:user:user_456"))
}

func TestTokenBucketRejectsBadInput(t *testing.T) {
	_, client := newTestRedis(t)

	_, err := newTokenBucket(nil, 1, 1)
	assert.ErrorIs(t, err, ErrBucketNotConfigured)
	_, err = newTokenBucket(client, 0, 1)
	assert.ErrorIs(t, err, ErrBucketInvalid)
	_, err = newTokenBucket(client, 1, 0)
	assert.ErrorIs(t, err, ErrBucketInvalid)

	bucket, err := newTokenBucket(client, 1, 1)
	require.NoError(t, err)
	_, err = bucket.take(context.Background(), "")
	assert.ErrorIs(t, err, ErrBucketKeyEmpty)
}

func TestLockerHoldsUntilReleasedByHolder(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "checkout:lock:user_456", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	_, ok, err = locker.TryLock(ctx, "checkout:lock:user_456", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "checkout:lock:user_456", "someone-else"))
	assert.True(t, mr.Exists("checkout:lock:user_456"))

	require.NoError(t, locker.Release(ctx, "checkout:lock:user_456", token))
	assert.False(t, mr.Exists("checkout:lock:user_456"))

	_, ok, err = locker.TryLock(ctx, "checkout:lock:user_456", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockerExpiresAfterTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	_, ok, err := locker.TryLock(ctx, "checkout:lock:user_456", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(31 * time.Second)
	_, ok, err = locker.TryLock(ctx, "checkout:lock:user_456", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, err = locker.TryLock(ctx, "", time.Second)
	assert.ErrorIs(t, err, ErrLockKeyEmpty)
	_, _, err = locker.TryLock(ctx, "checkout:lock:user_456", 0)
	assert.ErrorIs(t, err, ErrLockTTLInvalid)
}

func TestEnabledCheckoutLimiter(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.SetTime(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	limiter, err := newCheckoutLimiter(client, config.RateLimitConfig{
		Enabled:                true,
		CheckoutUserRate:       0.2,
		CheckoutUserBurst:      1,
		CheckoutLockTTLSeconds: 30,
	})
	require.NoError(t, err)
	require.True(t, limiter.Enabled())
	ctx := context.Background()

	allowed, err := limiter.AllowCheckout(ctx, " user_456 ")
	require.NoError(t, err)
	assert.True(t, allowed)
	allowed, err = limiter.AllowCheckout(ctx, "user_456")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.True(t, mr.Exists("checkout:user:user_456"))

	token, ok, err := limiter.TryLockCheckout(ctx, "user_456")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, mr.TTL("checkout:lock:user_456"))

	_, ok, err = limiter.TryLockCheckout(ctx, "user_456")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, limiter.ReleaseCheckout(ctx, "user_456", token))
	_, ok, err = limiter.TryLockCheckout(ctx, "user_456")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = newCheckoutLimiter(client, config.RateLimitConfig{Enabled: true, CheckoutLockTTLSeconds: 30})
	assert.ErrorIs(t, err, ErrBucketInvalid)
}
