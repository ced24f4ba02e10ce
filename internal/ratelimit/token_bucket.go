package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	ErrBucketNotConfigured = errors.New("bucket_not_configured")
	ErrBucketKeyEmpty      = errors.New("bucket_key_empty")
	ErrBucketInvalid       = errors.New("bucket_invalid")
)

// The bucket lives in one hash: level is the fractional token count, at is
// the redis server time in ms of the last take. Server time keeps every app
// instance on the same clock.
const takeTokenScript = `
local per_second = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local ttl_ms = tonumber(ARGV[3])

local t = redis.call("TIME")
local now_ms = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local state = redis.call("HMGET", KEYS[1], "level", "at")
local level = tonumber(state[1]) or capacity
local at = tonumber(state[2]) or now_ms
if now_ms > at then
  level = math.min(capacity, level + (now_ms - at) * per_second / 1000)
end

local granted = 0
if level >= 1 then
  granted = 1
  level = level - 1
end

redis.call("HSET", KEYS[1], "level", level, "at", now_ms)
redis.call("PEXPIRE", KEYS[1], ttl_ms)
return granted
`

// tokenBucket grants at most capacity checkouts in a burst and refills at
// perSecond tokens per second.
type tokenBucket struct {
	client    *redis.Client
	script    *redis.Script
	perSecond float64
	capacity  int
	ttl       time.Duration
}

func newTokenBucket(client *redis.Client, perSecond float64, capacity int) (*tokenBucket, error) {
	if client == nil {
		return nil, ErrBucketNotConfigured
	}
	if perSecond <= 0 || capacity <= 0 {
		return nil, ErrBucketInvalid
	}
	return &tokenBucket{
		client:    client,
		script:    redis.NewScript(takeTokenScript),
		perSecond: perSecond,
		capacity:  capacity,
		ttl:       bucketTTL(perSecond, capacity),
	}, nil
}

// take consumes one token from the bucket at key.
func (b *tokenBucket) take(ctx context.Context, key string) (bool, error) {
	if b == nil || b.client == nil {
		return false, ErrBucketNotConfigured
	}
	if key == "" {
		return false, ErrBucketKeyEmpty
	}

	granted, err := b.script.Run(ctx, b.client, []string{key},
		b.perSecond, b.capacity, b.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, err
	}
	return granted == 1, nil
}

// bucketTTL keeps an idle bucket around for twice its full refill time.
func bucketTTL(perSecond float64, capacity int) time.Duration {
	if perSecond <= 0 || capacity <= 0 {
		return time.Second
	}
	seconds := math.Ceil(float64(capacity) / perSecond * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}
