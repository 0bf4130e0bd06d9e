package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed-window limiter with Redis as the shared state
// store, so limits hold across service instances. A window is one key; INCR
// plus a first-write EXPIRE keeps the check to a single round trip for the
// common case. On Redis errors it fails open: a broken limiter must not take
// the API down with it.
type RedisRateLimiter struct {
	client    *redis.Client
	limit     int
	window    time.Duration
	keyPrefix string
}

// NewRedisRateLimiter creates a limiter allowing `limit` requests per window
// per key. keyPrefix namespaces different limiter instances on one server.
func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration, keyPrefix string) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:    client,
		limit:     limit,
		window:    window,
		keyPrefix: keyPrefix,
	}
}

func (r *RedisRateLimiter) key(key string, windowStart time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", r.keyPrefix, key, windowStart.Unix())
}

// Allow implements RateLimiter.
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if r.client == nil {
		return true, nil
	}

	windowStart := time.Now().Truncate(r.window)
	redisKey := r.key(key, windowStart)

	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return true, fmt.Errorf("rate limiter unavailable (failing open): %w", err)
	}
	if count == 1 {
		// First hit in this window owns the expiry. Keep the key one extra
		// window so GetRemaining can still read a just-closed window.
		r.client.Expire(ctx, redisKey, 2*r.window)
	}

	return count <= int64(r.limit), nil
}

// GetRemaining returns how many requests are left in the current window and
// when it resets.
func (r *RedisRateLimiter) GetRemaining(ctx context.Context, key string) (int, time.Duration, error) {
	windowStart := time.Now().Truncate(r.window)
	resetIn := time.Until(windowStart.Add(r.window))

	if r.client == nil {
		return r.limit, resetIn, nil
	}

	count, err := r.client.Get(ctx, r.key(key, windowStart)).Int()
	if err == redis.Nil {
		return r.limit, resetIn, nil
	}
	if err != nil {
		return r.limit, resetIn, fmt.Errorf("rate limiter read failed: %w", err)
	}

	remaining := r.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, resetIn, nil
}

// Reset implements RateLimiter.
func (r *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	if r.client == nil {
		return nil
	}
	windowStart := time.Now().Truncate(r.window)
	return r.client.Del(ctx, r.key(key, windowStart)).Err()
}
