package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"bibliotek/pkg/errors"
)

// RedisCache implements Cache on a Redis connection.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.NewInfrastructureError(errors.CodeCacheUnavailable, "cache read failed", err)
	}
	return value, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.NewInfrastructureError(errors.CodeCacheUnavailable, "cache write failed", err)
	}
	return nil
}

// Delete implements Cache.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return errors.NewInfrastructureError(errors.CodeCacheUnavailable, "cache delete failed", err)
	}
	return nil
}

// CheckHealth pings the server.
func (c *RedisCache) CheckHealth(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return errors.NewInfrastructureError(errors.CodeCacheUnavailable, "cache unreachable", err)
	}
	return nil
}
