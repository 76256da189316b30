package nutrition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores estimates in Redis so cache hits survive restarts and are
// shared across replicas.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache wraps an existing Redis client. TTL defaults to DefaultTTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl, prefix: "pat:food:"}
}

// Get returns the cached estimate for key, if any.
func (c *RedisCache) Get(ctx context.Context, key string) (Estimate, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Estimate{}, false, nil
	}
	if err != nil {
		return Estimate{}, false, fmt.Errorf("nutrition: redis get: %w", err)
	}

	var est Estimate
	if err := json.Unmarshal(raw, &est); err != nil {
		// A corrupt entry is treated as a miss so it gets overwritten.
		return Estimate{}, false, nil
	}
	return est, true, nil
}

// Set stores an estimate with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, est Estimate) error {
	raw, err := json.Marshal(est)
	if err != nil {
		return fmt.Errorf("nutrition: marshal estimate: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("nutrition: redis set: %w", err)
	}
	return nil
}
