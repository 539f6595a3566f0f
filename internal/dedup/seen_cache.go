package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSeenCache tracks recently ingested URLs in Redis with a TTL.
// It fronts the persisted-store URL check; entries aging out of the
// cache fall through to the store.
type RedisSeenCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSeenCache creates a Redis-backed seen-URL cache
func NewRedisSeenCache(client *redis.Client, prefix string, ttl time.Duration) *RedisSeenCache {
	if prefix == "" {
		prefix = "entry:seen"
	}
	if ttl == 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisSeenCache{client: client, prefix: prefix, ttl: ttl}
}

// IsSeen reports whether the URL was marked within the TTL window
func (c *RedisSeenCache) IsSeen(ctx context.Context, url string) (bool, error) {
	exists, err := c.client.Exists(ctx, c.key(url)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return exists > 0, nil
}

// MarkSeen marks the URL as ingested
func (c *RedisSeenCache) MarkSeen(ctx context.Context, url string) error {
	if err := c.client.Set(ctx, c.key(url), time.Now().Unix(), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisSeenCache) key(url string) string {
	return fmt.Sprintf("%s:%s", c.prefix, url)
}
