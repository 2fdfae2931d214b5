package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/collabhq/portal/internal/fault"
	"github.com/collabhq/portal/internal/models"
)

// RedisCache implements ProfileCache on Redis, giving cached-profile
// hydration across processes. Entries expire at MaxCacheAge so a stale
// profile can never outlive its usefulness.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates a Redis-backed profile cache from a URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisCache{client: client, prefix: "profile:"}, nil
}

// NewRedisCacheWithClient creates a cache from an existing client.
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: "profile:"}
}

// Close releases the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) key(principalID string) string {
	return c.prefix + principalID
}

func (c *RedisCache) Load(ctx context.Context, principalID string) (*CachedProfile, error) {
	raw, err := c.client.Get(ctx, c.key(principalID)).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fault.Transient("session.cache_load", err)
	}

	var entry CachedProfile
	if err := json.Unmarshal(raw, &entry); err != nil {
		// Corrupt entry; treat as a miss rather than blocking sign-in.
		return nil, ErrCacheMiss
	}
	return &entry, nil
}

func (c *RedisCache) Store(ctx context.Context, principalID string, p *models.Principal) error {
	entry := CachedProfile{Principal: p, SavedAt: time.Now()}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fault.Unknown("session.cache_store", err)
	}

	if err := c.client.Set(ctx, c.key(principalID), raw, MaxCacheAge).Err(); err != nil {
		return fault.Transient("session.cache_store", err)
	}
	return nil
}

func (c *RedisCache) Clear(ctx context.Context, principalID string) error {
	if err := c.client.Del(ctx, c.key(principalID)).Err(); err != nil {
		return fault.Transient("session.cache_clear", err)
	}
	return nil
}
