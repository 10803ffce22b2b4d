package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	rediscache "github.com/go-redis/cache/v8"
	"github.com/go-redis/redis/v8"
)

// TTLs for the two cached read paths. Cost snapshots survive an hour;
// the dashboard view is cheaper to rebuild and expires sooner. A scan
// invalidates both regardless of TTL.
const (
	CostTTL      = time.Hour
	DashboardTTL = 30 * time.Minute
)

// Cache is a read-through cache over redis for expensive aggregates.
// Callers treat a miss (or any redis failure) as "recompute"; the cache
// is never the source of truth.
type Cache struct {
	client *redis.Client
	codec  *rediscache.Cache
}

// New creates a cache on top of an existing redis client
func New(client *redis.Client) *Cache {
	return &Cache{
		client: client,
		codec: rediscache.New(&rediscache.Options{
			Redis:      client,
			LocalCache: rediscache.NewTinyLFU(1000, time.Minute),
		}),
	}
}

// CostKey returns the cache key for a user's current-month cost summary
func CostKey(userID int64) string {
	return fmt.Sprintf("user:%d:cost", userID)
}

// DashboardKey returns the cache key for a user's dashboard view
func DashboardKey(userID int64) string {
	return fmt.Sprintf("user:%d:dashboard", userID)
}

// Get loads a cached value into out. Returns a miss error when absent.
func (c *Cache) Get(ctx context.Context, key string, out interface{}) error {
	return c.codec.Get(ctx, key, out)
}

// Set stores a value under key with the given TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.codec.Set(&rediscache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: value,
		TTL:   ttl,
	})
}

// IsMiss reports whether err is a cache miss rather than a redis failure
func IsMiss(err error) bool {
	return errors.Is(err, rediscache.ErrCacheMiss)
}

// InvalidateUser drops every cached key for a user by prefix
func (c *Cache) InvalidateUser(ctx context.Context, userID int64) error {
	return c.deletePattern(ctx, fmt.Sprintf("user:%d:*", userID))
}

// deletePattern walks a SCAN cursor and deletes matching keys
func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}

		for _, key := range keys {
			if err := c.codec.Delete(ctx, key); err != nil && !IsMiss(err) {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
