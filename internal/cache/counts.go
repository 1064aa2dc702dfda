package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bastionhq/bastion/internal/config"
	"github.com/bastionhq/bastion/internal/models"
	"github.com/redis/go-redis/v9"
)

// CountCache is a short-TTL cache for windowed failure counts, bounding read
// load on the attempt store during an attack. It is a best-effort
// optimization: a miss or a Redis error always falls through to the store,
// and staleness is bounded by the TTL (a few seconds).
type CountCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCountCache connects to Redis and returns a cache, or nil when caching
// is disabled. A nil *CountCache is safe to use; all methods degrade to
// cache-miss behavior.
func NewCountCache(cfg config.CacheConfig, logger *slog.Logger) *CountCache {
	if !cfg.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &CountCache{
		client: client,
		ttl:    cfg.CountTTL,
		logger: logger,
	}
}

func countKey(identifier string, identifierType models.IdentifierType, window time.Duration) string {
	return fmt.Sprintf("bastion:failcount:%s:%s:%s", identifierType, identifier, window)
}

// Get returns the cached failure count for an identifier and window, and
// whether the cache held a usable value
func (c *CountCache) Get(ctx context.Context, identifier string, identifierType models.IdentifierType, window time.Duration) (int, bool) {
	if c == nil {
		return 0, false
	}

	val, err := c.client.Get(ctx, countKey(identifier, identifierType, window)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("count cache read failed", slog.Any("error", err))
		}
		return 0, false
	}

	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, false
	}
	return count, true
}

// Set stores a failure count with the configured TTL. Errors are logged and
// swallowed; the cache is never allowed to affect correctness.
func (c *CountCache) Set(ctx context.Context, identifier string, identifierType models.IdentifierType, window time.Duration, count int) {
	if c == nil {
		return
	}

	err := c.client.Set(ctx, countKey(identifier, identifierType, window), strconv.Itoa(count), c.ttl).Err()
	if err != nil {
		c.logger.Warn("count cache write failed", slog.Any("error", err))
	}
}

// Close releases the Redis connection
func (c *CountCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
