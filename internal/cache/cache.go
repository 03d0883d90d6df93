// Package cache provides a small Redis-backed cache that degrades to an
// in-process map when Redis is unavailable, so a missing Redis never takes
// the dashboard down.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"nexusai/internal/metrics"
)

// Cache is a byte-value cache with TTLs. All operations are best-effort;
// callers must treat a miss and an error identically.
type Cache struct {
	client *redis.Client

	memMu    sync.RWMutex
	memCache map[string]memEntry

	statsMu sync.RWMutex
	hits    int64
	misses  int64

	logger *zap.Logger
}

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// New connects to Redis at redisURL ("redis://host:port/db"). An empty URL or
// failed ping leaves the cache in memory-only mode.
func New(redisURL string, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		memCache: make(map[string]memEntry),
		logger:   logger,
	}

	if redisURL == "" {
		logger.Info("cache running in memory-only mode")
		return c
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis URL, falling back to memory cache", zap.Error(err))
		return c
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, falling back to memory cache", zap.Error(err))
		_ = client.Close()
		return c
	}

	c.client = client
	logger.Info("cache connected to redis")
	return c
}

// Get returns the cached value and whether it was present.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.client != nil {
		val, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			c.countHit()
			return val, true
		}
		if err != redis.Nil {
			c.logger.Debug("redis get failed", zap.String("key", key), zap.Error(err))
		}
		c.countMiss()
		return nil, false
	}

	c.memMu.RLock()
	entry, ok := c.memCache[key]
	c.memMu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		c.countMiss()
		return nil, false
	}
	c.countHit()
	return entry.value, true
}

// Set stores a value with a TTL. Failures are logged, not returned.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if c.client != nil {
		if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
			c.logger.Debug("redis set failed", zap.String("key", key), zap.Error(err))
		}
		return
	}

	c.memMu.Lock()
	c.memCache[key] = memEntry{value: value, expiresAt: time.Now().Add(ttl)}
	c.memMu.Unlock()
}

// Delete removes keys from the cache.
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if c.client != nil {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			c.logger.Debug("redis del failed", zap.Error(err))
		}
		return
	}

	c.memMu.Lock()
	for _, key := range keys {
		delete(c.memCache, key)
	}
	c.memMu.Unlock()
}

// Stats returns hit/miss counters since start.
func (c *Cache) Stats() (hits, misses int64) {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.hits, c.misses
}

// Close releases the Redis connection if one exists.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// backend labels the prometheus counters with the active storage mode.
func (c *Cache) backend() string {
	if c.client != nil {
		return "redis"
	}
	return "memory"
}

func (c *Cache) countHit() {
	c.statsMu.Lock()
	c.hits++
	c.statsMu.Unlock()
	metrics.Get().CacheHitsTotal.WithLabelValues(c.backend()).Inc()
}

func (c *Cache) countMiss() {
	c.statsMu.Lock()
	c.misses++
	c.statsMu.Unlock()
	metrics.Get().CacheMissesTotal.WithLabelValues(c.backend()).Inc()
}
