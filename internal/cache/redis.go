// Package cache provides an optional Redis-backed cache of detection
// results keyed by a hash of the input text. It lets the service mode skip
// re-detection of identical documents. Fake-value resolutions are never
// cached; they are scoped to a single session by invariant.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/veilproject/veil/internal/config"
	"github.com/veilproject/veil/internal/entity"
	"github.com/veilproject/veil/internal/logger"
)

// ResultCache handles Redis-based caching of detection results.
type ResultCache struct {
	client *redis.Client
	config config.CacheConfig
	logger *logger.Logger
	stats  cacheStats
}

// cacheStats tracks cache performance metrics
type cacheStats struct {
	hits   int64
	misses int64
}

// Stats reports cache performance counters.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// New creates a Redis-backed detection cache and verifies the connection.
func New(cfg config.CacheConfig, log *logger.Logger) (*ResultCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pool
	opts.PoolSize = cfg.MaxConnections
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	c := &ResultCache{
		client: client,
		config: cfg,
		logger: log,
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Detection cache initialized",
		zap.String("redis_url", maskRedisURL(cfg.RedisURL)),
		zap.Int("max_connections", cfg.MaxConnections),
		zap.Duration("default_ttl", cfg.DefaultTTL),
	)

	return c, nil
}

// Get returns the cached detection result for the text, if present. Cache
// failures degrade to a miss rather than failing the caller.
func (c *ResultCache) Get(ctx context.Context, text string) ([]entity.Entity, bool) {
	key := c.key(text)

	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		c.stats.misses++
		c.logger.Debug("Cache miss", zap.String("key", key))
		return nil, false
	} else if err != nil {
		c.logger.Error("Cache lookup failed", zap.Error(err))
		return nil, false
	}

	var entities []entity.Entity
	if err := json.Unmarshal([]byte(data), &entities); err != nil {
		c.logger.Error("Failed to unmarshal cached entities", zap.Error(err))
		// Delete corrupted cache entry
		c.client.Del(ctx, key)
		c.stats.misses++
		return nil, false
	}

	c.stats.hits++
	c.logger.Debug("Cache hit", zap.String("key", key), zap.Int("entities", len(entities)))
	return entities, true
}

// Put caches the detection result for the text with the configured TTL.
func (c *ResultCache) Put(ctx context.Context, text string, entities []entity.Entity) error {
	data, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("failed to marshal entities for caching: %w", err)
	}

	if err := c.client.Set(ctx, c.key(text), data, c.config.DefaultTTL).Err(); err != nil {
		c.logger.Error("Failed to cache detection result", zap.Error(err))
		return fmt.Errorf("failed to cache detection result: %w", err)
	}

	c.logger.Debug("Detection result cached", zap.Int("entities", len(entities)))
	return nil
}

// GetStats returns cache performance statistics.
func (c *ResultCache) GetStats() Stats {
	s := Stats{Hits: c.stats.hits, Misses: c.stats.misses}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total) * 100
	}
	return s
}

// Close closes the Redis connection.
func (c *ResultCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// key derives a stable cache key from a hash of the text.
func (c *ResultCache) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s:det:%s", c.config.KeyPrefix, hex.EncodeToString(sum[:])[:16])
}

// maskRedisURL masks sensitive information in Redis URL for logging
func maskRedisURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
