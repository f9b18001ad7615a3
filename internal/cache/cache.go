// Package cache provides an optional Redis-backed classification cache keyed
// by product identity and revision. Every cache failure degrades to a miss;
// classification correctness never depends on Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jonesrussell/catalog-classifier/internal/domain"
	"github.com/jonesrussell/catalog-classifier/internal/logger"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 24 * time.Hour

// Config holds the Redis connection settings. An empty Addr disables the
// cache entirely.
type Config struct {
	Addr     string        `env:"REDIS_ADDR"     yaml:"addr"`
	Password string        `env:"REDIS_PASSWORD" yaml:"password"`
	Database int           `yaml:"database"`
	TTL      time.Duration `yaml:"classification_cache_ttl"`
}

// Cache stores classification results in Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// New connects a classification cache. Returns nil when cfg.Addr is empty so
// callers can pass the result straight into the categorizer.
func New(cfg Config, log logger.Logger) *Cache {
	if cfg.Addr == "" {
		return nil
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if log == nil {
		log = logger.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.Database,
	})
	return &Cache{client: client, ttl: cfg.TTL, logger: log}
}

// Get returns the cached classification for key, or a miss.
func (c *Cache) Get(ctx context.Context, key string) (*domain.Classification, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("classification cache read failed", logger.Error(err))
		}
		return nil, false
	}
	var classification domain.Classification
	if err := json.Unmarshal(raw, &classification); err != nil {
		c.logger.Debug("classification cache entry malformed", logger.Error(err))
		return nil, false
	}
	return &classification, true
}

// Set stores a classification under key with the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, classification domain.Classification) {
	raw, err := json.Marshal(classification)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Debug("classification cache write failed", logger.Error(err))
	}
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
