// Package cache provides the Redis-backed forecast cache. Producer
// outputs are cached per producer id; the latest consensus is kept under a
// well-known key for the status server.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mossriver/alphacouncil/internal/domain"
)

const latestInsightKey = "aggregated:latest"

func outputKey(producerID string) string {
	return fmt.Sprintf("agent:%s:output", producerID)
}

// Stats counts cache traffic since process start.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Errors uint64 `json:"errors"`
}

// RedisCache implements the producer output cache and the latest-insight
// cache over one Redis connection.
type RedisCache struct {
	client *redis.Client

	hits   atomic.Uint64
	misses atomic.Uint64
	errors atomic.Uint64
}

// New connects to Redis at addr. The connection is verified eagerly so a
// misconfigured address fails at startup, not mid-run.
func New(ctx context.Context, addr string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	log.Info().Str("component", "cache").Str("addr", addr).Int("db", db).Msg("Redis connected")
	return &RedisCache{client: client}, nil
}

// GetOutput reads a cached forecast for producerID. Decode failures count
// as misses; the stale entry is left to expire.
func (c *RedisCache) GetOutput(ctx context.Context, producerID string) (*domain.Forecast, bool) {
	data, err := c.client.Get(ctx, outputKey(producerID)).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		return nil, false
	}
	if err != nil {
		c.errors.Add(1)
		log.Warn().Err(err).Str("component", "cache").
			Str("producer", producerID).
			Msg("Cache read failed")
		return nil, false
	}

	var f domain.Forecast
	if err := json.Unmarshal(data, &f); err != nil {
		c.errors.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return &f, true
}

// SetOutput caches a forecast for producerID with the given TTL.
func (c *RedisCache) SetOutput(ctx context.Context, producerID string, f *domain.Forecast, ttl time.Duration) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal forecast: %w", err)
	}
	if err := c.client.Set(ctx, outputKey(producerID), data, ttl).Err(); err != nil {
		c.errors.Add(1)
		return fmt.Errorf("cache forecast %s: %w", producerID, err)
	}
	return nil
}

// SetLatest stores the consensus under the latest-insight key. No TTL; it
// is replaced every run.
func (c *RedisCache) SetLatest(ctx context.Context, insight *domain.AggregatedInsight) error {
	data, err := json.Marshal(insight)
	if err != nil {
		return fmt.Errorf("marshal insight: %w", err)
	}
	if err := c.client.Set(ctx, latestInsightKey, data, 0).Err(); err != nil {
		c.errors.Add(1)
		return fmt.Errorf("cache latest insight: %w", err)
	}
	return nil
}

// Latest reads the cached consensus. Returns nil without error when no run
// has completed yet.
func (c *RedisCache) Latest(ctx context.Context) (*domain.AggregatedInsight, error) {
	data, err := c.client.Get(ctx, latestInsightKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read latest insight: %w", err)
	}
	var insight domain.AggregatedInsight
	if err := json.Unmarshal(data, &insight); err != nil {
		return nil, fmt.Errorf("decode latest insight: %w", err)
	}
	return &insight, nil
}

// Stats snapshots the traffic counters.
func (c *RedisCache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Errors: c.errors.Load(),
	}
}

// Health pings Redis.
func (c *RedisCache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
