package producer

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mossriver/alphacouncil/internal/domain"
)

// OutputCache stores producer outputs between runs. A nil cache disables
// caching entirely.
type OutputCache interface {
	GetOutput(ctx context.Context, producerID string) (*domain.Forecast, bool)
	SetOutput(ctx context.Context, producerID string, f *domain.Forecast, ttl time.Duration) error
}

// Cached wraps a producer with read-through output caching. A cache hit is
// surfaced to the orchestrator through Cached(); cache failures degrade to
// a fresh produce, never to an error.
type Cached struct {
	inner Producer
	cache OutputCache
	ttl   time.Duration

	lastHit bool
}

// WithCache wraps p. When cache is nil, p is returned unchanged.
func WithCache(p Producer, cache OutputCache, ttl time.Duration) Producer {
	if cache == nil {
		return p
	}
	return &Cached{inner: p, cache: cache, ttl: ttl}
}

func (c *Cached) ID() string { return c.inner.ID() }

func (c *Cached) Produce(ctx context.Context) (*domain.Forecast, error) {
	c.lastHit = false
	if f, ok := c.cache.GetOutput(ctx, c.inner.ID()); ok {
		c.lastHit = true
		return f, nil
	}

	f, err := c.inner.Produce(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetOutput(ctx, c.inner.ID(), f, c.ttl); err != nil {
		log.Warn().Err(err).Str("producer", c.inner.ID()).Msg("Forecast cache write failed")
	}
	return f, nil
}

// WasCached reports whether the last Produce call was served from cache.
func (c *Cached) WasCached() bool { return c.lastHit }
