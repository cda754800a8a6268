// Package producer defines the forecast producer contract and the static
// registry the orchestrator resolves producers from at startup.
package producer

import (
	"context"
	"fmt"
	"sort"

	"github.com/mossriver/alphacouncil/internal/domain"
	"github.com/mossriver/alphacouncil/internal/infrastructure/market"
)

// Producer emits one forecast per invocation. Retries, caching and any
// model calls are internal to the implementation; the orchestrator only
// sees the result.
type Producer interface {
	ID() string
	Produce(ctx context.Context) (*domain.Forecast, error)
}

// Deps carries the shared collaborators producers may need. Everything is
// constructor-injected; producers never reach for globals.
type Deps struct {
	Market    market.Source
	Cache     OutputCache
	Remote    *ForecastClient
	Benchmark string
	Limits    RiskLimits
	Portfolio PortfolioSnapshot
}

// Factory constructs a producer from shared dependencies.
type Factory func(deps Deps) (Producer, error)

// Registry maps producer ids to factories, resolved once at startup.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under id. Registering the same id twice is a
// programming error.
func (r *Registry) Register(id string, factory Factory) error {
	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("producer %q already registered", id)
	}
	r.factories[id] = factory
	return nil
}

// New constructs the producer registered under id.
func (r *Registry) New(id string, deps Deps) (Producer, error) {
	factory, ok := r.factories[id]
	if !ok {
		return nil, fmt.Errorf("unknown producer: %q (available: %v)", id, r.IDs())
	}
	p, err := factory(deps)
	if err != nil {
		return nil, fmt.Errorf("construct producer %q: %w", id, err)
	}
	return p, nil
}

// IDs lists registered producer ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
