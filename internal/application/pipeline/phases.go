package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mossriver/alphacouncil/internal/config"
	"github.com/mossriver/alphacouncil/internal/domain"
	"github.com/mossriver/alphacouncil/internal/producer"
)

// BuildPhases resolves the configured phases against the registry. A
// producer that fails to construct becomes a placeholder that fails every
// run, so a bad entry degrades one slot instead of aborting startup.
func BuildPhases(registry *producer.Registry, deps producer.Deps, phases []config.PhaseConfig, cacheTTL time.Duration) []Phase {
	built := make([]Phase, 0, len(phases))
	for _, pc := range phases {
		phase := Phase{Name: pc.Name, Producers: make([]producer.Producer, 0, len(pc.Producers))}
		for _, id := range pc.Producers {
			phase.Producers = append(phase.Producers, buildProducer(registry, deps, id, cacheTTL))
		}
		built = append(built, phase)
	}
	return built
}

// BuildRiskProducer resolves the risk producer. Risk forecasts are never
// cached; the gate must see the current book.
func BuildRiskProducer(registry *producer.Registry, deps producer.Deps, id string) producer.Producer {
	if id == "" {
		return nil
	}
	p, err := registry.New(id, deps)
	if err != nil {
		log.Error().Err(err).Str("component", "pipeline").
			Str("producer", id).
			Msg("Risk producer construction failed")
		return &brokenProducer{id: id, err: err}
	}
	return p
}

func buildProducer(registry *producer.Registry, deps producer.Deps, id string, cacheTTL time.Duration) producer.Producer {
	p, err := registry.New(id, deps)
	if err != nil {
		log.Error().Err(err).Str("component", "pipeline").
			Str("producer", id).
			Msg("Producer construction failed")
		return &brokenProducer{id: id, err: err}
	}
	return producer.WithCache(p, deps.Cache, cacheTTL)
}

// brokenProducer stands in for a producer that could not be constructed.
type brokenProducer struct {
	id  string
	err error
}

func (b *brokenProducer) ID() string { return b.id }

func (b *brokenProducer) Produce(context.Context) (*domain.Forecast, error) {
	return nil, b.err
}
