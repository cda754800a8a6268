// Package consensus turns a set of producer forecasts into one weighted
// aggregated insight per run.
package consensus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mossriver/alphacouncil/internal/domain"
	"github.com/mossriver/alphacouncil/internal/persistence"
)

// Synthesis is the narrative layer over a numeric consensus.
type Synthesis struct {
	Reasoning       string
	Recommendations []string
}

// Synthesizer writes the reasoning and recommendations for a consensus.
// Implementations may call out to a model service; failures degrade to a
// mechanical summary, never to a failed run.
type Synthesizer interface {
	Synthesize(ctx context.Context, forecasts map[string]*domain.Forecast, winning domain.Outlook, conflicts []domain.Conflict) (*Synthesis, error)
}

// Engine computes the weighted consensus. Stateless between runs; weights
// are read fresh from the store on every aggregation.
type Engine struct {
	weights     persistence.WeightStore
	synthesizer Synthesizer
}

// NewEngine builds the engine. synthesizer may be nil, in which case the
// mechanical summary is always used.
func NewEngine(weights persistence.WeightStore, synthesizer Synthesizer) *Engine {
	return &Engine{weights: weights, synthesizer: synthesizer}
}

// Aggregate folds successful producer results into one insight. A vetoed
// run still aggregates; the veto flag and reason are carried through so
// downstream consumers see why nothing was sized.
func (e *Engine) Aggregate(ctx context.Context, results map[string]*domain.ProducerResult, vetoed bool, vetoReason string) *domain.AggregatedInsight {
	forecasts := make(map[string]*domain.Forecast)
	for id, res := range results {
		if res != nil && res.Success && res.Forecast != nil {
			forecasts[id] = res.Forecast
		}
	}

	insight := &domain.AggregatedInsight{
		Timestamp:    time.Now().UTC(),
		AgentOutputs: forecasts,
		Vetoed:       vetoed,
		VetoReason:   vetoReason,
	}

	if len(forecasts) == 0 {
		insight.OverallOutlook = domain.OutlookNeutral
		insight.Confidence = 0.0
		insight.ResolutionReasoning = "No successful forecasts this run; defaulting to neutral."
		return insight
	}

	winning, confidence := e.score(ctx, forecasts)
	insight.OverallOutlook = winning
	insight.Confidence = confidence
	insight.Conflicts = detectConflicts(forecasts)

	synth := e.synthesize(ctx, forecasts, winning, insight.Conflicts)
	insight.ResolutionReasoning = synth.Reasoning
	insight.FinalRecommendations = synth.Recommendations

	log.Info().Str("component", "consensus").
		Str("outlook", string(winning)).
		Float64("confidence", confidence).
		Int("forecasts", len(forecasts)).
		Int("conflicts", len(insight.Conflicts)).
		Bool("vetoed", vetoed).
		Msg("Consensus aggregated")

	return insight
}

// score accumulates weight×confidence per outlook bucket and normalizes.
// Buckets are walked in canonical order with a strictly-greater comparison,
// so ties resolve to the earlier bucket deterministically.
func (e *Engine) score(ctx context.Context, forecasts map[string]*domain.Forecast) (domain.Outlook, float64) {
	buckets := make(map[domain.Outlook]float64, len(domain.Outlooks))
	var total float64

	for id, f := range forecasts {
		weight := e.weight(ctx, id)
		contribution := weight * f.Confidence
		buckets[f.Outlook] += contribution
		total += contribution
	}

	winning := domain.OutlookNeutral
	var best float64
	for _, outlook := range domain.Outlooks {
		if buckets[outlook] > best {
			best = buckets[outlook]
			winning = outlook
		}
	}

	if total == 0 {
		return domain.OutlookNeutral, 0.0
	}
	return winning, best / total
}

// weight reads one producer weight, defaulting to 1.0 on a miss or store
// error so one bad read never skews the consensus.
func (e *Engine) weight(ctx context.Context, producerID string) float64 {
	if e.weights == nil {
		return 1.0
	}
	w, err := e.weights.Weight(ctx, producerID)
	if err != nil {
		log.Warn().Err(err).Str("component", "consensus").
			Str("producer", producerID).
			Msg("Weight read failed, using 1.0")
		return 1.0
	}
	return w
}

// detectConflicts records a directional conflict when at least one producer
// is bearish and at least one is bullish. Metadata only.
func detectConflicts(forecasts map[string]*domain.Forecast) []domain.Conflict {
	var bearish, bullish []string
	for id, f := range forecasts {
		switch f.Outlook {
		case domain.OutlookBearish:
			bearish = append(bearish, id)
		case domain.OutlookBullish:
			bullish = append(bullish, id)
		}
	}
	if len(bearish) == 0 || len(bullish) == 0 {
		return nil
	}
	sort.Strings(bearish)
	sort.Strings(bullish)
	return []domain.Conflict{{
		Type:       "directional_disagreement",
		Bearish:    bearish,
		Bullish:    bullish,
		Resolution: "weighted_confidence_vote",
	}}
}

func (e *Engine) synthesize(ctx context.Context, forecasts map[string]*domain.Forecast, winning domain.Outlook, conflicts []domain.Conflict) *Synthesis {
	if e.synthesizer != nil {
		synth, err := e.synthesizer.Synthesize(ctx, forecasts, winning, conflicts)
		if err == nil && synth != nil && synth.Reasoning != "" {
			return synth
		}
		if err != nil {
			log.Warn().Err(err).Str("component", "consensus").
				Msg("Synthesis failed, using mechanical summary")
		}
	}
	return mechanicalSummary(forecasts, winning, conflicts)
}

// mechanicalSummary is the degraded narrative used when no synthesizer is
// configured or the call fails.
func mechanicalSummary(forecasts map[string]*domain.Forecast, winning domain.Outlook, conflicts []domain.Conflict) *Synthesis {
	counts := make(map[domain.Outlook]int)
	for _, f := range forecasts {
		counts[f.Outlook]++
	}

	parts := make([]string, 0, len(domain.Outlooks))
	for _, outlook := range domain.Outlooks {
		if counts[outlook] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[outlook], outlook))
		}
	}

	reasoning := fmt.Sprintf("Weighted vote across %d forecasts (%s) resolves %s.",
		len(forecasts), strings.Join(parts, ", "), winning)
	if len(conflicts) > 0 {
		reasoning += " Directional disagreement resolved by weighted confidence."
	}

	var recs []string
	switch winning {
	case domain.OutlookBullish:
		recs = []string{"Favor long exposure within position limits."}
	case domain.OutlookBearish:
		recs = []string{"Reduce long exposure and tighten stops."}
	default:
		recs = []string{"Hold current positioning; no directional edge."}
	}

	return &Synthesis{Reasoning: reasoning, Recommendations: recs}
}
