package consensus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossriver/alphacouncil/internal/domain"
	"github.com/mossriver/alphacouncil/internal/persistence"
)

func forecast(id string, outlook domain.Outlook, confidence float64) *domain.ProducerResult {
	return domain.Succeeded(&domain.Forecast{
		ProducerID: id,
		Outlook:    outlook,
		Confidence: confidence,
		Timeframe:  domain.TimeframeMonth,
	})
}

func TestAggregateWeightedVote(t *testing.T) {
	engine := NewEngine(persistence.NewMemoryStore(), nil)

	results := map[string]*domain.ProducerResult{
		"macro":     forecast("macro", domain.OutlookBullish, 0.8),
		"sentiment": forecast("sentiment", domain.OutlookBearish, 0.6),
	}

	insight := engine.Aggregate(context.Background(), results, false, "")
	require.NotNil(t, insight)

	assert.Equal(t, domain.OutlookBullish, insight.OverallOutlook)
	assert.InDelta(t, 0.8/1.4, insight.Confidence, 1e-9)
	assert.Len(t, insight.AgentOutputs, 2)
}

func TestAggregateAppliesWeights(t *testing.T) {
	store := persistence.NewMemoryStore()
	require.NoError(t, store.SetWeight(context.Background(), "macro", 0.1))

	engine := NewEngine(store, nil)
	results := map[string]*domain.ProducerResult{
		"macro":     forecast("macro", domain.OutlookBullish, 0.8),
		"sentiment": forecast("sentiment", domain.OutlookBearish, 0.6),
	}

	insight := engine.Aggregate(context.Background(), results, false, "")

	// 0.1*0.8 = 0.08 bullish vs 1.0*0.6 bearish
	assert.Equal(t, domain.OutlookBearish, insight.OverallOutlook)
	assert.InDelta(t, 0.6/0.68, insight.Confidence, 1e-9)
}

func TestAggregateSkipsFailures(t *testing.T) {
	engine := NewEngine(persistence.NewMemoryStore(), nil)
	results := map[string]*domain.ProducerResult{
		"macro":     forecast("macro", domain.OutlookBullish, 0.7),
		"broken":    domain.Failed("timeout"),
		"sentiment": nil,
	}

	insight := engine.Aggregate(context.Background(), results, false, "")

	assert.Equal(t, domain.OutlookBullish, insight.OverallOutlook)
	assert.Len(t, insight.AgentOutputs, 1)
}

func TestAggregateEmptyIsNeutral(t *testing.T) {
	engine := NewEngine(persistence.NewMemoryStore(), nil)

	insight := engine.Aggregate(context.Background(), map[string]*domain.ProducerResult{}, false, "")

	assert.Equal(t, domain.OutlookNeutral, insight.OverallOutlook)
	assert.Equal(t, 0.0, insight.Confidence)
	assert.NotEmpty(t, insight.ResolutionReasoning)
}

func TestAggregateCarriesVeto(t *testing.T) {
	engine := NewEngine(persistence.NewMemoryStore(), nil)
	results := map[string]*domain.ProducerResult{
		"macro": forecast("macro", domain.OutlookBullish, 0.9),
	}

	insight := engine.Aggregate(context.Background(), results, true, "Portfolio risk too high: 85.0%")

	assert.True(t, insight.Vetoed)
	assert.Equal(t, "Portfolio risk too high: 85.0%", insight.VetoReason)
	assert.Equal(t, domain.OutlookBullish, insight.OverallOutlook)
}

func TestDetectConflicts(t *testing.T) {
	forecasts := map[string]*domain.Forecast{
		"a": {ProducerID: "a", Outlook: domain.OutlookBullish, Confidence: 0.7},
		"b": {ProducerID: "b", Outlook: domain.OutlookBearish, Confidence: 0.6},
		"c": {ProducerID: "c", Outlook: domain.OutlookNeutral, Confidence: 0.5},
	}

	conflicts := detectConflicts(forecasts)
	require.Len(t, conflicts, 1)
	assert.Equal(t, []string{"b"}, conflicts[0].Bearish)
	assert.Equal(t, []string{"a"}, conflicts[0].Bullish)

	delete(forecasts, "b")
	assert.Empty(t, detectConflicts(forecasts))
}

func TestAggregateDeterministicTieBreak(t *testing.T) {
	engine := NewEngine(persistence.NewMemoryStore(), nil)
	results := map[string]*domain.ProducerResult{
		"a": forecast("a", domain.OutlookBearish, 0.6),
		"b": forecast("b", domain.OutlookBullish, 0.6),
	}

	// Ties resolve to the earlier canonical bucket on every run.
	for i := 0; i < 20; i++ {
		insight := engine.Aggregate(context.Background(), results, false, "")
		assert.Equal(t, domain.OutlookBearish, insight.OverallOutlook)
	}
}

type failingSynth struct{}

func (failingSynth) Synthesize(context.Context, map[string]*domain.Forecast, domain.Outlook, []domain.Conflict) (*Synthesis, error) {
	return nil, errors.New("service down")
}

func TestSynthesisDegradesGracefully(t *testing.T) {
	engine := NewEngine(persistence.NewMemoryStore(), failingSynth{})
	results := map[string]*domain.ProducerResult{
		"macro": forecast("macro", domain.OutlookBullish, 0.7),
	}

	insight := engine.Aggregate(context.Background(), results, false, "")

	assert.Equal(t, domain.OutlookBullish, insight.OverallOutlook)
	assert.NotEmpty(t, insight.ResolutionReasoning)
	assert.NotEmpty(t, insight.FinalRecommendations)
}
