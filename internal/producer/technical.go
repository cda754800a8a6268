package producer

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mossriver/alphacouncil/internal/domain"
	"github.com/mossriver/alphacouncil/internal/infrastructure/market"
)

// Momentum lookback windows in trading days and their blend weights.
// Short-term momentum dominates, in line with the composite scoring the
// rest of the system uses.
var momentumWindows = []struct {
	days   int
	weight float64
}{
	{5, 0.5},
	{21, 0.35},
	{63, 0.15},
}

// Technical produces a momentum forecast for the benchmark symbol from
// daily return history. It is the one fully local analysis producer.
type Technical struct {
	source market.Source
	symbol string
}

// NewTechnical builds the technical producer for symbol.
func NewTechnical(source market.Source, symbol string) *Technical {
	return &Technical{source: source, symbol: symbol}
}

func (t *Technical) ID() string { return "technical" }

func (t *Technical) Produce(ctx context.Context) (*domain.Forecast, error) {
	points, err := t.source.DailyReturns(ctx, t.symbol, 90)
	if err != nil {
		return nil, fmt.Errorf("technical: %w", err)
	}
	if len(points) < momentumWindows[0].days {
		return nil, fmt.Errorf("technical: insufficient history for %s (%d points)", t.symbol, len(points))
	}

	score := momentumScore(points)
	vol := market.DailyVol(points)

	outlook := domain.OutlookNeutral
	switch {
	case score > 0.005:
		outlook = domain.OutlookBullish
	case score < -0.005:
		outlook = domain.OutlookBearish
	}

	// Confidence scales with signal size relative to volatility, capped
	// well short of certainty for a single-factor view.
	confidence := 0.5
	if vol > 0 {
		confidence = 0.5 + math.Min(0.35, math.Abs(score)/(vol*10))
	}
	if outlook == domain.OutlookNeutral {
		confidence = 0.5
	}

	return &domain.Forecast{
		ProducerID: t.ID(),
		Timestamp:  time.Now().UTC(),
		Outlook:    outlook,
		Confidence: confidence,
		Timeframe:  domain.TimeframeWeek,
		SpecificPredictions: map[string]interface{}{
			"momentum_score": score,
			"daily_vol":      vol,
			"annualized_vol": market.AnnualizedVol(vol),
		},
		Reasoning: fmt.Sprintf(
			"Blended %s momentum %.3f%% against daily volatility %.3f%%",
			t.symbol, score*100, vol*100),
		KeyFactors:  []string{fmt.Sprintf("%s blended momentum %.4f", t.symbol, score)},
		DataSources: []string{"daily candles"},
	}, nil
}

// momentumScore blends cumulative returns over the lookback windows,
// weighting recent windows more heavily. Points are oldest-first.
func momentumScore(points []market.ReturnPoint) float64 {
	var score, totalWeight float64
	for _, w := range momentumWindows {
		if len(points) < w.days {
			continue
		}
		var cum float64
		for _, p := range points[len(points)-w.days:] {
			cum += p.Return
		}
		score += cum * w.weight
		totalWeight += w.weight
	}
	if totalWeight == 0 {
		return 0
	}
	return score / totalWeight
}
