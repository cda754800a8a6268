// Package learning closes the feedback loop: it scores past forecasts
// against realized returns and adjusts producer weights.
package learning

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mossriver/alphacouncil/internal/domain"
	"github.com/mossriver/alphacouncil/internal/infrastructure/market"
	"github.com/mossriver/alphacouncil/internal/persistence"
)

const (
	// Returns inside this band count as flat for attribution direction.
	directionBand = 0.005
	// A neutral call is correct when the realized move stays inside this.
	neutralBand = 0.02
	// Weight bounds after adjustment.
	minWeight = 0.1
	maxWeight = 2.0
	// Trailing window for regime classification.
	regimeWindow = 20
)

// Config holds the learning loop knobs.
type Config struct {
	LookbackDays   int
	MinPredictions int
	AdjustmentRate float64
	Benchmark      string
}

// ProducerStats summarizes one producer's scored history.
type ProducerStats struct {
	ProducerID       string  `json:"producer_id"`
	SampleSize       int     `json:"sample_size"`
	Accuracy         float64 `json:"accuracy"`
	AvgConfCorrect   float64 `json:"avg_confidence_correct"`
	AvgConfWrong     float64 `json:"avg_confidence_wrong"`
	BrierScore       float64 `json:"brier_score"`
	TotalAttribution float64 `json:"total_attribution"`
	Sharpe           float64 `json:"sharpe"`
}

// WeightChange records one weight update.
type WeightChange struct {
	ProducerID string  `json:"producer_id"`
	Old        float64 `json:"old"`
	New        float64 `json:"new"`
}

// Report is the output of one learning cycle.
type Report struct {
	Outcomes      int                      `json:"outcomes"`
	Stats         map[string]ProducerStats `json:"stats"`
	WeightChanges []WeightChange           `json:"weight_changes"`
	CurrentRegime domain.Regime            `json:"current_regime"`
}

// Loop runs attribution, statistics, and weight adjustment.
type Loop struct {
	cfg       Config
	market    market.Source
	forecasts persistence.ForecastRepo
	outcomes  persistence.OutcomeRepo
	weights   persistence.WeightStore
}

// NewLoop builds the learning loop.
func NewLoop(cfg Config, source market.Source, forecasts persistence.ForecastRepo, outcomes persistence.OutcomeRepo, weights persistence.WeightStore) *Loop {
	return &Loop{cfg: cfg, market: source, forecasts: forecasts, outcomes: outcomes, weights: weights}
}

// RunCycle scores the lookback window and adjusts weights. A cycle with
// too little history is not an error; it reports what it saw and changes
// nothing.
func (l *Loop) RunCycle(ctx context.Context) (*Report, error) {
	since := time.Now().UTC().AddDate(0, 0, -l.cfg.LookbackDays)
	stored, err := l.forecasts.ListSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list forecasts: %w", err)
	}

	// Extra history beyond the lookback so the longest timeframes have a
	// full forward window to resolve against.
	returns, err := l.market.DailyReturns(ctx, l.cfg.Benchmark, l.cfg.LookbackDays+260)
	if err != nil {
		return nil, fmt.Errorf("benchmark returns: %w", err)
	}

	outcomes := l.AttributeOutcomes(stored, returns)
	if len(outcomes) > 0 {
		if err := l.outcomes.Save(ctx, outcomes); err != nil {
			return nil, fmt.Errorf("save outcomes: %w", err)
		}
	}

	report := &Report{
		Outcomes:      len(outcomes),
		Stats:         ComputeStats(outcomes, l.cfg.MinPredictions),
		CurrentRegime: DetectRegime(returns),
	}

	report.WeightChanges, err = l.adjustWeights(ctx, report.Stats)
	if err != nil {
		return nil, err
	}

	log.Info().Str("component", "learning").
		Int("forecasts", len(stored)).
		Int("outcomes", len(outcomes)).
		Int("weight_changes", len(report.WeightChanges)).
		Str("regime", string(report.CurrentRegime)).
		Msg("Learning cycle complete")

	return report, nil
}

// AttributeOutcomes resolves each stored forecast against the realized
// forward return over its declared timeframe. Forecasts whose window has
// not fully elapsed, or whose window nets to exactly zero, are skipped.
func (l *Loop) AttributeOutcomes(stored []persistence.StoredForecast, returns []market.ReturnPoint) []domain.PredictionOutcome {
	outcomes := make([]domain.PredictionOutcome, 0, len(stored))

	for _, sf := range stored {
		days := sf.Timeframe.TradingDays()
		forward := forwardReturns(returns, sf.Timestamp, days)
		if len(forward) < days {
			continue
		}

		var actual float64
		for _, p := range forward {
			actual += p.Return
		}
		if actual == 0 {
			continue
		}

		direction := domain.OutlookNeutral
		switch {
		case actual > directionBand:
			direction = domain.OutlookBullish
		case actual < -directionBand:
			direction = domain.OutlookBearish
		}

		correct := sf.Outlook == direction
		if sf.Outlook == domain.OutlookNeutral {
			correct = math.Abs(actual) < neutralBand
		}

		attribution := sf.Confidence * math.Abs(actual) * 100
		if !correct {
			attribution = -attribution
		}

		outcomes = append(outcomes, domain.PredictionOutcome{
			PredictionID:        sf.ID,
			ProducerID:          sf.ProducerID,
			Symbol:              l.cfg.Benchmark,
			PredictedOutlook:    sf.Outlook,
			PredictedConfidence: sf.Confidence,
			PredictionDate:      sf.Timestamp,
			TargetDate:          forward[len(forward)-1].Date,
			ActualReturn:        actual,
			ActualDirection:     direction,
			WasCorrect:          correct,
			AttributionScore:    attribution,
			Regime:              DetectRegime(trailingReturns(returns, sf.Timestamp)),
		})
	}

	return outcomes
}

// forwardReturns takes the first n return points strictly after ts.
func forwardReturns(returns []market.ReturnPoint, ts time.Time, n int) []market.ReturnPoint {
	start := sort.Search(len(returns), func(i int) bool {
		return returns[i].Date.After(ts)
	})
	end := start + n
	if end > len(returns) {
		end = len(returns)
	}
	return returns[start:end]
}

// trailingReturns takes the return points at or before ts, for classifying
// the regime the prediction was made in.
func trailingReturns(returns []market.ReturnPoint, ts time.Time) []market.ReturnPoint {
	end := sort.Search(len(returns), func(i int) bool {
		return returns[i].Date.After(ts)
	})
	return returns[:end]
}

// ComputeStats folds outcomes into per-producer statistics. Producers with
// fewer than minSamples outcomes are omitted.
func ComputeStats(outcomes []domain.PredictionOutcome, minSamples int) map[string]ProducerStats {
	grouped := make(map[string][]domain.PredictionOutcome)
	for _, o := range outcomes {
		grouped[o.ProducerID] = append(grouped[o.ProducerID], o)
	}

	stats := make(map[string]ProducerStats, len(grouped))
	for id, group := range grouped {
		if len(group) < minSamples {
			continue
		}

		var correct int
		var confCorrect, confWrong, brier, totalAttr float64
		scores := make([]float64, 0, len(group))
		for _, o := range group {
			target := 0.0
			if o.WasCorrect {
				correct++
				confCorrect += o.PredictedConfidence
				target = 1.0
			} else {
				confWrong += o.PredictedConfidence
			}
			brier += (o.PredictedConfidence - target) * (o.PredictedConfidence - target)
			totalAttr += o.AttributionScore
			scores = append(scores, o.AttributionScore)
		}

		n := float64(len(group))
		s := ProducerStats{
			ProducerID:       id,
			SampleSize:       len(group),
			Accuracy:         float64(correct) / n,
			BrierScore:       brier / n,
			TotalAttribution: totalAttr,
			Sharpe:           sharpe(scores),
		}
		if correct > 0 {
			s.AvgConfCorrect = confCorrect / float64(correct)
		}
		if wrong := len(group) - correct; wrong > 0 {
			s.AvgConfWrong = confWrong / float64(wrong)
		}
		stats[id] = s
	}

	return stats
}

// sharpe is mean over standard deviation of the attribution scores, zero
// when the scores do not vary.
func sharpe(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var mean float64
	for _, v := range scores {
		mean += v
	}
	mean /= float64(len(scores))

	var variance float64
	for _, v := range scores {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(scores))
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance)
}

// AdjustedWeight blends accuracy, calibration and consistency into a
// multiplicative weight update, clamped to [0.1, 2.0].
func AdjustedWeight(current float64, stats ProducerStats, rate float64) float64 {
	adjustment := (stats.Accuracy-0.5)*0.4 +
		(0.5-stats.BrierScore)*0.3 +
		(stats.Sharpe/10)*0.3

	next := current * (1 + adjustment*rate)
	next = math.Max(minWeight, math.Min(maxWeight, next))
	return math.Round(next*1000) / 1000
}

func (l *Loop) adjustWeights(ctx context.Context, stats map[string]ProducerStats) ([]WeightChange, error) {
	ids := make([]string, 0, len(stats))
	for id := range stats {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	changes := make([]WeightChange, 0, len(ids))
	for _, id := range ids {
		current, err := l.weights.Weight(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read weight %s: %w", id, err)
		}
		next := AdjustedWeight(current, stats[id], l.cfg.AdjustmentRate)
		if next == current {
			continue
		}
		if err := l.weights.SetWeight(ctx, id, next); err != nil {
			return nil, fmt.Errorf("set weight %s: %w", id, err)
		}
		log.Info().Str("component", "learning").
			Str("producer", id).
			Float64("old", current).Float64("new", next).
			Msg("Producer weight adjusted")
		changes = append(changes, WeightChange{ProducerID: id, Old: current, New: next})
	}
	return changes, nil
}

// DetectRegime classifies the most recent trailing window of returns.
// High volatility dominates; direction only matters in normal tape.
func DetectRegime(returns []market.ReturnPoint) domain.Regime {
	if len(returns) < 10 {
		return domain.RegimeSideways
	}
	window := returns
	if len(window) > regimeWindow {
		window = window[len(window)-regimeWindow:]
	}

	var cum float64
	for _, p := range window {
		cum += p.Return
	}
	annVol := market.AnnualizedVol(market.DailyVol(window))

	switch {
	case annVol > 0.30:
		return domain.RegimeHighVol
	case annVol < 0.10:
		return domain.RegimeLowVol
	case cum > 0.05:
		return domain.RegimeBull
	case cum < -0.05:
		return domain.RegimeBear
	default:
		return domain.RegimeSideways
	}
}
