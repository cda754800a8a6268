package learning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossriver/alphacouncil/internal/domain"
	"github.com/mossriver/alphacouncil/internal/infrastructure/market"
	"github.com/mossriver/alphacouncil/internal/persistence"
)

func day(n int) time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// returnsSeries builds n daily points with a constant per-day return.
func returnsSeries(n int, perDay float64) []market.ReturnPoint {
	points := make([]market.ReturnPoint, n)
	for i := range points {
		points[i] = market.ReturnPoint{Date: day(i), Return: perDay}
	}
	return points
}

func testLoop() *Loop {
	return NewLoop(Config{
		LookbackDays:   90,
		MinPredictions: 2,
		AdjustmentRate: 0.1,
		Benchmark:      "SPY",
	}, nil, nil, nil, persistence.NewMemoryStore())
}

func TestAttributeCorrectBullishCall(t *testing.T) {
	loop := testLoop()
	stored := []persistence.StoredForecast{{
		ID: 1,
		Forecast: domain.Forecast{
			ProducerID: "macro",
			Timestamp:  day(10),
			Outlook:    domain.OutlookBullish,
			Confidence: 0.8,
			Timeframe:  domain.TimeframeWeek,
		},
	}}
	returns := returnsSeries(60, 0.004)

	outcomes := loop.AttributeOutcomes(stored, returns)
	require.Len(t, outcomes, 1)

	o := outcomes[0]
	assert.Equal(t, int64(1), o.PredictionID)
	assert.InDelta(t, 0.02, o.ActualReturn, 1e-9) // 5 days * 0.004
	assert.Equal(t, domain.OutlookBullish, o.ActualDirection)
	assert.True(t, o.WasCorrect)
	assert.InDelta(t, 0.8*0.02*100, o.AttributionScore, 1e-9)
}

func TestAttributeWrongCallIsNegative(t *testing.T) {
	loop := testLoop()
	stored := []persistence.StoredForecast{{
		ID: 2,
		Forecast: domain.Forecast{
			ProducerID: "sentiment",
			Timestamp:  day(10),
			Outlook:    domain.OutlookBearish,
			Confidence: 0.7,
			Timeframe:  domain.TimeframeWeek,
		},
	}}
	returns := returnsSeries(60, 0.004)

	outcomes := loop.AttributeOutcomes(stored, returns)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].WasCorrect)
	assert.Less(t, outcomes[0].AttributionScore, 0.0)
}

func TestAttributeNeutralCorrectInsideBand(t *testing.T) {
	loop := testLoop()
	stored := []persistence.StoredForecast{{
		ID: 3,
		Forecast: domain.Forecast{
			ProducerID: "macro",
			Timestamp:  day(10),
			Outlook:    domain.OutlookNeutral,
			Confidence: 0.6,
			Timeframe:  domain.TimeframeWeek,
		},
	}}
	// 5 days * 0.002 = 0.01: bullish direction but inside the 0.02 band.
	returns := returnsSeries(60, 0.002)

	outcomes := loop.AttributeOutcomes(stored, returns)
	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.OutlookBullish, outcomes[0].ActualDirection)
	assert.True(t, outcomes[0].WasCorrect)
}

func TestAttributeSkipsUnresolvedWindow(t *testing.T) {
	loop := testLoop()
	stored := []persistence.StoredForecast{{
		ID: 4,
		Forecast: domain.Forecast{
			ProducerID: "macro",
			Timestamp:  day(58), // only 1 forward point available
			Outlook:    domain.OutlookBullish,
			Confidence: 0.8,
			Timeframe:  domain.TimeframeWeek,
		},
	}}
	returns := returnsSeries(60, 0.004)

	assert.Empty(t, loop.AttributeOutcomes(stored, returns))
}

func TestAttributeSkipsFlatWindow(t *testing.T) {
	loop := testLoop()
	stored := []persistence.StoredForecast{{
		ID: 5,
		Forecast: domain.Forecast{
			ProducerID: "macro",
			Timestamp:  day(10),
			Outlook:    domain.OutlookBullish,
			Confidence: 0.8,
			Timeframe:  domain.TimeframeWeek,
		},
	}}
	returns := returnsSeries(60, 0)

	assert.Empty(t, loop.AttributeOutcomes(stored, returns))
}

func outcome(producer string, confidence float64, correct bool, score float64) domain.PredictionOutcome {
	return domain.PredictionOutcome{
		ProducerID:          producer,
		PredictedConfidence: confidence,
		WasCorrect:          correct,
		AttributionScore:    score,
	}
}

func TestComputeStats(t *testing.T) {
	outcomes := []domain.PredictionOutcome{
		outcome("macro", 0.8, true, 1.6),
		outcome("macro", 0.6, true, 1.2),
		outcome("macro", 0.7, false, -1.4),
		outcome("thin", 0.9, true, 2.0), // below min samples
	}

	stats := ComputeStats(outcomes, 2)
	require.Contains(t, stats, "macro")
	assert.NotContains(t, stats, "thin")

	m := stats["macro"]
	assert.Equal(t, 3, m.SampleSize)
	assert.InDelta(t, 2.0/3.0, m.Accuracy, 1e-9)
	assert.InDelta(t, 0.7, m.AvgConfCorrect, 1e-9)
	assert.InDelta(t, 0.7, m.AvgConfWrong, 1e-9)
	// ((0.8-1)^2 + (0.6-1)^2 + (0.7-0)^2) / 3
	assert.InDelta(t, (0.04+0.16+0.49)/3, m.BrierScore, 1e-9)
	assert.InDelta(t, 1.4, m.TotalAttribution, 1e-9)
}

func TestSharpeZeroWhenConstant(t *testing.T) {
	assert.Equal(t, 0.0, sharpe([]float64{1.5, 1.5, 1.5}))
	assert.Equal(t, 0.0, sharpe(nil))
	assert.Greater(t, sharpe([]float64{1.0, 2.0, 3.0}), 0.0)
}

func TestAdjustedWeightClamps(t *testing.T) {
	strong := ProducerStats{Accuracy: 1.0, BrierScore: 0.0, Sharpe: 10}
	weak := ProducerStats{Accuracy: 0.0, BrierScore: 1.0, Sharpe: -10}

	// Repeated adjustments stay inside the bounds.
	w := 1.0
	for i := 0; i < 50; i++ {
		w = AdjustedWeight(w, strong, 1.0)
	}
	assert.LessOrEqual(t, w, 2.0)

	w = 1.0
	for i := 0; i < 50; i++ {
		w = AdjustedWeight(w, weak, 1.0)
	}
	assert.GreaterOrEqual(t, w, 0.1)
}

func TestAdjustedWeightDirection(t *testing.T) {
	good := ProducerStats{Accuracy: 0.7, BrierScore: 0.2, Sharpe: 1.0}
	bad := ProducerStats{Accuracy: 0.3, BrierScore: 0.7, Sharpe: -1.0}

	assert.Greater(t, AdjustedWeight(1.0, good, 0.1), 1.0)
	assert.Less(t, AdjustedWeight(1.0, bad, 0.1), 1.0)
}

func TestDetectRegime(t *testing.T) {
	cases := []struct {
		name   string
		points []market.ReturnPoint
		want   domain.Regime
	}{
		{"too few points", returnsSeries(5, 0.01), domain.RegimeSideways},
		{"high volatility", alternating(20, 0.04), domain.RegimeHighVol},
		{"bull", returnsSeries(20, 0.008), domain.RegimeBull},
		{"bear", returnsSeries(20, -0.008), domain.RegimeBear},
		{"low volatility", returnsSeries(20, 0.0001), domain.RegimeLowVol},
		{"sideways", alternating(20, 0.01), domain.RegimeSideways},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectRegime(tc.points))
		})
	}
}

// alternating flips the sign each day so the cumulative move stays small
// while volatility stays high.
func alternating(n int, magnitude float64) []market.ReturnPoint {
	points := make([]market.ReturnPoint, n)
	for i := range points {
		r := magnitude
		if i%2 == 1 {
			r = -magnitude
		}
		points[i] = market.ReturnPoint{Date: day(i), Return: r}
	}
	return points
}
