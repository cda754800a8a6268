package sizing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossriver/alphacouncil/internal/domain"
	"github.com/mossriver/alphacouncil/internal/infrastructure/market"
)

type fakeSource struct {
	price   float64
	returns []market.ReturnPoint
}

func (f *fakeSource) Quote(ctx context.Context, symbol string) (market.Quote, error) {
	return market.Quote{Symbol: symbol, Price: f.price, Timestamp: time.Now()}, nil
}

func (f *fakeSource) DailyReturns(ctx context.Context, symbol string, days int) ([]market.ReturnPoint, error) {
	return f.returns, nil
}

func testConfig() Config {
	return Config{
		PortfolioValue:       100000,
		KellySafetyFraction:  0.5,
		MaxPositionPct:       0.25,
		ActionableConfidence: 0.6,
		ApprovalFraction:     0.15,
		ApprovalMinEdge:      0.02,
		PrimarySymbol:        "SPY",
		SecondarySymbol:      "QQQ",
	}
}

func TestKellyFraction(t *testing.T) {
	s := NewSizer(testConfig(), &fakeSource{price: 500}, nil)

	pos := s.Kelly("SPY", 0.6, 0.05, 0.03)

	// b = 5/3, f* = (0.6*5/3 - 0.4)/(5/3) = 0.36
	assert.InDelta(t, 0.36, pos.KellyFraction, 1e-9)
	assert.InDelta(t, 0.18, pos.RecommendedFraction, 1e-9)
	assert.InDelta(t, 18000, pos.PositionSizeDollars, 1e-6)
	assert.InDelta(t, 0.018, pos.Edge, 1e-9)
}

func TestKellyCapsAtPositionLimit(t *testing.T) {
	s := NewSizer(testConfig(), &fakeSource{price: 500}, nil)

	pos := s.Kelly("SPY", 0.9, 0.05, 0.03)

	assert.Equal(t, 0.25, pos.RecommendedFraction)
}

func TestKellyNegativeEdgeIsZero(t *testing.T) {
	s := NewSizer(testConfig(), &fakeSource{price: 500}, nil)

	pos := s.Kelly("SPY", 0.3, 0.05, 0.05)

	assert.Equal(t, 0.0, pos.KellyFraction)
	assert.Equal(t, 0.0, pos.RecommendedFraction)
}

func TestBuildOrdersSkipsNotActionable(t *testing.T) {
	s := NewSizer(testConfig(), &fakeSource{price: 500}, nil)

	cases := []struct {
		name    string
		insight *domain.AggregatedInsight
	}{
		{"nil insight", nil},
		{"vetoed", &domain.AggregatedInsight{OverallOutlook: domain.OutlookBullish, Confidence: 0.9, Vetoed: true}},
		{"neutral", &domain.AggregatedInsight{OverallOutlook: domain.OutlookNeutral, Confidence: 0.9}},
		{"below threshold", &domain.AggregatedInsight{OverallOutlook: domain.OutlookBullish, Confidence: 0.55}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			orders, err := s.BuildOrders(context.Background(), tc.insight)
			require.NoError(t, err)
			assert.Empty(t, orders)
		})
	}
}

func TestBuildOrdersPrimaryOnly(t *testing.T) {
	s := NewSizer(testConfig(), &fakeSource{price: 500}, nil)

	orders, err := s.BuildOrders(context.Background(), &domain.AggregatedInsight{
		OverallOutlook: domain.OutlookBullish,
		Confidence:     0.65,
	})
	require.NoError(t, err)
	require.Len(t, orders, 1)

	order := orders[0]
	assert.Equal(t, "SPY", order.Symbol)
	assert.Equal(t, domain.ActionBuy, order.Action)
	assert.Equal(t, domain.OrderLimit, order.OrderType)
	assert.Greater(t, order.LimitPrice, 0.0)
	assert.Less(t, order.LimitPrice, 500.0)
	assert.Greater(t, order.TargetPrice, 500.0)
	assert.Less(t, order.StopPrice, 500.0)
}

func TestBuildOrdersAddsSecondaryAtHighConviction(t *testing.T) {
	s := NewSizer(testConfig(), &fakeSource{price: 500}, nil)

	orders, err := s.BuildOrders(context.Background(), &domain.AggregatedInsight{
		OverallOutlook: domain.OutlookBullish,
		Confidence:     0.85,
	})
	require.NoError(t, err)
	require.Len(t, orders, 2)

	assert.Equal(t, "SPY", orders[0].Symbol)
	assert.Equal(t, domain.OrderMarket, orders[0].OrderType)
	assert.Equal(t, "QQQ", orders[1].Symbol)
	assert.InDelta(t, 0.85*0.9, orders[1].Confidence, 1e-9)
	// 0.765 < 0.8, so the secondary works a limit.
	assert.Equal(t, domain.OrderLimit, orders[1].OrderType)
}

func TestBuildOrdersBearishSells(t *testing.T) {
	s := NewSizer(testConfig(), &fakeSource{price: 500}, nil)

	orders, err := s.BuildOrders(context.Background(), &domain.AggregatedInsight{
		OverallOutlook: domain.OutlookBearish,
		Confidence:     0.65,
	})
	require.NoError(t, err)
	require.Len(t, orders, 1)

	order := orders[0]
	assert.Equal(t, domain.ActionSell, order.Action)
	assert.Greater(t, order.LimitPrice, 500.0)
	assert.Less(t, order.TargetPrice, 500.0)
	assert.Greater(t, order.StopPrice, 500.0)
}

type fakeOutcomes struct {
	rate float64
	ok   bool
}

func (f *fakeOutcomes) Save(ctx context.Context, outcomes []domain.PredictionOutcome) error {
	return nil
}

func (f *fakeOutcomes) WinRate(ctx context.Context, symbol string) (float64, bool, error) {
	return f.rate, f.ok, nil
}

func TestApprovalOnThinEdge(t *testing.T) {
	// Realized win rate 0.55 keeps the fraction under the auto-approve
	// limit but the edge (0.014) under the 0.02 floor.
	s := NewSizer(testConfig(), &fakeSource{price: 500}, &fakeOutcomes{rate: 0.55, ok: true})

	orders, err := s.BuildOrders(context.Background(), &domain.AggregatedInsight{
		OverallOutlook: domain.OutlookBullish,
		Confidence:     0.65,
	})
	require.NoError(t, err)
	require.Len(t, orders, 1)

	assert.True(t, orders[0].RequiresApproval)
	assert.Contains(t, orders[0].ApprovalReason, "edge")
}

func TestWinRateFallsBackToConfidence(t *testing.T) {
	s := NewSizer(testConfig(), &fakeSource{price: 500}, &fakeOutcomes{ok: false})

	orders, err := s.BuildOrders(context.Background(), &domain.AggregatedInsight{
		OverallOutlook: domain.OutlookBullish,
		Confidence:     0.65,
	})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.InDelta(t, 0.65, orders[0].KellySizing.WinProbability, 1e-9)
}

func TestApprovalOnOversizedFraction(t *testing.T) {
	cfg := testConfig()
	cfg.ApprovalFraction = 0.10
	s := NewSizer(cfg, &fakeSource{price: 500}, nil)

	orders, err := s.BuildOrders(context.Background(), &domain.AggregatedInsight{
		OverallOutlook: domain.OutlookBullish,
		Confidence:     0.75,
	})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.True(t, orders[0].RequiresApproval)
	assert.Contains(t, orders[0].ApprovalReason, "portfolio")
}
