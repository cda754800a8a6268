package producer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossriver/alphacouncil/internal/domain"
	"github.com/mossriver/alphacouncil/internal/infrastructure/market"
)

type fakeSource struct {
	returns []market.ReturnPoint
	err     error
}

func (f *fakeSource) Quote(ctx context.Context, symbol string) (market.Quote, error) {
	return market.Quote{Symbol: symbol, Price: 500}, nil
}

func (f *fakeSource) DailyReturns(ctx context.Context, symbol string, days int) ([]market.ReturnPoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.returns, nil
}

func steadyReturns(n int, perDay float64) []market.ReturnPoint {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]market.ReturnPoint, n)
	for i := range points {
		points[i] = market.ReturnPoint{Date: base.AddDate(0, 0, i), Close: 500, Return: perDay}
	}
	return points
}

func TestDefaultRegistryIDs(t *testing.T) {
	r := DefaultRegistry()
	ids := r.IDs()

	assert.Len(t, ids, 10)
	assert.Contains(t, ids, "technical")
	assert.Contains(t, ids, "risk")
	assert.Contains(t, ids, "macro")
	assert.Contains(t, ids, "event_driven")
}

func TestRegistryUnknownProducer(t *testing.T) {
	r := DefaultRegistry()
	_, err := r.New("astrology", Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown producer")
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("x", func(Deps) (Producer, error) { return nil, nil }))
	assert.Error(t, r.Register("x", func(Deps) (Producer, error) { return nil, nil }))
}

func TestRemoteProducersNeedClient(t *testing.T) {
	r := DefaultRegistry()
	_, err := r.New("macro", Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forecast service")
}

func TestTechnicalBullishMomentum(t *testing.T) {
	source := &fakeSource{returns: steadyReturns(90, 0.004)}
	p := NewTechnical(source, "SPY")

	f, err := p.Produce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "technical", f.ProducerID)
	assert.Equal(t, domain.OutlookBullish, f.Outlook)
	assert.Greater(t, f.Confidence, 0.5)
	assert.LessOrEqual(t, f.Confidence, 0.85)

	score, ok := f.PredictionFloat("momentum_score")
	require.True(t, ok)
	assert.Greater(t, score, 0.005)
}

func TestTechnicalNeutralOnFlatTape(t *testing.T) {
	source := &fakeSource{returns: steadyReturns(90, 0.00001)}
	p := NewTechnical(source, "SPY")

	f, err := p.Produce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.OutlookNeutral, f.Outlook)
	assert.Equal(t, 0.5, f.Confidence)
}

func TestTechnicalInsufficientHistory(t *testing.T) {
	source := &fakeSource{returns: steadyReturns(3, 0.004)}
	p := NewTechnical(source, "SPY")

	_, err := p.Produce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient history")
}

func TestTechnicalPropagatesSourceError(t *testing.T) {
	p := NewTechnical(&fakeSource{err: errors.New("feed down")}, "SPY")
	_, err := p.Produce(context.Background())
	assert.Error(t, err)
}

func TestRiskCalmBook(t *testing.T) {
	source := &fakeSource{returns: steadyReturns(30, 0.001)}
	p := NewRisk(source, "SPY", DefaultRiskLimits(), PortfolioSnapshot{
		Positions:   []Position{{Symbol: "SPY", AllocationPct: 10}},
		CashPct:     90,
		DrawdownPct: 1,
		Leverage:    1,
	})

	f, err := p.Produce(context.Background())
	require.NoError(t, err)

	risk, ok := f.PredictionFloat("portfolio_risk")
	require.True(t, ok)
	assert.Less(t, risk, 0.8)

	positions := f.PredictionFloatMap("position_risks")
	require.Contains(t, positions, "SPY")
	assert.Less(t, positions["SPY"], 0.9)
}

func TestRiskStressedBook(t *testing.T) {
	source := &fakeSource{returns: steadyReturns(30, 0.001)}
	p := NewRisk(source, "SPY", DefaultRiskLimits(), PortfolioSnapshot{
		Positions:   []Position{{Symbol: "NVDA", AllocationPct: 40}},
		DrawdownPct: 12,
		Leverage:    2.5,
	})

	f, err := p.Produce(context.Background())
	require.NoError(t, err)

	risk, ok := f.PredictionFloat("portfolio_risk")
	require.True(t, ok)
	assert.Greater(t, risk, 0.8)
	assert.Equal(t, domain.OutlookBearish, f.Outlook)
}

type mapCache struct {
	store map[string]*domain.Forecast
	sets  int
}

func (m *mapCache) GetOutput(ctx context.Context, id string) (*domain.Forecast, bool) {
	f, ok := m.store[id]
	return f, ok
}

func (m *mapCache) SetOutput(ctx context.Context, id string, f *domain.Forecast, ttl time.Duration) error {
	m.store[id] = f
	m.sets++
	return nil
}

func TestCachedWrapper(t *testing.T) {
	source := &fakeSource{returns: steadyReturns(90, 0.004)}
	cache := &mapCache{store: make(map[string]*domain.Forecast)}

	p := WithCache(NewTechnical(source, "SPY"), cache, time.Hour)

	_, err := p.Produce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
	assert.False(t, p.(*Cached).WasCached())

	_, err = p.Produce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
	assert.True(t, p.(*Cached).WasCached())
}

func TestWithNilCacheReturnsUnwrapped(t *testing.T) {
	p := NewTechnical(&fakeSource{}, "SPY")
	assert.Equal(t, Producer(p), WithCache(p, nil, time.Hour))
}
