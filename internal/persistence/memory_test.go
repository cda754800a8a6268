package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossriver/alphacouncil/internal/domain"
)

func TestMemoryForecastRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	old := &domain.Forecast{ProducerID: "macro", Timestamp: time.Now().AddDate(0, 0, -30)}
	recent := &domain.Forecast{ProducerID: "technical", Timestamp: time.Now()}

	id1, err := store.Save(ctx, old)
	require.NoError(t, err)
	id2, err := store.Save(ctx, recent)
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	since := time.Now().AddDate(0, 0, -7)
	listed, err := store.ListSince(ctx, since)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "technical", listed[0].ProducerID)
}

func TestMemoryWeightDefaults(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	w, err := store.Weight(ctx, "never_seen")
	require.NoError(t, err)
	assert.Equal(t, 1.0, w)

	require.NoError(t, store.SetWeight(ctx, "macro", 1.25))
	w, err = store.Weight(ctx, "macro")
	require.NoError(t, err)
	assert.Equal(t, 1.25, w)

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"macro": 1.25}, all)
}

func TestMemoryWeightConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.SetWeight(ctx, "macro", 1.5)
			_, _ = store.Weight(ctx, "macro")
			_, _ = store.All(ctx)
		}()
	}
	wg.Wait()

	w, err := store.Weight(ctx, "macro")
	require.NoError(t, err)
	assert.Equal(t, 1.5, w)
}

func TestMemoryWinRate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := store.WinRate(ctx, "SPY")
	require.NoError(t, err)
	assert.False(t, ok)

	outcomes := []domain.PredictionOutcome{
		{Symbol: "SPY", WasCorrect: true},
		{Symbol: "SPY", WasCorrect: true},
		{Symbol: "SPY", WasCorrect: false},
		{Symbol: "QQQ", WasCorrect: false},
	}
	require.NoError(t, store.Outcomes().Save(ctx, outcomes))

	rate, ok, err := store.WinRate(ctx, "SPY")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 2.0/3.0, rate, 1e-9)
}

func TestMemoryInsightLatest(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	repo := store.Insights()

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	first := &domain.AggregatedInsight{OverallOutlook: domain.OutlookBearish}
	second := &domain.AggregatedInsight{OverallOutlook: domain.OutlookBullish}
	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, second))

	latest, err = repo.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.OutlookBullish, latest.OverallOutlook)
}
