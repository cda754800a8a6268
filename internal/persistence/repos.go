// Package persistence defines the repository interfaces the core
// components read and write through. Implementations live in subpackages;
// the in-memory variants here back tests and storage-less runs.
package persistence

import (
	"context"
	"time"

	"github.com/mossriver/alphacouncil/internal/domain"
)

// StoredForecast is a persisted forecast plus its storage identity.
type StoredForecast struct {
	ID int64
	domain.Forecast
}

// ForecastRepo stores producer forecasts keyed by producer id + timestamp.
type ForecastRepo interface {
	Save(ctx context.Context, f *domain.Forecast) (int64, error)
	ListSince(ctx context.Context, since time.Time) ([]StoredForecast, error)
}

// InsightRepo stores one consensus per run.
type InsightRepo interface {
	Save(ctx context.Context, insight *domain.AggregatedInsight) error
	Latest(ctx context.Context) (*domain.AggregatedInsight, error)
}

// OrderRepo stores sized orders emitted by a run.
type OrderRepo interface {
	Save(ctx context.Context, runID string, orders []domain.Order) error
}

// OutcomeRepo stores attribution records and serves the per-symbol win
// rate the sizer consumes.
type OutcomeRepo interface {
	Save(ctx context.Context, outcomes []domain.PredictionOutcome) error
	WinRate(ctx context.Context, symbol string) (float64, bool, error)
}

// WeightStore holds one weight per producer, bounded to [0.1, 2.0].
// Written only by the learning loop; missing producers read as 1.0.
type WeightStore interface {
	Weight(ctx context.Context, producerID string) (float64, error)
	SetWeight(ctx context.Context, producerID string, weight float64) error
	All(ctx context.Context) (map[string]float64, error)
}
