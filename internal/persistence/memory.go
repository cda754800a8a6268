package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/mossriver/alphacouncil/internal/domain"
)

// MemoryStore implements every repository interface in memory. Weight
// updates replace the whole map under the lock so concurrent readers never
// observe a torn value.
type MemoryStore struct {
	mu        sync.RWMutex
	nextID    int64
	forecasts []StoredForecast
	insights  []*domain.AggregatedInsight
	orders    map[string][]domain.Order
	outcomes  []domain.PredictionOutcome
	weights   map[string]float64
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:  make(map[string][]domain.Order),
		weights: make(map[string]float64),
	}
}

func (m *MemoryStore) Save(ctx context.Context, f *domain.Forecast) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.forecasts = append(m.forecasts, StoredForecast{ID: m.nextID, Forecast: *f})
	return m.nextID, nil
}

func (m *MemoryStore) ListSince(ctx context.Context, since time.Time) ([]StoredForecast, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []StoredForecast
	for _, f := range m.forecasts {
		if !f.Timestamp.Before(since) {
			out = append(out, f)
		}
	}
	return out, nil
}

// SaveInsight satisfies InsightRepo.
func (m *MemoryStore) SaveInsight(ctx context.Context, insight *domain.AggregatedInsight) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insights = append(m.insights, insight)
	return nil
}

func (m *MemoryStore) Latest(ctx context.Context) (*domain.AggregatedInsight, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.insights) == 0 {
		return nil, nil
	}
	return m.insights[len(m.insights)-1], nil
}

// SaveOrders satisfies OrderRepo.
func (m *MemoryStore) SaveOrders(ctx context.Context, runID string, orders []domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[runID] = append(m.orders[runID], orders...)
	return nil
}

// SaveOutcomes satisfies OutcomeRepo.
func (m *MemoryStore) SaveOutcomes(ctx context.Context, outcomes []domain.PredictionOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcomes...)
	return nil
}

func (m *MemoryStore) WinRate(ctx context.Context, symbol string) (float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total, correct int
	for _, o := range m.outcomes {
		if o.Symbol != symbol {
			continue
		}
		total++
		if o.WasCorrect {
			correct++
		}
	}
	if total == 0 {
		return 0, false, nil
	}
	return float64(correct) / float64(total), true, nil
}

func (m *MemoryStore) Weight(ctx context.Context, producerID string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if w, ok := m.weights[producerID]; ok {
		return w, nil
	}
	return 1.0, nil
}

func (m *MemoryStore) SetWeight(ctx context.Context, producerID string, weight float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := make(map[string]float64, len(m.weights)+1)
	for k, v := range m.weights {
		next[k] = v
	}
	next[producerID] = weight
	m.weights = next
	return nil
}

func (m *MemoryStore) All(ctx context.Context) (map[string]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]float64, len(m.weights))
	for k, v := range m.weights {
		out[k] = v
	}
	return out, nil
}

// memInsightRepo / memOrderRepo / memOutcomeRepo adapt MemoryStore's
// differently named methods to the single-method-name interfaces.
type memInsightRepo struct{ *MemoryStore }

func (r memInsightRepo) Save(ctx context.Context, insight *domain.AggregatedInsight) error {
	return r.SaveInsight(ctx, insight)
}

type memOrderRepo struct{ *MemoryStore }

func (r memOrderRepo) Save(ctx context.Context, runID string, orders []domain.Order) error {
	return r.SaveOrders(ctx, runID, orders)
}

type memOutcomeRepo struct{ *MemoryStore }

func (r memOutcomeRepo) Save(ctx context.Context, outcomes []domain.PredictionOutcome) error {
	return r.SaveOutcomes(ctx, outcomes)
}

// Insights returns the store viewed as an InsightRepo.
func (m *MemoryStore) Insights() InsightRepo { return memInsightRepo{m} }

// Orders returns the store viewed as an OrderRepo.
func (m *MemoryStore) Orders() OrderRepo { return memOrderRepo{m} }

// Outcomes returns the store viewed as an OutcomeRepo.
func (m *MemoryStore) Outcomes() OutcomeRepo { return memOutcomeRepo{m} }
