package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mossriver/alphacouncil/internal/persistence"
)

type weightStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewWeightStore creates a PostgreSQL producer-weight store. The upsert
// replaces the row atomically, so readers never see a torn value.
func NewWeightStore(db *sqlx.DB, timeout time.Duration) persistence.WeightStore {
	return &weightStore{db: db, timeout: timeout}
}

func (s *weightStore) Weight(ctx context.Context, producerID string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var weight float64
	err := s.db.GetContext(ctx, &weight,
		`SELECT weight FROM producer_weights WHERE producer_id = $1`, producerID)
	if errors.Is(err, sql.ErrNoRows) {
		return 1.0, nil
	}
	if err != nil {
		return 1.0, fmt.Errorf("select weight for %s: %w", producerID, err)
	}
	return weight, nil
}

func (s *weightStore) SetWeight(ctx context.Context, producerID string, weight float64) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO producer_weights (producer_id, weight, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (producer_id) DO UPDATE SET
			weight = EXCLUDED.weight,
			updated_at = EXCLUDED.updated_at`

	if _, err := s.db.ExecContext(ctx, query, producerID, weight); err != nil {
		return fmt.Errorf("upsert weight for %s: %w", producerID, err)
	}
	return nil
}

func (s *weightStore) All(ctx context.Context) (map[string]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows []struct {
		ProducerID string  `db:"producer_id"`
		Weight     float64 `db:"weight"`
	}
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT producer_id, weight FROM producer_weights ORDER BY producer_id`); err != nil {
		return nil, fmt.Errorf("select weights: %w", err)
	}

	out := make(map[string]float64, len(rows))
	for _, row := range rows {
		out[row.ProducerID] = row.Weight
	}
	return out, nil
}
