package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mossriver/alphacouncil/internal/domain"
	"github.com/mossriver/alphacouncil/internal/persistence"
)

type orderRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewOrderRepo creates a PostgreSQL order repository. Orders are stored as
// JSON payloads keyed by run id; the execution boundary owns any richer
// schema.
func NewOrderRepo(db *sqlx.DB, timeout time.Duration) persistence.OrderRepo {
	return &orderRepo{db: db, timeout: timeout}
}

func (r *orderRepo) Save(ctx context.Context, runID string, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `INSERT INTO orders (run_id, payload) VALUES ($1, $2)`
	for _, order := range orders {
		payload, err := json.Marshal(order)
		if err != nil {
			return fmt.Errorf("marshal order %s: %w", order.Symbol, err)
		}
		if _, err := r.db.ExecContext(ctx, query, runID, payload); err != nil {
			return fmt.Errorf("insert order %s: %w", order.Symbol, err)
		}
	}
	return nil
}
