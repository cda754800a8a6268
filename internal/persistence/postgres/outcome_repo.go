package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mossriver/alphacouncil/internal/domain"
	"github.com/mossriver/alphacouncil/internal/persistence"
)

type outcomeRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewOutcomeRepo creates a PostgreSQL outcome repository.
func NewOutcomeRepo(db *sqlx.DB, timeout time.Duration) persistence.OutcomeRepo {
	return &outcomeRepo{db: db, timeout: timeout}
}

func (r *outcomeRepo) Save(ctx context.Context, outcomes []domain.PredictionOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO prediction_outcomes
		(prediction_id, producer_id, symbol, predicted_outlook, predicted_confidence,
		 prediction_date, target_date, actual_return, actual_direction,
		 was_correct, attribution_score, regime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (prediction_id) DO NOTHING`

	for _, o := range outcomes {
		_, err := r.db.ExecContext(ctx, query,
			o.PredictionID, o.ProducerID, o.Symbol, o.PredictedOutlook,
			o.PredictedConfidence, o.PredictionDate, o.TargetDate,
			o.ActualReturn, o.ActualDirection, o.WasCorrect,
			o.AttributionScore, o.Regime)
		if err != nil {
			return fmt.Errorf("insert outcome for prediction %d: %w", o.PredictionID, err)
		}
	}
	return nil
}

func (r *outcomeRepo) WinRate(ctx context.Context, symbol string) (float64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE was_correct) AS correct
		FROM prediction_outcomes
		WHERE symbol = $1`

	var row struct {
		Total   int `db:"total"`
		Correct int `db:"correct"`
	}
	if err := r.db.GetContext(ctx, &row, query, symbol); err != nil {
		return 0, false, fmt.Errorf("select win rate for %s: %w", symbol, err)
	}
	if row.Total == 0 {
		return 0, false, nil
	}
	return float64(row.Correct) / float64(row.Total), true, nil
}
