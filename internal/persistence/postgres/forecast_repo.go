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

type forecastRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewForecastRepo creates a PostgreSQL forecast repository.
func NewForecastRepo(db *sqlx.DB, timeout time.Duration) persistence.ForecastRepo {
	return &forecastRepo{db: db, timeout: timeout}
}

func (r *forecastRepo) Save(ctx context.Context, f *domain.Forecast) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	predictions, err := json.Marshal(f.SpecificPredictions)
	if err != nil {
		return 0, fmt.Errorf("marshal specific predictions: %w", err)
	}
	keyFactors, err := json.Marshal(f.KeyFactors)
	if err != nil {
		return 0, fmt.Errorf("marshal key factors: %w", err)
	}
	uncertainties, err := json.Marshal(f.Uncertainties)
	if err != nil {
		return 0, fmt.Errorf("marshal uncertainties: %w", err)
	}
	sources, err := json.Marshal(f.DataSources)
	if err != nil {
		return 0, fmt.Errorf("marshal data sources: %w", err)
	}

	query := `
		INSERT INTO forecasts
		(producer_id, ts, outlook, confidence, timeframe, specific_predictions,
		 reasoning, key_factors, uncertainties, data_sources)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	var id int64
	err = r.db.QueryRowxContext(ctx, query,
		f.ProducerID, f.Timestamp, f.Outlook, f.Confidence, f.Timeframe,
		predictions, f.Reasoning, keyFactors, uncertainties, sources).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert forecast: %w", err)
	}
	return id, nil
}

type forecastRow struct {
	ID                  int64          `db:"id"`
	ProducerID          string         `db:"producer_id"`
	TS                  time.Time      `db:"ts"`
	Outlook             string         `db:"outlook"`
	Confidence          float64        `db:"confidence"`
	Timeframe           string         `db:"timeframe"`
	SpecificPredictions []byte         `db:"specific_predictions"`
	Reasoning           string         `db:"reasoning"`
	KeyFactors          []byte         `db:"key_factors"`
	Uncertainties       []byte         `db:"uncertainties"`
	DataSources         []byte         `db:"data_sources"`
}

func (r *forecastRepo) ListSince(ctx context.Context, since time.Time) ([]persistence.StoredForecast, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, producer_id, ts, outlook, confidence, timeframe,
		       specific_predictions, reasoning, key_factors, uncertainties, data_sources
		FROM forecasts
		WHERE ts >= $1
		ORDER BY ts DESC`

	var rows []forecastRow
	if err := r.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("select forecasts: %w", err)
	}

	out := make([]persistence.StoredForecast, 0, len(rows))
	for _, row := range rows {
		f := persistence.StoredForecast{
			ID: row.ID,
			Forecast: domain.Forecast{
				ProducerID: row.ProducerID,
				Timestamp:  row.TS,
				Outlook:    domain.Outlook(row.Outlook),
				Confidence: row.Confidence,
				Timeframe:  domain.Timeframe(row.Timeframe),
				Reasoning:  row.Reasoning,
			},
		}
		if len(row.SpecificPredictions) > 0 {
			_ = json.Unmarshal(row.SpecificPredictions, &f.SpecificPredictions)
		}
		if len(row.KeyFactors) > 0 {
			_ = json.Unmarshal(row.KeyFactors, &f.KeyFactors)
		}
		if len(row.Uncertainties) > 0 {
			_ = json.Unmarshal(row.Uncertainties, &f.Uncertainties)
		}
		if len(row.DataSources) > 0 {
			_ = json.Unmarshal(row.DataSources, &f.DataSources)
		}
		out = append(out, f)
	}
	return out, nil
}
