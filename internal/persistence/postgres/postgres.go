// Package postgres implements the persistence repositories on PostgreSQL
// via sqlx.
package postgres

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// Open connects to PostgreSQL and verifies the connection.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate creates the tables the repositories need.
func Migrate(db *sqlx.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS forecasts (
			id BIGSERIAL PRIMARY KEY,
			producer_id TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			outlook TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			timeframe TEXT NOT NULL,
			specific_predictions JSONB,
			reasoning TEXT NOT NULL DEFAULT '',
			key_factors JSONB,
			uncertainties JSONB,
			data_sources JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_forecasts_producer_ts ON forecasts (producer_id, ts)`,
		`CREATE TABLE IF NOT EXISTS insights (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			overall_outlook TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			agent_outputs JSONB,
			conflicts JSONB,
			resolution_reasoning TEXT NOT NULL DEFAULT '',
			final_recommendations JSONB,
			vetoed BOOLEAN NOT NULL DEFAULT FALSE,
			veto_reason TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL DEFAULT now(),
			payload JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS prediction_outcomes (
			id BIGSERIAL PRIMARY KEY,
			prediction_id BIGINT NOT NULL,
			producer_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			predicted_outlook TEXT NOT NULL,
			predicted_confidence DOUBLE PRECISION NOT NULL,
			prediction_date TIMESTAMPTZ NOT NULL,
			target_date TIMESTAMPTZ NOT NULL,
			actual_return DOUBLE PRECISION NOT NULL,
			actual_direction TEXT NOT NULL,
			was_correct BOOLEAN NOT NULL,
			attribution_score DOUBLE PRECISION NOT NULL,
			regime TEXT NOT NULL DEFAULT 'sideways',
			UNIQUE (prediction_id)
		)`,
		`CREATE TABLE IF NOT EXISTS producer_weights (
			producer_id TEXT PRIMARY KEY,
			weight DOUBLE PRECISION NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
