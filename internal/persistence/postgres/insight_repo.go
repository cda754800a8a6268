package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mossriver/alphacouncil/internal/domain"
	"github.com/mossriver/alphacouncil/internal/persistence"
)

type insightRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewInsightRepo creates a PostgreSQL insight repository.
func NewInsightRepo(db *sqlx.DB, timeout time.Duration) persistence.InsightRepo {
	return &insightRepo{db: db, timeout: timeout}
}

func (r *insightRepo) Save(ctx context.Context, insight *domain.AggregatedInsight) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	outputs, err := json.Marshal(insight.AgentOutputs)
	if err != nil {
		return fmt.Errorf("marshal agent outputs: %w", err)
	}
	conflicts, err := json.Marshal(insight.Conflicts)
	if err != nil {
		return fmt.Errorf("marshal conflicts: %w", err)
	}
	recommendations, err := json.Marshal(insight.FinalRecommendations)
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}

	query := `
		INSERT INTO insights
		(ts, overall_outlook, confidence, agent_outputs, conflicts,
		 resolution_reasoning, final_recommendations, vetoed, veto_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.ExecContext(ctx, query,
		insight.Timestamp, insight.OverallOutlook, insight.Confidence,
		outputs, conflicts, insight.ResolutionReasoning, recommendations,
		insight.Vetoed, nullString(insight.VetoReason))
	if err != nil {
		return fmt.Errorf("insert insight: %w", err)
	}
	return nil
}

type insightRow struct {
	TS                   time.Time      `db:"ts"`
	OverallOutlook       string         `db:"overall_outlook"`
	Confidence           float64        `db:"confidence"`
	AgentOutputs         []byte         `db:"agent_outputs"`
	Conflicts            []byte         `db:"conflicts"`
	ResolutionReasoning  string         `db:"resolution_reasoning"`
	FinalRecommendations []byte         `db:"final_recommendations"`
	Vetoed               bool           `db:"vetoed"`
	VetoReason           sql.NullString `db:"veto_reason"`
}

func (r *insightRepo) Latest(ctx context.Context) (*domain.AggregatedInsight, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ts, overall_outlook, confidence, agent_outputs, conflicts,
		       resolution_reasoning, final_recommendations, vetoed, veto_reason
		FROM insights
		ORDER BY ts DESC
		LIMIT 1`

	var row insightRow
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select latest insight: %w", err)
	}

	insight := &domain.AggregatedInsight{
		Timestamp:           row.TS,
		OverallOutlook:      domain.Outlook(row.OverallOutlook),
		Confidence:          row.Confidence,
		ResolutionReasoning: row.ResolutionReasoning,
		Vetoed:              row.Vetoed,
		VetoReason:          row.VetoReason.String,
	}
	if len(row.AgentOutputs) > 0 {
		_ = json.Unmarshal(row.AgentOutputs, &insight.AgentOutputs)
	}
	if len(row.Conflicts) > 0 {
		_ = json.Unmarshal(row.Conflicts, &insight.Conflicts)
	}
	if len(row.FinalRecommendations) > 0 {
		_ = json.Unmarshal(row.FinalRecommendations, &insight.FinalRecommendations)
	}
	return insight, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
