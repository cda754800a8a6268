package producer

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mossriver/alphacouncil/internal/domain"
	"github.com/mossriver/alphacouncil/internal/infrastructure/market"
)

// Position is one holding in the portfolio snapshot.
type Position struct {
	Symbol        string  `yaml:"symbol" json:"symbol"`
	AllocationPct float64 `yaml:"allocation_pct" json:"allocation_pct"`
}

// PortfolioSnapshot is the current book the risk producer assesses.
type PortfolioSnapshot struct {
	Positions   []Position `yaml:"positions" json:"positions"`
	CashPct     float64    `yaml:"cash_pct" json:"cash_pct"`
	DrawdownPct float64    `yaml:"drawdown_pct" json:"drawdown_pct"`
	Leverage    float64    `yaml:"leverage" json:"leverage"`
}

// RiskLimits are the configured tolerances risk scores are measured
// against.
type RiskLimits struct {
	MaxPositionPct float64 `yaml:"max_position_pct" json:"max_position_pct"`
	MaxDrawdownPct float64 `yaml:"max_drawdown_pct" json:"max_drawdown_pct"`
	MaxLeverage    float64 `yaml:"max_leverage" json:"max_leverage"`
}

// DefaultRiskLimits mirrors the conventional settings.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{MaxPositionPct: 25.0, MaxDrawdownPct: 10.0, MaxLeverage: 2.0}
}

// Risk is the risk-gate producer. Its forecast carries portfolio_risk and
// position_risks specific predictions, which the orchestrator's veto rule
// reads.
type Risk struct {
	source    market.Source
	benchmark string
	limits    RiskLimits
	portfolio PortfolioSnapshot
}

// NewRisk builds the risk producer over the given book and limits.
func NewRisk(source market.Source, benchmark string, limits RiskLimits, portfolio PortfolioSnapshot) *Risk {
	return &Risk{source: source, benchmark: benchmark, limits: limits, portfolio: portfolio}
}

func (r *Risk) ID() string { return "risk" }

func (r *Risk) Produce(ctx context.Context) (*domain.Forecast, error) {
	// Volatility context is best-effort; the limit checks stand alone.
	var annVol float64
	if points, err := r.source.DailyReturns(ctx, r.benchmark, 30); err == nil {
		annVol = market.AnnualizedVol(market.DailyVol(points))
	}

	positionRisks := make(map[string]interface{}, len(r.portfolio.Positions))
	var maxPositionRisk float64
	for _, pos := range r.portfolio.Positions {
		risk := r.positionRisk(pos, annVol)
		positionRisks[pos.Symbol] = risk
		maxPositionRisk = math.Max(maxPositionRisk, risk)
	}

	portfolioRisk := r.portfolioRisk(annVol, maxPositionRisk)

	outlook := domain.OutlookNeutral
	confidence := 0.5
	switch {
	case portfolioRisk > 0.7:
		outlook = domain.OutlookBearish
		confidence = portfolioRisk
	case portfolioRisk < 0.3:
		outlook = domain.OutlookBullish
		confidence = 1 - portfolioRisk
	}

	return &domain.Forecast{
		ProducerID: r.ID(),
		Timestamp:  time.Now().UTC(),
		Outlook:    outlook,
		Confidence: confidence,
		Timeframe:  domain.TimeframeWeek,
		SpecificPredictions: map[string]interface{}{
			"portfolio_risk": portfolioRisk,
			"position_risks": positionRisks,
			"annualized_vol": annVol,
		},
		Reasoning: fmt.Sprintf(
			"Portfolio risk %.2f against drawdown %.1f%% (limit %.1f%%), leverage %.2fx (limit %.2fx), annualized vol %.1f%%",
			portfolioRisk, r.portfolio.DrawdownPct, r.limits.MaxDrawdownPct,
			r.portfolio.Leverage, r.limits.MaxLeverage, annVol*100),
		DataSources: []string{"portfolio snapshot", "daily candles"},
	}, nil
}

// positionRisk scores one holding by concentration against the position
// limit, scaled up in volatile tape.
func (r *Risk) positionRisk(pos Position, annVol float64) float64 {
	concentration := 0.0
	if r.limits.MaxPositionPct > 0 {
		concentration = pos.AllocationPct / r.limits.MaxPositionPct
	}
	volFactor := 1.0
	if annVol > 0.20 {
		volFactor = 1.0 + (annVol-0.20)*2
	}
	return clamp01(concentration * 0.8 * volFactor)
}

// portfolioRisk blends drawdown utilization, leverage utilization,
// concentration and volatility into one [0,1] score.
func (r *Risk) portfolioRisk(annVol, maxPositionRisk float64) float64 {
	var drawdownUtil, leverageUtil float64
	if r.limits.MaxDrawdownPct > 0 {
		drawdownUtil = r.portfolio.DrawdownPct / r.limits.MaxDrawdownPct
	}
	if r.limits.MaxLeverage > 0 {
		leverageUtil = r.portfolio.Leverage / r.limits.MaxLeverage
	}
	volScore := clamp01(annVol / 0.40)

	score := drawdownUtil*0.35 + leverageUtil*0.25 + maxPositionRisk*0.25 + volScore*0.15
	return clamp01(score)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
