// Package sizing converts an aggregated insight into risk-capped orders
// using fractional Kelly sizing.
package sizing

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/mossriver/alphacouncil/internal/domain"
	"github.com/mossriver/alphacouncil/internal/infrastructure/market"
	"github.com/mossriver/alphacouncil/internal/persistence"
)

// Fallback payoff assumptions used when no outcome history exists yet.
const (
	defaultExpectedWinPct  = 0.05
	defaultExpectedLossPct = 0.03
)

// Config holds the sizer knobs. Fractions are of portfolio value.
type Config struct {
	PortfolioValue       float64
	KellySafetyFraction  float64
	MaxPositionPct       float64
	ActionableConfidence float64
	ApprovalFraction     float64
	ApprovalMinEdge      float64
	PrimarySymbol        string
	SecondarySymbol      string
}

// Sizer sizes positions for the consensus view. Stateless; every call
// reads fresh win rates and quotes.
type Sizer struct {
	cfg      Config
	market   market.Source
	outcomes persistence.OutcomeRepo
}

// NewSizer builds a sizer. outcomes may be nil; win probability then falls
// back to the insight confidence.
func NewSizer(cfg Config, source market.Source, outcomes persistence.OutcomeRepo) *Sizer {
	return &Sizer{cfg: cfg, market: source, outcomes: outcomes}
}

// Kelly computes the fractional Kelly position for one symbol.
//
//	f* = (p·b − q) / b
//
// where p is the win probability, q = 1−p, and b the win/loss payoff
// ratio. The raw fraction is clamped to [0,1], scaled by the safety
// fraction, and capped at the position limit.
func (s *Sizer) Kelly(symbol string, winProb, expectedWinPct, expectedLossPct float64) domain.KellyPosition {
	if expectedWinPct <= 0 {
		expectedWinPct = defaultExpectedWinPct
	}
	if expectedLossPct <= 0 {
		expectedLossPct = defaultExpectedLossPct
	}

	b := 1.0
	if expectedLossPct > 0 {
		b = expectedWinPct / expectedLossPct
	}
	q := 1 - winProb

	raw := (winProb*b - q) / b
	raw = math.Max(0, math.Min(1, raw))

	recommended := math.Min(raw*s.cfg.KellySafetyFraction, s.cfg.MaxPositionPct)
	dollars := recommended * s.cfg.PortfolioValue

	return domain.KellyPosition{
		Symbol:              symbol,
		KellyFraction:       raw,
		RecommendedFraction: recommended,
		PositionSizeDollars: dollars,
		WinProbability:      winProb,
		WinLossRatio:        b,
		Edge:                winProb*expectedWinPct - q*expectedLossPct,
	}
}

// BuildOrders sizes orders for the insight. Vetoed, neutral, or
// below-threshold insights produce no orders.
func (s *Sizer) BuildOrders(ctx context.Context, insight *domain.AggregatedInsight) ([]domain.Order, error) {
	if insight == nil || insight.Vetoed {
		return nil, nil
	}
	if insight.OverallOutlook == domain.OutlookNeutral || insight.Confidence < s.cfg.ActionableConfidence {
		log.Debug().Str("component", "sizing").
			Str("outlook", string(insight.OverallOutlook)).
			Float64("confidence", insight.Confidence).
			Msg("Insight not actionable, no orders")
		return nil, nil
	}

	orders := make([]domain.Order, 0, 2)

	primary, err := s.buildOrder(ctx, s.cfg.PrimarySymbol, insight.OverallOutlook, insight.Confidence)
	if err != nil {
		return nil, err
	}
	if primary != nil {
		orders = append(orders, *primary)
	}

	// High-conviction runs extend to the secondary symbol at reduced
	// confidence.
	if s.cfg.SecondarySymbol != "" && insight.Confidence >= 0.7 {
		secondary, err := s.buildOrder(ctx, s.cfg.SecondarySymbol, insight.OverallOutlook, insight.Confidence*0.9)
		if err != nil {
			log.Warn().Err(err).Str("component", "sizing").
				Str("symbol", s.cfg.SecondarySymbol).
				Msg("Secondary order sizing failed")
		} else if secondary != nil {
			orders = append(orders, *secondary)
		}
	}

	return orders, nil
}

func (s *Sizer) buildOrder(ctx context.Context, symbol string, outlook domain.Outlook, confidence float64) (*domain.Order, error) {
	quote, err := s.market.Quote(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", symbol, err)
	}
	if quote.Price <= 0 {
		return nil, fmt.Errorf("quote %s: non-positive price %.2f", symbol, quote.Price)
	}

	kelly := s.Kelly(symbol, s.winProbability(ctx, symbol, confidence), defaultExpectedWinPct, defaultExpectedLossPct)
	shares := int(kelly.PositionSizeDollars / quote.Price)
	kelly.PositionSizeShares = shares
	if shares <= 0 {
		return nil, nil
	}

	action := domain.ActionBuy
	if outlook == domain.OutlookBearish {
		action = domain.ActionSell
	}
	strength := domain.StrengthFor(outlook, confidence)

	order := &domain.Order{
		Symbol:      symbol,
		Action:      action,
		Quantity:    shares,
		OrderType:   domain.OrderMarket,
		TimeInForce: "day",
		Confidence:  confidence,
		Strength:    strength,
		KellySizing: kelly,
		Reasoning: fmt.Sprintf("%s %s at %.1f%% confidence, %.1f%% of portfolio",
			strength, symbol, confidence*100, kelly.RecommendedFraction*100),
	}

	// Below high conviction, work the entry with a limit instead of
	// crossing the spread.
	if confidence < 0.8 {
		order.OrderType = domain.OrderLimit
		if action == domain.ActionBuy {
			order.LimitPrice = round2(quote.Price * 0.998)
		} else {
			order.LimitPrice = round2(quote.Price * 1.002)
		}
	}

	s.setTargets(ctx, order, quote.Price, action)
	s.flagApproval(order, kelly, strength)

	return order, nil
}

// setTargets derives target and stop prices from recent volatility. The
// target spans a week of expected movement, the stop two days.
func (s *Sizer) setTargets(ctx context.Context, order *domain.Order, price float64, action domain.TradeAction) {
	dailyVol := 0.01
	if points, err := s.market.DailyReturns(ctx, order.Symbol, 30); err == nil {
		if v := market.DailyVol(points); v > 0 {
			dailyVol = v
		}
	}

	targetMove := dailyVol * math.Sqrt(5) * 2.0
	stopMove := dailyVol * math.Sqrt(2) * 2.0

	if action == domain.ActionBuy {
		order.TargetPrice = round2(price * (1 + targetMove))
		order.StopPrice = round2(price * (1 - stopMove))
	} else {
		order.TargetPrice = round2(price * (1 - targetMove))
		order.StopPrice = round2(price * (1 + stopMove))
	}
}

// flagApproval marks orders a human must sign off on: oversized fractions,
// thin edges, or extreme signals.
func (s *Sizer) flagApproval(order *domain.Order, kelly domain.KellyPosition, strength domain.SignalStrength) {
	switch {
	case kelly.RecommendedFraction > s.cfg.ApprovalFraction:
		order.RequiresApproval = true
		order.ApprovalReason = fmt.Sprintf("position %.1f%% of portfolio exceeds %.1f%% auto-approve limit",
			kelly.RecommendedFraction*100, s.cfg.ApprovalFraction*100)
	case kelly.Edge < s.cfg.ApprovalMinEdge:
		order.RequiresApproval = true
		order.ApprovalReason = fmt.Sprintf("edge %.3f below %.3f minimum", kelly.Edge, s.cfg.ApprovalMinEdge)
	case strength.Extreme():
		order.RequiresApproval = true
		order.ApprovalReason = fmt.Sprintf("extreme signal %s", strength)
	}
}

// winProbability prefers the realized win rate for the symbol and falls
// back to the consensus confidence when history is thin.
func (s *Sizer) winProbability(ctx context.Context, symbol string, confidence float64) float64 {
	if s.outcomes == nil {
		return confidence
	}
	rate, ok, err := s.outcomes.WinRate(ctx, symbol)
	if err != nil {
		log.Warn().Err(err).Str("component", "sizing").
			Str("symbol", symbol).
			Msg("Win rate lookup failed, using confidence")
		return confidence
	}
	if !ok {
		return confidence
	}
	return rate
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
