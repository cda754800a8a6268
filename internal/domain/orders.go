package domain

import "time"

// TradeAction is what the order does with the symbol.
type TradeAction string

const (
	ActionBuy   TradeAction = "buy"
	ActionSell  TradeAction = "sell"
	ActionHold  TradeAction = "hold"
	ActionShort TradeAction = "short"
	ActionCover TradeAction = "cover"
)

// OrderType selects the execution style.
type OrderType string

const (
	OrderMarket    OrderType = "market"
	OrderLimit     OrderType = "limit"
	OrderStop      OrderType = "stop"
	OrderStopLimit OrderType = "stop_limit"
)

// SignalStrength tiers a directional call by confidence.
type SignalStrength string

const (
	StrengthStrongBuy  SignalStrength = "strong_buy"
	StrengthBuy        SignalStrength = "buy"
	StrengthWeakBuy    SignalStrength = "weak_buy"
	StrengthNeutral    SignalStrength = "neutral"
	StrengthWeakSell   SignalStrength = "weak_sell"
	StrengthSell       SignalStrength = "sell"
	StrengthStrongSell SignalStrength = "strong_sell"
)

// StrengthFor maps an outlook plus confidence to a signal tier.
func StrengthFor(outlook Outlook, confidence float64) SignalStrength {
	switch outlook {
	case OutlookBullish:
		switch {
		case confidence >= 0.8:
			return StrengthStrongBuy
		case confidence >= 0.6:
			return StrengthBuy
		default:
			return StrengthWeakBuy
		}
	case OutlookBearish:
		switch {
		case confidence >= 0.8:
			return StrengthStrongSell
		case confidence >= 0.6:
			return StrengthSell
		default:
			return StrengthWeakSell
		}
	}
	return StrengthNeutral
}

// Extreme reports whether the tier sits at the strongest buy/sell end.
func (s SignalStrength) Extreme() bool {
	return s == StrengthStrongBuy || s == StrengthStrongSell
}

// KellyPosition is the sizing result for one symbol. Recomputed every
// sizing pass, never persisted as mutable state.
type KellyPosition struct {
	Symbol              string  `json:"symbol"`
	KellyFraction       float64 `json:"kelly_fraction"`       // unconstrained optimum in [0,1]
	RecommendedFraction float64 `json:"recommended_fraction"` // after safety scaling and cap
	PositionSizeDollars float64 `json:"position_size_dollars"`
	PositionSizeShares  int     `json:"position_size_shares"`
	WinProbability      float64 `json:"win_probability"`
	WinLossRatio        float64 `json:"win_loss_ratio"`
	Edge                float64 `json:"edge"` // expected value per dollar risked
}

// Order is a sized, risk-capped order handed to the execution boundary.
// RequiresApproval is surfaced here, enforced externally.
type Order struct {
	Symbol           string         `json:"symbol"`
	Action           TradeAction    `json:"action"`
	Quantity         int            `json:"quantity"`
	OrderType        OrderType      `json:"order_type"`
	LimitPrice       float64        `json:"limit_price,omitempty"`
	StopPrice        float64        `json:"stop_price,omitempty"`
	TargetPrice      float64        `json:"target_price,omitempty"`
	TimeInForce      string         `json:"time_in_force"`
	Confidence       float64        `json:"confidence"`
	Strength         SignalStrength `json:"strength"`
	KellySizing      KellyPosition  `json:"kelly_sizing"`
	RequiresApproval bool           `json:"requires_approval"`
	ApprovalReason   string         `json:"approval_reason,omitempty"`
	Reasoning        string         `json:"reasoning,omitempty"`
}

// ExecutionResult is returned by the execution boundary after a fill
// attempt.
type ExecutionResult struct {
	OrderID        string      `json:"order_id"`
	Symbol         string      `json:"symbol"`
	Action         TradeAction `json:"action"`
	Quantity       int         `json:"quantity"`
	FilledQuantity int         `json:"filled_quantity"`
	AvgFillPrice   float64     `json:"avg_fill_price"`
	Status         string      `json:"status"` // filled, partial, rejected, pending
	ExecutedAt     time.Time   `json:"executed_at"`
	Commission     float64     `json:"commission"`
	Err            string      `json:"error,omitempty"`
}
