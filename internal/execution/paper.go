// Package execution is the order boundary. The paper broker fills orders
// against live quotes with exact decimal cash accounting; nothing here
// touches a real market.
package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mossriver/alphacouncil/internal/domain"
	"github.com/mossriver/alphacouncil/internal/infrastructure/market"
)

// Broker executes sized orders.
type Broker interface {
	Execute(ctx context.Context, order domain.Order) (*domain.ExecutionResult, error)
}

// PaperBroker simulates fills at the quoted or limit price. Cash and
// commissions are tracked in decimals so the book always reconciles.
type PaperBroker struct {
	source     market.Source
	commission decimal.Decimal

	mu     sync.Mutex
	cash   decimal.Decimal
	shares map[string]int
}

// NewPaperBroker starts a paper book with startingCash dollars and a flat
// per-order commission.
func NewPaperBroker(source market.Source, startingCash, commission float64) *PaperBroker {
	return &PaperBroker{
		source:     source,
		commission: decimal.NewFromFloat(commission),
		cash:       decimal.NewFromFloat(startingCash),
		shares:     make(map[string]int),
	}
}

// Execute fills the order in full. Orders flagged for approval are
// rejected here; a human releases those through a different path.
func (b *PaperBroker) Execute(ctx context.Context, order domain.Order) (*domain.ExecutionResult, error) {
	result := &domain.ExecutionResult{
		OrderID:    "PAPER-" + uuid.NewString()[:8],
		Symbol:     order.Symbol,
		Action:     order.Action,
		Quantity:   order.Quantity,
		ExecutedAt: time.Now().UTC(),
	}

	if order.RequiresApproval {
		result.Status = "rejected"
		result.Err = "requires approval: " + order.ApprovalReason
		return result, nil
	}
	if order.Quantity <= 0 {
		result.Status = "rejected"
		result.Err = "non-positive quantity"
		return result, nil
	}

	price, err := b.fillPrice(ctx, order)
	if err != nil {
		result.Status = "rejected"
		result.Err = err.Error()
		return result, nil
	}

	fillPrice := decimal.NewFromFloat(price)
	notional := fillPrice.Mul(decimal.NewFromInt(int64(order.Quantity)))

	b.mu.Lock()
	defer b.mu.Unlock()

	switch order.Action {
	case domain.ActionBuy:
		cost := notional.Add(b.commission)
		if b.cash.LessThan(cost) {
			result.Status = "rejected"
			result.Err = fmt.Sprintf("insufficient cash: need %s, have %s", cost.StringFixed(2), b.cash.StringFixed(2))
			return result, nil
		}
		b.cash = b.cash.Sub(cost)
		b.shares[order.Symbol] += order.Quantity
	case domain.ActionSell:
		if b.shares[order.Symbol] < order.Quantity {
			result.Status = "rejected"
			result.Err = fmt.Sprintf("insufficient shares: have %d, selling %d", b.shares[order.Symbol], order.Quantity)
			return result, nil
		}
		b.cash = b.cash.Add(notional).Sub(b.commission)
		b.shares[order.Symbol] -= order.Quantity
	default:
		result.Status = "rejected"
		result.Err = fmt.Sprintf("unsupported action %q", order.Action)
		return result, nil
	}

	result.Status = "filled"
	result.FilledQuantity = order.Quantity
	avgPrice, _ := fillPrice.Float64()
	result.AvgFillPrice = avgPrice
	result.Commission, _ = b.commission.Float64()

	log.Info().Str("component", "execution").
		Str("order_id", result.OrderID).
		Str("symbol", order.Symbol).
		Str("action", string(order.Action)).
		Int("quantity", order.Quantity).
		Float64("price", avgPrice).
		Str("cash", b.cash.StringFixed(2)).
		Msg("Paper order filled")

	return result, nil
}

// fillPrice uses the limit price when set, otherwise the live quote.
func (b *PaperBroker) fillPrice(ctx context.Context, order domain.Order) (float64, error) {
	if order.OrderType == domain.OrderLimit && order.LimitPrice > 0 {
		return order.LimitPrice, nil
	}
	quote, err := b.source.Quote(ctx, order.Symbol)
	if err != nil {
		return 0, fmt.Errorf("quote %s: %w", order.Symbol, err)
	}
	if quote.Price <= 0 {
		return 0, fmt.Errorf("quote %s: non-positive price", order.Symbol)
	}
	return quote.Price, nil
}

// Cash returns the remaining cash balance.
func (b *PaperBroker) Cash() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	cash, _ := b.cash.Float64()
	return cash
}

// Position returns the held share count for symbol.
func (b *PaperBroker) Position(symbol string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shares[symbol]
}
