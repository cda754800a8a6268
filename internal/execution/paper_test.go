package execution

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossriver/alphacouncil/internal/domain"
	"github.com/mossriver/alphacouncil/internal/infrastructure/market"
)

type fakeSource struct {
	price float64
	err   error
}

func (f *fakeSource) Quote(ctx context.Context, symbol string) (market.Quote, error) {
	if f.err != nil {
		return market.Quote{}, f.err
	}
	return market.Quote{Symbol: symbol, Price: f.price, Timestamp: time.Now()}, nil
}

func (f *fakeSource) DailyReturns(ctx context.Context, symbol string, days int) ([]market.ReturnPoint, error) {
	return nil, nil
}

func buyOrder(qty int) domain.Order {
	return domain.Order{
		Symbol:    "SPY",
		Action:    domain.ActionBuy,
		Quantity:  qty,
		OrderType: domain.OrderMarket,
	}
}

func TestPaperFillAtQuote(t *testing.T) {
	broker := NewPaperBroker(&fakeSource{price: 500}, 100000, 1)

	result, err := broker.Execute(context.Background(), buyOrder(10))
	require.NoError(t, err)

	assert.Equal(t, "filled", result.Status)
	assert.Equal(t, 10, result.FilledQuantity)
	assert.Equal(t, 500.0, result.AvgFillPrice)
	assert.True(t, strings.HasPrefix(result.OrderID, "PAPER-"))
	assert.InDelta(t, 100000-5001, broker.Cash(), 1e-9)
	assert.Equal(t, 10, broker.Position("SPY"))
}

func TestPaperFillAtLimit(t *testing.T) {
	broker := NewPaperBroker(&fakeSource{price: 500}, 100000, 1)

	order := buyOrder(10)
	order.OrderType = domain.OrderLimit
	order.LimitPrice = 499

	result, err := broker.Execute(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, 499.0, result.AvgFillPrice)
}

func TestPaperRejectsApprovalRequired(t *testing.T) {
	broker := NewPaperBroker(&fakeSource{price: 500}, 100000, 1)

	order := buyOrder(10)
	order.RequiresApproval = true
	order.ApprovalReason = "extreme signal strong_buy"

	result, err := broker.Execute(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, "rejected", result.Status)
	assert.Contains(t, result.Err, "requires approval")
	assert.Equal(t, 100000.0, broker.Cash())
}

func TestPaperRejectsInsufficientCash(t *testing.T) {
	broker := NewPaperBroker(&fakeSource{price: 500}, 1000, 1)

	result, err := broker.Execute(context.Background(), buyOrder(10))
	require.NoError(t, err)
	assert.Equal(t, "rejected", result.Status)
	assert.Contains(t, result.Err, "insufficient cash")
}

func TestPaperRejectsOversell(t *testing.T) {
	broker := NewPaperBroker(&fakeSource{price: 500}, 100000, 1)

	order := buyOrder(5)
	_, err := broker.Execute(context.Background(), order)
	require.NoError(t, err)

	sell := domain.Order{Symbol: "SPY", Action: domain.ActionSell, Quantity: 10, OrderType: domain.OrderMarket}
	result, err := broker.Execute(context.Background(), sell)
	require.NoError(t, err)
	assert.Equal(t, "rejected", result.Status)
	assert.Contains(t, result.Err, "insufficient shares")
}

func TestPaperSellRoundTrip(t *testing.T) {
	broker := NewPaperBroker(&fakeSource{price: 500}, 100000, 1)

	_, err := broker.Execute(context.Background(), buyOrder(10))
	require.NoError(t, err)

	sell := domain.Order{Symbol: "SPY", Action: domain.ActionSell, Quantity: 10, OrderType: domain.OrderMarket}
	result, err := broker.Execute(context.Background(), sell)
	require.NoError(t, err)

	assert.Equal(t, "filled", result.Status)
	assert.Equal(t, 0, broker.Position("SPY"))
	// Round trip costs exactly two commissions.
	assert.InDelta(t, 100000-2, broker.Cash(), 1e-9)
}

func TestPaperRejectsOnQuoteFailure(t *testing.T) {
	broker := NewPaperBroker(&fakeSource{err: errors.New("feed down")}, 100000, 1)

	result, err := broker.Execute(context.Background(), buyOrder(10))
	require.NoError(t, err)
	assert.Equal(t, "rejected", result.Status)
}
