package trader

import (
	"context"
	"testing"

	"pibot/market"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanEntry(t *testing.T) {
	notional, err := PlanEntry(1000, 0.85, 10)
	require.NoError(t, err)
	assert.Equal(t, 850.0, notional)

	_, err = PlanEntry(0, 0.85, 10)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = PlanEntry(100, 1.5, 10)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = PlanEntry(11, 0.85, 10)
	assert.ErrorIs(t, err, ErrBelowMinimumSize)

	notional, err = PlanEntry(20, 0.5, 10)
	require.NoError(t, err, "notional equal to the floor is allowed")
	assert.Equal(t, 10.0, notional)
}

func TestPlanExit(t *testing.T) {
	amount, err := PlanExit(8.5, 103, 10)
	require.NoError(t, err)
	assert.Equal(t, 8.5, amount)

	_, err = PlanExit(0, 103, 10)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = PlanExit(0.05, 103, 10)
	assert.ErrorIs(t, err, ErrBelowMinimumSize)
}

func TestExecutorBuySizing(t *testing.T) {
	ex := newFakeExchange()
	ex.price = 2
	exec := NewExecutor(ex, piUSDT, zerolog.Nop())

	fill, err := exec.Buy(context.Background(), 850, 2)
	require.NoError(t, err)
	require.Len(t, ex.buys, 1)
	assert.Equal(t, 425.0, ex.buys[0])
	assert.Equal(t, 425.0, fill.BaseAmount)
	assert.Equal(t, 850.0, fill.QuoteAmount)
	assert.Equal(t, "buy-1", fill.OrderID)
}

func TestExecutorWrapsFailures(t *testing.T) {
	ex := newFakeExchange()
	ex.orderErr = errExchangeDown
	ex.balanceErr = errExchangeDown
	exec := NewExecutor(ex, piUSDT, zerolog.Nop())

	_, err := exec.Buy(context.Background(), 100, 1)
	assert.ErrorIs(t, err, ErrExecution)
	_, err = exec.Sell(context.Background(), 100, 1)
	assert.ErrorIs(t, err, ErrExecution)
	_, _, err = exec.Balances(context.Background())
	assert.ErrorIs(t, err, ErrDataUnavailable)
	assert.ErrorIs(t, err, errExchangeDown)
}

func TestFillFallsBackToDecisionPrice(t *testing.T) {
	fill := fillFromOrder(nil, 4, 2.5)
	assert.Equal(t, Fill{BaseAmount: 4, QuoteAmount: 10, AvgPrice: 2.5}, fill)

	fill = fillFromOrder(&market.Order{ID: "1"}, 4, 2.5)
	assert.Equal(t, Fill{OrderID: "1", BaseAmount: 4, QuoteAmount: 10, AvgPrice: 2.5}, fill)

	fill = fillFromOrder(&market.Order{ID: "2", Filled: 3.9, Cost: 9.8, Average: 2.51}, 4, 2.5)
	assert.Equal(t, Fill{OrderID: "2", BaseAmount: 3.9, QuoteAmount: 9.8, AvgPrice: 2.51}, fill)
}
