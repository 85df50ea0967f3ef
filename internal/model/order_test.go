package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func pendingOrder(qty string) Order {
	return Order{
		ID:        "01TESTORDER",
		Symbol:    "AAPL",
		Side:      types.OrderSideBuy,
		Type:      types.OrderTypeMarket,
		Quantity:  dec(qty),
		Status:    types.OrderStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

func TestApplyFillWeightedAverage(t *testing.T) {
	t.Parallel()

	ord := pendingOrder("50")
	now := time.Now().UTC()

	require.NoError(t, ord.ApplyFill(dec("20"), dec("100"), now))
	assert.Equal(t, types.OrderStatusPartiallyFilled, ord.Status)
	assert.True(t, ord.AvgFillPrice.Equal(dec("100")), "avg %s", ord.AvgFillPrice)
	assert.Nil(t, ord.FilledAt)

	require.NoError(t, ord.ApplyFill(dec("30"), dec("110"), now))
	assert.Equal(t, types.OrderStatusFilled, ord.Status)
	assert.True(t, ord.AvgFillPrice.Equal(dec("106")), "avg %s", ord.AvgFillPrice)
	assert.True(t, ord.Remaining().IsZero())
	require.NotNil(t, ord.FilledAt)
}

func TestApplyFillRejectsOverfill(t *testing.T) {
	t.Parallel()

	ord := pendingOrder("10")
	err := ord.ApplyFill(dec("11"), dec("100"), time.Now())
	assert.ErrorIs(t, err, ErrOverfill)
	assert.Equal(t, types.OrderStatusPending, ord.Status)
	assert.True(t, ord.FilledQuantity.IsZero())
}

func TestApplyFillRejectsBadInputs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		qty   string
		price string
	}{
		{name: "zero_quantity", qty: "0", price: "100"},
		{name: "negative_quantity", qty: "-1", price: "100"},
		{name: "zero_price", qty: "1", price: "0"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ord := pendingOrder("10")
			err := ord.ApplyFill(dec(tc.qty), dec(tc.price), time.Now())
			assert.ErrorIs(t, err, ErrInvalidFill)
		})
	}
}

func TestCancelOnlyFromPending(t *testing.T) {
	t.Parallel()

	ord := pendingOrder("10")
	require.NoError(t, ord.Cancel())
	assert.Equal(t, types.OrderStatusCancelled, ord.Status)

	partial := pendingOrder("10")
	require.NoError(t, partial.ApplyFill(dec("4"), dec("100"), time.Now()))
	assert.ErrorIs(t, partial.Cancel(), ErrNotCancellable)

	filled := pendingOrder("10")
	require.NoError(t, filled.ApplyFill(dec("10"), dec("100"), time.Now()))
	assert.ErrorIs(t, filled.Cancel(), ErrInvalidTransition)
}

func TestTerminalStatesAcceptNothing(t *testing.T) {
	t.Parallel()

	for _, status := range []types.OrderStatus{
		types.OrderStatusFilled,
		types.OrderStatusCancelled,
		types.OrderStatusRejected,
	} {
		ord := pendingOrder("10")
		ord.Status = status
		assert.ErrorIs(t, ord.ApplyFill(dec("1"), dec("100"), time.Now()), ErrInvalidTransition, string(status))
		assert.ErrorIs(t, ord.Reject(types.RejectReasonValidation), ErrInvalidTransition, string(status))
		assert.True(t, status.Terminal())
	}
}

func TestRejectRecordsReason(t *testing.T) {
	t.Parallel()

	ord := pendingOrder("10")
	require.NoError(t, ord.Reject(types.RejectReasonInsufficientFunds))
	assert.Equal(t, types.OrderStatusRejected, ord.Status)
	assert.Equal(t, types.RejectReasonInsufficientFunds, ord.RejectReason)
}
