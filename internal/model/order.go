package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"autotrader/internal/types"
)

var (
	ErrInvalidTransition = errors.New("invalid order state transition")
	ErrInvalidFill       = errors.New("invalid fill quantity")
	ErrOverfill          = errors.New("fill exceeds requested quantity")
	ErrNotCancellable    = errors.New("order can no longer be cancelled")
)

// Order is a trading order. Status transitions are monotonic: PENDING may
// move to PARTIALLY_FILLED, FILLED, CANCELLED or REJECTED; PARTIALLY_FILLED
// only to PARTIALLY_FILLED or FILLED. FilledQuantity never decreases.
type Order struct {
	ID             string             `json:"order_id"`
	Symbol         string             `json:"symbol"`
	Side           types.OrderSide    `json:"side"`
	Type           types.OrderType    `json:"order_type"`
	Quantity       decimal.Decimal    `json:"quantity"`
	LimitPrice     *decimal.Decimal   `json:"limit_price,omitempty"`
	Status         types.OrderStatus  `json:"status"`
	FilledQuantity decimal.Decimal    `json:"filled_quantity"`
	AvgFillPrice   decimal.Decimal    `json:"average_fill_price"`
	RejectReason   types.RejectReason `json:"reject_reason,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	FilledAt       *time.Time         `json:"filled_at,omitempty"`
}

// Remaining is the quantity still open to be filled.
func (o Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// Fillable reports whether the order may still receive fills.
func (o Order) Fillable() bool {
	return o.Status == types.OrderStatusPending || o.Status == types.OrderStatusPartiallyFilled
}

// ApplyFill records a trade against the order: FilledQuantity grows, the
// average fill price is recomputed as the quantity-weighted mean across all
// fills, and the status moves to PARTIALLY_FILLED or FILLED. FilledAt is set
// only on the transition into FILLED.
func (o *Order) ApplyFill(qty, price decimal.Decimal, at time.Time) error {
	if !o.Fillable() {
		return ErrInvalidTransition
	}
	if qty.LessThanOrEqual(decimal.Zero) || price.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidFill
	}
	newFilled := o.FilledQuantity.Add(qty)
	if newFilled.GreaterThan(o.Quantity) {
		return ErrOverfill
	}
	notional := o.AvgFillPrice.Mul(o.FilledQuantity).Add(price.Mul(qty))
	o.AvgFillPrice = notional.Div(newFilled)
	o.FilledQuantity = newFilled
	if newFilled.Equal(o.Quantity) {
		o.Status = types.OrderStatusFilled
		t := at.UTC()
		o.FilledAt = &t
	} else {
		o.Status = types.OrderStatusPartiallyFilled
	}
	return nil
}

// Cancel moves a PENDING order to CANCELLED. Once any fill has committed the
// order can no longer be cancelled.
func (o *Order) Cancel() error {
	if o.Status == types.OrderStatusPartiallyFilled {
		return ErrNotCancellable
	}
	if o.Status != types.OrderStatusPending {
		return ErrInvalidTransition
	}
	o.Status = types.OrderStatusCancelled
	return nil
}

// Reject moves a PENDING order to REJECTED with the given reason. Rejection
// is terminal and never follows a fill.
func (o *Order) Reject(reason types.RejectReason) error {
	if o.Status != types.OrderStatusPending {
		return ErrInvalidTransition
	}
	o.Status = types.OrderStatusRejected
	o.RejectReason = reason
	return nil
}
