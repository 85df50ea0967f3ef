package risk

import (
	"errors"

	"github.com/shopspring/decimal"

	"autotrader/internal/model"
	"autotrader/internal/types"
)

var (
	ErrInvalidOrder          = errors.New("invalid order")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientPosition  = errors.New("insufficient position")
	ErrConcentrationExceeded = errors.New("concentration limit exceeded")
)

// Reason maps an admission error to the reject reason recorded on the order.
func Reason(err error) types.RejectReason {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return types.RejectReasonInsufficientFunds
	case errors.Is(err, ErrInsufficientPosition):
		return types.RejectReasonInsufficientPosition
	case errors.Is(err, ErrConcentrationExceeded):
		return types.RejectReasonConcentrationExceeded
	case err != nil:
		return types.RejectReasonValidation
	default:
		return types.RejectReasonNone
	}
}

// Snapshot is a consistent view of the ledger taken for admission control.
// Admission against a snapshot is advisory: concurrent orders may consume the
// same funds before commit, so the accountant re-validates at apply time.
type Snapshot struct {
	Account   model.Account
	Positions []model.Position
}

// Position returns the snapshot's position for a symbol, if any.
func (s Snapshot) Position(symbol string) (model.Position, bool) {
	for _, p := range s.Positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return model.Position{}, false
}

// Gate performs pre-trade admission control. It holds configuration only and
// never mutates ledger state.
type Gate struct {
	maxPositionFraction decimal.Decimal
}

func NewGate(maxPositionFraction decimal.Decimal) Gate {
	return Gate{maxPositionFraction: maxPositionFraction}
}

// Admit checks a proposed order against a ledger snapshot, short-circuiting
// on the first failure. referencePrice is the limit price for LIMIT orders
// and the last known quote otherwise.
func (g Gate) Admit(ord model.Order, referencePrice decimal.Decimal, snap Snapshot) error {
	if ord.Quantity.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidOrder
	}
	if ord.Type == types.OrderTypeLimit && (ord.LimitPrice == nil || ord.LimitPrice.LessThanOrEqual(decimal.Zero)) {
		return ErrInvalidOrder
	}
	if referencePrice.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidOrder
	}

	switch ord.Side {
	case types.OrderSideBuy:
		required := ord.Quantity.Mul(referencePrice)
		if snap.Account.Cash.LessThan(required) {
			return ErrInsufficientFunds
		}
	case types.OrderSideSell:
		pos, ok := snap.Position(ord.Symbol)
		if !ok || pos.Quantity.LessThan(ord.Quantity) {
			return ErrInsufficientPosition
		}
	default:
		return ErrInvalidOrder
	}

	if ord.Side == types.OrderSideBuy {
		var held decimal.Decimal
		if pos, ok := snap.Position(ord.Symbol); ok {
			held = pos.Quantity
		}
		resulting := held.Add(ord.Quantity).Mul(referencePrice)
		limit := snap.Account.TotalValue.Mul(g.maxPositionFraction)
		if resulting.GreaterThan(limit) {
			return ErrConcentrationExceeded
		}
	}
	return nil
}
