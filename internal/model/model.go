package model

import (
	"time"

	"github.com/shopspring/decimal"

	"autotrader/internal/types"
)

// Account is the cash ledger for one portfolio. Cash never goes negative on a
// committed state; orders that would overdraw are rejected before commit.
type Account struct {
	Cash           decimal.Decimal `json:"cash"`
	TotalValue     decimal.Decimal `json:"total_value"`
	TotalPnL       decimal.Decimal `json:"total_pnl"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Position is an open holding, unique per symbol. Quantity is never negative;
// there are no short positions. AveragePrice is the quantity-weighted cost
// basis and changes only when a BUY increases the position.
type Position struct {
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	AveragePrice  decimal.Decimal `json:"average_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Notional is the market value of the position at the given price.
func (p Position) Notional(price decimal.Decimal) decimal.Decimal {
	return p.Quantity.Mul(price)
}

// Trade is an immutable execution record tied to exactly one order.
type Trade struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	Symbol      string          `json:"symbol"`
	Side        types.OrderSide `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Commission  decimal.Decimal `json:"commission"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	ExecutedAt  time.Time       `json:"executed_at"`
}

// PortfolioSnapshot is an append-only record of aggregate portfolio state,
// captured after every committed ledger mutation.
type PortfolioSnapshot struct {
	ID          string          `json:"id"`
	TotalValue  decimal.Decimal `json:"total_value"`
	Cash        decimal.Decimal `json:"cash"`
	TotalPnL    decimal.Decimal `json:"total_pnl"`
	TotalReturn decimal.Decimal `json:"total_return"`
	CapturedAt  time.Time       `json:"captured_at"`
}

// Signal is an inbound trading signal from an upstream producer. The producer
// itself (prediction model, anomaly detector) is an external collaborator.
type Signal struct {
	Symbol         string             `json:"symbol"`
	Action         types.SignalAction `json:"action"`
	Confidence     decimal.Decimal    `json:"confidence"`
	PredictedPrice *decimal.Decimal   `json:"predicted_price,omitempty"`
	CurrentPrice   *decimal.Decimal   `json:"current_price,omitempty"`
	StopLoss       *decimal.Decimal   `json:"stop_loss,omitempty"`
	TakeProfit     *decimal.Decimal   `json:"take_profit,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
}

// Quote is the latest known market price for a symbol.
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	At     time.Time       `json:"at"`
}
