// Package execution resolves admitted orders against market quotes. Fills
// are simulated: a crossing order produces exactly one trade for its full
// remaining quantity at the quote price (partial-liquidity modeling is out
// of scope).
package execution

import (
	"time"

	"github.com/shopspring/decimal"

	"autotrader/internal/model"
	"autotrader/internal/types"
	"autotrader/pkg/id"
)

type Engine struct {
	commissionRate decimal.Decimal
}

func NewEngine(commissionRate decimal.Decimal) Engine {
	return Engine{commissionRate: commissionRate}
}

// Execute produces the trade for an order against the current quote, or
// reports no fill. MARKET orders always fill at the quote. LIMIT orders fill
// only when the quote crosses the limit (BUY: quote <= limit, SELL: quote >=
// limit); the execution price is the quote, never worse than the limit.
//
// costBasis is the position's average price before this trade; SELL fills
// realize (quote - costBasis) * quantity. BUY fills realize nothing, since
// changing cost basis is not a realization event.
func (e Engine) Execute(ord model.Order, quote decimal.Decimal, costBasis decimal.Decimal, at time.Time) (model.Trade, bool) {
	if !ord.Fillable() || quote.LessThanOrEqual(decimal.Zero) {
		return model.Trade{}, false
	}
	if ord.Type == types.OrderTypeLimit {
		if ord.LimitPrice == nil {
			return model.Trade{}, false
		}
		switch ord.Side {
		case types.OrderSideBuy:
			if quote.GreaterThan(*ord.LimitPrice) {
				return model.Trade{}, false
			}
		case types.OrderSideSell:
			if quote.LessThan(*ord.LimitPrice) {
				return model.Trade{}, false
			}
		}
	}

	qty := ord.Remaining()
	trade := model.Trade{
		ID:         id.New(),
		OrderID:    ord.ID,
		Symbol:     ord.Symbol,
		Side:       ord.Side,
		Quantity:   qty,
		Price:      quote,
		Commission: e.commissionRate.Mul(qty).Mul(quote),
		ExecutedAt: at.UTC(),
	}
	if ord.Side == types.OrderSideSell {
		trade.RealizedPnL = quote.Sub(costBasis).Mul(qty)
	}
	return trade, true
}
