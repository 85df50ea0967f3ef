// Package signal converts upstream trading signals into orders and watches
// open positions for stop-loss and take-profit exits.
package signal

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/shopspring/decimal"

	"autotrader/internal/ledger"
	"autotrader/internal/marketdata"
	"autotrader/internal/metrics"
	"autotrader/internal/model"
	"autotrader/internal/orders"
	"autotrader/internal/types"
)

// OrderPlacer is the slice of the order service the adapter needs.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req orders.PlaceRequest) (model.Order, error)
}

// exitLevels are the protective prices armed for one long position.
type exitLevels struct {
	stop decimal.Decimal
	take decimal.Decimal
}

// Config holds the signal-sizing policy.
type Config struct {
	MinConfidence       decimal.Decimal
	MaxPositionFraction decimal.Decimal
	StopLossPct         decimal.Decimal
	TakeProfitPct       decimal.Decimal
}

// Adapter sizes signals into MARKET orders. Sizing scales the portfolio's
// per-symbol budget by the signal's confidence; the risk gate and the ledger
// remain the authority on whether the resulting order is acceptable.
type Adapter struct {
	placer OrderPlacer
	ledger *ledger.Ledger
	board  *marketdata.Board
	cfg    Config
	m      *metrics.Metrics

	mu     sync.Mutex
	levels map[string]exitLevels
}

func NewAdapter(placer OrderPlacer, l *ledger.Ledger, board *marketdata.Board, cfg Config, m *metrics.Metrics) *Adapter {
	return &Adapter{
		placer: placer,
		ledger: l,
		board:  board,
		cfg:    cfg,
		m:      m,
		levels: make(map[string]exitLevels),
	}
}

// HandleSignal sizes and places one order for a signal. HOLD signals and
// signals below the confidence threshold are consumed without effect. A
// rejected order is not an adapter error: the signal was handled, the gate
// said no.
func (a *Adapter) HandleSignal(ctx context.Context, sig model.Signal) error {
	a.m.SignalsReceived.WithLabelValues(string(sig.Action)).Inc()

	if sig.Action == types.SignalActionHold {
		return nil
	}
	if sig.Action != types.SignalActionBuy && sig.Action != types.SignalActionSell {
		return errors.New("unknown signal action " + string(sig.Action))
	}
	if sig.Confidence.LessThan(a.cfg.MinConfidence) {
		log.Printf("signal: %s %s below confidence threshold (%s)", sig.Action, sig.Symbol, sig.Confidence)
		return nil
	}

	price, ok := a.signalPrice(sig)
	if !ok {
		log.Printf("signal: %s %s skipped, no price available", sig.Action, sig.Symbol)
		return nil
	}

	snap, err := a.ledger.Snapshot(ctx)
	if err != nil {
		return err
	}

	qty := a.sizeOrder(sig, price, snap.Account.TotalValue)
	if sig.Action == types.SignalActionSell {
		pos, held := snap.Position(sig.Symbol)
		if !held {
			log.Printf("signal: SELL %s skipped, no position", sig.Symbol)
			return nil
		}
		if qty.GreaterThan(pos.Quantity) {
			qty = pos.Quantity
		}
	}
	if qty.LessThanOrEqual(decimal.Zero) {
		log.Printf("signal: %s %s sized to zero", sig.Action, sig.Symbol)
		return nil
	}

	ord, err := a.placer.PlaceOrder(ctx, orders.PlaceRequest{
		Symbol:   sig.Symbol,
		Side:     types.OrderSide(sig.Action),
		Type:     types.OrderTypeMarket,
		Quantity: qty,
	})
	if err != nil {
		if ord.Status == types.OrderStatusRejected {
			log.Printf("signal: %s %s order rejected: %v", sig.Action, sig.Symbol, err)
			return nil
		}
		return err
	}

	switch sig.Action {
	case types.SignalActionBuy:
		a.armExits(sig, price)
	case types.SignalActionSell:
		a.disarmIfFlat(ctx, sig.Symbol)
	}
	return nil
}

// sizeOrder computes the order quantity: the per-symbol budget (total value
// times the concentration limit) scaled by confidence, divided by price and
// rounded down to two decimal places so sizing never rounds above budget.
func (a *Adapter) sizeOrder(sig model.Signal, price, totalValue decimal.Decimal) decimal.Decimal {
	budget := totalValue.Mul(a.cfg.MaxPositionFraction).Mul(sig.Confidence)
	return budget.Div(price).RoundDown(2)
}

func (a *Adapter) signalPrice(sig model.Signal) (decimal.Decimal, bool) {
	if sig.CurrentPrice != nil && sig.CurrentPrice.GreaterThan(decimal.Zero) {
		return *sig.CurrentPrice, true
	}
	if q, ok := a.board.Last(sig.Symbol); ok {
		return q.Price, true
	}
	return decimal.Zero, false
}

// armExits records stop and take prices for a symbol. Explicit levels on the
// signal win; otherwise they default to fixed percentages off the entry
// price.
func (a *Adapter) armExits(sig model.Signal, entry decimal.Decimal) {
	lv := exitLevels{
		stop: entry.Mul(decimal.NewFromInt(1).Sub(a.cfg.StopLossPct)),
		take: entry.Mul(decimal.NewFromInt(1).Add(a.cfg.TakeProfitPct)),
	}
	if sig.StopLoss != nil && sig.StopLoss.GreaterThan(decimal.Zero) {
		lv.stop = *sig.StopLoss
	}
	if sig.TakeProfit != nil && sig.TakeProfit.GreaterThan(decimal.Zero) {
		lv.take = *sig.TakeProfit
	}
	a.mu.Lock()
	a.levels[sig.Symbol] = lv
	a.mu.Unlock()
	log.Printf("signal: %s exits armed, stop %s take %s", sig.Symbol, lv.stop, lv.take)
}

func (a *Adapter) disarmIfFlat(ctx context.Context, symbol string) {
	snap, err := a.ledger.Snapshot(ctx)
	if err != nil {
		return
	}
	if _, held := snap.Position(symbol); !held {
		a.mu.Lock()
		delete(a.levels, symbol)
		a.mu.Unlock()
	}
}

// OnQuote checks armed exit levels against the new quote and liquidates the
// position when one triggers. Registered as a quote listener after the order
// service, so fills from this quote have already committed.
func (a *Adapter) OnQuote(ctx context.Context, q model.Quote) {
	a.mu.Lock()
	lv, armed := a.levels[q.Symbol]
	a.mu.Unlock()
	if !armed {
		return
	}

	var trigger string
	switch {
	case q.Price.LessThanOrEqual(lv.stop):
		trigger = "stop loss"
	case q.Price.GreaterThanOrEqual(lv.take):
		trigger = "take profit"
	default:
		return
	}

	snap, err := a.ledger.Snapshot(ctx)
	if err != nil {
		log.Printf("signal: exit check %s: %v", q.Symbol, err)
		return
	}
	pos, held := snap.Position(q.Symbol)
	if !held {
		a.mu.Lock()
		delete(a.levels, q.Symbol)
		a.mu.Unlock()
		return
	}

	log.Printf("signal: %s triggered for %s at %s, liquidating %s", trigger, q.Symbol, q.Price, pos.Quantity)
	if _, err := a.placer.PlaceOrder(ctx, orders.PlaceRequest{
		Symbol:   q.Symbol,
		Side:     types.OrderSideSell,
		Type:     types.OrderTypeMarket,
		Quantity: pos.Quantity,
	}); err != nil {
		log.Printf("signal: %s liquidation for %s: %v", trigger, q.Symbol, err)
		return
	}
	a.mu.Lock()
	delete(a.levels, q.Symbol)
	a.mu.Unlock()
}
