// Package orders orchestrates the order lifecycle: admission, persistence,
// execution and queries. It owns no portfolio state; every mutation goes
// through the ledger.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"autotrader/internal/execution"
	"autotrader/internal/ledger"
	"autotrader/internal/marketdata"
	"autotrader/internal/metrics"
	"autotrader/internal/model"
	"autotrader/internal/risk"
	"autotrader/internal/types"
	"autotrader/pkg/id"
)

var ErrNotFound = errors.New("order not found")

// PlaceRequest is a validated-on-entry order request.
type PlaceRequest struct {
	Symbol     string
	Side       types.OrderSide
	Type       types.OrderType
	Quantity   decimal.Decimal
	LimitPrice *decimal.Decimal
}

type Service struct {
	ledger  *ledger.Ledger
	gate    risk.Gate
	engine  execution.Engine
	board   *marketdata.Board
	bus     *marketdata.Bus
	metrics *metrics.Metrics
}

func NewService(l *ledger.Ledger, gate risk.Gate, engine execution.Engine, board *marketdata.Board, bus *marketdata.Bus, m *metrics.Metrics) *Service {
	return &Service{
		ledger:  l,
		gate:    gate,
		engine:  engine,
		board:   board,
		bus:     bus,
		metrics: m,
	}
}

// PlaceOrder runs the full admission pipeline: validate the request, check it
// against a ledger snapshot, persist the order and attempt an immediate fill.
// A rejected order is persisted as REJECTED and the admission error returned
// alongside it, so the caller always sees the outcome synchronously. A MARKET
// order for a symbol with no quote yet stays PENDING and is retried when the
// first quote arrives.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceRequest) (model.Order, error) {
	if err := validate(req); err != nil {
		return model.Order{}, err
	}

	ord := model.Order{
		ID:        id.New(),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Quantity:  req.Quantity,
		Status:    types.OrderStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if req.LimitPrice != nil {
		p := *req.LimitPrice
		ord.LimitPrice = &p
	}

	ref, haveRef := s.referencePrice(ord)
	if !haveRef {
		// No quote yet: admission needs a price, so the order is parked
		// PENDING and re-evaluated on the first quote for its symbol.
		if err := s.saveOrder(ctx, ord); err != nil {
			return model.Order{}, err
		}
		s.metrics.OrdersPlaced.Inc()
		log.Printf("orders: %s %s %s parked, no quote for %s yet", ord.ID, ord.Side, ord.Quantity, ord.Symbol)
		return ord, nil
	}

	snap, err := s.ledger.Snapshot(ctx)
	if err != nil {
		return model.Order{}, err
	}
	if admitErr := s.gate.Admit(ord, ref, snap); admitErr != nil {
		return s.rejectOrder(ctx, ord, admitErr)
	}

	if err := s.saveOrder(ctx, ord); err != nil {
		return model.Order{}, err
	}
	s.metrics.OrdersPlaced.Inc()
	return s.tryFill(ctx, ord, snap)
}

// validate covers the structural checks that never touch the ledger.
func validate(req PlaceRequest) error {
	if req.Symbol == "" {
		return fmt.Errorf("%w: missing symbol", risk.ErrInvalidOrder)
	}
	if req.Side != types.OrderSideBuy && req.Side != types.OrderSideSell {
		return fmt.Errorf("%w: side %q", risk.ErrInvalidOrder, req.Side)
	}
	switch req.Type {
	case types.OrderTypeMarket:
		if req.LimitPrice != nil {
			return fmt.Errorf("%w: MARKET order carries a limit price", risk.ErrInvalidOrder)
		}
	case types.OrderTypeLimit:
		if req.LimitPrice == nil || req.LimitPrice.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%w: LIMIT order requires a positive limit price", risk.ErrInvalidOrder)
		}
	default:
		return fmt.Errorf("%w: order type %q", risk.ErrInvalidOrder, req.Type)
	}
	if req.Quantity.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: quantity %s", risk.ErrInvalidOrder, req.Quantity)
	}
	return nil
}

// referencePrice is the price admission checks against: the limit price for
// LIMIT orders, the last quote otherwise.
func (s *Service) referencePrice(ord model.Order) (decimal.Decimal, bool) {
	if ord.Type == types.OrderTypeLimit && ord.LimitPrice != nil {
		return *ord.LimitPrice, true
	}
	q, ok := s.board.Last(ord.Symbol)
	if !ok {
		return decimal.Zero, false
	}
	return q.Price, true
}

// tryFill resolves one order against the current quote and, on a fill,
// commits the trade through the ledger. The ledger re-validates the admission
// inside its critical section; a stale admission comes back as a rejection
// error with the order already persisted as REJECTED.
func (s *Service) tryFill(ctx context.Context, ord model.Order, snap risk.Snapshot) (model.Order, error) {
	quote, ok := s.board.Last(ord.Symbol)
	if !ok {
		return ord, nil
	}

	var basis decimal.Decimal
	if pos, held := snap.Position(ord.Symbol); held {
		basis = pos.AveragePrice
	}
	trade, filled := s.engine.Execute(ord, quote.Price, basis, time.Now())
	if !filled {
		return ord, nil
	}

	applied, committed, err := s.ledger.Apply(ctx, ord, trade)
	if err != nil {
		if errors.Is(err, ledger.ErrOrderNotFillable) {
			// A cancel or a competing fill committed first; the stored
			// outcome stands and this fill was dropped without mutation.
			log.Printf("orders: %s already %s, fill dropped", applied.ID, applied.Status)
			return applied, nil
		}
		if applied.Status == types.OrderStatusRejected {
			s.metrics.OrdersRejected.WithLabelValues(string(applied.RejectReason)).Inc()
			s.bus.Publish(marketdata.Event{Type: marketdata.EventOrder, Data: applied})
			log.Printf("orders: %s rejected at commit: %v", applied.ID, err)
			return applied, err
		}
		return ord, err
	}

	s.metrics.TradesExecuted.Inc()
	if applied.Status == types.OrderStatusFilled {
		s.metrics.OrdersFilled.Inc()
	}
	s.bus.Publish(marketdata.Event{Type: marketdata.EventOrder, Data: applied})
	s.bus.Publish(marketdata.Event{Type: marketdata.EventTrade, Data: committed})
	s.publishSnapshot(ctx)
	log.Printf("orders: %s %s %s %s filled at %s", applied.ID, applied.Side, applied.Quantity, applied.Symbol, committed.Price)
	return applied, nil
}

// rejectOrder persists the order as REJECTED and reports the admission error.
// The transition runs against the stored record when one exists, so a cancel
// that committed first is not overwritten.
func (s *Service) rejectOrder(ctx context.Context, ord model.Order, cause error) (model.Order, error) {
	err := s.ledger.Exclusive(ctx, func(tx ledger.Tx) error {
		stored, ok, err := tx.Order(ctx, ord.ID)
		if err != nil {
			return err
		}
		if ok {
			ord = stored
		}
		if err := ord.Reject(risk.Reason(cause)); err != nil {
			return err
		}
		return tx.SaveOrder(ctx, ord)
	})
	if err != nil {
		return model.Order{}, err
	}
	s.metrics.OrdersRejected.WithLabelValues(string(ord.RejectReason)).Inc()
	s.bus.Publish(marketdata.Event{Type: marketdata.EventOrder, Data: ord})
	log.Printf("orders: %s rejected: %v", ord.ID, cause)
	return ord, cause
}

func (s *Service) saveOrder(ctx context.Context, ord model.Order) error {
	return s.ledger.Exclusive(ctx, func(tx ledger.Tx) error {
		return tx.SaveOrder(ctx, ord)
	})
}

// CancelOrder cancels a PENDING order. The transition runs under the ledger
// lock so it cannot race a concurrent fill commit for the same order.
func (s *Service) CancelOrder(ctx context.Context, orderID string) (model.Order, error) {
	var cancelled model.Order
	err := s.ledger.Exclusive(ctx, func(tx ledger.Tx) error {
		ord, ok, err := tx.Order(ctx, orderID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		if err := ord.Cancel(); err != nil {
			return err
		}
		cancelled = ord
		return tx.SaveOrder(ctx, ord)
	})
	if err != nil {
		return model.Order{}, err
	}
	s.metrics.OrdersCancelled.Inc()
	s.bus.Publish(marketdata.Event{Type: marketdata.EventOrder, Data: cancelled})
	return cancelled, nil
}

// OnQuote re-evaluates every open order for the quoted symbol and then marks
// the portfolio to market. Registered as a quote listener; runs synchronously
// in quote-arrival order.
func (s *Service) OnQuote(ctx context.Context, q model.Quote) {
	open, err := s.ledger.Store().OpenOrders(ctx)
	if err != nil {
		log.Printf("orders: open orders on quote %s: %v", q.Symbol, err)
		return
	}
	for _, ord := range open {
		if ord.Symbol != q.Symbol {
			continue
		}
		snap, err := s.ledger.Snapshot(ctx)
		if err != nil {
			log.Printf("orders: snapshot on quote %s: %v", q.Symbol, err)
			return
		}
		// Only MARKET orders can rest unadmitted: they park when placed
		// before the first quote for their symbol, and this is their
		// admission point. Resting LIMIT orders were admitted at placement
		// and must survive transient shortfalls while they wait for a
		// cross; the commit-time re-validation in Apply is their backstop.
		if ord.Type == types.OrderTypeMarket {
			ref, ok := s.referencePrice(ord)
			if !ok {
				continue
			}
			if admitErr := s.gate.Admit(ord, ref, snap); admitErr != nil {
				if _, err := s.rejectOrder(ctx, ord, admitErr); err != nil && !errors.Is(err, admitErr) {
					log.Printf("orders: reject %s: %v", ord.ID, err)
				}
				continue
			}
		}
		if _, err := s.tryFill(ctx, ord, snap); err != nil && !isRejection(err) {
			log.Printf("orders: fill %s on quote: %v", ord.ID, err)
		}
	}

	if _, err := s.ledger.MarkToMarket(ctx, q.At); err != nil {
		log.Printf("orders: mark to market on %s: %v", q.Symbol, err)
		return
	}
	s.publishSnapshot(ctx)
}

func isRejection(err error) bool {
	return errors.Is(err, risk.ErrInsufficientFunds) ||
		errors.Is(err, risk.ErrInsufficientPosition) ||
		errors.Is(err, risk.ErrConcentrationExceeded) ||
		errors.Is(err, risk.ErrInvalidOrder)
}

// publishSnapshot pushes the latest portfolio snapshot to bus subscribers and
// refreshes the portfolio gauges.
func (s *Service) publishSnapshot(ctx context.Context) {
	snap, ok, err := s.ledger.Store().LatestSnapshot(ctx)
	if err != nil || !ok {
		return
	}
	s.bus.Publish(marketdata.Event{Type: marketdata.EventSnapshot, Data: snap})
	s.metrics.ObserveSnapshot(snap.TotalValue.InexactFloat64(), snap.Cash.InexactFloat64())
}

// Order returns one order by id.
func (s *Service) Order(ctx context.Context, orderID string) (model.Order, error) {
	ord, ok, err := s.ledger.Store().Order(ctx, orderID)
	if err != nil {
		return model.Order{}, err
	}
	if !ok {
		return model.Order{}, ErrNotFound
	}
	return ord, nil
}

// OpenOrders lists orders still eligible for fills.
func (s *Service) OpenOrders(ctx context.Context) ([]model.Order, error) {
	return s.ledger.Store().OpenOrders(ctx)
}

// Positions lists open positions.
func (s *Service) Positions(ctx context.Context) ([]model.Position, error) {
	return s.ledger.Store().Positions(ctx)
}

// Account returns the current account record.
func (s *Service) Account(ctx context.Context) (model.Account, error) {
	return s.ledger.Store().Account(ctx)
}

// Trades lists executed trades in a time window, newest kept when limited.
func (s *Service) Trades(ctx context.Context, from, to time.Time, limit int) ([]model.Trade, error) {
	return s.ledger.Store().Trades(ctx, from, to, limit)
}

// Snapshots lists portfolio snapshots in a time window.
func (s *Service) Snapshots(ctx context.Context, from, to time.Time, limit int) ([]model.PortfolioSnapshot, error) {
	return s.ledger.Store().Snapshots(ctx, from, to, limit)
}

// Portfolio is the aggregate view: account totals plus open positions, all
// read under one transaction.
type Portfolio struct {
	TotalValue  decimal.Decimal  `json:"total_value"`
	Cash        decimal.Decimal  `json:"cash"`
	TotalPnL    decimal.Decimal  `json:"total_pnl"`
	TotalReturn decimal.Decimal  `json:"total_return"`
	Positions   []model.Position `json:"positions"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func (s *Service) Portfolio(ctx context.Context) (Portfolio, error) {
	snap, err := s.ledger.Snapshot(ctx)
	if err != nil {
		return Portfolio{}, err
	}
	a := snap.Account
	ret := decimal.Zero
	if !a.InitialCapital.IsZero() {
		ret = a.TotalValue.Sub(a.InitialCapital).Div(a.InitialCapital)
	}
	return Portfolio{
		TotalValue:  a.TotalValue,
		Cash:        a.Cash,
		TotalPnL:    a.TotalPnL,
		TotalReturn: ret,
		Positions:   snap.Positions,
		UpdatedAt:   a.UpdatedAt,
	}, nil
}
