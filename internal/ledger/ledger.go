package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"autotrader/internal/model"
	"autotrader/internal/risk"
	"autotrader/internal/types"
	"autotrader/pkg/id"
)

// ErrInconsistency marks an invariant violation detected before commit, such
// as negative cash after a mutation. It is a programming-contract failure,
// not a runtime condition: the transaction aborts and nothing is applied.
var ErrInconsistency = errors.New("ledger inconsistency")

// ErrOrderNotFillable reports that the stored order can no longer accept the
// fill: a cancellation or a competing fill committed first. Nothing is
// mutated; the stored order is returned so the caller sees the outcome that
// won.
var ErrOrderNotFillable = errors.New("order no longer fillable")

// QuoteSource supplies the latest known quote per symbol.
type QuoteSource interface {
	Last(symbol string) (model.Quote, bool)
}

// Ledger is the accountant for one portfolio: the sole mutation path for the
// account and its positions. Every mutation is serialized on the ledger's
// lock, because cash is shared across symbols and two concurrent BUYs on
// different symbols could otherwise jointly overdraw it.
type Ledger struct {
	mu     sync.Mutex
	store  Store
	quotes QuoteSource
}

func New(store Store, quotes QuoteSource) *Ledger {
	return &Ledger{store: store, quotes: quotes}
}

// Store exposes the read-only query surface.
func (l *Ledger) Store() Store { return l.store }

// Snapshot reads a consistent account + positions view for admission control.
func (l *Ledger) Snapshot(ctx context.Context) (risk.Snapshot, error) {
	var snap risk.Snapshot
	err := l.store.Update(ctx, func(tx Tx) error {
		account, err := tx.Account(ctx)
		if err != nil {
			return err
		}
		positions, err := tx.Positions(ctx)
		if err != nil {
			return err
		}
		snap = risk.Snapshot{Account: account, Positions: positions}
		return nil
	})
	return snap, err
}

// Apply commits one trade against the ledger as a single indivisible step:
// re-read the order, re-validate admission against the live ledger, mutate
// position and cash, record the fill on the order, recompute derived fields
// and append a snapshot. On a stale admission the order is rejected, no
// ledger state changes, and the admission error is returned. The returned
// trade is the committed record, which may differ from the caller's copy.
func (l *Ledger) Apply(ctx context.Context, ord model.Order, trade model.Trade) (model.Order, model.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	applied := ord
	committed := trade
	var rejected error
	var stale bool
	err := l.store.Update(ctx, func(tx Tx) error {
		applied, committed, rejected, stale = ord, trade, nil, false

		// The caller built the trade from its own copy of the order, which
		// may be stale by now. The stored record is authoritative: a cancel
		// or a competing fill that committed first must win, so transitions
		// apply to the re-read order and the fill must still fit within its
		// remaining quantity.
		stored, haveStored, err := tx.Order(ctx, ord.ID)
		if err != nil {
			return err
		}
		if haveStored {
			applied = stored
		}
		if !applied.Fillable() || trade.Quantity.GreaterThan(applied.Remaining()) {
			stale = true
			return nil
		}

		account, err := tx.Account(ctx)
		if err != nil {
			return err
		}
		pos, havePos, err := tx.Position(ctx, trade.Symbol)
		if err != nil {
			return err
		}

		// Commit-time re-validation: the admission snapshot may be stale by
		// now, so funds and position are checked again here, inside the
		// critical section.
		switch trade.Side {
		case types.OrderSideBuy:
			cost := trade.Quantity.Mul(trade.Price).Add(trade.Commission)
			if account.Cash.LessThan(cost) {
				rejected = risk.ErrInsufficientFunds
			}
		case types.OrderSideSell:
			if !havePos || pos.Quantity.LessThan(trade.Quantity) {
				rejected = risk.ErrInsufficientPosition
			}
		default:
			return fmt.Errorf("%w: unknown side %q", ErrInconsistency, trade.Side)
		}
		if rejected != nil {
			if err := applied.Reject(risk.Reason(rejected)); err != nil {
				return err
			}
			return tx.SaveOrder(ctx, applied)
		}

		now := trade.ExecutedAt.UTC()
		if trade.Side == types.OrderSideBuy {
			if !havePos {
				pos = model.Position{Symbol: trade.Symbol}
			}
			newQty := pos.Quantity.Add(trade.Quantity)
			notional := pos.Quantity.Mul(pos.AveragePrice).Add(trade.Quantity.Mul(trade.Price))
			pos.AveragePrice = notional.Div(newQty)
			pos.Quantity = newQty
			account.Cash = account.Cash.Sub(trade.Quantity.Mul(trade.Price)).Sub(trade.Commission)
		} else {
			// Realized P&L is derived from the basis held under the lock,
			// not the engine's pre-lock estimate: a BUY committing after
			// the admission snapshot changes the average price.
			committed.RealizedPnL = trade.Price.Sub(pos.AveragePrice).Mul(trade.Quantity)
			account.Cash = account.Cash.Add(trade.Quantity.Mul(trade.Price)).Sub(trade.Commission)
			pos.Quantity = pos.Quantity.Sub(trade.Quantity)
			pos.RealizedPnL = pos.RealizedPnL.Add(committed.RealizedPnL)
		}
		pos.CurrentPrice = trade.Price
		pos.UpdatedAt = now

		if account.Cash.IsNegative() {
			return fmt.Errorf("%w: cash %s after %s %s", ErrInconsistency, account.Cash, trade.Side, trade.Symbol)
		}
		if pos.Quantity.IsNegative() {
			return fmt.Errorf("%w: quantity %s for %s", ErrInconsistency, pos.Quantity, pos.Symbol)
		}

		if err := applied.ApplyFill(trade.Quantity, trade.Price, trade.ExecutedAt); err != nil {
			return err
		}

		// A fully closed position is removed, not zeroed, so a later BUY
		// starts a fresh cost basis.
		if trade.Side == types.OrderSideSell && pos.Quantity.IsZero() {
			if err := tx.DeletePosition(ctx, pos.Symbol); err != nil {
				return err
			}
		} else {
			if err := tx.SavePosition(ctx, pos); err != nil {
				return err
			}
		}
		if err := tx.SaveOrder(ctx, applied); err != nil {
			return err
		}
		if err := tx.InsertTrade(ctx, committed); err != nil {
			return err
		}
		return l.recompute(ctx, tx, account, now)
	})
	if err != nil {
		return ord, trade, err
	}
	if stale {
		return applied, model.Trade{}, ErrOrderNotFillable
	}
	if rejected != nil {
		return applied, model.Trade{}, rejected
	}
	return applied, committed, nil
}

// MarkToMarket refreshes unrealized P&L and portfolio totals from the latest
// quotes and appends a snapshot. Called on quote arrival.
func (l *Ledger) MarkToMarket(ctx context.Context, at time.Time) (model.PortfolioSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var snap model.PortfolioSnapshot
	err := l.store.Update(ctx, func(tx Tx) error {
		account, err := tx.Account(ctx)
		if err != nil {
			return err
		}
		return l.recompute(ctx, tx, account, at.UTC())
	})
	if err != nil {
		return snap, err
	}
	s, _, err := l.store.LatestSnapshot(ctx)
	return s, err
}

// Exclusive runs fn inside a store transaction while holding the ledger
// lock. Lifecycle transitions that must not race a fill commit, such as
// cancellation, go through here.
func (l *Ledger) Exclusive(ctx context.Context, fn func(tx Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Update(ctx, fn)
}

// recompute is the trailing consistency step of every committed mutation:
// refresh unrealized P&L per open position, derive account totals and append
// a snapshot. Callers never observe a mutated position without these fields
// updated.
func (l *Ledger) recompute(ctx context.Context, tx Tx, account model.Account, at time.Time) error {
	positions, err := tx.Positions(ctx)
	if err != nil {
		return err
	}
	holdings := decimal.Zero
	for _, pos := range positions {
		price := pos.CurrentPrice
		if q, ok := l.quotes.Last(pos.Symbol); ok {
			price = q.Price
		}
		pos.CurrentPrice = price
		pos.UnrealizedPnL = price.Sub(pos.AveragePrice).Mul(pos.Quantity)
		pos.UpdatedAt = at
		if err := tx.SavePosition(ctx, pos); err != nil {
			return err
		}
		holdings = holdings.Add(pos.Quantity.Mul(price))
	}

	account.TotalValue = account.Cash.Add(holdings)
	account.TotalPnL = account.TotalValue.Sub(account.InitialCapital)
	account.UpdatedAt = at
	if err := tx.SaveAccount(ctx, account); err != nil {
		return err
	}

	snap := model.PortfolioSnapshot{
		ID:          id.New(),
		TotalValue:  account.TotalValue,
		Cash:        account.Cash,
		TotalPnL:    account.TotalPnL,
		TotalReturn: totalReturn(account),
		CapturedAt:  at,
	}
	return tx.InsertSnapshot(ctx, snap)
}

func totalReturn(a model.Account) decimal.Decimal {
	if a.InitialCapital.IsZero() {
		return decimal.Zero
	}
	return a.TotalValue.Sub(a.InitialCapital).Div(a.InitialCapital)
}
