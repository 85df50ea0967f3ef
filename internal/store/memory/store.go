// Package memory implements the ledger store contract in process memory.
// It backs tests and DSN-less deployments; a global mutex gives every Update
// the serializable isolation the accountant requires, and writes land in a
// staged copy that replaces the live state only when the update function
// succeeds.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"autotrader/internal/ledger"
	"autotrader/internal/model"
)

type state struct {
	account   model.Account
	positions map[string]model.Position
	orders    map[string]model.Order
	trades    []model.Trade
	snapshots []model.PortfolioSnapshot
}

func (s *state) clone() *state {
	next := &state{
		account:   s.account,
		positions: make(map[string]model.Position, len(s.positions)),
		orders:    make(map[string]model.Order, len(s.orders)),
		trades:    make([]model.Trade, len(s.trades)),
		snapshots: make([]model.PortfolioSnapshot, len(s.snapshots)),
	}
	for k, v := range s.positions {
		next.positions[k] = v
	}
	for k, v := range s.orders {
		next.orders[k] = v
	}
	copy(next.trades, s.trades)
	copy(next.snapshots, s.snapshots)
	return next
}

type Store struct {
	mu    sync.RWMutex
	state *state
}

var _ ledger.Store = (*Store)(nil)

// NewStore seeds the singleton account with the configured initial capital.
func NewStore(initialCapital decimal.Decimal) *Store {
	return &Store{state: &state{
		account: model.Account{
			Cash:           initialCapital,
			TotalValue:     initialCapital,
			InitialCapital: initialCapital,
			UpdatedAt:      time.Now().UTC(),
		},
		positions: make(map[string]model.Position),
		orders:    make(map[string]model.Order),
	}}
}

func (s *Store) Update(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := s.state.clone()
	if err := fn(&tx{state: staged}); err != nil {
		return err
	}
	s.state = staged
	return nil
}

func (s *Store) Account(ctx context.Context) (model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.account, nil
}

func (s *Store) Positions(ctx context.Context) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedPositions(s.state), nil
}

func (s *Store) Order(ctx context.Context, id string) (model.Order, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.state.orders[id]
	return o, ok, nil
}

func (s *Store) OpenOrders(ctx context.Context) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return openOrders(s.state), nil
}

func (s *Store) Trades(ctx context.Context, from, to time.Time, limit int) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Trade
	for _, t := range s.state.trades {
		if inWindow(t.ExecutedAt, from, to) {
			out = append(out, t)
		}
	}
	return tail(out, limit), nil
}

func (s *Store) Snapshots(ctx context.Context, from, to time.Time, limit int) ([]model.PortfolioSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.PortfolioSnapshot
	for _, snap := range s.state.snapshots {
		if inWindow(snap.CapturedAt, from, to) {
			out = append(out, snap)
		}
	}
	return tail(out, limit), nil
}

func (s *Store) LatestSnapshot(ctx context.Context) (model.PortfolioSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.state.snapshots) == 0 {
		return model.PortfolioSnapshot{}, false, nil
	}
	return s.state.snapshots[len(s.state.snapshots)-1], true, nil
}

// tx mutates the staged state directly; the staging copy is what provides
// rollback on error.
type tx struct {
	state *state
}

var _ ledger.Tx = (*tx)(nil)

func (t *tx) Account(ctx context.Context) (model.Account, error) {
	return t.state.account, nil
}

func (t *tx) SaveAccount(ctx context.Context, a model.Account) error {
	t.state.account = a
	return nil
}

func (t *tx) Position(ctx context.Context, symbol string) (model.Position, bool, error) {
	p, ok := t.state.positions[symbol]
	return p, ok, nil
}

func (t *tx) Positions(ctx context.Context) ([]model.Position, error) {
	return sortedPositions(t.state), nil
}

func (t *tx) SavePosition(ctx context.Context, p model.Position) error {
	t.state.positions[p.Symbol] = p
	return nil
}

func (t *tx) DeletePosition(ctx context.Context, symbol string) error {
	delete(t.state.positions, symbol)
	return nil
}

func (t *tx) Order(ctx context.Context, id string) (model.Order, bool, error) {
	o, ok := t.state.orders[id]
	return o, ok, nil
}

func (t *tx) SaveOrder(ctx context.Context, o model.Order) error {
	t.state.orders[o.ID] = o
	return nil
}

func (t *tx) OpenOrders(ctx context.Context) ([]model.Order, error) {
	return openOrders(t.state), nil
}

func (t *tx) InsertTrade(ctx context.Context, tr model.Trade) error {
	t.state.trades = append(t.state.trades, tr)
	return nil
}

func (t *tx) InsertSnapshot(ctx context.Context, s model.PortfolioSnapshot) error {
	t.state.snapshots = append(t.state.snapshots, s)
	return nil
}

func sortedPositions(s *state) []model.Position {
	out := make([]model.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func openOrders(s *state) []model.Order {
	var out []model.Order
	for _, o := range s.orders {
		if o.Fillable() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func inWindow(at, from, to time.Time) bool {
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && at.After(to) {
		return false
	}
	return true
}

func tail[T any](in []T, limit int) []T {
	if limit <= 0 || len(in) <= limit {
		return in
	}
	return in[len(in)-limit:]
}
