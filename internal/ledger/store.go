package ledger

import (
	"context"
	"time"

	"autotrader/internal/model"
)

// Tx is the transactional view of the ledger store. Writes made through a Tx
// become visible to subsequent reads in the same Tx and commit atomically, or
// not at all. That is the whole contract the accountant assumes of the
// backing storage engine.
type Tx interface {
	Account(ctx context.Context) (model.Account, error)
	SaveAccount(ctx context.Context, a model.Account) error

	Position(ctx context.Context, symbol string) (model.Position, bool, error)
	Positions(ctx context.Context) ([]model.Position, error)
	SavePosition(ctx context.Context, p model.Position) error
	DeletePosition(ctx context.Context, symbol string) error

	Order(ctx context.Context, id string) (model.Order, bool, error)
	SaveOrder(ctx context.Context, o model.Order) error
	OpenOrders(ctx context.Context) ([]model.Order, error)

	InsertTrade(ctx context.Context, t model.Trade) error
	InsertSnapshot(ctx context.Context, s model.PortfolioSnapshot) error
}

// Store persists the portfolio ledger: one account record, positions keyed by
// symbol, orders, write-once trades and append-only snapshots.
type Store interface {
	// Update runs fn inside a single transaction with at least serializable
	// isolation for the touched rows.
	Update(ctx context.Context, fn func(tx Tx) error) error

	Account(ctx context.Context) (model.Account, error)
	Positions(ctx context.Context) ([]model.Position, error)
	Order(ctx context.Context, id string) (model.Order, bool, error)
	OpenOrders(ctx context.Context) ([]model.Order, error)
	Trades(ctx context.Context, from, to time.Time, limit int) ([]model.Trade, error)
	Snapshots(ctx context.Context, from, to time.Time, limit int) ([]model.PortfolioSnapshot, error)
	LatestSnapshot(ctx context.Context) (model.PortfolioSnapshot, bool, error)
}
