// Package postgres implements the ledger store contract on PostgreSQL.
// Every Update runs inside a serializable transaction, which is what makes
// the accountant's read-modify-write apply step safe against concurrent
// writers when several service instances share one database.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"autotrader/internal/ledger"
	"autotrader/internal/model"
	"autotrader/internal/types"
)

type Store struct {
	pool *pgxpool.Pool
}

var _ ledger.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the schema if needed and seeds the singleton account row.
func (s *Store) Init(ctx context.Context, initialCapital decimal.Decimal) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		insert into account (id, cash, total_value, total_pnl, initial_capital, updated_at)
		values (1, $1, $1, 0, $1, $2)
		on conflict (id) do nothing
	`, initialCapital, time.Now().UTC())
	return err
}

func (s *Store) Update(ctx context.Context, fn func(tx ledger.Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer pgTx.Rollback(ctx)
	if err := fn(&tx{tx: pgTx}); err != nil {
		return err
	}
	return pgTx.Commit(ctx)
}

func (s *Store) Account(ctx context.Context) (model.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, accountQuery))
}

func (s *Store) Positions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx, positionsQuery)
	if err != nil {
		return nil, err
	}
	return collectPositions(rows)
}

func (s *Store) Order(ctx context.Context, id string) (model.Order, bool, error) {
	return scanOrder(s.pool.QueryRow(ctx, orderQuery+" where order_id = $1", id))
}

func (s *Store) OpenOrders(ctx context.Context) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx, orderQuery+" where status in ('PENDING','PARTIALLY_FILLED') order by order_id")
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *Store) Trades(ctx context.Context, from, to time.Time, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	// Newest rows win the limit, returned in chronological order.
	rows, err := s.pool.Query(ctx, `
		select id, order_id, symbol, side, qty, price, commission, realized_pnl, executed_at from (
			select id, order_id, symbol, side, qty, price, commission, realized_pnl, executed_at
			from trades
			where ($1::timestamptz is null or executed_at >= $1)
			  and ($2::timestamptz is null or executed_at <= $2)
			order by executed_at desc
			limit $3
		) t order by executed_at
	`, nullableTime(from), nullableTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Trade
	for rows.Next() {
		var t model.Trade
		var side string
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Symbol, &side, &t.Quantity, &t.Price, &t.Commission, &t.RealizedPnL, &t.ExecutedAt); err != nil {
			return nil, err
		}
		t.Side = types.OrderSide(side)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) Snapshots(ctx context.Context, from, to time.Time, limit int) ([]model.PortfolioSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		select id, total_value, cash, total_pnl, total_return, captured_at from (
			select id, total_value, cash, total_pnl, total_return, captured_at
			from portfolio_snapshots
			where ($1::timestamptz is null or captured_at >= $1)
			  and ($2::timestamptz is null or captured_at <= $2)
			order by captured_at desc
			limit $3
		) s order by captured_at
	`, nullableTime(from), nullableTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PortfolioSnapshot
	for rows.Next() {
		var snap model.PortfolioSnapshot
		if err := rows.Scan(&snap.ID, &snap.TotalValue, &snap.Cash, &snap.TotalPnL, &snap.TotalReturn, &snap.CapturedAt); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *Store) LatestSnapshot(ctx context.Context) (model.PortfolioSnapshot, bool, error) {
	var snap model.PortfolioSnapshot
	err := s.pool.QueryRow(ctx, `
		select id, total_value, cash, total_pnl, total_return, captured_at
		from portfolio_snapshots order by captured_at desc, id desc limit 1
	`).Scan(&snap.ID, &snap.TotalValue, &snap.Cash, &snap.TotalPnL, &snap.TotalReturn, &snap.CapturedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, err
	}
	return snap, true, nil
}

type tx struct {
	tx pgx.Tx
}

var _ ledger.Tx = (*tx)(nil)

func (t *tx) Account(ctx context.Context) (model.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx, accountQuery+" for update"))
}

func (t *tx) SaveAccount(ctx context.Context, a model.Account) error {
	_, err := t.tx.Exec(ctx, `
		update account set cash = $1, total_value = $2, total_pnl = $3, updated_at = $4 where id = 1
	`, a.Cash, a.TotalValue, a.TotalPnL, a.UpdatedAt)
	return err
}

func (t *tx) Position(ctx context.Context, symbol string) (model.Position, bool, error) {
	var p model.Position
	err := t.tx.QueryRow(ctx, `
		select symbol, qty, average_price, current_price, unrealized_pnl, realized_pnl, updated_at
		from positions where symbol = $1 for update
	`, symbol).Scan(&p.Symbol, &p.Quantity, &p.AveragePrice, &p.CurrentPrice, &p.UnrealizedPnL, &p.RealizedPnL, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, false, nil
	}
	if err != nil {
		return p, false, err
	}
	return p, true, nil
}

func (t *tx) Positions(ctx context.Context) ([]model.Position, error) {
	rows, err := t.tx.Query(ctx, positionsQuery+" for update")
	if err != nil {
		return nil, err
	}
	return collectPositions(rows)
}

func (t *tx) SavePosition(ctx context.Context, p model.Position) error {
	_, err := t.tx.Exec(ctx, `
		insert into positions (symbol, qty, average_price, current_price, unrealized_pnl, realized_pnl, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7)
		on conflict (symbol) do update set
			qty = excluded.qty,
			average_price = excluded.average_price,
			current_price = excluded.current_price,
			unrealized_pnl = excluded.unrealized_pnl,
			realized_pnl = excluded.realized_pnl,
			updated_at = excluded.updated_at
	`, p.Symbol, p.Quantity, p.AveragePrice, p.CurrentPrice, p.UnrealizedPnL, p.RealizedPnL, p.UpdatedAt)
	return err
}

func (t *tx) DeletePosition(ctx context.Context, symbol string) error {
	_, err := t.tx.Exec(ctx, "delete from positions where symbol = $1", symbol)
	return err
}

func (t *tx) Order(ctx context.Context, id string) (model.Order, bool, error) {
	return scanOrder(t.tx.QueryRow(ctx, orderQuery+" where order_id = $1 for update", id))
}

func (t *tx) SaveOrder(ctx context.Context, o model.Order) error {
	_, err := t.tx.Exec(ctx, `
		insert into orders (order_id, symbol, side, order_type, qty, limit_price, status, filled_qty, avg_fill_price, reject_reason, created_at, filled_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		on conflict (order_id) do update set
			status = excluded.status,
			filled_qty = excluded.filled_qty,
			avg_fill_price = excluded.avg_fill_price,
			reject_reason = excluded.reject_reason,
			filled_at = excluded.filled_at
	`, o.ID, o.Symbol, string(o.Side), string(o.Type), o.Quantity, o.LimitPrice, string(o.Status),
		o.FilledQuantity, o.AvgFillPrice, string(o.RejectReason), o.CreatedAt, o.FilledAt)
	return err
}

func (t *tx) OpenOrders(ctx context.Context) ([]model.Order, error) {
	rows, err := t.tx.Query(ctx, orderQuery+" where status in ('PENDING','PARTIALLY_FILLED') order by order_id for update")
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (t *tx) InsertTrade(ctx context.Context, tr model.Trade) error {
	_, err := t.tx.Exec(ctx, `
		insert into trades (id, order_id, symbol, side, qty, price, commission, realized_pnl, executed_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, tr.ID, tr.OrderID, tr.Symbol, string(tr.Side), tr.Quantity, tr.Price, tr.Commission, tr.RealizedPnL, tr.ExecutedAt)
	return err
}

func (t *tx) InsertSnapshot(ctx context.Context, s model.PortfolioSnapshot) error {
	_, err := t.tx.Exec(ctx, `
		insert into portfolio_snapshots (id, total_value, cash, total_pnl, total_return, captured_at)
		values ($1,$2,$3,$4,$5,$6)
	`, s.ID, s.TotalValue, s.Cash, s.TotalPnL, s.TotalReturn, s.CapturedAt)
	return err
}

const accountQuery = "select cash, total_value, total_pnl, initial_capital, updated_at from account where id = 1"

const positionsQuery = "select symbol, qty, average_price, current_price, unrealized_pnl, realized_pnl, updated_at from positions order by symbol"

const orderQuery = "select order_id, symbol, side, order_type, qty, limit_price, status, filled_qty, avg_fill_price, reject_reason, created_at, filled_at from orders"

func scanAccount(row pgx.Row) (model.Account, error) {
	var a model.Account
	err := row.Scan(&a.Cash, &a.TotalValue, &a.TotalPnL, &a.InitialCapital, &a.UpdatedAt)
	return a, err
}

func collectPositions(rows pgx.Rows) ([]model.Position, error) {
	defer rows.Close()
	var out []model.Position
	for rows.Next() {
		var p model.Position
		if err := rows.Scan(&p.Symbol, &p.Quantity, &p.AveragePrice, &p.CurrentPrice, &p.UnrealizedPnL, &p.RealizedPnL, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (model.Order, bool, error) {
	o, err := scanOrderRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return o, false, nil
	}
	if err != nil {
		return o, false, err
	}
	return o, true, nil
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		o, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrderRow(row pgx.Row) (model.Order, error) {
	var o model.Order
	var side, typ, status, reason string
	var limitPrice *decimal.Decimal
	var filledAt *time.Time
	err := row.Scan(&o.ID, &o.Symbol, &side, &typ, &o.Quantity, &limitPrice, &status, &o.FilledQuantity, &o.AvgFillPrice, &reason, &o.CreatedAt, &filledAt)
	if err != nil {
		return o, err
	}
	o.Side = types.OrderSide(side)
	o.Type = types.OrderType(typ)
	o.Status = types.OrderStatus(status)
	o.RejectReason = types.RejectReason(reason)
	o.LimitPrice = limitPrice
	o.FilledAt = filledAt
	return o, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
