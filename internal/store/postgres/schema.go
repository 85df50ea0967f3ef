package postgres

const schema = `
create table if not exists account (
	id int primary key,
	cash numeric not null check (cash >= 0),
	total_value numeric not null,
	total_pnl numeric not null default 0,
	initial_capital numeric not null,
	updated_at timestamptz not null
);

create table if not exists positions (
	symbol text primary key,
	qty numeric not null check (qty >= 0),
	average_price numeric not null,
	current_price numeric not null default 0,
	unrealized_pnl numeric not null default 0,
	realized_pnl numeric not null default 0,
	updated_at timestamptz not null
);

create table if not exists orders (
	order_id text primary key,
	symbol text not null,
	side text not null,
	order_type text not null,
	qty numeric not null check (qty > 0),
	limit_price numeric,
	status text not null,
	filled_qty numeric not null default 0 check (filled_qty <= qty),
	avg_fill_price numeric not null default 0,
	reject_reason text not null default '',
	created_at timestamptz not null,
	filled_at timestamptz
);
create index if not exists idx_orders_status on orders (status);
create index if not exists idx_orders_symbol on orders (symbol);

create table if not exists trades (
	id text primary key,
	order_id text not null references orders (order_id),
	symbol text not null,
	side text not null,
	qty numeric not null,
	price numeric not null,
	commission numeric not null default 0,
	realized_pnl numeric not null default 0,
	executed_at timestamptz not null
);
create index if not exists idx_trades_executed_at on trades (executed_at);

create table if not exists portfolio_snapshots (
	id text primary key,
	total_value numeric not null,
	cash numeric not null,
	total_pnl numeric not null default 0,
	total_return numeric not null default 0,
	captured_at timestamptz not null
);
create index if not exists idx_snapshots_captured_at on portfolio_snapshots (captured_at);
`
