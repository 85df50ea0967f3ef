// Package metrics exposes Prometheus instrumentation for the trading core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	OrdersPlaced    prometheus.Counter
	OrdersFilled    prometheus.Counter
	OrdersCancelled prometheus.Counter
	OrdersRejected  *prometheus.CounterVec
	TradesExecuted  prometheus.Counter
	SignalsReceived *prometheus.CounterVec
	QuotesIngested  prometheus.Counter
	PortfolioValue  prometheus.Gauge
	PortfolioCash   prometheus.Gauge
}

// New registers all collectors with reg. Tests pass a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_orders_placed_total",
			Help: "Orders admitted and created",
		}),
		OrdersFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_orders_filled_total",
			Help: "Orders that reached FILLED",
		}),
		OrdersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_orders_cancelled_total",
			Help: "Orders cancelled before any fill",
		}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_orders_rejected_total",
			Help: "Orders rejected, by reason",
		}, []string{"reason"}),
		TradesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_trades_executed_total",
			Help: "Trades committed to the ledger",
		}),
		SignalsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_signals_received_total",
			Help: "Trading signals consumed, by action",
		}, []string{"action"}),
		QuotesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_quotes_ingested_total",
			Help: "Market quotes ingested",
		}),
		PortfolioValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_portfolio_total_value",
			Help: "Portfolio total value after the latest committed mutation",
		}),
		PortfolioCash: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_portfolio_cash",
			Help: "Account cash after the latest committed mutation",
		}),
	}
	reg.MustRegister(
		m.OrdersPlaced,
		m.OrdersFilled,
		m.OrdersCancelled,
		m.OrdersRejected,
		m.TradesExecuted,
		m.SignalsReceived,
		m.QuotesIngested,
		m.PortfolioValue,
		m.PortfolioCash,
	)
	return m
}

// ObserveSnapshot updates the portfolio gauges from a committed snapshot.
func (m *Metrics) ObserveSnapshot(totalValue, cash float64) {
	m.PortfolioValue.Set(totalValue)
	m.PortfolioCash.Set(cash)
}
