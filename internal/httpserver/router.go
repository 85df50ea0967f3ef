package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"autotrader/internal/auth"
	"autotrader/internal/health"
	"autotrader/internal/marketdata"
	"autotrader/internal/orders"
	"autotrader/internal/signal"
)

type RouterDeps struct {
	AuthHandler   *auth.Handler
	OrderHandler  *orders.Handler
	MarketHandler *marketdata.Handler
	SignalHandler *signal.Handler
	HealthHandler *health.Handler
	AuthService   *auth.Service
	InternalToken string
	WSHandler     http.Handler
	MetricsHTTP   http.Handler
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Use(SecurityHeaders)
	r.Use(RateLimitMiddleware)

	r.Get("/health", d.HealthHandler.Health)
	r.Get("/health/live", d.HealthHandler.Live)
	if d.MetricsHTTP == nil {
		d.MetricsHTTP = promhttp.Handler()
	}
	r.Get("/metrics", d.MetricsHTTP.ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/login", d.AuthHandler.Login)
		r.Get("/ws", d.WSHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.AuthService))
			r.Post("/orders", d.OrderHandler.Place)
			r.Get("/orders", d.OrderHandler.List)
			r.Get("/orders/{orderID}", d.OrderHandler.Get)
			r.Post("/orders/{orderID}/cancel", d.OrderHandler.Cancel)
			r.Get("/positions", d.OrderHandler.Positions)
			r.Get("/portfolio", d.OrderHandler.Portfolio)
			r.Get("/snapshots", d.OrderHandler.Snapshots)
			r.Get("/account", d.OrderHandler.Account)
			r.Get("/trades", d.OrderHandler.Trades)
			r.Get("/quotes", d.MarketHandler.Quotes)
		})

		r.Group(func(r chi.Router) {
			r.Use(InternalAuth(d.InternalToken))
			r.Post("/internal/signals", d.SignalHandler.Ingest)
			r.Post("/internal/quotes", d.MarketHandler.IngestQuote)
		})
	})

	return r
}
