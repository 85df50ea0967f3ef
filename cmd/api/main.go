package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"autotrader/internal/auth"
	"autotrader/internal/config"
	"autotrader/internal/db"
	"autotrader/internal/execution"
	"autotrader/internal/health"
	"autotrader/internal/httpserver"
	"autotrader/internal/ledger"
	"autotrader/internal/marketdata"
	"autotrader/internal/metrics"
	"autotrader/internal/orders"
	"autotrader/internal/risk"
	signaladapter "autotrader/internal/signal"
	"autotrader/internal/store/memory"
	"autotrader/internal/store/postgres"
)

func main() {
	startedAt := time.Now().UTC()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()

	var (
		store ledger.Store
		pool  *pgxpool.Pool
	)
	if cfg.DBDSN != "" {
		pool, err = db.NewPool(ctx, cfg.DBDSN)
		if err != nil {
			log.Fatal(err)
		}
		defer pool.Close()
		pg := postgres.NewStore(pool)
		if err := pg.Init(ctx, cfg.InitialCapital); err != nil {
			log.Fatal(err)
		}
		store = pg
		log.Printf("ledger store: postgres")
	} else {
		store = memory.NewStore(cfg.InitialCapital)
		log.Printf("ledger store: in-memory")
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	bus := marketdata.NewBus()
	board := marketdata.NewBoard()
	ledgerSvc := ledger.New(store, board)
	gate := risk.NewGate(cfg.MaxPositionFraction)
	engine := execution.NewEngine(cfg.CommissionRate)
	orderSvc := orders.NewService(ledgerSvc, gate, engine, board, bus, m)
	adapter := signaladapter.NewAdapter(orderSvc, ledgerSvc, board, signaladapter.Config{
		MinConfidence:       cfg.MinConfidence,
		MaxPositionFraction: cfg.MaxPositionFraction,
		StopLossPct:         cfg.StopLossPct,
		TakeProfitPct:       cfg.TakeProfitPct,
	}, m)

	marketSvc := marketdata.NewService(board, bus)
	// Listener order matters: open orders resolve against the new quote
	// before exit levels are checked against it.
	marketSvc.Register(orderSvc)
	marketSvc.Register(adapter)
	marketSvc.SetIngestCounter(m.QuotesIngested)

	authSvc := auth.NewService(cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL, cfg.OperatorHash)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandler:   auth.NewHandler(authSvc),
		OrderHandler:  orders.NewHandler(orderSvc),
		MarketHandler: marketdata.NewHandler(marketSvc, board),
		SignalHandler: signaladapter.NewHandler(adapter),
		HealthHandler: health.NewHandler(pool, startedAt, cfg.HTTPAddr),
		AuthService:   authSvc,
		InternalToken: cfg.InternalToken,
		WSHandler:     httpserver.NewWSHandler(bus, authSvc, cfg.WebSocketOrigin),
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	log.Printf("server listening on %s", cfg.HTTPAddr)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
