package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"autotrader/internal/model"
)

// QuoteListener reacts to a new quote: pending-limit re-evaluation, stop
// trigger checks, mark-to-market. Listeners run synchronously and in
// registration order so causally dependent work stays ordered.
type QuoteListener interface {
	OnQuote(ctx context.Context, q model.Quote)
}

// Service ingests quotes, updates the board and dispatches to listeners and
// bus observers.
type Service struct {
	board     *Board
	bus       *Bus
	listeners []QuoteListener
	ingested  prometheus.Counter
}

func NewService(board *Board, bus *Bus) *Service {
	return &Service{board: board, bus: bus}
}

// Register adds a listener. Not safe to call after ingestion has started.
func (s *Service) Register(l QuoteListener) {
	s.listeners = append(s.listeners, l)
}

// SetIngestCounter wires the ingestion counter. Optional.
func (s *Service) SetIngestCounter(c prometheus.Counter) {
	s.ingested = c
}

// Ingest records a quote and fans it out.
func (s *Service) Ingest(ctx context.Context, q model.Quote) error {
	if q.Symbol == "" {
		return errors.New("symbol is required")
	}
	if q.Price.LessThanOrEqual(decimal.Zero) {
		return errors.New("price must be positive")
	}
	if q.At.IsZero() {
		q.At = time.Now().UTC()
	}
	s.board.Set(q)
	if s.ingested != nil {
		s.ingested.Inc()
	}
	for _, l := range s.listeners {
		l.OnQuote(ctx, q)
	}
	s.bus.Publish(Event{Type: EventQuote, Data: q})
	return nil
}
