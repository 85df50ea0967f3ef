package marketdata

import (
	"sync"

	"github.com/shopspring/decimal"

	"autotrader/internal/model"
)

// Board holds the last known quote per symbol. It is a handle, not a global:
// each portfolio wiring gets its own.
type Board struct {
	mu     sync.RWMutex
	quotes map[string]model.Quote
}

func NewBoard() *Board {
	return &Board{quotes: make(map[string]model.Quote)}
}

func (b *Board) Set(q model.Quote) {
	if q.Symbol == "" || q.Price.LessThanOrEqual(decimal.Zero) {
		return
	}
	b.mu.Lock()
	b.quotes[q.Symbol] = q
	b.mu.Unlock()
}

func (b *Board) Last(symbol string) (model.Quote, bool) {
	b.mu.RLock()
	q, ok := b.quotes[symbol]
	b.mu.RUnlock()
	return q, ok
}

// Symbols returns the symbols with a known quote.
func (b *Board) Symbols() []string {
	b.mu.RLock()
	out := make([]string, 0, len(b.quotes))
	for s := range b.quotes {
		out = append(out, s)
	}
	b.mu.RUnlock()
	return out
}
