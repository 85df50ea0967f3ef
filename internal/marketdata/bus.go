package marketdata

import (
	"sync"
)

// Event is a fanout message for observers: quote updates, order transitions,
// executed trades and portfolio snapshots.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	EventQuote    = "quote"
	EventOrder    = "order"
	EventTrade    = "trade"
	EventSnapshot = "snapshot"
)

// Bus is a non-blocking fanout: slow subscribers drop events rather than
// stall publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 100)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.RUnlock()
}
