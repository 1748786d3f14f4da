package marketdata

import (
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/guillermoguerrero1/ai-trading-agent/pkg/metrics"
)

// TickHandler receives price updates for a subscribed symbol.
type TickHandler func(symbol string, price decimal.Decimal)

// Bus is the in-memory price feed: it keeps the last known price per symbol
// and notifies subscribers on every publish. Handlers for one publish run in
// registration order. Handlers must not subscribe from within a callback.
type Bus struct {
	mu     sync.Mutex
	logger *zap.Logger
	subs   map[string][]TickHandler
	last   map[string]decimal.Decimal
}

// NewBus creates an empty price feed bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger: logger.Named("pricebus"),
		subs:   make(map[string][]TickHandler),
		last:   make(map[string]decimal.Decimal),
	}
}

// Publish records the new last price for a symbol and synchronously invokes
// every subscriber registered for it.
func (b *Bus) Publish(symbol string, price decimal.Decimal) {
	b.mu.Lock()
	b.last[symbol] = price
	handlers := make([]TickHandler, len(b.subs[symbol]))
	copy(handlers, b.subs[symbol])
	b.mu.Unlock()

	metrics.TicksPublished.Inc()
	for _, fn := range handlers {
		fn(symbol, price)
	}
}

// Subscribe registers a handler for a symbol. If a last price already exists
// the handler is invoked once with it immediately, so a newly armed resting
// order is checked without waiting for the next tick.
func (b *Bus) Subscribe(symbol string, fn TickHandler) {
	b.mu.Lock()
	b.subs[symbol] = append(b.subs[symbol], fn)
	last, ok := b.last[symbol]
	b.mu.Unlock()

	if ok {
		fn(symbol, last)
	}
}

// Last returns the most recent published price for a symbol.
func (b *Bus) Last(symbol string) (decimal.Decimal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.last[symbol]
	return p, ok
}

// Snapshot returns a copy of all last known prices.
func (b *Bus) Snapshot() map[string]decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(b.last))
	for s, p := range b.last {
		out[s] = p
	}
	return out
}
