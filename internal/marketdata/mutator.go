package marketdata

import (
	"context"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Mutator drives resting-order evaluation in the absence of real market data
// by perturbing simulated prices with a small random walk and republishing
// them to the bus on a fixed interval.
type Mutator struct {
	logger   *zap.Logger
	bus      *Bus
	interval time.Duration
	maxPct   float64
	rng      *rand.Rand
}

// NewMutator seeds the bus with the initial prices and returns a mutator
// that perturbs each price by up to ±maxPct per tick.
func NewMutator(logger *zap.Logger, bus *Bus, initial map[string]decimal.Decimal, interval time.Duration, maxPct float64) *Mutator {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxPct <= 0 {
		maxPct = 0.01
	}
	for symbol, price := range initial {
		bus.Publish(symbol, price)
	}
	return &Mutator{
		logger:   logger.Named("mutator"),
		bus:      bus,
		interval: interval,
		maxPct:   maxPct,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run mutates prices until the context is cancelled.
func (m *Mutator) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("price mutator started",
		zap.Duration("interval", m.interval),
		zap.Float64("max_pct", m.maxPct))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("price mutator stopped")
			return
		case <-ticker.C:
			m.step()
		}
	}
}

func (m *Mutator) step() {
	for symbol, price := range m.bus.Snapshot() {
		pct := (m.rng.Float64()*2 - 1) * m.maxPct
		next := price.Mul(decimal.NewFromFloat(1 + pct))
		m.bus.Publish(symbol, next)
	}
}
