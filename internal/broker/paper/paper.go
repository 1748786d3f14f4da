// Package paper implements the simulated order matching engine: it owns the
// synthetic account, positions and orders, resolves market orders after a
// short simulated latency and resolves resting limit/stop orders against
// price feed updates.
package paper

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/guillermoguerrero1/ai-trading-agent/internal/broker"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/marketdata"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/model"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/tradelog"
	"github.com/guillermoguerrero1/ai-trading-agent/pkg/metrics"
)

const brokerName = "paper"

// defaultPrice is used for symbols that have never traded nor ticked.
var defaultPrice = decimal.NewFromInt(100)

// Config carries the paper broker's construction parameters.
type Config struct {
	AccountID         string
	InitialCapital    decimal.Decimal
	CommissionRate    decimal.Decimal // e.g. 0.001 for 0.1%
	Currency          string
	InitialPrices     map[string]decimal.Decimal
	HeartbeatInterval time.Duration
}

// Broker is the paper execution adapter. One mutex serializes all state
// mutation, so a check-then-fill is a single atomic step and a concurrent
// price update racing an already-filled order is a no-op.
type Broker struct {
	mu     sync.Mutex
	logger *zap.Logger
	bus    *marketdata.Bus
	tlog   tradelog.Sink

	accountID      string
	commissionRate decimal.Decimal
	connected      bool
	cancelWorker   context.CancelFunc

	orders    map[string]*model.Order
	positions map[string]*model.Position
	account   model.Account
	prices    map[string]decimal.Decimal
	feeds     map[string]bool

	status    chan broker.StatusUpdate
	heartbeat time.Duration
	latency   func() time.Duration
	rng       *rand.Rand
}

// New creates a disconnected paper broker. The trade-log sink may be nil.
func New(logger *zap.Logger, bus *marketdata.Bus, tlog tradelog.Sink, cfg Config) *Broker {
	if cfg.AccountID == "" {
		cfg.AccountID = "paper-account-001"
	}
	if cfg.CommissionRate.IsZero() {
		cfg.CommissionRate = decimal.NewFromFloat(0.001)
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 5 * time.Second
	}

	b := &Broker{
		logger:         logger.Named("paper"),
		bus:            bus,
		tlog:           tlog,
		accountID:      cfg.AccountID,
		commissionRate: cfg.CommissionRate,
		orders:         make(map[string]*model.Order),
		positions:      make(map[string]*model.Position),
		prices:         make(map[string]decimal.Decimal),
		feeds:          make(map[string]bool),
		status:         make(chan broker.StatusUpdate, 256),
		heartbeat:      cfg.HeartbeatInterval,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		account: model.Account{
			AccountID:       cfg.AccountID,
			Equity:          cfg.InitialCapital,
			Cash:            cfg.InitialCapital,
			BuyingPower:     cfg.InitialCapital,
			MarginUsed:      decimal.Zero,
			MarginAvailable: cfg.InitialCapital,
			Currency:        cfg.Currency,
			Broker:          brokerName,
			UpdatedAt:       time.Now().UTC(),
		},
	}
	for symbol, price := range cfg.InitialPrices {
		b.prices[symbol] = price
	}
	b.latency = func() time.Duration {
		return time.Duration(100+b.rng.Intn(400)) * time.Millisecond
	}
	return b
}

// Name returns the adapter name.
func (b *Broker) Name() string { return brokerName }

// Connect marks the broker connected and starts the market-update worker.
func (b *Broker) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connected {
		return nil
	}
	b.connected = true

	workerCtx, cancel := context.WithCancel(context.Background())
	b.cancelWorker = cancel
	go b.marketUpdateWorker(workerCtx)

	b.logger.Info("connected to paper broker")
	return nil
}

// Disconnect stops the worker and marks the broker disconnected.
func (b *Broker) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return nil
	}
	b.connected = false
	if b.cancelWorker != nil {
		b.cancelWorker()
		b.cancelWorker = nil
	}
	b.logger.Info("disconnected from paper broker")
	return nil
}

// PlaceOrder accepts an order. Market orders fill after a short simulated
// latency; limit and stop orders rest until a qualifying price update or
// cancellation. STOP_LIMIT orders are accepted but never auto-fill.
func (b *Broker) PlaceOrder(ctx context.Context, req *model.OrderRequest) (*model.Order, error) {
	now := time.Now().UTC()

	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return nil, &model.ExecutionError{Broker: brokerName, Op: "place_order", Err: model.ErrNotConnected}
	}

	tif := req.TimeInForce
	if tif == "" {
		tif = model.TimeInForceDay
	}
	order := &model.Order{
		ID:             fmt.Sprintf("paper-%s", uuid.New()),
		ClientOrderID:  req.ClientOrderID,
		Symbol:         req.Symbol,
		Side:           req.Side,
		Quantity:       req.Quantity,
		FilledQuantity: decimal.Zero,
		Type:           req.OrderType,
		Price:          req.Price,
		StopPrice:      req.StopPrice,
		Status:         model.OrderStatusSubmitted,
		TimeInForce:    tif,
		CreatedAt:      now,
		UpdatedAt:      now,
		Commission:     decimal.Zero,
		Broker:         brokerName,
		Metadata:       req.Metadata,
	}
	if order.Type != model.OrderTypeMarket {
		order.Status = model.OrderStatusPending
	}
	b.orders[order.ID] = order
	entry := b.priceLocked(order.Symbol)
	result := order.Clone()
	b.mu.Unlock()

	b.logger.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("side", order.Side),
		zap.String("type", order.Type),
		zap.String("quantity", order.Quantity.String()))

	b.logOpen(order, entry)

	switch order.Type {
	case model.OrderTypeMarket:
		go b.fillMarketOrder(order.ID)
	default:
		b.armResting(order.Symbol)
	}

	return result, nil
}

func (b *Broker) logOpen(order *model.Order, marketPrice decimal.Decimal) {
	if b.tlog == nil {
		return
	}
	entry := marketPrice
	if order.Price.GreaterThan(decimal.Zero) {
		entry = order.Price
	}
	rec := tradelog.OpenRecord{
		OrderID: order.ID,
		Symbol:  order.Symbol,
		Side:    order.Side,
		Qty:     order.Quantity.InexactFloat64(),
		Entry:   entry.InexactFloat64(),
		Notes:   "paper.open",
	}
	if order.StopPrice.GreaterThan(decimal.Zero) {
		stop := order.StopPrice.InexactFloat64()
		rec.Stop = &stop
	}
	if target, ok := order.Metadata["target_price"].(float64); ok {
		rec.Target = &target
	}
	if score, ok := order.Metadata["model_score"].(float64); ok {
		rec.ModelScore = &score
	}
	if version, ok := order.Metadata["model_version"].(string); ok {
		rec.ModelVersion = version
	}
	go func() {
		if err := b.tlog.LogOpen(context.Background(), rec); err != nil {
			b.logger.Warn("trade log open failed", zap.String("order_id", rec.OrderID), zap.Error(err))
		}
	}()
}

func (b *Broker) logClose(orderID string, exitPrice decimal.Decimal, outcome string) {
	if b.tlog == nil {
		return
	}
	go func() {
		if err := b.tlog.LogClose(context.Background(), orderID, exitPrice.InexactFloat64(), outcome); err != nil {
			b.logger.Warn("trade log close failed", zap.String("order_id", orderID), zap.Error(err))
		}
	}()
}

// fillMarketOrder fills a market order at the current market price after the
// simulated latency, unless it was cancelled in the meantime.
func (b *Broker) fillMarketOrder(orderID string) {
	if d := b.latency(); d > 0 {
		time.Sleep(d)
	}

	b.mu.Lock()
	order, ok := b.orders[orderID]
	if !ok || order.Terminal() {
		b.mu.Unlock()
		return
	}
	price := b.priceLocked(order.Symbol)
	b.fillLocked(order, price)
	symbol := order.Symbol
	b.mu.Unlock()

	b.logClose(orderID, price, "fill")
	b.armResting(symbol)
}

// armResting guarantees a single bus subscription per symbol and evaluates
// resting orders against the most recent known price.
func (b *Broker) armResting(symbol string) {
	b.mu.Lock()
	subscribed := b.feeds[symbol]
	b.feeds[symbol] = true
	b.mu.Unlock()

	if !subscribed {
		// Subscribe delivers the last price immediately when one exists.
		b.bus.Subscribe(symbol, b.onTick)
		return
	}
	if last, ok := b.bus.Last(symbol); ok {
		b.onTick(symbol, last)
	}
}

// onTick is the single bus handler per symbol: it refreshes the mark price
// and re-evaluates every resting order for that symbol.
func (b *Broker) onTick(symbol string, price decimal.Decimal) {
	type closed struct {
		orderID string
		price   decimal.Decimal
	}
	var fills []closed

	b.mu.Lock()
	b.prices[symbol] = price
	if pos, ok := b.positions[symbol]; ok {
		pos.MarkToMarket(price, time.Now().UTC())
	}
	for _, order := range b.orders {
		if order.Symbol != symbol || order.Status != model.OrderStatusPending {
			continue
		}
		if b.shouldFill(order, price) {
			b.fillLocked(order, price)
			fills = append(fills, closed{orderID: order.ID, price: price})
		}
	}
	b.mu.Unlock()

	for _, f := range fills {
		b.logClose(f.orderID, f.price, "fill")
	}
}

// shouldFill is the fill predicate. Limit and stop orders execute at the
// market price that triggered them, modeling immediate marketable execution.
func (b *Broker) shouldFill(order *model.Order, market decimal.Decimal) bool {
	switch order.Type {
	case model.OrderTypeLimit:
		if order.Side == model.OrderSideBuy {
			return market.LessThanOrEqual(order.Price)
		}
		return market.GreaterThanOrEqual(order.Price)
	case model.OrderTypeStop:
		if order.Side == model.OrderSideBuy {
			return market.GreaterThanOrEqual(order.StopPrice)
		}
		return market.LessThanOrEqual(order.StopPrice)
	}
	// STOP_LIMIT resting behavior is not modeled; such orders only cancel.
	return false
}

// fillLocked executes an order at the given price and applies all
// bookkeeping in one critical section. Callers hold b.mu.
func (b *Broker) fillLocked(order *model.Order, price decimal.Decimal) {
	now := time.Now().UTC()

	order.Status = model.OrderStatusFilled
	order.FilledQuantity = order.Quantity
	order.FilledAt = &now
	order.UpdatedAt = now
	order.Commission = order.Quantity.Mul(price).Mul(b.commissionRate)

	b.prices[order.Symbol] = price
	realized := b.applyPositionLocked(order, price, now)
	b.applyAccountLocked(order, price, now)

	metrics.OrdersFilled.Inc()
	metrics.AccountEquity.Set(b.account.Equity.InexactFloat64())
	metrics.AccountCash.Set(b.account.Cash.InexactFloat64())

	b.logger.Info("order filled",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("price", price.String()),
		zap.String("commission", order.Commission.String()))

	b.emit(broker.StatusUpdate{
		Type:      broker.UpdateOrderFilled,
		Broker:    brokerName,
		Timestamp: now,
		Fill: &broker.Fill{
			OrderID:     order.ID,
			Symbol:      order.Symbol,
			Side:        order.Side,
			Quantity:    order.FilledQuantity,
			Price:       price,
			Commission:  order.Commission,
			RealizedPnL: realized,
		},
	})
}

// applyPositionLocked updates the position for a fill: volume-weighted
// averaging on same-direction adds, direct reduction floored at zero on
// opposite-direction trades (no short modeling). Returns the realized P&L
// of any reduction.
func (b *Broker) applyPositionLocked(order *model.Order, price decimal.Decimal, now time.Time) decimal.Decimal {
	pos, ok := b.positions[order.Symbol]
	if !ok {
		pos = &model.Position{
			Symbol:   order.Symbol,
			Quantity: decimal.Zero,
			AvgPrice: decimal.Zero,
			Broker:   brokerName,
		}
		b.positions[order.Symbol] = pos
	}

	realized := decimal.Zero
	if order.Side == model.OrderSideBuy {
		total := pos.Quantity.Add(order.Quantity)
		value := pos.Quantity.Mul(pos.AvgPrice).Add(order.Quantity.Mul(price))
		pos.AvgPrice = value.Div(total)
		pos.Quantity = total
	} else {
		reduced := decimal.Min(order.Quantity, pos.Quantity)
		realized = price.Sub(pos.AvgPrice).Mul(reduced)
		pos.RealizedPnL = pos.RealizedPnL.Add(realized)
		pos.Quantity = pos.Quantity.Sub(order.Quantity)
		if pos.Quantity.LessThanOrEqual(decimal.Zero) {
			pos.Quantity = decimal.Zero
		}
	}

	pos.MarkToMarket(price, now)
	if pos.Quantity.IsZero() {
		delete(b.positions, order.Symbol)
	}
	return realized
}

// applyAccountLocked debits or credits cash by notional plus or minus
// commission and recomputes equity as cash plus position market values.
func (b *Broker) applyAccountLocked(order *model.Order, price decimal.Decimal, now time.Time) {
	notional := order.Quantity.Mul(price)
	if order.Side == model.OrderSideBuy {
		b.account.Cash = b.account.Cash.Sub(notional.Add(order.Commission))
	} else {
		b.account.Cash = b.account.Cash.Add(notional.Sub(order.Commission))
	}

	total := decimal.Zero
	for _, pos := range b.positions {
		total = total.Add(pos.MarketValue)
	}
	b.account.Equity = b.account.Cash.Add(total)
	b.account.BuyingPower = b.account.Cash
	b.account.MarginAvailable = b.account.Cash
	b.account.UpdatedAt = now
}

// CancelOrder cancels an order that has not yet reached a terminal state.
// Cancellation is best effort against an in-flight fill; it never reverses a
// fill already applied.
func (b *Broker) CancelOrder(ctx context.Context, orderID string) error {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return &model.ExecutionError{Broker: brokerName, Op: "cancel_order", Err: model.ErrNotConnected}
	}
	order, ok := b.orders[orderID]
	if !ok {
		b.mu.Unlock()
		return &model.NotFoundError{OrderID: orderID}
	}
	if order.Terminal() {
		status := order.Status
		b.mu.Unlock()
		return fmt.Errorf("order %s cannot be cancelled (status: %s)", orderID, status)
	}

	now := time.Now().UTC()
	order.Status = model.OrderStatusCancelled
	order.CancelledAt = &now
	order.UpdatedAt = now
	exit := b.priceLocked(order.Symbol)
	symbol := order.Symbol
	b.emit(broker.StatusUpdate{
		Type:      broker.UpdateOrderCancelled,
		Broker:    brokerName,
		Timestamp: now,
		Cancel:    &broker.Cancel{OrderID: orderID, Symbol: symbol},
	})
	b.mu.Unlock()

	metrics.OrdersCancelled.Inc()
	b.logger.Info("order cancelled", zap.String("order_id", orderID))
	b.logClose(orderID, exit, "cancelled")
	return nil
}

// Order returns a copy of one order.
func (b *Broker) Order(ctx context.Context, orderID string) (*model.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	order, ok := b.orders[orderID]
	if !ok {
		return nil, &model.NotFoundError{OrderID: orderID}
	}
	return order.Clone(), nil
}

// Orders returns copies of orders matching the filter.
func (b *Broker) Orders(ctx context.Context, filter *model.OrderFilter) ([]*model.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*model.Order, 0, len(b.orders))
	for _, order := range b.orders {
		if filter == nil || filter.Match(order) {
			out = append(out, order.Clone())
		}
	}
	if filter != nil {
		out = paginate(out, filter.Offset, filter.Limit)
	}
	return out, nil
}

func paginate(orders []*model.Order, offset, limit int) []*model.Order {
	if offset >= len(orders) {
		return nil
	}
	orders = orders[offset:]
	if limit > 0 && limit < len(orders) {
		orders = orders[:limit]
	}
	return orders
}

// Positions returns copies of all open positions, marked to market.
func (b *Broker) Positions(ctx context.Context) ([]*model.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return nil, &model.ExecutionError{Broker: brokerName, Op: "get_positions", Err: model.ErrNotConnected}
	}

	now := time.Now().UTC()
	out := make([]*model.Position, 0, len(b.positions))
	for _, pos := range b.positions {
		if price, ok := b.prices[pos.Symbol]; ok {
			pos.MarkToMarket(price, now)
		}
		cp := *pos
		out = append(out, &cp)
	}
	return out, nil
}

// Account returns a copy of the account with equity recomputed from the
// current position marks.
func (b *Broker) Account(ctx context.Context) (*model.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return nil, &model.ExecutionError{Broker: brokerName, Op: "get_account", Err: model.ErrNotConnected}
	}

	total := decimal.Zero
	for _, pos := range b.positions {
		total = total.Add(pos.MarketValue)
	}
	b.account.Equity = b.account.Cash.Add(total)
	b.account.UpdatedAt = time.Now().UTC()
	cp := b.account
	return &cp, nil
}

// StatusStream returns the broker's status update channel.
func (b *Broker) StatusStream() <-chan broker.StatusUpdate {
	return b.status
}

func (b *Broker) priceLocked(symbol string) decimal.Decimal {
	if price, ok := b.prices[symbol]; ok {
		return price
	}
	if price, ok := b.bus.Last(symbol); ok {
		b.prices[symbol] = price
		return price
	}
	return defaultPrice
}

// emit sends a status update without blocking; a slow consumer drops the
// oldest semantics in favor of discarding the new update with a warning.
func (b *Broker) emit(update broker.StatusUpdate) {
	select {
	case b.status <- update:
	default:
		b.logger.Warn("status stream full, dropping update", zap.String("type", update.Type))
	}
}

// marketUpdateWorker periodically publishes a market snapshot to the status
// stream while connected.
func (b *Broker) marketUpdateWorker(ctx context.Context) {
	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.mu.Lock()
			prices := make(map[string]decimal.Decimal, len(b.prices))
			for symbol, price := range b.prices {
				prices[symbol] = price
			}
			b.mu.Unlock()

			b.emit(broker.StatusUpdate{
				Type:      broker.UpdateMarketUpdate,
				Broker:    brokerName,
				Timestamp: time.Now().UTC(),
				Prices:    prices,
			})
		}
	}
}
