// Package supervisor orchestrates the order lifecycle end to end: halt
// checks, guardrail evaluation, delegation to the execution adapter, the
// in-memory event log and position/account caches.
package supervisor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guillermoguerrero1/ai-trading-agent/internal/broker"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/mlgate"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/model"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/riskguard"
	"github.com/guillermoguerrero1/ai-trading-agent/pkg/metrics"
)

const maxEvents = 1000

// Supervisor ties the guardrail evaluator and the execution adapter together
// behind a single submission entry point.
type Supervisor struct {
	mu     sync.Mutex
	logger *zap.Logger
	guard  *riskguard.Guard
	ad     broker.ExecutionAdapter
	gate   *mlgate.Gate

	halted     bool
	haltReason string

	events    []model.Event
	orders    map[string]*model.Order
	positions map[string]model.Position
	account   *model.Account

	subs   map[int]chan broker.StatusUpdate
	nextID int
}

// New creates a supervisor over the given adapter. The gate may be nil.
func New(logger *zap.Logger, guard *riskguard.Guard, ad broker.ExecutionAdapter, gate *mlgate.Gate) *Supervisor {
	return &Supervisor{
		logger:    logger.Named("supervisor"),
		guard:     guard,
		ad:        ad,
		gate:      gate,
		orders:    make(map[string]*model.Order),
		positions: make(map[string]model.Position),
		subs:      make(map[int]chan broker.StatusUpdate),
	}
}

// Start connects the adapter and begins consuming its status stream.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.ad.Connect(ctx); err != nil {
		return err
	}
	go s.consumeStatus(ctx)
	s.logEvent(model.EventTypeSystem, model.EventSeverityLow, "Supervisor service started", nil)
	s.logger.Info("supervisor started", zap.String("broker", s.ad.Name()))
	return nil
}

// Stop disconnects the adapter.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.logEvent(model.EventTypeSystem, model.EventSeverityLow, "Supervisor service stopped", nil)
	return s.ad.Disconnect(ctx)
}

// SubmitOrder runs the full submission path: halt check, guardrail
// evaluation, model scoring, delegation to the adapter.
func (s *Supervisor) SubmitOrder(ctx context.Context, req *model.OrderRequest) (*model.Order, error) {
	if halted, reason := s.haltState(); halted {
		metrics.OrdersRejected.WithLabelValues("halted").Inc()
		return nil, &model.HaltedError{Reason: reason}
	}

	if err := req.Validate(); err != nil {
		metrics.OrdersRejected.WithLabelValues("validation").Inc()
		return nil, err
	}

	candidate := s.candidateFrom(req)
	decision := s.guard.Check(candidate)
	if !decision.Allowed {
		s.guard.RecordViolation(decision.Violation)
		reason := "guardrail"
		if decision.Violation != nil {
			reason = decision.Violation.Type
		}
		metrics.OrdersRejected.WithLabelValues(reason).Inc()
		s.logEvent(model.EventTypeRisk, model.EventSeverityHigh,
			fmt.Sprintf("Order rejected: %s", decision.Reason),
			map[string]any{"symbol": req.Symbol, "violation": decision.Violation})
		return nil, &model.GuardrailRejection{Decision: decision}
	}

	s.attachModelScore(req, candidate)

	order, err := s.ad.PlaceOrder(ctx, req)
	if err != nil {
		metrics.OrdersRejected.WithLabelValues("execution").Inc()
		s.logEvent(model.EventTypeError, model.EventSeverityHigh,
			fmt.Sprintf("Order placement failed: %v", err), map[string]any{"symbol": req.Symbol})
		return nil, err
	}

	s.mu.Lock()
	s.orders[order.ID] = order.Clone()
	s.mu.Unlock()

	metrics.OrdersSubmitted.WithLabelValues(order.Side).Inc()
	s.logEvent(model.EventTypeOrder, model.EventSeverityLow,
		fmt.Sprintf("Order submitted: %s %s %s", order.Symbol, order.Side, order.Quantity),
		map[string]any{"order_id": order.ID})

	return order, nil
}

// candidateFrom builds the guardrail candidate. The estimated price is the
// request price; it is zero for market orders, matching the conservative
// treatment of unknown notional. Risk and reward-to-risk features are
// derived from entry, stop and target prices when all are present.
func (s *Supervisor) candidateFrom(req *model.OrderRequest) riskguard.Candidate {
	c := riskguard.Candidate{
		Symbol:     req.Symbol,
		Quantity:   req.Quantity,
		Price:      req.Price,
		Confidence: req.Confidence,
	}
	if c.Confidence == 0 {
		c.Confidence = 1.0
	}

	entry := req.Price.InexactFloat64()
	stop := req.StopPrice.InexactFloat64()
	if entry > 0 && stop > 0 {
		c.Risk = math.Abs(entry - stop)
		if target, ok := floatFromMetadata(req.Metadata, "target_price"); ok && c.Risk > 0 {
			c.RR = math.Abs(target-entry) / c.Risk
			c.HasModel = true
		}
	}
	return c
}

// attachModelScore records the gate's score in the order metadata so the
// trade log can persist it alongside the fill.
func (s *Supervisor) attachModelScore(req *model.OrderRequest, c riskguard.Candidate) {
	if s.gate == nil || !c.HasModel {
		return
	}
	score, err := s.gate.Score(c.Risk, c.RR)
	if err != nil {
		return
	}
	if req.Metadata == nil {
		req.Metadata = make(map[string]any)
	}
	req.Metadata["model_score"] = score
	if v := s.gate.Version(); v != "" {
		req.Metadata["model_version"] = v
	}
}

func floatFromMetadata(meta map[string]any, key string) (float64, bool) {
	if meta == nil {
		return 0, false
	}
	switch v := meta[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// CancelOrder cancels a cached order that has not reached a terminal state.
func (s *Supervisor) CancelOrder(ctx context.Context, orderID string) model.CancellationResult {
	s.mu.Lock()
	order, ok := s.orders[orderID]
	if ok && order.Terminal() {
		status := order.Status
		s.mu.Unlock()
		return model.CancellationResult{
			Success: false,
			Reason:  fmt.Sprintf("order %s cannot be cancelled (status: %s)", orderID, status),
		}
	}
	s.mu.Unlock()
	if !ok {
		return model.CancellationResult{Success: false, Reason: fmt.Sprintf("order %s not found", orderID)}
	}

	if err := s.ad.CancelOrder(ctx, orderID); err != nil {
		return model.CancellationResult{Success: false, Reason: err.Error()}
	}

	now := time.Now().UTC()
	s.mu.Lock()
	if cached, ok := s.orders[orderID]; ok {
		cached.Status = model.OrderStatusCancelled
		cached.CancelledAt = &now
		cached.UpdatedAt = now
	}
	s.mu.Unlock()

	s.logEvent(model.EventTypeOrder, model.EventSeverityLow,
		fmt.Sprintf("Order cancelled: %s", orderID), map[string]any{"order_id": orderID})
	return model.CancellationResult{Success: true, Reason: "Order cancelled successfully"}
}

// Order looks up a single order, preferring the adapter's copy over the
// local cache.
func (s *Supervisor) Order(ctx context.Context, orderID string) (*model.Order, error) {
	if order, err := s.ad.Order(ctx, orderID); err == nil {
		return order, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.orders[orderID]; ok {
		return cached.Clone(), nil
	}
	return nil, &model.NotFoundError{OrderID: orderID}
}

// Orders lists orders through the adapter, falling back to the local cache
// when the adapter cannot serve the request.
func (s *Supervisor) Orders(ctx context.Context, filter *model.OrderFilter) ([]*model.Order, error) {
	orders, err := s.ad.Orders(ctx, filter)
	if err == nil {
		return orders, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Order, 0, len(s.orders))
	for _, order := range s.orders {
		if filter == nil || filter.Match(order) {
			out = append(out, order.Clone())
		}
	}
	return out, nil
}

// Positions lists positions through the adapter, caching the last good
// snapshot.
func (s *Supervisor) Positions(ctx context.Context) ([]*model.Position, error) {
	positions, err := s.ad.Positions(ctx)
	if err == nil {
		s.mu.Lock()
		s.positions = make(map[string]model.Position, len(positions))
		for _, p := range positions {
			s.positions[p.Symbol] = *p
		}
		s.mu.Unlock()
		return positions, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Position, 0, len(s.positions))
	for _, p := range s.positions {
		cp := p
		out = append(out, &cp)
	}
	return out, nil
}

// Account returns the account through the adapter, caching the last good
// snapshot.
func (s *Supervisor) Account(ctx context.Context) (*model.Account, error) {
	account, err := s.ad.Account(ctx)
	if err == nil {
		s.mu.Lock()
		s.account = account
		s.mu.Unlock()
		return account, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == nil {
		return nil, err
	}
	cp := *s.account
	return &cp, nil
}

// HaltTrading sets the manual halt override, independent of the guardrail
// evaluator's violation-driven halt.
func (s *Supervisor) HaltTrading(reason string) {
	s.mu.Lock()
	s.halted = true
	s.haltReason = reason
	s.mu.Unlock()

	s.logEvent(model.EventTypeSystem, model.EventSeverityHigh,
		fmt.Sprintf("Trading halted: %s", reason), map[string]any{"reason": reason})
	s.logger.Warn("trading halted", zap.String("reason", reason))
}

// ResumeTrading clears the manual halt override. A violation-driven halt is
// only cleared by resolving the violations.
func (s *Supervisor) ResumeTrading() {
	s.mu.Lock()
	s.halted = false
	s.haltReason = ""
	s.mu.Unlock()

	s.logEvent(model.EventTypeSystem, model.EventSeverityLow, "Trading resumed", nil)
	s.logger.Info("trading resumed")
}

// Halted reports whether trading is halted manually or by the guard.
func (s *Supervisor) Halted() bool {
	halted, _ := s.haltState()
	return halted
}

func (s *Supervisor) haltState() (bool, string) {
	s.mu.Lock()
	manual, reason := s.halted, s.haltReason
	s.mu.Unlock()
	if manual {
		return true, reason
	}
	if s.guard.Halted() {
		return true, "unresolved critical guardrail violation"
	}
	return false, ""
}

// Events lists log entries matching the filter, oldest first.
func (s *Supervisor) Events(filter *model.EventFilter) []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Event, 0, len(s.events))
	for i := range s.events {
		if filter == nil || filter.Match(&s.events[i]) {
			out = append(out, s.events[i])
		}
	}
	if filter != nil {
		if filter.Offset >= len(out) {
			return nil
		}
		out = out[filter.Offset:]
		if filter.Limit > 0 && filter.Limit < len(out) {
			out = out[:filter.Limit]
		}
	}
	return out
}

// SubscribeUpdates registers a consumer for broker status updates. The
// returned cancel function must be called to release the subscription.
func (s *Supervisor) SubscribeUpdates() (<-chan broker.StatusUpdate, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan broker.StatusUpdate, 64)
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
}

// Status summarizes the supervisor state.
func (s *Supervisor) Status() map[string]any {
	s.mu.Lock()
	orders, events := len(s.orders), len(s.events)
	s.mu.Unlock()

	return map[string]any{
		"halted":       s.Halted(),
		"broker":       s.ad.Name(),
		"total_orders": orders,
		"total_events": events,
		"risk_guard":   s.guard.Status(),
	}
}

// consumeStatus drains the adapter status stream, maintaining the caches,
// the event log and the guard's daily counters, then fans updates out to
// stream subscribers.
func (s *Supervisor) consumeStatus(ctx context.Context) {
	stream := s.ad.StatusStream()
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-stream:
			if !ok {
				return
			}
			s.handleUpdate(update)
		}
	}
}

func (s *Supervisor) handleUpdate(update broker.StatusUpdate) {
	switch update.Type {
	case broker.UpdateOrderFilled:
		if update.Fill == nil {
			break
		}
		fill := update.Fill
		s.mu.Lock()
		if cached, ok := s.orders[fill.OrderID]; ok {
			cached.Status = model.OrderStatusFilled
			cached.FilledQuantity = fill.Quantity
			cached.Commission = fill.Commission
			cached.UpdatedAt = update.Timestamp
			ts := update.Timestamp
			cached.FilledAt = &ts
		}
		s.mu.Unlock()

		s.guard.RecordTrade(riskguard.TradeRecord{
			Symbol:       fill.Symbol,
			Quantity:     fill.Quantity,
			Price:        fill.Price,
			RealizedPnL:  fill.RealizedPnL,
			EquityChange: fill.RealizedPnL.Sub(fill.Commission),
		})
		s.logEvent(model.EventTypeTrade, model.EventSeverityLow,
			fmt.Sprintf("Order executed: %s %s %s @ %s", fill.Symbol, fill.Side, fill.Quantity, fill.Price),
			map[string]any{
				"order_id":     fill.OrderID,
				"price":        fill.Price.InexactFloat64(),
				"realized_pnl": fill.RealizedPnL.InexactFloat64(),
			})

	case broker.UpdateOrderCancelled:
		if update.Cancel == nil {
			break
		}
		s.mu.Lock()
		if cached, ok := s.orders[update.Cancel.OrderID]; ok && !cached.Terminal() {
			cached.Status = model.OrderStatusCancelled
			ts := update.Timestamp
			cached.CancelledAt = &ts
			cached.UpdatedAt = update.Timestamp
		}
		s.mu.Unlock()

	case broker.UpdateMarketUpdate:
		s.mu.Lock()
		for symbol, price := range update.Prices {
			if pos, ok := s.positions[symbol]; ok {
				pos.MarkToMarket(price, update.Timestamp)
				s.positions[symbol] = pos
			}
		}
		s.mu.Unlock()
	}

	s.fanOut(update)
}

func (s *Supervisor) fanOut(update broker.StatusUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- update:
		default:
		}
	}
}

// logEvent appends to the fixed-capacity event ring, dropping the oldest
// entries first.
func (s *Supervisor) logEvent(eventType, severity, message string, data map[string]any) {
	event := model.Event{
		ID:        uuid.New(),
		Type:      eventType,
		Severity:  severity,
		Message:   message,
		Data:      data,
		Source:    "supervisor",
		Timestamp: time.Now().UTC(),
	}

	s.mu.Lock()
	s.events = append(s.events, event)
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
	s.mu.Unlock()
}
