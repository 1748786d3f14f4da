package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order sides, types, statuses and time in force options.
const (
	OrderSideBuy  = "BUY"
	OrderSideSell = "SELL"

	OrderTypeMarket    = "MARKET"
	OrderTypeLimit     = "LIMIT"
	OrderTypeStop      = "STOP"
	OrderTypeStopLimit = "STOP_LIMIT"

	OrderStatusPending         = "PENDING"
	OrderStatusSubmitted       = "SUBMITTED"
	OrderStatusFilled          = "FILLED"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusCancelled       = "CANCELLED"
	OrderStatusRejected        = "REJECTED"
	OrderStatusExpired         = "EXPIRED"

	TimeInForceDay = "DAY"
	TimeInForceGTC = "GTC"
)

// TerminalStatus reports whether an order status admits no further transitions.
func TerminalStatus(status string) bool {
	switch status {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// OrderRequest is the inbound order submission payload.
type OrderRequest struct {
	Symbol        string          `json:"symbol" validate:"required,min=1,max=12"`
	Side          string          `json:"side" validate:"required,oneof=BUY SELL"`
	Quantity      decimal.Decimal `json:"quantity" validate:"required"`
	OrderType     string          `json:"order_type" validate:"required,oneof=MARKET LIMIT STOP STOP_LIMIT"`
	Price         decimal.Decimal `json:"price,omitempty"`
	StopPrice     decimal.Decimal `json:"stop_price,omitempty"`
	TimeInForce   string          `json:"time_in_force,omitempty" validate:"omitempty,oneof=DAY GTC"`
	ClientOrderID string          `json:"client_order_id,omitempty" validate:"omitempty,max=64"`
	Confidence    float64         `json:"confidence,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
}

// Validate applies the semantic checks the struct tags cannot express.
func (r *OrderRequest) Validate() error {
	if r.Quantity.LessThanOrEqual(decimal.Zero) {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	switch r.OrderType {
	case OrderTypeLimit, OrderTypeStopLimit:
		if r.Price.LessThanOrEqual(decimal.Zero) {
			return &ValidationError{Field: "price", Reason: "required for limit orders"}
		}
	}
	switch r.OrderType {
	case OrderTypeStop, OrderTypeStopLimit:
		if r.StopPrice.LessThanOrEqual(decimal.Zero) {
			return &ValidationError{Field: "stop_price", Reason: "required for stop orders"}
		}
	}
	return nil
}

// Order is the execution-side record of a submitted order. It is owned by the
// executing adapter once placed; other components hold it by id.
type Order struct {
	ID             string          `json:"order_id"`
	ClientOrderID  string          `json:"client_order_id,omitempty"`
	Symbol         string          `json:"symbol"`
	Side           string          `json:"side"`
	Quantity       decimal.Decimal `json:"quantity"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	Type           string          `json:"order_type"`
	Price          decimal.Decimal `json:"price,omitempty"`
	StopPrice      decimal.Decimal `json:"stop_price,omitempty"`
	Status         string          `json:"status"`
	TimeInForce    string          `json:"time_in_force"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	FilledAt       *time.Time      `json:"filled_at,omitempty"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
	Commission     decimal.Decimal `json:"commission"`
	Broker         string          `json:"broker"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
}

// Terminal reports whether the order reached a final state.
func (o *Order) Terminal() bool {
	return TerminalStatus(o.Status)
}

// Clone returns a shallow copy safe to hand outside the owning component.
func (o *Order) Clone() *Order {
	cp := *o
	if o.Metadata != nil {
		cp.Metadata = make(map[string]any, len(o.Metadata))
		for k, v := range o.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	Symbols  []string `form:"symbols"`
	Statuses []string `form:"statuses"`
	Sides    []string `form:"sides"`
	Limit    int      `form:"limit"`
	Offset   int      `form:"offset"`
}

// Match reports whether an order passes the filter predicates.
func (f *OrderFilter) Match(o *Order) bool {
	if len(f.Symbols) > 0 && !contains(f.Symbols, o.Symbol) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, o.Status) {
		return false
	}
	if len(f.Sides) > 0 && !contains(f.Sides, o.Side) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// CancellationResult reports the outcome of an order cancellation.
type CancellationResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
}
