// Package broker defines the execution adapter capability contract shared by
// the paper matching engine and live-broker adapters.
package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/guillermoguerrero1/ai-trading-agent/internal/model"
)

// Status update types.
const (
	UpdateOrderFilled    = "order_filled"
	UpdateOrderCancelled = "order_cancelled"
	UpdateMarketUpdate   = "market_update"
	UpdateHeartbeat      = "heartbeat"
)

// Fill describes a completed execution.
type Fill struct {
	OrderID     string          `json:"order_id"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Commission  decimal.Decimal `json:"commission"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
}

// Cancel describes a completed cancellation.
type Cancel struct {
	OrderID string `json:"order_id"`
	Symbol  string `json:"symbol"`
}

// StatusUpdate is a broker-originated notification delivered over the status
// stream. Updates for a single order are delivered in the order produced.
type StatusUpdate struct {
	Type      string                     `json:"update_type"`
	Broker    string                     `json:"broker"`
	Timestamp time.Time                  `json:"timestamp"`
	Fill      *Fill                      `json:"fill,omitempty"`
	Cancel    *Cancel                    `json:"cancel,omitempty"`
	Prices    map[string]decimal.Decimal `json:"prices,omitempty"`
}

// ExecutionAdapter is the capability contract implemented by the paper
// matching engine and, out of scope here, by live-broker adapters. The core
// only ever depends on this interface.
type ExecutionAdapter interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	PlaceOrder(ctx context.Context, req *model.OrderRequest) (*model.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	Order(ctx context.Context, orderID string) (*model.Order, error)
	Orders(ctx context.Context, filter *model.OrderFilter) ([]*model.Order, error)
	Positions(ctx context.Context) ([]*model.Position, error)
	Account(ctx context.Context) (*model.Account, error)
	StatusStream() <-chan StatusUpdate
	Name() string
}
