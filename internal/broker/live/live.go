// Package live is the placeholder for real brokerage adapters. Every
// operation fails with an execution error; retry and backoff policy belongs
// to a real implementation of the adapter contract, not to the core.
package live

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/guillermoguerrero1/ai-trading-agent/internal/broker"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/model"
)

var errNotImplemented = errors.New("live brokerage connectivity is not implemented")

// Broker is a stub live execution adapter.
type Broker struct {
	logger *zap.Logger
	name   string
	status chan broker.StatusUpdate
}

// New creates a stub adapter for the named brokerage (e.g. "tradovate").
func New(logger *zap.Logger, name string) *Broker {
	return &Broker{
		logger: logger.Named("live"),
		name:   name,
		status: make(chan broker.StatusUpdate),
	}
}

func (b *Broker) Name() string { return b.name }

func (b *Broker) Connect(ctx context.Context) error {
	return b.fail("connect")
}

func (b *Broker) Disconnect(ctx context.Context) error {
	return nil
}

func (b *Broker) PlaceOrder(ctx context.Context, req *model.OrderRequest) (*model.Order, error) {
	return nil, b.fail("place_order")
}

func (b *Broker) CancelOrder(ctx context.Context, orderID string) error {
	return b.fail("cancel_order")
}

func (b *Broker) Order(ctx context.Context, orderID string) (*model.Order, error) {
	return nil, b.fail("get_order")
}

func (b *Broker) Orders(ctx context.Context, filter *model.OrderFilter) ([]*model.Order, error) {
	return nil, b.fail("get_orders")
}

func (b *Broker) Positions(ctx context.Context) ([]*model.Position, error) {
	return nil, b.fail("get_positions")
}

func (b *Broker) Account(ctx context.Context) (*model.Account, error) {
	return nil, b.fail("get_account")
}

func (b *Broker) StatusStream() <-chan broker.StatusUpdate {
	return b.status
}

func (b *Broker) fail(op string) error {
	return &model.ExecutionError{Broker: b.name, Op: op, Err: errNotImplemented}
}
