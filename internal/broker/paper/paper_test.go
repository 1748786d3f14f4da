package paper

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guillermoguerrero1/ai-trading-agent/internal/broker"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/marketdata"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/model"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/tradelog"
)

func newTestBroker(t *testing.T, prices map[string]decimal.Decimal) (*Broker, *marketdata.Bus) {
	t.Helper()

	bus := marketdata.NewBus(zap.NewNop())
	for symbol, price := range prices {
		bus.Publish(symbol, price)
	}

	b := New(zap.NewNop(), bus, nil, Config{
		InitialCapital:    decimal.NewFromInt(100000),
		InitialPrices:     prices,
		HeartbeatInterval: time.Hour, // keep heartbeats out of the status stream
	})
	b.latency = func() time.Duration { return 0 }

	require.NoError(t, b.Connect(context.Background()))
	t.Cleanup(func() { _ = b.Disconnect(context.Background()) })
	return b, bus
}

// waitFill blocks until the broker emits a fill for the given order.
func waitFill(t *testing.T, b *Broker, orderID string) *broker.Fill {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case update := <-b.StatusStream():
			if update.Type == broker.UpdateOrderFilled && update.Fill.OrderID == orderID {
				return update.Fill
			}
		case <-deadline:
			t.Fatalf("no fill for order %s", orderID)
			return nil
		}
	}
}

func marketOrder(symbol, side string, qty int64) *model.OrderRequest {
	return &model.OrderRequest{
		Symbol:    symbol,
		Side:      side,
		Quantity:  decimal.NewFromInt(qty),
		OrderType: model.OrderTypeMarket,
	}
}

func TestPlaceOrderNotConnected(t *testing.T) {
	bus := marketdata.NewBus(zap.NewNop())
	b := New(zap.NewNop(), bus, nil, Config{InitialCapital: decimal.NewFromInt(100000)})

	_, err := b.PlaceOrder(context.Background(), marketOrder("AAPL", model.OrderSideBuy, 10))
	var execErr *model.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.ErrorIs(t, err, model.ErrNotConnected)
}

func TestMarketBuyFillsAndDebitsAccount(t *testing.T) {
	b, _ := newTestBroker(t, map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(150)})

	order, err := b.PlaceOrder(context.Background(), marketOrder("AAPL", model.OrderSideBuy, 10))
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusSubmitted, order.Status)

	fill := waitFill(t, b, order.ID)
	assert.True(t, fill.Price.Equal(decimal.NewFromInt(150)))
	// 10 * 150 * 0.001
	assert.True(t, fill.Commission.Equal(decimal.NewFromFloat(1.5)), "commission %s", fill.Commission)
	assert.True(t, fill.RealizedPnL.IsZero())

	stored, err := b.Order(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusFilled, stored.Status)
	assert.True(t, stored.FilledQuantity.Equal(decimal.NewFromInt(10)))
	require.NotNil(t, stored.FilledAt)

	account, err := b.Account(context.Background())
	require.NoError(t, err)
	// cash = 100000 - 1500 - 1.5, equity = cash + 1500 of stock
	assert.True(t, account.Cash.Equal(decimal.NewFromFloat(98498.5)), "cash %s", account.Cash)
	assert.True(t, account.Equity.Equal(decimal.NewFromFloat(99998.5)), "equity %s", account.Equity)

	positions, err := b.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, positions[0].AvgPrice.Equal(decimal.NewFromInt(150)))
}

func TestMarketOrderUsesDefaultPriceForUnknownSymbol(t *testing.T) {
	b, _ := newTestBroker(t, nil)

	order, err := b.PlaceOrder(context.Background(), marketOrder("ZZZZ", model.OrderSideBuy, 1))
	require.NoError(t, err)

	fill := waitFill(t, b, order.ID)
	assert.True(t, fill.Price.Equal(decimal.NewFromInt(100)))
}

func TestLimitSellRestsUntilMarketable(t *testing.T) {
	b, bus := newTestBroker(t, map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(100)})

	order, err := b.PlaceOrder(context.Background(), &model.OrderRequest{
		Symbol:    "AAPL",
		Side:      model.OrderSideSell,
		Quantity:  decimal.NewFromInt(10),
		OrderType: model.OrderTypeLimit,
		Price:     decimal.NewFromInt(105),
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, order.Status)

	// A tick below the limit leaves the order resting.
	bus.Publish("AAPL", decimal.NewFromInt(99))
	stored, err := b.Order(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, stored.Status)

	// A tick through the limit fills at the triggering market price.
	bus.Publish("AAPL", decimal.NewFromInt(106))
	fill := waitFill(t, b, order.ID)
	assert.True(t, fill.Price.Equal(decimal.NewFromInt(106)))
}

func TestLimitBuyFillsImmediatelyWhenMarketable(t *testing.T) {
	b, _ := newTestBroker(t, map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(100)})

	// Limit above the market: the arming check against the last price fills it.
	order, err := b.PlaceOrder(context.Background(), &model.OrderRequest{
		Symbol:    "AAPL",
		Side:      model.OrderSideBuy,
		Quantity:  decimal.NewFromInt(5),
		OrderType: model.OrderTypeLimit,
		Price:     decimal.NewFromInt(105),
	})
	require.NoError(t, err)

	fill := waitFill(t, b, order.ID)
	assert.True(t, fill.Price.Equal(decimal.NewFromInt(100)))
}

func TestStopSellTriggersOnDrop(t *testing.T) {
	b, bus := newTestBroker(t, map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(100)})

	order, err := b.PlaceOrder(context.Background(), &model.OrderRequest{
		Symbol:    "AAPL",
		Side:      model.OrderSideSell,
		Quantity:  decimal.NewFromInt(10),
		OrderType: model.OrderTypeStop,
		StopPrice: decimal.NewFromInt(95),
	})
	require.NoError(t, err)

	bus.Publish("AAPL", decimal.NewFromInt(96))
	stored, _ := b.Order(context.Background(), order.ID)
	assert.Equal(t, model.OrderStatusPending, stored.Status)

	bus.Publish("AAPL", decimal.NewFromInt(94))
	fill := waitFill(t, b, order.ID)
	assert.True(t, fill.Price.Equal(decimal.NewFromInt(94)))
}

func TestStopLimitNeverAutoFills(t *testing.T) {
	b, bus := newTestBroker(t, map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(100)})

	order, err := b.PlaceOrder(context.Background(), &model.OrderRequest{
		Symbol:    "AAPL",
		Side:      model.OrderSideBuy,
		Quantity:  decimal.NewFromInt(10),
		OrderType: model.OrderTypeStopLimit,
		Price:     decimal.NewFromInt(105),
		StopPrice: decimal.NewFromInt(102),
	})
	require.NoError(t, err)

	for _, p := range []int64{90, 103, 110} {
		bus.Publish("AAPL", decimal.NewFromInt(p))
	}
	stored, err := b.Order(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, stored.Status)

	// Cancellation is the only exit.
	require.NoError(t, b.CancelOrder(context.Background(), order.ID))
	stored, _ = b.Order(context.Background(), order.ID)
	assert.Equal(t, model.OrderStatusCancelled, stored.Status)
}

func TestResolvedOrderFillsAtMostOnce(t *testing.T) {
	b, bus := newTestBroker(t, map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(100)})

	order, err := b.PlaceOrder(context.Background(), &model.OrderRequest{
		Symbol:    "AAPL",
		Side:      model.OrderSideSell,
		Quantity:  decimal.NewFromInt(10),
		OrderType: model.OrderTypeLimit,
		Price:     decimal.NewFromInt(105),
	})
	require.NoError(t, err)

	bus.Publish("AAPL", decimal.NewFromInt(106))
	bus.Publish("AAPL", decimal.NewFromInt(107))
	waitFill(t, b, order.ID)

	// A second qualifying tick produces no second fill.
	select {
	case update := <-b.StatusStream():
		if update.Type == broker.UpdateOrderFilled {
			t.Fatalf("unexpected second fill: %+v", update.Fill)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCancelOrder(t *testing.T) {
	b, _ := newTestBroker(t, map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(100)})

	t.Run("unknown order", func(t *testing.T) {
		var notFound *model.NotFoundError
		err := b.CancelOrder(context.Background(), "paper-missing")
		require.ErrorAs(t, err, &notFound)
	})

	t.Run("pending order cancels", func(t *testing.T) {
		order, err := b.PlaceOrder(context.Background(), &model.OrderRequest{
			Symbol:    "AAPL",
			Side:      model.OrderSideSell,
			Quantity:  decimal.NewFromInt(10),
			OrderType: model.OrderTypeLimit,
			Price:     decimal.NewFromInt(200),
		})
		require.NoError(t, err)
		require.NoError(t, b.CancelOrder(context.Background(), order.ID))

		stored, _ := b.Order(context.Background(), order.ID)
		assert.Equal(t, model.OrderStatusCancelled, stored.Status)
		require.NotNil(t, stored.CancelledAt)

		// Already terminal: second cancel fails.
		assert.Error(t, b.CancelOrder(context.Background(), order.ID))
	})

	t.Run("filled order cannot cancel", func(t *testing.T) {
		order, err := b.PlaceOrder(context.Background(), marketOrder("AAPL", model.OrderSideBuy, 1))
		require.NoError(t, err)
		waitFill(t, b, order.ID)
		assert.Error(t, b.CancelOrder(context.Background(), order.ID))
	})
}

func TestPositionAveragingAndReduction(t *testing.T) {
	b, bus := newTestBroker(t, map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(100)})
	ctx := context.Background()

	buy1, err := b.PlaceOrder(ctx, marketOrder("AAPL", model.OrderSideBuy, 10))
	require.NoError(t, err)
	waitFill(t, b, buy1.ID)

	bus.Publish("AAPL", decimal.NewFromInt(200))
	buy2, err := b.PlaceOrder(ctx, marketOrder("AAPL", model.OrderSideBuy, 10))
	require.NoError(t, err)
	waitFill(t, b, buy2.ID)

	positions, err := b.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].Quantity.Equal(decimal.NewFromInt(20)))
	assert.True(t, positions[0].AvgPrice.Equal(decimal.NewFromInt(150)), "vwap %s", positions[0].AvgPrice)

	// Selling more than held floors the position at zero; realized P&L only
	// covers the quantity actually reduced.
	bus.Publish("AAPL", decimal.NewFromInt(180))
	sell, err := b.PlaceOrder(ctx, marketOrder("AAPL", model.OrderSideSell, 30))
	require.NoError(t, err)
	fill := waitFill(t, b, sell.ID)
	assert.True(t, fill.RealizedPnL.Equal(decimal.NewFromInt(600)), "realized %s", fill.RealizedPnL)

	positions, err = b.Positions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions, "flat position is removed")
}

// channelSink delivers trade-log records to the test goroutine.
type channelSink struct {
	opens chan tradelog.OpenRecord
}

func (s *channelSink) LogOpen(ctx context.Context, rec tradelog.OpenRecord) error {
	s.opens <- rec
	return nil
}

func (s *channelSink) LogClose(ctx context.Context, orderID string, exitPrice float64, outcome string) error {
	return nil
}

func TestSignalOrderPersistsStopAndTarget(t *testing.T) {
	bus := marketdata.NewBus(zap.NewNop())
	bus.Publish("AAPL", decimal.NewFromInt(150))

	sink := &channelSink{opens: make(chan tradelog.OpenRecord, 1)}
	b := New(zap.NewNop(), bus, sink, Config{
		InitialCapital:    decimal.NewFromInt(100000),
		HeartbeatInterval: time.Hour,
	})
	b.latency = func() time.Duration { return 0 }
	require.NoError(t, b.Connect(context.Background()))
	t.Cleanup(func() { _ = b.Disconnect(context.Background()) })

	signal := model.TradeSignal{
		Symbol:   "AAPL",
		Side:     model.OrderSideBuy,
		Quantity: decimal.NewFromInt(10),
		Entry:    decimal.NewFromInt(149),
		StopLoss: decimal.NewFromInt(145),
		Target:   decimal.NewFromInt(156),
	}
	_, err := b.PlaceOrder(context.Background(), signal.ToOrderRequest())
	require.NoError(t, err)

	select {
	case rec := <-sink.opens:
		assert.Equal(t, 149.0, rec.Entry)
		require.NotNil(t, rec.Stop)
		assert.Equal(t, 145.0, *rec.Stop)
		require.NotNil(t, rec.Target)
		assert.Equal(t, 156.0, *rec.Target)
	case <-time.After(2 * time.Second):
		t.Fatal("no trade log open record")
	}
}

func TestOrdersFilterAndPagination(t *testing.T) {
	b, _ := newTestBroker(t, map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(100)})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := b.PlaceOrder(ctx, &model.OrderRequest{
			Symbol:    "AAPL",
			Side:      model.OrderSideSell,
			Quantity:  decimal.NewFromInt(1),
			OrderType: model.OrderTypeLimit,
			Price:     decimal.NewFromInt(500),
		})
		require.NoError(t, err)
	}

	all, err := b.Orders(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	pending, err := b.Orders(ctx, &model.OrderFilter{Statuses: []string{model.OrderStatusPending}})
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	page, err := b.Orders(ctx, &model.OrderFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	none, err := b.Orders(ctx, &model.OrderFilter{Symbols: []string{"MSFT"}})
	require.NoError(t, err)
	assert.Empty(t, none)
}
