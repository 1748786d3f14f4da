package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrdersSubmitted counts orders accepted by the supervisor, by side.
var OrdersSubmitted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "agent_orders_submitted_total",
		Help: "Total number of orders accepted for execution",
	},
	[]string{"side"},
)

// OrdersRejected counts orders rejected before execution, by reason class.
var OrdersRejected = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "agent_orders_rejected_total",
		Help: "Total number of orders rejected before execution",
	},
	[]string{"reason"},
)

// OrdersFilled counts completed fills.
var OrdersFilled = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "agent_orders_filled_total",
		Help: "Total number of orders filled by the paper engine",
	},
)

// OrdersCancelled counts successful cancellations.
var OrdersCancelled = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "agent_orders_cancelled_total",
		Help: "Total number of orders cancelled",
	},
)

// GuardrailViolations counts guardrail violations by type.
var GuardrailViolations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "agent_guardrail_violations_total",
		Help: "Total number of guardrail violations recorded",
	},
	[]string{"type"},
)

// TicksPublished counts price ticks pushed through the price feed bus.
var TicksPublished = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "agent_price_ticks_total",
		Help: "Total number of price ticks published to the feed bus",
	},
)

// Account gauges updated on every fill.
var (
	AccountEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_account_equity_usd",
			Help: "Current simulated account equity in USD",
		},
	)

	AccountCash = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_account_cash_usd",
			Help: "Current simulated account cash in USD",
		},
	)

	DailyTrades = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_daily_trades",
			Help: "Number of trades recorded against today's guardrail counters",
		},
	)
)

func init() {
	prometheus.MustRegister(OrdersSubmitted, OrdersRejected, OrdersFilled, OrdersCancelled)
	prometheus.MustRegister(GuardrailViolations, TicksPublished)
	prometheus.MustRegister(AccountEquity, AccountCash, DailyTrades)
}
