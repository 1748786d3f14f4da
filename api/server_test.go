package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guillermoguerrero1/ai-trading-agent/internal/broker/paper"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/marketdata"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/mlgate"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/model"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/riskguard"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/supervisor"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testStack struct {
	server *Server
	sup    *supervisor.Supervisor
	guard  *riskguard.Guard
	gate   *mlgate.Gate
	bus    *marketdata.Bus
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	logger := zap.NewNop()

	bus := marketdata.NewBus(logger)
	bus.Publish("AAPL", decimal.NewFromInt(150))

	broker := paper.New(logger, bus, nil, paper.Config{
		InitialCapital:    decimal.NewFromInt(100000),
		HeartbeatInterval: time.Hour,
	})

	gate := mlgate.New(logger, "", 0.55)
	guard := riskguard.New(logger, riskguard.Config{
		Limits: model.GuardrailLimits{
			MaxTradesPerDay:    5,
			DailyLossCapUSD:    decimal.NewFromInt(300),
			MaxPositionSizeUSD: decimal.NewFromInt(50000),
			MaxDailyVolumeUSD:  decimal.NewFromInt(100000),
			SessionWindows:     []string{"09:30-16:00"},
		},
		InitialCapital:  decimal.NewFromInt(100000),
		PaperAnytime:    true,
		ModelThreshold:  0.55,
		ModelGateActive: true,
	}, gate)

	sup := supervisor.New(logger, guard, broker, gate)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sup.Start(ctx))
	t.Cleanup(func() {
		_ = sup.Stop(context.Background())
		cancel()
	})

	return &testStack{
		server: NewServer(logger, sup, guard, gate, bus, nil),
		sup:    sup,
		guard:  guard,
		gate:   gate,
		bus:    bus,
	}
}

func (s *testStack) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.server.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestStack(t)
	w := s.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["halted"])
}

func TestPlaceOrderEndpoint(t *testing.T) {
	s := newTestStack(t)

	w := s.do(t, http.MethodPost, "/api/v1/orders", gin.H{
		"symbol":     "AAPL",
		"side":       "BUY",
		"quantity":   "10",
		"order_type": "LIMIT",
		"price":      "140",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decode(t, w)
	orderID, ok := body["order_id"].(string)
	require.True(t, ok)

	w = s.do(t, http.MethodGet, "/api/v1/orders/"+orderID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])
}

func TestPlaceOrderValidation(t *testing.T) {
	s := newTestStack(t)

	// Missing side fails binding validation.
	w := s.do(t, http.MethodPost, "/api/v1/orders", gin.H{
		"symbol":     "AAPL",
		"quantity":   "10",
		"order_type": "MARKET",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Limit order without a price fails semantic validation.
	w = s.do(t, http.MethodPost, "/api/v1/orders", gin.H{
		"symbol":     "AAPL",
		"side":       "BUY",
		"quantity":   "10",
		"order_type": "LIMIT",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "price", decode(t, w)["field"])
}

func TestPlaceOrderGuardrailRejection(t *testing.T) {
	s := newTestStack(t)

	w := s.do(t, http.MethodPost, "/api/v1/orders", gin.H{
		"symbol":     "AAPL",
		"side":       "BUY",
		"quantity":   "1000",
		"order_type": "LIMIT",
		"price":      "150",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decode(t, w)
	decision, ok := body["decision"].(map[string]any)
	require.True(t, ok, "rejection carries the risk decision")
	assert.Equal(t, false, decision["allowed"])
}

func TestHaltAndResumeEndpoints(t *testing.T) {
	s := newTestStack(t)

	w := s.do(t, http.MethodPost, "/api/v1/halt", gin.H{"reason": "maintenance"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/orders", gin.H{
		"symbol":     "AAPL",
		"side":       "BUY",
		"quantity":   "1",
		"order_type": "LIMIT",
		"price":      "140",
	})
	assert.Equal(t, http.StatusLocked, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/resume", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["halted"])
}

func TestCancelOrderEndpoint(t *testing.T) {
	s := newTestStack(t)

	w := s.do(t, http.MethodPost, "/api/v1/orders", gin.H{
		"symbol":     "AAPL",
		"side":       "SELL",
		"quantity":   "5",
		"order_type": "LIMIT",
		"price":      "500",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := decode(t, w)["order_id"].(string)

	w = s.do(t, http.MethodDelete, "/api/v1/orders/"+orderID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodDelete, "/api/v1/orders/paper-missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSignalEndpoint(t *testing.T) {
	s := newTestStack(t)

	w := s.do(t, http.MethodPost, "/api/v1/signal", gin.H{
		"symbol":    "AAPL",
		"side":      "BUY",
		"quantity":  "10",
		"entry":     "149",
		"stop_loss": "145",
		"target":    "160",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	order := decode(t, w)["order"].(map[string]any)
	assert.Equal(t, "LIMIT", order["order_type"])

	// Stop equal to entry is rejected.
	w = s.do(t, http.MethodPost, "/api/v1/signal", gin.H{
		"symbol":    "AAPL",
		"side":      "BUY",
		"quantity":  "10",
		"entry":     "149",
		"stop_loss": "149",
		"target":    "160",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTickEndpoint(t *testing.T) {
	s := newTestStack(t)

	w := s.do(t, http.MethodPost, "/api/v1/tick", gin.H{"symbol": "MSFT", "price": "305.5"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	last, ok := s.bus.Last("MSFT")
	require.True(t, ok)
	assert.True(t, last.Equal(decimal.NewFromFloat(305.5)))

	w = s.do(t, http.MethodPost, "/api/v1/tick", gin.H{"symbol": "MSFT", "price": "-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGuardrailStatusEndpoint(t *testing.T) {
	s := newTestStack(t)

	w := s.do(t, http.MethodGet, "/api/v1/guardrails/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, false, body["halted"])
	assert.Equal(t, float64(0), body["daily_trades"])
	assert.NotNil(t, body["limits"])
}

func TestResolveViolationEndpoint(t *testing.T) {
	s := newTestStack(t)

	// Oversized order records a violation.
	s.do(t, http.MethodPost, "/api/v1/orders", gin.H{
		"symbol":     "AAPL",
		"side":       "BUY",
		"quantity":   "1000",
		"order_type": "LIMIT",
		"price":      "150",
	})

	status := s.guard.Status()
	require.Len(t, status.Violations, 1)
	id := status.Violations[0].ID.String()

	w := s.do(t, http.MethodPost, "/api/v1/guardrails/violations/"+id+"/resolve", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["resolved"])

	w = s.do(t, http.MethodPost, "/api/v1/guardrails/violations/"+id+"/resolve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "already resolved")

	w = s.do(t, http.MethodPost, "/api/v1/guardrails/violations/not-a-uuid/resolve", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfigEndpoints(t *testing.T) {
	s := newTestStack(t)

	w := s.do(t, http.MethodGet, "/api/v1/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.55, decode(t, w)["model_threshold"])

	w = s.do(t, http.MethodPut, "/api/v1/config", gin.H{
		"model_threshold": 0.7,
		"session_windows": []string{"00:00-23:59"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 0.7, s.gate.Threshold())
	assert.Equal(t, []string{"00:00-23:59"}, s.guard.Status().Limits.SessionWindows)

	// Out-of-range threshold is rejected.
	w = s.do(t, http.MethodPut, "/api/v1/config", gin.H{"model_threshold": 1.5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAccountPositionsAndEvents(t *testing.T) {
	s := newTestStack(t)

	w := s.do(t, http.MethodGet, "/api/v1/account", nil)
	require.Equal(t, http.StatusOK, w.Code)
	account := decode(t, w)["account"].(map[string]any)
	assert.Equal(t, "100000", account["cash"])

	w = s.do(t, http.MethodGet, "/api/v1/positions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	// Supervisor start is already logged.
	assert.GreaterOrEqual(t, decode(t, w)["count"], float64(1))
}

func TestTradesEndpointWithoutStore(t *testing.T) {
	s := newTestStack(t)

	w := s.do(t, http.MethodGet, "/api/v1/trades", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["count"])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestStack(t)

	w := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
