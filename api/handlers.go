package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/guillermoguerrero1/ai-trading-agent/internal/model"
)

// writeError maps domain errors to HTTP status codes.
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		validation *model.ValidationError
		rejection  *model.GuardrailRejection
		halted     *model.HaltedError
		notFound   *model.NotFoundError
		execution  *model.ExecutionError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error(), "field": validation.Field})
	case errors.As(err, &rejection):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    rejection.Error(),
			"decision": rejection.Decision,
		})
	case errors.As(err, &halted):
		c.JSON(http.StatusLocked, gin.H{"error": halted.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.As(err, &execution):
		c.JSON(http.StatusBadGateway, gin.H{"error": execution.Error()})
	default:
		s.logger.Error("handler error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// healthCheck handles the health check endpoint.
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"halted": s.sup.Halted(),
		"time":   time.Now().UTC(),
	})
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.sup.Status())
}

// placeOrder submits an order through the full guardrail path.
func (s *Server) placeOrder(c *gin.Context) {
	var req model.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := s.sup.SubmitOrder(c.Request.Context(), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order_id": order.ID, "status": order.Status, "order": order})
}

// submitSignal converts a trade signal into a limit order and submits it.
func (s *Server) submitSignal(c *gin.Context) {
	var signal model.TradeSignal
	if err := c.ShouldBindJSON(&signal); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validate.Struct(&signal); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := signal.Validate(); err != nil {
		s.writeError(c, err)
		return
	}

	order, err := s.sup.SubmitOrder(c.Request.Context(), signal.ToOrderRequest())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order_id": order.ID, "status": order.Status, "order": order})
}

// ingestTick publishes an external price tick onto the market data bus.
func (s *Server) ingestTick(c *gin.Context) {
	var tick struct {
		Symbol string          `json:"symbol" binding:"required"`
		Price  decimal.Decimal `json:"price" binding:"required"`
	}
	if err := c.ShouldBindJSON(&tick); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if tick.Price.LessThanOrEqual(decimal.Zero) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price must be positive"})
		return
	}

	s.bus.Publish(tick.Symbol, tick.Price)
	c.JSON(http.StatusAccepted, gin.H{"symbol": tick.Symbol, "price": tick.Price})
}

// cancelOrder cancels an order by ID.
func (s *Server) cancelOrder(c *gin.Context) {
	orderID := c.Param("id")
	result := s.sup.CancelOrder(c.Request.Context(), orderID)
	if !result.Success {
		status := http.StatusBadRequest
		if _, err := s.sup.Order(c.Request.Context(), orderID); err != nil {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": result.Reason})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "status": model.OrderStatusCancelled})
}

// getOrder returns order details by ID.
func (s *Server) getOrder(c *gin.Context) {
	order, err := s.sup.Order(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// listOrders lists orders with optional filters for status/symbol/side.
func (s *Server) listOrders(c *gin.Context) {
	var filter model.OrderFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	orders, err := s.sup.Orders(c.Request.Context(), &filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

func (s *Server) listPositions(c *gin.Context) {
	positions, err := s.sup.Positions(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

func (s *Server) getAccount(c *gin.Context) {
	account, err := s.sup.Account(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account})
}

func (s *Server) getPrices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"prices": s.bus.Snapshot()})
}

// listTrades returns the most recent trade log entries.
func (s *Server) listTrades(c *gin.Context) {
	if s.trades == nil {
		c.JSON(http.StatusOK, gin.H{"trades": []any{}, "count": 0})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	trades, err := s.trades.Recent(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

// listEvents lists supervisor events, oldest first.
func (s *Server) listEvents(c *gin.Context) {
	var filter model.EventFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events := s.sup.Events(&filter)
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func (s *Server) getGuardrailStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.guard.Status())
}

// resolveViolation marks a guardrail violation resolved, which can lift a
// violation-driven halt.
func (s *Server) resolveViolation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid violation id"})
		return
	}
	if !s.guard.ResolveViolation(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "violation not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"violation_id": id, "resolved": true, "halted": s.sup.Halted()})
}

// getConfig reports the runtime-mutable configuration.
func (s *Server) getConfig(c *gin.Context) {
	status := s.guard.Status()
	resp := gin.H{
		"session_windows": status.Limits.SessionWindows,
		"limits":          status.Limits,
	}
	if s.gate != nil {
		resp["model_threshold"] = s.gate.Threshold()
		resp["model_version"] = s.gate.Version()
	}
	c.JSON(http.StatusOK, resp)
}

// updateConfig applies a partial configuration update at runtime.
func (s *Server) updateConfig(c *gin.Context) {
	var update model.ConfigUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validate.Struct(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.guard.ApplyConfig(update)
	if s.gate != nil && update.ModelThreshold != nil {
		s.gate.SetThreshold(*update.ModelThreshold)
	}

	s.logger.Info("runtime config updated",
		zap.Strings("session_windows", update.SessionWindows),
		zap.Any("ignore_session", update.IgnoreSession),
		zap.Any("model_threshold", update.ModelThreshold))
	s.getConfig(c)
}

func (s *Server) haltTrading(c *gin.Context) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)
	if body.Reason == "" {
		body.Reason = "manual halt"
	}

	s.sup.HaltTrading(body.Reason)
	c.JSON(http.StatusOK, gin.H{"halted": true, "reason": body.Reason})
}

func (s *Server) resumeTrading(c *gin.Context) {
	s.sup.ResumeTrading()
	c.JSON(http.StatusOK, gin.H{"halted": s.sup.Halted()})
}
