// Package api exposes the trading agent over HTTP and WebSocket.
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/guillermoguerrero1/ai-trading-agent/internal/marketdata"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/mlgate"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/riskguard"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/supervisor"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/tradelog"
)

// Server represents the API server.
type Server struct {
	router   *gin.Engine
	logger   *zap.Logger
	sup      *supervisor.Supervisor
	guard    *riskguard.Guard
	gate     *mlgate.Gate
	bus      *marketdata.Bus
	trades   *tradelog.Store
	validate *validator.Validate
}

// NewServer creates the API server. The gate and trade store may be nil.
func NewServer(
	logger *zap.Logger,
	sup *supervisor.Supervisor,
	guard *riskguard.Guard,
	gate *mlgate.Gate,
	bus *marketdata.Bus,
	trades *tradelog.Store,
) *Server {
	server := &Server{
		logger:   logger.Named("api"),
		sup:      sup,
		guard:    guard,
		gate:     gate,
		bus:      bus,
		trades:   trades,
		validate: validator.New(),
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	server.router = router
	server.registerRoutes()
	return server
}

// Router returns the internal Gin engine for testing purposes.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Handler returns the server as an http.Handler for embedding in http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// registerRoutes registers all API routes.
func (s *Server) registerRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.healthCheck)
		v1.GET("/status", s.getStatus)

		v1.POST("/orders", s.placeOrder)
		v1.GET("/orders", s.listOrders)
		v1.GET("/orders/:id", s.getOrder)
		v1.DELETE("/orders/:id", s.cancelOrder)

		v1.POST("/signal", s.submitSignal)
		v1.POST("/tick", s.ingestTick)

		v1.GET("/positions", s.listPositions)
		v1.GET("/account", s.getAccount)
		v1.GET("/prices", s.getPrices)
		v1.GET("/trades", s.listTrades)
		v1.GET("/events", s.listEvents)

		guardrails := v1.Group("/guardrails")
		{
			guardrails.GET("/status", s.getGuardrailStatus)
			guardrails.POST("/violations/:id/resolve", s.resolveViolation)
		}

		v1.GET("/config", s.getConfig)
		v1.PUT("/config", s.updateConfig)

		v1.POST("/halt", s.haltTrading)
		v1.POST("/resume", s.resumeTrading)

		v1.GET("/stream", s.streamUpdates)
	}
}
