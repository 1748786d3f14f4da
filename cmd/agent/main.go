package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/guillermoguerrero1/ai-trading-agent/api"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/broker/paper"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/config"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/marketdata"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/mlgate"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/model"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/riskguard"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/supervisor"
	"github.com/guillermoguerrero1/ai-trading-agent/internal/tradelog"
	"github.com/guillermoguerrero1/ai-trading-agent/pkg/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load(os.Getenv("AGENT_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create logger
	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Market data bus and the simulated price feed
	bus := marketdata.NewBus(zapLogger)

	initialPrices := make(map[string]decimal.Decimal, len(cfg.Market.InitialPrices))
	for symbol, price := range cfg.Market.InitialPrices {
		initialPrices[symbol] = decimal.NewFromFloat(price)
	}
	mutationInterval, err := time.ParseDuration(cfg.Market.MutationInterval)
	if err != nil {
		zapLogger.Fatal("Invalid mutation interval", zap.Error(err))
	}
	mutator := marketdata.NewMutator(zapLogger, bus, initialPrices, mutationInterval, cfg.Market.MutationPct)
	go mutator.Run(ctx)

	// Trade log store
	trades, err := tradelog.NewStore(zapLogger, cfg.TradeLog.DSN)
	if err != nil {
		zapLogger.Fatal("Failed to open trade log store", zap.Error(err))
	}

	// Model gate
	gate := mlgate.New(zapLogger, cfg.Model.Path, cfg.Model.Threshold)

	// Paper execution adapter
	broker := paper.New(zapLogger, bus, trades, paper.Config{
		AccountID:      cfg.Account.ID,
		InitialCapital: decimal.NewFromFloat(cfg.Account.InitialCapital),
		CommissionRate: decimal.NewFromFloat(cfg.Account.CommissionRate),
		Currency:       cfg.Account.Currency,
		InitialPrices:  initialPrices,
	})

	// Guardrail evaluator
	guard := riskguard.New(zapLogger, riskguard.Config{
		Limits: model.GuardrailLimits{
			MaxTradesPerDay:    cfg.Guardrail.MaxTradesPerDay,
			DailyLossCapUSD:    decimal.NewFromFloat(cfg.Guardrail.DailyLossCap),
			MaxPositionSizeUSD: decimal.NewFromFloat(cfg.Guardrail.MaxPositionSize),
			MaxDailyVolumeUSD:  decimal.NewFromFloat(cfg.Guardrail.MaxDailyVolume),
			SessionWindows:     cfg.Guardrail.SessionWindows,
		},
		InitialCapital:  decimal.NewFromFloat(cfg.Account.InitialCapital),
		IgnoreSession:   cfg.Guardrail.IgnoreSession,
		PaperAnytime:    cfg.Guardrail.PaperAnytime,
		ModelThreshold:  cfg.Model.Threshold,
		ModelGateActive: cfg.Model.GateActive,
	}, gate)

	// Supervisor over the paper adapter
	sup := supervisor.New(zapLogger, guard, broker, gate)
	if err := sup.Start(ctx); err != nil {
		zapLogger.Fatal("Failed to start supervisor", zap.Error(err))
	}

	// API server
	apiServer := api.NewServer(zapLogger, sup, guard, gate, bus, trades)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: apiServer.Handler(),
	}

	go func() {
		zapLogger.Info("Starting API server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	// Wait for interrupt to shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shut down API server", zap.Error(err))
	}

	if err := sup.Stop(shutdownCtx); err != nil {
		zapLogger.Error("Failed to stop supervisor", zap.Error(err))
	}
	cancel()

	zapLogger.Info("Server exited properly")
}
