package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Violation severities.
const (
	SeverityWarning  = "WARNING"
	SeverityError    = "ERROR"
	SeverityCritical = "CRITICAL"
)

// Violation types produced by the guardrail evaluator.
const (
	ViolationSessionWindow   = "session_window"
	ViolationMaxTradesPerDay = "max_trades_per_day"
	ViolationDailyLossCap    = "daily_loss_cap"
	ViolationMaxPositionSize = "max_position_size"
	ViolationMaxDailyVolume  = "max_daily_volume"
	ViolationModelConfidence = "model_confidence"
)

// GuardrailLimits is the configured limit snapshot enforced by the guardrail
// evaluator. The snapshot is immutable per check and replaced wholesale on
// update.
type GuardrailLimits struct {
	MaxTradesPerDay    int             `json:"max_trades_per_day"`
	DailyLossCapUSD    decimal.Decimal `json:"daily_loss_cap_usd"`
	MaxContracts       int             `json:"max_contracts"`
	MaxPositionSizeUSD decimal.Decimal `json:"max_position_size_usd"`
	MaxDailyVolumeUSD  decimal.Decimal `json:"max_daily_volume_usd"`
	SessionWindows     []string        `json:"session_windows"`
}

// GuardrailViolation records one limit breach.
type GuardrailViolation struct {
	ID           uuid.UUID `json:"violation_id"`
	Type         string    `json:"violation_type"`
	Severity     string    `json:"severity"`
	Message      string    `json:"message"`
	CurrentValue string    `json:"current_value"`
	LimitValue   string    `json:"limit_value"`
	Resolved     bool      `json:"resolved"`
	Timestamp    time.Time `json:"timestamp"`
}

// RiskDecision is the result of one guardrail evaluation. It is ephemeral and
// never persisted.
type RiskDecision struct {
	Allowed   bool                `json:"allowed"`
	Reason    string              `json:"reason"`
	Violation *GuardrailViolation `json:"violation,omitempty"`
}

// GuardrailStatus is the full status payload exposed at the API boundary.
type GuardrailStatus struct {
	Halted               bool            `json:"halted"`
	DailyTrades          int             `json:"daily_trades"`
	DailyLossUSD         decimal.Decimal `json:"daily_loss_usd"`
	DailyVolumeUSD       decimal.Decimal `json:"daily_volume_usd"`
	ViolationCount       int             `json:"violation_count"`
	UnresolvedViolations int             `json:"unresolved_violations"`
	SessionStartEquity   decimal.Decimal `json:"session_start_equity"`
	CurrentEquity        decimal.Decimal `json:"current_equity"`
	EquityChange         decimal.Decimal `json:"equity_change"`
	SessionActive        bool            `json:"session_active"`
	Limits               GuardrailLimits `json:"limits"`
	Violations           []GuardrailViolation `json:"violations"`
}

// ConfigUpdate carries the runtime-mutable guardrail configuration.
type ConfigUpdate struct {
	SessionWindows  []string `json:"session_windows,omitempty"`
	IgnoreSession   *bool    `json:"ignore_session,omitempty"`
	ModelThreshold  *float64 `json:"model_threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	ModelGateActive *bool    `json:"model_gate_active,omitempty"`
}
