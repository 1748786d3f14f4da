// Package riskguard implements the pre-trade guardrail evaluator: session
// windows, daily limits, violation tracking and halt logic.
package riskguard

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/guillermoguerrero1/ai-trading-agent/internal/model"
	"github.com/guillermoguerrero1/ai-trading-agent/pkg/metrics"
)

// ConfidenceScorer scores a candidate's {risk, rr} features in [0, 1].
// A scoring failure defaults to allow; the gate is never allowed to block
// trading on an unrelated subsystem outage.
type ConfidenceScorer interface {
	Score(risk, rr float64) (float64, error)
}

// Candidate is one trade submitted for guardrail evaluation.
type Candidate struct {
	Symbol     string
	Quantity   decimal.Decimal
	Price      decimal.Decimal // estimated price; zero when unknown
	Confidence float64         // caller-attached model confidence, 1.0 when absent
	Risk       float64         // entry-to-stop distance, for the model gate
	RR         float64         // reward/risk ratio, for the model gate
	HasModel   bool            // whether Risk/RR carry real features
}

// TradeRecord is the post-fill update applied to the daily counters.
type TradeRecord struct {
	Symbol       string
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	RealizedPnL  decimal.Decimal
	EquityChange decimal.Decimal
}

// Config carries the guard's construction parameters.
type Config struct {
	Limits          model.GuardrailLimits
	InitialCapital  decimal.Decimal
	IgnoreSession   bool
	PaperAnytime    bool
	ModelThreshold  float64
	ModelGateActive bool
}

// Guard is the stateful per-process risk engine. All state mutation happens
// under a single mutex so each evaluation is one atomic step.
type Guard struct {
	mu     sync.Mutex
	logger *zap.Logger
	scorer ConfidenceScorer

	limits          model.GuardrailLimits
	ignoreSession   bool
	paperAnytime    bool
	modelThreshold  float64
	modelGateActive bool

	dailyTrades        int
	dailyLoss          decimal.Decimal
	dailyVolume        decimal.Decimal
	sessionStartEquity decimal.Decimal
	currentEquity      decimal.Decimal
	violations         []*model.GuardrailViolation
	lastResetDate      time.Time

	now func() time.Time
}

// New creates a guard with the configured limits. The scorer may be nil.
func New(logger *zap.Logger, cfg Config, scorer ConfidenceScorer) *Guard {
	g := &Guard{
		logger:             logger.Named("riskguard"),
		scorer:             scorer,
		limits:             cfg.Limits,
		ignoreSession:      cfg.IgnoreSession,
		paperAnytime:       cfg.PaperAnytime,
		modelThreshold:     cfg.ModelThreshold,
		modelGateActive:    cfg.ModelGateActive,
		dailyLoss:          decimal.Zero,
		dailyVolume:        decimal.Zero,
		sessionStartEquity: cfg.InitialCapital,
		currentEquity:      cfg.InitialCapital,
		now:                time.Now,
	}
	g.lastResetDate = dateOf(g.now())
	return g
}

// SetClock overrides the wall clock, for tests.
func (g *Guard) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
	g.lastResetDate = dateOf(now())
}

// Check evaluates one candidate against the configured limits. Checks run in
// a fixed order and the first failure wins.
func (g *Guard) Check(c Candidate) model.RiskDecision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.resetDailyCountersLocked(now)

	if !g.sessionActiveLocked(now) {
		return g.deny(model.ViolationSessionWindow, model.SeverityWarning,
			"Trading not allowed outside session windows",
			"Trading attempted outside allowed session windows",
			now.Format("15:04"), fmt.Sprintf("%v", g.limits.SessionWindows))
	}

	if g.dailyTrades >= g.limits.MaxTradesPerDay {
		return g.deny(model.ViolationMaxTradesPerDay, model.SeverityError,
			"Daily trade limit exceeded",
			fmt.Sprintf("Daily trade limit of %d exceeded", g.limits.MaxTradesPerDay),
			fmt.Sprintf("%d", g.dailyTrades), fmt.Sprintf("%d", g.limits.MaxTradesPerDay))
	}

	if g.dailyLoss.Abs().GreaterThanOrEqual(g.limits.DailyLossCapUSD) {
		return g.deny(model.ViolationDailyLossCap, model.SeverityCritical,
			"Daily loss cap exceeded",
			fmt.Sprintf("Daily loss cap of $%s exceeded", g.limits.DailyLossCapUSD),
			g.dailyLoss.String(), g.limits.DailyLossCapUSD.String())
	}

	estimated := c.Quantity.Mul(c.Price)
	if estimated.GreaterThan(g.limits.MaxPositionSizeUSD) {
		return g.deny(model.ViolationMaxPositionSize, model.SeverityError,
			"Position size limit exceeded",
			fmt.Sprintf("Position size limit of $%s exceeded", g.limits.MaxPositionSizeUSD),
			estimated.String(), g.limits.MaxPositionSizeUSD.String())
	}

	if g.dailyVolume.Add(estimated).GreaterThan(g.limits.MaxDailyVolumeUSD) {
		return g.deny(model.ViolationMaxDailyVolume, model.SeverityError,
			"Daily volume limit exceeded",
			fmt.Sprintf("Daily volume limit of $%s exceeded", g.limits.MaxDailyVolumeUSD),
			g.dailyVolume.Add(estimated).String(), g.limits.MaxDailyVolumeUSD.String())
	}

	if g.modelGateActive {
		confidence := c.Confidence
		if c.HasModel && g.scorer != nil {
			if score, err := g.scorer.Score(c.Risk, c.RR); err != nil {
				// Fail-open: a scorer outage must not block trading.
				g.logger.Warn("model scoring failed, allowing", zap.Error(err))
			} else {
				confidence = score
			}
		}
		if confidence < g.modelThreshold {
			return g.deny(model.ViolationModelConfidence, model.SeverityWarning,
				"Model confidence below threshold",
				fmt.Sprintf("Model confidence %.3f below threshold %.3f", confidence, g.modelThreshold),
				fmt.Sprintf("%.3f", confidence), fmt.Sprintf("%.3f", g.modelThreshold))
		}
	}

	return model.RiskDecision{Allowed: true, Reason: "Signal approved"}
}

func (g *Guard) deny(vtype, severity, reason, message, current, limit string) model.RiskDecision {
	return model.RiskDecision{
		Allowed: false,
		Reason:  reason,
		Violation: &model.GuardrailViolation{
			ID:           uuid.New(),
			Type:         vtype,
			Severity:     severity,
			Message:      message,
			CurrentValue: current,
			LimitValue:   limit,
			Timestamp:    g.now(),
		},
	}
}

func (g *Guard) sessionActiveLocked(now time.Time) bool {
	if g.ignoreSession || g.paperAnytime {
		return true
	}
	return inSession(now, g.limits.SessionWindows, g.logger)
}

// resetDailyCountersLocked resets the daily counters exactly once when the
// wall-clock date has advanced past the last reset date. The reset is lazy:
// it runs at the start of every evaluation, not on a timer.
func (g *Guard) resetDailyCountersLocked(now time.Time) {
	today := dateOf(now)
	if !today.After(g.lastResetDate) {
		return
	}
	g.logger.Info("resetting daily counters", zap.String("date", today.Format("2006-01-02")))
	g.dailyTrades = 0
	g.dailyLoss = decimal.Zero
	g.dailyVolume = decimal.Zero
	g.lastResetDate = today
	g.sessionStartEquity = g.currentEquity
	metrics.DailyTrades.Set(0)
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// RecordTrade applies a completed trade to the daily counters.
func (g *Guard) RecordTrade(t TradeRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.dailyTrades++
	g.dailyVolume = g.dailyVolume.Add(t.Quantity.Mul(t.Price))
	g.dailyLoss = g.dailyLoss.Add(t.RealizedPnL)
	g.currentEquity = g.currentEquity.Add(t.EquityChange)
	metrics.DailyTrades.Set(float64(g.dailyTrades))

	g.logger.Info("trade recorded",
		zap.Int("daily_trades", g.dailyTrades),
		zap.String("daily_volume", g.dailyVolume.String()),
		zap.String("daily_loss", g.dailyLoss.String()))
}

// RecordViolation appends a violation to the process-lifetime list.
func (g *Guard) RecordViolation(v *model.GuardrailViolation) {
	if v == nil {
		return
	}
	g.mu.Lock()
	g.violations = append(g.violations, v)
	g.mu.Unlock()

	metrics.GuardrailViolations.WithLabelValues(v.Type).Inc()
	g.logger.Warn("guardrail violation recorded",
		zap.String("violation_type", v.Type),
		zap.String("severity", v.Severity),
		zap.String("message", v.Message))
}

// ResolveViolation marks a violation resolved. Resolving all CRITICAL
// violations is the only way to clear a violation-driven halt.
func (g *Guard) ResolveViolation(id uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, v := range g.violations {
		if v.ID == id && !v.Resolved {
			v.Resolved = true
			return true
		}
	}
	return false
}

// Halted reports whether any unresolved CRITICAL violation exists. It is a
// pure function over the violation list; there is no separate flag and no
// time-based recovery.
func (g *Guard) Halted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.haltedLocked()
}

func (g *Guard) haltedLocked() bool {
	for _, v := range g.violations {
		if v.Severity == model.SeverityCritical && !v.Resolved {
			return true
		}
	}
	return false
}

// UpdateLimits replaces the limit snapshot wholesale.
func (g *Guard) UpdateLimits(limits model.GuardrailLimits) {
	g.mu.Lock()
	g.limits = limits
	g.mu.Unlock()
	g.logger.Info("guardrail limits updated")
}

// ApplyConfig applies the runtime-mutable toggles.
func (g *Guard) ApplyConfig(u model.ConfigUpdate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if u.SessionWindows != nil {
		g.limits.SessionWindows = u.SessionWindows
	}
	if u.IgnoreSession != nil {
		g.ignoreSession = *u.IgnoreSession
	}
	if u.ModelThreshold != nil {
		g.modelThreshold = *u.ModelThreshold
	}
	if u.ModelGateActive != nil {
		g.modelGateActive = *u.ModelGateActive
	}
	g.logger.Info("runtime guard config applied",
		zap.Bool("ignore_session", g.ignoreSession),
		zap.Bool("model_gate_active", g.modelGateActive),
		zap.Float64("model_threshold", g.modelThreshold))
}

// Status returns the full guardrail status snapshot.
func (g *Guard) Status() model.GuardrailStatus {
	g.mu.Lock()
	defer g.mu.Unlock()

	unresolved := 0
	violations := make([]model.GuardrailViolation, 0, len(g.violations))
	for _, v := range g.violations {
		if !v.Resolved {
			unresolved++
		}
		violations = append(violations, *v)
	}

	return model.GuardrailStatus{
		Halted:               g.haltedLocked(),
		DailyTrades:          g.dailyTrades,
		DailyLossUSD:         g.dailyLoss,
		DailyVolumeUSD:       g.dailyVolume,
		ViolationCount:       len(g.violations),
		UnresolvedViolations: unresolved,
		SessionStartEquity:   g.sessionStartEquity,
		CurrentEquity:        g.currentEquity,
		EquityChange:         g.currentEquity.Sub(g.sessionStartEquity),
		SessionActive:        g.sessionActiveLocked(g.now()),
		Limits:               g.limits,
		Violations:           violations,
	}
}
