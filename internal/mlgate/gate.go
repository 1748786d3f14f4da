// Package mlgate scores trade candidates with a logistic model over the
// features {risk, rr}. The gate fails open: a missing model or a scoring
// failure must never block trading on an unrelated subsystem outage.
package mlgate

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"

	"go.uber.org/zap"
)

// Coefficients is the serialized model: a logistic regression over the two
// features the trade logger derives from entry, stop and target prices.
type Coefficients struct {
	Intercept float64 `json:"intercept"`
	Risk      float64 `json:"risk"`
	RR        float64 `json:"rr"`
	Version   string  `json:"version"`
}

// Gate is the model-confidence collaborator.
type Gate struct {
	mu        sync.RWMutex
	logger    *zap.Logger
	path      string
	coeffs    *Coefficients
	threshold float64
}

// New creates a gate, loading the model from path if it exists. A gate
// without a model scores every candidate 1.0.
func New(logger *zap.Logger, path string, threshold float64) *Gate {
	g := &Gate{
		logger:    logger.Named("mlgate"),
		path:      path,
		threshold: threshold,
	}
	if err := g.load(); err != nil {
		g.logger.Warn("model not loaded, gate will score 1.0", zap.String("path", path), zap.Error(err))
	}
	return g
}

func (g *Gate) load() error {
	if g.path == "" {
		return fmt.Errorf("no model path configured")
	}
	data, err := os.ReadFile(g.path)
	if err != nil {
		return err
	}
	var coeffs Coefficients
	if err := json.Unmarshal(data, &coeffs); err != nil {
		return fmt.Errorf("parse model %s: %w", g.path, err)
	}
	g.mu.Lock()
	g.coeffs = &coeffs
	g.mu.Unlock()
	g.logger.Info("model loaded", zap.String("path", g.path), zap.String("version", coeffs.Version))
	return nil
}

// Score returns the model probability for the features. Without a model the
// score is 1.0.
func (g *Gate) Score(risk, rr float64) (float64, error) {
	g.mu.RLock()
	coeffs := g.coeffs
	g.mu.RUnlock()

	if coeffs == nil {
		return 1.0, nil
	}
	z := coeffs.Intercept + coeffs.Risk*risk + coeffs.RR*rr
	return 1.0 / (1.0 + math.Exp(-z)), nil
}

// Allow reports whether the features score at or above the threshold. Any
// scoring failure allows.
func (g *Gate) Allow(risk, rr float64, threshold float64) bool {
	score, err := g.Score(risk, rr)
	if err != nil {
		g.logger.Warn("scoring failed, allowing", zap.Error(err))
		return true
	}
	return score >= threshold
}

// Threshold returns the configured default threshold.
func (g *Gate) Threshold() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.threshold
}

// SetThreshold replaces the default threshold at runtime.
func (g *Gate) SetThreshold(t float64) {
	g.mu.Lock()
	g.threshold = t
	g.mu.Unlock()
}

// Version returns the loaded model version, or "" without a model.
func (g *Gate) Version() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.coeffs == nil {
		return ""
	}
	return g.coeffs.Version
}
