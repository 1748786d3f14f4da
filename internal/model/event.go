package model

import (
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	EventTypeSystem   = "SYSTEM"
	EventTypeOrder    = "ORDER"
	EventTypeTrade    = "TRADE"
	EventTypePosition = "POSITION"
	EventTypeAccount  = "ACCOUNT"
	EventTypeRisk     = "RISK"
	EventTypeError    = "ERROR"
)

// Event severities.
const (
	EventSeverityLow      = "LOW"
	EventSeverityMedium   = "MEDIUM"
	EventSeverityHigh     = "HIGH"
	EventSeverityCritical = "CRITICAL"
)

// Event is one entry in the supervisor's in-memory event log. The log is a
// fixed-capacity ring, not a persistence guarantee.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	Type      string         `json:"event_type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventFilter narrows event listings.
type EventFilter struct {
	Types      []string `form:"types"`
	Severities []string `form:"severities"`
	Sources    []string `form:"sources"`
	Limit      int      `form:"limit"`
	Offset     int      `form:"offset"`
}

// Match reports whether an event passes the filter predicates.
func (f *EventFilter) Match(e *Event) bool {
	if len(f.Types) > 0 && !contains(f.Types, e.Type) {
		return false
	}
	if len(f.Severities) > 0 && !contains(f.Severities, e.Severity) {
		return false
	}
	if len(f.Sources) > 0 && !contains(f.Sources, e.Source) {
		return false
	}
	return true
}
