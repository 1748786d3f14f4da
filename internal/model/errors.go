package model

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by execution adapters used before Connect.
var ErrNotConnected = errors.New("not connected to broker")

// ValidationError marks a malformed order or request, rejected before any
// state mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// GuardrailRejection carries the risk decision that denied an order. It is
// expected in normal operation and never retried.
type GuardrailRejection struct {
	Decision RiskDecision
}

func (e *GuardrailRejection) Error() string {
	return fmt.Sprintf("order rejected: %s", e.Decision.Reason)
}

// HaltedError short-circuits order submission before guardrail evaluation.
type HaltedError struct {
	Reason string
}

func (e *HaltedError) Error() string {
	if e.Reason == "" {
		return "trading is currently halted"
	}
	return fmt.Sprintf("trading is currently halted: %s", e.Reason)
}

// ExecutionError wraps an adapter-level failure.
type ExecutionError struct {
	Broker string
	Op     string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Broker, e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// NotFoundError marks an unknown order id on cancel or status lookup.
type NotFoundError struct {
	OrderID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("order %s not found", e.OrderID)
}
