package model

import "github.com/shopspring/decimal"

// TradeSignal is a strategy-level trade idea: an entry with protective stop
// and target. It is converted to an order request at submission time.
type TradeSignal struct {
	Symbol     string          `json:"symbol" validate:"required,min=1,max=12"`
	Side       string          `json:"side" validate:"required,oneof=BUY SELL"`
	Quantity   decimal.Decimal `json:"quantity" validate:"required"`
	Entry      decimal.Decimal `json:"entry" validate:"required"`
	StopLoss   decimal.Decimal `json:"stop_loss" validate:"required"`
	Target     decimal.Decimal `json:"target" validate:"required"`
	Confidence float64         `json:"confidence,omitempty"`
	Strategy   string          `json:"strategy,omitempty"`
	Notes      string          `json:"notes,omitempty"`
}

// Validate applies the semantic checks on top of the struct tags.
func (s *TradeSignal) Validate() error {
	if s.Quantity.LessThanOrEqual(decimal.Zero) {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if s.Entry.LessThanOrEqual(decimal.Zero) {
		return &ValidationError{Field: "entry", Reason: "must be positive"}
	}
	if s.StopLoss.LessThanOrEqual(decimal.Zero) {
		return &ValidationError{Field: "stop_loss", Reason: "must be positive"}
	}
	if s.Target.LessThanOrEqual(decimal.Zero) {
		return &ValidationError{Field: "target", Reason: "must be positive"}
	}
	if s.StopLoss.Equal(s.Entry) {
		return &ValidationError{Field: "stop_loss", Reason: "must differ from entry"}
	}
	return nil
}

// ToOrderRequest converts the signal to a limit order at the entry price.
// The stop, target and strategy travel in the metadata so the execution and
// trade-log layers can pick them up.
func (s *TradeSignal) ToOrderRequest() *OrderRequest {
	meta := map[string]any{
		"entry_price":  s.Entry.InexactFloat64(),
		"stop_loss":    s.StopLoss.InexactFloat64(),
		"target_price": s.Target.InexactFloat64(),
	}
	if s.Strategy != "" {
		meta["strategy"] = s.Strategy
	}
	if s.Notes != "" {
		meta["notes"] = s.Notes
	}
	return &OrderRequest{
		Symbol:      s.Symbol,
		Side:        s.Side,
		Quantity:    s.Quantity,
		OrderType:   OrderTypeLimit,
		Price:       s.Entry,
		StopPrice:   s.StopLoss,
		TimeInForce: TimeInForceDay,
		Confidence:  s.Confidence,
		Metadata:    meta,
	}
}
