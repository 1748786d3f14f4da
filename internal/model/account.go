package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the per-symbol holding of the simulated account. One position
// exists per symbol; it is removed when quantity returns to zero.
type Position struct {
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
	MarketPrice   decimal.Decimal `json:"market_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	Broker        string          `json:"broker"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// MarkToMarket refreshes the derived fields against a new market price.
func (p *Position) MarkToMarket(price decimal.Decimal, at time.Time) {
	p.MarketPrice = price
	p.MarketValue = p.Quantity.Mul(price)
	p.UnrealizedPnL = p.MarketValue.Sub(p.Quantity.Mul(p.AvgPrice))
	p.UpdatedAt = at
}

// Account is the single synthetic trading account.
type Account struct {
	AccountID       string          `json:"account_id"`
	Equity          decimal.Decimal `json:"equity"`
	Cash            decimal.Decimal `json:"cash"`
	BuyingPower     decimal.Decimal `json:"buying_power"`
	MarginUsed      decimal.Decimal `json:"margin_used"`
	MarginAvailable decimal.Decimal `json:"margin_available"`
	Currency        string          `json:"currency"`
	Broker          string          `json:"broker"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
