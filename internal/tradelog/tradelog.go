// Package tradelog persists a row per trade lifecycle: opened on placement,
// closed on fill or cancel. The sink is fire-and-forget; callers must never
// let a logging failure abort a trading operation.
package tradelog

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// TradeLog is the persisted trade row.
type TradeLog struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	OrderID      string     `gorm:"index" json:"order_id"`
	Symbol       string     `json:"symbol"`
	Side         string     `json:"side"`
	Qty          float64    `json:"qty"`
	EntryPrice   float64    `json:"entry_price"`
	StopPrice    *float64   `json:"stop_price,omitempty"`
	TargetPrice  *float64   `json:"target_price,omitempty"`
	ExitPrice    *float64   `json:"exit_price,omitempty"`
	Outcome      string     `json:"outcome,omitempty"`
	PnLUSD       *float64   `json:"pnl_usd,omitempty"`
	RMultiple    *float64   `json:"r_multiple,omitempty"`
	ModelScore   *float64   `json:"model_score,omitempty"`
	ModelVersion string     `json:"model_version,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	EnteredAt    time.Time  `json:"entered_at"`
	ExitedAt     *time.Time `json:"exited_at,omitempty"`
}

// OpenRecord carries the fields logged when a trade is opened.
type OpenRecord struct {
	OrderID      string
	Symbol       string
	Side         string
	Qty          float64
	Entry        float64
	Stop         *float64
	Target       *float64
	ModelScore   *float64
	ModelVersion string
	Notes        string
}

// Sink is the trade-logging contract consumed by the execution engine.
type Sink interface {
	LogOpen(ctx context.Context, rec OpenRecord) error
	LogClose(ctx context.Context, orderID string, exitPrice float64, outcome string) error
}

// Store is a gorm-backed sink.
type Store struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewStore opens the trade-log database and migrates the schema.
func NewStore(logger *zap.Logger, dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&TradeLog{}); err != nil {
		return nil, err
	}
	return &Store{logger: logger.Named("tradelog"), db: db}, nil
}

// LogOpen records the opening of a trade.
func (s *Store) LogOpen(ctx context.Context, rec OpenRecord) error {
	row := TradeLog{
		OrderID:      rec.OrderID,
		Symbol:       rec.Symbol,
		Side:         rec.Side,
		Qty:          rec.Qty,
		EntryPrice:   rec.Entry,
		StopPrice:    rec.Stop,
		TargetPrice:  rec.Target,
		ModelScore:   rec.ModelScore,
		ModelVersion: rec.ModelVersion,
		Notes:        rec.Notes,
		EnteredAt:    time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// LogClose records the close of a trade and computes P&L and the R-multiple
// when entry and stop prices are known. An unknown order id late-attaches a
// minimal row so the close is never lost.
func (s *Store) LogClose(ctx context.Context, orderID string, exitPrice float64, outcome string) error {
	var row TradeLog
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = TradeLog{OrderID: orderID, EnteredAt: time.Now().UTC()}
	} else if err != nil {
		return err
	}

	now := time.Now().UTC()
	row.ExitPrice = &exitPrice
	row.ExitedAt = &now
	row.Outcome = outcome

	if row.Side != "" && row.EntryPrice != 0 {
		direction := 1.0
		if row.Side == "SELL" {
			direction = -1.0
		}
		pnl := (exitPrice - row.EntryPrice) * direction * row.Qty
		row.PnLUSD = &pnl
		if row.StopPrice != nil {
			risk := row.EntryPrice - *row.StopPrice
			if risk < 0 {
				risk = -risk
			}
			if risk > 0 {
				r := (exitPrice - row.EntryPrice) * direction / risk
				row.RMultiple = &r
			}
		}
	}

	return s.db.WithContext(ctx).Save(&row).Error
}

// Recent returns the most recent trade rows, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]TradeLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var rows []TradeLog
	err := s.db.WithContext(ctx).Order("id desc").Limit(limit).Find(&rows).Error
	return rows, err
}
