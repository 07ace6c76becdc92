package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade lifecycle statuses. PENDING is the only state the recovery sweep may
// transition; FILLED and FAILED_RECOVERED are terminal.
const (
	StatusNew             = "NEW"
	StatusPending         = "PENDING"
	StatusFilled          = "FILLED"
	StatusFailedRecovered = "FAILED_RECOVERED"
)

// Trade is the durable trade record. The UNIQUE constraint on IdempotencyKey
// is what absorbs duplicate order delivery: a second insert with the same key
// is rejected by the database and treated as a no-op by the repository.
type Trade struct {
	ID             uint                `gorm:"primaryKey" json:"id"`
	TimestampUTC   time.Time           `gorm:"column:timestamp_utc;not null" json:"timestamp_utc"`
	IdempotencyKey string              `gorm:"size:36;uniqueIndex;not null" json:"idempotency_key"`
	Symbol         string              `gorm:"size:20;not null" json:"symbol"`
	TradeType      string              `gorm:"size:20;not null" json:"trade_type"`
	Quantity       int                 `gorm:"not null" json:"quantity"`
	Price          decimal.NullDecimal `gorm:"type:numeric(19,8)" json:"price,omitempty"`
	Status         string              `gorm:"size:50;not null" json:"status"`
	IsTestTrade    bool                `gorm:"not null;default:false" json:"is_test_trade"`
}

// TableName pins the exact table name for trades.
func (Trade) TableName() string {
	return "trades"
}
