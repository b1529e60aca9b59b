package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TradeTypeBuy        = "BUY"
	TradeTypeSell       = "SELL"
	TradeTypeRedemption = "REDEMPTION"
)

const (
	ExecutionModeSync  = "SYNC"
	ExecutionModeAsync = "ASYNC"
)

// Trade is an append-only execution record belonging to one Position.
// Entry price and cost basis are derived from BUY trades ordered oldest-first.
type Trade struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	PositionID  uint64 `gorm:"not null;index"`
	TxSignature string `gorm:"type:varchar(120);not null;uniqueIndex"`

	TradeType string `gorm:"type:varchar(12);not null;index"`

	Amount decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Price  decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	Fee    decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	ExecutionMode string          `gorm:"type:varchar(10);not null;default:'SYNC'"`
	SlippageBps   int             `gorm:"not null;default:0"`
	PriceImpact   decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`

	ExecutedAt time.Time `gorm:"type:timestamptz;not null;index"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Trade) TableName() string {
	return "trades"
}
