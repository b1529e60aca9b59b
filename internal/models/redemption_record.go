package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RedemptionRecord is the immutable history row written once per successful
// redemption execution.
type RedemptionRecord struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	PositionID  uint64 `gorm:"not null;index"`
	TxSignature string `gorm:"type:varchar(120);not null;uniqueIndex"`

	AmountRedeemed decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	AmountReceived decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	ProfitLoss     decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	RedeemedAt       time.Time  `gorm:"type:timestamptz;not null"`
	MarketResolvedAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (RedemptionRecord) TableName() string {
	return "redemption_records"
}
