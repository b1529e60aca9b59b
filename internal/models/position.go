package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market lifecycle states for a held outcome token.
const (
	MarketStatusActive    = "ACTIVE"
	MarketStatusResolved  = "RESOLVED"
	MarketStatusSettled   = "SETTLED"
	MarketStatusCancelled = "CANCELLED"
)

const (
	OutcomeYes = "YES"
	OutcomeNo  = "NO"
)

const (
	RiskLow    = "LOW"
	RiskMedium = "MEDIUM"
	RiskHigh   = "HIGH"
)

// Position is one wallet's holding of one outcome token. Rows are created by
// discovery, recomputed on every metrics refresh and never hard-deleted:
// a fully redeemed position stays behind with zero balance and SETTLED status.
type Position struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	WalletAddress string `gorm:"type:varchar(64);not null;uniqueIndex:idx_positions_wallet_mint;index"`
	TokenMint     string `gorm:"type:varchar(64);not null;uniqueIndex:idx_positions_wallet_mint"`

	RawBalance string `gorm:"type:varchar(40);not null;default:'0'"`
	Decimals   int    `gorm:"not null;default:0"`

	Balance decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	MarketTicker string `gorm:"type:varchar(100);not null;index"`
	MarketTitle  string `gorm:"type:varchar(500)"`
	Outcome      string `gorm:"type:varchar(10);not null"`
	BaseMint     string `gorm:"type:varchar(64)"`

	EntryPrice           decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	CurrentPrice         decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	MarketPrice          decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	CostBasis            decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	EstimatedValue       decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	UnrealizedPnL        decimal.Decimal `gorm:"column:unrealized_pnl;type:numeric(30,10);not null;default:0"`
	UnrealizedPnLPercent decimal.Decimal `gorm:"column:unrealized_pnl_percent;type:numeric(20,10);not null;default:0"`

	MarketStatus string `gorm:"type:varchar(20);not null;default:'ACTIVE';index"`
	IsRedeemable bool   `gorm:"not null;default:false;index"`
	RiskLevel    string `gorm:"type:varchar(10);not null;default:'MEDIUM'"`
	DaysHeld     int    `gorm:"not null;default:0"`

	CreatedAt       time.Time  `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt       time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
	LastPriceUpdate *time.Time `gorm:"type:timestamptz"`
}

func (Position) TableName() string {
	return "positions"
}
