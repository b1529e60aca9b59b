package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioSnapshot is one wallet's daily rollup. Unique per (wallet, date)
// and immutable once written: the snapshot job appends new dates instead of
// overwriting existing rows.
type PortfolioSnapshot struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	WalletAddress string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_snapshots_wallet_date;index"`
	SnapshotDate  time.Time `gorm:"type:date;not null;uniqueIndex:idx_snapshots_wallet_date"`

	TotalValue      decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	DailyPnL        decimal.Decimal `gorm:"column:daily_pnl;type:numeric(30,10);not null;default:0"`
	CumulativePnL   decimal.Decimal `gorm:"column:cumulative_pnl;type:numeric(30,10);not null;default:0"`
	PositionCount   int             `gorm:"not null"`
	WinRate         decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	PortfolioReturn decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	NetDeposits     decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (PortfolioSnapshot) TableName() string {
	return "portfolio_snapshots"
}
