package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PriceSourceAPI        = "API"
	PriceSourceCalculated = "CALCULATED"
	PriceSourceCached     = "CACHED"
)

// PriceCacheEntry holds the most recent price for one (market, outcome) pair.
// Rows past ExpiresAt are refetched on lookup; the daily cleanup job deletes
// them. A stale row may still be served when the provider is unreachable.
type PriceCacheEntry struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	MarketTicker string `gorm:"type:varchar(100);not null;uniqueIndex:idx_price_cache_market_outcome"`
	Outcome      string `gorm:"type:varchar(10);not null;uniqueIndex:idx_price_cache_market_outcome"`

	CurrentPrice  decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	Change24h     decimal.Decimal `gorm:"column:change_24h;type:numeric(20,10);not null;default:0"`
	Change24hPct  decimal.Decimal `gorm:"column:change_24h_pct;type:numeric(20,10);not null;default:0"`
	Volume24h     decimal.Decimal `gorm:"column:volume_24h;type:numeric(30,10);not null;default:0"`
	Source        string          `gorm:"type:varchar(12);not null;default:'API'"`

	LastUpdated time.Time `gorm:"type:timestamptz;not null"`
	ExpiresAt   time.Time `gorm:"type:timestamptz;not null;index"`
}

func (PriceCacheEntry) TableName() string {
	return "price_cache"
}

// Expired reports whether the entry is past its TTL at the given instant.
func (e PriceCacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}
