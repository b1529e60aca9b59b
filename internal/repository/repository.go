package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"dflowfolio/internal/models"
)

// Repository is the single persistence boundary for positions, trades,
// price cache entries, snapshots and redemption records.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Positions
	InsertPosition(ctx context.Context, item *models.Position) error
	UpdatePosition(ctx context.Context, item *models.Position) error
	GetPositionByID(ctx context.Context, id uint64) (*models.Position, error)
	GetPositionByWalletMint(ctx context.Context, wallet, mint string) (*models.Position, error)
	ListPositions(ctx context.Context, params ListPositionsParams) ([]models.Position, error)
	CountPositions(ctx context.Context, params ListPositionsParams) (int64, error)
	ListActivePositions(ctx context.Context, limit int) ([]models.Position, error)
	ListPositionsByWallet(ctx context.Context, wallet string) ([]models.Position, error)
	ListActiveMarketTickers(ctx context.Context) ([]string, error)
	ListActiveWallets(ctx context.Context, limit int) ([]string, error)
	ListTrackedWallets(ctx context.Context) ([]string, error)
	// DecrementPositionBalance applies balance = balance - amount guarded by
	// balance >= amount. Returns false when the guard rejects the update, so
	// a racing refresh or second redemption cannot produce a lost update.
	DecrementPositionBalance(ctx context.Context, id uint64, amount decimal.Decimal) (bool, error)
	SetPositionStatus(ctx context.Context, id uint64, status string, redeemable bool) error

	// Trades
	InsertTrade(ctx context.Context, item *models.Trade) error
	ListTradesByPositionID(ctx context.Context, positionID uint64) ([]models.Trade, error)
	ListBuyTradesOldestFirst(ctx context.Context, positionID uint64) ([]models.Trade, error)

	// Price cache
	GetPriceCache(ctx context.Context, marketTicker, outcome string) (*models.PriceCacheEntry, error)
	UpsertPriceCache(ctx context.Context, item *models.PriceCacheEntry) error
	DeleteExpiredPriceCache(ctx context.Context, before time.Time) (int64, error)

	// Snapshots
	InsertPortfolioSnapshot(ctx context.Context, item *models.PortfolioSnapshot) error
	GetSnapshotOnOrBefore(ctx context.Context, wallet string, date time.Time) (*models.PortfolioSnapshot, error)
	ListPortfolioSnapshots(ctx context.Context, params ListSnapshotsParams) ([]models.PortfolioSnapshot, error)

	// Redemptions
	InsertRedemptionRecord(ctx context.Context, item *models.RedemptionRecord) error
	ListRedemptionRecordsByPositionIDs(ctx context.Context, positionIDs []uint64) ([]models.RedemptionRecord, error)
	SumRealizedPnLByWallet(ctx context.Context, wallet string) (decimal.Decimal, error)

	// Stream archive
	InsertRawStreamEvent(ctx context.Context, item *models.RawStreamEvent) error
}

type ListPositionsParams struct {
	Limit          int
	Offset         int
	Wallet         *string
	Status         *string
	Outcome        *string
	RedeemableOnly bool
	MinValue       *decimal.Decimal
	OrderBy        string
	Asc            *bool
}

type ListSnapshotsParams struct {
	Limit  int
	Offset int
	Wallet *string
	Since  *time.Time
	Until  *time.Time
}
