package gormrepository

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dflowfolio/internal/models"
	"dflowfolio/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Positions --------------------------------------------------------------

func (s *Store) InsertPosition(ctx context.Context, item *models.Position) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.WalletAddress = strings.TrimSpace(item.WalletAddress)
	item.TokenMint = strings.TrimSpace(item.TokenMint)
	if item.WalletAddress == "" || item.TokenMint == "" {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

// positionMetricColumns is the set of derived fields a metrics refresh is
// allowed to write. Balance is deliberately absent: only the guarded
// decrement touches it, so a refresh holding a stale row cannot erase a
// concurrent redemption.
var positionMetricColumns = []string{
	"entry_price",
	"current_price",
	"market_price",
	"cost_basis",
	"estimated_value",
	"unrealized_pnl",
	"unrealized_pnl_percent",
	"market_status",
	"is_redeemable",
	"risk_level",
	"days_held",
	"last_price_update",
	"updated_at",
}

func (s *Store) UpdatePosition(ctx context.Context, item *models.Position) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if item.ID == 0 {
		return nil
	}
	item.UpdatedAt = time.Now().UTC()
	return s.db.WithContext(ctx).Model(&models.Position{}).
		Where("id = ?", item.ID).
		Select(positionMetricColumns).
		Updates(item).Error
}

func (s *Store) GetPositionByID(ctx context.Context, id uint64) (*models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if id == 0 {
		return nil, nil
	}
	var item models.Position
	err := s.db.WithContext(ctx).Model(&models.Position{}).Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetPositionByWalletMint(ctx context.Context, wallet, mint string) (*models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	wallet = strings.TrimSpace(wallet)
	mint = strings.TrimSpace(mint)
	if wallet == "" || mint == "" {
		return nil, nil
	}
	var item models.Position
	err := s.db.WithContext(ctx).Model(&models.Position{}).
		Where("wallet_address = ?", wallet).
		Where("token_mint = ?", mint).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPositions(ctx context.Context, params repository.ListPositionsParams) ([]models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyPositionFilters(s.db.WithContext(ctx).Model(&models.Position{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Position
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountPositions(ctx context.Context, params repository.ListPositionsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := applyPositionFilters(s.db.WithContext(ctx).Model(&models.Position{}), params)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func applyPositionFilters(query *gorm.DB, params repository.ListPositionsParams) *gorm.DB {
	if params.Wallet != nil && strings.TrimSpace(*params.Wallet) != "" {
		query = query.Where("wallet_address = ?", strings.TrimSpace(*params.Wallet))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("market_status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Outcome != nil && strings.TrimSpace(*params.Outcome) != "" {
		query = query.Where("outcome = ?", strings.TrimSpace(*params.Outcome))
	}
	if params.RedeemableOnly {
		query = query.Where("is_redeemable = ?", true)
	}
	if params.MinValue != nil {
		query = query.Where("estimated_value >= ?", *params.MinValue)
	}
	return query
}

func (s *Store) ListActivePositions(ctx context.Context, limit int) ([]models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Position{}).
		Where("market_status = ?", models.MarketStatusActive).
		Order("created_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var items []models.Position
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListPositionsByWallet(ctx context.Context, wallet string) ([]models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, nil
	}
	var items []models.Position
	if err := s.db.WithContext(ctx).Model(&models.Position{}).
		Where("wallet_address = ?", wallet).
		Order("created_at asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListActiveMarketTickers(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var tickers []string
	if err := s.db.WithContext(ctx).Model(&models.Position{}).
		Where("market_status = ?", models.MarketStatusActive).
		Distinct("market_ticker").
		Pluck("market_ticker", &tickers).Error; err != nil {
		return nil, err
	}
	return tickers, nil
}

func (s *Store) ListActiveWallets(ctx context.Context, limit int) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Position{}).
		Where("market_status = ?", models.MarketStatusActive).
		Distinct("wallet_address")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var wallets []string
	if err := query.Pluck("wallet_address", &wallets).Error; err != nil {
		return nil, err
	}
	return wallets, nil
}

func (s *Store) ListTrackedWallets(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var wallets []string
	if err := s.db.WithContext(ctx).Model(&models.Position{}).
		Distinct("wallet_address").
		Pluck("wallet_address", &wallets).Error; err != nil {
		return nil, err
	}
	return wallets, nil
}

func (s *Store) DecrementPositionBalance(ctx context.Context, id uint64, amount decimal.Decimal) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	if id == 0 || amount.LessThanOrEqual(decimal.Zero) {
		return false, nil
	}
	res := s.db.WithContext(ctx).Model(&models.Position{}).
		Where("id = ?", id).
		Where("balance >= ?", amount).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance - ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) SetPositionStatus(ctx context.Context, id uint64, status string, redeemable bool) error {
	if s == nil || s.db == nil {
		return nil
	}
	if id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.Position{}).Where("id = ?", id).Updates(map[string]any{
		"market_status": status,
		"is_redeemable": redeemable,
		"updated_at":    time.Now().UTC(),
	}).Error
}

// --- Trades -----------------------------------------------------------------

func (s *Store) InsertTrade(ctx context.Context, item *models.Trade) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.TxSignature = strings.TrimSpace(item.TxSignature)
	if item.TxSignature == "" {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListTradesByPositionID(ctx context.Context, positionID uint64) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if positionID == 0 {
		return nil, nil
	}
	var items []models.Trade
	if err := s.db.WithContext(ctx).Model(&models.Trade{}).
		Where("position_id = ?", positionID).
		Order("executed_at asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListBuyTradesOldestFirst(ctx context.Context, positionID uint64) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if positionID == 0 {
		return nil, nil
	}
	var items []models.Trade
	if err := s.db.WithContext(ctx).Model(&models.Trade{}).
		Where("position_id = ?", positionID).
		Where("trade_type = ?", models.TradeTypeBuy).
		Order("executed_at asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Price cache ------------------------------------------------------------

func (s *Store) GetPriceCache(ctx context.Context, marketTicker, outcome string) (*models.PriceCacheEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	marketTicker = strings.TrimSpace(marketTicker)
	if marketTicker == "" {
		return nil, nil
	}
	var item models.PriceCacheEntry
	err := s.db.WithContext(ctx).Model(&models.PriceCacheEntry{}).
		Where("market_ticker = ?", marketTicker).
		Where("outcome = ?", outcome).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertPriceCache(ctx context.Context, item *models.PriceCacheEntry) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.MarketTicker = strings.TrimSpace(item.MarketTicker)
	if item.MarketTicker == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "market_ticker"}, {Name: "outcome"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"current_price",
			"change_24h",
			"change_24h_pct",
			"volume_24h",
			"source",
			"last_updated",
			"expires_at",
		}),
	}).Create(item).Error
}

func (s *Store) DeleteExpiredPriceCache(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if before.IsZero() {
		before = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&models.PriceCacheEntry{})
	return res.RowsAffected, res.Error
}

// --- Snapshots --------------------------------------------------------------

func (s *Store) InsertPortfolioSnapshot(ctx context.Context, item *models.PortfolioSnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	// Snapshots are immutable per (wallet, date): a re-run within the same
	// day must not overwrite the row written earlier.
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wallet_address"}, {Name: "snapshot_date"}},
		DoNothing: true,
	}).Create(item).Error
}

func (s *Store) GetSnapshotOnOrBefore(ctx context.Context, wallet string, date time.Time) (*models.PortfolioSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, nil
	}
	var item models.PortfolioSnapshot
	err := s.db.WithContext(ctx).Model(&models.PortfolioSnapshot{}).
		Where("wallet_address = ?", wallet).
		Where("snapshot_date <= ?", date).
		Order("snapshot_date desc").
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPortfolioSnapshots(ctx context.Context, params repository.ListSnapshotsParams) ([]models.PortfolioSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.PortfolioSnapshot{})
	if params.Wallet != nil && strings.TrimSpace(*params.Wallet) != "" {
		query = query.Where("wallet_address = ?", strings.TrimSpace(*params.Wallet))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("snapshot_date >= ?", params.Since.UTC())
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("snapshot_date <= ?", params.Until.UTC())
	}
	limit := normalizeLimit(params.Limit, 365)
	offset := normalizeOffset(params.Offset)
	var items []models.PortfolioSnapshot
	if err := query.Order("snapshot_date desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Redemptions ------------------------------------------------------------

func (s *Store) InsertRedemptionRecord(ctx context.Context, item *models.RedemptionRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListRedemptionRecordsByPositionIDs(ctx context.Context, positionIDs []uint64) ([]models.RedemptionRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if len(positionIDs) == 0 {
		return nil, nil
	}
	var items []models.RedemptionRecord
	if err := s.db.WithContext(ctx).Model(&models.RedemptionRecord{}).
		Where("position_id IN ?", positionIDs).
		Order("redeemed_at asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SumRealizedPnLByWallet(ctx context.Context, wallet string) (decimal.Decimal, error) {
	if s == nil || s.db == nil {
		return decimal.Zero, nil
	}
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return decimal.Zero, nil
	}
	var row struct {
		Total decimal.Decimal
	}
	err := s.db.WithContext(ctx).
		Table("redemption_records").
		Select("COALESCE(SUM(redemption_records.profit_loss),0) AS total").
		Joins("JOIN positions ON positions.id = redemption_records.position_id").
		Where("positions.wallet_address = ?", wallet).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}

// --- Stream archive ---------------------------------------------------------

func (s *Store) InsertRawStreamEvent(ctx context.Context, item *models.RawStreamEvent) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

// --- helpers ----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
