package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"dflowfolio/internal/models"
	"dflowfolio/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
type stubRepo struct {
	positions   map[uint64]*models.Position
	trades      []models.Trade
	cache       map[string]*models.PriceCacheEntry
	snapshots   []models.PortfolioSnapshot
	redemptions []models.RedemptionRecord
	events      []models.RawStreamEvent
	nextID      uint64

	updateCalls int
	upsertCalls int
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		positions: map[uint64]*models.Position{},
		cache:     map[string]*models.PriceCacheEntry{},
	}
}

func cacheKey(ticker, outcome string) string { return ticker + "|" + outcome }

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func (s *stubRepo) InsertPosition(ctx context.Context, item *models.Position) error {
	s.nextID++
	item.ID = s.nextID
	cp := *item
	s.positions[item.ID] = &cp
	return nil
}

func (s *stubRepo) UpdatePosition(ctx context.Context, item *models.Position) error {
	s.updateCalls++
	cp := *item
	// Metric updates never touch the balance. Keep whatever the stored row
	// has so interleavings with the guarded decrement behave like the real
	// column-restricted write.
	if prev, ok := s.positions[item.ID]; ok {
		cp.Balance = prev.Balance
		cp.RawBalance = prev.RawBalance
	}
	s.positions[item.ID] = &cp
	return nil
}

func (s *stubRepo) GetPositionByID(ctx context.Context, id uint64) (*models.Position, error) {
	p, ok := s.positions[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *stubRepo) GetPositionByWalletMint(ctx context.Context, wallet, mint string) (*models.Position, error) {
	for _, p := range s.positions {
		if p.WalletAddress == wallet && p.TokenMint == mint {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) ListPositions(ctx context.Context, params repository.ListPositionsParams) ([]models.Position, error) {
	out := s.allPositions()
	if params.RedeemableOnly {
		filtered := out[:0]
		for _, p := range out {
			if p.IsRedeemable {
				filtered = append(filtered, p)
			}
		}
		out = filtered
	}
	return out, nil
}

func (s *stubRepo) CountPositions(ctx context.Context, params repository.ListPositionsParams) (int64, error) {
	items, _ := s.ListPositions(ctx, params)
	return int64(len(items)), nil
}

func (s *stubRepo) ListActivePositions(ctx context.Context, limit int) ([]models.Position, error) {
	var out []models.Position
	for _, p := range s.allPositions() {
		if p.MarketStatus == models.MarketStatusActive {
			out = append(out, p)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *stubRepo) ListPositionsByWallet(ctx context.Context, wallet string) ([]models.Position, error) {
	var out []models.Position
	for _, p := range s.allPositions() {
		if p.WalletAddress == wallet {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubRepo) ListActiveMarketTickers(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range s.allPositions() {
		if p.MarketStatus != models.MarketStatusActive {
			continue
		}
		if _, ok := seen[p.MarketTicker]; ok {
			continue
		}
		seen[p.MarketTicker] = struct{}{}
		out = append(out, p.MarketTicker)
	}
	return out, nil
}

func (s *stubRepo) ListActiveWallets(ctx context.Context, limit int) ([]string, error) {
	return s.ListTrackedWallets(ctx)
}

func (s *stubRepo) ListTrackedWallets(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range s.allPositions() {
		if _, ok := seen[p.WalletAddress]; ok {
			continue
		}
		seen[p.WalletAddress] = struct{}{}
		out = append(out, p.WalletAddress)
	}
	return out, nil
}

func (s *stubRepo) DecrementPositionBalance(ctx context.Context, id uint64, amount decimal.Decimal) (bool, error) {
	p, ok := s.positions[id]
	if !ok || p.Balance.LessThan(amount) {
		return false, nil
	}
	p.Balance = p.Balance.Sub(amount)
	return true, nil
}

func (s *stubRepo) SetPositionStatus(ctx context.Context, id uint64, status string, redeemable bool) error {
	if p, ok := s.positions[id]; ok {
		p.MarketStatus = status
		p.IsRedeemable = redeemable
	}
	return nil
}

func (s *stubRepo) InsertTrade(ctx context.Context, item *models.Trade) error {
	s.trades = append(s.trades, *item)
	return nil
}

func (s *stubRepo) ListTradesByPositionID(ctx context.Context, positionID uint64) ([]models.Trade, error) {
	var out []models.Trade
	for _, t := range s.trades {
		if t.PositionID == positionID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *stubRepo) ListBuyTradesOldestFirst(ctx context.Context, positionID uint64) ([]models.Trade, error) {
	var out []models.Trade
	for _, t := range s.trades {
		if t.PositionID == positionID && t.TradeType == models.TradeTypeBuy {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutedAt.Before(out[j].ExecutedAt) })
	return out, nil
}

func (s *stubRepo) GetPriceCache(ctx context.Context, marketTicker, outcome string) (*models.PriceCacheEntry, error) {
	e, ok := s.cache[cacheKey(marketTicker, outcome)]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (s *stubRepo) UpsertPriceCache(ctx context.Context, item *models.PriceCacheEntry) error {
	s.upsertCalls++
	cp := *item
	s.cache[cacheKey(item.MarketTicker, item.Outcome)] = &cp
	return nil
}

func (s *stubRepo) DeleteExpiredPriceCache(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64
	for key, e := range s.cache {
		if e.ExpiresAt.Before(before) {
			delete(s.cache, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *stubRepo) InsertPortfolioSnapshot(ctx context.Context, item *models.PortfolioSnapshot) error {
	for _, existing := range s.snapshots {
		if existing.WalletAddress == item.WalletAddress && existing.SnapshotDate.Equal(item.SnapshotDate) {
			return nil
		}
	}
	s.snapshots = append(s.snapshots, *item)
	return nil
}

func (s *stubRepo) GetSnapshotOnOrBefore(ctx context.Context, wallet string, date time.Time) (*models.PortfolioSnapshot, error) {
	var best *models.PortfolioSnapshot
	for i := range s.snapshots {
		snap := &s.snapshots[i]
		if snap.WalletAddress != wallet || snap.SnapshotDate.After(date) {
			continue
		}
		if best == nil || snap.SnapshotDate.After(best.SnapshotDate) {
			best = snap
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (s *stubRepo) ListPortfolioSnapshots(ctx context.Context, params repository.ListSnapshotsParams) ([]models.PortfolioSnapshot, error) {
	return append([]models.PortfolioSnapshot(nil), s.snapshots...), nil
}

func (s *stubRepo) InsertRedemptionRecord(ctx context.Context, item *models.RedemptionRecord) error {
	s.redemptions = append(s.redemptions, *item)
	return nil
}

func (s *stubRepo) ListRedemptionRecordsByPositionIDs(ctx context.Context, positionIDs []uint64) ([]models.RedemptionRecord, error) {
	var out []models.RedemptionRecord
	for _, r := range s.redemptions {
		for _, id := range positionIDs {
			if r.PositionID == id {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (s *stubRepo) SumRealizedPnLByWallet(ctx context.Context, wallet string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, r := range s.redemptions {
		p, ok := s.positions[r.PositionID]
		if ok && p.WalletAddress == wallet {
			sum = sum.Add(r.ProfitLoss)
		}
	}
	return sum, nil
}

func (s *stubRepo) InsertRawStreamEvent(ctx context.Context, item *models.RawStreamEvent) error {
	s.events = append(s.events, *item)
	return nil
}

func (s *stubRepo) allPositions() []models.Position {
	ids := make([]uint64, 0, len(s.positions))
	for id := range s.positions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]models.Position, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.positions[id])
	}
	return out
}
