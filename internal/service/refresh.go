package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dflowfolio/internal/repository"
)

const (
	defaultPositionBatch = 100
	defaultWalletBatch   = 50
)

// RefreshError is one position or wallet that failed inside a batch run.
// A single failure never aborts the rest of the batch.
type RefreshError struct {
	PositionID uint64 `json:"position_id,omitempty"`
	Wallet     string `json:"wallet,omitempty"`
	Reason     string `json:"reason"`
}

// RefreshResult summarizes one refresh run.
type RefreshResult struct {
	RunID     uuid.UUID      `json:"run_id"`
	Wallet    string         `json:"wallet,omitempty"`
	Found     int            `json:"found"`
	Updated   int            `json:"updated"`
	Errors    []RefreshError `json:"errors,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// RefreshService orchestrates the periodic pipeline: discover positions,
// refresh prices, recompute metrics and write snapshots. It backs both the
// cron jobs and the manual refresh endpoints.
type RefreshService struct {
	Repo      repository.Repository
	Discovery *DiscoveryService
	Metrics   *MetricsEngine
	Oracle    *PriceOracle
	Portfolio *PortfolioService
	Logger    *zap.Logger

	PositionBatch int
	WalletBatch   int
}

func (s *RefreshService) positionBatch() int {
	if s.PositionBatch > 0 {
		return s.PositionBatch
	}
	return defaultPositionBatch
}

func (s *RefreshService) walletBatch() int {
	if s.WalletBatch > 0 {
		return s.WalletBatch
	}
	return defaultWalletBatch
}

// RefreshWallet discovers new positions for one wallet and recomputes metrics
// for every position it holds. It never returns an error: failures are
// collected per item in the result.
func (s *RefreshService) RefreshWallet(ctx context.Context, walletAddress string) RefreshResult {
	result := RefreshResult{
		RunID:     uuid.New(),
		Wallet:    walletAddress,
		Timestamp: time.Now().UTC(),
	}

	discovered, err := s.Discovery.Discover(ctx, walletAddress)
	if err != nil {
		result.Errors = append(result.Errors, RefreshError{Wallet: walletAddress, Reason: "discovery: " + err.Error()})
	}
	result.Found = len(discovered)

	positions, err := s.Repo.ListPositionsByWallet(ctx, walletAddress)
	if err != nil {
		result.Errors = append(result.Errors, RefreshError{Wallet: walletAddress, Reason: "list positions: " + err.Error()})
		return result
	}

	for i := range positions {
		pos := &positions[i]
		if err := s.Metrics.Recompute(ctx, pos); err != nil {
			result.Errors = append(result.Errors, RefreshError{PositionID: pos.ID, Wallet: walletAddress, Reason: err.Error()})
			continue
		}
		result.Updated++
	}

	if s.Logger != nil {
		s.Logger.Info("wallet refresh finished",
			zap.String("run_id", result.RunID.String()),
			zap.String("wallet", walletAddress),
			zap.Int("found", result.Found),
			zap.Int("updated", result.Updated),
			zap.Int("errors", len(result.Errors)),
		)
	}
	return result
}

// RefreshAll runs RefreshWallet for every tracked wallet and merges the
// per-wallet results into one.
func (s *RefreshService) RefreshAll(ctx context.Context) RefreshResult {
	result := RefreshResult{
		RunID:     uuid.New(),
		Timestamp: time.Now().UTC(),
	}

	wallets, err := s.Repo.ListTrackedWallets(ctx)
	if err != nil {
		result.Errors = append(result.Errors, RefreshError{Reason: "list wallets: " + err.Error()})
		return result
	}

	for _, wallet := range wallets {
		sub := s.RefreshWallet(ctx, wallet)
		result.Found += sub.Found
		result.Updated += sub.Updated
		result.Errors = append(result.Errors, sub.Errors...)
	}

	if s.Logger != nil {
		s.Logger.Info("full refresh finished",
			zap.String("run_id", result.RunID.String()),
			zap.Int("wallets", len(wallets)),
			zap.Int("updated", result.Updated),
			zap.Int("errors", len(result.Errors)),
		)
	}
	return result
}

// RefreshPrices re-fetches quotes for every market that still has an active
// position, warming the cache ahead of the metrics pass.
func (s *RefreshService) RefreshPrices(ctx context.Context) {
	tickers, err := s.Repo.ListActiveMarketTickers(ctx)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error("list active markets failed", zap.Error(err))
		}
		return
	}
	if len(tickers) == 0 {
		return
	}
	stored := s.Oracle.RefreshMany(ctx, tickers)
	if s.Logger != nil {
		s.Logger.Info("price refresh finished",
			zap.Int("markets", len(tickers)),
			zap.Int("stored", stored),
		)
	}
}

// RefreshMetrics recomputes derived fields for a bounded batch of active
// positions. One bad position is logged and skipped.
func (s *RefreshService) RefreshMetrics(ctx context.Context) {
	positions, err := s.Repo.ListActivePositions(ctx, s.positionBatch())
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error("list active positions failed", zap.Error(err))
		}
		return
	}

	updated := 0
	for i := range positions {
		pos := &positions[i]
		if err := s.Metrics.Recompute(ctx, pos); err != nil {
			if s.Logger != nil {
				s.Logger.Warn("metrics recompute failed",
					zap.Uint64("position_id", pos.ID),
					zap.Error(err),
				)
			}
			continue
		}
		updated++
	}
	if s.Logger != nil {
		s.Logger.Info("metrics refresh finished",
			zap.Int("positions", len(positions)),
			zap.Int("updated", updated),
		)
	}
}

// SweepDiscovery re-runs discovery over a bounded batch of wallets with
// active positions, picking up holdings bought outside the app.
func (s *RefreshService) SweepDiscovery(ctx context.Context) {
	wallets, err := s.Repo.ListActiveWallets(ctx, s.walletBatch())
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error("list active wallets failed", zap.Error(err))
		}
		return
	}

	found := 0
	for _, wallet := range wallets {
		discovered, err := s.Discovery.Discover(ctx, wallet)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warn("discovery sweep failed for wallet",
					zap.String("wallet", wallet),
					zap.Error(err),
				)
			}
			continue
		}
		found += len(discovered)
	}
	if s.Logger != nil {
		s.Logger.Info("discovery sweep finished",
			zap.Int("wallets", len(wallets)),
			zap.Int("found", found),
		)
	}
}

// SnapshotAll writes today's snapshot row for every tracked wallet.
func (s *RefreshService) SnapshotAll(ctx context.Context) {
	wallets, err := s.Repo.ListTrackedWallets(ctx)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error("list wallets failed", zap.Error(err))
		}
		return
	}

	written := 0
	for _, wallet := range wallets {
		if err := s.Portfolio.Snapshot(ctx, wallet); err != nil {
			if s.Logger != nil {
				s.Logger.Warn("snapshot failed for wallet",
					zap.String("wallet", wallet),
					zap.Error(err),
				)
			}
			continue
		}
		written++
	}
	if s.Logger != nil {
		s.Logger.Info("snapshot run finished",
			zap.Int("wallets", len(wallets)),
			zap.Int("written", written),
		)
	}
}

// CleanupPriceCache deletes cache rows that expired before now.
func (s *RefreshService) CleanupPriceCache(ctx context.Context) {
	deleted, err := s.Repo.DeleteExpiredPriceCache(ctx, time.Now().UTC())
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error("price cache cleanup failed", zap.Error(err))
		}
		return
	}
	if s.Logger != nil && deleted > 0 {
		s.Logger.Info("price cache cleanup finished", zap.Int64("deleted", deleted))
	}
}
