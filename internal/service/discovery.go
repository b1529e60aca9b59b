package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"dflowfolio/internal/chain"
	"dflowfolio/internal/models"
	"dflowfolio/internal/repository"
)

// DiscoveryService reconciles a wallet's on-chain token holdings against the
// provider's outcome-mint registry and materializes Position rows for
// holdings we are not yet tracking.
type DiscoveryService struct {
	Repo     repository.Repository
	Wallet   chain.WalletReader
	Provider MarketProvider
	Logger   *zap.Logger
}

// Discover returns the newly created positions. Running it twice with
// unchanged holdings creates nothing the second time: existence is keyed on
// the (wallet, mint) unique pair. A failed metadata lookup skips that holding
// only; a failed holdings enumeration aborts the whole discovery.
func (s *DiscoveryService) Discover(ctx context.Context, walletAddress string) ([]models.Position, error) {
	walletAddress = strings.TrimSpace(walletAddress)
	if walletAddress == "" {
		return nil, fmt.Errorf("wallet address is required")
	}

	holdings, err := s.Wallet.TokenHoldings(ctx, walletAddress)
	if err != nil {
		return nil, fmt.Errorf("enumerate holdings for %s: %w", walletAddress, err)
	}
	if len(holdings) == 0 {
		return nil, nil
	}

	mints := make([]string, 0, len(holdings))
	byMint := make(map[string]chain.TokenHolding, len(holdings))
	for _, h := range holdings {
		mints = append(mints, h.Mint)
		byMint[h.Mint] = h
	}
	outcomeMints, err := s.Provider.FilterOutcomeMints(ctx, mints)
	if err != nil {
		return nil, fmt.Errorf("classify mints for %s: %w", walletAddress, err)
	}

	var created []models.Position
	for _, mint := range outcomeMints {
		holding, ok := byMint[mint]
		if !ok || !holding.Balance.IsPositive() {
			continue
		}
		existing, err := s.Repo.GetPositionByWalletMint(ctx, walletAddress, mint)
		if err != nil {
			return created, err
		}
		if existing != nil {
			continue
		}

		market, err := s.Provider.GetMarketByMint(ctx, mint)
		if err != nil || market == nil {
			if s.Logger != nil {
				s.Logger.Warn("skipping holding, market metadata unavailable",
					zap.String("wallet", walletAddress),
					zap.String("mint", mint),
					zap.Error(err),
				)
			}
			continue
		}
		outcome, baseMint, ok := market.OutcomeForMint(mint)
		if !ok {
			if s.Logger != nil {
				s.Logger.Warn("skipping holding, mint not part of its market",
					zap.String("wallet", walletAddress),
					zap.String("mint", mint),
					zap.String("market_ticker", market.Ticker),
				)
			}
			continue
		}

		status := normalizeMarketStatus(market.Status)
		if status == "" {
			status = models.MarketStatusActive
		}
		// Entry price and cost basis stay zero here: the metrics engine
		// derives them lazily from the trade history.
		pos := models.Position{
			WalletAddress: walletAddress,
			TokenMint:     mint,
			RawBalance:    holding.RawBalance,
			Decimals:      holding.Decimals,
			Balance:       holding.Balance,
			MarketTicker:  market.Ticker,
			MarketTitle:   market.Title,
			Outcome:       outcome,
			BaseMint:      baseMint,
			MarketStatus:  status,
			RiskLevel:     models.RiskMedium,
			CreatedAt:     time.Now().UTC(),
		}
		if err := s.Repo.InsertPosition(ctx, &pos); err != nil {
			return created, err
		}
		created = append(created, pos)
		if s.Logger != nil {
			s.Logger.Info("position discovered",
				zap.String("wallet", walletAddress),
				zap.String("mint", mint),
				zap.String("market_ticker", market.Ticker),
				zap.String("outcome", outcome),
			)
		}
	}
	return created, nil
}
