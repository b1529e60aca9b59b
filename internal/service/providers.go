package service

import (
	"context"
	"strings"

	"dflowfolio/internal/client/dflow"
	"dflowfolio/internal/models"
)

// MarketProvider is the market-data side of the DFlow API consumed by the
// core. *dflow.Client satisfies it.
type MarketProvider interface {
	GetMarketByTicker(ctx context.Context, ticker string) (*dflow.Market, error)
	GetMarketByMint(ctx context.Context, mint string) (*dflow.Market, error)
	FilterOutcomeMints(ctx context.Context, mints []string) ([]string, error)
}

// RedemptionExecutor submits redemption orders for resolved markets.
// *dflow.Client satisfies it.
type RedemptionExecutor interface {
	SubmitRedemption(ctx context.Context, req dflow.RedemptionRequest) (*dflow.RedemptionResult, error)
}

// PriceSource supplies a current price for one (market, outcome) pair.
// *PriceOracle satisfies it.
type PriceSource interface {
	GetPrice(ctx context.Context, marketTicker, outcome string) (PriceQuote, error)
}

func normalizeMarketStatus(status string) string {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "ACTIVE", "OPEN", "TRADING":
		return models.MarketStatusActive
	case "RESOLVED":
		return models.MarketStatusResolved
	case "SETTLED", "CLOSED":
		return models.MarketStatusSettled
	case "CANCELLED", "CANCELED", "VOID":
		return models.MarketStatusCancelled
	default:
		return ""
	}
}
