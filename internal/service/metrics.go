package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dflowfolio/internal/models"
	"dflowfolio/internal/repository"
)

var (
	riskLowCeiling    = decimal.NewFromInt(100)
	riskMediumCeiling = decimal.NewFromInt(1000)
	hundred           = decimal.NewFromInt(100)
)

// MetricsEngine recomputes the valuation and risk fields of a single
// position. Recompute is idempotent: every call rebuilds the derived fields
// from trade history and the current price, so concurrent last-write-wins
// races between scheduled and on-demand refreshes are harmless.
type MetricsEngine struct {
	Repo   repository.Repository
	Prices PriceSource
	Logger *zap.Logger
}

func (e *MetricsEngine) Recompute(ctx context.Context, pos *models.Position) error {
	quote, err := e.Prices.GetPrice(ctx, pos.MarketTicker, pos.Outcome)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	pos.CurrentPrice = quote.Price
	pos.MarketPrice = quote.Price
	pos.EstimatedValue = pos.Balance.Mul(quote.Price)

	if pos.EntryPrice.IsZero() || pos.CostBasis.IsZero() {
		buys, err := e.Repo.ListBuyTradesOldestFirst(ctx, pos.ID)
		if err != nil {
			return err
		}
		entry, cost := aggregateBuys(buys)
		if pos.EntryPrice.IsZero() {
			pos.EntryPrice = entry
		}
		if pos.CostBasis.IsZero() {
			pos.CostBasis = cost
		}
	}

	if !pos.EntryPrice.IsZero() {
		pnlPerToken := pos.CurrentPrice.Sub(pos.EntryPrice)
		pos.UnrealizedPnL = pnlPerToken.Mul(pos.Balance)
		pos.UnrealizedPnLPercent = pnlPerToken.Div(pos.EntryPrice).Mul(hundred)
	}

	pos.RiskLevel = riskTierFor(pos.EstimatedValue)
	pos.DaysHeld = int(now.Sub(pos.CreatedAt).Hours() / 24)

	if quote.MarketStatus != "" && quote.MarketStatus != pos.MarketStatus &&
		pos.MarketStatus != models.MarketStatusSettled {
		pos.MarketStatus = quote.MarketStatus
	}
	pos.IsRedeemable = pos.MarketStatus == models.MarketStatusResolved && pos.Balance.IsPositive()

	pos.LastPriceUpdate = &now
	return e.Repo.UpdatePosition(ctx, pos)
}

// aggregateBuys returns the volume-weighted average entry price and the total
// cost basis over BUY trades. Trades must arrive oldest-first so the weighted
// average is reproducible.
func aggregateBuys(buys []models.Trade) (entryPrice, costBasis decimal.Decimal) {
	totalAmount := decimal.Zero
	totalCost := decimal.Zero
	for _, t := range buys {
		totalAmount = totalAmount.Add(t.Amount)
		totalCost = totalCost.Add(t.Amount.Mul(t.Price))
	}
	if totalAmount.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	return totalCost.Div(totalAmount), totalCost
}

func riskTierFor(estimatedValue decimal.Decimal) string {
	switch {
	case estimatedValue.LessThan(riskLowCeiling):
		return models.RiskLow
	case estimatedValue.LessThan(riskMediumCeiling):
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}
