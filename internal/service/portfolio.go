package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dflowfolio/internal/models"
	"dflowfolio/internal/repository"
)

var (
	riskHighFloor   = decimal.NewFromFloat(2.5)
	riskMediumFloor = decimal.NewFromFloat(1.5)
	ten             = decimal.NewFromInt(10)
)

// PortfolioSummary is the per-wallet rollup computed fresh on every call.
type PortfolioSummary struct {
	WalletAddress string `json:"wallet_address"`

	TotalPositions    int `json:"total_positions"`
	ActivePositions   int `json:"active_positions"`
	ResolvedPositions int `json:"resolved_positions"`

	TotalValue         decimal.Decimal `json:"total_value"`
	TotalCostBasis     decimal.Decimal `json:"total_cost_basis"`
	TotalUnrealizedPnL decimal.Decimal `json:"total_unrealized_pnl"`
	TotalRealizedPnL   decimal.Decimal `json:"total_realized_pnl"`
	NetPnL             decimal.Decimal `json:"net_pnl"`
	PortfolioReturn    decimal.Decimal `json:"portfolio_return"`

	RedeemablePositions int             `json:"redeemable_positions"`
	RedeemableValue     decimal.Decimal `json:"redeemable_value"`

	WinRate              decimal.Decimal `json:"win_rate"`
	AveragePositionSize  decimal.Decimal `json:"average_position_size"`
	LargestPosition      decimal.Decimal `json:"largest_position"`
	AverageHoldingPeriod decimal.Decimal `json:"average_holding_period"`
	PortfolioRisk        string          `json:"portfolio_risk"`
	DiversificationScore decimal.Decimal `json:"diversification_score"`

	DailyPnL   decimal.Decimal `json:"daily_pnl"`
	WeeklyPnL  decimal.Decimal `json:"weekly_pnl"`
	MonthlyPnL decimal.Decimal `json:"monthly_pnl"`

	GeneratedAt time.Time `json:"generated_at"`
}

// PortfolioService rolls a wallet's positions up into a summary and writes
// the daily snapshot rows the P&L windows are derived from.
type PortfolioService struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (s *PortfolioService) Summarize(ctx context.Context, walletAddress string) (PortfolioSummary, error) {
	walletAddress = strings.TrimSpace(walletAddress)
	summary := PortfolioSummary{
		WalletAddress: walletAddress,
		PortfolioRisk: models.RiskLow,
		GeneratedAt:   time.Now().UTC(),
	}

	positions, err := s.Repo.ListPositionsByWallet(ctx, walletAddress)
	if err != nil {
		return summary, err
	}

	realized, err := s.Repo.SumRealizedPnLByWallet(ctx, walletAddress)
	if err != nil {
		return summary, err
	}
	summary.TotalRealizedPnL = realized

	riskScoreSum := decimal.Zero
	daysHeldSum := decimal.Zero
	markets := map[string]struct{}{}
	winningResolved := 0

	for _, p := range positions {
		summary.TotalPositions++
		switch p.MarketStatus {
		case models.MarketStatusActive:
			summary.ActivePositions++
		case models.MarketStatusResolved:
			summary.ResolvedPositions++
			if p.UnrealizedPnL.IsPositive() {
				winningResolved++
			}
		}

		summary.TotalValue = summary.TotalValue.Add(p.EstimatedValue)
		summary.TotalCostBasis = summary.TotalCostBasis.Add(p.CostBasis)
		summary.TotalUnrealizedPnL = summary.TotalUnrealizedPnL.Add(p.UnrealizedPnL)

		if p.IsRedeemable {
			summary.RedeemablePositions++
			summary.RedeemableValue = summary.RedeemableValue.Add(p.EstimatedValue)
		}
		if p.EstimatedValue.GreaterThan(summary.LargestPosition) {
			summary.LargestPosition = p.EstimatedValue
		}

		riskScoreSum = riskScoreSum.Add(riskScore(p.RiskLevel))
		daysHeldSum = daysHeldSum.Add(decimal.NewFromInt(int64(p.DaysHeld)))
		markets[p.MarketTicker] = struct{}{}
	}

	summary.NetPnL = summary.TotalUnrealizedPnL.Add(summary.TotalRealizedPnL)
	if summary.TotalCostBasis.IsPositive() {
		summary.PortfolioReturn = summary.NetPnL.Div(summary.TotalCostBasis).Mul(hundred)
	}
	if summary.ResolvedPositions > 0 {
		summary.WinRate = decimal.NewFromInt(int64(winningResolved)).
			Div(decimal.NewFromInt(int64(summary.ResolvedPositions))).
			Mul(hundred)
	}
	if summary.TotalPositions > 0 {
		count := decimal.NewFromInt(int64(summary.TotalPositions))
		summary.AveragePositionSize = summary.TotalValue.Div(count)
		summary.AverageHoldingPeriod = daysHeldSum.Div(count)
		summary.PortfolioRisk = riskTierFromScore(riskScoreSum.Div(count))
	}
	summary.DiversificationScore = diversificationScore(len(markets))

	summary.DailyPnL = s.pnlWindow(ctx, walletAddress, summary.TotalValue, 1)
	summary.WeeklyPnL = s.pnlWindow(ctx, walletAddress, summary.TotalValue, 7)
	summary.MonthlyPnL = s.pnlWindow(ctx, walletAddress, summary.TotalValue, 30)

	return summary, nil
}

// Snapshot writes today's rollup row for a wallet. The row is immutable:
// re-running within the same day keeps the first write.
func (s *PortfolioService) Snapshot(ctx context.Context, walletAddress string) error {
	summary, err := s.Summarize(ctx, walletAddress)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	item := &models.PortfolioSnapshot{
		WalletAddress:   walletAddress,
		SnapshotDate:    now.Truncate(24 * time.Hour),
		TotalValue:      summary.TotalValue,
		DailyPnL:        summary.DailyPnL,
		CumulativePnL:   summary.NetPnL,
		PositionCount:   summary.TotalPositions,
		WinRate:         summary.WinRate,
		PortfolioReturn: summary.PortfolioReturn,
		NetDeposits:     summary.TotalCostBasis,
		CreatedAt:       now,
	}
	return s.Repo.InsertPortfolioSnapshot(ctx, item)
}

// pnlWindow is the delta between the current total value and the snapshot N
// days back. Missing history yields zero.
func (s *PortfolioService) pnlWindow(ctx context.Context, wallet string, totalValue decimal.Decimal, days int) decimal.Decimal {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	snap, err := s.Repo.GetSnapshotOnOrBefore(ctx, wallet, cutoff)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("snapshot lookup failed",
				zap.String("wallet", wallet),
				zap.Int("days", days),
				zap.Error(err),
			)
		}
		return decimal.Zero
	}
	if snap == nil {
		return decimal.Zero
	}
	return totalValue.Sub(snap.TotalValue)
}

func riskScore(level string) decimal.Decimal {
	switch level {
	case models.RiskHigh:
		return decimal.NewFromInt(3)
	case models.RiskMedium:
		return decimal.NewFromInt(2)
	default:
		return decimal.NewFromInt(1)
	}
}

func riskTierFromScore(score decimal.Decimal) string {
	switch {
	case score.GreaterThanOrEqual(riskHighFloor):
		return models.RiskHigh
	case score.GreaterThanOrEqual(riskMediumFloor):
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// diversificationScore scales linearly with distinct markets and saturates at
// ten of them.
func diversificationScore(distinctMarkets int) decimal.Decimal {
	ratio := decimal.NewFromInt(int64(distinctMarkets)).Div(ten)
	if ratio.GreaterThan(decimal.NewFromInt(1)) {
		ratio = decimal.NewFromInt(1)
	}
	return ratio.Mul(hundred)
}
