package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dflowfolio/internal/client/dflow"
	"dflowfolio/internal/models"
	"dflowfolio/internal/repository"
)

// RedemptionOutcome reports a single redemption attempt. Validation problems
// come back as Success=false with a reason instead of an error: only
// infrastructure faults surface as errors.
type RedemptionOutcome struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	TxSignature    string          `json:"tx_signature,omitempty"`
	AmountRedeemed decimal.Decimal `json:"amount_redeemed"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	ProfitLoss     decimal.Decimal `json:"profit_loss"`
	PositionClosed bool            `json:"position_closed"`
}

// RedemptionService converts resolved positions back into the base currency
// through the provider and records the result.
type RedemptionService struct {
	Repo     repository.Repository
	Executor RedemptionExecutor
	Markets  MarketProvider
	Logger   *zap.Logger
}

func failure(reason string) RedemptionOutcome {
	return RedemptionOutcome{Success: false, Error: reason}
}

// Redeem executes a redemption for one position. A nil amount redeems the
// full balance. Partial redemptions leave the position open with the
// remaining balance.
func (s *RedemptionService) Redeem(ctx context.Context, positionID uint64, amount *decimal.Decimal) (RedemptionOutcome, error) {
	position, err := s.Repo.GetPositionByID(ctx, positionID)
	if err != nil {
		return RedemptionOutcome{}, fmt.Errorf("load position: %w", err)
	}
	if position == nil {
		return failure("position not found"), nil
	}
	if !position.IsRedeemable || position.MarketStatus != models.MarketStatusResolved {
		return failure("position is not redeemable"), nil
	}

	redeemAmount := position.Balance
	if amount != nil {
		redeemAmount = *amount
	}
	if !redeemAmount.IsPositive() {
		return failure("redemption amount must be positive"), nil
	}
	if redeemAmount.GreaterThan(position.Balance) {
		return failure("redemption amount exceeds position balance"), nil
	}

	result, err := s.Executor.SubmitRedemption(ctx, dflow.RedemptionRequest{
		WalletAddress: position.WalletAddress,
		TokenMint:     position.TokenMint,
		Amount:        redeemAmount,
	})
	if err != nil {
		return RedemptionOutcome{}, fmt.Errorf("submit redemption: %w", err)
	}
	if result == nil || result.TxSignature == "" {
		return RedemptionOutcome{}, fmt.Errorf("submit redemption: empty result from provider")
	}

	ok, err := s.Repo.DecrementPositionBalance(ctx, position.ID, result.AmountRedeemed)
	if err != nil {
		return RedemptionOutcome{}, fmt.Errorf("decrement balance: %w", err)
	}
	if !ok {
		// Another writer drained the balance between the load and the
		// decrement. The on-chain redemption still happened, so record it
		// before reporting the conflict.
		s.record(ctx, position, result)
		return failure("position balance changed concurrently"), nil
	}

	updated, err := s.Repo.GetPositionByID(ctx, position.ID)
	if err != nil {
		return RedemptionOutcome{}, fmt.Errorf("reload position: %w", err)
	}

	closed := updated != nil && !updated.Balance.IsPositive()
	if closed {
		if err := s.Repo.SetPositionStatus(ctx, position.ID, models.MarketStatusSettled, false); err != nil {
			return RedemptionOutcome{}, fmt.Errorf("settle position: %w", err)
		}
	}

	profitLoss := s.record(ctx, position, result)

	if s.Logger != nil {
		s.Logger.Info("redemption executed",
			zap.Uint64("position_id", position.ID),
			zap.String("tx", result.TxSignature),
			zap.String("amount_redeemed", result.AmountRedeemed.String()),
			zap.String("amount_received", result.AmountReceived.String()),
			zap.Bool("position_closed", closed),
		)
	}

	return RedemptionOutcome{
		Success:        true,
		TxSignature:    result.TxSignature,
		AmountRedeemed: result.AmountRedeemed,
		AmountReceived: result.AmountReceived,
		ProfitLoss:     profitLoss,
		PositionClosed: closed,
	}, nil
}

// record writes the REDEMPTION trade and the history row. Failures here are
// logged but never unwind the redemption itself.
func (s *RedemptionService) record(ctx context.Context, position *models.Position, result *dflow.RedemptionResult) decimal.Decimal {
	now := time.Now().UTC()

	perToken := decimal.Zero
	if result.AmountRedeemed.IsPositive() {
		perToken = result.AmountReceived.Div(result.AmountRedeemed)
	}
	profitLoss := result.AmountReceived.Sub(position.EntryPrice.Mul(result.AmountRedeemed))

	trade := &models.Trade{
		PositionID:    position.ID,
		TxSignature:   result.TxSignature,
		TradeType:     models.TradeTypeRedemption,
		Amount:        result.AmountRedeemed,
		Price:         perToken,
		ExecutionMode: models.ExecutionModeSync,
		ExecutedAt:    now,
	}
	if err := s.Repo.InsertTrade(ctx, trade); err != nil && s.Logger != nil {
		s.Logger.Error("record redemption trade failed",
			zap.Uint64("position_id", position.ID),
			zap.String("tx", result.TxSignature),
			zap.Error(err),
		)
	}

	record := &models.RedemptionRecord{
		PositionID:     position.ID,
		TxSignature:    result.TxSignature,
		AmountRedeemed: result.AmountRedeemed,
		AmountReceived: result.AmountReceived,
		ProfitLoss:     profitLoss,
		RedeemedAt:     now,
	}
	record.MarketResolvedAt = s.marketResolvedAt(ctx, position.TokenMint)
	if err := s.Repo.InsertRedemptionRecord(ctx, record); err != nil && s.Logger != nil {
		s.Logger.Error("record redemption failed",
			zap.Uint64("position_id", position.ID),
			zap.String("tx", result.TxSignature),
			zap.Error(err),
		)
	}

	return profitLoss
}

// marketResolvedAt looks up when the market settled. The timestamp is
// best-effort history metadata, so lookup failures leave it nil.
func (s *RedemptionService) marketResolvedAt(ctx context.Context, mint string) *time.Time {
	if s.Markets == nil {
		return nil
	}
	market, err := s.Markets.GetMarketByMint(ctx, mint)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("resolve market for redemption record failed",
				zap.String("mint", mint),
				zap.Error(err),
			)
		}
		return nil
	}
	if market == nil || market.ResolvedAt == nil {
		return nil
	}
	resolved, err := time.Parse(time.RFC3339, *market.ResolvedAt)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("parse market resolvedAt failed",
				zap.String("mint", mint),
				zap.String("resolved_at", *market.ResolvedAt),
				zap.Error(err),
			)
		}
		return nil
	}
	resolved = resolved.UTC()
	return &resolved
}
