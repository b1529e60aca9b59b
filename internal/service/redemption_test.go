package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dflowfolio/internal/client/dflow"
	"dflowfolio/internal/models"
)

func seedRedeemable(t *testing.T, repo *stubRepo, balance, entry string) uint64 {
	t.Helper()
	p := models.Position{
		WalletAddress: "w1",
		TokenMint:     "yes1",
		Balance:       dec(balance),
		EntryPrice:    dec(entry),
		MarketTicker:  "BTC-100K",
		Outcome:       models.OutcomeYes,
		MarketStatus:  models.MarketStatusResolved,
		IsRedeemable:  true,
	}
	if err := repo.InsertPosition(context.Background(), &p); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return p.ID
}

func TestRedeem_FullClosesPosition(t *testing.T) {
	repo := newStubRepo()
	id := seedRedeemable(t, repo, "10", "0.40")
	exec := &stubExecutor{result: &dflow.RedemptionResult{
		TxSignature:    "sig1",
		AmountRedeemed: dec("10"),
		AmountReceived: dec("10"),
	}}
	svc := &RedemptionService{Repo: repo, Executor: exec}

	out, err := svc.Redeem(context.Background(), id, nil)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if !out.Success {
		t.Fatalf("failure: %s", out.Error)
	}
	if !out.PositionClosed {
		t.Fatalf("expected position closed")
	}
	if !out.ProfitLoss.Equal(dec("6")) {
		t.Fatalf("pnl=%s want 6", out.ProfitLoss)
	}

	pos := repo.positions[id]
	if pos.MarketStatus != models.MarketStatusSettled {
		t.Fatalf("status=%s want SETTLED", pos.MarketStatus)
	}
	if pos.IsRedeemable {
		t.Fatalf("settled position still redeemable")
	}
	if !pos.Balance.IsZero() {
		t.Fatalf("balance=%s want 0", pos.Balance)
	}

	if len(repo.trades) != 1 {
		t.Fatalf("trades=%d want 1", len(repo.trades))
	}
	trade := repo.trades[0]
	if trade.TradeType != models.TradeTypeRedemption {
		t.Fatalf("trade type=%s want REDEMPTION", trade.TradeType)
	}
	if !trade.Price.Equal(dec("1")) {
		t.Fatalf("trade price=%s want 1", trade.Price)
	}
	if len(repo.redemptions) != 1 {
		t.Fatalf("records=%d want 1", len(repo.redemptions))
	}
	if repo.redemptions[0].TxSignature != "sig1" {
		t.Fatalf("record tx=%s want sig1", repo.redemptions[0].TxSignature)
	}
}

func TestRedeem_RecordsMarketResolutionTime(t *testing.T) {
	repo := newStubRepo()
	id := seedRedeemable(t, repo, "10", "0.40")
	resolvedAt := "2026-08-15T12:00:00Z"
	exec := &stubExecutor{result: &dflow.RedemptionResult{
		TxSignature:    "sig4",
		AmountRedeemed: dec("10"),
		AmountReceived: dec("10"),
	}}
	markets := &stubMarketProvider{marketsByMint: map[string]*dflow.Market{
		"yes1": {Ticker: "BTC-100K", Status: "RESOLVED", ResolvedAt: &resolvedAt},
	}}
	svc := &RedemptionService{Repo: repo, Executor: exec, Markets: markets}

	out, err := svc.Redeem(context.Background(), id, nil)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if !out.Success {
		t.Fatalf("failure: %s", out.Error)
	}
	if len(repo.redemptions) != 1 {
		t.Fatalf("records=%d want 1", len(repo.redemptions))
	}
	got := repo.redemptions[0].MarketResolvedAt
	if got == nil {
		t.Fatalf("market_resolved_at not set")
	}
	want := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("market_resolved_at=%s want %s", got, want)
	}
}

func TestRedeem_MarketLookupFailureLeavesResolutionNil(t *testing.T) {
	repo := newStubRepo()
	id := seedRedeemable(t, repo, "10", "0.40")
	exec := &stubExecutor{result: &dflow.RedemptionResult{
		TxSignature:    "sig5",
		AmountRedeemed: dec("10"),
		AmountReceived: dec("10"),
	}}
	markets := &stubMarketProvider{mintErr: errors.New("metadata api down")}
	svc := &RedemptionService{Repo: repo, Executor: exec, Markets: markets}

	out, err := svc.Redeem(context.Background(), id, nil)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if !out.Success {
		t.Fatalf("failure: %s", out.Error)
	}
	if repo.redemptions[0].MarketResolvedAt != nil {
		t.Fatalf("market_resolved_at=%v want nil", repo.redemptions[0].MarketResolvedAt)
	}
}

func TestRedeem_PartialKeepsPositionOpen(t *testing.T) {
	repo := newStubRepo()
	id := seedRedeemable(t, repo, "10", "0.40")
	amount := dec("4")
	exec := &stubExecutor{result: &dflow.RedemptionResult{
		TxSignature:    "sig2",
		AmountRedeemed: dec("4"),
		AmountReceived: dec("4"),
	}}
	svc := &RedemptionService{Repo: repo, Executor: exec}

	out, err := svc.Redeem(context.Background(), id, &amount)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if !out.Success || out.PositionClosed {
		t.Fatalf("success=%v closed=%v want true/false", out.Success, out.PositionClosed)
	}

	pos := repo.positions[id]
	if !pos.Balance.Equal(dec("6")) {
		t.Fatalf("balance=%s want 6", pos.Balance)
	}
	if pos.MarketStatus != models.MarketStatusResolved {
		t.Fatalf("status=%s want RESOLVED", pos.MarketStatus)
	}
}

func TestRedeem_NotFound(t *testing.T) {
	svc := &RedemptionService{Repo: newStubRepo(), Executor: &stubExecutor{}}
	out, err := svc.Redeem(context.Background(), 99, nil)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if out.Success || out.Error == "" {
		t.Fatalf("expected structured failure, got %+v", out)
	}
}

func TestRedeem_NotRedeemable(t *testing.T) {
	repo := newStubRepo()
	p := models.Position{
		WalletAddress: "w1",
		TokenMint:     "yes1",
		Balance:       dec("10"),
		MarketTicker:  "BTC-100K",
		Outcome:       models.OutcomeYes,
		MarketStatus:  models.MarketStatusActive,
	}
	if err := repo.InsertPosition(context.Background(), &p); err != nil {
		t.Fatalf("insert: %v", err)
	}
	exec := &stubExecutor{}
	svc := &RedemptionService{Repo: repo, Executor: exec}

	out, err := svc.Redeem(context.Background(), p.ID, nil)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if out.Success {
		t.Fatalf("expected failure for active market")
	}
	if exec.calls != 0 {
		t.Fatalf("executor called %d times, want 0", exec.calls)
	}
}

func TestRedeem_AmountValidation(t *testing.T) {
	repo := newStubRepo()
	id := seedRedeemable(t, repo, "10", "0.40")
	exec := &stubExecutor{}
	svc := &RedemptionService{Repo: repo, Executor: exec}

	tooMuch := dec("11")
	out, err := svc.Redeem(context.Background(), id, &tooMuch)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if out.Success {
		t.Fatalf("expected failure for oversized amount")
	}

	zero := decimal.Zero
	out, err = svc.Redeem(context.Background(), id, &zero)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if out.Success {
		t.Fatalf("expected failure for zero amount")
	}
	if exec.calls != 0 {
		t.Fatalf("executor called %d times, want 0", exec.calls)
	}
}

func TestRedeem_ExecutorFailure(t *testing.T) {
	repo := newStubRepo()
	id := seedRedeemable(t, repo, "10", "0.40")
	exec := &stubExecutor{err: errors.New("quote api down")}
	svc := &RedemptionService{Repo: repo, Executor: exec}

	if _, err := svc.Redeem(context.Background(), id, nil); err == nil {
		t.Fatalf("expected error")
	}
	pos := repo.positions[id]
	if !pos.Balance.Equal(dec("10")) {
		t.Fatalf("balance=%s want untouched 10", pos.Balance)
	}
	if len(repo.redemptions) != 0 || len(repo.trades) != 0 {
		t.Fatalf("no records expected on executor failure")
	}
}

func TestRedeem_LossUnits(t *testing.T) {
	repo := newStubRepo()
	id := seedRedeemable(t, repo, "20", "0.80")
	exec := &stubExecutor{result: &dflow.RedemptionResult{
		TxSignature:    "sig3",
		AmountRedeemed: dec("20"),
		AmountReceived: dec("0"),
	}}
	svc := &RedemptionService{Repo: repo, Executor: exec}

	out, err := svc.Redeem(context.Background(), id, nil)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if !out.Success {
		t.Fatalf("failure: %s", out.Error)
	}
	if !out.ProfitLoss.Equal(dec("-16")) {
		t.Fatalf("pnl=%s want -16", out.ProfitLoss)
	}
}
