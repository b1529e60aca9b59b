package service

import (
	"context"

	"dflowfolio/internal/chain"
	"dflowfolio/internal/client/dflow"
)

type stubMarketProvider struct {
	markets       map[string]*dflow.Market
	marketsByMint map[string]*dflow.Market
	outcomeMints  []string

	tickerErr  error
	mintErr    error
	filterErr  error
	tickerHits int
}

func (s *stubMarketProvider) GetMarketByTicker(ctx context.Context, ticker string) (*dflow.Market, error) {
	s.tickerHits++
	if s.tickerErr != nil {
		return nil, s.tickerErr
	}
	return s.markets[ticker], nil
}

func (s *stubMarketProvider) GetMarketByMint(ctx context.Context, mint string) (*dflow.Market, error) {
	if s.mintErr != nil {
		return nil, s.mintErr
	}
	return s.marketsByMint[mint], nil
}

func (s *stubMarketProvider) FilterOutcomeMints(ctx context.Context, mints []string) ([]string, error) {
	if s.filterErr != nil {
		return nil, s.filterErr
	}
	return s.outcomeMints, nil
}

type stubPrices struct {
	quotes map[string]PriceQuote
	errs   map[string]error
}

func (s *stubPrices) GetPrice(ctx context.Context, marketTicker, outcome string) (PriceQuote, error) {
	key := cacheKey(marketTicker, outcome)
	if err, ok := s.errs[key]; ok {
		return PriceQuote{}, err
	}
	return s.quotes[key], nil
}

type stubWallet struct {
	holdings []chain.TokenHolding
	err      error
}

func (s *stubWallet) TokenHoldings(ctx context.Context, wallet string) ([]chain.TokenHolding, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.holdings, nil
}

type stubExecutor struct {
	result *dflow.RedemptionResult
	err    error
	calls  int
}

func (s *stubExecutor) SubmitRedemption(ctx context.Context, req dflow.RedemptionRequest) (*dflow.RedemptionResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}
