package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dflowfolio/internal/client/dflow"
	"dflowfolio/internal/models"
	"dflowfolio/internal/repository"
)

// ErrMarketNotFound is returned when neither the provider nor the cache knows
// the requested market.
var ErrMarketNotFound = errors.New("market not found")

var two = decimal.NewFromInt(2)

// neutralPrice is used when a market carries no bid and no ask for the
// requested outcome.
var neutralPrice = decimal.NewFromFloat(0.5)

// PriceQuote is the oracle's answer for one (market, outcome) pair.
// MarketStatus is only populated when the quote came fresh from the provider.
type PriceQuote struct {
	MarketTicker string          `json:"market_ticker"`
	Outcome      string          `json:"outcome"`
	Price        decimal.Decimal `json:"price"`
	Change24h    decimal.Decimal `json:"change_24h"`
	Change24hPct decimal.Decimal `json:"change_24h_pct"`
	Volume24h    decimal.Decimal `json:"volume_24h"`
	Source       string          `json:"source"`
	MarketStatus string          `json:"market_status,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// PriceOracle is a time-boxed price cache in front of the market-data
// provider. The cache store is owned by this component and shared across
// callers through it; nothing else touches the price_cache table.
type PriceOracle struct {
	Repo     repository.Repository
	Provider MarketProvider
	Logger   *zap.Logger
	TTL      time.Duration
}

func (o *PriceOracle) ttl() time.Duration {
	if o.TTL <= 0 {
		return 30 * time.Second
	}
	return o.TTL
}

// GetPrice returns a cached quote when the entry is still inside its TTL,
// otherwise refetches from the provider. When the provider is unreachable an
// expired entry is served as a degraded fallback rather than failing the
// caller: stale pricing beats breaking metric computation.
func (o *PriceOracle) GetPrice(ctx context.Context, marketTicker, outcome string) (PriceQuote, error) {
	entry, err := o.Repo.GetPriceCache(ctx, marketTicker, outcome)
	if err != nil {
		return PriceQuote{}, err
	}
	now := time.Now().UTC()
	if entry != nil && !entry.Expired(now) {
		return quoteFromEntry(entry, ""), nil
	}

	market, err := o.Provider.GetMarketByTicker(ctx, marketTicker)
	if err != nil || market == nil {
		if entry != nil {
			if o.Logger != nil {
				o.Logger.Warn("serving stale price, provider unavailable",
					zap.String("market_ticker", marketTicker),
					zap.String("outcome", outcome),
					zap.Error(err),
				)
			}
			return quoteFromEntry(entry, models.PriceSourceCached), nil
		}
		if err != nil {
			return PriceQuote{}, err
		}
		return PriceQuote{}, ErrMarketNotFound
	}

	quote := o.storeQuote(ctx, market, marketTicker, outcome, now)
	return quote, nil
}

// RefreshMany refetches both outcomes for each market. One failing market is
// logged and skipped; the batch always runs to completion. Returns the number
// of markets refreshed.
func (o *PriceOracle) RefreshMany(ctx context.Context, marketTickers []string) int {
	refreshed := 0
	now := time.Now().UTC()
	for _, ticker := range marketTickers {
		market, err := o.Provider.GetMarketByTicker(ctx, ticker)
		if err != nil {
			if o.Logger != nil {
				o.Logger.Warn("price refresh failed for market",
					zap.String("market_ticker", ticker),
					zap.Error(err),
				)
			}
			continue
		}
		if market == nil {
			continue
		}
		o.storeQuote(ctx, market, ticker, models.OutcomeYes, now)
		o.storeQuote(ctx, market, ticker, models.OutcomeNo, now)
		refreshed++
	}
	return refreshed
}

func (o *PriceOracle) storeQuote(ctx context.Context, market *dflow.Market, marketTicker, outcome string, now time.Time) PriceQuote {
	price, source := deriveOutcomePrice(market, outcome)
	entry := &models.PriceCacheEntry{
		MarketTicker: marketTicker,
		Outcome:      outcome,
		CurrentPrice: price,
		Source:       source,
		LastUpdated:  now,
		ExpiresAt:    now.Add(o.ttl()),
	}
	if market.Change24h != nil {
		entry.Change24h = *market.Change24h
	}
	if market.Change24hPct != nil {
		entry.Change24hPct = *market.Change24hPct
	}
	if market.Volume24h != nil {
		entry.Volume24h = *market.Volume24h
	}
	if err := o.Repo.UpsertPriceCache(ctx, entry); err != nil && o.Logger != nil {
		o.Logger.Warn("price cache upsert failed",
			zap.String("market_ticker", marketTicker),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
	}
	quote := quoteFromEntry(entry, "")
	quote.MarketStatus = normalizeMarketStatus(market.Status)
	return quote
}

// deriveOutcomePrice follows the quote derivation rule: midpoint when both
// sides are present, the single available side otherwise, 0.5 when the book
// is empty.
func deriveOutcomePrice(market *dflow.Market, outcome string) (decimal.Decimal, string) {
	bid, ask := market.YesBid, market.YesAsk
	if outcome == models.OutcomeNo {
		bid, ask = market.NoBid, market.NoAsk
	}
	switch {
	case bid != nil && ask != nil:
		return bid.Add(*ask).Div(two), models.PriceSourceAPI
	case bid != nil:
		return *bid, models.PriceSourceAPI
	case ask != nil:
		return *ask, models.PriceSourceAPI
	default:
		return neutralPrice, models.PriceSourceCalculated
	}
}

func quoteFromEntry(entry *models.PriceCacheEntry, sourceOverride string) PriceQuote {
	source := entry.Source
	if sourceOverride != "" {
		source = sourceOverride
	}
	return PriceQuote{
		MarketTicker: entry.MarketTicker,
		Outcome:      entry.Outcome,
		Price:        entry.CurrentPrice,
		Change24h:    entry.Change24h,
		Change24hPct: entry.Change24hPct,
		Volume24h:    entry.Volume24h,
		Source:       source,
		UpdatedAt:    entry.LastUpdated,
	}
}
