package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"dflowfolio/internal/client/dflow"
	"dflowfolio/internal/models"
)

func marketWithBook(ticker, yesBid, yesAsk string) *dflow.Market {
	m := &dflow.Market{Ticker: ticker, Status: "ACTIVE"}
	if yesBid != "" {
		d := dec(yesBid)
		m.YesBid = &d
	}
	if yesAsk != "" {
		d := dec(yesAsk)
		m.YesAsk = &d
	}
	return m
}

func TestGetPrice_CachesWithinTTL(t *testing.T) {
	repo := newStubRepo()
	provider := &stubMarketProvider{markets: map[string]*dflow.Market{
		"BTC-100K": marketWithBook("BTC-100K", "0.60", "0.70"),
	}}
	oracle := &PriceOracle{Repo: repo, Provider: provider, TTL: time.Minute}

	first, err := oracle.GetPrice(context.Background(), "BTC-100K", models.OutcomeYes)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if !first.Price.Equal(dec("0.65")) {
		t.Fatalf("price=%s want 0.65", first.Price)
	}
	if first.Source != models.PriceSourceAPI {
		t.Fatalf("source=%s want API", first.Source)
	}

	second, err := oracle.GetPrice(context.Background(), "BTC-100K", models.OutcomeYes)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.Price.Equal(dec("0.65")) {
		t.Fatalf("price=%s want 0.65", second.Price)
	}
	if provider.tickerHits != 1 {
		t.Fatalf("provider hits=%d want 1", provider.tickerHits)
	}
}

func TestGetPrice_ExpiredRefetches(t *testing.T) {
	repo := newStubRepo()
	now := time.Now().UTC()
	repo.cache[cacheKey("BTC-100K", "YES")] = &models.PriceCacheEntry{
		MarketTicker: "BTC-100K",
		Outcome:      models.OutcomeYes,
		CurrentPrice: dec("0.40"),
		Source:       models.PriceSourceAPI,
		LastUpdated:  now.Add(-2 * time.Minute),
		ExpiresAt:    now.Add(-time.Minute),
	}
	provider := &stubMarketProvider{markets: map[string]*dflow.Market{
		"BTC-100K": marketWithBook("BTC-100K", "0.60", "0.70"),
	}}
	oracle := &PriceOracle{Repo: repo, Provider: provider, TTL: time.Minute}

	quote, err := oracle.GetPrice(context.Background(), "BTC-100K", models.OutcomeYes)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !quote.Price.Equal(dec("0.65")) {
		t.Fatalf("price=%s want 0.65", quote.Price)
	}
	if provider.tickerHits != 1 {
		t.Fatalf("provider hits=%d want 1", provider.tickerHits)
	}
	entry := repo.cache[cacheKey("BTC-100K", "YES")]
	if entry.ExpiresAt.Before(now) {
		t.Fatalf("cache entry not refreshed")
	}
}

func TestGetPrice_StaleFallback(t *testing.T) {
	repo := newStubRepo()
	now := time.Now().UTC()
	repo.cache[cacheKey("BTC-100K", "YES")] = &models.PriceCacheEntry{
		MarketTicker: "BTC-100K",
		Outcome:      models.OutcomeYes,
		CurrentPrice: dec("0.40"),
		Source:       models.PriceSourceAPI,
		LastUpdated:  now.Add(-2 * time.Minute),
		ExpiresAt:    now.Add(-time.Minute),
	}
	provider := &stubMarketProvider{tickerErr: errors.New("connection refused")}
	oracle := &PriceOracle{Repo: repo, Provider: provider, TTL: time.Minute}

	quote, err := oracle.GetPrice(context.Background(), "BTC-100K", models.OutcomeYes)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !quote.Price.Equal(dec("0.40")) {
		t.Fatalf("price=%s want stale 0.40", quote.Price)
	}
	if quote.Source != models.PriceSourceCached {
		t.Fatalf("source=%s want CACHED", quote.Source)
	}
}

func TestGetPrice_UnknownMarket(t *testing.T) {
	repo := newStubRepo()
	provider := &stubMarketProvider{}
	oracle := &PriceOracle{Repo: repo, Provider: provider}

	_, err := oracle.GetPrice(context.Background(), "NOPE", models.OutcomeYes)
	if !errors.Is(err, ErrMarketNotFound) {
		t.Fatalf("err=%v want ErrMarketNotFound", err)
	}
}

func TestGetPrice_ProviderErrorNoCache(t *testing.T) {
	repo := newStubRepo()
	provider := &stubMarketProvider{tickerErr: errors.New("boom")}
	oracle := &PriceOracle{Repo: repo, Provider: provider}

	_, err := oracle.GetPrice(context.Background(), "BTC-100K", models.OutcomeYes)
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestDeriveOutcomePrice(t *testing.T) {
	bid := dec("0.30")
	ask := dec("0.50")

	price, source := deriveOutcomePrice(&dflow.Market{YesBid: &bid, YesAsk: &ask}, models.OutcomeYes)
	if !price.Equal(dec("0.40")) || source != models.PriceSourceAPI {
		t.Fatalf("both sides: price=%s source=%s", price, source)
	}

	price, source = deriveOutcomePrice(&dflow.Market{YesBid: &bid}, models.OutcomeYes)
	if !price.Equal(bid) || source != models.PriceSourceAPI {
		t.Fatalf("bid only: price=%s source=%s", price, source)
	}

	price, source = deriveOutcomePrice(&dflow.Market{YesAsk: &ask}, models.OutcomeYes)
	if !price.Equal(ask) || source != models.PriceSourceAPI {
		t.Fatalf("ask only: price=%s source=%s", price, source)
	}

	price, source = deriveOutcomePrice(&dflow.Market{}, models.OutcomeYes)
	if !price.Equal(dec("0.5")) || source != models.PriceSourceCalculated {
		t.Fatalf("empty book: price=%s source=%s", price, source)
	}

	noBid := dec("0.60")
	price, source = deriveOutcomePrice(&dflow.Market{YesBid: &bid, YesAsk: &ask, NoBid: &noBid}, models.OutcomeNo)
	if !price.Equal(noBid) || source != models.PriceSourceAPI {
		t.Fatalf("no side: price=%s source=%s", price, source)
	}
}

func TestRefreshMany_IsolatesFailures(t *testing.T) {
	repo := newStubRepo()
	provider := &stubMarketProvider{markets: map[string]*dflow.Market{
		"BTC-100K": marketWithBook("BTC-100K", "0.60", "0.70"),
	}}
	oracle := &PriceOracle{Repo: repo, Provider: provider, TTL: time.Minute}

	refreshed := oracle.RefreshMany(context.Background(), []string{"BTC-100K", "GONE"})
	if refreshed != 1 {
		t.Fatalf("refreshed=%d want 1", refreshed)
	}
	if _, ok := repo.cache[cacheKey("BTC-100K", "YES")]; !ok {
		t.Fatalf("YES entry missing")
	}
	if _, ok := repo.cache[cacheKey("BTC-100K", "NO")]; !ok {
		t.Fatalf("NO entry missing")
	}
}
