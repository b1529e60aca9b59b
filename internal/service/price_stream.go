package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"dflowfolio/internal/client/dflow"
	"dflowfolio/internal/models"
	"dflowfolio/internal/repository"
)

// PriceStreamService consumes the provider price feed: every event is
// archived raw and, when it carries quotes, folded into the price cache so
// streamed markets stay fresh between polling ticks.
type PriceStreamService struct {
	Repo   repository.Repository
	Logger *zap.Logger
	TTL    time.Duration
}

func (s *PriceStreamService) ttl() time.Duration {
	if s.TTL <= 0 {
		return 30 * time.Second
	}
	return s.TTL
}

// HandleEvent satisfies the stream handler contract. Errors are swallowed
// after logging so a bad message never tears the connection down.
func (s *PriceStreamService) HandleEvent(ctx context.Context, event dflow.PriceEvent, raw []byte) {
	s.archive(ctx, event, raw)

	if event.Ticker == "" {
		return
	}
	now := time.Now().UTC()
	s.applySide(ctx, event.Ticker, models.OutcomeYes, event.YesBid, event.YesAsk, now)
	s.applySide(ctx, event.Ticker, models.OutcomeNo, event.NoBid, event.NoAsk, now)
}

func (s *PriceStreamService) archive(ctx context.Context, event dflow.PriceEvent, raw []byte) {
	if !json.Valid(raw) {
		raw, _ = json.Marshal(event)
	}
	item := &models.RawStreamEvent{
		EventType:  event.EventType,
		ReceivedAt: time.Now().UTC(),
		Payload:    datatypes.JSON(raw),
	}
	if event.Ticker != "" {
		ticker := event.Ticker
		item.MarketTicker = &ticker
	}
	if err := s.Repo.InsertRawStreamEvent(ctx, item); err != nil && s.Logger != nil {
		s.Logger.Warn("stream event archive failed",
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
	}
}

// applySide upserts one outcome's cache entry. Events with no quote for the
// side leave the cache untouched instead of writing a neutral price over a
// real one.
func (s *PriceStreamService) applySide(ctx context.Context, ticker, outcome string, bid, ask *decimal.Decimal, now time.Time) {
	if bid == nil && ask == nil {
		return
	}
	var price decimal.Decimal
	switch {
	case bid != nil && ask != nil:
		price = bid.Add(*ask).Div(two)
	case bid != nil:
		price = *bid
	default:
		price = *ask
	}
	entry := &models.PriceCacheEntry{
		MarketTicker: ticker,
		Outcome:      outcome,
		CurrentPrice: price,
		Source:       models.PriceSourceAPI,
		LastUpdated:  now,
		ExpiresAt:    now.Add(s.ttl()),
	}
	if err := s.Repo.UpsertPriceCache(ctx, entry); err != nil && s.Logger != nil {
		s.Logger.Warn("stream price upsert failed",
			zap.String("market_ticker", ticker),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
	}
}
