package dflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const DefaultStreamURL = "wss://stream.dflow.net/ws/prices"

type priceSubscribeRequest struct {
	Type    string   `json:"type"`
	Tickers []string `json:"tickers,omitempty"`
}

// TickerProvider supplies the set of market tickers to subscribe to. It is
// re-invoked on every reconnect so the subscription tracks the positions
// currently held.
type TickerProvider func(context.Context) ([]string, error)

type PriceStreamOptions struct {
	URL               string
	Tickers           []string
	TickerProvider    TickerProvider
	HeartbeatInterval time.Duration
	PingTimeout       time.Duration
	BackoffMin        time.Duration
	BackoffMax        time.Duration
	Logger            *zap.Logger
}

// PriceStream maintains a websocket subscription to the DFlow price feed with
// automatic reconnect and jittered backoff.
type PriceStream struct {
	opts      PriceStreamOptions
	seenFirst bool
}

func NewPriceStream(opts PriceStreamOptions) *PriceStream {
	if strings.TrimSpace(opts.URL) == "" {
		opts.URL = DefaultStreamURL
	}
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = 20 * time.Second
	}
	if opts.PingTimeout == 0 {
		opts.PingTimeout = 5 * time.Second
	}
	if opts.BackoffMin == 0 {
		opts.BackoffMin = 1 * time.Second
	}
	if opts.BackoffMax == 0 {
		opts.BackoffMax = 30 * time.Second
	}
	return &PriceStream{opts: opts}
}

func (s *PriceStream) Run(ctx context.Context, onEvent func(PriceEvent, []byte)) error {
	if s == nil {
		return fmt.Errorf("stream is nil")
	}
	backoff := s.opts.BackoffMin
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, _, err := websocket.Dial(ctx, s.opts.URL, nil)
		if err != nil {
			if s.opts.Logger != nil {
				s.opts.Logger.Warn("price stream connect failed", zap.Error(err))
			}
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, s.opts.BackoffMax)
			continue
		}
		conn.SetReadLimit(1 << 20)

		tickers := s.opts.Tickers
		if s.opts.TickerProvider != nil {
			if got, err := s.opts.TickerProvider(ctx); err == nil {
				tickers = got
			}
		}
		if len(tickers) == 0 {
			if s.opts.Logger != nil {
				s.opts.Logger.Warn("price stream subscribe skipped: no tickers")
			}
			_ = conn.Close(websocket.StatusInternalError, "no tickers")
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, s.opts.BackoffMax)
			continue
		}
		if err := subscribe(ctx, conn, tickers); err != nil {
			if s.opts.Logger != nil {
				s.opts.Logger.Warn("price stream subscribe failed", zap.Error(err))
			}
			_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, s.opts.BackoffMax)
			continue
		}
		if s.opts.Logger != nil {
			s.opts.Logger.Info("price stream subscribed", zap.Int("tickers", len(tickers)))
		}
		backoff = s.opts.BackoffMin

		err = s.consume(ctx, conn, onEvent)
		_ = conn.Close(websocket.StatusNormalClosure, "reconnect")
		if err == nil || errors.Is(err, context.Canceled) {
			return err
		}
		if err := sleepWithJitter(ctx, backoff); err != nil {
			return err
		}
		backoff = nextBackoff(backoff, s.opts.BackoffMax)
	}
}

func (s *PriceStream) consume(ctx context.Context, conn *websocket.Conn, onEvent func(PriceEvent, []byte)) error {
	heartbeatErr := make(chan error, 1)
	heartbeatCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(s.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatCtx.Done():
				heartbeatErr <- heartbeatCtx.Err()
				return
			case <-ticker.C:
				pingCtx, cancelPing := context.WithTimeout(heartbeatCtx, s.opts.PingTimeout)
				err := conn.Ping(pingCtx)
				cancelPing()
				if err != nil {
					heartbeatErr <- err
					return
				}
			}
		}
	}()

	for {
		select {
		case err := <-heartbeatErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		default:
		}
		_, data, err := conn.Read(ctx)
		if err != nil {
			if s.opts.Logger != nil && !errors.Is(err, context.Canceled) {
				s.opts.Logger.Warn("price stream read failed", zap.Error(err))
			}
			return err
		}
		var event PriceEvent
		_ = json.Unmarshal(data, &event)
		if strings.EqualFold(event.EventType, "ping") {
			_ = conn.Write(ctx, websocket.MessageText, []byte(`{"event_type":"pong"}`))
			continue
		}
		if s.opts.Logger != nil && !s.seenFirst {
			s.seenFirst = true
			s.opts.Logger.Info("price stream first message", zap.String("event_type", event.EventType))
		}
		if onEvent != nil {
			onEvent(event, data)
		}
	}
}

func subscribe(ctx context.Context, conn *websocket.Conn, tickers []string) error {
	payload, err := json.Marshal(priceSubscribeRequest{Type: "prices", Tickers: tickers})
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithJitter(ctx context.Context, base time.Duration) error {
	if base <= 0 {
		return nil
	}
	jitter := time.Duration(rand.Int63n(int64(base / 2)))
	timer := time.NewTimer(base + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
