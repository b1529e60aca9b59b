package dflow

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://quote-api.dflow.net"

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dflow API error (%d): %s", e.Status, e.Body)
}

type Options struct {
	BaseURL       string
	Timeout       time.Duration
	RetryCount    int
	RetryWaitMin  time.Duration
	RetryWaitMax  time.Duration
	RatePerSecond float64
	RateBurst     int
	Logger        *zap.Logger
}

// Client talks to the DFlow market-data API. Transient failures (timeouts,
// 5xx, 429) are retried here with exponential backoff; callers only ever see
// the final outcome.
type Client struct {
	rest    *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryCount <= 0 {
		opts.RetryCount = 3
	}
	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = 500 * time.Millisecond
	}
	if opts.RetryWaitMax <= 0 {
		opts.RetryWaitMax = 4 * time.Second
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 10
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 20
	}

	rest := resty.New().
		SetBaseURL(base).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWaitMin).
		SetRetryMaxWaitTime(opts.RetryWaitMax).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			code := r.StatusCode()
			return code == http.StatusTooManyRequests || code >= 500
		})

	return &Client{
		rest:    rest,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.RateBurst),
		logger:  opts.Logger,
	}
}

func (c *Client) execute(ctx context.Context, method, path string, body, out any) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}
	req := c.rest.R().SetContext(ctx)
	if body != nil {
		req = req.SetBody(body)
	}
	if out != nil {
		req = req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("dflow request failed: %w", err)
	}
	return resp, nil
}

// GetMarketByTicker fetches a market. A 404 returns (nil, nil): an unknown
// ticker is an expected absence, not a failure.
func (c *Client) GetMarketByTicker(ctx context.Context, ticker string) (*Market, error) {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return nil, fmt.Errorf("ticker is required")
	}
	var out Market
	resp, err := c.execute(ctx, http.MethodGet, "/markets/"+url.PathEscape(ticker), nil, &out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return &out, nil
}

// GetMarketByMint resolves the market an outcome mint belongs to. 404 means
// the mint is not a known outcome token and returns (nil, nil).
func (c *Client) GetMarketByMint(ctx context.Context, mint string) (*Market, error) {
	mint = strings.TrimSpace(mint)
	if mint == "" {
		return nil, fmt.Errorf("mint is required")
	}
	var out Market
	resp, err := c.execute(ctx, http.MethodGet, "/markets/by-mint/"+url.PathEscape(mint), nil, &out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return &out, nil
}

// FilterOutcomeMints returns the subset of mints that are outcome tokens of
// some DFlow market.
func (c *Client) FilterOutcomeMints(ctx context.Context, mints []string) ([]string, error) {
	cleaned := make([]string, 0, len(mints))
	for _, m := range mints {
		if v := strings.TrimSpace(m); v != "" {
			cleaned = append(cleaned, v)
		}
	}
	if len(cleaned) == 0 {
		return nil, nil
	}
	var out filterMintsResponse
	resp, err := c.execute(ctx, http.MethodPost, "/mints/filter", filterMintsRequest{Mints: cleaned}, &out)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return out.OutcomeMints, nil
}

// SubmitRedemption executes a redemption order for a resolved market.
func (c *Client) SubmitRedemption(ctx context.Context, req RedemptionRequest) (*RedemptionResult, error) {
	if strings.TrimSpace(req.WalletAddress) == "" || strings.TrimSpace(req.TokenMint) == "" {
		return nil, fmt.Errorf("wallet and mint are required")
	}
	var out RedemptionResult
	resp, err := c.execute(ctx, http.MethodPost, "/redemptions", req, &out)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}
	return &out, nil
}
