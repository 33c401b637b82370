// Package quotes fetches prices and market-bias signals from the market-data service.
package quotes

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"portfolio-ledger/internal/config"
	"portfolio-ledger/internal/ledger"
	"portfolio-ledger/internal/metrics"
)

const maxRetries = 3

// ErrNoPrice is returned when the service has no usable price for a symbol.
var ErrNoPrice = errors.New("quotes: no price available")

// Source provides current prices and bias signals.
type Source interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
	GetBias(ctx context.Context, symbol string) (float64, error)
}

// Client is a REST client for the market-data service.
type Client struct {
	client  *resty.Client
	apiKey  string
	logger  *zap.Logger
	limiter *rate.Limiter
	backoff time.Duration
}

// ensure Client implements the interfaces
var (
	_ Source             = (*Client)(nil)
	_ ledger.PriceLookup = (*Client)(nil)
)

// NewClient creates a market-data client from cfg.
func NewClient(cfg config.Quotes, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second)

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &Client{
		client:  client,
		apiKey:  cfg.ApiKey,
		logger:  logger.Named("quotes"),
		limiter: limiter,
		backoff: time.Second,
	}
}

// QuoteResponse is the body of GET /quote/{symbol}.
type QuoteResponse struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// SignalResponse is the body of GET /signal/{symbol}.
type SignalResponse struct {
	Symbol         string  `json:"symbol"`
	BullConviction float64 `json:"bull_conviction"`
	BearConviction float64 `json:"bear_conviction"`
}

// Bias is bull conviction minus bear conviction.
func (s SignalResponse) Bias() float64 {
	return s.BullConviction - s.BearConviction
}

// GetPrice fetches the latest price for symbol.
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	symbol = ledger.NormalizeSymbol(symbol)
	req := c.newRequest(ctx).
		SetPathParam("symbol", symbol).
		SetResult(&QuoteResponse{})

	resp, err := c.doRequest(ctx, "quote", http.MethodGet, "/quote/{symbol}", req)
	if err != nil {
		return 0, fmt.Errorf("failed to get price for %s: %w", symbol, err)
	}

	result := resp.Result().(*QuoteResponse)
	if !(result.Price > 0) || math.IsInf(result.Price, 0) {
		return 0, fmt.Errorf("%w: %s returned %v", ErrNoPrice, symbol, result.Price)
	}
	return result.Price, nil
}

// GetBias fetches the market-bias signal for symbol.
func (c *Client) GetBias(ctx context.Context, symbol string) (float64, error) {
	symbol = ledger.NormalizeSymbol(symbol)
	req := c.newRequest(ctx).
		SetPathParam("symbol", symbol).
		SetResult(&SignalResponse{})

	resp, err := c.doRequest(ctx, "signal", http.MethodGet, "/signal/{symbol}", req)
	if err != nil {
		return 0, fmt.Errorf("failed to get signal for %s: %w", symbol, err)
	}
	return resp.Result().(*SignalResponse).Bias(), nil
}

// Price implements ledger.PriceLookup. Failures are logged and reported as no price.
func (c *Client) Price(ctx context.Context, symbol string) (float64, bool) {
	return lookup(ctx, c, c.logger, symbol)
}

func (c *Client) newRequest(ctx context.Context) *resty.Request {
	req := c.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json")
	if c.apiKey != "" {
		req.SetHeader("X-API-KEY", c.apiKey)
	}
	return req
}

// doRequest executes req with rate limiting, retrying throttled, server and network failures.
func (c *Client) doRequest(ctx context.Context, endpoint, method, url string, req *resty.Request) (*resty.Response, error) {
	start := time.Now()
	defer func() {
		metrics.QuoteRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	var resp *resty.Response
	var err error

	for i := 0; i < maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil
		}

		shouldRetry := false
		var retryAfter time.Duration

		if err == nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 {
				shouldRetry = true
			}
			err = fmt.Errorf("status %s: %s", resp.Status(), resp.String())
		} else if ctx.Err() != nil {
			return nil, ctx.Err()
		} else {
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with %w", err)
		}

		if retryAfter == 0 {
			// Exponential backoff: 1x, 2x, 4x
			retryAfter = c.backoff * time.Duration(1<<i)
		}

		c.logger.Warn("Request failed, retrying...",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// lookup adapts a Source to the ledger's price lookup contract.
func lookup(ctx context.Context, src Source, logger *zap.Logger, symbol string) (float64, bool) {
	price, err := src.GetPrice(ctx, symbol)
	if err != nil {
		logger.Warn("Price lookup failed", zap.String("symbol", symbol), zap.Error(err))
		return 0, false
	}
	return price, true
}

// Lookup returns a ledger.PriceLookup backed by src.
func Lookup(src Source, logger *zap.Logger) ledger.PriceLookup {
	return ledger.PriceFunc(func(ctx context.Context, symbol string) (float64, bool) {
		return lookup(ctx, src, logger, symbol)
	})
}
