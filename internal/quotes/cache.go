package quotes

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"portfolio-ledger/internal/ledger"
)

// CachedPrices wraps a Source with a Redis read-through cache for prices.
// Bias signals are always fetched from the upstream source. A Redis failure
// degrades to an uncached read.
type CachedPrices struct {
	upstream Source
	rdb      *redis.Client
	ttl      time.Duration
	logger   *zap.Logger
}

var (
	_ Source             = (*CachedPrices)(nil)
	_ ledger.PriceLookup = (*CachedPrices)(nil)
)

// NewCachedPrices creates a cached wrapper around upstream.
func NewCachedPrices(upstream Source, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedPrices {
	return &CachedPrices{
		upstream: upstream,
		rdb:      rdb,
		ttl:      ttl,
		logger:   logger.Named("price_cache"),
	}
}

// GetPrice returns the cached price for symbol, fetching and caching it on a miss.
func (c *CachedPrices) GetPrice(ctx context.Context, symbol string) (float64, error) {
	symbol = ledger.NormalizeSymbol(symbol)

	cached, err := c.rdb.Get(ctx, priceKey(symbol)).Result()
	switch {
	case err == nil:
		if price, perr := strconv.ParseFloat(cached, 64); perr == nil && price > 0 {
			return price, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Debug("Price cache unavailable", zap.String("symbol", symbol), zap.Error(err))
	}

	price, err := c.upstream.GetPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}

	if err := c.rdb.Set(ctx, priceKey(symbol), strconv.FormatFloat(price, 'f', -1, 64), c.ttl).Err(); err != nil {
		c.logger.Debug("Failed to cache price", zap.String("symbol", symbol), zap.Error(err))
	}
	return price, nil
}

// GetBias passes through to the upstream source.
func (c *CachedPrices) GetBias(ctx context.Context, symbol string) (float64, error) {
	return c.upstream.GetBias(ctx, symbol)
}

// Invalidate drops the cached price for symbol.
func (c *CachedPrices) Invalidate(ctx context.Context, symbol string) error {
	return c.rdb.Del(ctx, priceKey(ledger.NormalizeSymbol(symbol))).Err()
}

// Price implements ledger.PriceLookup.
func (c *CachedPrices) Price(ctx context.Context, symbol string) (float64, bool) {
	return lookup(ctx, c, c.logger, symbol)
}

func priceKey(symbol string) string {
	return "portfolio:price:" + symbol
}

// NewRedisClient parses url and returns a connected client, or nil when url is empty.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
