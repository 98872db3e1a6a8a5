package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Taekhyang/kiwoom-condition-trader/internal/domain"
)

// QuoteCache implements domain.QuoteCache using Redis hashes. Each code's
// latest tick is stored at key "quote:{code}" with fields "price" and "ts"
// (Unix nanosecond timestamp).
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(stockCode string) string {
	return "quote:" + stockCode
}

// SetQuote stores the latest price and tick timestamp for a code.
func (qc *QuoteCache) SetQuote(ctx context.Context, stockCode string, price float64, ts time.Time) error {
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := qc.rdb.HSet(ctx, quoteKey(stockCode), fields).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", stockCode, err)
	}
	return nil
}

// GetQuote retrieves the latest price and timestamp for a code. It returns
// domain.ErrNotFound when no tick has been stored.
func (qc *QuoteCache) GetQuote(ctx context.Context, stockCode string) (float64, time.Time, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(stockCode)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get quote %s: %w", stockCode, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s: %w", stockCode, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", stockCode, err)
	}

	return price, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
