// Package memory implements domain.QuoteCache as an in-process map. This is
// the default cache: the tick stream and its readers live in the same
// process.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Taekhyang/kiwoom-condition-trader/internal/domain"
)

type quote struct {
	price float64
	ts    time.Time
}

// QuoteCache holds the latest tick per stock code.
type QuoteCache struct {
	mu     sync.RWMutex
	quotes map[string]quote
}

// NewQuoteCache creates an empty cache.
func NewQuoteCache() *QuoteCache {
	return &QuoteCache{quotes: make(map[string]quote)}
}

// SetQuote stores the latest price and tick timestamp for a code.
func (c *QuoteCache) SetQuote(_ context.Context, stockCode string, price float64, ts time.Time) error {
	c.mu.Lock()
	c.quotes[stockCode] = quote{price: price, ts: ts}
	c.mu.Unlock()
	return nil
}

// GetQuote returns the latest price for a code, or domain.ErrNotFound when
// no tick has been seen for it.
func (c *QuoteCache) GetQuote(_ context.Context, stockCode string) (float64, time.Time, error) {
	c.mu.RLock()
	q, ok := c.quotes[stockCode]
	c.mu.RUnlock()
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return q.price, q.ts, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
