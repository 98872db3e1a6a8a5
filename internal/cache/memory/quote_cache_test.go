package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Taekhyang/kiwoom-condition-trader/internal/domain"
)

func TestQuoteCacheSetGet(t *testing.T) {
	t.Parallel()

	c := NewQuoteCache()
	ctx := context.Background()
	ts := time.Now()

	require.NoError(t, c.SetQuote(ctx, "005930", 60000, ts))

	price, gotTs, err := c.GetQuote(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, 60000.0, price)
	assert.Equal(t, ts, gotTs)

	// A later tick overwrites the earlier one.
	require.NoError(t, c.SetQuote(ctx, "005930", 60100, ts.Add(time.Second)))
	price, _, err = c.GetQuote(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, 60100.0, price)
}

func TestQuoteCacheMiss(t *testing.T) {
	t.Parallel()

	c := NewQuoteCache()
	_, _, err := c.GetQuote(context.Background(), "005930")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQuoteCacheConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := NewQuoteCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.SetQuote(ctx, "005930", float64(n*100+j), time.Now())
				_, _, _ = c.GetQuote(ctx, "005930")
			}
		}(i)
	}
	wg.Wait()

	_, _, err := c.GetQuote(ctx, "005930")
	assert.NoError(t, err)
}
