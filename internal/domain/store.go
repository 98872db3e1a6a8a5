package domain

import (
	"context"
	"time"
)

// PositionLedger is the durable store of open and closing positions, keyed by
// buy order number. It is the single source of truth for what the trader
// currently holds; every mutation commits durably before returning success.
// Implementations must be safe for concurrent use: the condition watcher
// inserts records while the price watcher transitions and removes them.
type PositionLedger interface {
	// InsertOpen records a newly filled buy. It returns ErrDuplicateKey when
	// a record with the same buy order number already exists.
	InsertOpen(ctx context.Context, rec PositionRecord) error

	// MarkSellPlaced stores the sell order number on an existing record,
	// transitioning it from open to closing. It returns ErrNotFound when no
	// record with that buy order number exists.
	MarkSellPlaced(ctx context.Context, buyOrderID, sellOrderID string) error

	// Remove deletes the record whose sell order number matches. It returns
	// ErrNotFound when nothing matches; callers treat that as already done.
	Remove(ctx context.Context, sellOrderID string) error

	// ListAll returns a snapshot of every record. The snapshot does not
	// reflect writes that happen after it is taken.
	ListAll(ctx context.Context) ([]PositionRecord, error)
}

// QuoteCache holds the latest live price per stock code, fed by the broker's
// real-time tick stream and read by the price watcher's quote commands.
type QuoteCache interface {
	// SetQuote stores the latest price and tick timestamp for a code.
	SetQuote(ctx context.Context, stockCode string, price float64, ts time.Time) error

	// GetQuote returns the latest price for a code, or ErrNotFound when no
	// tick has been seen for it.
	GetQuote(ctx context.Context, stockCode string) (float64, time.Time, error)
}
