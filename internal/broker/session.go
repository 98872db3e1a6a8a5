// Package broker defines the Session interface through which all broker
// operations are performed. The session owns the single connection to the
// trading venue: it is stateful, not reentrant, and must only ever see one
// in-flight request at a time. The command bus is the sole caller.
package broker

import (
	"context"

	"github.com/Taekhyang/kiwoom-condition-trader/internal/domain"
)

// Session abstracts the broker connection. Order methods return the
// broker-assigned order number verbatim; the broker signals a rejected order
// by answering with a non-numeric error code in place of the number, which is
// the caller's to detect. Quote and status queries return
// domain.ErrUnavailable when the venue has no data.
type Session interface {
	// Buy places a market buy order and returns the order number.
	Buy(ctx context.Context, account, stockCode string, quantity int64) (string, error)

	// Sell places a market sell order and returns the order number.
	Sell(ctx context.Context, account, stockCode string, quantity int64) (string, error)

	// GetCurrentQuote returns the latest traded price for a code.
	GetCurrentQuote(ctx context.Context, stockCode string) (float64, error)

	// GetLiveQuote returns the most recent real-time tick for a code. It
	// only yields data for codes previously passed to
	// RegisterLiveQuoteSubscriptions.
	GetLiveQuote(ctx context.Context, stockCode string) (float64, error)

	// GetMatchedConditionStocks returns the codes currently matching the
	// registered screening conditions.
	GetMatchedConditionStocks(ctx context.Context) ([]string, error)

	// GetOrderStatus returns the fill state of an order.
	GetOrderStatus(ctx context.Context, orderID string) (domain.OrderStatus, error)

	// RegisterConditions subscribes to the named screening conditions.
	// Re-registering the same names is a no-op at the venue.
	RegisterConditions(ctx context.Context, conditions []string) error

	// RegisterLiveQuoteSubscriptions subscribes the codes to the real-time
	// tick stream. Re-registering already subscribed codes is harmless.
	RegisterLiveQuoteSubscriptions(ctx context.Context, stockCodes []string) error

	// CancelSellOrder cancels an open sell order.
	CancelSellOrder(ctx context.Context, orderID string) error

	// IsConnected reports whether the session has reached a usable state.
	IsConnected() bool
}
