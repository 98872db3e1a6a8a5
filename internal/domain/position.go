// Package domain defines the core types shared across the trader: position
// records, broker commands, the error taxonomy, and the persistence and cache
// interfaces implemented by the store and cache packages.
package domain

// PositionRecord is one held (or closing) position, keyed by the buy order
// number the broker assigned when the order was placed. Buy order numbers are
// never reused across records.
type PositionRecord struct {
	// BuyOrderID is the broker-assigned order number of the filled buy.
	BuyOrderID string

	// StockCode is the instrument code, e.g. "068270".
	StockCode string

	// Quantity is the number of shares held. Always > 0.
	Quantity int64

	// EntryPrice is the confirmed fill price, not the requested price.
	EntryPrice float64

	// SellOrderID is empty while the position is open. Once a sell has been
	// placed it holds the sell order number; such a position is closing and
	// must not be evaluated for selling again. The record is removed only
	// after the sell is confirmed fully filled.
	SellOrderID string
}

// Open reports whether the position is still sellable, i.e. no sell order
// has been placed for it yet.
func (p PositionRecord) Open() bool {
	return p.SellOrderID == ""
}

// OrderStatus is the broker's view of a single order, returned by order
// history queries.
type OrderStatus struct {
	OrderID     string
	StockCode   string
	OrderedQty  int64
	FilledQty   int64
	FilledPrice float64
}

// Filled reports whether the order has been executed in full.
func (s OrderStatus) Filled() bool {
	return s.OrderedQty > 0 && s.FilledQty == s.OrderedQty
}
