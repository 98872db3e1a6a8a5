package domain

import "errors"

var (
	// ErrTimeout means a submitted command received no reply within the
	// configured bound. It is distinct from a failure reply returned by
	// the broker itself.
	ErrTimeout = errors.New("command timed out")

	// ErrBrokerRejected means the broker answered an order command with an
	// error code instead of an order number.
	ErrBrokerRejected = errors.New("broker rejected order")

	// ErrUnavailable means a quote or order-status query returned no data.
	ErrUnavailable = errors.New("data unavailable")

	// ErrNotConnected means the broker session has not reached a connected
	// state yet.
	ErrNotConnected = errors.New("broker session not connected")

	ErrDuplicateKey = errors.New("duplicate key")
	ErrNotFound     = errors.New("not found")
)
