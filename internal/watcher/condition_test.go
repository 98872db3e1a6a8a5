package watcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Taekhyang/kiwoom-condition-trader/internal/domain"
)

func newConditionWatcher(bus Commander, ledger domain.PositionLedger, budget float64) *ConditionWatcher {
	return NewConditionWatcher(
		bus, ledger, testNotifier(),
		"8012345611", budget,
		time.Second, 0, // no pacing delay in tests
		testLogger(),
	)
}

func TestConditionWatcherBuysAndRecordsFill(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	bus := &fakeBus{handler: func(cmd domain.Command) (domain.Reply, error) {
		switch cmd.Type {
		case domain.CmdConditions:
			return domain.Reply{StockCodes: []string{"005930"}}, nil
		case domain.CmdCurrentQuote:
			return domain.Reply{Price: 60000}, nil
		case domain.CmdBuy:
			return domain.Reply{OrderID: "123456"}, nil
		case domain.CmdOrderStatus:
			return domain.Reply{Status: domain.OrderStatus{
				OrderID:     cmd.OrderID,
				StockCode:   "005930",
				OrderedQty:  10,
				FilledQty:   10,
				FilledPrice: 60500,
			}}, nil
		default:
			return domain.Reply{}, fmt.Errorf("unexpected command %s", cmd.Type)
		}
	}}

	w := newConditionWatcher(bus, ledger, 600000)
	w.cycle(context.Background())

	buys := bus.commandsOfType(domain.CmdBuy)
	require.Len(t, buys, 1)
	assert.Equal(t, "005930", buys[0].StockCode)
	assert.Equal(t, int64(10), buys[0].Quantity, "quantity is budget divided by price, rounded down")
	assert.Equal(t, "8012345611", buys[0].Account)

	rec, ok := ledger.get("123456")
	require.True(t, ok, "confirmed fill must be durable")
	assert.Equal(t, domain.PositionRecord{
		BuyOrderID: "123456",
		StockCode:  "005930",
		Quantity:   10,
		EntryPrice: 60500,
	}, rec)
	assert.Empty(t, w.pendingBuys)

	// A second cycle must not buy the same matched code again.
	w.cycle(context.Background())
	assert.Len(t, bus.commandsOfType(domain.CmdBuy), 1)
}

func TestConditionWatcherFractionalQuantityRoundsDown(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{handler: func(cmd domain.Command) (domain.Reply, error) {
		switch cmd.Type {
		case domain.CmdConditions:
			return domain.Reply{StockCodes: []string{"005930"}}, nil
		case domain.CmdCurrentQuote:
			return domain.Reply{Price: 70000}, nil
		case domain.CmdBuy:
			return domain.Reply{OrderID: "123456"}, nil
		default:
			return domain.Reply{}, nil
		}
	}}

	w := newConditionWatcher(bus, newFakeLedger(), 600000)
	w.cycle(context.Background())

	buys := bus.commandsOfType(domain.CmdBuy)
	require.Len(t, buys, 1)
	assert.Equal(t, int64(8), buys[0].Quantity)
}

func TestConditionWatcherUnaffordableStockSkipped(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{handler: func(cmd domain.Command) (domain.Reply, error) {
		switch cmd.Type {
		case domain.CmdConditions:
			return domain.Reply{StockCodes: []string{"005930"}}, nil
		case domain.CmdCurrentQuote:
			return domain.Reply{Price: 700000}, nil
		default:
			return domain.Reply{}, nil
		}
	}}

	w := newConditionWatcher(bus, newFakeLedger(), 600000)
	w.cycle(context.Background())
	w.cycle(context.Background())

	assert.Empty(t, bus.commandsOfType(domain.CmdBuy), "an unaffordable code places no order")
	// Only the first cycle fetches a quote; the code is tracked as handled.
	assert.Len(t, bus.commandsOfType(domain.CmdCurrentQuote), 1)
}

func TestConditionWatcherNonPositivePriceRetried(t *testing.T) {
	t.Parallel()

	price := 0.0
	bus := &fakeBus{handler: func(cmd domain.Command) (domain.Reply, error) {
		switch cmd.Type {
		case domain.CmdConditions:
			return domain.Reply{StockCodes: []string{"005930"}}, nil
		case domain.CmdCurrentQuote:
			return domain.Reply{Price: price}, nil
		case domain.CmdBuy:
			return domain.Reply{OrderID: "123456"}, nil
		default:
			return domain.Reply{}, nil
		}
	}}

	w := newConditionWatcher(bus, newFakeLedger(), 600000)
	w.cycle(context.Background())

	assert.Empty(t, bus.commandsOfType(domain.CmdBuy), "a zero-price quote places no order")

	// The code stays untracked and buys once the quote turns sane.
	price = 60000
	w.cycle(context.Background())
	assert.Len(t, bus.commandsOfType(domain.CmdBuy), 1)
}

func TestConditionWatcherRejectedOrderRetried(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{handler: func(cmd domain.Command) (domain.Reply, error) {
		switch cmd.Type {
		case domain.CmdConditions:
			return domain.Reply{StockCodes: []string{"005930"}}, nil
		case domain.CmdCurrentQuote:
			return domain.Reply{Price: 60000}, nil
		case domain.CmdBuy:
			// The venue answers a rejection with an error code in place of
			// the order number.
			return domain.Reply{OrderID: "-308"}, nil
		default:
			return domain.Reply{}, nil
		}
	}}

	w := newConditionWatcher(bus, newFakeLedger(), 600000)
	w.cycle(context.Background())
	w.cycle(context.Background())

	assert.Len(t, bus.commandsOfType(domain.CmdBuy), 2, "a rejected code stays untracked and is retried")
	assert.Empty(t, w.pendingBuys)
}

func TestConditionWatcherDepartureEviction(t *testing.T) {
	t.Parallel()

	matched := []string{"005930"}
	bus := &fakeBus{}
	bus.handler = func(cmd domain.Command) (domain.Reply, error) {
		switch cmd.Type {
		case domain.CmdConditions:
			return domain.Reply{StockCodes: matched}, nil
		case domain.CmdCurrentQuote:
			return domain.Reply{Price: 60000}, nil
		case domain.CmdBuy:
			return domain.Reply{OrderID: fmt.Sprintf("10000%d", len(bus.commandsOfType(domain.CmdBuy)))}, nil
		case domain.CmdOrderStatus:
			// Never fills; keeps the test focused on match tracking.
			return domain.Reply{Status: domain.OrderStatus{OrderID: cmd.OrderID}}, nil
		default:
			return domain.Reply{}, nil
		}
	}

	w := newConditionWatcher(bus, newFakeLedger(), 600000)
	w.cycle(context.Background())
	require.Contains(t, w.matched, "005930")

	// The code leaves the condition and is evicted.
	matched = nil
	w.cycle(context.Background())
	assert.NotContains(t, w.matched, "005930")

	// Re-entry buys again.
	matched = []string{"005930"}
	w.cycle(context.Background())
	assert.Len(t, bus.commandsOfType(domain.CmdBuy), 2)
}

func TestConditionWatcherPollFailureKeepsTracking(t *testing.T) {
	t.Parallel()

	pollErr := errors.New("venue timeout")
	failPoll := false
	bus := &fakeBus{}
	bus.handler = func(cmd domain.Command) (domain.Reply, error) {
		switch cmd.Type {
		case domain.CmdConditions:
			if failPoll {
				return domain.Reply{}, pollErr
			}
			return domain.Reply{StockCodes: []string{"005930"}}, nil
		case domain.CmdCurrentQuote:
			return domain.Reply{Price: 60000}, nil
		case domain.CmdBuy:
			return domain.Reply{OrderID: "123456"}, nil
		case domain.CmdOrderStatus:
			return domain.Reply{Status: domain.OrderStatus{OrderID: cmd.OrderID}}, nil
		default:
			return domain.Reply{}, nil
		}
	}

	w := newConditionWatcher(bus, newFakeLedger(), 600000)
	w.cycle(context.Background())
	require.Contains(t, w.matched, "005930")

	// A failed poll is not a departure; nothing is evicted or re-bought.
	failPoll = true
	w.cycle(context.Background())
	assert.Contains(t, w.matched, "005930")
	assert.Len(t, bus.commandsOfType(domain.CmdBuy), 1)
}

func TestConditionWatcherPartialFillStaysPending(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	filledQty := int64(4)
	bus := &fakeBus{}
	bus.handler = func(cmd domain.Command) (domain.Reply, error) {
		switch cmd.Type {
		case domain.CmdConditions:
			return domain.Reply{StockCodes: []string{"005930"}}, nil
		case domain.CmdCurrentQuote:
			return domain.Reply{Price: 60000}, nil
		case domain.CmdBuy:
			return domain.Reply{OrderID: "123456"}, nil
		case domain.CmdOrderStatus:
			return domain.Reply{Status: domain.OrderStatus{
				OrderID:     cmd.OrderID,
				StockCode:   "005930",
				OrderedQty:  10,
				FilledQty:   filledQty,
				FilledPrice: 60500,
			}}, nil
		default:
			return domain.Reply{}, nil
		}
	}

	w := newConditionWatcher(bus, ledger, 600000)
	w.cycle(context.Background())

	assert.Equal(t, []string{"123456"}, w.pendingBuys)
	assert.Zero(t, ledger.count(), "a partial fill is not durable yet")

	// Completion on a later cycle records the position.
	filledQty = 10
	w.cycle(context.Background())
	assert.Empty(t, w.pendingBuys)
	_, ok := ledger.get("123456")
	assert.True(t, ok)
}

func TestConditionWatcherDuplicateFillDropped(t *testing.T) {
	t.Parallel()

	ledger := newFakeLedger()
	require.NoError(t, ledger.InsertOpen(context.Background(), domain.PositionRecord{
		BuyOrderID: "123456",
		StockCode:  "005930",
		Quantity:   10,
		EntryPrice: 60500,
	}))

	bus := &fakeBus{handler: func(cmd domain.Command) (domain.Reply, error) {
		return domain.Reply{Status: domain.OrderStatus{
			OrderID:     cmd.OrderID,
			StockCode:   "005930",
			OrderedQty:  10,
			FilledQty:   10,
			FilledPrice: 60500,
		}}, nil
	}}

	w := newConditionWatcher(bus, ledger, 600000)
	w.pendingBuys = []string{"123456"}
	w.confirmFills(context.Background())

	assert.Empty(t, w.pendingBuys, "an already-recorded fill is dropped, not retried")
	assert.Equal(t, 1, ledger.count())
}
