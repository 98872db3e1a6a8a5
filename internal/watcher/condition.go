package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Taekhyang/kiwoom-condition-trader/internal/domain"
	"github.com/Taekhyang/kiwoom-condition-trader/internal/notify"
)

// ConditionWatcher polls the matched set of the screening conditions, buys
// newly matched instruments within the configured budget, and records
// confirmed fills into the ledger.
//
// Per stock code it tracks one of four states: untracked (unmatched), tracked
// but unbought (quote or order failed, retried every cycle), bought with the
// fill pending, and bought confirmed (durable in the ledger). A code that
// leaves the matched set is evicted from tracking and may be bought again on
// a future match. An unaffordable code (quantity zero at the configured
// budget) is tracked as already handled so it is not retried until it leaves
// and re-enters.
type ConditionWatcher struct {
	bus      Commander
	ledger   domain.PositionLedger
	notifier *notify.Notifier
	logger   *slog.Logger

	account       string
	budget        float64
	pollInterval  time.Duration
	fillPollDelay time.Duration

	matched     map[string]struct{}
	pendingBuys []string
}

// NewConditionWatcher creates a ConditionWatcher. budget is the maximum
// amount spent per buy; fillPollDelay paces the per-order fill confirmation
// queries.
func NewConditionWatcher(
	bus Commander,
	ledger domain.PositionLedger,
	notifier *notify.Notifier,
	account string,
	budget float64,
	pollInterval, fillPollDelay time.Duration,
	logger *slog.Logger,
) *ConditionWatcher {
	return &ConditionWatcher{
		bus:           bus,
		ledger:        ledger,
		notifier:      notifier,
		logger:        logger.With(slog.String("component", "condition_watcher")),
		account:       account,
		budget:        budget,
		pollInterval:  pollInterval,
		fillPollDelay: fillPollDelay,
		matched:       make(map[string]struct{}),
	}
}

// Run executes the polling loop until ctx is cancelled. Cancellation is
// cooperative: it takes effect at the top of the next cycle.
func (w *ConditionWatcher) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "condition watcher started",
		slog.Float64("budget", w.budget),
	)
	defer w.logger.Info("condition watcher stopped")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		w.cycle(ctx)
	}
}

func (w *ConditionWatcher) cycle(ctx context.Context) {
	reply, err := w.bus.Submit(ctx, domain.Command{Type: domain.CmdConditions})
	if err != nil {
		// No matched-set snapshot this cycle. Tracked codes are kept: a
		// failed poll says nothing about departures.
		w.logger.DebugContext(ctx, "condition poll failed", slog.String("error", err.Error()))
		w.confirmFills(ctx)
		return
	}

	current := make(map[string]struct{}, len(reply.StockCodes))
	for _, code := range reply.StockCodes {
		current[code] = struct{}{}
	}

	// Departure: evict tracked codes no longer matched so they can be
	// bought again when they re-enter.
	for code := range w.matched {
		if _, ok := current[code]; !ok {
			delete(w.matched, code)
			w.logger.InfoContext(ctx, "stock left condition", slog.String("stock_code", code))
		}
	}

	for _, code := range reply.StockCodes {
		if _, ok := w.matched[code]; ok {
			continue
		}
		w.tryBuy(ctx, code)
	}

	w.confirmFills(ctx)
}

// tryBuy sizes and places a buy order for a newly matched code. On any
// failure the code stays untracked and is retried next cycle.
func (w *ConditionWatcher) tryBuy(ctx context.Context, code string) {
	log := w.logger.With(slog.String("stock_code", code))
	log.InfoContext(ctx, "stock matched condition")

	reply, err := w.bus.Submit(ctx, domain.Command{
		Type:      domain.CmdCurrentQuote,
		StockCode: code,
	})
	if err != nil {
		log.DebugContext(ctx, "current quote unavailable", slog.String("error", err.Error()))
		return
	}

	if reply.Price <= 0 {
		// A zero price would make the quantity division meaningless. Leave
		// the code untracked and retry on a sane quote.
		log.WarnContext(ctx, "ignoring non-positive quote price",
			slog.Float64("price", reply.Price),
		)
		return
	}

	quantity := int64(math.Floor(w.budget / reply.Price))
	if quantity == 0 {
		// Unaffordable at the configured budget. Track it as handled so no
		// order is retried until the code leaves and re-enters the
		// condition.
		log.InfoContext(ctx, "price exceeds budget, skipping order",
			slog.Float64("price", reply.Price),
		)
		w.matched[code] = struct{}{}
		return
	}

	log.InfoContext(ctx, "placing buy order",
		slog.Int64("quantity", quantity),
		slog.Float64("price", reply.Price),
	)
	buyReply, err := w.bus.Submit(ctx, domain.Command{
		Type:      domain.CmdBuy,
		Account:   w.account,
		StockCode: code,
		Quantity:  quantity,
	})
	if err != nil {
		log.WarnContext(ctx, "buy order failed", slog.String("error", err.Error()))
		return
	}
	orderID, err := orderNumber(buyReply)
	if err != nil {
		log.WarnContext(ctx, "buy order rejected", slog.String("error", err.Error()))
		return
	}

	log.InfoContext(ctx, "buy order placed", slog.String("order_id", orderID))
	w.pendingBuys = append(w.pendingBuys, orderID)
	w.matched[code] = struct{}{}

	_ = w.notifier.Notify(ctx, notify.EventBuyPlaced, "Buy order placed",
		fmt.Sprintf("%s: %d shares, order %s", code, quantity, orderID))
}

// confirmFills polls order status for every pending buy, with a pacing delay
// between orders to bound the request rate. A fully filled buy is inserted
// into the ledger at its confirmed fill price; anything else stays pending
// and is retried next cycle.
func (w *ConditionWatcher) confirmFills(ctx context.Context) {
	var still []string
	for i, orderID := range w.pendingBuys {
		select {
		case <-ctx.Done():
			w.pendingBuys = append(still, w.pendingBuys[i:]...)
			return
		case <-time.After(w.fillPollDelay):
		}

		log := w.logger.With(slog.String("order_id", orderID))

		reply, err := w.bus.Submit(ctx, domain.Command{
			Type:    domain.CmdOrderStatus,
			OrderID: orderID,
		})
		if err != nil {
			log.DebugContext(ctx, "order status unavailable", slog.String("error", err.Error()))
			still = append(still, orderID)
			continue
		}

		status := reply.Status
		if !status.Filled() {
			log.DebugContext(ctx, "buy not fully filled yet",
				slog.Int64("ordered", status.OrderedQty),
				slog.Int64("filled", status.FilledQty),
			)
			still = append(still, orderID)
			continue
		}

		err = w.ledger.InsertOpen(ctx, domain.PositionRecord{
			BuyOrderID: orderID,
			StockCode:  status.StockCode,
			Quantity:   status.OrderedQty,
			EntryPrice: status.FilledPrice,
		})
		switch {
		case errors.Is(err, domain.ErrDuplicateKey):
			// Already recorded; drop the order from the pending list.
			log.WarnContext(ctx, "position already in ledger")
		case err != nil:
			log.ErrorContext(ctx, "ledger insert failed", slog.String("error", err.Error()))
			still = append(still, orderID)
			continue
		default:
			log.InfoContext(ctx, "position recorded",
				slog.String("stock_code", status.StockCode),
				slog.Int64("quantity", status.OrderedQty),
				slog.Float64("fill_price", status.FilledPrice),
			)
			_ = w.notifier.Notify(ctx, notify.EventBuyFilled, "Buy filled",
				fmt.Sprintf("%s: %d shares at %.0f, order %s",
					status.StockCode, status.OrderedQty, status.FilledPrice, orderID))
		}
	}
	w.pendingBuys = still
}
