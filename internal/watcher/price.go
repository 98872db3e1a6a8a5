package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Taekhyang/kiwoom-condition-trader/internal/domain"
	"github.com/Taekhyang/kiwoom-condition-trader/internal/notify"
)

// PriceWatcher evaluates every open position against the profit/loss band
// each cycle. It keeps live-quote subscriptions active for all held codes,
// sells a position whose earning rate falls outside the strict open interval
// (lossLimit, profitLimit), and removes positions from the ledger once their
// sell is confirmed fully filled.
type PriceWatcher struct {
	bus      Commander
	ledger   domain.PositionLedger
	notifier *notify.Notifier
	logger   *slog.Logger

	account       string
	profitLimit   float64
	lossLimit     float64
	pollInterval  time.Duration
	fillPollDelay time.Duration

	// subscribed tracks codes already sent in a subscription-registration
	// command. Subscriptions are never unregistered, even after the last
	// position in a code closes; a stale subscription costs nothing.
	subscribed   map[string]bool
	pendingSells []string
}

// NewPriceWatcher creates a PriceWatcher. profitLimit is the ceiling and
// lossLimit the floor of the hold band, both as percentages; lossLimit is
// non-positive.
func NewPriceWatcher(
	bus Commander,
	ledger domain.PositionLedger,
	notifier *notify.Notifier,
	account string,
	profitLimit, lossLimit float64,
	pollInterval, fillPollDelay time.Duration,
	logger *slog.Logger,
) *PriceWatcher {
	return &PriceWatcher{
		bus:           bus,
		ledger:        ledger,
		notifier:      notifier,
		logger:        logger.With(slog.String("component", "price_watcher")),
		account:       account,
		profitLimit:   profitLimit,
		lossLimit:     lossLimit,
		pollInterval:  pollInterval,
		fillPollDelay: fillPollDelay,
		subscribed:    make(map[string]bool),
	}
}

// Run executes the polling loop until ctx is cancelled. Cancellation is
// cooperative: it takes effect at the top of the next cycle.
func (w *PriceWatcher) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "price watcher started",
		slog.Float64("profit_limit", w.profitLimit),
		slog.Float64("loss_limit", w.lossLimit),
	)
	defer w.logger.Info("price watcher stopped")

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

func (w *PriceWatcher) cycle(ctx context.Context) {
	records, err := w.ledger.ListAll(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "ledger snapshot failed", slog.String("error", err.Error()))
		return
	}

	w.ensureSubscriptions(ctx, records)

	for _, rec := range records {
		if !rec.Open() {
			// A sell is already placed; never re-evaluate a closing
			// position. Re-adopting the sell order here also picks up sells
			// placed before a restart.
			w.trackSell(rec.SellOrderID)
			continue
		}
		w.evaluate(ctx, rec)
	}

	w.confirmSells(ctx)
}

// ensureSubscriptions registers live-quote subscriptions for every held code
// not yet subscribed, batched into a single command.
func (w *PriceWatcher) ensureSubscriptions(ctx context.Context, records []domain.PositionRecord) {
	var toRegister []string
	seen := make(map[string]bool)
	for _, rec := range records {
		if !w.subscribed[rec.StockCode] && !seen[rec.StockCode] {
			seen[rec.StockCode] = true
			toRegister = append(toRegister, rec.StockCode)
		}
	}
	if len(toRegister) == 0 {
		return
	}

	w.logger.InfoContext(ctx, "registering live quote subscriptions",
		slog.Any("stock_codes", toRegister),
	)
	if _, err := w.bus.Submit(ctx, domain.Command{
		Type:       domain.CmdRegisterLiveQuotes,
		StockCodes: toRegister,
	}); err != nil {
		// Codes stay unmarked and the registration is retried next cycle.
		w.logger.WarnContext(ctx, "subscription registration failed",
			slog.String("error", err.Error()),
		)
		return
	}
	for _, code := range toRegister {
		w.subscribed[code] = true
	}
}

// evaluate checks one open position against the band and places a sell when
// the rate has left it.
func (w *PriceWatcher) evaluate(ctx context.Context, rec domain.PositionRecord) {
	log := w.logger.With(
		slog.String("stock_code", rec.StockCode),
		slog.String("buy_order_id", rec.BuyOrderID),
	)

	reply, err := w.bus.Submit(ctx, domain.Command{
		Type:      domain.CmdLiveQuote,
		StockCode: rec.StockCode,
	})
	if err != nil {
		log.DebugContext(ctx, "live quote unavailable", slog.String("error", err.Error()))
		return
	}

	if !w.isSellTiming(ctx, rec, reply.Price) {
		return
	}

	log.InfoContext(ctx, "placing sell order", slog.Int64("quantity", rec.Quantity))
	sellReply, err := w.bus.Submit(ctx, domain.Command{
		Type:      domain.CmdSell,
		Account:   w.account,
		StockCode: rec.StockCode,
		Quantity:  rec.Quantity,
	})
	if err != nil {
		log.WarnContext(ctx, "sell order failed", slog.String("error", err.Error()))
		return
	}
	sellOrderID, err := orderNumber(sellReply)
	if err != nil {
		log.WarnContext(ctx, "sell order rejected", slog.String("error", err.Error()))
		return
	}
	log.InfoContext(ctx, "sell order placed", slog.String("sell_order_id", sellOrderID))

	if err := w.ledger.MarkSellPlaced(ctx, rec.BuyOrderID, sellOrderID); err != nil {
		log.ErrorContext(ctx, "recording sell order failed", slog.String("error", err.Error()))
		return
	}
	w.trackSell(sellOrderID)

	_ = w.notifier.Notify(ctx, notify.EventSellPlaced, "Sell order placed",
		fmt.Sprintf("%s: %d shares, order %s", rec.StockCode, rec.Quantity, sellOrderID))
}

// isSellTiming reports whether the position's earning rate has left the
// strict open hold interval (lossLimit, profitLimit). A rate exactly at a
// bound is outside the interval and sells. A zero entry price makes the rate
// incomputable and is treated as "not a sell timing".
func (w *PriceWatcher) isSellTiming(ctx context.Context, rec domain.PositionRecord, currentPrice float64) bool {
	if rec.EntryPrice == 0 {
		w.logger.DebugContext(ctx, "entry price is zero, holding",
			slog.String("stock_code", rec.StockCode),
		)
		return false
	}

	earningRate := (currentPrice/rec.EntryPrice - 1) * 100

	switch {
	case w.lossLimit < earningRate && earningRate < w.profitLimit:
		return false
	case earningRate < w.lossLimit:
		w.logger.InfoContext(ctx, "loss floor breached, selling",
			slog.String("stock_code", rec.StockCode),
			slog.Float64("earning_rate", earningRate),
			slog.Float64("loss_limit", w.lossLimit),
		)
	case earningRate > w.profitLimit:
		w.logger.InfoContext(ctx, "profit ceiling exceeded, selling",
			slog.String("stock_code", rec.StockCode),
			slog.Float64("earning_rate", earningRate),
			slog.Float64("profit_limit", w.profitLimit),
		)
	default:
		w.logger.InfoContext(ctx, "earning rate at band bound, selling",
			slog.String("stock_code", rec.StockCode),
			slog.Float64("earning_rate", earningRate),
		)
	}
	return true
}

// trackSell queues a sell order for fill confirmation, once.
func (w *PriceWatcher) trackSell(sellOrderID string) {
	for _, id := range w.pendingSells {
		if id == sellOrderID {
			return
		}
	}
	w.pendingSells = append(w.pendingSells, sellOrderID)
}

// confirmSells polls order status for every pending sell, with a pacing
// delay between orders. A fully filled sell removes its record from the
// ledger; ErrNotFound means the record is already gone and counts as done.
func (w *PriceWatcher) confirmSells(ctx context.Context) {
	var still []string
	for i, sellOrderID := range w.pendingSells {
		select {
		case <-ctx.Done():
			w.pendingSells = append(still, w.pendingSells[i:]...)
			return
		case <-time.After(w.fillPollDelay):
		}

		log := w.logger.With(slog.String("sell_order_id", sellOrderID))

		reply, err := w.bus.Submit(ctx, domain.Command{
			Type:    domain.CmdOrderStatus,
			OrderID: sellOrderID,
		})
		if err != nil {
			log.DebugContext(ctx, "order status unavailable", slog.String("error", err.Error()))
			still = append(still, sellOrderID)
			continue
		}

		status := reply.Status
		if !status.Filled() {
			log.DebugContext(ctx, "sell not fully filled yet",
				slog.Int64("ordered", status.OrderedQty),
				slog.Int64("filled", status.FilledQty),
			)
			still = append(still, sellOrderID)
			continue
		}

		err = w.ledger.Remove(ctx, sellOrderID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			log.WarnContext(ctx, "position already removed")
		case err != nil:
			log.ErrorContext(ctx, "ledger remove failed", slog.String("error", err.Error()))
			still = append(still, sellOrderID)
			continue
		default:
			log.InfoContext(ctx, "position closed",
				slog.String("stock_code", status.StockCode),
				slog.Int64("quantity", status.FilledQty),
				slog.Float64("fill_price", status.FilledPrice),
			)
			_ = w.notifier.Notify(ctx, notify.EventPositionClosed, "Position closed",
				fmt.Sprintf("%s: sold %d shares at %.0f",
					status.StockCode, status.FilledQty, status.FilledPrice))
		}
	}
	w.pendingSells = still
}
