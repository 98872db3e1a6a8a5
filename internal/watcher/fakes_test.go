package watcher

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/Taekhyang/kiwoom-condition-trader/internal/domain"
	"github.com/Taekhyang/kiwoom-condition-trader/internal/notify"
)

// fakeBus implements Commander with a scripted handler and records every
// submitted command.
type fakeBus struct {
	mu        sync.Mutex
	submitted []domain.Command
	handler   func(cmd domain.Command) (domain.Reply, error)
}

func (b *fakeBus) Submit(ctx context.Context, cmd domain.Command) (domain.Reply, error) {
	b.mu.Lock()
	b.submitted = append(b.submitted, cmd)
	b.mu.Unlock()
	return b.handler(cmd)
}

// commandsOfType returns the submitted commands matching t, in order.
func (b *fakeBus) commandsOfType(t domain.CommandType) []domain.Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Command
	for _, cmd := range b.submitted {
		if cmd.Type == t {
			out = append(out, cmd)
		}
	}
	return out
}

// fakeLedger is an in-memory domain.PositionLedger.
type fakeLedger struct {
	mu      sync.Mutex
	records map[string]domain.PositionRecord

	insertErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: make(map[string]domain.PositionRecord)}
}

func (l *fakeLedger) InsertOpen(ctx context.Context, rec domain.PositionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.insertErr != nil {
		return l.insertErr
	}
	if _, ok := l.records[rec.BuyOrderID]; ok {
		return domain.ErrDuplicateKey
	}
	l.records[rec.BuyOrderID] = rec
	return nil
}

func (l *fakeLedger) MarkSellPlaced(ctx context.Context, buyOrderID, sellOrderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[buyOrderID]
	if !ok {
		return domain.ErrNotFound
	}
	rec.SellOrderID = sellOrderID
	l.records[buyOrderID] = rec
	return nil
}

func (l *fakeLedger) Remove(ctx context.Context, sellOrderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, rec := range l.records {
		if rec.SellOrderID == sellOrderID {
			delete(l.records, id)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (l *fakeLedger) ListAll(ctx context.Context) ([]domain.PositionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.PositionRecord, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, rec)
	}
	return out, nil
}

func (l *fakeLedger) get(buyOrderID string) (domain.PositionRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[buyOrderID]
	return rec, ok
}

func (l *fakeLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func testNotifier() *notify.Notifier {
	return notify.NewNotifier(nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
