// Package bus serializes all broker access behind a single worker goroutine.
// Any number of concurrent callers submit commands; the worker executes them
// strictly in arrival order against the broker session and delivers exactly
// one reply per command to the caller's one-shot channel. The session is
// stateful and not reentrant, so the worker is the only code allowed to
// touch it.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Taekhyang/kiwoom-condition-trader/internal/broker"
	"github.com/Taekhyang/kiwoom-condition-trader/internal/domain"
)

const defaultQueueSize = 64

// outcome is the single reply written to an envelope's channel: either a
// result or a failure, never both, never more than once.
type outcome struct {
	reply domain.Reply
	err   error
}

// envelope pairs a command with its one-shot reply channel. The channel is
// buffered so the worker never blocks on a caller that timed out and
// abandoned its envelope; the unread reply is simply discarded.
type envelope struct {
	id      string
	cmd     domain.Command
	replyCh chan outcome
}

// Bus is the command bus. Construct with New, start the worker with Run, and
// submit from any goroutine with Submit.
type Bus struct {
	session     broker.Session
	queue       chan envelope
	timeout     time.Duration
	connectPoll time.Duration
	logger      *slog.Logger
}

// New creates a Bus over the given session. timeout bounds how long a caller
// waits for a reply; connectPoll is the interval at which the worker checks
// session connectivity before it starts consuming commands.
func New(session broker.Session, timeout, connectPoll time.Duration, logger *slog.Logger) *Bus {
	return &Bus{
		session:     session,
		queue:       make(chan envelope, defaultQueueSize),
		timeout:     timeout,
		connectPoll: connectPoll,
		logger:      logger.With(slog.String("component", "bus")),
	}
}

// Submit enqueues cmd and blocks until the worker replies, the configured
// timeout elapses, or ctx is cancelled. A timeout yields domain.ErrTimeout,
// which callers can tell apart from a failure reply produced by the broker.
// A timed-out caller abandons its envelope; the worker still completes the
// command and discards the unread reply.
func (b *Bus) Submit(ctx context.Context, cmd domain.Command) (domain.Reply, error) {
	env := envelope{
		id:      uuid.New().String(),
		cmd:     cmd,
		replyCh: make(chan outcome, 1),
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case b.queue <- env:
	case <-timer.C:
		return domain.Reply{}, domain.ErrTimeout
	case <-ctx.Done():
		return domain.Reply{}, ctx.Err()
	}

	select {
	case out := <-env.replyCh:
		return out.reply, out.err
	case <-timer.C:
		b.logger.WarnContext(ctx, "command timed out",
			slog.String("command_id", env.id),
			slog.String("type", string(cmd.Type)),
		)
		return domain.Reply{}, domain.ErrTimeout
	case <-ctx.Done():
		return domain.Reply{}, ctx.Err()
	}
}

// Run is the worker loop. It blocks until the session reports a connected
// state, then consumes the queue in FIFO order until ctx is cancelled.
func (b *Bus) Run(ctx context.Context) error {
	b.logger.InfoContext(ctx, "worker waiting for broker connection")
	for !b.session.IsConnected() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.connectPoll):
		}
	}
	b.logger.InfoContext(ctx, "worker started")
	defer b.logger.Info("worker stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-b.queue:
			reply, err := b.execute(ctx, env.cmd)
			if err != nil {
				b.logger.WarnContext(ctx, "command failed",
					slog.String("command_id", env.id),
					slog.String("type", string(env.cmd.Type)),
					slog.String("error", err.Error()),
				)
			}
			env.replyCh <- outcome{reply: reply, err: err}
		}
	}
}

// execute dispatches one command against the session. Session failures are
// returned as the failure reply rather than propagated; the worker never
// dies because of a broken broker call.
func (b *Bus) execute(ctx context.Context, cmd domain.Command) (domain.Reply, error) {
	switch cmd.Type {
	case domain.CmdBuy:
		orderID, err := b.session.Buy(ctx, cmd.Account, cmd.StockCode, cmd.Quantity)
		return domain.Reply{OrderID: orderID}, err

	case domain.CmdSell:
		orderID, err := b.session.Sell(ctx, cmd.Account, cmd.StockCode, cmd.Quantity)
		return domain.Reply{OrderID: orderID}, err

	case domain.CmdCurrentQuote:
		price, err := b.session.GetCurrentQuote(ctx, cmd.StockCode)
		return domain.Reply{Price: price}, err

	case domain.CmdLiveQuote:
		price, err := b.session.GetLiveQuote(ctx, cmd.StockCode)
		return domain.Reply{Price: price}, err

	case domain.CmdConditions:
		codes, err := b.session.GetMatchedConditionStocks(ctx)
		return domain.Reply{StockCodes: codes}, err

	case domain.CmdOrderStatus:
		status, err := b.session.GetOrderStatus(ctx, cmd.OrderID)
		return domain.Reply{Status: status}, err

	case domain.CmdRegisterConditions:
		return domain.Reply{}, b.session.RegisterConditions(ctx, cmd.Conditions)

	case domain.CmdRegisterLiveQuotes:
		return domain.Reply{}, b.session.RegisterLiveQuoteSubscriptions(ctx, cmd.StockCodes)

	case domain.CmdCancelSell:
		return domain.Reply{}, b.session.CancelSellOrder(ctx, cmd.OrderID)

	default:
		return domain.Reply{}, fmt.Errorf("bus: unknown command type %q", cmd.Type)
	}
}
