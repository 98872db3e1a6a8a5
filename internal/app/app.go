// Package app provides the top-level application lifecycle for the condition
// trader. It wires together the ledger, quote cache, broker bridge, command
// bus, watchers, and notifications, and runs them until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Taekhyang/kiwoom-condition-trader/internal/bus"
	"github.com/Taekhyang/kiwoom-condition-trader/internal/config"
	"github.com/Taekhyang/kiwoom-condition-trader/internal/domain"
	"github.com/Taekhyang/kiwoom-condition-trader/internal/watcher"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the bridge
// connection, the command bus worker, and both watcher loops, and blocks
// until the context is cancelled. On return it runs all registered cleanup
// functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("account", a.cfg.Trading.Account),
		slog.Any("conditions", a.cfg.Trading.Conditions),
		slog.String("log_level", a.cfg.LogLevel),
	)
	a.logger.DebugContext(ctx, "active configuration",
		slog.Any("config", config.RedactedConfig(a.cfg)),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	commandBus := bus.New(
		deps.Session,
		a.cfg.Trading.CommandTimeout.Duration,
		a.cfg.Bridge.ConnectPollInterval.Duration,
		a.logger,
	)

	buyWatcher := watcher.NewConditionWatcher(
		commandBus,
		deps.Ledger,
		deps.Notifier,
		a.cfg.Trading.Account,
		a.cfg.Trading.Budget,
		a.cfg.Trading.PollInterval.Duration,
		a.cfg.Trading.BuyFillPollDelay.Duration,
		a.logger,
	)
	sellWatcher := watcher.NewPriceWatcher(
		commandBus,
		deps.Ledger,
		deps.Notifier,
		a.cfg.Trading.Account,
		a.cfg.Trading.ProfitLimit,
		a.cfg.Trading.LossLimit,
		a.cfg.Trading.PollInterval.Duration,
		a.cfg.Trading.SellFillPollDelay.Duration,
		a.logger,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Session.Run(ctx)
	})
	g.Go(func() error {
		return commandBus.Run(ctx)
	})

	// The watchers only start polling once the screening conditions are
	// registered through the bus.
	g.Go(func() error {
		if err := registerConditions(ctx, commandBus, a.cfg.Trading.Conditions, a.logger); err != nil {
			return err
		}
		a.logger.InfoContext(ctx, "screening conditions registered",
			slog.Any("conditions", a.cfg.Trading.Conditions),
		)

		sub, subCtx := errgroup.WithContext(ctx)
		sub.Go(func() error { return buyWatcher.Run(subCtx) })
		sub.Go(func() error { return sellWatcher.Run(subCtx) })
		return sub.Wait()
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// registerConditions submits the screening-condition registration, retrying
// on timeout. The bus worker does not consume commands until the bridge
// reports connected, and the broker login can easily outlast a single command
// timeout, so a timed-out registration is retried rather than treated as
// fatal. Any other failure aborts startup.
func registerConditions(ctx context.Context, bus watcher.Commander, conditions []string, logger *slog.Logger) error {
	for {
		_, err := bus.Submit(ctx, domain.Command{
			Type:       domain.CmdRegisterConditions,
			Conditions: conditions,
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrTimeout) {
			return fmt.Errorf("app: register conditions: %w", err)
		}
		logger.WarnContext(ctx, "condition registration timed out, retrying",
			slog.Any("conditions", conditions),
		)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
