package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Taekhyang/kiwoom-condition-trader/internal/broker/bridge"
	"github.com/Taekhyang/kiwoom-condition-trader/internal/cache/memory"
	"github.com/Taekhyang/kiwoom-condition-trader/internal/cache/redis"
	"github.com/Taekhyang/kiwoom-condition-trader/internal/config"
	"github.com/Taekhyang/kiwoom-condition-trader/internal/domain"
	"github.com/Taekhyang/kiwoom-condition-trader/internal/notify"
	"github.com/Taekhyang/kiwoom-condition-trader/internal/store/postgres"
	"github.com/Taekhyang/kiwoom-condition-trader/internal/store/sqlite"
)

// Dependencies bundles every dependency the application needs to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Ledger   domain.PositionLedger
	Quotes   domain.QuoteCache
	Session  *bridge.Session
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Position ledger ---
	switch cfg.Storage.Driver {
	case "sqlite":
		ledger, err := sqlite.NewLedger(cfg.Storage.SQLite.Path)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: sqlite: %w", err)
		}
		closers = append(closers, func() { _ = ledger.Close() })
		deps.Ledger = ledger
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Storage.Postgres.DSN,
			Host:     cfg.Storage.Postgres.Host,
			Port:     cfg.Storage.Postgres.Port,
			Database: cfg.Storage.Postgres.Database,
			User:     cfg.Storage.Postgres.User,
			Password: cfg.Storage.Postgres.Password,
			SSLMode:  cfg.Storage.Postgres.SSLMode,
			MaxConns: cfg.Storage.Postgres.PoolMaxConns,
			MinConns: cfg.Storage.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Storage.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Ledger = postgres.NewLedger(pgClient.Pool())
	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unknown storage driver %q", cfg.Storage.Driver)
	}

	// --- Quote cache ---
	switch cfg.Cache.Driver {
	case "memory":
		deps.Quotes = memory.NewQuoteCache()
	case "redis":
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Quotes = redis.NewQuoteCache(redisClient)
	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unknown cache driver %q", cfg.Cache.Driver)
	}

	// --- Broker bridge session ---
	deps.Session = bridge.New(cfg.Bridge.BaseURL, cfg.Bridge.WsURL, deps.Quotes, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
