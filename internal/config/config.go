// Package config defines the top-level configuration for the condition
// trader and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by KIWOOM_* environment variables.
type Config struct {
	Trading  TradingConfig  `toml:"trading"`
	Bridge   BridgeConfig   `toml:"bridge"`
	Storage  StorageConfig  `toml:"storage"`
	Cache    CacheConfig    `toml:"cache"`
	Notify   NotifyConfig   `toml:"notify"`
	LogLevel string         `toml:"log_level"`
}

// TradingConfig holds the account, sizing, and rule parameters that drive
// the buy and sell loops.
type TradingConfig struct {
	// Account is the brokerage account number orders are placed against.
	Account string `toml:"account"`

	// Budget is the maximum spend per buy order, in KRW.
	Budget float64 `toml:"budget"`

	// ProfitLimit and LossLimit bound the hold band as percentages. A
	// position is held while loss_limit < earning rate < profit_limit and
	// sold the moment the rate reaches either bound. LossLimit must be
	// negative or zero; a positive value would sell every position
	// immediately after entry.
	ProfitLimit float64 `toml:"profit_limit"`
	LossLimit   float64 `toml:"loss_limit"`

	// Conditions names the broker-side screening conditions whose matched
	// stocks are bought.
	Conditions []string `toml:"conditions"`

	PollInterval   duration `toml:"poll_interval"`
	CommandTimeout duration `toml:"command_timeout"`

	// BuyFillPollDelay and SellFillPollDelay pace order-status lookups so
	// fill confirmation does not flood the broker session.
	BuyFillPollDelay  duration `toml:"buy_fill_poll_delay"`
	SellFillPollDelay duration `toml:"sell_fill_poll_delay"`
}

// BridgeConfig holds the endpoints of the local broker bridge process.
type BridgeConfig struct {
	BaseURL             string   `toml:"base_url"`
	WsURL               string   `toml:"ws_url"`
	ConnectPollInterval duration `toml:"connect_poll_interval"`
}

// StorageConfig selects and configures the position ledger backend.
type StorageConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver   string         `toml:"driver"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Postgres PostgresConfig `toml:"postgres"`
}

// SQLiteConfig holds the file-backed ledger parameters.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// CacheConfig selects and configures the live quote cache backend.
type CacheConfig struct {
	// Driver is "memory" or "redis".
	Driver string      `toml:"driver"`
	Redis  RedisConfig `toml:"redis"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	PoolSize int    `toml:"pool_size"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Trading: TradingConfig{
			Budget:            0,
			ProfitLimit:       10,
			LossLimit:         -5,
			PollInterval:      duration{1 * time.Second},
			CommandTimeout:    duration{20 * time.Second},
			BuyFillPollDelay:  duration{2 * time.Second},
			SellFillPollDelay: duration{1 * time.Second},
		},
		Bridge: BridgeConfig{
			BaseURL:             "http://localhost:8080",
			WsURL:               "ws://localhost:8080/events",
			ConnectPollInterval: duration{500 * time.Millisecond},
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path: "positions.db",
			},
			Postgres: PostgresConfig{
				Host:          "localhost",
				Port:          5432,
				Database:      "kiwoom",
				User:          "postgres",
				SSLMode:       "disable",
				PoolMaxConns:  4,
				PoolMinConns:  1,
				RunMigrations: true,
			},
		},
		Cache: CacheConfig{
			Driver: "memory",
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Notify: NotifyConfig{
			Events: []string{"buy_placed", "buy_filled", "sell_placed", "position_closed", "error"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Trading
	if c.Trading.Account == "" {
		errs = append(errs, "trading: account must not be empty")
	}
	if c.Trading.Budget <= 0 {
		errs = append(errs, "trading: budget must be > 0")
	}
	if c.Trading.ProfitLimit <= 0 {
		errs = append(errs, "trading: profit_limit must be > 0")
	}
	if c.Trading.LossLimit > 0 {
		errs = append(errs, fmt.Sprintf("trading: loss_limit must be <= 0, got %v (a positive floor sells every position on entry)", c.Trading.LossLimit))
	}
	if c.Trading.LossLimit >= c.Trading.ProfitLimit {
		errs = append(errs, "trading: loss_limit must be below profit_limit")
	}
	if len(c.Trading.Conditions) == 0 {
		errs = append(errs, "trading: at least one screening condition must be configured")
	}
	if c.Trading.PollInterval.Duration <= 0 {
		errs = append(errs, "trading: poll_interval must be positive")
	}
	if c.Trading.CommandTimeout.Duration <= 0 {
		errs = append(errs, "trading: command_timeout must be positive")
	}
	if c.Trading.BuyFillPollDelay.Duration < 0 {
		errs = append(errs, "trading: buy_fill_poll_delay must not be negative")
	}
	if c.Trading.SellFillPollDelay.Duration < 0 {
		errs = append(errs, "trading: sell_fill_poll_delay must not be negative")
	}

	// Bridge
	if c.Bridge.BaseURL == "" {
		errs = append(errs, "bridge: base_url must not be empty")
	}
	if c.Bridge.WsURL == "" {
		errs = append(errs, "bridge: ws_url must not be empty")
	}
	if c.Bridge.ConnectPollInterval.Duration <= 0 {
		errs = append(errs, "bridge: connect_poll_interval must be positive")
	}

	// Storage
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			errs = append(errs, "storage: sqlite.path must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(c.Storage.Postgres.DSN) == "" {
			if c.Storage.Postgres.Host == "" {
				errs = append(errs, "storage: postgres.host must not be empty (or set postgres.dsn)")
			}
			if c.Storage.Postgres.Port <= 0 || c.Storage.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("storage: postgres.port must be 1-65535, got %d", c.Storage.Postgres.Port))
			}
			if c.Storage.Postgres.Database == "" {
				errs = append(errs, "storage: postgres.database must not be empty")
			}
		}
		if c.Storage.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "storage: postgres.pool_max_conns must be >= 1")
		}
		if c.Storage.Postgres.PoolMinConns < 0 {
			errs = append(errs, "storage: postgres.pool_min_conns must be >= 0")
		}
		if c.Storage.Postgres.PoolMinConns > c.Storage.Postgres.PoolMaxConns {
			errs = append(errs, "storage: postgres.pool_min_conns must not exceed pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage: unknown driver %q (valid: sqlite, postgres)", c.Storage.Driver))
	}

	// Cache
	switch c.Cache.Driver {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, "cache: redis.addr must not be empty")
		}
		if c.Cache.Redis.PoolSize < 1 {
			errs = append(errs, "cache: redis.pool_size must be >= 1")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache: unknown driver %q (valid: memory, redis)", c.Cache.Driver))
	}

	// Notify — Telegram credentials must be set together, or both empty.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must both be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
