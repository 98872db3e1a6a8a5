package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies KIWOOM_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known KIWOOM_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Trading ──
	setStr(&cfg.Trading.Account, "KIWOOM_TRADING_ACCOUNT")
	setFloat64(&cfg.Trading.Budget, "KIWOOM_TRADING_BUDGET")
	setFloat64(&cfg.Trading.ProfitLimit, "KIWOOM_TRADING_PROFIT_LIMIT")
	setFloat64(&cfg.Trading.LossLimit, "KIWOOM_TRADING_LOSS_LIMIT")
	setStringSlice(&cfg.Trading.Conditions, "KIWOOM_TRADING_CONDITIONS")
	setDuration(&cfg.Trading.PollInterval, "KIWOOM_TRADING_POLL_INTERVAL")
	setDuration(&cfg.Trading.CommandTimeout, "KIWOOM_TRADING_COMMAND_TIMEOUT")
	setDuration(&cfg.Trading.BuyFillPollDelay, "KIWOOM_TRADING_BUY_FILL_POLL_DELAY")
	setDuration(&cfg.Trading.SellFillPollDelay, "KIWOOM_TRADING_SELL_FILL_POLL_DELAY")

	// ── Bridge ──
	setStr(&cfg.Bridge.BaseURL, "KIWOOM_BRIDGE_BASE_URL")
	setStr(&cfg.Bridge.WsURL, "KIWOOM_BRIDGE_WS_URL")
	setDuration(&cfg.Bridge.ConnectPollInterval, "KIWOOM_BRIDGE_CONNECT_POLL_INTERVAL")

	// ── Storage ──
	setStr(&cfg.Storage.Driver, "KIWOOM_STORAGE_DRIVER")
	setStr(&cfg.Storage.SQLite.Path, "KIWOOM_STORAGE_SQLITE_PATH")
	setStr(&cfg.Storage.Postgres.DSN, "KIWOOM_STORAGE_POSTGRES_DSN")
	setStr(&cfg.Storage.Postgres.Host, "KIWOOM_STORAGE_POSTGRES_HOST")
	setInt(&cfg.Storage.Postgres.Port, "KIWOOM_STORAGE_POSTGRES_PORT")
	setStr(&cfg.Storage.Postgres.Database, "KIWOOM_STORAGE_POSTGRES_DATABASE")
	setStr(&cfg.Storage.Postgres.User, "KIWOOM_STORAGE_POSTGRES_USER")
	setStr(&cfg.Storage.Postgres.Password, "KIWOOM_STORAGE_POSTGRES_PASSWORD")
	setStr(&cfg.Storage.Postgres.SSLMode, "KIWOOM_STORAGE_POSTGRES_SSLMODE")
	setInt(&cfg.Storage.Postgres.PoolMaxConns, "KIWOOM_STORAGE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Storage.Postgres.PoolMinConns, "KIWOOM_STORAGE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Storage.Postgres.RunMigrations, "KIWOOM_STORAGE_POSTGRES_RUN_MIGRATIONS")

	// ── Cache ──
	setStr(&cfg.Cache.Driver, "KIWOOM_CACHE_DRIVER")
	setStr(&cfg.Cache.Redis.Addr, "KIWOOM_CACHE_REDIS_ADDR")
	setStr(&cfg.Cache.Redis.Password, "KIWOOM_CACHE_REDIS_PASSWORD")
	setInt(&cfg.Cache.Redis.DB, "KIWOOM_CACHE_REDIS_DB")
	setInt(&cfg.Cache.Redis.PoolSize, "KIWOOM_CACHE_REDIS_POOL_SIZE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "KIWOOM_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "KIWOOM_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "KIWOOM_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "KIWOOM_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "KIWOOM_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
