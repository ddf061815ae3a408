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
// built-in defaults, applies BIDPILOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known BIDPILOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Marketplace ──
	setStr(&cfg.Marketplace.BaseURL, "BIDPILOT_MARKETPLACE_BASE_URL")
	setStr(&cfg.Marketplace.ApiToken, "BIDPILOT_MARKETPLACE_API_TOKEN")
	setDuration(&cfg.Marketplace.Timeout, "BIDPILOT_MARKETPLACE_TIMEOUT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "BIDPILOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "BIDPILOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BIDPILOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BIDPILOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BIDPILOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BIDPILOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BIDPILOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BIDPILOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BIDPILOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BIDPILOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "BIDPILOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BIDPILOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BIDPILOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BIDPILOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BIDPILOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BIDPILOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "BIDPILOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BIDPILOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "BIDPILOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BIDPILOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BIDPILOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BIDPILOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BIDPILOT_S3_FORCE_PATH_STYLE")

	// ── Controller ──
	setFloat64(&cfg.Controller.KP, "BIDPILOT_CONTROLLER_KP")
	setFloat64(&cfg.Controller.KI, "BIDPILOT_CONTROLLER_KI")
	setFloat64(&cfg.Controller.KD, "BIDPILOT_CONTROLLER_KD")
	setFloat64(&cfg.Controller.Deadband, "BIDPILOT_CONTROLLER_DEADBAND")
	setDuration(&cfg.Controller.CallTimeout, "BIDPILOT_CONTROLLER_CALL_TIMEOUT")
	setDuration(&cfg.Controller.LockTTL, "BIDPILOT_CONTROLLER_LOCK_TTL")
	setDuration(&cfg.Controller.StateTTL, "BIDPILOT_CONTROLLER_STATE_TTL")

	// ── Producer ──
	setDuration(&cfg.Producer.TickInterval, "BIDPILOT_PRODUCER_TICK_INTERVAL")
	setInt(&cfg.Producer.WorkerLimit, "BIDPILOT_PRODUCER_WORKER_LIMIT")
	setInt(&cfg.Producer.RetentionDays, "BIDPILOT_PRODUCER_RETENTION_DAYS")
	setStr(&cfg.Producer.ArchiveCron, "BIDPILOT_PRODUCER_ARCHIVE_CRON")

	// ── Metrics ──
	setStr(&cfg.Metrics.Addr, "BIDPILOT_METRICS_ADDR")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BIDPILOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BIDPILOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BIDPILOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BIDPILOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "BIDPILOT_MODE")
	setStr(&cfg.LogLevel, "BIDPILOT_LOG_LEVEL")
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
