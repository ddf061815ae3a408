// Package config defines the top-level configuration for bidpilot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by BIDPILOT_* environment
// variables.
type Config struct {
	Marketplace MarketplaceConfig `toml:"marketplace"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Controller  ControllerConfig  `toml:"controller"`
	Producer    ProducerConfig    `toml:"producer"`
	Metrics     MetricsConfig     `toml:"metrics"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// MarketplaceConfig holds the advertising API endpoint and credentials.
type MarketplaceConfig struct {
	BaseURL  string   `toml:"base_url"`
	ApiToken string   `toml:"api_token"`
	Timeout  duration `toml:"timeout"`
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the decision
// archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ControllerConfig holds the fleet-wide controller gains and the per-cycle
// timing knobs. Gains are shared; per-campaign variation happens through the
// bid bounds stored with each campaign.
type ControllerConfig struct {
	KP       float64 `toml:"kp"`
	KI       float64 `toml:"ki"`
	KD       float64 `toml:"kd"`
	Deadband float64 `toml:"deadband"`

	// CallTimeout bounds every individual collaborator call within a cycle.
	CallTimeout duration `toml:"call_timeout"`
	// LockTTL bounds the per-campaign cycle lease.
	LockTTL duration `toml:"lock_ttl"`
	// StateTTL is the idle expiry of persisted controller state. Expiry
	// only resets the integral term.
	StateTTL duration `toml:"state_ttl"`
}

// ProducerConfig holds the fleet scheduling parameters.
type ProducerConfig struct {
	TickInterval duration `toml:"tick_interval"`
	// WorkerLimit bounds concurrent campaign cycles; <= 0 means unbounded.
	WorkerLimit int `toml:"worker_limit"`
	// RetentionDays is how long decision rows stay in the primary store
	// before the archiver moves them to cold storage.
	RetentionDays int    `toml:"retention_days"`
	ArchiveCron   string `toml:"archive_cron"`
}

// MetricsConfig holds the Prometheus listener settings. An empty address
// disables the listener.
type MetricsConfig struct {
	Addr string `toml:"addr"`
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
		Marketplace: MarketplaceConfig{
			BaseURL: "https://ads-api.marketplace.example/v2",
			Timeout: duration{30 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "bidpilot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "bidpilot-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Controller: ControllerConfig{
			KP:          1.0,
			KI:          0.1,
			KD:          0.05,
			Deadband:    0,
			CallTimeout: duration{10 * time.Second},
			LockTTL:     duration{2 * time.Minute},
			StateTTL:    duration{72 * time.Hour},
		},
		Producer: ProducerConfig{
			TickInterval:  duration{5 * time.Minute},
			WorkerLimit:   16,
			RetentionDays: 90,
			ArchiveCron:   "0 3 1 * *",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		Notify: NotifyConfig{
			Events: []string{"config_error", "engine_stopped", "archive_done"},
		},
		Mode:     "engine",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"engine":  true,
	"once":    true,
	"archive": true,
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

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: engine, once, archive)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Marketplace
	if c.Marketplace.BaseURL == "" {
		errs = append(errs, "marketplace: base_url must not be empty")
	}
	if c.Marketplace.ApiToken == "" {
		errs = append(errs, "marketplace: api_token must be set")
	}
	if c.Marketplace.Timeout.Duration <= 0 {
		errs = append(errs, "marketplace: timeout must be positive")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 is only required when the archive can run.
	if c.Mode == "archive" || (c.Mode == "engine" && c.Producer.ArchiveCron != "") {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Controller
	if c.Controller.KP < 0 || c.Controller.KI < 0 || c.Controller.KD < 0 {
		errs = append(errs, "controller: gains must not be negative")
	}
	if c.Controller.Deadband < 0 {
		errs = append(errs, "controller: deadband must not be negative")
	}
	if c.Controller.CallTimeout.Duration <= 0 {
		errs = append(errs, "controller: call_timeout must be positive")
	}
	if c.Controller.LockTTL.Duration <= 0 {
		errs = append(errs, "controller: lock_ttl must be positive")
	}
	if c.Controller.StateTTL.Duration < 0 {
		errs = append(errs, "controller: state_ttl must not be negative")
	}

	// Producer
	if c.Producer.TickInterval.Duration <= 0 {
		errs = append(errs, "producer: tick_interval must be positive")
	}
	if c.Producer.RetentionDays < 1 {
		errs = append(errs, "producer: retention_days must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
