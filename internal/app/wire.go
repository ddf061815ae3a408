package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/adlift/bidpilot/internal/blob/s3"
	"github.com/adlift/bidpilot/internal/cache/redis"
	"github.com/adlift/bidpilot/internal/config"
	"github.com/adlift/bidpilot/internal/controller"
	"github.com/adlift/bidpilot/internal/domain"
	"github.com/adlift/bidpilot/internal/engine"
	"github.com/adlift/bidpilot/internal/metrics"
	"github.com/adlift/bidpilot/internal/notify"
	"github.com/adlift/bidpilot/internal/platform/marketplace"
	"github.com/adlift/bidpilot/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	OperatorStore domain.OperatorStore
	CampaignStore domain.CampaignStore
	DecisionStore domain.DecisionStore

	// Caches
	ControlStates domain.ControlStateCache
	LockManager   domain.LockManager

	// Engine
	Worker   *engine.Worker
	Producer *engine.Producer
	Archiver *engine.Archiver

	// Observability
	Metrics  *metrics.Metrics
	Notifier *notify.Notifier
}

// needsS3 reports whether the mode can run an archive pass.
func needsS3(cfg *config.Config) bool {
	switch cfg.Mode {
	case "archive":
		return true
	case "engine":
		return cfg.Producer.ArchiveCron != ""
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.OperatorStore = postgres.NewOperatorStore(pool)
	deps.CampaignStore = postgres.NewCampaignStore(pool)
	decisionStore := postgres.NewDecisionStore(pool)
	deps.DecisionStore = decisionStore

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.ControlStates = redis.NewControlStateCache(redisClient, cfg.Controller.StateTTL.Duration)
	deps.LockManager = redis.NewLockManager(redisClient)

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

	// --- Marketplace API ---
	// Cycles authenticate as the campaign's owning operator; the configured
	// token is the service-level fallback for unbound campaigns.
	mkt := marketplace.NewOperatorClients(
		deps.OperatorStore,
		cfg.Marketplace.BaseURL,
		cfg.Marketplace.ApiToken,
		cfg.Marketplace.Timeout.Duration,
	)

	// --- Engine ---
	pid := controller.PID{
		KP:       cfg.Controller.KP,
		KI:       cfg.Controller.KI,
		KD:       cfg.Controller.KD,
		Deadband: cfg.Controller.Deadband,
	}
	deps.Worker = engine.NewWorker(
		deps.CampaignStore,
		deps.DecisionStore,
		deps.ControlStates,
		deps.LockManager,
		mkt,
		pid,
		engine.WorkerConfig{
			CallTimeout: cfg.Controller.CallTimeout.Duration,
			LockTTL:     cfg.Controller.LockTTL.Duration,
			DefaultDT:   cfg.Producer.TickInterval.Duration,
		},
		deps.Metrics,
		deps.Notifier,
		logger,
	)
	deps.Producer = engine.NewProducer(
		deps.CampaignStore,
		deps.Worker,
		cfg.Producer.TickInterval.Duration,
		cfg.Producer.WorkerLimit,
		deps.Metrics,
		logger,
	)

	// --- S3 cold storage (only when an archive pass can run) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		retention := time.Duration(cfg.Producer.RetentionDays) * 24 * time.Hour
		deps.Archiver = engine.NewArchiver(
			s3blob.NewArchiver(s3blob.NewWriter(s3Client), decisionStore),
			retention,
			deps.Metrics,
			deps.Notifier,
			logger,
		)
	}

	return deps, cleanup, nil
}
