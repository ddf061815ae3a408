package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/adlift/bidpilot/internal/metrics"
	"github.com/adlift/bidpilot/internal/notify"
)

// DecisionArchiver moves decision rows older than a cutoff to cold storage
// and reports how many were moved and where they went.
type DecisionArchiver interface {
	ArchiveDecisions(ctx context.Context, before time.Time) (count int64, path string, err error)
}

// Archiver runs decision-log retention on a cron schedule. Archived rows are
// not deleted from the primary store; that remains an explicit operator
// step after the archive is verified.
type Archiver struct {
	archiver  DecisionArchiver
	retention time.Duration

	metrics  *metrics.Metrics
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewArchiver creates an Archiver that archives rows older than retention.
// notifier may be nil.
func NewArchiver(
	archiver DecisionArchiver,
	retention time.Duration,
	m *metrics.Metrics,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		archiver:  archiver,
		retention: retention,
		metrics:   m,
		notifier:  notifier,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// RunOnce executes a single archive pass with the cutoff derived from the
// retention window.
func (a *Archiver) RunOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-a.retention)

	count, path, err := a.archiver.ArchiveDecisions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("engine: archive decisions: %w", err)
	}
	if count == 0 {
		a.logger.InfoContext(ctx, "nothing to archive",
			slog.Time("cutoff", cutoff))
		return nil
	}

	a.metrics.ArchivedDecisions.Add(float64(count))

	a.logger.InfoContext(ctx, "archive pass finished",
		slog.Int64("count", count),
		slog.String("path", path),
		slog.Time("cutoff", cutoff))

	if a.notifier != nil {
		_ = a.notifier.Notify(ctx, notify.EventArchiveDone,
			"Decision archive finished",
			fmt.Sprintf("%d rows archived to %s", count, path))
	}
	return nil
}

// Run schedules RunOnce on the given cron expression (standard 5-field
// syntax) until the context is cancelled.
func (a *Archiver) Run(ctx context.Context, schedule string) error {
	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		if err := a.RunOnce(ctx); err != nil {
			a.logger.Error("archive pass failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("engine: invalid archive schedule %q: %w", schedule, err)
	}

	c.Start()
	a.logger.Info("archiver scheduled", slog.String("schedule", schedule))

	<-ctx.Done()
	stopCtx := c.Stop()
	// Let an in-flight pass finish before returning.
	<-stopCtx.Done()
	return ctx.Err()
}
