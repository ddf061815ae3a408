package app

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/adlift/bidpilot/internal/metrics"
	"github.com/adlift/bidpilot/internal/notify"
)

// EngineMode runs the long-lived service: the producer loop, the archiver
// cron (when configured), and the metrics listener. It blocks until the
// context is cancelled.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Producer.Run(ctx)
	})

	if deps.Archiver != nil && a.cfg.Producer.ArchiveCron != "" {
		g.Go(func() error {
			return deps.Archiver.Run(ctx, a.cfg.Producer.ArchiveCron)
		})
	}

	if a.cfg.Metrics.Addr != "" {
		g.Go(func() error {
			a.logger.InfoContext(ctx, "metrics listener starting",
				slog.String("addr", a.cfg.Metrics.Addr))
			return metrics.Serve(ctx, a.cfg.Metrics.Addr)
		})
	}

	err := g.Wait()

	if deps.Notifier != nil {
		// The run context is done; use a fresh one for the farewell.
		_ = deps.Notifier.Notify(context.WithoutCancel(ctx), notify.EventEngineStopped,
			"Engine stopped", "bidpilot engine shut down")
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// OnceMode runs a single producer tick and exits. This is the entry point
// for fleets driven by an external scheduler.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting single-tick mode")
	return deps.Producer.Tick(ctx)
}

// ArchiveMode runs one archive pass and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	if deps.Archiver == nil {
		a.logger.WarnContext(ctx, "archiver not configured")
		return nil
	}
	return deps.Archiver.RunOnce(ctx)
}
