package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adlift/bidpilot/internal/domain"
	"github.com/adlift/bidpilot/internal/metrics"
)

// Producer enumerates active campaigns on a fixed interval and fans one
// worker cycle out per campaign. Campaigns are independent; the producer
// bounds parallelism but imposes no ordering.
type Producer struct {
	campaigns domain.CampaignStore
	worker    *Worker

	interval    time.Duration
	workerLimit int

	metrics *metrics.Metrics
	logger  *slog.Logger

	trigger chan struct{}
}

// NewProducer creates a Producer dispatching to the given worker.
// workerLimit bounds concurrent cycles; values below 1 mean unbounded.
func NewProducer(
	campaigns domain.CampaignStore,
	worker *Worker,
	interval time.Duration,
	workerLimit int,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Producer {
	return &Producer{
		campaigns:   campaigns,
		worker:      worker,
		interval:    interval,
		workerLimit: workerLimit,
		metrics:     m,
		logger:      logger.With(slog.String("component", "producer")),
		trigger:     make(chan struct{}, 1),
	}
}

// Tick runs one fan-out pass: list active campaigns and run one cycle per
// campaign. Worker failures are logged and absorbed; a broken campaign must
// never stop the rest of the fleet, and the next tick retries naturally.
func (p *Producer) Tick(ctx context.Context) error {
	campaigns, err := p.campaigns.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("engine: list active campaigns: %w", err)
	}

	p.metrics.ActiveCampaigns.Set(float64(len(campaigns)))

	if len(campaigns) == 0 {
		p.logger.DebugContext(ctx, "no active campaigns")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if p.workerLimit > 0 {
		g.SetLimit(p.workerLimit)
	}

	for _, c := range campaigns {
		campaignID := c.ID
		g.Go(func() error {
			if err := p.worker.RunCycle(gctx, campaignID); err != nil {
				p.logger.WarnContext(gctx, "worker cycle failed",
					slog.String("campaign_id", campaignID),
					slog.String("error", err.Error()))
			}
			return nil
		})
	}

	_ = g.Wait()

	p.logger.InfoContext(ctx, "tick finished", slog.Int("campaigns", len(campaigns)))
	return nil
}

// Trigger requests an immediate out-of-band tick. It never blocks; if a
// trigger is already pending the request coalesces with it.
func (p *Producer) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run ticks immediately, then on every interval and on every Trigger call,
// until the context is cancelled.
func (p *Producer) Run(ctx context.Context) error {
	if err := p.Tick(ctx); err != nil {
		p.logger.Error("tick failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("producer loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := p.Tick(ctx); err != nil {
				p.logger.Error("tick failed", slog.String("error", err.Error()))
			}
		case <-p.trigger:
			if err := p.Tick(ctx); err != nil {
				p.logger.Error("triggered tick failed", slog.String("error", err.Error()))
			}
		}
	}
}
