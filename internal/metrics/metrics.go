// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all engine metrics.
type Metrics struct {
	// CyclesTotal counts finished worker cycles, labeled by the decision
	// action (raised, lowered, hold, organic, error) plus "skipped" for
	// cycles refused before any decision was taken.
	CyclesTotal *prometheus.CounterVec

	// CycleDuration observes the wall time of one worker cycle.
	CycleDuration prometheus.Histogram

	// CollaboratorErrors counts failed calls to external collaborators,
	// labeled by operation (auction, organic, stats, submit, ...).
	CollaboratorErrors *prometheus.CounterVec

	// ActiveCampaigns is the campaign count of the last producer tick.
	ActiveCampaigns prometheus.Gauge

	// BidSubmissions counts bid updates actually sent to the marketplace.
	BidSubmissions prometheus.Counter

	// ArchivedDecisions counts decision rows moved to cold storage.
	ArchivedDecisions prometheus.Counter
}

// New creates and registers all engine metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers all engine metrics on the given registerer. Tests use
// this with a fresh registry so repeated construction never collides.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bidpilot_cycles_total",
				Help: "Worker cycles finished, by resulting action",
			},
			[]string{"action"},
		),
		CycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bidpilot_cycle_duration_seconds",
				Help:    "Wall time of one campaign worker cycle",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		CollaboratorErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bidpilot_collaborator_errors_total",
				Help: "Failed collaborator calls, by operation",
			},
			[]string{"op"},
		),
		ActiveCampaigns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bidpilot_active_campaigns",
				Help: "Active campaigns seen on the last producer tick",
			},
		),
		BidSubmissions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bidpilot_bid_submissions_total",
				Help: "Bid updates submitted to the marketplace",
			},
		),
		ArchivedDecisions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bidpilot_archived_decisions_total",
				Help: "Decision rows archived to cold storage",
			},
		),
	}
}

// Serve runs an HTTP listener exposing /metrics until ctx is cancelled.
// It returns nil on clean shutdown.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
