// Package engine orchestrates the control loop: the per-campaign worker
// cycle, the fleet producer that fans cycles out, and the decision-log
// archiver. All control arithmetic lives in the controller package; this
// package owns the I/O sequencing around it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/adlift/bidpilot/internal/controller"
	"github.com/adlift/bidpilot/internal/domain"
	"github.com/adlift/bidpilot/internal/metrics"
	"github.com/adlift/bidpilot/internal/notify"
)

// WorkerConfig holds the timing knobs for one worker cycle.
type WorkerConfig struct {
	// CallTimeout bounds every individual collaborator call.
	CallTimeout time.Duration
	// LockTTL bounds how long a crashed cycle can hold its campaign lease.
	LockTTL time.Duration
	// DefaultDT is the elapsed-time value assumed on a cold start, when no
	// previous control state exists to diff timestamps against. The
	// producer's tick interval is the natural choice.
	DefaultDT time.Duration
}

// Worker executes one full decision cycle for one campaign. Cycles are
// strictly sequential with no internal retries; a failed cycle aborts and
// the next scheduled tick retries naturally.
type Worker struct {
	campaigns domain.CampaignStore
	decisions domain.DecisionStore
	states    domain.ControlStateCache
	locks     domain.LockManager

	// marketplaces resolves the API client authenticated as the operator
	// owning the campaign being cycled.
	marketplaces domain.MarketplaceSource

	pid    controller.PID
	policy controller.Policy

	cfg      WorkerConfig
	metrics  *metrics.Metrics
	notifier *notify.Notifier
	logger   *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewWorker creates a Worker. notifier may be nil when operator alerts are
// not configured.
func NewWorker(
	campaigns domain.CampaignStore,
	decisions domain.DecisionStore,
	states domain.ControlStateCache,
	locks domain.LockManager,
	marketplaces domain.MarketplaceSource,
	pid controller.PID,
	cfg WorkerConfig,
	m *metrics.Metrics,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		campaigns:    campaigns,
		decisions:    decisions,
		states:       states,
		locks:        locks,
		marketplaces: marketplaces,
		pid:          pid,
		cfg:          cfg,
		metrics:      m,
		notifier:     notifier,
		logger:       logger.With(slog.String("component", "worker")),
		now:          time.Now,
	}
}

// RunCycle executes one decision cycle for the given campaign. It is safe to
// invoke on-demand (manual "run now") as well as from the producer; the
// per-campaign lease guarantees at most one in-flight cycle per campaign.
//
// Every executed or refused cycle appends exactly one decision row. The two
// exceptions are a held lease (the concurrent holder writes the row) and a
// transient collaborator failure (the cycle aborts with nothing persisted
// and the next tick retries).
func (w *Worker) RunCycle(ctx context.Context, campaignID string) error {
	start := w.now()

	release, err := w.locks.Acquire(ctx, "bid:"+campaignID, w.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			w.logger.DebugContext(ctx, "cycle already in flight, skipping",
				slog.String("campaign_id", campaignID))
			w.metrics.CyclesTotal.WithLabelValues("skipped").Inc()
			return nil
		}
		return fmt.Errorf("engine: acquire lease %s: %w", campaignID, err)
	}
	defer release()
	defer func() {
		w.metrics.CycleDuration.Observe(w.now().Sub(start).Seconds())
	}()

	c, err := w.loadSettings(ctx, campaignID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInactiveCampaign) {
			w.logger.DebugContext(ctx, "campaign not runnable",
				slog.String("campaign_id", campaignID),
				slog.String("error", err.Error()))
			w.metrics.CyclesTotal.WithLabelValues("skipped").Inc()
			return nil
		}
		return err
	}

	if err := c.Validate(); err != nil {
		w.refuseConfig(ctx, c, err)
		return nil
	}

	api, err := w.marketplaces.ForOperator(ctx, c.OperatorID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Missing operator credentials need fixing, not retrying.
			w.refuseConfig(ctx, c, err)
			return nil
		}
		w.metrics.CollaboratorErrors.WithLabelValues("credentials").Inc()
		w.logger.WarnContext(ctx, "operator credentials unavailable, aborting cycle",
			slog.String("campaign_id", campaignID),
			slog.String("operator_id", c.OperatorID),
			slog.String("error", err.Error()))
		return err
	}

	snapshot, err := w.fetchAuction(ctx, api, c.Keyword)
	if err != nil {
		w.metrics.CollaboratorErrors.WithLabelValues("auction").Inc()
		w.logger.WarnContext(ctx, "auction unavailable, aborting cycle",
			slog.String("campaign_id", campaignID),
			slog.String("error", err.Error()))
		return err
	}

	previousBid, err := w.fetchBidInfo(ctx, api, campaignID)
	if err != nil {
		w.metrics.CollaboratorErrors.WithLabelValues("bid_info").Inc()
		w.logger.WarnContext(ctx, "bid info unavailable, aborting cycle",
			slog.String("campaign_id", campaignID),
			slog.String("error", err.Error()))
		return err
	}

	currentPos := snapshot.PositionOf(campaignID)

	// Organic protection: when unpaid placement already satisfies the
	// target, drop to the minimum bid and skip the controller entirely.
	// This is a cost-saving override, not a controller state update.
	if c.CheckOrganic && c.SKU != "" {
		organicPos, err := w.fetchOrganicRank(ctx, api, c.Keyword, c.SKU)
		if err != nil {
			// Fail open: a broken organic check must not stop bidding.
			w.metrics.CollaboratorErrors.WithLabelValues("organic").Inc()
			w.logger.WarnContext(ctx, "organic check failed, proceeding without override",
				slog.String("campaign_id", campaignID),
				slog.String("error", err.Error()))
		} else if organicPos <= c.TargetPos {
			return w.finishCycle(ctx, api, c, cycleResult{
				currentPos:  currentPos,
				previousBid: previousBid,
				calculated:  c.MinBid,
				action:      domain.ActionOrganic,
				reason:      "organic protection",
			})
		}
	}

	st, cold, err := w.loadControlState(ctx, campaignID)
	if err != nil {
		w.metrics.CollaboratorErrors.WithLabelValues("state_load").Inc()
		w.logger.WarnContext(ctx, "control state unavailable, aborting cycle",
			slog.String("campaign_id", campaignID),
			slog.String("error", err.Error()))
		return err
	}

	now := w.now()
	dt := w.cfg.DefaultDT.Seconds()
	if !cold && !st.LastUpdate.IsZero() {
		dt = now.Sub(st.LastUpdate).Seconds()
	}

	// Controller step. Only the pid strategy consumes (and advances) the
	// persisted state; competitor following is stateless.
	var pidBid int
	var next domain.ControlState
	var advanced bool
	if c.Strategy == domain.StrategyPID {
		pidBid, next, advanced = w.pid.Update(st, controller.PIDInput{
			MeasuredRank: currentPos,
			CurrentBid:   previousBid,
			TargetPos:    c.TargetPos,
			MinBid:       c.MinBid,
			MaxBid:       c.MaxBid,
			DT:           dt,
		})
	}

	in := controller.DecisionInput{PIDBid: pidBid, CurrentBid: previousBid}
	if currentPos == c.TargetPos {
		// The occupant of the target rank is this campaign. Outbidding it
		// would chase our own bid upward one unit per cycle.
		in.SelfAtTarget = true
	} else if bid, ok := snapshot.BidAt(c.TargetPos); ok {
		competitor := bid
		in.CompetitorBid = &competitor
	}
	if c.TargetCPA > 0 {
		cs, err := w.fetchStats(ctx, api, campaignID)
		if err != nil {
			// Fail open: the CPA guard is skipped this cycle.
			w.metrics.CollaboratorErrors.WithLabelValues("stats").Inc()
			w.logger.WarnContext(ctx, "stats unavailable, skipping cpa guard",
				slog.String("campaign_id", campaignID),
				slog.String("error", err.Error()))
		} else {
			in.Stats = cs
			in.StatsOK = true
		}
	}

	finalBid, reason := w.policy.Decide(c, in)

	// Persist the advanced state before applying the bid, so a submit
	// failure never desynchronizes the controller from what it computed.
	if advanced {
		next.LastUpdate = now
		if err := w.states.Save(ctx, campaignID, next); err != nil {
			w.metrics.CollaboratorErrors.WithLabelValues("state_save").Inc()
			w.logger.WarnContext(ctx, "control state save failed, aborting cycle",
				slog.String("campaign_id", campaignID),
				slog.String("error", err.Error()))
			return err
		}
	}

	return w.finishCycle(ctx, api, c, cycleResult{
		currentPos:  currentPos,
		previousBid: previousBid,
		calculated:  finalBid,
		action:      domain.ClassifyAction(previousBid, finalBid),
		reason:      reason,
	})
}

// cycleResult carries the computed outcome into the apply/log tail shared by
// the normal and organic paths.
type cycleResult struct {
	currentPos  int
	previousBid int
	calculated  int
	action      domain.Action
	reason      string
}

// finishCycle applies the bid if it changed, then appends the audit row.
// Submission failure is logged but does not roll back the decision; the next
// cycle reconciles against the marketplace's own bid state.
func (w *Worker) finishCycle(ctx context.Context, api domain.MarketplaceAPI, c domain.CampaignSettings, res cycleResult) error {
	if res.calculated != res.previousBid {
		if err := w.submitBid(ctx, api, c.ID, res.calculated); err != nil {
			w.metrics.CollaboratorErrors.WithLabelValues("submit").Inc()
			w.logger.WarnContext(ctx, "bid submission failed",
				slog.String("campaign_id", c.ID),
				slog.Int("bid", res.calculated),
				slog.String("error", err.Error()))
		} else {
			w.metrics.BidSubmissions.Inc()
		}
	} else if res.action != domain.ActionOrganic && res.action != domain.ActionError {
		res.action = domain.ActionHold
	}

	w.appendDecision(ctx, domain.BidDecision{
		ID:            uuid.New().String(),
		CampaignID:    c.ID,
		Time:          w.now().UTC(),
		CurrentPos:    res.currentPos,
		TargetPos:     c.TargetPos,
		PreviousBid:   res.previousBid,
		CalculatedBid: res.calculated,
		Action:        res.action,
		Reason:        res.reason,
		SavedAmount:   res.previousBid - res.calculated,
	})

	w.metrics.CyclesTotal.WithLabelValues(string(res.action)).Inc()

	w.logger.InfoContext(ctx, "cycle finished",
		slog.String("campaign_id", c.ID),
		slog.Int("current_pos", res.currentPos),
		slog.Int("target_pos", c.TargetPos),
		slog.Int("previous_bid", res.previousBid),
		slog.Int("calculated_bid", res.calculated),
		slog.String("action", string(res.action)),
		slog.String("reason", res.reason))
	return nil
}

// refuseConfig records a configuration refusal: one ActionError audit row,
// an operator alert, no state touched. These get a distinct outcome so
// operators can tell "needs fixing" from "will retry".
func (w *Worker) refuseConfig(ctx context.Context, c domain.CampaignSettings, cause error) {
	w.logger.WarnContext(ctx, "campaign configuration refused",
		slog.String("campaign_id", c.ID),
		slog.String("error", cause.Error()))
	w.appendDecision(ctx, domain.BidDecision{
		ID:         uuid.New().String(),
		CampaignID: c.ID,
		Time:       w.now().UTC(),
		TargetPos:  c.TargetPos,
		Action:     domain.ActionError,
		Reason:     cause.Error(),
	})
	if w.notifier != nil {
		_ = w.notifier.Notify(ctx, notify.EventConfigError,
			"Campaign configuration error",
			fmt.Sprintf("campaign %s: %v", c.ID, cause))
	}
	w.metrics.CyclesTotal.WithLabelValues(string(domain.ActionError)).Inc()
}

// appendDecision writes the audit row best-effort. The log is observability,
// never the source of truth, so a failed append must not abort the cycle.
func (w *Worker) appendDecision(ctx context.Context, d domain.BidDecision) {
	callCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
	defer cancel()

	if err := w.decisions.Append(callCtx, d); err != nil {
		w.metrics.CollaboratorErrors.WithLabelValues("decision_log").Inc()
		w.logger.ErrorContext(ctx, "decision log append failed",
			slog.String("campaign_id", d.CampaignID),
			slog.String("error", err.Error()))
	}
}

// --------------------------------------------------------------------------
// Timeout-wrapped collaborator calls
// --------------------------------------------------------------------------

func (w *Worker) loadSettings(ctx context.Context, campaignID string) (domain.CampaignSettings, error) {
	callCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
	defer cancel()

	c, err := w.campaigns.Get(callCtx, campaignID)
	if err != nil {
		return domain.CampaignSettings{}, err
	}
	if !c.IsActive {
		return domain.CampaignSettings{}, domain.ErrInactiveCampaign
	}
	return c, nil
}

func (w *Worker) fetchAuction(ctx context.Context, api domain.MarketplaceAPI, keyword string) (domain.AuctionSnapshot, error) {
	callCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
	defer cancel()
	return api.FetchAuction(callCtx, keyword)
}

func (w *Worker) fetchBidInfo(ctx context.Context, api domain.MarketplaceAPI, campaignID string) (int, error) {
	callCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
	defer cancel()
	return api.FetchBidInfo(callCtx, campaignID)
}

func (w *Worker) fetchOrganicRank(ctx context.Context, api domain.MarketplaceAPI, keyword, sku string) (int, error) {
	callCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
	defer cancel()
	return api.FetchOrganicRank(callCtx, keyword, sku)
}

func (w *Worker) fetchStats(ctx context.Context, api domain.MarketplaceAPI, campaignID string) (domain.CampaignStats, error) {
	callCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
	defer cancel()
	return api.FetchStats(callCtx, campaignID)
}

func (w *Worker) submitBid(ctx context.Context, api domain.MarketplaceAPI, campaignID string, amount int) error {
	callCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
	defer cancel()
	return api.SubmitBid(callCtx, campaignID, amount)
}

// loadControlState returns the persisted state, reporting a cold start when
// no record exists. Absence is a valid signal, not a failure.
func (w *Worker) loadControlState(ctx context.Context, campaignID string) (domain.ControlState, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
	defer cancel()

	st, err := w.states.Load(callCtx, campaignID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ControlState{}, true, nil
	}
	if err != nil {
		return domain.ControlState{}, false, err
	}
	return st, false, nil
}
