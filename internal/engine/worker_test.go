package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adlift/bidpilot/internal/controller"
	"github.com/adlift/bidpilot/internal/domain"
	"github.com/adlift/bidpilot/internal/metrics"
)

// --------------------------------------------------------------------------
// Collaborator fakes
// --------------------------------------------------------------------------

type fakeCampaignStore struct {
	mu        sync.Mutex
	campaigns map[string]domain.CampaignSettings
	listErr   error
}

func (f *fakeCampaignStore) Get(_ context.Context, id string) (domain.CampaignSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return domain.CampaignSettings{}, domain.ErrNotFound
	}
	return c, nil
}

func (f *fakeCampaignStore) ListActive(_ context.Context) ([]domain.CampaignSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.CampaignSettings
	for _, c := range f.campaigns {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCampaignStore) Upsert(_ context.Context, c domain.CampaignSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.campaigns[c.ID] = c
	return nil
}

func (f *fakeCampaignStore) SetActive(_ context.Context, id string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.IsActive = active
	f.campaigns[id] = c
	return nil
}

type fakeDecisionStore struct {
	mu        sync.Mutex
	decisions []domain.BidDecision
	appendErr error
}

func (f *fakeDecisionStore) Append(_ context.Context, d domain.BidDecision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.decisions = append(f.decisions, d)
	return nil
}

func (f *fakeDecisionStore) ListByCampaign(context.Context, string, domain.ListOpts) ([]domain.BidDecision, error) {
	return nil, nil
}

func (f *fakeDecisionStore) ListBefore(context.Context, time.Time) ([]domain.BidDecision, error) {
	return nil, nil
}

func (f *fakeDecisionStore) SumSaved(context.Context, string, time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeDecisionStore) all() []domain.BidDecision {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.BidDecision, len(f.decisions))
	copy(out, f.decisions)
	return out
}

type fakeStateCache struct {
	mu        sync.Mutex
	states    map[string]domain.ControlState
	saveCalls int
	loadErr   error
	saveErr   error
}

func (f *fakeStateCache) Load(_ context.Context, id string) (domain.ControlState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return domain.ControlState{}, f.loadErr
	}
	st, ok := f.states[id]
	if !ok {
		return domain.ControlState{}, domain.ErrNotFound
	}
	return st, nil
}

func (f *fakeStateCache) Save(_ context.Context, id string, st domain.ControlState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saveCalls++
	f.states[id] = st
	return nil
}

func (f *fakeStateCache) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, id)
	return nil
}

type fakeLockManager struct {
	held bool
}

func (f *fakeLockManager) Acquire(context.Context, string, time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	return func() {}, nil
}

type fakeAuctionProvider struct {
	snapshot domain.AuctionSnapshot
	err      error
}

func (f *fakeAuctionProvider) FetchAuction(context.Context, string) (domain.AuctionSnapshot, error) {
	if f.err != nil {
		return domain.AuctionSnapshot{}, f.err
	}
	return f.snapshot, nil
}

type fakeOrganicProvider struct {
	rank int
	err  error
}

func (f *fakeOrganicProvider) FetchOrganicRank(context.Context, string, string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.rank, nil
}

type fakeSubmitter struct {
	mu        sync.Mutex
	bidInfo   int
	submitted []int
	submitErr error
}

func (f *fakeSubmitter) FetchBidInfo(context.Context, string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bidInfo, nil
}

func (f *fakeSubmitter) SubmitBid(_ context.Context, _ string, amount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, amount)
	f.bidInfo = amount
	return nil
}

func (f *fakeSubmitter) calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.submitted))
	copy(out, f.submitted)
	return out
}

type fakeStatsProvider struct {
	stats domain.CampaignStats
	err   error
}

func (f *fakeStatsProvider) FetchStats(context.Context, string) (domain.CampaignStats, error) {
	if f.err != nil {
		return domain.CampaignStats{}, f.err
	}
	return f.stats, nil
}

// fakeMarketplace assembles the four provider fakes into one operator-scoped
// API, the shape the worker resolves per campaign.
type fakeMarketplace struct {
	*fakeAuctionProvider
	*fakeOrganicProvider
	*fakeSubmitter
	*fakeStatsProvider
}

type fakeMarketplaceSource struct {
	mu        sync.Mutex
	api       domain.MarketplaceAPI
	err       error
	requested []string
}

func (f *fakeMarketplaceSource) ForOperator(_ context.Context, operatorID string) (domain.MarketplaceAPI, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, operatorID)
	if f.err != nil {
		return nil, f.err
	}
	return f.api, nil
}

// --------------------------------------------------------------------------
// Harness
// --------------------------------------------------------------------------

type workerHarness struct {
	campaigns *fakeCampaignStore
	decisions *fakeDecisionStore
	states    *fakeStateCache
	locks     *fakeLockManager
	auctions  *fakeAuctionProvider
	organic   *fakeOrganicProvider
	submitter *fakeSubmitter
	stats     *fakeStatsProvider
	source    *fakeMarketplaceSource
	worker    *Worker
}

func testCampaign() domain.CampaignSettings {
	return domain.CampaignSettings{
		ID:         "c1",
		OperatorID: "op1",
		IsActive:   true,
		Keyword:    "usb hub",
		SKU:        "sku-1",
		TargetPos:  1,
		MinBid:     100,
		MaxBid:     1000,
		Strategy:   domain.StrategyPID,
	}
}

func newHarness(t *testing.T, c domain.CampaignSettings) *workerHarness {
	t.Helper()

	h := &workerHarness{
		campaigns: &fakeCampaignStore{campaigns: map[string]domain.CampaignSettings{c.ID: c}},
		decisions: &fakeDecisionStore{},
		states:    &fakeStateCache{states: map[string]domain.ControlState{}},
		locks:     &fakeLockManager{},
		auctions: &fakeAuctionProvider{snapshot: domain.AuctionSnapshot{
			Keyword: c.Keyword,
			Slots: []domain.AuctionSlot{
				{Position: 1, Bid: 500, CampaignID: "rival"},
				{Position: 2, Bid: 300, CampaignID: c.ID},
			},
		}},
		organic:   &fakeOrganicProvider{rank: domain.FarPosition},
		submitter: &fakeSubmitter{bidInfo: 300},
		stats:     &fakeStatsProvider{stats: domain.CampaignStats{CTR: 0.05, CR: 0.02}},
	}
	h.source = &fakeMarketplaceSource{api: fakeMarketplace{
		h.auctions, h.organic, h.submitter, h.stats,
	}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.worker = NewWorker(
		h.campaigns, h.decisions, h.states, h.locks,
		h.source,
		controller.PID{KP: 1.0, KI: 0.1, KD: 0.05},
		WorkerConfig{
			CallTimeout: time.Second,
			LockTTL:     time.Minute,
			DefaultDT:   10 * time.Second,
		},
		metrics.NewWith(prometheus.NewRegistry()),
		nil,
		logger,
	)
	return h
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestRunCycleRaisesBidTowardTarget(t *testing.T) {
	h := newHarness(t, testCampaign())

	require.NoError(t, h.worker.RunCycle(context.Background(), "c1"))

	decisions := h.decisions.all()
	require.Len(t, decisions, 1)
	d := decisions[0]
	assert.Equal(t, domain.ActionRaised, d.Action)
	assert.Equal(t, 2, d.CurrentPos)
	assert.Equal(t, 1, d.TargetPos)
	assert.Equal(t, 300, d.PreviousBid)
	assert.Greater(t, d.CalculatedBid, d.PreviousBid)
	assert.Equal(t, d.PreviousBid-d.CalculatedBid, d.SavedAmount)

	require.Len(t, h.submitter.calls(), 1)
	assert.Equal(t, d.CalculatedBid, h.submitter.calls()[0])

	// State advanced and was stamped.
	st := h.states.states["c1"]
	require.NotNil(t, st.PrevMeasurement)
	assert.Equal(t, 2.0, *st.PrevMeasurement)
	assert.False(t, st.LastUpdate.IsZero())
}

func TestRunCycleHoldIsIdempotent(t *testing.T) {
	c := testCampaign()
	h := newHarness(t, c)
	// Already on target: error is zero, the controller holds the bid.
	h.auctions.snapshot.Slots = []domain.AuctionSlot{
		{Position: 1, Bid: 300, CampaignID: c.ID},
	}

	require.NoError(t, h.worker.RunCycle(context.Background(), "c1"))
	require.NoError(t, h.worker.RunCycle(context.Background(), "c1"))

	decisions := h.decisions.all()
	require.Len(t, decisions, 2)
	for _, d := range decisions {
		assert.Equal(t, domain.ActionHold, d.Action)
		assert.Equal(t, 300, d.CalculatedBid)
		assert.Zero(t, d.SavedAmount)
	}
	assert.Empty(t, h.submitter.calls(), "hold must not touch the network")
}

func TestRunCycleOrganicShortCircuit(t *testing.T) {
	c := testCampaign()
	c.CheckOrganic = true
	c.TargetPos = 3
	h := newHarness(t, c)
	h.organic.rank = 2

	require.NoError(t, h.worker.RunCycle(context.Background(), "c1"))

	decisions := h.decisions.all()
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.ActionOrganic, decisions[0].Action)
	assert.Equal(t, "organic protection", decisions[0].Reason)
	assert.Equal(t, c.MinBid, decisions[0].CalculatedBid)

	require.Len(t, h.submitter.calls(), 1)
	assert.Equal(t, c.MinBid, h.submitter.calls()[0])

	assert.Zero(t, h.states.saveCalls, "organic override must not touch controller state")
}

func TestRunCycleOrganicCheckFailsOpen(t *testing.T) {
	c := testCampaign()
	c.CheckOrganic = true
	h := newHarness(t, c)
	h.organic.err = domain.ErrOrganicCheckFailed

	require.NoError(t, h.worker.RunCycle(context.Background(), "c1"))

	decisions := h.decisions.all()
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.ActionRaised, decisions[0].Action, "cycle proceeds without the override")
}

func TestRunCycleInactiveCampaignSkipped(t *testing.T) {
	c := testCampaign()
	c.IsActive = false
	h := newHarness(t, c)

	require.NoError(t, h.worker.RunCycle(context.Background(), "c1"))

	assert.Empty(t, h.decisions.all())
	assert.Empty(t, h.submitter.calls())
}

func TestRunCycleUnknownCampaignSkipped(t *testing.T) {
	h := newHarness(t, testCampaign())

	require.NoError(t, h.worker.RunCycle(context.Background(), "ghost"))
	assert.Empty(t, h.decisions.all())
}

func TestRunCycleAuctionUnavailableAborts(t *testing.T) {
	h := newHarness(t, testCampaign())
	h.auctions.err = domain.ErrAuctionUnavailable

	err := h.worker.RunCycle(context.Background(), "c1")
	require.ErrorIs(t, err, domain.ErrAuctionUnavailable)

	assert.Empty(t, h.decisions.all())
	assert.Empty(t, h.submitter.calls())
	assert.Zero(t, h.states.saveCalls, "no partial state on abort")
}

func TestRunCycleStateSaveFailureAborts(t *testing.T) {
	h := newHarness(t, testCampaign())
	h.states.saveErr = errors.New("redis down")

	err := h.worker.RunCycle(context.Background(), "c1")
	require.Error(t, err)

	assert.Empty(t, h.decisions.all())
	assert.Empty(t, h.submitter.calls(), "bid must not apply when state cannot persist")
}

func TestRunCycleSubmitFailureStillLogs(t *testing.T) {
	h := newHarness(t, testCampaign())
	h.submitter.submitErr = errors.New("marketplace 502")

	require.NoError(t, h.worker.RunCycle(context.Background(), "c1"))

	decisions := h.decisions.all()
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.ActionRaised, decisions[0].Action)
}

func TestRunCycleInvalidSettingsWritesErrorDecision(t *testing.T) {
	c := testCampaign()
	c.MinBid = 900
	c.MaxBid = 100
	h := newHarness(t, c)

	require.NoError(t, h.worker.RunCycle(context.Background(), "c1"))

	decisions := h.decisions.all()
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.ActionError, decisions[0].Action)
	assert.Contains(t, decisions[0].Reason, "min_bid")

	assert.Empty(t, h.submitter.calls())
	assert.Zero(t, h.states.saveCalls)
}

func TestRunCycleLockHeldSkips(t *testing.T) {
	h := newHarness(t, testCampaign())
	h.locks.held = true

	require.NoError(t, h.worker.RunCycle(context.Background(), "c1"))

	assert.Empty(t, h.decisions.all(), "the concurrent holder writes the row")
	assert.Empty(t, h.submitter.calls())
}

func TestRunCycleStatsFailureSkipsCPAGuard(t *testing.T) {
	c := testCampaign()
	c.TargetCPA = 1 // aggressive enough to cap any bid when the guard runs
	h := newHarness(t, c)
	h.stats.err = errors.New("stats timeout")

	require.NoError(t, h.worker.RunCycle(context.Background(), "c1"))

	decisions := h.decisions.all()
	require.Len(t, decisions, 1)
	assert.NotContains(t, decisions[0].Reason, "CPA Guard")
	assert.Equal(t, domain.ActionRaised, decisions[0].Action)
}

func TestRunCycleFollowCompetitorStrategy(t *testing.T) {
	c := testCampaign()
	c.Strategy = domain.StrategyTargetPos
	h := newHarness(t, c)

	require.NoError(t, h.worker.RunCycle(context.Background(), "c1"))

	decisions := h.decisions.all()
	require.Len(t, decisions, 1)
	assert.Equal(t, 501, decisions[0].CalculatedBid)
	assert.Contains(t, decisions[0].Reason, "Follow Comp")
	assert.Zero(t, h.states.saveCalls, "competitor following is stateless")
}

func TestRunCycleSelfAtTargetHoldsBid(t *testing.T) {
	c := testCampaign()
	c.Strategy = domain.StrategyTargetPos
	h := newHarness(t, c)
	// The campaign already owns the target rank. The occupant's bid is its
	// own, so there is nothing to outbid and the applied bid must not creep.
	h.auctions.snapshot.Slots = []domain.AuctionSlot{
		{Position: 1, Bid: 300, CampaignID: c.ID},
		{Position: 2, Bid: 250, CampaignID: "rival"},
	}

	require.NoError(t, h.worker.RunCycle(context.Background(), "c1"))

	decisions := h.decisions.all()
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.ActionHold, decisions[0].Action)
	assert.Equal(t, 300, decisions[0].CalculatedBid)
	assert.Contains(t, decisions[0].Reason, "At Target")
	assert.NotContains(t, decisions[0].Reason, "Follow Comp")
	assert.Empty(t, h.submitter.calls(), "holding rank must not resubmit")
}

func TestRunCycleResolvesOwningOperator(t *testing.T) {
	h := newHarness(t, testCampaign())

	require.NoError(t, h.worker.RunCycle(context.Background(), "c1"))

	assert.Equal(t, []string{"op1"}, h.source.requested)
}

func TestRunCycleUnknownOperatorWritesErrorDecision(t *testing.T) {
	h := newHarness(t, testCampaign())
	h.source.err = fmt.Errorf("operator op1 credentials: %w", domain.ErrNotFound)

	require.NoError(t, h.worker.RunCycle(context.Background(), "c1"))

	decisions := h.decisions.all()
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.ActionError, decisions[0].Action)
	assert.Contains(t, decisions[0].Reason, "op1")

	assert.Empty(t, h.submitter.calls())
	assert.Zero(t, h.states.saveCalls)
}

func TestRunCycleCredentialLookupFailureAborts(t *testing.T) {
	h := newHarness(t, testCampaign())
	h.source.err = errors.New("pg down")

	err := h.worker.RunCycle(context.Background(), "c1")
	require.Error(t, err)

	assert.Empty(t, h.decisions.all(), "transient failure leaves nothing persisted")
	assert.Empty(t, h.submitter.calls())
}

func TestRunCycleAbsentFromAuctionUsesFarPosition(t *testing.T) {
	c := testCampaign()
	h := newHarness(t, c)
	h.auctions.snapshot.Slots = []domain.AuctionSlot{
		{Position: 1, Bid: 500, CampaignID: "rival"},
	}

	require.NoError(t, h.worker.RunCycle(context.Background(), "c1"))

	decisions := h.decisions.all()
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.FarPosition, decisions[0].CurrentPos)
	assert.Equal(t, domain.ActionRaised, decisions[0].Action)
}
