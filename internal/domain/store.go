package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OperatorStore persists operator accounts and their marketplace
// credentials. The engine only reads; writes come from the configuration
// surface.
type OperatorStore interface {
	Get(ctx context.Context, id string) (Operator, error)
	Upsert(ctx context.Context, op Operator) error
}

// CampaignStore persists campaign settings. The engine only reads; writes
// come from the configuration surface.
type CampaignStore interface {
	Get(ctx context.Context, id string) (CampaignSettings, error)
	ListActive(ctx context.Context) ([]CampaignSettings, error)
	Upsert(ctx context.Context, c CampaignSettings) error
	SetActive(ctx context.Context, id string, active bool) error
}

// DecisionStore persists the append-only bid decision log.
type DecisionStore interface {
	Append(ctx context.Context, d BidDecision) error
	ListByCampaign(ctx context.Context, campaignID string, opts ListOpts) ([]BidDecision, error)
	// ListBefore returns all decisions strictly older than the cutoff, for
	// cold-storage archival.
	ListBefore(ctx context.Context, before time.Time) ([]BidDecision, error)
	// SumSaved totals the signed saved_amount deltas since the given time,
	// the "budget saved" figure dashboards show.
	SumSaved(ctx context.Context, campaignID string, since time.Time) (int64, error)
}

// ControlStateCache persists per-campaign controller state with expiry.
// Load returns ErrNotFound on cold start; that is a valid signal, not a
// failure.
type ControlStateCache interface {
	Load(ctx context.Context, campaignID string) (ControlState, error)
	Save(ctx context.Context, campaignID string, st ControlState) error
	Delete(ctx context.Context, campaignID string) error
}

// LockManager provides short-lived mutual exclusion keyed by campaign, so at
// most one worker cycle runs per campaign at a time. Acquire returns
// ErrLockHeld when another holder owns the key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
