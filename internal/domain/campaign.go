package domain

import (
	"fmt"
	"strings"
	"time"
)

// Strategy selects how the final bid for a campaign is derived. It is a
// closed set: ParseStrategy rejects anything it does not know, so adding a
// new strategy forces every switch over Strategy to be revisited.
type Strategy string

const (
	// StrategyPID derives the bid from the PID controller output.
	StrategyPID Strategy = "pid"
	// StrategyTargetPos bids one unit over whoever currently holds the
	// target auction position.
	StrategyTargetPos Strategy = "target_pos"
)

// ParseStrategy converts a raw configuration string into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyPID:
		return StrategyPID, nil
	case StrategyTargetPos:
		return StrategyTargetPos, nil
	default:
		return "", fmt.Errorf("unknown strategy %q", s)
	}
}

// CampaignSettings is the operator-owned configuration for one advertising
// campaign. The engine treats it as read-only; mutation happens through the
// configuration UI and reaches the engine via CampaignStore.
//
// All monetary fields are integer currency units, CPM denominated.
type CampaignSettings struct {
	ID         string
	OperatorID string
	Name       string
	IsActive   bool

	// Keyword defines the auction the campaign competes in.
	Keyword string
	// SKU identifies the promoted product; required when CheckOrganic is set.
	SKU string

	TargetPos int
	MinBid    int
	MaxBid    int
	// TargetCPA caps the predicted cost per action; 0 disables the guard.
	TargetCPA int
	// MaxCPM is a hard bid ceiling below MaxBid; 0 disables it.
	MaxCPM int

	Strategy     Strategy
	CheckOrganic bool

	UpdatedAt time.Time
}

// Validate reports every configuration problem at once. A non-nil result is
// a fatal configuration error: the worker refuses to run the cycle rather
// than retrying, so operators can tell "needs fixing" from "will retry".
func (c CampaignSettings) Validate() error {
	var errs []string

	if c.ID == "" {
		errs = append(errs, "campaign id must not be empty")
	}
	if c.TargetPos < 1 {
		errs = append(errs, fmt.Sprintf("target_pos must be >= 1, got %d", c.TargetPos))
	}
	if c.MinBid <= 0 {
		errs = append(errs, fmt.Sprintf("min_bid must be > 0, got %d", c.MinBid))
	}
	if c.MinBid > c.MaxBid {
		errs = append(errs, fmt.Sprintf("min_bid %d exceeds max_bid %d", c.MinBid, c.MaxBid))
	}
	if c.TargetCPA < 0 {
		errs = append(errs, fmt.Sprintf("target_cpa must be >= 0, got %d", c.TargetCPA))
	}
	if c.MaxCPM < 0 {
		errs = append(errs, fmt.Sprintf("max_cpm must be >= 0, got %d", c.MaxCPM))
	}
	if c.Keyword == "" {
		errs = append(errs, "keyword is required for live auction data")
	}
	if c.CheckOrganic && c.SKU == "" {
		errs = append(errs, "sku is required when check_organic is enabled")
	}
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(errs, "; "))
	}
	return nil
}

// CampaignStats holds the efficiency metrics the CPA guard consumes.
// Rates are fractions, not percentages.
type CampaignStats struct {
	CTR float64 // click-through rate
	CR  float64 // conversion rate
}
