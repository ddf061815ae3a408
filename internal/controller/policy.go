package controller

import (
	"fmt"
	"math"
	"strings"

	"github.com/adlift/bidpilot/internal/domain"
)

// rateFloor guards CTR/CR against zero before the CPA division.
const rateFloor = 0.01

// DecisionInput bundles everything the policy layer needs for one decision.
type DecisionInput struct {
	// PIDBid is the controller output, used when the campaign strategy is
	// StrategyPID.
	PIDBid int
	// CurrentBid is the bid currently applied on the marketplace side.
	CurrentBid int
	// SelfAtTarget reports that the campaign itself holds the target rank.
	// Competitor following then holds the current bid; there is no rival to
	// outbid, and following the campaign's own slot would ratchet the bid
	// up by one every cycle.
	SelfAtTarget bool
	// CompetitorBid is the bid a rival holds the target rank with, or nil
	// when that rank is vacant.
	CompetitorBid *int
	// Stats carries the CTR/CR the CPA guard divides by. When StatsOK is
	// false the guard is skipped for the cycle (fail open).
	Stats   domain.CampaignStats
	StatsOK bool
}

// Policy applies the business rules on top of the raw controller output:
// competitor following, the CPA cost guard, and the hard bid clamps. It is
// pure; the returned reason documents every rule that fired, in order, for
// the audit log.
type Policy struct{}

// Decide produces the final bid for one cycle.
func (Policy) Decide(c domain.CampaignSettings, in DecisionInput) (int, string) {
	var reasons []string

	// Step 1: base selection by strategy.
	var base int
	switch c.Strategy {
	case domain.StrategyTargetPos:
		switch {
		case in.SelfAtTarget:
			base = in.CurrentBid
			reasons = append(reasons, fmt.Sprintf("At Target pos %d", c.TargetPos))
		case in.CompetitorBid != nil:
			base = *in.CompetitorBid + 1
			reasons = append(reasons, fmt.Sprintf("Follow Comp pos %d bid %d", c.TargetPos, *in.CompetitorBid))
		default:
			base = c.MinBid
			reasons = append(reasons, "Auction Vacant")
		}
	default:
		base = in.PIDBid
		reasons = append(reasons, "PID")
	}

	// Step 2: CPA guard. Only ever tightens the bid.
	if c.TargetCPA > 0 && in.StatsOK {
		ctr := math.Max(in.Stats.CTR, rateFloor)
		cr := math.Max(in.Stats.CR, rateFloor)
		predictedCPA := (float64(base) / 1000.0) / (ctr * cr)
		if predictedCPA > float64(c.TargetCPA) {
			cap := int(math.Round(float64(c.TargetCPA) * 1000.0 * ctr * cr))
			if cap < base {
				base = cap
				reasons = append(reasons, "CPA Guard")
			}
		}
	}

	// Step 3: hard ceilings.
	if base > c.MaxBid {
		base = c.MaxBid
		reasons = append(reasons, "Max Bid")
	}
	if c.MaxCPM > 0 && base > c.MaxCPM {
		base = c.MaxCPM
		reasons = append(reasons, "Max CPM")
	}

	// Step 4: hard floor, applied last.
	if base < c.MinBid {
		base = c.MinBid
		reasons = append(reasons, "Min Bid")
	}

	return base, strings.Join(reasons, ", ")
}
