package domain

import "time"

// Action classifies the outcome of one worker cycle for the audit trail.
type Action string

const (
	// ActionRaised means the calculated bid is above the previous one.
	ActionRaised Action = "raised"
	// ActionLowered means the calculated bid is below the previous one.
	ActionLowered Action = "lowered"
	// ActionHold means the bid did not change; no submission was made.
	ActionHold Action = "hold"
	// ActionOrganic means the organic-protection override forced the
	// minimum bid, skipping the controller entirely.
	ActionOrganic Action = "organic"
	// ActionError means the cycle was refused due to a configuration error.
	ActionError Action = "error"
)

// ClassifyAction derives the action from the bid delta.
func ClassifyAction(previousBid, calculatedBid int) Action {
	switch {
	case calculatedBid > previousBid:
		return ActionRaised
	case calculatedBid < previousBid:
		return ActionLowered
	default:
		return ActionHold
	}
}

// BidDecision is one append-only audit record. Exactly one is written per
// executed or refused cycle; the engine never mutates or deletes rows, so
// dashboards (budget saved, action trail) derive purely from this log.
type BidDecision struct {
	ID         string
	CampaignID string
	Time       time.Time

	CurrentPos int
	TargetPos  int

	PreviousBid   int
	CalculatedBid int

	Action Action
	// Reason documents which policy rule produced the bid, for operators,
	// not for control.
	Reason string
	// SavedAmount is the signed delta previous - calculated.
	SavedAmount int
}
