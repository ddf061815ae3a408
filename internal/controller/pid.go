// Package controller implements the bid-control arithmetic: the PID feedback
// loop that tracks a target auction rank and the policy layer that wraps its
// output with business rules. Both are pure and synchronous; all I/O lives in
// the engine package.
package controller

import (
	"math"

	"github.com/adlift/bidpilot/internal/domain"
)

// PID holds the fixed controller gains. Gains are shared across the fleet;
// per-campaign variation happens through the bid bounds, not the gains.
type PID struct {
	// KP scales the proportional response to the current rank error.
	KP float64
	// KI scales the accumulated error; the integral is clamped to
	// ±0.5*(max_bid-min_bid) to prevent windup during sustained error.
	KI float64
	// KD scales the derivative of the measurement (not the error), which
	// avoids derivative kick when an operator moves the target position.
	KD float64
	// Deadband is the rank-error magnitude below which the controller holds
	// the current bid, so near-target noise does not cause oscillation.
	Deadband float64
}

// PIDInput bundles one cycle's measurements and bounds.
type PIDInput struct {
	MeasuredRank int
	CurrentBid   int
	TargetPos    int
	MinBid       int
	MaxBid       int
	// DT is the elapsed time since the previous cycle, in seconds.
	DT float64
}

// Update runs one controller step. It returns the new bid, the state to
// persist, and whether the state advanced at all.
//
// advanced is false on the deadband short-circuit and on invalid dt; in both
// cases the returned state equals the input state and must not be persisted.
// Repeated near-target cycles therefore never move the derivative baseline:
// the deadband is a full no-op, not a partial update.
func (p PID) Update(st domain.ControlState, in PIDInput) (newBid int, next domain.ControlState, advanced bool) {
	// dt <= 0 signals clock skew or a double invocation; refuse the step.
	if in.DT <= 0 {
		return in.CurrentBid, st, false
	}

	rankErr := float64(in.MeasuredRank - in.TargetPos)
	if math.Abs(rankErr) <= p.Deadband {
		return in.CurrentBid, st, false
	}

	pTerm := p.KP * rankErr

	integral := st.Integral + p.KI*rankErr*in.DT
	windup := 0.5 * float64(in.MaxBid-in.MinBid)
	integral = clampFloat(integral, -windup, windup)
	iTerm := integral

	// Differentiate the measurement, seeded to zero on cold start.
	var dTerm float64
	if st.PrevMeasurement != nil {
		derivative := (float64(in.MeasuredRank) - *st.PrevMeasurement) / in.DT
		dTerm = -p.KD * derivative
	}

	bid := float64(in.CurrentBid) + pTerm + iTerm + dTerm
	newBid = clampInt(int(math.Round(bid)), in.MinBid, in.MaxBid)

	measured := float64(in.MeasuredRank)
	next = domain.ControlState{
		Integral:        integral,
		PrevMeasurement: &measured,
		LastUpdate:      st.LastUpdate, // stamped by the caller on save
	}
	return newBid, next, true
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
