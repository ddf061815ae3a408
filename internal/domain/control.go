package domain

import "time"

// ControlState is the controller memory for one campaign, persisted between
// stateless invocations. It is owned exclusively by the PID controller and
// overwritten every cycle. The cache backing it expires idle entries; losing
// the record only resets the integral term, it never corrupts correctness.
type ControlState struct {
	// Integral is the accumulated error term, clamped by the controller to
	// ±0.5*(max_bid-min_bid).
	Integral float64
	// PrevMeasurement is the rank observed on the previous cycle. Nil means
	// cold start: the derivative term is seeded to zero.
	PrevMeasurement *float64
	// LastUpdate is when the state was last written; the worker derives the
	// elapsed time dt from it.
	LastUpdate time.Time
}
