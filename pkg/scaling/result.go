package scaling

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Status classifies the outcome of one reconciliation tick.
type Status string

const (
	// StatusNoop: the policy decided nothing needs to change; no backend was touched.
	StatusNoop Status = "noop"
	// StatusScaled: capacity was driven and workers launched with no failures.
	StatusScaled Status = "scaled"
	// StatusPartial: the tick made progress but collected per-unit failures.
	StatusPartial Status = "partial"
	// StatusDeferred: capacity did not become usable within the wait ceiling;
	// nothing was dispatched and the next tick will retry naturally.
	StatusDeferred Status = "deferred"
	// StatusDrained: the fleet was scaled to zero.
	StatusDrained Status = "drained"
	// StatusStateUnavailable: required external state could not be read; the
	// tick aborted before making any decision.
	StatusStateUnavailable Status = "state_unavailable"
)

// CapacityOutcome reports the result of driving fleet capacity toward a target.
type CapacityOutcome struct {
	Target uint `json:"target"`
	// Started lists the stopped units that were successfully reactivated.
	Started []UnitID `json:"started,omitempty"`
	// DesiredRaised is set when the fleet's desired-count was changed because
	// stopped units could not cover the gap.
	DesiredRaised bool `json:"desired_raised,omitempty"`
	// Usable is the capacity expected to be usable after this call: units
	// already active, units confirmed started, and any desired-count raise.
	Usable uint     `json:"usable"`
	Errors []string `json:"errors,omitempty"`
}

// DispatchOutcome reports the result of launching work units.
type DispatchOutcome struct {
	Requested uint     `json:"requested"`
	Launched  uint     `json:"launched"`
	Failures  []string `json:"failures,omitempty"`
}

// DrainOutcome reports the result of stopping all running work units.
type DrainOutcome struct {
	Stopped uint     `json:"stopped"`
	Errors  []string `json:"errors,omitempty"`
}

// TickResult is the single observable record produced by one tick. It is
// created once, never mutated afterwards, and serializes to the JSON shape
// the daemon logs and streams to watchers.
type TickResult struct {
	TickID    string           `json:"tick_id"`
	Status    Status           `json:"status"`
	Backlog   BacklogSnapshot  `json:"backlog"`
	Fleet     FleetSnapshot    `json:"fleet"`
	Work      WorkSnapshot     `json:"work"`
	Decision  Decision         `json:"decision"`
	Capacity  *CapacityOutcome `json:"capacity,omitempty"`
	Dispatch  *DispatchOutcome `json:"dispatch,omitempty"`
	Drain     *DrainOutcome    `json:"drain,omitempty"`
	Deferred  bool             `json:"deferred,omitempty"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Mutated reports whether the tick changed any external state.
func (r TickResult) Mutated() bool {
	if r.Capacity != nil && (len(r.Capacity.Started) > 0 || r.Capacity.DesiredRaised) {
		return true
	}
	if r.Dispatch != nil && r.Dispatch.Launched > 0 {
		return true
	}
	if r.Drain != nil && r.Drain.Stopped > 0 {
		return true
	}
	return false
}

// NewTickID generates a random 16-character hex tick identifier.
func NewTickID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// Fallback if rand fails (should be extremely rare)
		return "0000000000000000"
	}
	return hex.EncodeToString(b)
}
