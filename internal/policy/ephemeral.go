package policy

import "github.com/backscale/backscale/pkg/scaling"

// Ephemeral is the 1:1 policy: each unit of backlog maps to exactly one
// capacity unit running exactly one work unit, capped by the fleet ceiling.
// Backlog beyond the ceiling is deliberately left for a later tick rather
// than promised capacity that cannot exist. An empty queue drains the fleet.
type Ephemeral struct{}

func (Ephemeral) Name() string { return VariantEphemeral }

func (Ephemeral) Decide(in Inputs) scaling.Decision {
	if in.BacklogTotal == 0 {
		return scaling.Decision{Action: scaling.ActionScaleDown}
	}
	capacity := minUint(in.BacklogTotal, in.MaxCapacity)
	if capacity == 0 {
		// A zero ceiling leaves nothing to scale up to.
		return scaling.Decision{Action: scaling.ActionNone}
	}
	return scaling.Decision{
		TargetWorkers:  capacity,
		TargetCapacity: capacity,
		Action:         scaling.ActionScaleUp,
	}
}
