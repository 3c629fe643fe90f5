package policy

import "github.com/backscale/backscale/pkg/scaling"

// Pool sizes a fleet of long-running pollers. Idle workers are a valid
// steady state and are never scaled down on a transient empty-queue reading;
// scale-up only triggers once backlog exceeds burst x runningWorkers, so a
// single extra queued message does not thrash the fleet.
type Pool struct {
	burst uint
}

// NewPool creates the pool policy. A zero burst factor selects
// DefaultBurstFactor.
func NewPool(burst uint) Pool {
	if burst == 0 {
		burst = DefaultBurstFactor
	}
	return Pool{burst: burst}
}

func (Pool) Name() string { return VariantPool }

func (p Pool) Decide(in Inputs) scaling.Decision {
	switch {
	case in.BacklogTotal == 0 && in.RunningWorkers == 0:
		// Idle steady state.
		return scaling.Decision{Action: scaling.ActionNone}
	case in.BacklogTotal == 0:
		// Workers idle-listening; hold them, capped at the ceiling.
		held := minUint(in.RunningWorkers, in.MaxCapacity)
		return scaling.Decision{
			TargetWorkers:  held,
			TargetCapacity: held,
			Action:         scaling.ActionNone,
		}
	case in.RunningWorkers == 0 || in.BacklogTotal > p.burst*in.RunningWorkers:
		needed := minUint(in.BacklogTotal, in.MaxCapacity)
		if needed == 0 {
			// A zero ceiling leaves nothing to scale up to.
			return scaling.Decision{Action: scaling.ActionNone}
		}
		return scaling.Decision{
			TargetWorkers:  needed,
			TargetCapacity: needed,
			Action:         scaling.ActionScaleUp,
		}
	default:
		// Existing workers drain minor backlog sequentially.
		held := minUint(in.RunningWorkers, in.MaxCapacity)
		return scaling.Decision{
			TargetWorkers:  held,
			TargetCapacity: held,
			Action:         scaling.ActionNone,
		}
	}
}
