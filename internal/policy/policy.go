package policy

import (
	"fmt"

	"github.com/backscale/backscale/pkg/scaling"
)

// Policy variant names, selectable by configuration.
const (
	VariantEphemeral = "ephemeral"
	VariantPool      = "pool"
)

// DefaultBurstFactor is the backlog multiplier the pool policy uses as its
// hysteresis band: scale-up only triggers once backlog exceeds this many
// times the running worker count.
const DefaultBurstFactor = 2

// Inputs are the observed quantities a policy decides from.
type Inputs struct {
	BacklogTotal   uint
	RunningWorkers uint
	ActiveCapacity uint
	MaxCapacity    uint
}

// Policy maps observed state to a scaling decision.
// Implementations are pure and deterministic; no I/O.
type Policy interface {
	Decide(in Inputs) scaling.Decision
	Name() string
}

// ForVariant returns the policy named by variant. An empty variant selects
// the ephemeral policy. burstFactor only applies to the pool variant; zero
// means DefaultBurstFactor.
func ForVariant(variant string, burstFactor uint) (Policy, error) {
	switch variant {
	case VariantEphemeral, "":
		return Ephemeral{}, nil
	case VariantPool:
		return NewPool(burstFactor), nil
	default:
		return nil, fmt.Errorf("unknown policy variant %q", variant)
	}
}

func minUint(a, b uint) uint {
	if a < b {
		return a
	}
	return b
}
