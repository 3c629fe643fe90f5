package scaling

// Action is the direction a scaling decision moves the fleet in.
type Action string

const (
	ActionNone      Action = "none"
	ActionScaleUp   Action = "scale_up"
	ActionScaleDown Action = "scale_down"
)

// UnitID identifies a capacity unit (a compute instance in the fleet).
type UnitID string

// TaskID identifies a work unit (a scheduled task on the cluster).
type TaskID string

// BacklogSnapshot is the queue depth observed at the start of a tick.
// It is produced fresh each tick and never persisted.
type BacklogSnapshot struct {
	Visible  uint `json:"visible"`
	InFlight uint `json:"in_flight"`
}

// Total is the full pending workload: visible plus in-flight messages.
func (b BacklogSnapshot) Total() uint {
	return b.Visible + b.InFlight
}

// FleetSnapshot is the capacity state observed at the start of a tick.
type FleetSnapshot struct {
	ActiveUnits   uint `json:"active_units"`
	DesiredUnits  uint `json:"desired_units"`
	MaxUnits      uint `json:"max_units"`
	WarmPoolUnits uint `json:"warm_pool_units"`
}

// Anomalous reports whether the fleet is running more units than its ceiling
// allows. This is a reporting anomaly, never a reason to abort a tick.
func (f FleetSnapshot) Anomalous() bool {
	return f.ActiveUnits > f.MaxUnits
}

// WorkSnapshot is the count of currently executing work units.
type WorkSnapshot struct {
	Running uint `json:"running"`
}

// Decision is the pure output of a scaling policy.
// TargetCapacity never exceeds the fleet ceiling, and a scale-down always
// pairs zero workers with zero capacity.
type Decision struct {
	TargetWorkers  uint   `json:"target_workers"`
	TargetCapacity uint   `json:"target_capacity"`
	Action         Action `json:"action"`
}
