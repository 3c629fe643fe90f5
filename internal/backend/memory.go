package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/backscale/backscale/pkg/scaling"
)

// Memory is an in-memory implementation of all three backends. It backs the
// dry-run mode of the CLI and keeps tests free of network fixtures. Started
// units register as capacity immediately, so a capacity wait against it
// never times out.
type Memory struct {
	mu       sync.Mutex
	visible  uint
	inFlight uint
	max      uint
	desired  uint
	active   []scaling.UnitID
	stopped  []scaling.UnitID
	warm     []scaling.UnitID
	running  []scaling.TaskID
	nextTask int
}

var (
	_ QueueBackend = (*Memory)(nil)
	_ FleetBackend = (*Memory)(nil)
	_ WorkBackend  = (*Memory)(nil)
)

// NewMemory creates an empty in-memory backend with the given fleet ceiling.
func NewMemory(max uint) *Memory {
	return &Memory{max: max}
}

// SetBacklog sets the queue depth reading.
func (m *Memory) SetBacklog(visible, inFlight uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visible, m.inFlight = visible, inFlight
}

// AddStopped registers provisioned-but-stopped units.
func (m *Memory) AddStopped(ids ...scaling.UnitID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = append(m.stopped, ids...)
}

// AddWarmPool registers warm-pool units.
func (m *Memory) AddWarmPool(ids ...scaling.UnitID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warm = append(m.warm, ids...)
}

func (m *Memory) Depth(ctx context.Context) (QueueDepth, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return QueueDepth{Visible: m.visible, InFlight: m.inFlight}, nil
}

func (m *Memory) Describe(ctx context.Context) (FleetDescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return FleetDescription{Active: uint(len(m.active)), Desired: m.desired, Max: m.max}, nil
}

func (m *Memory) SetDesiredCapacity(ctx context.Context, n uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.desired = n
	// Desired-count raises provision fresh units up to the ceiling.
	for uint(len(m.active)) < n && uint(len(m.active)) < m.max {
		m.active = append(m.active, scaling.UnitID(fmt.Sprintf("unit-%d", len(m.active)+len(m.stopped)+1)))
	}
	return nil
}

func (m *Memory) ListStoppedUnits(ctx context.Context) ([]scaling.UnitID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]scaling.UnitID, len(m.stopped))
	copy(out, m.stopped)
	return out, nil
}

func (m *Memory) StartUnits(ctx context.Context, ids []scaling.UnitID) (StartResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res StartResult
	for _, id := range ids {
		idx := -1
		for i, stopped := range m.stopped {
			if stopped == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			res.Errors = append(res.Errors, fmt.Sprintf("unit %s is not stopped", id))
			continue
		}
		m.stopped = append(m.stopped[:idx], m.stopped[idx+1:]...)
		m.active = append(m.active, id)
		res.Started = append(res.Started, id)
	}
	return res, nil
}

func (m *Memory) DescribeWarmPool(ctx context.Context) ([]scaling.UnitID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]scaling.UnitID, len(m.warm))
	copy(out, m.warm)
	return out, nil
}

func (m *Memory) CountRunning(ctx context.Context) (uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint(len(m.running)), nil
}

func (m *Memory) Launch(ctx context.Context, count uint, spec LaunchSpec) (LaunchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res LaunchResult
	for i := uint(0); i < count; i++ {
		if uint(len(m.running)) >= uint(len(m.active)) {
			res.Failures = append(res.Failures, "no capacity unit available")
			continue
		}
		m.nextTask++
		id := scaling.TaskID(fmt.Sprintf("task-%d", m.nextTask))
		m.running = append(m.running, id)
		res.Launched = append(res.Launched, id)
	}
	return res, nil
}

func (m *Memory) ListRunning(ctx context.Context) ([]scaling.TaskID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]scaling.TaskID, len(m.running))
	copy(out, m.running)
	return out, nil
}

func (m *Memory) Stop(ctx context.Context, id scaling.TaskID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, running := range m.running {
		if running == id {
			m.running = append(m.running[:i], m.running[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("task %s is not running", id)
}

func (m *Memory) ListCapacityUnits(ctx context.Context) ([]scaling.UnitID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]scaling.UnitID, len(m.active))
	copy(out, m.active)
	return out, nil
}
