package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/backscale/backscale/pkg/scaling"
)

// StateReader reads the full observable state for one tick. Pure read; the
// only side effects are the calls to the underlying backends.
type StateReader struct {
	queue  QueueBackend
	fleet  FleetBackend
	work   WorkBackend
	logger *slog.Logger
}

// NewStateReader creates a reader over the three backends.
func NewStateReader(queue QueueBackend, fleet FleetBackend, work WorkBackend, logger *slog.Logger) *StateReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateReader{queue: queue, fleet: fleet, work: work, logger: logger}
}

// Read produces fresh snapshots for a tick. Backlog, fleet and work counts
// are required: any of them failing fails the read. The warm-pool read is
// optional enrichment and degrades to zero units on error.
func (r *StateReader) Read(ctx context.Context) (scaling.BacklogSnapshot, scaling.FleetSnapshot, scaling.WorkSnapshot, error) {
	var (
		backlog scaling.BacklogSnapshot
		fleet   scaling.FleetSnapshot
		work    scaling.WorkSnapshot
	)

	depth, err := r.queue.Depth(ctx)
	if err != nil {
		return backlog, fleet, work, fmt.Errorf("queue depth: %w", err)
	}
	backlog = scaling.BacklogSnapshot{Visible: depth.Visible, InFlight: depth.InFlight}

	desc, err := r.fleet.Describe(ctx)
	if err != nil {
		return backlog, fleet, work, fmt.Errorf("describe fleet: %w", err)
	}
	fleet = scaling.FleetSnapshot{
		ActiveUnits:  desc.Active,
		DesiredUnits: desc.Desired,
		MaxUnits:     desc.Max,
	}

	running, err := r.work.CountRunning(ctx)
	if err != nil {
		return backlog, fleet, work, fmt.Errorf("count running work: %w", err)
	}
	work = scaling.WorkSnapshot{Running: running}

	warm, err := r.fleet.DescribeWarmPool(ctx)
	if err != nil {
		r.logger.Warn("warm pool read failed, assuming empty", "error", err)
	} else {
		fleet.WarmPoolUnits = uint(len(warm))
	}

	return backlog, fleet, work, nil
}
