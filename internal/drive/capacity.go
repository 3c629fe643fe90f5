// Package drive holds the side-effecting halves of a tick: driving fleet
// capacity and dispatching work units.
package drive

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/backscale/backscale/internal/backend"
	"github.com/backscale/backscale/pkg/scaling"
)

// Driver adjusts fleet capacity toward a target.
type Driver struct {
	fleet  backend.FleetBackend
	logger *slog.Logger
}

// NewDriver creates a capacity driver over a fleet backend.
func NewDriver(fleet backend.FleetBackend, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{fleet: fleet, logger: logger}
}

// EnsureCapacity drives the fleet toward target active units and reports
// what happened. Stopped units are reactivated first (cheaper and faster);
// the desired-count is raised only for the part of the gap no stopped unit
// can cover. Failures to start individual units are collected, never raised,
// and are not compensated with a desired-count raise: the next tick re-reads
// the world and retries. Calling with an already-met target is a no-op.
func (d *Driver) EnsureCapacity(ctx context.Context, target uint) scaling.CapacityOutcome {
	out := scaling.CapacityOutcome{Target: target}

	desc, err := d.fleet.Describe(ctx)
	if err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("describe fleet: %v", err))
		return out
	}
	if desc.Active >= target {
		out.Usable = desc.Active
		return out
	}
	gap := target - desc.Active

	stopped, err := d.fleet.ListStoppedUnits(ctx)
	if err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("list stopped units: %v", err))
		stopped = nil
	}

	attempt := gap
	if uint(len(stopped)) < attempt {
		attempt = uint(len(stopped))
	}
	if attempt > 0 {
		res, err := d.fleet.StartUnits(ctx, stopped[:attempt])
		if err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("start units: %v", err))
		}
		out.Started = res.Started
		out.Errors = append(out.Errors, res.Errors...)
		d.logger.Info("reactivated stopped units",
			"requested", attempt, "started", len(res.Started), "errors", len(res.Errors))
	}

	// Only the part of the gap with no stopped unit to cover it goes through
	// the desired-count.
	if attempt < gap {
		if err := d.fleet.SetDesiredCapacity(ctx, target); err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("set desired capacity: %v", err))
		} else {
			out.DesiredRaised = true
			d.logger.Info("raised desired capacity", "target", target)
		}
	}

	out.Usable = desc.Active + uint(len(out.Started))
	if out.DesiredRaised {
		out.Usable += gap - attempt
	}
	return out
}

// Release sets the fleet's desired capacity to zero.
func (d *Driver) Release(ctx context.Context) scaling.CapacityOutcome {
	out := scaling.CapacityOutcome{Target: 0}
	if err := d.fleet.SetDesiredCapacity(ctx, 0); err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("set desired capacity: %v", err))
		return out
	}
	d.logger.Info("released fleet capacity")
	return out
}
