// Package reconcile ties state reading, the scaling policy, and the drivers
// into a single tick. Every tick is a complete, stateless decision round:
// nothing is carried between invocations, so a failed or deferred tick is
// retried naturally by the next external trigger.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/backscale/backscale/internal/backend"
	"github.com/backscale/backscale/internal/drive"
	"github.com/backscale/backscale/internal/policy"
	"github.com/backscale/backscale/pkg/scaling"
)

// Reconciler runs one reconciliation tick at a time. Callers are expected
// not to overlap ticks for the same fleet; that precondition belongs to the
// external trigger (the daemon loop enforces it with single-flight).
type Reconciler struct {
	reader     *backend.StateReader
	policy     policy.Policy
	capacity   *drive.Driver
	dispatcher *drive.Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a reconciler from its collaborators.
func New(reader *backend.StateReader, pol policy.Policy, capacity *drive.Driver, dispatcher *drive.Dispatcher, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		reader:     reader,
		policy:     pol,
		capacity:   capacity,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// RunTick executes one tick: read state, decide, drive capacity, dispatch
// work, report. The returned error is non-nil only for StateUnavailable;
// every other condition is captured inside the TickResult.
func (r *Reconciler) RunTick(ctx context.Context) (scaling.TickResult, error) {
	res := scaling.TickResult{
		TickID:    scaling.NewTickID(),
		Timestamp: r.now(),
	}
	log := r.logger.With("tick_id", res.TickID)

	backlog, fleet, work, err := r.reader.Read(ctx)
	if err != nil {
		res.Status = scaling.StatusStateUnavailable
		res.Error = err.Error()
		log.Error("tick aborted, state unavailable", "error", err)
		return res, &StateUnavailableError{Err: err}
	}
	res.Backlog, res.Fleet, res.Work = backlog, fleet, work
	if fleet.Anomalous() {
		log.Warn("fleet exceeds its ceiling",
			"active", fleet.ActiveUnits, "max", fleet.MaxUnits)
	}

	dec := r.policy.Decide(policy.Inputs{
		BacklogTotal:   backlog.Total(),
		RunningWorkers: work.Running,
		ActiveCapacity: fleet.ActiveUnits,
		MaxCapacity:    fleet.MaxUnits,
	})
	res.Decision = dec
	log.Info("decision",
		"policy", r.policy.Name(),
		"action", dec.Action,
		"backlog", backlog.Total(),
		"running", work.Running,
		"target_workers", dec.TargetWorkers,
		"target_capacity", dec.TargetCapacity)

	switch dec.Action {
	case scaling.ActionNone:
		// Straight to reporting; no driver calls when nothing changes.
		res.Status = scaling.StatusNoop
		return res, nil
	case scaling.ActionScaleDown:
		return r.drain(ctx, res), nil
	default:
		return r.scaleUp(ctx, res, dec, work.Running), nil
	}
}

// drain stops all work units, then releases fleet capacity.
func (r *Reconciler) drain(ctx context.Context, res scaling.TickResult) scaling.TickResult {
	drainOut := r.dispatcher.StopAll(ctx, "queue empty, scaling to zero")
	res.Drain = &drainOut

	capOut := r.capacity.Release(ctx)
	res.Capacity = &capOut

	if len(drainOut.Errors) > 0 || len(capOut.Errors) > 0 {
		res.Status = scaling.StatusPartial
		return res
	}
	res.Status = scaling.StatusDrained
	return res
}

// scaleUp ensures capacity, waits for it to register, then launches the
// worker delta. Capacity is confirmed strictly before any launch; on a wait
// timeout the tick defers rather than dispatching into a void.
func (r *Reconciler) scaleUp(ctx context.Context, res scaling.TickResult, dec scaling.Decision, running uint) scaling.TickResult {
	capOut := r.capacity.EnsureCapacity(ctx, dec.TargetCapacity)
	res.Capacity = &capOut

	if capOut.Usable == 0 {
		// Nothing became available; reporting only, no dispatch.
		res.Status = scaling.StatusPartial
		res.Dispatch = &scaling.DispatchOutcome{}
		return res
	}

	want := dec.TargetCapacity
	if capOut.Usable < want {
		want = capOut.Usable
	}
	observed, ok := r.dispatcher.WaitForCapacity(ctx, want)
	if !ok {
		res.Deferred = true
		res.Status = scaling.StatusDeferred
		res.Dispatch = &scaling.DispatchOutcome{}
		return res
	}

	// Dispatch only against capacity confirmed ready this tick.
	limit := dec.TargetWorkers
	if observed < limit {
		limit = observed
	}
	var delta uint
	if limit > running {
		delta = limit - running
	}
	dispOut := r.dispatcher.Launch(ctx, delta)
	res.Dispatch = &dispOut

	if len(capOut.Errors) > 0 || len(dispOut.Failures) > 0 {
		res.Status = scaling.StatusPartial
		return res
	}
	res.Status = scaling.StatusScaled
	return res
}
