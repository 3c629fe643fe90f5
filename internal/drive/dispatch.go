package drive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/backscale/backscale/internal/backend"
	"github.com/backscale/backscale/pkg/scaling"
)

// Capacity-wait defaults: poll every 10s, give up after 60s. A timed-out
// wait is a deferral, not a failure; the next tick retries from scratch.
const (
	DefaultWaitTimeout  = 60 * time.Second
	DefaultWaitInterval = 10 * time.Second
)

// Dispatcher launches and stops work units on the scheduler backend.
type Dispatcher struct {
	work         backend.WorkBackend
	spec         backend.LaunchSpec
	waitTimeout  time.Duration
	waitInterval time.Duration
	logger       *slog.Logger
}

// NewDispatcher creates a dispatcher. Non-positive wait durations select the
// defaults.
func NewDispatcher(work backend.WorkBackend, spec backend.LaunchSpec, waitTimeout, waitInterval time.Duration, logger *slog.Logger) *Dispatcher {
	if waitTimeout <= 0 {
		waitTimeout = DefaultWaitTimeout
	}
	if waitInterval <= 0 {
		waitInterval = DefaultWaitInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		work:         work,
		spec:         spec,
		waitTimeout:  waitTimeout,
		waitInterval: waitInterval,
		logger:       logger,
	}
}

// WaitForCapacity polls the scheduler until at least want capacity units are
// registered, returning the last observed count and whether the wait
// succeeded. The poll is bounded by the configured timeout so a tick can
// never hang; a timeout returns false without error.
func (d *Dispatcher) WaitForCapacity(ctx context.Context, want uint) (uint, bool) {
	if want == 0 {
		return 0, true
	}
	deadline := time.Now().Add(d.waitTimeout)
	var observed uint
	for {
		units, err := d.work.ListCapacityUnits(ctx)
		if err != nil {
			d.logger.Warn("list capacity units failed", "error", err)
		} else {
			observed = uint(len(units))
			if observed >= want {
				return observed, true
			}
		}
		if !time.Now().Before(deadline) {
			d.logger.Warn("capacity wait timed out", "want", want, "observed", observed)
			return observed, false
		}
		select {
		case <-ctx.Done():
			return observed, false
		case <-time.After(d.waitInterval):
		}
	}
}

// Launch submits count work-launch requests. Zero is a no-op success. The
// outcome always carries the launched count and itemized failure reasons;
// partial failure never aborts the tick.
func (d *Dispatcher) Launch(ctx context.Context, count uint) scaling.DispatchOutcome {
	out := scaling.DispatchOutcome{Requested: count}
	if count == 0 {
		return out
	}
	res, err := d.work.Launch(ctx, count, d.spec)
	if err != nil {
		out.Failures = append(out.Failures, fmt.Sprintf("launch: %v", err))
		return out
	}
	out.Launched = uint(len(res.Launched))
	out.Failures = append(out.Failures, res.Failures...)
	d.logger.Info("dispatched work units",
		"requested", count, "launched", out.Launched, "failures", len(out.Failures))
	return out
}

// StopAll enumerates running work units and requests termination of each
// independently, so one failing stop does not block the others. Best effort.
func (d *Dispatcher) StopAll(ctx context.Context, reason string) scaling.DrainOutcome {
	var out scaling.DrainOutcome
	tasks, err := d.work.ListRunning(ctx)
	if err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("list running: %v", err))
		return out
	}
	for _, id := range tasks {
		if err := d.work.Stop(ctx, id, reason); err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("stop %s: %v", id, err))
			continue
		}
		out.Stopped++
	}
	if len(tasks) > 0 {
		d.logger.Info("stopped work units", "stopped", out.Stopped, "errors", len(out.Errors))
	}
	return out
}
