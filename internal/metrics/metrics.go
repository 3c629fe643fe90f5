// Package metrics exports reconciliation state to Prometheus.
package metrics

import (
	"errors"
	"fmt"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/backscale/backscale/pkg/scaling"
)

// Exporter turns tick results into Prometheus series.
type Exporter struct {
	ticksTotal       *prom.CounterVec
	launchedTotal    prom.Counter
	capacityErrors   prom.Counter
	dispatchFailures prom.Counter
	backlogVisible   prom.Gauge
	backlogInFlight  prom.Gauge
	fleetActive      prom.Gauge
	fleetMax         prom.Gauge
	workersRunning   prom.Gauge
}

// NewExporter creates and registers the collectors. An empty namespace
// defaults to "backscale".
func NewExporter(namespace string, reg prom.Registerer) (*Exporter, error) {
	if namespace == "" {
		namespace = "backscale"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}

	ticksTotal := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "ticks_total",
		Help:      "Reconciliation ticks by outcome status.",
	}, []string{"status"})
	launchedTotal := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "workers_launched_total",
		Help:      "Work units launched.",
	})
	capacityErrors := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "capacity_errors_total",
		Help:      "Per-unit capacity failures collected across ticks.",
	})
	dispatchFailures := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "dispatch_failures_total",
		Help:      "Work launch failures collected across ticks.",
	})
	backlogVisible := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "backlog_visible",
		Help:      "Visible messages at the last tick.",
	})
	backlogInFlight := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "backlog_in_flight",
		Help:      "In-flight messages at the last tick.",
	})
	fleetActive := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "fleet_active_units",
		Help:      "Active capacity units at the last tick.",
	})
	fleetMax := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "fleet_max_units",
		Help:      "Fleet capacity ceiling at the last tick.",
	})
	workersRunning := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "workers_running",
		Help:      "Running work units at the last tick.",
	})

	var err error
	if ticksTotal, err = registerCollector(reg, ticksTotal); err != nil {
		return nil, err
	}
	if launchedTotal, err = registerCollector(reg, launchedTotal); err != nil {
		return nil, err
	}
	if capacityErrors, err = registerCollector(reg, capacityErrors); err != nil {
		return nil, err
	}
	if dispatchFailures, err = registerCollector(reg, dispatchFailures); err != nil {
		return nil, err
	}
	if backlogVisible, err = registerCollector(reg, backlogVisible); err != nil {
		return nil, err
	}
	if backlogInFlight, err = registerCollector(reg, backlogInFlight); err != nil {
		return nil, err
	}
	if fleetActive, err = registerCollector(reg, fleetActive); err != nil {
		return nil, err
	}
	if fleetMax, err = registerCollector(reg, fleetMax); err != nil {
		return nil, err
	}
	if workersRunning, err = registerCollector(reg, workersRunning); err != nil {
		return nil, err
	}

	return &Exporter{
		ticksTotal:       ticksTotal,
		launchedTotal:    launchedTotal,
		capacityErrors:   capacityErrors,
		dispatchFailures: dispatchFailures,
		backlogVisible:   backlogVisible,
		backlogInFlight:  backlogInFlight,
		fleetActive:      fleetActive,
		fleetMax:         fleetMax,
		workersRunning:   workersRunning,
	}, nil
}

// Observe records one tick result.
func (e *Exporter) Observe(res scaling.TickResult) {
	if e == nil {
		return
	}
	e.ticksTotal.WithLabelValues(string(res.Status)).Inc()
	if res.Status == scaling.StatusStateUnavailable {
		// Snapshots are zero-valued on an aborted tick; leave gauges alone.
		return
	}
	e.backlogVisible.Set(float64(res.Backlog.Visible))
	e.backlogInFlight.Set(float64(res.Backlog.InFlight))
	e.fleetActive.Set(float64(res.Fleet.ActiveUnits))
	e.fleetMax.Set(float64(res.Fleet.MaxUnits))
	e.workersRunning.Set(float64(res.Work.Running))
	if res.Capacity != nil {
		e.capacityErrors.Add(float64(len(res.Capacity.Errors)))
	}
	if res.Dispatch != nil {
		e.launchedTotal.Add(float64(res.Dispatch.Launched))
		e.dispatchFailures.Add(float64(len(res.Dispatch.Failures)))
	}
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegistered prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegistered) {
		existing, ok := alreadyRegistered.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
