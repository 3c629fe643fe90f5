// Package backend defines the capability interfaces the reconciler consumes.
// Concrete backends (a managed queue service, a managed fleet, a container
// scheduler) sit behind these; the core never touches raw wire formats.
package backend

import (
	"context"

	"github.com/backscale/backscale/pkg/scaling"
)

// QueueDepth is the raw depth reading from the queue backend.
type QueueDepth struct {
	Visible  uint
	InFlight uint
}

// FleetDescription is the raw capacity reading from the fleet backend.
type FleetDescription struct {
	Active  uint
	Desired uint
	Max     uint
}

// StartResult reports which stopped units were reactivated. Partial success
// is expected: failed units land in Errors without aborting the rest.
type StartResult struct {
	Started []scaling.UnitID
	Errors  []string
}

// LaunchResult reports which work units were launched. Partial success is
// expected and itemized, never collapsed into a boolean.
type LaunchResult struct {
	Launched []scaling.TaskID
	Failures []string
}

// LaunchSpec names what to launch and where.
type LaunchSpec struct {
	Cluster        string
	TaskDefinition string
}

// QueueBackend reads backlog depth.
type QueueBackend interface {
	Depth(ctx context.Context) (QueueDepth, error)
}

// FleetBackend reads and mutates fleet capacity.
type FleetBackend interface {
	Describe(ctx context.Context) (FleetDescription, error)
	SetDesiredCapacity(ctx context.Context, n uint) error
	ListStoppedUnits(ctx context.Context) ([]scaling.UnitID, error)
	StartUnits(ctx context.Context, ids []scaling.UnitID) (StartResult, error)
	// DescribeWarmPool is optional enrichment; callers treat an error as an
	// empty warm pool.
	DescribeWarmPool(ctx context.Context) ([]scaling.UnitID, error)
}

// WorkBackend reads and mutates running work units on the scheduler.
type WorkBackend interface {
	CountRunning(ctx context.Context) (uint, error)
	Launch(ctx context.Context, count uint, spec LaunchSpec) (LaunchResult, error)
	ListRunning(ctx context.Context) ([]scaling.TaskID, error)
	Stop(ctx context.Context, id scaling.TaskID, reason string) error
	ListCapacityUnits(ctx context.Context) ([]scaling.UnitID, error)
}
