package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/backscale/backscale/internal/backend"
	"github.com/backscale/backscale/internal/drive"
	"github.com/backscale/backscale/internal/policy"
	"github.com/backscale/backscale/pkg/scaling"
)

// spyBackends implements all three backends with a shared call log so tests
// can assert ordering and absence of mutations across a whole tick.
type spyBackends struct {
	depth    backend.QueueDepth
	depthErr error
	desc     backend.FleetDescription
	stopped  []scaling.UnitID
	// started units register as scheduler capacity when registerOnStart is
	// set; otherwise capacity stays frozen (capacity-wait will time out).
	registerOnStart bool
	capacityUnits   []scaling.UnitID
	startFail       map[scaling.UnitID]string
	running         []scaling.TaskID
	launchFails     uint

	calls    []string
	launched uint
}

func (s *spyBackends) record(call string) { s.calls = append(s.calls, call) }

func (s *spyBackends) mutations() []string {
	var out []string
	for _, call := range s.calls {
		switch call {
		case "StartUnits", "SetDesiredCapacity", "Launch", "Stop":
			out = append(out, call)
		}
	}
	return out
}

func (s *spyBackends) Depth(ctx context.Context) (backend.QueueDepth, error) {
	s.record("Depth")
	return s.depth, s.depthErr
}

func (s *spyBackends) Describe(ctx context.Context) (backend.FleetDescription, error) {
	s.record("Describe")
	return s.desc, nil
}

func (s *spyBackends) SetDesiredCapacity(ctx context.Context, n uint) error {
	s.record("SetDesiredCapacity")
	return nil
}

func (s *spyBackends) ListStoppedUnits(ctx context.Context) ([]scaling.UnitID, error) {
	s.record("ListStoppedUnits")
	return s.stopped, nil
}

func (s *spyBackends) StartUnits(ctx context.Context, ids []scaling.UnitID) (backend.StartResult, error) {
	s.record("StartUnits")
	var res backend.StartResult
	for _, id := range ids {
		if reason, ok := s.startFail[id]; ok {
			res.Errors = append(res.Errors, reason)
			continue
		}
		res.Started = append(res.Started, id)
		if s.registerOnStart {
			s.capacityUnits = append(s.capacityUnits, id)
		}
	}
	return res, nil
}

func (s *spyBackends) DescribeWarmPool(ctx context.Context) ([]scaling.UnitID, error) {
	s.record("DescribeWarmPool")
	return nil, nil
}

func (s *spyBackends) CountRunning(ctx context.Context) (uint, error) {
	s.record("CountRunning")
	return uint(len(s.running)), nil
}

func (s *spyBackends) Launch(ctx context.Context, count uint, spec backend.LaunchSpec) (backend.LaunchResult, error) {
	s.record("Launch")
	var res backend.LaunchResult
	for i := uint(0); i < count; i++ {
		if i < s.launchFails {
			res.Failures = append(res.Failures, "RESOURCE:MEMORY")
			continue
		}
		s.launched++
		res.Launched = append(res.Launched, scaling.TaskID(fmt.Sprintf("task-%d", s.launched)))
	}
	return res, nil
}

func (s *spyBackends) ListRunning(ctx context.Context) ([]scaling.TaskID, error) {
	s.record("ListRunning")
	return s.running, nil
}

func (s *spyBackends) Stop(ctx context.Context, id scaling.TaskID, reason string) error {
	s.record("Stop")
	return nil
}

func (s *spyBackends) ListCapacityUnits(ctx context.Context) ([]scaling.UnitID, error) {
	s.record("ListCapacityUnits")
	return s.capacityUnits, nil
}

func newTestReconciler(s *spyBackends, pol policy.Policy) *Reconciler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reader := backend.NewStateReader(s, s, s, log)
	driver := drive.NewDriver(s, log)
	dispatcher := drive.NewDispatcher(s, backend.LaunchSpec{Cluster: "main", TaskDefinition: "worker:1"},
		20*time.Millisecond, 5*time.Millisecond, log)
	return New(reader, pol, driver, dispatcher, log)
}

func TestNoActionTickNeverMutates(t *testing.T) {
	// Idle pool: two consecutive ticks, zero mutation calls on either.
	s := &spyBackends{desc: backend.FleetDescription{Max: 10}}
	r := newTestReconciler(s, policy.NewPool(0))

	for i := 0; i < 2; i++ {
		res, err := r.RunTick(context.Background())
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if res.Status != scaling.StatusNoop {
			t.Fatalf("tick %d: expected noop, got %s", i, res.Status)
		}
		if res.Capacity != nil || res.Dispatch != nil || res.Drain != nil {
			t.Fatalf("tick %d: noop must carry no outcomes: %+v", i, res)
		}
	}
	if muts := s.mutations(); len(muts) != 0 {
		t.Fatalf("noop ticks mutated external state: %v", muts)
	}
}

func TestScaleUpOrdering(t *testing.T) {
	s := &spyBackends{
		depth:           backend.QueueDepth{Visible: 3},
		desc:            backend.FleetDescription{Max: 10},
		stopped:         []scaling.UnitID{"i-1", "i-2", "i-3"},
		registerOnStart: true,
	}
	r := newTestReconciler(s, policy.Ephemeral{})

	res, err := r.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Status != scaling.StatusScaled {
		t.Fatalf("expected scaled, got %s (%+v)", res.Status, res)
	}
	if res.Dispatch == nil || res.Dispatch.Launched != 3 {
		t.Fatalf("expected 3 launched, got %+v", res.Dispatch)
	}

	// Capacity must be ensured and confirmed before any launch.
	launchAt, waitAt, startAt := -1, -1, -1
	for i, call := range s.calls {
		switch call {
		case "Launch":
			if launchAt < 0 {
				launchAt = i
			}
		case "ListCapacityUnits":
			if waitAt < 0 {
				waitAt = i
			}
		case "StartUnits":
			if startAt < 0 {
				startAt = i
			}
		}
	}
	if startAt < 0 || waitAt < 0 || launchAt < 0 {
		t.Fatalf("missing expected calls: %v", s.calls)
	}
	if !(startAt < waitAt && waitAt < launchAt) {
		t.Fatalf("expected StartUnits < ListCapacityUnits < Launch, got %v", s.calls)
	}
}

func TestScaleUpDeltaAccountsForRunningWorkers(t *testing.T) {
	s := &spyBackends{
		depth:         backend.QueueDepth{Visible: 9},
		desc:          backend.FleetDescription{Active: 4, Max: 10},
		capacityUnits: []scaling.UnitID{"i-1", "i-2", "i-3", "i-4"},
		stopped:       []scaling.UnitID{"i-5", "i-6", "i-7", "i-8", "i-9"},

		registerOnStart: true,
		running:         []scaling.TaskID{"t-1", "t-2", "t-3", "t-4"},
	}
	r := newTestReconciler(s, policy.NewPool(2))

	res, err := r.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	// Pool policy: backlog 9 > 2x4 running, target (9,9); delta = 9-4.
	if res.Decision.TargetWorkers != 9 {
		t.Fatalf("expected target 9, got %d", res.Decision.TargetWorkers)
	}
	if res.Dispatch == nil || res.Dispatch.Requested != 5 {
		t.Fatalf("expected launch delta 5, got %+v", res.Dispatch)
	}
}

func TestCapacityWaitTimeoutDefers(t *testing.T) {
	// Desired raised, but no unit ever registers with the scheduler.
	s := &spyBackends{
		depth: backend.QueueDepth{Visible: 2},
		desc:  backend.FleetDescription{Max: 10},
	}
	r := newTestReconciler(s, policy.Ephemeral{})

	res, err := r.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Status != scaling.StatusDeferred || !res.Deferred {
		t.Fatalf("expected deferred result, got %+v", res)
	}
	if res.Dispatch == nil || res.Dispatch.Launched != 0 {
		t.Fatalf("deferred tick must launch nothing: %+v", res.Dispatch)
	}
	for _, call := range s.calls {
		if call == "Launch" {
			t.Fatalf("Launch called after capacity-wait timeout: %v", s.calls)
		}
	}
}

func TestPartialStartStillDispatchesConfirmedCapacity(t *testing.T) {
	// 3 requested, 1 start error: dispatch proceeds with the 2 confirmed.
	s := &spyBackends{
		depth:           backend.QueueDepth{Visible: 3},
		desc:            backend.FleetDescription{Max: 10},
		stopped:         []scaling.UnitID{"i-1", "i-2", "i-3"},
		startFail:       map[scaling.UnitID]string{"i-2": "insufficient capacity"},
		registerOnStart: true,
	}
	r := newTestReconciler(s, policy.Ephemeral{})

	res, err := r.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Status != scaling.StatusPartial {
		t.Fatalf("expected partial, got %s", res.Status)
	}
	if res.Capacity == nil || len(res.Capacity.Started) != 2 || len(res.Capacity.Errors) != 1 {
		t.Fatalf("expected 2 started / 1 error, got %+v", res.Capacity)
	}
	if res.Dispatch == nil || res.Dispatch.Requested != 2 || res.Dispatch.Launched != 2 {
		t.Fatalf("expected dispatch of 2 confirmed units, got %+v", res.Dispatch)
	}
}

func TestScaleDownDrains(t *testing.T) {
	s := &spyBackends{
		desc:    backend.FleetDescription{Active: 3, Max: 10},
		running: []scaling.TaskID{"t-1", "t-2", "t-3"},
	}
	r := newTestReconciler(s, policy.Ephemeral{})

	res, err := r.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Status != scaling.StatusDrained {
		t.Fatalf("expected drained, got %s", res.Status)
	}
	if res.Drain == nil || res.Drain.Stopped != 3 {
		t.Fatalf("expected 3 stopped, got %+v", res.Drain)
	}
	stops, desired := 0, 0
	for _, call := range s.calls {
		switch call {
		case "Stop":
			stops++
		case "SetDesiredCapacity":
			desired++
		}
	}
	if stops != 3 || desired != 1 {
		t.Fatalf("expected 3 stops and 1 desired-capacity call, got %v", s.calls)
	}
}

func TestStateUnavailableAborts(t *testing.T) {
	s := &spyBackends{depthErr: errors.New("throttled")}
	r := newTestReconciler(s, policy.Ephemeral{})

	res, err := r.RunTick(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	var unavailable *StateUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected StateUnavailableError, got %T", err)
	}
	if res.Status != scaling.StatusStateUnavailable {
		t.Fatalf("expected state_unavailable, got %s", res.Status)
	}
	if muts := s.mutations(); len(muts) != 0 {
		t.Fatalf("aborted tick mutated external state: %v", muts)
	}
}

func TestZeroUsableCapacitySkipsDispatch(t *testing.T) {
	// No stopped units start and the desired raise fails upstream: with
	// nothing usable, the tick reports without dispatching.
	s := &spyBackends{
		depth:     backend.QueueDepth{Visible: 2},
		desc:      backend.FleetDescription{Max: 10},
		stopped:   []scaling.UnitID{"i-1", "i-2"},
		startFail: map[scaling.UnitID]string{"i-1": "down", "i-2": "down"},
	}
	r := newTestReconciler(s, policy.Ephemeral{})

	res, err := r.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Status != scaling.StatusPartial {
		t.Fatalf("expected partial, got %s", res.Status)
	}
	if res.Dispatch == nil || res.Dispatch.Launched != 0 {
		t.Fatalf("expected no dispatch, got %+v", res.Dispatch)
	}
	for _, call := range s.calls {
		if call == "Launch" {
			t.Fatalf("Launch called with zero usable capacity: %v", s.calls)
		}
	}
}
