package agent_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skylink-io/skylink/internal/agent"
	"github.com/skylink-io/skylink/internal/drone"
	"github.com/skylink-io/skylink/pkg/models"
)

// fakeOp scripts the behavior of one mutating operation on the fake.
type fakeOp struct {
	err     error
	block   chan struct{}      // if non-nil, wait until closed
	waitCtx bool               // if true, wait for ctx expiry and return its error
	setMode models.FlightState // if set, force the physical mode afterwards
}

// fakeController is a scripted Controller. Mutating operations consume
// scripted steps in order; Status reads the current physical mode.
type fakeController struct {
	mu   sync.Mutex
	mode models.FlightState
	ops  []fakeOp
	idx  int

	started chan models.OpKind // if non-nil, receives each mutating op start

	inFlight  int32
	maxFlight int32
	closed    atomic.Bool
}

func newFakeController(ops ...fakeOp) *fakeController {
	return &fakeController{mode: models.StateGrounded, ops: ops}
}

func (f *fakeController) step(ctx context.Context, op models.OpKind) (models.Telemetry, error) {
	cur := atomic.AddInt32(&f.inFlight, 1)
	for {
		max := atomic.LoadInt32(&f.maxFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxFlight, max, cur) {
			break
		}
	}
	defer atomic.AddInt32(&f.inFlight, -1)

	if f.started != nil {
		f.started <- op
	}

	f.mu.Lock()
	var sc fakeOp
	if f.idx < len(f.ops) {
		sc = f.ops[f.idx]
		f.idx++
	}
	f.mu.Unlock()

	if sc.block != nil {
		<-sc.block
	}
	if sc.waitCtx {
		<-ctx.Done()
		return f.telemetry(), ctx.Err()
	}

	f.mu.Lock()
	if sc.setMode != "" {
		f.mode = sc.setMode
	} else if sc.err == nil {
		switch op {
		case models.OpTakeOff:
			f.mode = models.StateAirborne
		case models.OpLand:
			f.mode = models.StateGrounded
		}
	}
	f.mu.Unlock()

	if sc.err != nil {
		return f.telemetry(), sc.err
	}
	return f.telemetry(), nil
}

func (f *fakeController) telemetry() models.Telemetry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.Telemetry{DroneID: "fake", Mode: f.mode, Battery: 100, ReadAt: time.Now().UTC()}
}

func (f *fakeController) Takeoff(ctx context.Context, altitude float64) (models.Telemetry, error) {
	return f.step(ctx, models.OpTakeOff)
}

func (f *fakeController) MoveTo(ctx context.Context, target models.Position) (models.Telemetry, error) {
	return f.step(ctx, models.OpMoveTo)
}

func (f *fakeController) Land(ctx context.Context) (models.Telemetry, error) {
	return f.step(ctx, models.OpLand)
}

func (f *fakeController) Hover(ctx context.Context, seconds float64) (models.Telemetry, error) {
	return f.step(ctx, models.OpHover)
}

func (f *fakeController) Status(ctx context.Context) (models.Telemetry, error) {
	return f.telemetry(), nil
}

func (f *fakeController) Close() error {
	f.closed.Store(true)
	return nil
}

func testProfile() models.DroneProfile {
	return models.DroneProfile{Name: "test", MaxSpeed: 15, MaxAltitude: 120, BatteryCapacity: 100, DrainPerMinute: 2}
}

// newTestAgent builds a registry around a single fake controller and
// returns the initialized agent.
func newTestAgent(t *testing.T, ctrl *fakeController, policy agent.BusyPolicy, opTimeout time.Duration) *agent.Agent {
	t.Helper()
	reg := agent.NewRegistry(func(models.DroneID, models.DroneProfile) drone.Controller {
		return ctrl
	}, testProfile(), policy, opTimeout, nil)

	a, err := reg.Initialize(context.Background(), "alpha", models.DroneProfile{})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { reg.Shutdown(context.Background()) })
	return a
}

func flightPlan(intents ...models.Intent) *models.ExecutionPlan {
	return &models.ExecutionPlan{DroneID: "alpha", BaseState: models.StateGrounded, Intents: intents}
}

func standardIntents() []models.Intent {
	return []models.Intent{
		{Op: models.OpTakeOff, Params: models.IntentParams{Altitude: 10}},
		{Op: models.OpMoveTo, Params: models.IntentParams{X: 20, Y: 30, Z: 15}},
		{Op: models.OpLand},
	}
}

func TestExecuteCompletedHappyPath(t *testing.T) {
	ctrl := newFakeController(fakeOp{}, fakeOp{}, fakeOp{})
	a := newTestAgent(t, ctrl, agent.PolicyQueue, time.Second)

	report, err := a.Execute(context.Background(), "fly a lap", flightPlan(standardIntents()...))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if report.Status != models.ReportCompleted {
		t.Errorf("report.Status = %q, want %q", report.Status, models.ReportCompleted)
	}
	if len(report.Steps) != 3 {
		t.Fatalf("report has %d steps, want 3", len(report.Steps))
	}
	for i, step := range report.Steps {
		if step.Status != models.StepSuccess {
			t.Errorf("step %d status = %q, want %q", i, step.Status, models.StepSuccess)
		}
		if step.Telemetry == nil {
			t.Errorf("step %d has no telemetry", i)
		}
	}
	if report.FinalState != models.StateGrounded {
		t.Errorf("report.FinalState = %q, want %q", report.FinalState, models.StateGrounded)
	}
	if a.State() != models.StateGrounded {
		t.Errorf("agent state = %q, want %q", a.State(), models.StateGrounded)
	}
}

func TestExecuteStopsAtFirstFailure(t *testing.T) {
	hwErr := &drone.OpError{Op: models.OpMoveTo, Kind: models.FailHardwareFault, Err: errors.New("motor stall")}
	ctrl := newFakeController(fakeOp{}, fakeOp{err: hwErr})
	a := newTestAgent(t, ctrl, agent.PolicyQueue, time.Second)

	report, err := a.Execute(context.Background(), "fly a lap", flightPlan(standardIntents()...))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if report.Status != models.ReportPartiallyFailed {
		t.Errorf("report.Status = %q, want %q", report.Status, models.ReportPartiallyFailed)
	}
	if got := report.Steps[0].Status; got != models.StepSuccess {
		t.Errorf("step 0 status = %q, want %q", got, models.StepSuccess)
	}
	if got := report.Steps[1].Status; got != models.StepFailure {
		t.Errorf("step 1 status = %q, want %q", got, models.StepFailure)
	}
	if got := report.Steps[1].FailureKind; got != models.FailHardwareFault {
		t.Errorf("step 1 failure kind = %q, want %q", got, models.FailHardwareFault)
	}
	if got := report.Steps[2].Status; got != models.StepSkipped {
		t.Errorf("step 2 status = %q, want %q", got, models.StepSkipped)
	}
}

func TestExecuteResyncsStateAfterFailure(t *testing.T) {
	// The move fails and the drone autonomously lands: the physical mode
	// reads grounded, and the agent must adopt it rather than assume
	// airborne from the plan walk.
	hwErr := &drone.OpError{Op: models.OpMoveTo, Kind: models.FailHardwareFault, Err: errors.New("emergency descent")}
	ctrl := newFakeController(fakeOp{}, fakeOp{err: hwErr, setMode: models.StateGrounded})
	a := newTestAgent(t, ctrl, agent.PolicyQueue, time.Second)

	report, err := a.Execute(context.Background(), "fly a lap", flightPlan(standardIntents()...))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if report.FinalState != models.StateGrounded {
		t.Errorf("report.FinalState = %q, want resynced %q", report.FinalState, models.StateGrounded)
	}
	if a.State() != models.StateGrounded {
		t.Errorf("agent state = %q, want resynced %q", a.State(), models.StateGrounded)
	}
}

func TestExecuteOperationTimeout(t *testing.T) {
	ctrl := newFakeController(fakeOp{}, fakeOp{waitCtx: true})
	a := newTestAgent(t, ctrl, agent.PolicyQueue, 30*time.Millisecond)

	report, err := a.Execute(context.Background(), "fly a lap", flightPlan(standardIntents()...))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if report.Status != models.ReportPartiallyFailed {
		t.Errorf("report.Status = %q, want %q", report.Status, models.ReportPartiallyFailed)
	}
	if got := report.Steps[1].FailureKind; got != models.FailTimeout {
		t.Errorf("step 1 failure kind = %q, want %q", got, models.FailTimeout)
	}
	if got := report.Steps[2].Status; got != models.StepSkipped {
		t.Errorf("step 2 status = %q, want %q", got, models.StepSkipped)
	}
}

func TestCancelBetweenOperations(t *testing.T) {
	release := make(chan struct{})
	ctrl := newFakeController(fakeOp{block: release}, fakeOp{}, fakeOp{})
	ctrl.started = make(chan models.OpKind, 3)
	a := newTestAgent(t, ctrl, agent.PolicyQueue, time.Second)

	done := make(chan *models.ExecutionReport, 1)
	go func() {
		report, err := a.Execute(context.Background(), "fly a lap", flightPlan(standardIntents()...))
		if err != nil {
			t.Errorf("Execute() error = %v", err)
		}
		done <- report
	}()

	<-ctrl.started // takeoff is in flight
	if err := a.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	close(release) // let the takeoff finish successfully

	report := <-done
	if report.Status != models.ReportCancelled {
		t.Errorf("report.Status = %q, want %q", report.Status, models.ReportCancelled)
	}
	if got := report.Steps[0].Status; got != models.StepSuccess {
		t.Errorf("step 0 status = %q, want %q (completed before cancel)", got, models.StepSuccess)
	}
	for i := 1; i < len(report.Steps); i++ {
		if report.Steps[i].Status != models.StepSkipped {
			t.Errorf("step %d status = %q, want %q", i, report.Steps[i].Status, models.StepSkipped)
		}
	}
}

func TestCancelWithNothingInFlight(t *testing.T) {
	ctrl := newFakeController()
	a := newTestAgent(t, ctrl, agent.PolicyQueue, time.Second)

	if err := a.Cancel(); !errors.Is(err, agent.ErrNotExecuting) {
		t.Errorf("Cancel() error = %v, want ErrNotExecuting", err)
	}
}

func TestRejectPolicyReturnsBusy(t *testing.T) {
	release := make(chan struct{})
	ctrl := newFakeController(fakeOp{block: release})
	ctrl.started = make(chan models.OpKind, 1)
	a := newTestAgent(t, ctrl, agent.PolicyReject, time.Second)

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Execute(context.Background(), "first", flightPlan(models.Intent{Op: models.OpTakeOff, Params: models.IntentParams{Altitude: 10}}))
	}()

	<-ctrl.started
	_, err := a.Execute(context.Background(), "second", flightPlan(models.Intent{Op: models.OpQuery}))
	if !errors.Is(err, agent.ErrAgentBusy) {
		t.Errorf("Execute() while busy error = %v, want ErrAgentBusy", err)
	}

	close(release)
	<-done
}

func TestQueuePolicySerializesSameDrone(t *testing.T) {
	ctrl := newFakeController(
		fakeOp{}, fakeOp{}, fakeOp{},
		fakeOp{}, fakeOp{}, fakeOp{},
	)
	a := newTestAgent(t, ctrl, agent.PolicyQueue, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := a.Execute(context.Background(), "lap", flightPlan(standardIntents()...))
			if err != nil {
				t.Errorf("Execute() error = %v", err)
				return
			}
			if report.Status != models.ReportCompleted {
				t.Errorf("report.Status = %q, want %q", report.Status, models.ReportCompleted)
			}
		}()
	}
	wg.Wait()

	if max := atomic.LoadInt32(&ctrl.maxFlight); max > 1 {
		t.Errorf("observed %d concurrent operations on one drone, want at most 1", max)
	}
}

func TestDifferentDronesRunInParallel(t *testing.T) {
	releaseA := make(chan struct{})
	releaseB := make(chan struct{})
	ctrlA := newFakeController(fakeOp{block: releaseA})
	ctrlB := newFakeController(fakeOp{block: releaseB})
	ctrlA.started = make(chan models.OpKind, 1)
	ctrlB.started = make(chan models.OpKind, 1)

	ctrls := map[models.DroneID]*fakeController{"A": ctrlA, "B": ctrlB}
	reg := agent.NewRegistry(func(id models.DroneID, _ models.DroneProfile) drone.Controller {
		return ctrls[id]
	}, testProfile(), agent.PolicyQueue, time.Second, nil)
	t.Cleanup(func() { reg.Shutdown(context.Background()) })

	var agents [2]*agent.Agent
	for i, id := range []models.DroneID{"A", "B"} {
		a, err := reg.Initialize(context.Background(), id, models.DroneProfile{})
		if err != nil {
			t.Fatalf("Initialize(%s) error = %v", id, err)
		}
		agents[i] = a
	}

	var wg sync.WaitGroup
	for _, a := range agents {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Execute(context.Background(), "takeoff", flightPlan(models.Intent{Op: models.OpTakeOff, Params: models.IntentParams{Altitude: 10}}))
		}()
	}

	// Both drones must be mid-operation at the same time.
	<-ctrlA.started
	<-ctrlB.started
	close(releaseA)
	close(releaseB)
	wg.Wait()
}

func TestExecuteRechecksStateDefensively(t *testing.T) {
	// Plan says takeoff-then-takeoff is never validated, but a stale plan
	// can arrive after the state moved. The executor must refuse the
	// illegal op instead of dispatching it.
	ctrl := newFakeController(fakeOp{})
	a := newTestAgent(t, ctrl, agent.PolicyQueue, time.Second)

	// First command: take off.
	_, err := a.Execute(context.Background(), "up", flightPlan(models.Intent{Op: models.OpTakeOff, Params: models.IntentParams{Altitude: 10}}))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	// Stale plan validated against grounded.
	report, err := a.Execute(context.Background(), "up again", flightPlan(models.Intent{Op: models.OpTakeOff, Params: models.IntentParams{Altitude: 10}}))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if report.Status != models.ReportPartiallyFailed {
		t.Errorf("report.Status = %q, want %q", report.Status, models.ReportPartiallyFailed)
	}
	if got := report.Steps[0].Status; got != models.StepFailure {
		t.Errorf("step 0 status = %q, want %q", got, models.StepFailure)
	}
}
