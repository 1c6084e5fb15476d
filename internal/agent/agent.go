// Package agent runs validated execution plans against one drone and keeps
// the process-wide registry of drone agents.
//
// Each Agent owns its drone's flight state machine and a capacity-1
// execution slot: commands for the same drone are strictly serialized,
// while agents for different drones run fully in parallel. What happens to
// a command that arrives while the slot is held is the busy policy: queue
// (wait behind the slot, context-aware) or reject (immediate ErrAgentBusy).
package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/skylink-io/skylink/internal/drone"
	"github.com/skylink-io/skylink/internal/flight"
	"github.com/skylink-io/skylink/internal/metrics"
	"github.com/skylink-io/skylink/pkg/models"
)

// BusyPolicy decides the fate of a command that finds the slot held.
type BusyPolicy string

const (
	PolicyQueue  BusyPolicy = "queue"
	PolicyReject BusyPolicy = "reject"
)

// resyncTimeout bounds the telemetry re-read after a failed or cancelled
// operation, independently of the per-operation timeout.
const resyncTimeout = 5 * time.Second

// Agent executes plans against a single drone, one at a time.
type Agent struct {
	id        models.DroneID
	ctrl      drone.Controller
	profile   models.DroneProfile
	policy    BusyPolicy
	opTimeout time.Duration
	metrics   *metrics.Metrics
	createdAt time.Time

	// slot is the capacity-1 execution token. Holding it grants exclusive
	// use of the controller's mutating operations.
	slot chan struct{}

	stateMu sync.RWMutex
	machine *flight.Machine

	cancelMu sync.Mutex
	cancel   context.CancelFunc // non-nil while a plan is executing
}

func newAgent(id models.DroneID, ctrl drone.Controller, profile models.DroneProfile, policy BusyPolicy, opTimeout time.Duration, m *metrics.Metrics) *Agent {
	return &Agent{
		id:        id,
		ctrl:      ctrl,
		profile:   profile,
		policy:    policy,
		opTimeout: opTimeout,
		metrics:   m,
		createdAt: time.Now().UTC(),
		slot:      make(chan struct{}, 1),
		machine:   flight.NewMachine(),
	}
}

// ID returns the drone this agent controls.
func (a *Agent) ID() models.DroneID { return a.id }

// Profile returns the drone's static specification.
func (a *Agent) Profile() models.DroneProfile { return a.profile }

// State returns the tracked flight state.
func (a *Agent) State() models.FlightState {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.machine.State()
}

// Record returns the registry's snapshot view of this agent.
func (a *Agent) Record() models.AgentRecord {
	return models.AgentRecord{
		DroneID:     a.id,
		Initialized: true,
		State:       a.State(),
		Profile:     a.profile,
		CreatedAt:   a.createdAt,
	}
}

// Telemetry reads a fresh snapshot from the drone without taking the slot.
func (a *Agent) Telemetry(ctx context.Context) (models.Telemetry, error) {
	return a.ctrl.Status(ctx)
}

// acquire takes the execution slot according to the busy policy.
func (a *Agent) acquire(ctx context.Context) error {
	switch a.policy {
	case PolicyReject:
		select {
		case a.slot <- struct{}{}:
			return nil
		default:
			return ErrAgentBusy
		}
	default:
		select {
		case a.slot <- struct{}{}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *Agent) release() { <-a.slot }

// drain takes the execution slot regardless of the busy policy, waiting
// for any in-flight command to finish. Used by the registry on shutdown,
// where reject semantics would let Close race a running operation.
// Reports whether the slot was taken before ctx expired.
func (a *Agent) drain(ctx context.Context) bool {
	select {
	case a.slot <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

// Cancel aborts the in-flight command, if any. The running plan stops at
// the next operation boundary (a mid-flight operation is interrupted
// through its context) and reports status cancelled.
func (a *Agent) Cancel() error {
	a.cancelMu.Lock()
	defer a.cancelMu.Unlock()
	if a.cancel == nil {
		return ErrNotExecuting
	}
	a.cancel()
	return nil
}

func (a *Agent) armCancel(cancel context.CancelFunc) {
	a.cancelMu.Lock()
	a.cancel = cancel
	a.cancelMu.Unlock()
}

func (a *Agent) disarmCancel() {
	a.cancelMu.Lock()
	a.cancel = nil
	a.cancelMu.Unlock()
}

// Execute runs a validated plan to completion, stopping at the first
// failure. The returned report is always non-nil unless the slot could not
// be acquired (ErrAgentBusy, or the caller's context expired while queued).
//
// Invariants:
//   - the state machine advances only on confirmed successful operations;
//   - after a failed or cancelled operation the state is resynchronized
//     from live telemetry, never assumed;
//   - intents after the stopping point are reported as skipped, untouched.
func (a *Agent) Execute(ctx context.Context, command string, pl *models.ExecutionPlan) (*models.ExecutionReport, error) {
	if err := a.acquire(ctx); err != nil {
		return nil, err
	}
	defer a.release()

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.armCancel(cancel)
	defer a.disarmCancel()

	started := time.Now()
	report := &models.ExecutionReport{
		ID:        uuid.New().String(),
		DroneID:   a.id,
		Command:   command,
		Status:    models.ReportCompleted,
		Steps:     make([]models.StepOutcome, 0, len(pl.Intents)),
		StartedAt: started.UTC(),
	}

	for i, in := range pl.Intents {
		// Cancellation takes effect between operations.
		if execCtx.Err() != nil {
			report.Status = models.ReportCancelled
			a.skipRemaining(report, pl.Intents[i:], "command cancelled")
			break
		}

		// Defensive re-check: the plan was validated against a snapshot,
		// and telemetry resync may have moved the state since.
		if !a.canApply(in.Op) {
			report.Status = models.ReportPartiallyFailed
			report.Steps = append(report.Steps, models.StepOutcome{
				Intent: in,
				Status: models.StepFailure,
				Reason: (&flight.InvalidTransitionError{From: a.State(), Op: in.Op}).Error(),
			})
			a.skipRemaining(report, pl.Intents[i+1:], "previous intent failed")
			break
		}

		outcome := a.runIntent(execCtx, in)
		report.Steps = append(report.Steps, outcome)

		if outcome.Status != models.StepSuccess {
			// An operation interrupted by cancellation is a cancelled
			// command, not a drone failure.
			if execCtx.Err() != nil {
				report.Status = models.ReportCancelled
			} else {
				report.Status = models.ReportPartiallyFailed
			}
			a.resync()
			a.skipRemaining(report, pl.Intents[i+1:], "previous intent failed")
			break
		}
	}

	report.FinalState = a.State()
	report.DurationMs = time.Since(started).Milliseconds()
	a.metrics.ObserveCommand(string(report.Status))
	log.Info().
		Str("drone", string(a.id)).
		Str("report", report.ID).
		Str("status", string(report.Status)).
		Int("steps", len(report.Steps)).
		Int64("duration_ms", report.DurationMs).
		Msg("command executed")
	return report, nil
}

// runIntent dispatches one intent under the per-operation timeout and
// advances the state machine on success.
func (a *Agent) runIntent(ctx context.Context, in models.Intent) models.StepOutcome {
	opCtx, cancel := context.WithTimeout(ctx, a.opTimeout)
	defer cancel()

	start := time.Now()
	tel, err := a.dispatch(opCtx, in)
	elapsed := time.Since(start)

	outcome := models.StepOutcome{Intent: in, DurationMs: elapsed.Milliseconds()}
	if err != nil {
		outcome.Status = models.StepFailure
		outcome.FailureKind, outcome.Reason = classify(err)
		a.metrics.ObserveOperation(string(in.Op), string(models.StepFailure), elapsed)
		return outcome
	}

	outcome.Status = models.StepSuccess
	outcome.Telemetry = &tel
	a.apply(in.Op)
	a.metrics.ObserveOperation(string(in.Op), string(models.StepSuccess), elapsed)
	return outcome
}

func (a *Agent) dispatch(ctx context.Context, in models.Intent) (models.Telemetry, error) {
	switch in.Op {
	case models.OpTakeOff:
		return a.ctrl.Takeoff(ctx, in.Params.Altitude)
	case models.OpMoveTo:
		return a.ctrl.MoveTo(ctx, in.Target())
	case models.OpLand:
		return a.ctrl.Land(ctx)
	case models.OpHover:
		return a.ctrl.Hover(ctx, in.Params.DurationSecs)
	case models.OpQuery:
		return a.ctrl.Status(ctx)
	default:
		return models.Telemetry{}, &drone.OpError{Op: in.Op, Kind: models.FailHardwareFault,
			Err: errors.New("unknown operation")}
	}
}

func (a *Agent) canApply(op models.OpKind) bool {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.machine.CanApply(op)
}

func (a *Agent) apply(op models.OpKind) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	if _, err := a.machine.Apply(op); err != nil {
		// canApply was checked before dispatch; divergence here means the
		// machine moved underneath us, which the slot should prevent.
		log.Warn().Err(err).Str("drone", string(a.id)).Msg("state apply rejected after successful operation")
	}
}

// resync re-reads telemetry and overwrites the tracked flight state. The
// physical drone's state cannot be assumed after a failure or cancellation.
func (a *Agent) resync() {
	ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
	defer cancel()

	tel, err := a.ctrl.Status(ctx)
	if err != nil {
		log.Error().Err(err).Str("drone", string(a.id)).Msg("telemetry resync failed; keeping tracked state")
		return
	}
	a.stateMu.Lock()
	a.machine.Resync(tel.Mode)
	a.stateMu.Unlock()
	log.Debug().Str("drone", string(a.id)).Str("state", string(tel.Mode)).Msg("flight state resynced from telemetry")
}

func (a *Agent) skipRemaining(report *models.ExecutionReport, rest []models.Intent, reason string) {
	for _, in := range rest {
		report.Steps = append(report.Steps, models.StepOutcome{
			Intent: in,
			Status: models.StepSkipped,
			Reason: reason,
		})
	}
}

// Close releases the drone link. The caller must ensure no command is in
// flight; the registry drains the slot before closing on shutdown.
func (a *Agent) Close() error {
	return a.ctrl.Close()
}

// classify maps a controller error to a failure kind and message.
func classify(err error) (models.FailureKind, string) {
	var opErr *drone.OpError
	if errors.As(err, &opErr) {
		return opErr.Kind, opErr.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.FailTimeout, "operation deadline exceeded"
	}
	// Interrupted by cancellation: not a drone fault, so no failure kind.
	if errors.Is(err, context.Canceled) {
		return "", "operation interrupted"
	}
	return models.FailHardwareFault, err.Error()
}
