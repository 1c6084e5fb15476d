// Package flight implements the per-drone flight state machine.
//
// States: grounded (initial) → airborne (takeoff) → landing (land) → grounded.
// Query is legal from every state and never changes it. Every other
// (state, operation) pair is rejected with an InvalidTransitionError.
//
// The machine is not safe for concurrent use on its own; the agent executor
// owns it and serializes all access (one plan at a time per drone).
package flight

import (
	"fmt"

	"github.com/skylink-io/skylink/pkg/models"
)

// InvalidTransitionError reports an operation that is illegal from the
// machine's current state.
type InvalidTransitionError struct {
	From models.FlightState
	Op   models.OpKind
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("operation %s is not legal from state %s", e.Op, e.From)
}

// Machine tracks one drone's flight state.
type Machine struct {
	state models.FlightState
}

// NewMachine returns a machine in the grounded state.
func NewMachine() *Machine {
	return &Machine{state: models.StateGrounded}
}

// NewMachineAt returns a machine starting at the given state. Used by the
// validator to walk a simulated copy without touching the live machine.
func NewMachineAt(state models.FlightState) *Machine {
	return &Machine{state: state}
}

// State returns the current flight state.
func (m *Machine) State() models.FlightState {
	return m.state
}

// next returns the state an operation leads to, or false if illegal.
// Land transitions through landing and settles at grounded; the transient
// landing state is only observable mid-operation.
func (m *Machine) next(op models.OpKind) (models.FlightState, bool) {
	if op == models.OpQuery {
		return m.state, true
	}
	switch m.state {
	case models.StateGrounded:
		if op == models.OpTakeOff {
			return models.StateAirborne, true
		}
	case models.StateAirborne:
		switch op {
		case models.OpMoveTo, models.OpHover:
			return models.StateAirborne, true
		case models.OpLand:
			return models.StateGrounded, true
		}
	case models.StateLanding:
		// Landing is transient; no operation may be issued until it
		// settles back to grounded.
	}
	return m.state, false
}

// CanApply reports whether op is legal from the current state.
func (m *Machine) CanApply(op models.OpKind) bool {
	_, ok := m.next(op)
	return ok
}

// Apply advances the machine for a confirmed successful operation.
// It is the only mutator and must be called exactly once per confirmed
// physical operation.
func (m *Machine) Apply(op models.OpKind) (models.FlightState, error) {
	next, ok := m.next(op)
	if !ok {
		return m.state, &InvalidTransitionError{From: m.state, Op: op}
	}
	m.state = next
	return m.state, nil
}

// Resync overwrites the tracked state with one read from live telemetry.
// Called after a failed or cancelled operation, when the physical drone's
// state can no longer be assumed.
func (m *Machine) Resync(state models.FlightState) {
	m.state = state
}
