// Package plan validates an interpreted intent sequence against flight-state
// rules and parameter bounds, producing an ExecutionPlan or rejecting the
// whole command at the first offending intent.
package plan

import (
	"fmt"

	"github.com/skylink-io/skylink/internal/flight"
	"github.com/skylink-io/skylink/pkg/models"
)

// ValidationKind distinguishes the two rejection classes.
type ValidationKind string

const (
	KindInvalidParameter  ValidationKind = "invalid_parameter"
	KindInvalidTransition ValidationKind = "invalid_transition"
)

// ValidationError rejects a command at the first offending intent. Index is
// the zero-based position of that intent in the submitted sequence.
type ValidationError struct {
	Index  int
	Kind   ValidationKind
	Op     models.OpKind
	From   models.FlightState
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case KindInvalidTransition:
		return fmt.Sprintf("intent %d (%s): not legal from state %s", e.Index, e.Op, e.From)
	default:
		return fmt.Sprintf("intent %d (%s): %s", e.Index, e.Op, e.Reason)
	}
}

// Validator checks intent sequences against a fixed operating envelope and
// the issuing drone's profile.
type Validator struct {
	envelope  models.Envelope
	obstacles []models.Obstacle
}

// NewValidator builds a validator for the given operating volume.
func NewValidator(envelope models.Envelope, obstacles []models.Obstacle) *Validator {
	return &Validator{envelope: envelope, obstacles: obstacles}
}

// Validate walks the sequence in order against a simulated copy of the
// flight state, checking parameters and transitions. All-or-nothing: any
// offending intent rejects the entire sequence, and the error reports the
// first one. On success the returned plan records the base state the walk
// started from.
func (v *Validator) Validate(droneID models.DroneID, base models.FlightState, profile models.DroneProfile, intents []models.Intent) (*models.ExecutionPlan, error) {
	if len(intents) == 0 {
		return nil, &ValidationError{Index: 0, Kind: KindInvalidParameter, Reason: "empty intent sequence"}
	}

	sim := flight.NewMachineAt(base)
	for i, in := range intents {
		if !models.KnownOp(in.Op) {
			return nil, &ValidationError{Index: i, Kind: KindInvalidParameter, Op: in.Op,
				Field: "op", Reason: fmt.Sprintf("unknown operation %q", in.Op)}
		}
		if err := v.checkParams(i, in, profile); err != nil {
			return nil, err
		}
		if _, err := sim.Apply(in.Op); err != nil {
			return nil, &ValidationError{Index: i, Kind: KindInvalidTransition, Op: in.Op, From: sim.State()}
		}
	}

	return &models.ExecutionPlan{DroneID: droneID, BaseState: base, Intents: intents}, nil
}

// checkParams validates the operation-specific parameters of one intent.
func (v *Validator) checkParams(i int, in models.Intent, profile models.DroneProfile) *ValidationError {
	switch in.Op {
	case models.OpTakeOff:
		alt := in.Params.Altitude
		if alt <= 0 {
			return &ValidationError{Index: i, Kind: KindInvalidParameter, Op: in.Op,
				Field: "altitude", Reason: fmt.Sprintf("altitude must be positive, got %.2f", alt)}
		}
		if profile.MaxAltitude > 0 && alt > profile.MaxAltitude {
			return &ValidationError{Index: i, Kind: KindInvalidParameter, Op: in.Op,
				Field: "altitude", Reason: fmt.Sprintf("altitude %.2f exceeds ceiling %.2f", alt, profile.MaxAltitude)}
		}
		if alt > v.envelope.MaxZ {
			return &ValidationError{Index: i, Kind: KindInvalidParameter, Op: in.Op,
				Field: "altitude", Reason: fmt.Sprintf("altitude %.2f exceeds envelope ceiling %.2f", alt, v.envelope.MaxZ)}
		}
	case models.OpMoveTo:
		target := in.Target()
		if !v.envelope.Contains(target) {
			return &ValidationError{Index: i, Kind: KindInvalidParameter, Op: in.Op,
				Field: "target", Reason: fmt.Sprintf("target (%.2f, %.2f, %.2f) is outside the operating envelope", target.X, target.Y, target.Z)}
		}
		if profile.MaxAltitude > 0 && target.Z > profile.MaxAltitude {
			return &ValidationError{Index: i, Kind: KindInvalidParameter, Op: in.Op,
				Field: "target", Reason: fmt.Sprintf("target altitude %.2f exceeds ceiling %.2f", target.Z, profile.MaxAltitude)}
		}
		for _, o := range v.obstacles {
			if o.Blocks(target) {
				return &ValidationError{Index: i, Kind: KindInvalidParameter, Op: in.Op,
					Field: "target", Reason: fmt.Sprintf("target is inside no-fly zone %q", o.Name)}
			}
		}
	case models.OpHover:
		if in.Params.DurationSecs < 0 {
			return &ValidationError{Index: i, Kind: KindInvalidParameter, Op: in.Op,
				Field: "duration_secs", Reason: fmt.Sprintf("duration must be non-negative, got %.2f", in.Params.DurationSecs)}
		}
	case models.OpLand, models.OpQuery:
		// No parameters.
	}
	return nil
}
