package plan_test

import (
	"errors"
	"testing"

	"github.com/skylink-io/skylink/internal/plan"
	"github.com/skylink-io/skylink/pkg/models"
)

var testEnvelope = models.Envelope{MaxX: 500, MaxY: 500, MaxZ: 150}

var testProfile = models.DroneProfile{MaxSpeed: 15, MaxAltitude: 120, BatteryCapacity: 100, DrainPerMinute: 2}

func takeoff(alt float64) models.Intent {
	return models.Intent{Op: models.OpTakeOff, Params: models.IntentParams{Altitude: alt}}
}

func moveTo(x, y, z float64) models.Intent {
	return models.Intent{Op: models.OpMoveTo, Params: models.IntentParams{X: x, Y: y, Z: z}}
}

func land() models.Intent { return models.Intent{Op: models.OpLand} }

func TestValidateHappySequence(t *testing.T) {
	v := plan.NewValidator(testEnvelope, nil)

	intents := []models.Intent{takeoff(10), moveTo(20, 30, 15), land()}
	pl, err := v.Validate("alpha", models.StateGrounded, testProfile, intents)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if pl.DroneID != "alpha" {
		t.Errorf("plan.DroneID = %q, want %q", pl.DroneID, "alpha")
	}
	if pl.BaseState != models.StateGrounded {
		t.Errorf("plan.BaseState = %q, want %q", pl.BaseState, models.StateGrounded)
	}
	if len(pl.Intents) != 3 {
		t.Errorf("plan has %d intents, want 3", len(pl.Intents))
	}
}

func TestValidateAllOrNothing(t *testing.T) {
	v := plan.NewValidator(testEnvelope, nil)

	// Index 3 lands twice: illegal from grounded.
	intents := []models.Intent{
		takeoff(10),
		moveTo(20, 30, 15),
		land(),
		land(),
		takeoff(5),
	}
	pl, err := v.Validate("alpha", models.StateGrounded, testProfile, intents)
	if pl != nil {
		t.Fatal("Validate() returned a plan for an invalid sequence")
	}

	var verr *plan.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() error = %v, want ValidationError", err)
	}
	if verr.Index != 3 {
		t.Errorf("ValidationError.Index = %d, want 3", verr.Index)
	}
	if verr.Kind != plan.KindInvalidTransition {
		t.Errorf("ValidationError.Kind = %q, want %q", verr.Kind, plan.KindInvalidTransition)
	}
	if verr.From != models.StateGrounded {
		t.Errorf("ValidationError.From = %q, want %q", verr.From, models.StateGrounded)
	}
}

func TestValidateRejectsFirstOffender(t *testing.T) {
	v := plan.NewValidator(testEnvelope, nil)

	// Index 1 and 2 are both invalid; the error must report index 1.
	intents := []models.Intent{takeoff(10), moveTo(-5, 0, 10), land()}
	intents = append(intents, land())
	_, err := v.Validate("alpha", models.StateGrounded, testProfile, intents)

	var verr *plan.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() error = %v, want ValidationError", err)
	}
	if verr.Index != 1 {
		t.Errorf("ValidationError.Index = %d, want 1", verr.Index)
	}
	if verr.Kind != plan.KindInvalidParameter {
		t.Errorf("ValidationError.Kind = %q, want %q", verr.Kind, plan.KindInvalidParameter)
	}
}

func TestValidateParameterBounds(t *testing.T) {
	v := plan.NewValidator(testEnvelope, []models.Obstacle{
		{Name: "tower", Center: models.Position{X: 100, Y: 100, Z: 0}, Width: 40, Length: 40, Height: 90},
	})

	tests := []struct {
		name    string
		base    models.FlightState
		intents []models.Intent
		field   string
	}{
		{"zero altitude", models.StateGrounded, []models.Intent{takeoff(0)}, "altitude"},
		{"negative altitude", models.StateGrounded, []models.Intent{takeoff(-3)}, "altitude"},
		{"altitude above ceiling", models.StateGrounded, []models.Intent{takeoff(130)}, "altitude"},
		{"target outside envelope", models.StateAirborne, []models.Intent{moveTo(600, 10, 10)}, "target"},
		{"target in no-fly zone", models.StateAirborne, []models.Intent{moveTo(100, 100, 50)}, "target"},
		{"negative hover duration", models.StateAirborne, []models.Intent{{Op: models.OpHover, Params: models.IntentParams{DurationSecs: -1}}}, "duration_secs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate("alpha", tt.base, testProfile, tt.intents)
			var verr *plan.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if verr.Kind != plan.KindInvalidParameter {
				t.Errorf("Kind = %q, want %q", verr.Kind, plan.KindInvalidParameter)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestValidateZeroDurationHover(t *testing.T) {
	v := plan.NewValidator(testEnvelope, nil)

	intents := []models.Intent{takeoff(10), {Op: models.OpHover}, land()}
	pl, err := v.Validate("alpha", models.StateGrounded, testProfile, intents)
	if err != nil {
		t.Fatalf("Validate() error = %v, want zero-duration hover accepted", err)
	}
	if len(pl.Intents) != 3 {
		t.Errorf("plan has %d intents, want 3", len(pl.Intents))
	}
}

func TestValidateEmptySequence(t *testing.T) {
	v := plan.NewValidator(testEnvelope, nil)
	_, err := v.Validate("alpha", models.StateGrounded, testProfile, nil)
	var verr *plan.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() error = %v, want ValidationError", err)
	}
}

func TestValidateUnknownOperation(t *testing.T) {
	v := plan.NewValidator(testEnvelope, nil)
	_, err := v.Validate("alpha", models.StateGrounded, testProfile, []models.Intent{{Op: "barrel_roll"}})
	var verr *plan.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() error = %v, want ValidationError", err)
	}
	if verr.Kind != plan.KindInvalidParameter {
		t.Errorf("Kind = %q, want %q", verr.Kind, plan.KindInvalidParameter)
	}
}

func TestValidateQueryOnlySequence(t *testing.T) {
	v := plan.NewValidator(testEnvelope, nil)
	pl, err := v.Validate("alpha", models.StateGrounded, testProfile, []models.Intent{{Op: models.OpQuery}})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if len(pl.Intents) != 1 {
		t.Errorf("plan has %d intents, want 1", len(pl.Intents))
	}
}
