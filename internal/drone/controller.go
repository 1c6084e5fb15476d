// Package drone defines the control interface to a physical or simulated
// drone and provides the built-in simulated backend.
//
// The Controller is the leaf of the system: every atomic operation is
// synchronous, may block waiting on the vehicle, honors context
// cancellation, and reports either success-with-telemetry or a typed
// OpError (timeout, hardware fault, unreachable).
package drone

import (
	"context"
	"fmt"

	"github.com/skylink-io/skylink/pkg/models"
)

// OpError is a typed failure from the control interface.
type OpError struct {
	Op   models.OpKind
	Kind models.FailureKind
	Err  error
}

func (e *OpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed (%s): %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s failed (%s)", e.Op, e.Kind)
}

func (e *OpError) Unwrap() error { return e.Err }

// Controller is the atomic capability set of one drone. Implementations
// must be safe for concurrent Status calls; mutating operations are
// serialized by the agent executor and are never invoked concurrently.
type Controller interface {
	// Takeoff climbs vertically to the given altitude.
	Takeoff(ctx context.Context, altitude float64) (models.Telemetry, error)
	// MoveTo flies to the target position.
	MoveTo(ctx context.Context, target models.Position) (models.Telemetry, error)
	// Land descends to the ground at the current horizontal position.
	Land(ctx context.Context) (models.Telemetry, error)
	// Hover holds position for the given duration.
	Hover(ctx context.Context, seconds float64) (models.Telemetry, error)
	// Status reads fresh telemetry without moving the drone.
	Status(ctx context.Context) (models.Telemetry, error)
	// Close releases the link to the vehicle.
	Close() error
}
