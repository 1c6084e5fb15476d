package drone

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/skylink-io/skylink/pkg/models"
)

// World is the shared operating volume simulated drones fly in: the
// envelope boundary plus named no-fly obstacles. Read-only after creation.
type World struct {
	Envelope  models.Envelope
	Obstacles []models.Obstacle
}

// Validate checks p against the envelope and every obstacle.
func (w *World) Validate(p models.Position) error {
	if !w.Envelope.Contains(p) {
		return fmt.Errorf("position (%.2f, %.2f, %.2f) is outside the operating envelope", p.X, p.Y, p.Z)
	}
	for _, o := range w.Obstacles {
		if o.Blocks(p) {
			return fmt.Errorf("position (%.2f, %.2f, %.2f) is inside no-fly zone %q", p.X, p.Y, p.Z, o.Name)
		}
	}
	return nil
}

// Battery drain multipliers per flight phase. Takeoff and landing cost
// more than level cruise.
const (
	drainFactorCruise  = 1.0
	drainFactorTakeoff = 1.2
	drainFactorLanding = 1.1
	drainFactorHover   = 0.8
)

// Sim is the built-in simulated drone backend. It models position, battery
// drain per operation, and speed-derived operation durations inside a World.
// The TimeScale compresses simulated travel time so tests and local runs
// don't wait out real flight durations.
//
// The mutex guards the kinematic state only around reads and writes, never
// across an operation's flight time, so Status stays responsive while an
// operation is mid-flight. Mutating operations themselves are serialized by
// the agent's execution slot, not here.
type Sim struct {
	id      models.DroneID
	profile models.DroneProfile
	world   *World

	// TimeScale divides real sleep durations; 0 means fully instant.
	timeScale float64

	mu       sync.Mutex
	position models.Position
	battery  float64
	speed    float64
	heading  float64
	mode     models.FlightState
}

// SimOption configures a Sim.
type SimOption func(*Sim)

// WithTimeScale sets how much simulated travel time is compressed.
// A scale of 100 makes a 10s flight take 100ms of wall time.
func WithTimeScale(scale float64) SimOption {
	return func(s *Sim) { s.timeScale = scale }
}

// WithStartPosition places the drone somewhere other than the origin.
func WithStartPosition(p models.Position) SimOption {
	return func(s *Sim) { s.position = p }
}

// NewSim creates a simulated drone on the ground with a full battery.
func NewSim(id models.DroneID, profile models.DroneProfile, world *World, opts ...SimOption) *Sim {
	s := &Sim{
		id:        id,
		profile:   profile,
		world:     world,
		timeScale: 1000,
		battery:   profile.BatteryCapacity,
		mode:      models.StateGrounded,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// sleep waits out a scaled operation duration, honoring cancellation.
func (s *Sim) sleep(ctx context.Context, d time.Duration) error {
	if s.timeScale <= 0 {
		return ctx.Err()
	}
	d = time.Duration(float64(d) / s.timeScale)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// drain consumes battery for d of flight at the given phase factor.
// Returns an error once the battery is exhausted. Callers must hold s.mu.
func (s *Sim) drain(d time.Duration, factor float64) error {
	used := d.Minutes() * s.profile.DrainPerMinute * factor
	s.battery = math.Max(0, s.battery-used)
	if s.battery <= 0 {
		return errors.New("battery exhausted")
	}
	return nil
}

func (s *Sim) opErr(op models.OpKind, ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &OpError{Op: op, Kind: models.FailTimeout, Err: err}
	}
	// Plain cancellation is not a drone fault; let the caller see it as is.
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &OpError{Op: op, Kind: models.FailHardwareFault, Err: err}
}

// Takeoff climbs vertically to altitude. Fails if the target violates the
// envelope, the profile's ceiling, or the battery runs out mid-climb.
func (s *Sim) Takeoff(ctx context.Context, altitude float64) (models.Telemetry, error) {
	s.mu.Lock()
	if altitude > s.profile.MaxAltitude {
		defer s.mu.Unlock()
		return s.telemetry(), &OpError{Op: models.OpTakeOff, Kind: models.FailHardwareFault,
			Err: fmt.Errorf("altitude %.2f exceeds ceiling %.2f", altitude, s.profile.MaxAltitude)}
	}
	target := models.Position{X: s.position.X, Y: s.position.Y, Z: altitude}
	if err := s.world.Validate(target); err != nil {
		defer s.mu.Unlock()
		return s.telemetry(), &OpError{Op: models.OpTakeOff, Kind: models.FailHardwareFault, Err: err}
	}
	s.mu.Unlock()

	climb := time.Duration(altitude / math.Max(s.profile.MaxSpeed, 0.01) * float64(time.Second))
	if err := s.sleep(ctx, climb); err != nil {
		return s.snapshot(), s.opErr(models.OpTakeOff, ctx, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.drain(climb, drainFactorTakeoff); err != nil {
		s.mode = models.StateGrounded
		return s.telemetry(), &OpError{Op: models.OpTakeOff, Kind: models.FailHardwareFault, Err: err}
	}

	s.position = target
	s.mode = models.StateAirborne
	log.Debug().Str("drone", string(s.id)).Float64("altitude", altitude).Msg("sim: takeoff complete")
	return s.telemetry(), nil
}

// MoveTo flies in a straight line to target at the profile's max speed.
func (s *Sim) MoveTo(ctx context.Context, target models.Position) (models.Telemetry, error) {
	s.mu.Lock()
	if err := s.world.Validate(target); err != nil {
		defer s.mu.Unlock()
		return s.telemetry(), &OpError{Op: models.OpMoveTo, Kind: models.FailHardwareFault, Err: err}
	}

	dist := distance(s.position, target)
	travel := time.Duration(dist / math.Max(s.profile.MaxSpeed, 0.01) * float64(time.Second))

	needed := travel.Minutes() * s.profile.DrainPerMinute * drainFactorCruise
	if s.battery < needed {
		defer s.mu.Unlock()
		return s.telemetry(), &OpError{Op: models.OpMoveTo, Kind: models.FailHardwareFault,
			Err: fmt.Errorf("insufficient battery: need %.2f, have %.2f", needed, s.battery)}
	}

	s.speed = s.profile.MaxSpeed
	s.heading = headingTo(s.position, target)
	s.mu.Unlock()

	if err := s.sleep(ctx, travel); err != nil {
		// Interrupted mid-flight: the drone holds at its last known fix.
		s.mu.Lock()
		defer s.mu.Unlock()
		s.speed = 0
		return s.telemetry(), s.opErr(models.OpMoveTo, ctx, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = 0
	if err := s.drain(travel, drainFactorCruise); err != nil {
		return s.telemetry(), &OpError{Op: models.OpMoveTo, Kind: models.FailHardwareFault, Err: err}
	}

	s.position = target
	return s.telemetry(), nil
}

// Land descends to the ground at the current horizontal position.
func (s *Sim) Land(ctx context.Context) (models.Telemetry, error) {
	s.mu.Lock()
	s.mode = models.StateLanding
	descent := time.Duration(s.position.Z / math.Max(s.profile.MaxSpeed, 0.01) * float64(time.Second))
	s.mu.Unlock()

	if err := s.sleep(ctx, descent); err != nil {
		// Aborted descent: the drone climbs back to a hold.
		s.mu.Lock()
		defer s.mu.Unlock()
		s.mode = models.StateAirborne
		return s.telemetry(), s.opErr(models.OpLand, ctx, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Landing completes even with a dead battery; ignore exhaustion here.
	_ = s.drain(descent, drainFactorLanding)

	s.position.Z = 0
	s.mode = models.StateGrounded
	log.Debug().Str("drone", string(s.id)).Msg("sim: landed")
	return s.telemetry(), nil
}

// Hover holds position for the given duration.
func (s *Sim) Hover(ctx context.Context, seconds float64) (models.Telemetry, error) {
	hold := time.Duration(seconds * float64(time.Second))
	if err := s.sleep(ctx, hold); err != nil {
		return s.snapshot(), s.opErr(models.OpHover, ctx, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.drain(hold, drainFactorHover); err != nil {
		return s.telemetry(), &OpError{Op: models.OpHover, Kind: models.FailHardwareFault, Err: err}
	}
	return s.telemetry(), nil
}

// Status reads fresh telemetry without moving the drone. It never waits
// out an in-flight operation.
func (s *Sim) Status(_ context.Context) (models.Telemetry, error) {
	return s.snapshot(), nil
}

// snapshot reads telemetry under the lock.
func (s *Sim) snapshot() models.Telemetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.telemetry()
}

// Close is a no-op for the simulated backend.
func (s *Sim) Close() error { return nil }

// telemetry builds a snapshot. Callers must hold s.mu.
func (s *Sim) telemetry() models.Telemetry {
	pct := 0.0
	if s.profile.BatteryCapacity > 0 {
		pct = s.battery / s.profile.BatteryCapacity * 100
	}
	return models.Telemetry{
		DroneID:    s.id,
		Position:   s.position,
		Battery:    s.battery,
		BatteryPct: pct,
		Speed:      s.speed,
		Heading:    s.heading,
		Mode:       s.mode,
		ReadAt:     time.Now().UTC(),
	}
}

func distance(a, b models.Position) float64 {
	dx, dy, dz := b.X-a.X, b.Y-a.Y, b.Z-a.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// headingTo returns the compass bearing from a to b in degrees.
func headingTo(a, b models.Position) float64 {
	deg := math.Atan2(b.X-a.X, b.Y-a.Y) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}

// Compile-time check that Sim implements Controller.
var _ Controller = (*Sim)(nil)
