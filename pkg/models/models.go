// Package models defines the shared domain types for the Skylink control plane:
// drone identity and telemetry, flight states, intents, execution plans, and
// execution reports. All packages depend on these types; none of them carry
// behavior beyond small helpers, so the package stays dependency-free.
package models

import "time"

// DroneID is the opaque, stable identifier of a physical or simulated drone.
type DroneID string

// FlightState is the mode a drone's agent tracks for it.
type FlightState string

const (
	// StateGrounded is the initial state; the drone is on the ground.
	StateGrounded FlightState = "grounded"
	// StateAirborne means the drone is flying and accepts movement operations.
	StateAirborne FlightState = "airborne"
	// StateLanding is the transient state while a land operation runs.
	StateLanding FlightState = "landing"
)

// OpKind identifies an atomic drone operation.
type OpKind string

const (
	OpTakeOff OpKind = "takeoff"
	OpMoveTo  OpKind = "move_to"
	OpLand    OpKind = "land"
	OpHover   OpKind = "hover"
	OpQuery   OpKind = "query"
)

// KnownOp reports whether k names one of the five atomic operations.
func KnownOp(k OpKind) bool {
	switch k {
	case OpTakeOff, OpMoveTo, OpLand, OpHover, OpQuery:
		return true
	}
	return false
}

// Position is a point in the operating volume. Z is altitude in meters.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Envelope is the axis-aligned operating volume drones may fly in.
// The origin corner is (0,0,0); Max* are the far boundaries.
type Envelope struct {
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
	MaxZ float64 `json:"max_z"`
}

// Contains reports whether p lies inside the envelope.
func (e Envelope) Contains(p Position) bool {
	return p.X >= 0 && p.X <= e.MaxX &&
		p.Y >= 0 && p.Y <= e.MaxY &&
		p.Z >= 0 && p.Z <= e.MaxZ
}

// Obstacle is a named no-fly box inside the envelope (a building, a mast).
// Width/length are centered on the obstacle's position; height grows up
// from its base altitude.
type Obstacle struct {
	Name   string   `json:"name"`
	Center Position `json:"center"`
	Width  float64  `json:"width"`
	Length float64  `json:"length"`
	Height float64  `json:"height"`
}

// Blocks reports whether p is inside the obstacle's bounding box.
func (o Obstacle) Blocks(p Position) bool {
	return p.X >= o.Center.X-o.Width/2 && p.X <= o.Center.X+o.Width/2 &&
		p.Y >= o.Center.Y-o.Length/2 && p.Y <= o.Center.Y+o.Length/2 &&
		p.Z >= o.Center.Z && p.Z <= o.Center.Z+o.Height
}

// DroneProfile holds the static specification of a drone. Zero fields are
// filled from configured defaults when an agent is initialized.
type DroneProfile struct {
	Name            string  `json:"name,omitempty"`
	MaxSpeed        float64 `json:"max_speed,omitempty"`        // m/s
	MaxAltitude     float64 `json:"max_altitude,omitempty"`     // meters
	BatteryCapacity float64 `json:"battery_capacity,omitempty"` // units
	DrainPerMinute  float64 `json:"drain_per_minute,omitempty"` // units/min of flight
}

// Telemetry is a snapshot of a drone's physical status.
type Telemetry struct {
	DroneID    DroneID     `json:"drone_id"`
	Position   Position    `json:"position"`
	Battery    float64     `json:"battery"`
	BatteryPct float64     `json:"battery_pct"`
	Speed      float64     `json:"speed"`
	Heading    float64     `json:"heading"`
	Mode       FlightState `json:"mode"`
	ReadAt     time.Time   `json:"read_at"`
}

// IntentParams is the operation-specific parameter bag of an intent.
// Only the fields relevant to the operation kind are meaningful.
type IntentParams struct {
	Altitude     float64 `json:"altitude,omitempty"`      // takeoff
	X            float64 `json:"x,omitempty"`             // move_to
	Y            float64 `json:"y,omitempty"`             // move_to
	Z            float64 `json:"z,omitempty"`             // move_to
	DurationSecs float64 `json:"duration_secs,omitempty"` // hover
}

// Intent is a single structured operation request derived from natural
// language. Immutable once produced by the interpreter.
type Intent struct {
	Op     OpKind       `json:"op"`
	Params IntentParams `json:"params"`
}

// Target returns the move_to destination as a Position.
func (i Intent) Target() Position {
	return Position{X: i.Params.X, Y: i.Params.Y, Z: i.Params.Z}
}

// ExecutionPlan is a validated, ordered sequence of intents together with
// the flight-state snapshot it was validated against. Applying the intents
// in order from BaseState never violates a transition rule; the executor
// still re-checks defensively because real telemetry can diverge.
type ExecutionPlan struct {
	DroneID   DroneID     `json:"drone_id"`
	BaseState FlightState `json:"base_state"`
	Intents   []Intent    `json:"intents"`
}

// FailureKind classifies an operation failure from the control interface.
type FailureKind string

const (
	FailTimeout       FailureKind = "timeout"
	FailHardwareFault FailureKind = "hardware_fault"
	FailUnreachable   FailureKind = "unreachable"
)

// StepStatus is the outcome of a single executed intent.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepFailure StepStatus = "failure"
	StepSkipped StepStatus = "skipped"
)

// StepOutcome records what happened to one intent of a plan.
type StepOutcome struct {
	Intent      Intent      `json:"intent"`
	Status      StepStatus  `json:"status"`
	Telemetry   *Telemetry  `json:"telemetry,omitempty"`
	FailureKind FailureKind `json:"failure_kind,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	DurationMs  int64       `json:"duration_ms"`
}

// ReportStatus is the overall result of a command invocation.
type ReportStatus string

const (
	ReportCompleted       ReportStatus = "completed"
	ReportPartiallyFailed ReportStatus = "partially_failed"
	ReportRejected        ReportStatus = "rejected"
	ReportCancelled       ReportStatus = "cancelled"
)

// ExecutionReport is the immutable record of one command invocation:
// per-intent outcomes plus the overall status and the agent's final state.
type ExecutionReport struct {
	ID         string        `json:"id"`
	DroneID    DroneID       `json:"drone_id"`
	Command    string        `json:"command,omitempty"`
	Status     ReportStatus  `json:"status"`
	Steps      []StepOutcome `json:"steps,omitempty"`
	Error      string        `json:"error,omitempty"`
	FinalState FlightState   `json:"final_state,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	DurationMs int64         `json:"duration_ms"`
}

// AgentRecord is the registry's view of one drone agent.
type AgentRecord struct {
	DroneID     DroneID      `json:"drone_id"`
	Initialized bool         `json:"initialized"`
	State       FlightState  `json:"state"`
	Profile     DroneProfile `json:"profile"`
	CreatedAt   time.Time    `json:"created_at"`
}
