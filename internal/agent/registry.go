package agent

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/skylink-io/skylink/internal/drone"
	"github.com/skylink-io/skylink/internal/metrics"
	"github.com/skylink-io/skylink/pkg/models"
)

// ControllerFactory builds the control link for a newly initialized drone.
type ControllerFactory func(id models.DroneID, profile models.DroneProfile) drone.Controller

// Registry holds the process-wide set of drone agents: at most one agent
// per drone id, published atomically once fully constructed.
type Registry struct {
	factory        ControllerFactory
	defaultProfile models.DroneProfile
	policy         BusyPolicy
	opTimeout      time.Duration
	metrics        *metrics.Metrics

	mu     sync.RWMutex
	agents map[models.DroneID]*Agent
}

// NewRegistry creates an empty registry. factory is called once per
// successful Initialize to open the drone link.
func NewRegistry(factory ControllerFactory, defaultProfile models.DroneProfile, policy BusyPolicy, opTimeout time.Duration, m *metrics.Metrics) *Registry {
	return &Registry{
		factory:        factory,
		defaultProfile: defaultProfile,
		policy:         policy,
		opTimeout:      opTimeout,
		metrics:        m,
		agents:         make(map[models.DroneID]*Agent),
	}
}

// Initialize creates and publishes the agent for a drone. The agent is
// fully constructed before it becomes visible; a concurrent Initialize for
// the same drone loses with AlreadyExistsError and never observes a
// half-built record. Zero profile fields are filled from the defaults.
func (r *Registry) Initialize(_ context.Context, id models.DroneID, profile models.DroneProfile) (*Agent, error) {
	merged := r.mergeProfile(profile)
	ctrl := r.factory(id, merged)
	a := newAgent(id, ctrl, merged, r.policy, r.opTimeout, r.metrics)

	r.mu.Lock()
	if _, exists := r.agents[id]; exists {
		r.mu.Unlock()
		_ = ctrl.Close()
		return nil, &AlreadyExistsError{DroneID: id}
	}
	r.agents[id] = a
	r.mu.Unlock()

	r.metrics.AgentRegistered()
	log.Info().Str("drone", string(id)).Str("profile", merged.Name).Msg("agent initialized")
	return a, nil
}

// Get returns the agent for a drone, or NotFoundError.
func (r *Registry) Get(id models.DroneID) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return nil, &NotFoundError{DroneID: id}
	}
	return a, nil
}

// List returns a snapshot of every agent, ordered by drone id.
func (r *Registry) List() []models.AgentRecord {
	r.mu.RLock()
	agents := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	r.mu.RUnlock()

	records := make([]models.AgentRecord, 0, len(agents))
	for _, a := range agents {
		records = append(records, a.Record())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].DroneID < records[j].DroneID })
	return records
}

// Shutdown closes every agent's drone link in parallel, waiting for
// in-flight commands to drain first. The drain bypasses the busy policy:
// a reject-configured agent still waits for its running command instead
// of closing underneath it.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	agents := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	r.agents = make(map[models.DroneID]*Agent)
	r.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, a := range agents {
		g.Go(func() error {
			if a.drain(ctx) {
				defer a.release()
			}
			r.metrics.AgentDeregistered()
			return a.Close()
		})
	}
	return g.Wait()
}

func (r *Registry) mergeProfile(p models.DroneProfile) models.DroneProfile {
	out := r.defaultProfile
	if p.Name != "" {
		out.Name = p.Name
	}
	if p.MaxSpeed > 0 {
		out.MaxSpeed = p.MaxSpeed
	}
	if p.MaxAltitude > 0 {
		out.MaxAltitude = p.MaxAltitude
	}
	if p.BatteryCapacity > 0 {
		out.BatteryCapacity = p.BatteryCapacity
	}
	if p.DrainPerMinute > 0 {
		out.DrainPerMinute = p.DrainPerMinute
	}
	return out
}
