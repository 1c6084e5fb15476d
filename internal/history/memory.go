package history

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/skylink-io/skylink/pkg/models"
)

const (
	defaultListLimit = 50
	defaultTTL       = 24 * time.Hour
	evictInterval    = time.Minute
)

// MemoryStore is the default, bounded in-memory report store. Reports
// older than the TTL are evicted by a background loop.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string]*models.ExecutionReport
	order   []string // report ids, oldest first

	ttl    time.Duration
	doneCh chan struct{}
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryTTL overrides the retention window.
func WithMemoryTTL(ttl time.Duration) MemoryOption {
	return func(m *MemoryStore) { m.ttl = ttl }
}

// NewMemoryStore creates the store and starts its eviction loop.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		reports: make(map[string]*models.ExecutionReport),
		ttl:     defaultTTL,
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.evictLoop()
	return m
}

func (m *MemoryStore) Save(_ context.Context, report *models.ExecutionReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.reports[report.ID]; !exists {
		m.order = append(m.order, report.ID)
	}
	m.reports[report.ID] = report
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.ExecutionReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reports[id]
	if !ok {
		return nil, ErrReportNotFound
	}
	return r, nil
}

func (m *MemoryStore) List(_ context.Context, droneID models.DroneID, limit int) ([]models.ExecutionReport, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ExecutionReport, 0, limit)
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		r, ok := m.reports[m.order[i]]
		if !ok {
			continue
		}
		if droneID != "" && r.DroneID != droneID {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

// Close stops the eviction loop.
func (m *MemoryStore) Close() error {
	close(m.doneCh)
	return nil
}

func (m *MemoryStore) evictLoop() {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.doneCh:
			return
		case <-ticker.C:
			m.EvictExpired()
		}
	}
}

// EvictExpired drops reports older than the TTL. The background loop calls
// it every minute; it is exported so callers can force a sweep.
func (m *MemoryStore) EvictExpired() {
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.order[:0]
	evicted := 0
	for _, id := range m.order {
		r, ok := m.reports[id]
		if !ok {
			continue
		}
		if r.StartedAt.Before(cutoff) {
			delete(m.reports, id)
			evicted++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	if evicted > 0 {
		log.Debug().Int("evicted", evicted).Msg("expired reports evicted")
	}
}
