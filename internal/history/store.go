// Package history retains execution reports and serves the reports API.
// Two backends: a bounded in-memory store (default) and a Redis store for
// deployments where history must survive restarts.
package history

import (
	"context"
	"errors"

	"github.com/skylink-io/skylink/pkg/models"
)

// ErrReportNotFound is returned when a report id has no record (it may
// never have existed, or it may have been evicted).
var ErrReportNotFound = errors.New("report not found")

// Store persists execution reports. Reports are immutable once saved.
type Store interface {
	// Save retains a report.
	Save(ctx context.Context, report *models.ExecutionReport) error
	// Get returns a report by id.
	Get(ctx context.Context, id string) (*models.ExecutionReport, error)
	// List returns reports newest-first, optionally filtered by drone.
	// A zero limit applies the store's default page size.
	List(ctx context.Context, droneID models.DroneID, limit int) ([]models.ExecutionReport, error)
	// Close releases backend resources.
	Close() error
}
