package history_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"

	"github.com/skylink-io/skylink/internal/history"
	"github.com/skylink-io/skylink/pkg/models"
)

func newRedisStore(t *testing.T, opts ...history.RedisOption) *history.RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	s := history.NewRedisStoreFromClient(client, opts...)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRedisSaveAndGet(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()

	report := newReport("alpha", time.Now().UTC())
	report.Steps = []models.StepOutcome{
		{Intent: models.Intent{Op: models.OpTakeOff, Params: models.IntentParams{Altitude: 10}}, Status: models.StepSuccess},
	}
	if err := s.Save(ctx, report); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Get(ctx, report.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.DroneID != report.DroneID {
		t.Errorf("Get().DroneID = %q, want %q", got.DroneID, report.DroneID)
	}
	if len(got.Steps) != 1 || got.Steps[0].Intent.Op != models.OpTakeOff {
		t.Errorf("Get().Steps = %+v, want the saved takeoff step", got.Steps)
	}
}

func TestRedisGetMissing(t *testing.T) {
	s := newRedisStore(t)

	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, history.ErrReportNotFound) {
		t.Errorf("Get() error = %v, want ErrReportNotFound", err)
	}
}

func TestRedisListPerDrone(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	newest := newReport("alpha", base.Add(2*time.Second))
	middle := newReport("alpha", base.Add(time.Second))
	other := newReport("beta", base)
	for _, r := range []*models.ExecutionReport{middle, newest, other} {
		if err := s.Save(ctx, r); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	reports, err := s.List(ctx, "alpha", 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("List() returned %d reports, want 2", len(reports))
	}
	if reports[0].ID != newest.ID || reports[1].ID != middle.ID {
		t.Errorf("List() order = [%s %s], want newest first", reports[0].ID, reports[1].ID)
	}

	all, err := s.List(ctx, "", 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List(all) returned %d reports, want 3", len(all))
	}
}

func TestRedisListLimit(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		if err := s.Save(ctx, newReport("alpha", base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	reports, err := s.List(ctx, "alpha", 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(reports) != 2 {
		t.Errorf("List(limit=2) returned %d reports, want 2", len(reports))
	}
}

func TestRedisValueExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	s := history.NewRedisStoreFromClient(client, history.WithRedisTTL(time.Minute))
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	report := newReport("alpha", time.Now().UTC())
	if err := s.Save(ctx, report); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := s.Get(ctx, report.ID); !errors.Is(err, history.ErrReportNotFound) {
		t.Errorf("Get() after expiry error = %v, want ErrReportNotFound", err)
	}
}
