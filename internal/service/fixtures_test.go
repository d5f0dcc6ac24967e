package service

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"timesheet-service/internal/db/dbtest"
	"timesheet-service/internal/events/eventstest"
	"timesheet-service/internal/geo"
	"timesheet-service/internal/model"
	"timesheet-service/internal/repository"
)

// 2024-01-10 is a Wednesday.
var testNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

var (
	sfLat = 37.7749
	sfLon = -122.4194
)

type testEnv struct {
	db             *gorm.DB
	zoneRepo       *repository.GeofenceZoneRepository
	timesheetRepo  *repository.TimesheetRepository
	assignmentRepo *repository.AssignmentRepository
	zones          *ZoneStore
	geofence       *GeofenceService
	reconciler     *ReconcileService
	cleaner        *CleanupService
	generator      *GeneratorService
	publisher      *eventstest.Recorder
	invalidated    *invalidationLog
}

type invalidationLog struct {
	mu    sync.Mutex
	calls [][]uuid.UUID
}

func (l *invalidationLog) record(_ context.Context, ids []uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, ids)
	return nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database := dbtest.New(t)
	log := zerolog.Nop()

	env := &testEnv{
		db:             database,
		zoneRepo:       repository.NewGeofenceZoneRepository(database),
		timesheetRepo:  repository.NewTimesheetRepository(database),
		assignmentRepo: repository.NewAssignmentRepository(database),
		publisher:      &eventstest.Recorder{},
		invalidated:    &invalidationLog{},
	}
	env.zones = NewZoneStore(env.zoneRepo, time.Minute, log)
	env.geofence = NewGeofenceService(env.zones, env.timesheetRepo, log)

	env.reconciler = NewReconcileService(database, env.timesheetRepo, env.assignmentRepo, env.zones, env.publisher, time.UTC, log)
	env.reconciler.now = func() time.Time { return testNow }
	env.reconciler.SetTimesheetInvalidator(env.invalidated.record)

	env.cleaner = NewCleanupService(database, env.timesheetRepo, env.zoneRepo, env.zones, log)
	env.cleaner.now = func() time.Time { return testNow }

	env.generator = NewGeneratorService(database, env.timesheetRepo, env.assignmentRepo, "08:00", time.UTC, log)
	env.generator.now = func() time.Time { return testNow }

	return env
}

func ptr[T any](v T) *T {
	return &v
}

func calendarDay(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// northOf returns the point meters due north of (lat, lon).
func northOf(lat, lon, meters float64) geo.Point {
	return geo.Point{Lat: lat + meters/6371000.0*180/math.Pi, Lon: lon}
}

func (e *testEnv) seedCircleZone(t *testing.T, name string, lat, lon, radius float64, projectID *uuid.UUID) model.GeofenceZone {
	t.Helper()
	zone := model.GeofenceZone{
		Name:         name,
		ZoneType:     model.ZoneTypeProjectSite,
		Shape:        model.ZoneShapeCircle,
		CenterLat:    ptr(lat),
		CenterLon:    ptr(lon),
		RadiusMeters: ptr(radius),
		ProjectID:    projectID,
		IsActive:     true,
	}
	if err := e.db.Create(&zone).Error; err != nil {
		t.Fatalf("failed to seed zone: %v", err)
	}
	_ = e.zones.InvalidateZones(context.Background())
	return zone
}

func (e *testEnv) seedAssignment(t *testing.T, a model.EmployeeAssignment) model.EmployeeAssignment {
	t.Helper()
	if a.StartDate.IsZero() {
		a.StartDate = calendarDay(2024, 1, 1)
	}
	if err := e.db.Create(&a).Error; err != nil {
		t.Fatalf("failed to seed assignment: %v", err)
	}
	return a
}

// seedOffline inserts a pending offline entry created an hour before testNow
// unless the caller set CreatedAt.
func (e *testEnv) seedOffline(t *testing.T, ts model.Timesheet) model.Timesheet {
	t.Helper()
	ts.IsOfflineEntry = true
	return e.seedTimesheet(t, ts)
}

func (e *testEnv) seedTimesheet(t *testing.T, ts model.Timesheet) model.Timesheet {
	t.Helper()
	if ts.CreatedAt.IsZero() {
		ts.CreatedAt = testNow.Add(-time.Hour)
	}
	if ts.Date.IsZero() {
		ts.Date = calendarDay(2024, 1, 10)
	}
	if err := e.db.Create(&ts).Error; err != nil {
		t.Fatalf("failed to seed timesheet: %v", err)
	}
	return ts
}

func (e *testEnv) reload(t *testing.T, id uuid.UUID) *model.Timesheet {
	t.Helper()
	ts, err := e.timesheetRepo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to reload timesheet: %v", err)
	}
	if ts == nil {
		t.Fatalf("timesheet %s vanished", id)
	}
	return ts
}
