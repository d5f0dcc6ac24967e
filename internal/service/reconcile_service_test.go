package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"timesheet-service/internal/model"
)

func TestReconcileDuplicateOfSyncedTimesheet(t *testing.T) {
	env := newTestEnv(t)
	employee := uuid.New()

	synced := env.seedTimesheet(t, model.Timesheet{
		EmployeeID:  employee,
		HoursWorked: 8,
		SyncStatus:  model.SyncStatusSynced,
	})
	offline := env.seedOffline(t, model.Timesheet{EmployeeID: employee, HoursWorked: 8})

	report, err := env.reconciler.Reconcile(context.Background(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if report.Found != 1 || report.Processed != 0 || report.BusinessRuleErrors != 1 {
		t.Errorf("report = %+v", report)
	}

	got := env.reload(t, offline.ID)
	if got.SyncStatus != model.SyncStatusPending {
		t.Errorf("SyncStatus = %s, want pending", got.SyncStatus)
	}
	if got.SyncAttempts != 1 {
		t.Errorf("SyncAttempts = %d, want 1", got.SyncAttempts)
	}
	if got.SyncError == nil || !strings.Contains(*got.SyncError, "duplicate") || !strings.Contains(*got.SyncError, synced.ID.String()) {
		t.Errorf("SyncError = %v, want duplicate of %s", got.SyncError, synced.ID)
	}
	if len(report.Failures) != 1 || report.Failures[0].Stage != StageBusinessRule {
		t.Errorf("Failures = %+v", report.Failures)
	}
}

func TestReconcileStructuralErrors(t *testing.T) {
	tests := []struct {
		name   string
		record model.Timesheet
		reason string
	}{
		{"zero hours", model.Timesheet{HoursWorked: 0}, "hours_worked"},
		{"too many hours", model.Timesheet{HoursWorked: 25}, "hours_worked"},
		{"negative overtime", model.Timesheet{HoursWorked: 8, OvertimeHours: -1}, "overtime_hours"},
		{"far future date", model.Timesheet{HoursWorked: 8, Date: calendarDay(2024, 1, 12)}, "future"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tt.record.EmployeeID = uuid.New()
			rec := env.seedOffline(t, tt.record)

			report, err := env.reconciler.Reconcile(context.Background(), ReconcileOptions{})
			if err != nil {
				t.Fatalf("Reconcile() error = %v", err)
			}
			if report.StructuralErrors != 1 || report.Processed != 0 {
				t.Errorf("report = %+v", report)
			}

			got := env.reload(t, rec.ID)
			if got.SyncStatus != model.SyncStatusPending {
				t.Errorf("SyncStatus = %s, want pending", got.SyncStatus)
			}
			if got.SyncAttempts != 1 {
				t.Errorf("SyncAttempts = %d, want 1", got.SyncAttempts)
			}
			if got.SyncError == nil || !strings.HasPrefix(*got.SyncError, string(StageStructural)) || !strings.Contains(*got.SyncError, tt.reason) {
				t.Errorf("SyncError = %v, want structural %s", got.SyncError, tt.reason)
			}
		})
	}
}

func TestReconcileAcceptsTomorrow(t *testing.T) {
	env := newTestEnv(t)
	rec := env.seedOffline(t, model.Timesheet{EmployeeID: uuid.New(), HoursWorked: 8, Date: calendarDay(2024, 1, 11)})

	report, err := env.reconciler.Reconcile(context.Background(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if report.Processed != 1 {
		t.Errorf("report = %+v", report)
	}
	if got := env.reload(t, rec.ID); got.SyncStatus != model.SyncStatusSynced {
		t.Errorf("SyncStatus = %s, want synced", got.SyncStatus)
	}
}

func TestReconcileGeofenceViolation(t *testing.T) {
	env := newTestEnv(t)
	zone := env.seedCircleZone(t, "HQ", sfLat, sfLon, 100, nil)
	p := northOf(sfLat, sfLon, 500)
	rec := env.seedOffline(t, model.Timesheet{
		EmployeeID:  uuid.New(),
		HoursWorked: 8,
		Latitude:    ptr(p.Lat),
		Longitude:   ptr(p.Lon),
	})

	report, err := env.reconciler.Reconcile(context.Background(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if report.Processed != 1 || report.ViolationsDetected != 1 || report.EventsPublished != 1 {
		t.Errorf("report = %+v", report)
	}

	got := env.reload(t, rec.ID)
	if got.SyncStatus != model.SyncStatusSyncedWithViolations {
		t.Errorf("SyncStatus = %s, want synced_with_violations", got.SyncStatus)
	}
	if got.GeofenceStatus != model.GeofenceStatusViolation {
		t.Errorf("GeofenceStatus = %s, want violation", got.GeofenceStatus)
	}
	if got.SyncedAt == nil || got.SyncError != nil {
		t.Errorf("SyncedAt = %v, SyncError = %v", got.SyncedAt, got.SyncError)
	}
	if got.DistanceFromSite == nil || *got.DistanceFromSite < 399 || *got.DistanceFromSite > 401 {
		t.Errorf("DistanceFromSite = %v, want ~400", got.DistanceFromSite)
	}
	violations, err := got.Violations()
	if err != nil {
		t.Fatalf("Violations() error = %v", err)
	}
	if len(violations) != 1 || violations[0].ZoneID != zone.ID {
		t.Errorf("stored violations = %+v", violations)
	}

	published := env.publisher.Events()
	if len(published) != 1 {
		t.Fatalf("published %d events, want 1", len(published))
	}
	event := published[0]
	if event.TimesheetID != rec.ID || event.Severity != "medium" || len(event.Violations) != 1 {
		t.Errorf("event = %+v", event)
	}
	if !event.DetectedAt.Equal(testNow) {
		t.Errorf("DetectedAt = %v, want %v", event.DetectedAt, testNow)
	}
}

func TestReconcileCompliantLocation(t *testing.T) {
	env := newTestEnv(t)
	projectID := uuid.New()
	employee := uuid.New()
	zone := env.seedCircleZone(t, "Site", sfLat, sfLon, 200, &projectID)
	env.seedAssignment(t, model.EmployeeAssignment{
		EmployeeID: employee,
		Type:       model.AssignmentTypeProject,
		ProjectID:  &projectID,
		IsActive:   true,
	})
	rec := env.seedOffline(t, model.Timesheet{
		EmployeeID:  employee,
		ProjectID:   &projectID,
		HoursWorked: 8,
		Latitude:    ptr(sfLat),
		Longitude:   ptr(sfLon),
	})

	report, err := env.reconciler.Reconcile(context.Background(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if report.Processed != 1 || report.Errors() != 0 || report.SuccessRate != 100 {
		t.Errorf("report = %+v", report)
	}

	got := env.reload(t, rec.ID)
	if got.SyncStatus != model.SyncStatusSynced || got.GeofenceStatus != model.GeofenceStatusCompliant {
		t.Errorf("statuses = %s / %s", got.SyncStatus, got.GeofenceStatus)
	}
	if got.GeofenceZoneID == nil || *got.GeofenceZoneID != zone.ID {
		t.Errorf("GeofenceZoneID = %v, want %s", got.GeofenceZoneID, zone.ID)
	}
	if got.DistanceFromSite == nil || *got.DistanceFromSite != 0 {
		t.Errorf("DistanceFromSite = %v, want 0", got.DistanceFromSite)
	}
	if len(env.publisher.Events()) != 0 {
		t.Error("compliant record must not publish an event")
	}
}

func TestReconcileViolationStillPublishedOnBusinessFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seedCircleZone(t, "HQ", sfLat, sfLon, 100, nil)
	p := northOf(sfLat, sfLon, 500)
	rec := env.seedOffline(t, model.Timesheet{
		EmployeeID:    uuid.New(),
		HoursWorked:   4,
		OvertimeHours: 5,
		Latitude:      ptr(p.Lat),
		Longitude:     ptr(p.Lon),
	})

	report, err := env.reconciler.Reconcile(context.Background(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if report.BusinessRuleErrors != 1 || report.ViolationsDetected != 1 || report.EventsPublished != 1 {
		t.Errorf("report = %+v", report)
	}
	got := env.reload(t, rec.ID)
	if got.SyncStatus != model.SyncStatusPending {
		t.Errorf("SyncStatus = %s, want pending", got.SyncStatus)
	}
	if got.GeofenceStatus != model.GeofenceStatusViolation {
		t.Errorf("GeofenceStatus = %s, want violation kept for triage", got.GeofenceStatus)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.seedOffline(t, model.Timesheet{EmployeeID: uuid.New(), HoursWorked: 8})
	env.seedOffline(t, model.Timesheet{EmployeeID: uuid.New(), HoursWorked: 7.5, CreatedAt: testNow.Add(-2 * time.Hour)})

	first, err := env.reconciler.Reconcile(context.Background(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if first.Processed != 2 {
		t.Fatalf("first run processed %d, want 2", first.Processed)
	}

	second, err := env.reconciler.Reconcile(context.Background(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if second.Found != 0 || second.Processed != 0 || second.Errors() != 0 {
		t.Errorf("second run = %+v, want nothing to do", second)
	}
	if second.SuccessRate != 0 {
		t.Errorf("SuccessRate = %v, want 0 when nothing was attempted", second.SuccessRate)
	}
}

func TestReconcileDryRunMatchesRealRun(t *testing.T) {
	env := newTestEnv(t)
	env.seedCircleZone(t, "HQ", sfLat, sfLon, 100, nil)
	p := northOf(sfLat, sfLon, 500)
	employee := uuid.New()

	violating := env.seedOffline(t, model.Timesheet{
		EmployeeID:  uuid.New(),
		HoursWorked: 8,
		Latitude:    ptr(p.Lat),
		Longitude:   ptr(p.Lon),
		CreatedAt:   testNow.Add(-3 * time.Hour),
	})
	broken := env.seedOffline(t, model.Timesheet{EmployeeID: uuid.New(), HoursWorked: 30, CreatedAt: testNow.Add(-2 * time.Hour)})
	// Two non-conflicting copies of different days for the same employee.
	env.seedOffline(t, model.Timesheet{EmployeeID: employee, HoursWorked: 8, Date: calendarDay(2024, 1, 9), CreatedAt: testNow.Add(-90 * time.Minute)})
	env.seedOffline(t, model.Timesheet{EmployeeID: employee, HoursWorked: 8, CreatedAt: testNow.Add(-80 * time.Minute)})

	dry, err := env.reconciler.Reconcile(context.Background(), ReconcileOptions{DryRun: true})
	if err != nil {
		t.Fatalf("dry Reconcile() error = %v", err)
	}
	if !dry.DryRun || dry.EventsSuppressed != 1 || dry.EventsPublished != 0 {
		t.Errorf("dry report = %+v", dry)
	}
	if len(env.publisher.Events()) != 0 {
		t.Error("dry run published events")
	}
	if len(dry.PostCommit) != 0 {
		t.Error("dry run returned post-commit hooks")
	}
	for _, id := range []uuid.UUID{violating.ID, broken.ID} {
		got := env.reload(t, id)
		if got.SyncStatus != model.SyncStatusPending || got.SyncAttempts != 0 || got.SyncError != nil {
			t.Errorf("dry run changed %s: %+v", id, got)
		}
		if got.GeofenceStatus != model.GeofenceStatusUnknown {
			t.Errorf("dry run wrote geofence status %s", got.GeofenceStatus)
		}
	}

	applied, err := env.reconciler.Reconcile(context.Background(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if dry.Found != applied.Found ||
		dry.Processed != applied.Processed ||
		dry.StructuralErrors != applied.StructuralErrors ||
		dry.BusinessRuleErrors != applied.BusinessRuleErrors ||
		dry.ViolationsDetected != applied.ViolationsDetected ||
		dry.SuccessRate != applied.SuccessRate {
		t.Errorf("dry run %+v differs from real run %+v", dry, applied)
	}
	if applied.Processed != 3 || applied.StructuralErrors != 1 || applied.EventsPublished != 1 {
		t.Errorf("real report = %+v", applied)
	}
	if applied.SuccessRate != 75 {
		t.Errorf("SuccessRate = %v, want 75", applied.SuccessRate)
	}
}

func TestReconcileOvertimeRules(t *testing.T) {
	tests := []struct {
		name     string
		hours    float64
		overtime float64
		wantOK   bool
		reason   string
	}{
		{"no overtime", 6, 0, true, ""},
		{"overtime after full day", 10, 2, true, ""},
		{"overtime exceeds worked", 4, 5, false, "exceeds"},
		{"overtime before threshold", 9, 3, false, "threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.seedOffline(t, model.Timesheet{
				EmployeeID:    uuid.New(),
				HoursWorked:   tt.hours,
				OvertimeHours: tt.overtime,
			})

			report, err := env.reconciler.Reconcile(context.Background(), ReconcileOptions{})
			if err != nil {
				t.Fatalf("Reconcile() error = %v", err)
			}

			got := env.reload(t, rec.ID)
			if tt.wantOK {
				if report.Processed != 1 || got.SyncStatus != model.SyncStatusSynced {
					t.Errorf("report = %+v, status = %s", report, got.SyncStatus)
				}
				return
			}
			if report.BusinessRuleErrors != 1 || got.SyncStatus != model.SyncStatusPending {
				t.Errorf("report = %+v, status = %s", report, got.SyncStatus)
			}
			if got.SyncError == nil || !strings.Contains(*got.SyncError, tt.reason) {
				t.Errorf("SyncError = %v, want %q", got.SyncError, tt.reason)
			}
		})
	}
}

func TestReconcileRequiresProjectAssignment(t *testing.T) {
	env := newTestEnv(t)
	employee := uuid.New()
	projectID := uuid.New()
	otherProject := uuid.New()
	env.seedAssignment(t, model.EmployeeAssignment{
		EmployeeID: employee,
		Type:       model.AssignmentTypeProject,
		ProjectID:  &otherProject,
		IsActive:   true,
	})
	rec := env.seedOffline(t, model.Timesheet{EmployeeID: employee, ProjectID: &projectID, HoursWorked: 8})

	report, err := env.reconciler.Reconcile(context.Background(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if report.BusinessRuleErrors != 1 {
		t.Errorf("report = %+v", report)
	}
	got := env.reload(t, rec.ID)
	if got.SyncError == nil || !strings.Contains(*got.SyncError, "assignment") {
		t.Errorf("SyncError = %v, want assignment failure", got.SyncError)
	}
}

func TestReconcilePendingConflict(t *testing.T) {
	env := newTestEnv(t)
	employee := uuid.New()
	a := env.seedOffline(t, model.Timesheet{EmployeeID: employee, HoursWorked: 8, CreatedAt: testNow.Add(-2 * time.Hour)})
	b := env.seedOffline(t, model.Timesheet{EmployeeID: employee, HoursWorked: 6, CreatedAt: testNow.Add(-time.Hour)})
	// A generated draft on the same day is not an offline copy.
	env.seedTimesheet(t, model.Timesheet{EmployeeID: employee, StartTime: ptr("08:00")})

	report, err := env.reconciler.Reconcile(context.Background(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if report.BusinessRuleErrors != 2 || report.Processed != 0 {
		t.Errorf("report = %+v", report)
	}
	if len(report.PendingConflicts) != 1 {
		t.Fatalf("PendingConflicts = %+v, want one group", report.PendingConflicts)
	}
	conflict := report.PendingConflicts[0]
	if conflict.EmployeeID != employee || conflict.Date != "2024-01-10" || len(conflict.TimesheetIDs) != 2 {
		t.Errorf("conflict = %+v", conflict)
	}
	for _, id := range []uuid.UUID{a.ID, b.ID} {
		if got := env.reload(t, id); got.SyncStatus != model.SyncStatusPending {
			t.Errorf("%s SyncStatus = %s, want pending", id, got.SyncStatus)
		}
	}
}

func TestReconcileMaxAgeAndEmployeeFilter(t *testing.T) {
	env := newTestEnv(t)
	target := uuid.New()
	stale := env.seedOffline(t, model.Timesheet{EmployeeID: target, HoursWorked: 8, Date: calendarDay(2024, 1, 8), CreatedAt: testNow.Add(-25 * time.Hour)})
	fresh := env.seedOffline(t, model.Timesheet{EmployeeID: target, HoursWorked: 8})
	other := env.seedOffline(t, model.Timesheet{EmployeeID: uuid.New(), HoursWorked: 8})

	report, err := env.reconciler.Reconcile(context.Background(), ReconcileOptions{EmployeeID: &target})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if report.Found != 1 || report.Processed != 1 {
		t.Errorf("report = %+v", report)
	}
	if !report.CutoffTime.Equal(testNow.Add(-24 * time.Hour)) {
		t.Errorf("CutoffTime = %v", report.CutoffTime)
	}

	if got := env.reload(t, fresh.ID); got.SyncStatus != model.SyncStatusSynced {
		t.Errorf("fresh SyncStatus = %s", got.SyncStatus)
	}
	if got := env.reload(t, stale.ID); got.SyncStatus != model.SyncStatusPending || got.SyncAttempts != 0 {
		t.Errorf("stale record touched: %+v", got)
	}
	if got := env.reload(t, other.ID); got.SyncStatus != model.SyncStatusPending {
		t.Errorf("other employee touched: %+v", got)
	}

	wide, err := env.reconciler.Reconcile(context.Background(), ReconcileOptions{MaxAge: 48 * time.Hour})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if wide.Found != 2 || wide.Processed != 2 {
		t.Errorf("wide report = %+v", wide)
	}
}

func TestReconcileBatches(t *testing.T) {
	env := newTestEnv(t)
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		rec := env.seedOffline(t, model.Timesheet{
			EmployeeID:  uuid.New(),
			HoursWorked: 8,
			CreatedAt:   testNow.Add(-time.Duration(10-i) * time.Minute),
		})
		ids = append(ids, rec.ID)
	}

	report, err := env.reconciler.Reconcile(context.Background(), ReconcileOptions{BatchSize: 2})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if report.Found != 5 || report.Processed != 5 {
		t.Errorf("report = %+v", report)
	}
	for _, id := range ids {
		if got := env.reload(t, id); got.SyncStatus != model.SyncStatusSynced {
			t.Errorf("%s not synced", id)
		}
	}
}

func TestReconcilePublishFailureDoesNotFailRecord(t *testing.T) {
	env := newTestEnv(t)
	env.publisher.Err = errors.New("broker down")
	env.seedCircleZone(t, "HQ", sfLat, sfLon, 100, nil)
	p := northOf(sfLat, sfLon, 500)
	rec := env.seedOffline(t, model.Timesheet{
		EmployeeID:  uuid.New(),
		HoursWorked: 8,
		Latitude:    ptr(p.Lat),
		Longitude:   ptr(p.Lon),
	})

	report, err := env.reconciler.Reconcile(context.Background(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if report.Processed != 1 || report.EventFailures != 1 || report.EventsPublished != 0 {
		t.Errorf("report = %+v", report)
	}
	if got := env.reload(t, rec.ID); got.SyncStatus != model.SyncStatusSyncedWithViolations {
		t.Errorf("SyncStatus = %s", got.SyncStatus)
	}
}

func TestReconcilePostCommitInvalidatesEmployees(t *testing.T) {
	env := newTestEnv(t)
	employee := uuid.New()
	env.seedOffline(t, model.Timesheet{EmployeeID: employee, HoursWorked: 8, CreatedAt: testNow.Add(-2 * time.Hour)})
	env.seedOffline(t, model.Timesheet{EmployeeID: employee, HoursWorked: 8, Date: calendarDay(2024, 1, 9)})

	report, err := env.reconciler.Reconcile(context.Background(), ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(report.PostCommit) != 1 || report.PostCommit[0].Name != "timesheets" {
		t.Fatalf("PostCommit = %+v", report.PostCommit)
	}
	if len(env.invalidated.calls) != 0 {
		t.Fatal("invalidator ran before the caller asked")
	}

	if failed := RunPostCommit(context.Background(), report.PostCommit, env.reconciler.log); failed != 0 {
		t.Errorf("RunPostCommit() failed = %d", failed)
	}
	if len(env.invalidated.calls) != 1 {
		t.Fatalf("invalidator calls = %d, want 1", len(env.invalidated.calls))
	}
	if ids := env.invalidated.calls[0]; len(ids) != 1 || ids[0] != employee {
		t.Errorf("invalidated ids = %v, want [%s]", ids, employee)
	}
}

func TestReconcileStopsOnCancelledContext(t *testing.T) {
	env := newTestEnv(t)
	rec := env.seedOffline(t, model.Timesheet{EmployeeID: uuid.New(), HoursWorked: 8})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := env.reconciler.Reconcile(ctx, ReconcileOptions{})
	if err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
	if report == nil {
		t.Fatal("expected a partial report")
	}
	if got := env.reload(t, rec.ID); got.SyncStatus != model.SyncStatusPending {
		t.Errorf("SyncStatus = %s, want pending", got.SyncStatus)
	}
}
