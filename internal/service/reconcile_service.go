package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"timesheet-service/internal/events"
	"timesheet-service/internal/geo"
	"timesheet-service/internal/model"
	"timesheet-service/internal/repository"
)

const (
	DefaultReconcileBatchSize = 100
	DefaultReconcileMaxAge    = 24 * time.Hour
	DefaultOvertimeThreshold  = 8.0
)

// errDryRun rolls back a record transaction after a dry-run evaluation.
var errDryRun = errors.New("dry run")

type ReconcileOptions struct {
	MaxAge            time.Duration
	BatchSize         int
	EmployeeID        *uuid.UUID
	DryRun            bool
	OvertimeThreshold float64
}

func (o ReconcileOptions) withDefaults() ReconcileOptions {
	if o.MaxAge <= 0 {
		o.MaxAge = DefaultReconcileMaxAge
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultReconcileBatchSize
	}
	if o.OvertimeThreshold <= 0 {
		o.OvertimeThreshold = DefaultOvertimeThreshold
	}
	return o
}

// PendingConflict groups unsynced offline copies of one work tuple. They are
// left for an operator to resolve.
type PendingConflict struct {
	EmployeeID   uuid.UUID   `json:"employee_id"`
	Date         string      `json:"date"`
	ProjectID    *uuid.UUID  `json:"project_id,omitempty"`
	TimesheetIDs []uuid.UUID `json:"timesheet_ids"`
}

type ReconciliationReport struct {
	DryRun             bool              `json:"dry_run"`
	CutoffTime         time.Time         `json:"cutoff_time"`
	Found              int64             `json:"found"`
	Processed          int               `json:"processed"`
	StructuralErrors   int               `json:"structural_errors"`
	BusinessRuleErrors int               `json:"business_rule_errors"`
	PersistenceErrors  int               `json:"persistence_errors"`
	ViolationsDetected int               `json:"violations_detected"`
	EventsPublished    int               `json:"events_published"`
	EventsSuppressed   int               `json:"events_suppressed"`
	EventFailures      int               `json:"event_failures"`
	Skipped            int               `json:"skipped"`
	SuccessRate        float64           `json:"success_rate"`
	Failures           []RecordError     `json:"failures"`
	PendingConflicts   []PendingConflict `json:"pending_conflicts"`
	PostCommit         []PostCommitHook  `json:"-"`
}

// Errors is the total of every per-record failure class.
func (r *ReconciliationReport) Errors() int {
	return r.StructuralErrors + r.BusinessRuleErrors + r.PersistenceErrors
}

// ReconcileService promotes offline timesheets to synced after structural,
// geofence and business-rule checks.
type ReconcileService struct {
	db             *gorm.DB
	timesheetRepo  *repository.TimesheetRepository
	assignmentRepo *repository.AssignmentRepository
	zones          *ZoneStore
	publisher      events.Publisher
	invalidate     TimesheetInvalidator
	loc            *time.Location
	now            Clock
	log            zerolog.Logger
}

func NewReconcileService(
	db *gorm.DB,
	timesheetRepo *repository.TimesheetRepository,
	assignmentRepo *repository.AssignmentRepository,
	zones *ZoneStore,
	publisher events.Publisher,
	loc *time.Location,
	log zerolog.Logger,
) *ReconcileService {
	if loc == nil {
		loc = time.UTC
	}
	return &ReconcileService{
		db:             db,
		timesheetRepo:  timesheetRepo,
		assignmentRepo: assignmentRepo,
		zones:          zones,
		publisher:      publisher,
		loc:            loc,
		now:            utcNow,
		log:            log,
	}
}

// SetTimesheetInvalidator registers the hook returned after committed runs.
func (s *ReconcileService) SetTimesheetInvalidator(fn TimesheetInvalidator) {
	s.invalidate = fn
}

// Backlog reports the current offline queue.
func (s *ReconcileService) Backlog(ctx context.Context) (repository.BacklogStats, error) {
	return s.timesheetRepo.Backlog(ctx)
}

// reconcileRun is the state shared by the records of one invocation.
type reconcileRun struct {
	opts      ReconcileOptions
	now       time.Time
	today     time.Time
	report    *ReconciliationReport
	synced    []model.Timesheet
	conflicts map[string]int
	employees employeeSet
}

type recordOutcome struct {
	skipped  bool
	fail     *RecordError
	fields   map[string]interface{}
	geofence *ValidationResult
	event    *events.ViolationEvent
	record   model.Timesheet
}

// Reconcile walks pending offline timesheets oldest first, one keyset batch at
// a time, and settles each record in its own transaction. A returned error
// means the run stopped early; records settled before it stay settled.
func (s *ReconcileService) Reconcile(ctx context.Context, opts ReconcileOptions) (*ReconciliationReport, error) {
	opts = opts.withDefaults()
	now := s.now().UTC()

	run := &reconcileRun{
		opts:  opts,
		now:   now,
		today: model.CalendarDay(now, s.loc),
		report: &ReconciliationReport{
			DryRun:           opts.DryRun,
			CutoffTime:       now.Add(-opts.MaxAge),
			Failures:         []RecordError{},
			PendingConflicts: []PendingConflict{},
		},
		conflicts: make(map[string]int),
	}
	report := run.report

	found, err := s.timesheetRepo.CountPendingOffline(ctx, report.CutoffTime, opts.EmployeeID)
	if err != nil {
		return report, fmt.Errorf("count pending offline timesheets: %w", err)
	}
	report.Found = found

	s.log.Info().
		Int64("found", found).
		Time("cutoff", report.CutoffTime).
		Bool("dry_run", opts.DryRun).
		Msg("reconciling offline timesheets")

	var cursor *repository.Cursor
	for {
		batch, err := s.timesheetRepo.ListPendingOffline(ctx, repository.PendingOfflineFilter{
			CreatedFrom: report.CutoffTime,
			EmployeeID:  opts.EmployeeID,
			After:       cursor,
			Limit:       opts.BatchSize,
		})
		if err != nil {
			s.finish(run)
			return report, fmt.Errorf("list pending offline timesheets: %w", err)
		}

		for _, row := range batch {
			if err := ctx.Err(); err != nil {
				s.finish(run)
				return report, err
			}
			s.settle(ctx, run, s.processRecord(ctx, run, row))
		}

		if len(batch) < opts.BatchSize {
			break
		}
		last := batch[len(batch)-1]
		cursor = &repository.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	s.finish(run)

	s.log.Info().
		Int("processed", report.Processed).
		Int("errors", report.Errors()).
		Int("violations", report.ViolationsDetected).
		Float64("success_rate", report.SuccessRate).
		Bool("dry_run", opts.DryRun).
		Msg("offline timesheet reconciliation completed")

	return report, nil
}

func (s *ReconcileService) finish(run *reconcileRun) {
	report := run.report
	report.SuccessRate = percentage(int64(report.Processed), int64(report.Processed+report.Errors()))
	if !run.opts.DryRun && s.invalidate != nil && len(run.employees.ids) > 0 {
		report.PostCommit = append(report.PostCommit, timesheetHook(s.invalidate, run.employees.ids))
	}
}

// settle folds one record outcome into the report and publishes its event.
func (s *ReconcileService) settle(ctx context.Context, run *reconcileRun, out recordOutcome) {
	report := run.report
	if out.skipped {
		report.Skipped++
		return
	}

	if out.geofence != nil && !out.geofence.Compliant {
		report.ViolationsDetected++
	}

	if out.fail != nil {
		switch out.fail.Stage {
		case StageBusinessRule:
			report.BusinessRuleErrors++
		case StagePersistence:
			report.PersistenceErrors++
		default:
			report.StructuralErrors++
		}
		report.Failures = append(report.Failures, *out.fail)
		s.log.Warn().
			Err(out.fail.Err).
			Str("timesheet_id", out.fail.TimesheetID.String()).
			Str("stage", string(out.fail.Stage)).
			Str("reason", out.fail.Reason).
			Msg("offline timesheet not reconciled")
	} else {
		report.Processed++
		run.synced = append(run.synced, out.record)
	}

	if out.fail == nil || out.fail.Stage != StagePersistence {
		if !run.opts.DryRun {
			run.employees.add(out.record.EmployeeID)
		}
	}

	if out.event == nil {
		return
	}
	if run.opts.DryRun {
		report.EventsSuppressed++
		return
	}
	if err := s.publisher.PublishViolation(ctx, *out.event); err != nil {
		report.EventFailures++
		s.log.Warn().
			Err(err).
			Str("timesheet_id", out.event.TimesheetID.String()).
			Msg("violation event not published")
		return
	}
	report.EventsPublished++
}

func (s *ReconcileService) processRecord(ctx context.Context, run *reconcileRun, row model.Timesheet) recordOutcome {
	var zones []model.GeofenceZone
	if row.HasLocation() {
		loaded, err := s.zones.ActiveZones(ctx, row.ProjectID)
		if err != nil {
			return persistenceFailure(row, err)
		}
		zones = loaded
	}

	var out recordOutcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		timesheets := s.timesheetRepo.WithTx(tx)

		rec, err := timesheets.GetForUpdate(ctx, row.ID)
		if err != nil {
			return err
		}
		// Settled or edited since the batch was read; the next run picks it up.
		if rec == nil || rec.SyncStatus.IsSynced() ||
			!sameOptionalID(rec.ProjectID, row.ProjectID) || rec.HasLocation() != row.HasLocation() {
			out = recordOutcome{skipped: true}
			return nil
		}

		out, err = s.evaluate(ctx, tx, run, rec, zones)
		if err != nil {
			return err
		}
		if run.opts.DryRun {
			return errDryRun
		}
		return timesheets.UpdateFields(ctx, rec.ID, out.fields)
	})
	if err != nil && !errors.Is(err, errDryRun) {
		return persistenceFailure(row, err)
	}
	return out
}

func persistenceFailure(row model.Timesheet, err error) recordOutcome {
	return recordOutcome{
		record: row,
		fail: &RecordError{
			TimesheetID: row.ID,
			Stage:       StagePersistence,
			Reason:      err.Error(),
			Err:         err,
		},
	}
}

// evaluate runs the record pipeline and returns the fields to write. The
// returned error is reserved for store failures.
func (s *ReconcileService) evaluate(ctx context.Context, tx *gorm.DB, run *reconcileRun, rec *model.Timesheet, zones []model.GeofenceZone) (recordOutcome, error) {
	out := recordOutcome{
		record: *rec,
		fields: map[string]interface{}{"sync_attempts": rec.SyncAttempts + 1},
	}
	reject := func(stage Stage, reason string, err error) (recordOutcome, error) {
		out.fail = &RecordError{TimesheetID: rec.ID, Stage: stage, Reason: reason, Err: err}
		out.fields["sync_error"] = fmt.Sprintf("%s: %s", stage, reason)
		return out, nil
	}

	if reason := structuralProblem(rec, run.today); reason != "" {
		return reject(StageStructural, reason, nil)
	}

	if rec.HasLocation() {
		point := geo.Point{Lat: *rec.Latitude, Lon: *rec.Longitude}
		result, err := EvaluateZones(zones, point)
		if err != nil {
			return reject(StageGeofence, "invalid coordinate", err)
		}
		out.geofence = result
		if err := applyGeofence(out.fields, result); err != nil {
			return out, err
		}
		if !result.Compliant {
			out.event = &events.ViolationEvent{
				TimesheetID: rec.ID,
				EmployeeID:  rec.EmployeeID,
				ProjectID:   rec.ProjectID,
				Coordinate:  point,
				Violations:  result.Violations,
				Severity:    events.SeverityMedium,
				DetectedAt:  run.now,
			}
		}
	}

	reason, err := s.businessRuleProblem(ctx, tx, run, rec)
	if err != nil {
		return out, err
	}
	if reason != "" {
		return reject(StageBusinessRule, reason, nil)
	}

	status := model.SyncStatusSynced
	if out.geofence != nil && !out.geofence.Compliant {
		status = model.SyncStatusSyncedWithViolations
	}
	out.fields["sync_status"] = status
	out.fields["synced_at"] = run.now
	out.fields["sync_error"] = nil
	out.record.SyncStatus = status
	return out, nil
}

func structuralProblem(rec *model.Timesheet, today time.Time) string {
	switch {
	case rec.EmployeeID == uuid.Nil:
		return "employee_id is required"
	case rec.Date.IsZero():
		return "date is required"
	case rec.HoursWorked <= 0 || rec.HoursWorked > 24:
		return fmt.Sprintf("hours_worked %.2f outside (0, 24]", rec.HoursWorked)
	case rec.OvertimeHours < 0:
		return "overtime_hours must not be negative"
	case model.CalendarDay(rec.Date, time.UTC).After(today.AddDate(0, 0, 1)):
		return "date is more than one day in the future"
	}
	return ""
}

func applyGeofence(fields map[string]interface{}, result *ValidationResult) error {
	if result.Compliant {
		fields["geofence_status"] = model.GeofenceStatusCompliant
		fields["geofence_violations"] = nil
		if result.MatchedZoneID != nil {
			fields["geofence_zone_id"] = *result.MatchedZoneID
		}
	} else {
		encoded, err := model.EncodeViolations(result.Violations)
		if err != nil {
			return fmt.Errorf("encode violations: %w", err)
		}
		fields["geofence_status"] = model.GeofenceStatusViolation
		fields["geofence_violations"] = encoded
	}
	if result.DistanceFromNearestZone != nil {
		fields["distance_from_site"] = *result.DistanceFromNearestZone
	} else {
		fields["distance_from_site"] = nil
	}
	return nil
}

func (s *ReconcileService) businessRuleProblem(ctx context.Context, tx *gorm.DB, run *reconcileRun, rec *model.Timesheet) (string, error) {
	existing, err := s.timesheetRepo.WithTx(tx).ListByEmployeeAndDate(ctx, rec.EmployeeID, rec.Date)
	if err != nil {
		return "", fmt.Errorf("load timesheets for duplicate check: %w", err)
	}

	var siblings []uuid.UUID
	for _, other := range existing {
		if IsSyncedDuplicate(*rec, other) {
			return fmt.Sprintf("duplicate of synced timesheet %s", other.ID), nil
		}
		if IsPendingSibling(*rec, other) {
			siblings = append(siblings, other.ID)
		}
	}
	// Records a dry run would have synced earlier in this invocation.
	for _, other := range run.synced {
		if IsSyncedDuplicate(*rec, other) {
			return fmt.Sprintf("duplicate of synced timesheet %s", other.ID), nil
		}
	}
	// Unsynced copies of the same tuple all stay pending until an operator
	// picks the canonical one.
	if len(siblings) > 0 {
		run.notePendingConflict(rec, siblings)
		return fmt.Sprintf("conflicts with %d pending offline timesheet(s)", len(siblings)), nil
	}

	if rec.ProjectID != nil {
		assignments, err := s.assignmentRepo.WithTx(tx).ListActiveByEmployee(ctx, rec.EmployeeID)
		if err != nil {
			return "", fmt.Errorf("load assignments: %w", err)
		}
		assigned := false
		for _, a := range assignments {
			if AssignmentCoversProject(a, rec.EmployeeID, *rec.ProjectID, rec.Date) {
				assigned = true
				break
			}
		}
		if !assigned {
			return fmt.Sprintf("employee has no active assignment to project %s", rec.ProjectID), nil
		}
	}

	if rec.OvertimeHours > rec.HoursWorked {
		return fmt.Sprintf("overtime_hours %.2f exceeds hours_worked %.2f", rec.OvertimeHours, rec.HoursWorked), nil
	}
	if rec.OvertimeHours > 0 {
		regular := rec.HoursWorked - rec.OvertimeHours
		if regular < run.opts.OvertimeThreshold {
			return fmt.Sprintf("regular hours %.2f below daily threshold %.2f", regular, run.opts.OvertimeThreshold), nil
		}
	}
	return "", nil
}

func (run *reconcileRun) notePendingConflict(rec *model.Timesheet, siblings []uuid.UUID) {
	project := "none"
	if rec.ProjectID != nil {
		project = rec.ProjectID.String()
	}
	date := rec.Date.UTC().Format(time.DateOnly)
	key := rec.EmployeeID.String() + "|" + date + "|" + project

	if _, ok := run.conflicts[key]; ok {
		return
	}
	ids := append([]uuid.UUID{rec.ID}, siblings...)
	run.conflicts[key] = len(run.report.PendingConflicts)
	run.report.PendingConflicts = append(run.report.PendingConflicts, PendingConflict{
		EmployeeID:   rec.EmployeeID,
		Date:         date,
		ProjectID:    rec.ProjectID,
		TimesheetIDs: ids,
	})
}
