package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"timesheet-service/internal/model"
	"timesheet-service/internal/repository"
)

const (
	DefaultWorkdayStart = "08:00"
	SkipReasonWeekend   = "non-workday"
)

type GenerationReport struct {
	Date            string           `json:"date"`
	Skipped         bool             `json:"skipped"`
	SkipReason      string           `json:"skip_reason,omitempty"`
	Created         int              `json:"created"`
	SkippedExisting int              `json:"skipped_existing"`
	Failed          int              `json:"failed"`
	Total           int              `json:"total"`
	PostCommit      []PostCommitHook `json:"-"`
}

// GeneratorService creates the day's draft timesheets from active
// assignments.
type GeneratorService struct {
	db             *gorm.DB
	timesheetRepo  *repository.TimesheetRepository
	assignmentRepo *repository.AssignmentRepository
	startTime      string
	invalidate     TimesheetInvalidator
	loc            *time.Location
	now            Clock
	log            zerolog.Logger
}

func NewGeneratorService(
	db *gorm.DB,
	timesheetRepo *repository.TimesheetRepository,
	assignmentRepo *repository.AssignmentRepository,
	startTime string,
	loc *time.Location,
	log zerolog.Logger,
) *GeneratorService {
	if startTime == "" {
		startTime = DefaultWorkdayStart
	}
	if loc == nil {
		loc = time.UTC
	}
	return &GeneratorService{
		db:             db,
		timesheetRepo:  timesheetRepo,
		assignmentRepo: assignmentRepo,
		startTime:      startTime,
		loc:            loc,
		now:            utcNow,
		log:            log,
	}
}

func (s *GeneratorService) SetTimesheetInvalidator(fn TimesheetInvalidator) {
	s.invalidate = fn
}

func isWorkday(day time.Time) bool {
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// GenerateForToday inserts one draft per active assignment unless the
// employee already has an overlapping timesheet today. Safe to re-run.
func (s *GeneratorService) GenerateForToday(ctx context.Context) (*GenerationReport, error) {
	today := model.CalendarDay(s.now(), s.loc)
	report := &GenerationReport{Date: today.Format(time.DateOnly)}

	if !isWorkday(today) {
		report.Skipped = true
		report.SkipReason = SkipReasonWeekend
		s.log.Info().Str("date", report.Date).Msg("timesheet generation skipped on non-workday")
		return report, nil
	}

	assignments, err := s.assignmentRepo.ListActiveOn(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("load active assignments: %w", err)
	}

	var created employeeSet
	for _, assignment := range assignments {
		if !assignment.ActiveOn(today) {
			continue
		}
		report.Total++

		candidate := s.draftFor(assignment, today)
		inserted, err := s.insertUnlessCovered(ctx, &candidate)
		switch {
		case err != nil:
			report.Failed++
			s.log.Error().
				Err(err).
				Str("assignment_id", assignment.ID.String()).
				Str("employee_id", assignment.EmployeeID.String()).
				Msg("failed to create draft timesheet")
		case inserted:
			report.Created++
			created.add(assignment.EmployeeID)
		default:
			report.SkippedExisting++
		}
	}

	if s.invalidate != nil && len(created.ids) > 0 {
		report.PostCommit = append(report.PostCommit, timesheetHook(s.invalidate, created.ids))
	}

	s.log.Info().
		Str("date", report.Date).
		Int("created", report.Created).
		Int("skipped_existing", report.SkippedExisting).
		Int("failed", report.Failed).
		Int("total", report.Total).
		Msg("draft timesheets generated")

	return report, nil
}

func (s *GeneratorService) draftFor(assignment model.EmployeeAssignment, day time.Time) model.Timesheet {
	assignmentID := assignment.ID
	start := s.startTime
	draft := model.Timesheet{
		EmployeeID:     assignment.EmployeeID,
		AssignmentID:   &assignmentID,
		Date:           day,
		Status:         model.TimesheetStatusDraft,
		StartTime:      &start,
		GeofenceStatus: model.GeofenceStatusUnknown,
		SyncStatus:     model.SyncStatusPending,
	}
	switch assignment.Type {
	case model.AssignmentTypeProject:
		draft.ProjectID = copyID(assignment.ProjectID)
	case model.AssignmentTypeRental:
		draft.RentalID = copyID(assignment.RentalID)
	}
	return draft
}

func copyID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func (s *GeneratorService) insertUnlessCovered(ctx context.Context, candidate *model.Timesheet) (bool, error) {
	inserted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		timesheets := s.timesheetRepo.WithTx(tx)

		existing, err := timesheets.ListByEmployeeAndDate(ctx, candidate.EmployeeID, candidate.Date)
		if err != nil {
			return err
		}
		for _, other := range existing {
			if TimesheetsOverlap(other, *candidate) {
				return nil
			}
		}

		if err := timesheets.Create(ctx, candidate); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	return inserted, err
}
