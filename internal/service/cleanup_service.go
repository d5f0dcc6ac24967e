package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"timesheet-service/internal/repository"
)

type CleanupTarget string

const (
	CleanupLocations  CleanupTarget = "locations"
	CleanupViolations CleanupTarget = "violations"
	CleanupLogs       CleanupTarget = "logs"
	CleanupOrphaned   CleanupTarget = "orphaned"
	CleanupAll        CleanupTarget = "all"
)

const (
	DefaultRetentionDays    = 90
	DefaultOrphanZoneMinAge = 30 * 24 * time.Hour
)

func ParseCleanupTarget(s string) (CleanupTarget, error) {
	switch t := CleanupTarget(strings.ToLower(strings.TrimSpace(s))); t {
	case CleanupLocations, CleanupViolations, CleanupLogs, CleanupOrphaned, CleanupAll:
		return t, nil
	case "":
		return CleanupAll, nil
	default:
		return "", fmt.Errorf("%w: unknown cleanup target %q", ErrInvalidInput, s)
	}
}

func (t CleanupTarget) includes(step CleanupTarget) bool {
	return t == CleanupAll || t == step
}

type CleanupOptions struct {
	RetentionDays    int
	Target           CleanupTarget
	DryRun           bool
	Force            bool
	OrphanZoneMinAge time.Duration
}

type CleanupReport struct {
	DryRun        bool             `json:"dry_run"`
	Target        CleanupTarget    `json:"target"`
	Cutoff        time.Time        `json:"cutoff"`
	Locations     int64            `json:"locations"`
	Violations    int64            `json:"violations"`
	Logs          int64            `json:"logs"`
	OrphanedZones int64            `json:"orphaned_zones"`
	OrphanedRefs  int64            `json:"orphaned_refs"`
	Total         int64            `json:"total"`
	PostCommit    []PostCommitHook `json:"-"`
}

// Orphaned is the sum of both orphan cleanups.
func (r *CleanupReport) Orphaned() int64 {
	return r.OrphanedZones + r.OrphanedRefs
}

// CleanupService prunes aged audit fields from timesheets and removes
// unreferenced zones. Rows themselves are never deleted.
type CleanupService struct {
	db            *gorm.DB
	timesheetRepo *repository.TimesheetRepository
	zoneRepo      *repository.GeofenceZoneRepository
	zones         *ZoneStore
	invalidate    TimesheetInvalidator
	now           Clock
	log           zerolog.Logger
}

func NewCleanupService(
	db *gorm.DB,
	timesheetRepo *repository.TimesheetRepository,
	zoneRepo *repository.GeofenceZoneRepository,
	zones *ZoneStore,
	log zerolog.Logger,
) *CleanupService {
	return &CleanupService{
		db:            db,
		timesheetRepo: timesheetRepo,
		zoneRepo:      zoneRepo,
		zones:         zones,
		now:           utcNow,
		log:           log,
	}
}

// SetTimesheetInvalidator registers the hook returned after committed runs.
// The hook receives a nil employee list, meaning every employee.
func (s *CleanupService) SetTimesheetInvalidator(fn TimesheetInvalidator) {
	s.invalidate = fn
}

// Cleanup runs the selected steps in one transaction. Dry runs count what
// would change and always roll back; a failing step rolls back every step.
func (s *CleanupService) Cleanup(ctx context.Context, opts CleanupOptions) (*CleanupReport, error) {
	if opts.RetentionDays < 1 {
		return nil, &ValidationError{Fields: map[string]string{"retention_days": "min"}}
	}
	if opts.Target == "" {
		opts.Target = CleanupAll
	}
	if _, err := ParseCleanupTarget(string(opts.Target)); err != nil {
		return nil, err
	}
	if !opts.DryRun && !opts.Force {
		return nil, ErrConfirmationRequired
	}
	if opts.OrphanZoneMinAge <= 0 {
		opts.OrphanZoneMinAge = DefaultOrphanZoneMinAge
	}

	now := s.now().UTC()
	report := &CleanupReport{
		DryRun: opts.DryRun,
		Target: opts.Target,
		Cutoff: now.AddDate(0, 0, -opts.RetentionDays),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		timesheets := s.timesheetRepo.WithTx(tx)
		zones := s.zoneRepo.WithTx(tx)
		var err error

		if opts.Target.includes(CleanupLocations) {
			if report.Locations, err = timesheets.ClearLocationHistory(ctx, report.Cutoff, opts.DryRun); err != nil {
				return fmt.Errorf("clear location history: %w", err)
			}
		}
		if opts.Target.includes(CleanupViolations) {
			if report.Violations, err = timesheets.ClearViolations(ctx, report.Cutoff, opts.DryRun); err != nil {
				return fmt.Errorf("clear violations: %w", err)
			}
		}
		if opts.Target.includes(CleanupLogs) {
			if report.Logs, err = timesheets.ClearGPSLogs(ctx, report.Cutoff, opts.DryRun); err != nil {
				return fmt.Errorf("clear gps logs: %w", err)
			}
		}
		if opts.Target.includes(CleanupOrphaned) {
			if report.OrphanedZones, err = zones.PurgeOrphans(ctx, now.Add(-opts.OrphanZoneMinAge), opts.DryRun); err != nil {
				return fmt.Errorf("purge orphaned zones: %w", err)
			}
			if report.OrphanedRefs, err = timesheets.ClearDanglingZoneRefs(ctx, opts.DryRun); err != nil {
				return fmt.Errorf("clear dangling zone references: %w", err)
			}
		}

		if opts.DryRun {
			return errDryRun
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDryRun) {
		s.log.Error().Err(err).Str("target", string(opts.Target)).Msg("geofence data cleanup rolled back")
		return nil, fmt.Errorf("cleanup rolled back: %w", err)
	}

	report.Total = report.Locations + report.Violations + report.Logs + report.Orphaned()

	if !opts.DryRun {
		if report.OrphanedZones > 0 {
			report.PostCommit = append(report.PostCommit, zoneHook(s.zones))
		}
		if s.invalidate != nil && report.Total-report.OrphanedZones > 0 {
			report.PostCommit = append(report.PostCommit, timesheetHook(s.invalidate, nil))
		}
	}

	s.log.Info().
		Str("target", string(opts.Target)).
		Int("retention_days", opts.RetentionDays).
		Int64("locations", report.Locations).
		Int64("violations", report.Violations).
		Int64("logs", report.Logs).
		Int64("orphaned_zones", report.OrphanedZones).
		Int64("orphaned_refs", report.OrphanedRefs).
		Int64("total", report.Total).
		Bool("dry_run", opts.DryRun).
		Msg("geofence data cleanup completed")

	return report, nil
}
