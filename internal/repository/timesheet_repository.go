package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"timesheet-service/internal/model"
)

type TimesheetRepository struct {
	db *gorm.DB
}

func NewTimesheetRepository(db *gorm.DB) *TimesheetRepository {
	return &TimesheetRepository{db: db}
}

// WithTx binds the repository to an open transaction.
func (r *TimesheetRepository) WithTx(tx *gorm.DB) *TimesheetRepository {
	return &TimesheetRepository{db: tx}
}

func (r *TimesheetRepository) Create(ctx context.Context, timesheet *model.Timesheet) error {
	return r.db.WithContext(ctx).Create(timesheet).Error
}

func (r *TimesheetRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Timesheet, error) {
	var timesheet model.Timesheet
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&timesheet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &timesheet, nil
}

// GetForUpdate reads the row under a row lock. Call it inside a transaction.
func (r *TimesheetRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Timesheet, error) {
	var timesheet model.Timesheet
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&timesheet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &timesheet, nil
}

func (r *TimesheetRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.Timesheet{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// Cursor is the (created_at, id) position of the last row of a batch.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

type PendingOfflineFilter struct {
	CreatedFrom time.Time
	EmployeeID  *uuid.UUID
	After       *Cursor
	Limit       int
}

func (r *TimesheetRepository) pendingOfflineQuery(ctx context.Context, createdFrom time.Time, employeeID *uuid.UUID) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&model.Timesheet{}).
		Where("is_offline_entry = ?", true).
		Where("sync_status NOT IN ?", model.SyncedStatuses).
		Where("created_at >= ?", createdFrom)
	if employeeID != nil {
		query = query.Where("employee_id = ?", *employeeID)
	}
	return query
}

// ListPendingOffline returns one keyset page of unsynced offline entries,
// oldest first.
func (r *TimesheetRepository) ListPendingOffline(ctx context.Context, filter PendingOfflineFilter) ([]model.Timesheet, error) {
	query := r.pendingOfflineQuery(ctx, filter.CreatedFrom, filter.EmployeeID)
	if filter.After != nil {
		query = query.Where("(created_at > ? OR (created_at = ? AND id > ?))",
			filter.After.CreatedAt, filter.After.CreatedAt, filter.After.ID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var timesheets []model.Timesheet
	err := query.Order("created_at ASC").Order("id ASC").Find(&timesheets).Error
	return timesheets, err
}

func (r *TimesheetRepository) CountPendingOffline(ctx context.Context, createdFrom time.Time, employeeID *uuid.UUID) (int64, error) {
	var count int64
	err := r.pendingOfflineQuery(ctx, createdFrom, employeeID).Count(&count).Error
	return count, err
}

// ListByEmployeeAndDate returns every row for the employee on the calendar
// day, optionally narrowed to the given sync statuses.
func (r *TimesheetRepository) ListByEmployeeAndDate(ctx context.Context, employeeID uuid.UUID, date time.Time, statuses ...model.SyncStatus) ([]model.Timesheet, error) {
	query := r.db.WithContext(ctx).
		Where("employee_id = ? AND date = ?", employeeID, date)
	if len(statuses) > 0 {
		query = query.Where("sync_status IN ?", statuses)
	}

	var timesheets []model.Timesheet
	err := query.Order("created_at ASC").Find(&timesheets).Error
	return timesheets, err
}

type BacklogStats struct {
	TotalOffline   int64 `json:"total_offline"`
	PendingSync    int64 `json:"pending_sync"`
	WithViolations int64 `json:"with_violations"`
}

func (r *TimesheetRepository) Backlog(ctx context.Context) (BacklogStats, error) {
	var stats BacklogStats
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&model.Timesheet{}).Where("is_offline_entry = ?", true)
	}
	if err := base().Count(&stats.TotalOffline).Error; err != nil {
		return stats, err
	}
	if err := base().Where("sync_status NOT IN ?", model.SyncedStatuses).Count(&stats.PendingSync).Error; err != nil {
		return stats, err
	}
	if err := base().Where("sync_status = ?", model.SyncStatusSyncedWithViolations).Count(&stats.WithViolations).Error; err != nil {
		return stats, err
	}
	return stats, nil
}

type ComplianceFilter struct {
	EmployeeID *uuid.UUID
	ProjectID  *uuid.UUID
	DateFrom   *time.Time
	DateTo     *time.Time
}

type statusCount struct {
	GeofenceStatus model.GeofenceStatus
	Total          int64
}

// CountByGeofenceStatus groups located timesheets by geofence status.
func (r *TimesheetRepository) CountByGeofenceStatus(ctx context.Context, filter ComplianceFilter) (map[model.GeofenceStatus]int64, error) {
	query := r.db.WithContext(ctx).Model(&model.Timesheet{}).
		Select("geofence_status, COUNT(*) AS total").
		Where("latitude IS NOT NULL AND longitude IS NOT NULL")

	if filter.EmployeeID != nil {
		query = query.Where("employee_id = ?", *filter.EmployeeID)
	}
	if filter.ProjectID != nil {
		query = query.Where("project_id = ?", *filter.ProjectID)
	}
	if filter.DateFrom != nil {
		query = query.Where("date >= ?", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		query = query.Where("date <= ?", *filter.DateTo)
	}

	var rows []statusCount
	if err := query.Group("geofence_status").Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[model.GeofenceStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.GeofenceStatus] = row.Total
	}
	return counts, nil
}

// The retention helpers below count matching rows when dryRun is set and
// otherwise apply the update, returning the affected row count.

func (r *TimesheetRepository) ClearLocationHistory(ctx context.Context, createdBefore time.Time, dryRun bool) (int64, error) {
	query := r.db.WithContext(ctx).Model(&model.Timesheet{}).
		Where("created_at < ? AND location_history IS NOT NULL", createdBefore)
	return countOrUpdate(query, dryRun, map[string]interface{}{"location_history": nil})
}

func (r *TimesheetRepository) ClearViolations(ctx context.Context, createdBefore time.Time, dryRun bool) (int64, error) {
	query := r.db.WithContext(ctx).Model(&model.Timesheet{}).
		Where("created_at < ?", createdBefore).
		Where("(geofence_status = ? OR geofence_violations IS NOT NULL)", model.GeofenceStatusViolation)
	return countOrUpdate(query, dryRun, map[string]interface{}{
		"geofence_violations": nil,
		"geofence_status":     model.GeofenceStatusUnknown,
	})
}

func (r *TimesheetRepository) ClearGPSLogs(ctx context.Context, createdBefore time.Time, dryRun bool) (int64, error) {
	query := r.db.WithContext(ctx).Model(&model.Timesheet{}).
		Where("created_at < ? AND gps_logs IS NOT NULL", createdBefore)
	return countOrUpdate(query, dryRun, map[string]interface{}{"gps_logs": nil})
}

// ClearDanglingZoneRefs nulls geofence_zone_id where the zone row is gone,
// soft-deleted zones included as existing.
func (r *TimesheetRepository) ClearDanglingZoneRefs(ctx context.Context, dryRun bool) (int64, error) {
	query := r.db.WithContext(ctx).Model(&model.Timesheet{}).
		Where("geofence_zone_id IS NOT NULL").
		Where("NOT EXISTS (SELECT 1 FROM geofence_zones z WHERE z.id = timesheets.geofence_zone_id)")
	return countOrUpdate(query, dryRun, map[string]interface{}{"geofence_zone_id": nil})
}

func countOrUpdate(query *gorm.DB, dryRun bool, fields map[string]interface{}) (int64, error) {
	if dryRun {
		var count int64
		err := query.Count(&count).Error
		return count, err
	}
	res := query.Updates(fields)
	return res.RowsAffected, res.Error
}
