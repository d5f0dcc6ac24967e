package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"timesheet-service/internal/model"
)

type GeofenceZoneRepository struct {
	db *gorm.DB
}

func NewGeofenceZoneRepository(db *gorm.DB) *GeofenceZoneRepository {
	return &GeofenceZoneRepository{db: db}
}

// WithTx binds the repository to an open transaction.
func (r *GeofenceZoneRepository) WithTx(tx *gorm.DB) *GeofenceZoneRepository {
	return &GeofenceZoneRepository{db: tx}
}

func (r *GeofenceZoneRepository) Create(ctx context.Context, zone *model.GeofenceZone) error {
	return r.db.WithContext(ctx).Create(zone).Error
}

func (r *GeofenceZoneRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.GeofenceZone, error) {
	var zone model.GeofenceZone
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&zone).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &zone, nil
}

type ZoneListFilter struct {
	ProjectID  *uuid.UUID
	ZoneType   *model.ZoneType
	ActiveOnly bool
}

func (r *GeofenceZoneRepository) List(ctx context.Context, filter ZoneListFilter) ([]model.GeofenceZone, error) {
	var zones []model.GeofenceZone
	query := r.db.WithContext(ctx).Model(&model.GeofenceZone{})

	if filter.ProjectID != nil {
		query = query.Where("project_id = ?", *filter.ProjectID)
	}
	if filter.ZoneType != nil {
		query = query.Where("zone_type = ?", *filter.ZoneType)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	if err := query.Order("name ASC").Order("id ASC").Find(&zones).Error; err != nil {
		return nil, err
	}
	return zones, nil
}

// ListActive excludes inactive and soft-deleted zones. A nil projectID
// returns every active zone.
func (r *GeofenceZoneRepository) ListActive(ctx context.Context, projectID *uuid.UUID) ([]model.GeofenceZone, error) {
	return r.List(ctx, ZoneListFilter{ProjectID: projectID, ActiveOnly: true})
}

func (r *GeofenceZoneRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.GeofenceZone{}).
		Where("id = ?", id).
		Update("is_active", active)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Delete soft-deletes the zone; it stays in the table for audit.
func (r *GeofenceZoneRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.GeofenceZone{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GeofenceZoneRepository) orphanQuery(ctx context.Context, unmodifiedBefore time.Time) *gorm.DB {
	return r.db.WithContext(ctx).Unscoped().Model(&model.GeofenceZone{}).
		Where("is_active = ? AND updated_at <= ?", false, unmodifiedBefore).
		Where("NOT EXISTS (SELECT 1 FROM timesheets t WHERE t.geofence_zone_id = geofence_zones.id)")
}

// PurgeOrphans hard-deletes inactive zones last modified at or before
// unmodifiedBefore that no timesheet references. With dryRun it only counts
// them.
func (r *GeofenceZoneRepository) PurgeOrphans(ctx context.Context, unmodifiedBefore time.Time, dryRun bool) (int64, error) {
	if dryRun {
		var count int64
		err := r.orphanQuery(ctx, unmodifiedBefore).Count(&count).Error
		return count, err
	}

	var ids []uuid.UUID
	if err := r.orphanQuery(ctx, unmodifiedBefore).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res := r.db.WithContext(ctx).Unscoped().Where("id IN ?", ids).Delete(&model.GeofenceZone{})
	return res.RowsAffected, res.Error
}
