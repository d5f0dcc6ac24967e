package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TimesheetStatus string

const (
	TimesheetStatusDraft     TimesheetStatus = "draft"
	TimesheetStatusSubmitted TimesheetStatus = "submitted"
	TimesheetStatusApproved  TimesheetStatus = "approved"
	TimesheetStatusRejected  TimesheetStatus = "rejected"
)

type GeofenceStatus string

const (
	GeofenceStatusUnknown   GeofenceStatus = "unknown"
	GeofenceStatusCompliant GeofenceStatus = "compliant"
	GeofenceStatusViolation GeofenceStatus = "violation"
)

type SyncStatus string

const (
	SyncStatusPending              SyncStatus = "pending"
	SyncStatusSynced               SyncStatus = "synced"
	SyncStatusSyncedWithViolations SyncStatus = "synced_with_violations"
)

// SyncedStatuses are the states a reconciled timesheet can end in.
var SyncedStatuses = []SyncStatus{SyncStatusSynced, SyncStatusSyncedWithViolations}

func (s SyncStatus) IsSynced() bool {
	return s == SyncStatusSynced || s == SyncStatusSyncedWithViolations
}

// Violation describes why a coordinate failed one zone.
type Violation struct {
	ZoneID   uuid.UUID `json:"zone_id"`
	ZoneName string    `json:"zone_name,omitempty"`
	Reason   string    `json:"reason"`
	Distance float64   `json:"distance"`
}

type Timesheet struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	EmployeeID         uuid.UUID       `gorm:"type:uuid;not null;index" json:"employee_id"`
	AssignmentID       *uuid.UUID      `gorm:"type:uuid" json:"assignment_id"`
	ProjectID          *uuid.UUID      `gorm:"type:uuid;index" json:"project_id"`
	RentalID           *uuid.UUID      `gorm:"type:uuid;index" json:"rental_id"`
	Date               time.Time       `gorm:"type:date;not null;index" json:"date"`
	Status             TimesheetStatus `gorm:"type:varchar(20);not null" json:"status"`
	StartTime          *string         `gorm:"type:varchar(5)" json:"start_time"`
	EndTime            *string         `gorm:"type:varchar(5)" json:"end_time"`
	HoursWorked        float64         `gorm:"not null" json:"hours_worked"`
	OvertimeHours      float64         `gorm:"not null" json:"overtime_hours"`
	Description        *string         `gorm:"type:text" json:"description"`
	Latitude           *float64        `json:"latitude"`
	Longitude          *float64        `json:"longitude"`
	IsOfflineEntry     bool            `gorm:"not null;index" json:"is_offline_entry"`
	LocationHistory    datatypes.JSON  `gorm:"type:jsonb" json:"location_history"`
	GPSLogs            datatypes.JSON  `gorm:"column:gps_logs;type:jsonb" json:"gps_logs"`
	GeofenceStatus     GeofenceStatus  `gorm:"type:varchar(20);not null" json:"geofence_status"`
	GeofenceViolations datatypes.JSON  `gorm:"type:jsonb" json:"geofence_violations"`
	GeofenceZoneID     *uuid.UUID      `gorm:"type:uuid;index" json:"geofence_zone_id"`
	DistanceFromSite   *float64        `json:"distance_from_site"`
	SyncStatus         SyncStatus      `gorm:"type:varchar(32);not null;index" json:"sync_status"`
	SyncAttempts       int             `gorm:"not null" json:"sync_attempts"`
	SyncedAt           *time.Time      `json:"synced_at"`
	SyncError          *string         `gorm:"type:text" json:"sync_error"`
	CreatedAt          time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Timesheet) TableName() string {
	return "timesheets"
}

func (t *Timesheet) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = TimesheetStatusDraft
	}
	if t.GeofenceStatus == "" {
		t.GeofenceStatus = GeofenceStatusUnknown
	}
	if t.SyncStatus == "" {
		t.SyncStatus = SyncStatusPending
	}
	return nil
}

// HasLocation reports whether both coordinates were captured.
func (t *Timesheet) HasLocation() bool {
	return t.Latitude != nil && t.Longitude != nil
}

func (t *Timesheet) Violations() ([]Violation, error) {
	if len(t.GeofenceViolations) == 0 {
		return nil, nil
	}
	var out []Violation
	if err := json.Unmarshal(t.GeofenceViolations, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EncodeViolations returns nil for an empty list so the column stays NULL.
func EncodeViolations(violations []Violation) (datatypes.JSON, error) {
	if len(violations) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(violations)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

func EncodeLocationSamples(samples []LocationSample) (datatypes.JSON, error) {
	if len(samples) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(samples)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

// CalendarDay truncates t to midnight UTC of its calendar day in loc.
func CalendarDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
