package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AssignmentType string

const (
	AssignmentTypeProject AssignmentType = "project"
	AssignmentTypeRental  AssignmentType = "rental"
	AssignmentTypeOther   AssignmentType = "other"
)

// EmployeeAssignment is owned by the staffing modules; this service only reads it.
type EmployeeAssignment struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	EmployeeID uuid.UUID      `gorm:"type:uuid;not null;index" json:"employee_id"`
	Type       AssignmentType `gorm:"type:varchar(20);not null" json:"type"`
	Name       string         `gorm:"type:varchar(255)" json:"name"`
	ProjectID  *uuid.UUID     `gorm:"type:uuid;index" json:"project_id"`
	RentalID   *uuid.UUID     `gorm:"type:uuid;index" json:"rental_id"`
	StartDate  time.Time      `gorm:"type:date;not null" json:"start_date"`
	EndDate    *time.Time     `gorm:"type:date" json:"end_date"`
	IsActive   bool           `gorm:"not null;index" json:"is_active"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (EmployeeAssignment) TableName() string {
	return "employee_assignments"
}

func (a *EmployeeAssignment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// ActiveOn reports whether the assignment is flagged active and its date
// range covers day. Both ends are inclusive; a nil EndDate is open-ended.
func (a *EmployeeAssignment) ActiveOn(day time.Time) bool {
	if !a.IsActive {
		return false
	}
	if day.Before(a.StartDate) {
		return false
	}
	if a.EndDate != nil && day.After(*a.EndDate) {
		return false
	}
	return true
}
