package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"timesheet-service/internal/model"
)

// AssignmentRepository reads employee assignments owned by the staffing modules.
type AssignmentRepository struct {
	db *gorm.DB
}

func NewAssignmentRepository(db *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) WithTx(tx *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{db: tx}
}

// ListActiveOn returns assignments flagged active whose date range covers day.
func (r *AssignmentRepository) ListActiveOn(ctx context.Context, day time.Time) ([]model.EmployeeAssignment, error) {
	var assignments []model.EmployeeAssignment
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND start_date <= ?", true, day).
		Where("(end_date IS NULL OR end_date >= ?)", day).
		Order("employee_id ASC").
		Order("start_date ASC").
		Order("id ASC").
		Find(&assignments).Error
	return assignments, err
}

func (r *AssignmentRepository) ListActiveByEmployee(ctx context.Context, employeeID uuid.UUID) ([]model.EmployeeAssignment, error) {
	var assignments []model.EmployeeAssignment
	err := r.db.WithContext(ctx).
		Where("employee_id = ? AND is_active = ?", employeeID, true).
		Order("start_date DESC").
		Find(&assignments).Error
	return assignments, err
}
