package model

import "github.com/google/uuid"

type UserRole string

const (
	UserRoleAdmin    UserRole = "ADMIN"
	UserRoleHR       UserRole = "HR"
	UserRoleManager  UserRole = "MANAGER"
	UserRoleEmployee UserRole = "EMPLOYEE"
)

type Principal struct {
	UserID     uuid.UUID
	Role       UserRole
	EmployeeID *uuid.UUID
}

func (p Principal) IsAdmin() bool {
	return p.Role == UserRoleAdmin || p.Role == UserRoleHR
}

// CanManageGeofences covers zone administration and maintenance jobs.
func (p Principal) CanManageGeofences() bool {
	return p.IsAdmin() || p.Role == UserRoleManager
}
