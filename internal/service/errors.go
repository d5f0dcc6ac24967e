package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"timesheet-service/internal/geo"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConflict         = errors.New("conflict")

	// ErrInvalidCoordinate is the only hard failure of location validation.
	ErrInvalidCoordinate = geo.ErrInvalidCoordinate

	// ErrConfirmationRequired guards destructive cleanup runs that were
	// neither forced nor dry runs.
	ErrConfirmationRequired = errors.New("confirmation required")
)

type Stage string

const (
	StageStructural   Stage = "structural"
	StageGeofence     Stage = "geofence"
	StageBusinessRule Stage = "business_rule"
	StagePersistence  Stage = "persistence"
)

// RecordError captures why one timesheet could not be reconciled.
type RecordError struct {
	TimesheetID uuid.UUID `json:"timesheet_id"`
	Stage       Stage     `json:"stage"`
	Reason      string    `json:"reason"`
	Err         error     `json:"-"`
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("timesheet %s: %s: %s", e.TimesheetID, e.Stage, e.Reason)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// ValidationError lists field problems found on zone input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %d field error(s)", len(e.Fields))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}
