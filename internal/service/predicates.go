package service

import (
	"time"

	"github.com/google/uuid"

	"timesheet-service/internal/model"
)

// Storage-independent checks used by the reconciler and the generator.

func sameOptionalID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// SameWorkTuple reports whether two timesheets describe the same
// (employee, date, project) work record.
func SameWorkTuple(a, b model.Timesheet) bool {
	return a.EmployeeID == b.EmployeeID && sameDay(a.Date, b.Date) && sameOptionalID(a.ProjectID, b.ProjectID)
}

// IsSyncedDuplicate reports whether existing is an already-synced copy of candidate.
func IsSyncedDuplicate(candidate, existing model.Timesheet) bool {
	return existing.ID != candidate.ID && existing.SyncStatus.IsSynced() && SameWorkTuple(candidate, existing)
}

// IsPendingSibling reports whether other is another unsynced offline copy of
// candidate.
func IsPendingSibling(candidate, other model.Timesheet) bool {
	return other.ID != candidate.ID && other.IsOfflineEntry && !other.SyncStatus.IsSynced() && SameWorkTuple(candidate, other)
}

// RangesOverlap reports whether the half-open ranges [aStart, aEnd) and
// [bStart, bEnd) intersect. A zero end means open-ended.
func RangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	aBeforeB := !aEnd.IsZero() && !aEnd.After(bStart)
	bBeforeA := !bEnd.IsZero() && !bEnd.After(aStart)
	return !aBeforeB && !bBeforeA
}

// workWindow is the span a timesheet occupies on its calendar day.
// Missing or malformed times widen it to the whole day.
func workWindow(t model.Timesheet) (time.Time, time.Time) {
	dayStart := t.Date.UTC()
	dayEnd := dayStart.Add(24 * time.Hour)

	start := dayStart
	if t.StartTime != nil {
		if parsed, ok := clockOn(dayStart, *t.StartTime); ok {
			start = parsed
		}
	}
	end := dayEnd
	if t.EndTime != nil {
		if parsed, ok := clockOn(dayStart, *t.EndTime); ok && parsed.After(start) {
			end = parsed
		}
	}
	return start, end
}

func clockOn(day time.Time, hhmm string) (time.Time, bool) {
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, false
	}
	return day.Add(time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute), true
}

// sameWorkTarget treats a row without a project or rental as covering any target.
func sameWorkTarget(a, b model.Timesheet) bool {
	if a.ProjectID != nil && b.ProjectID != nil && *a.ProjectID != *b.ProjectID {
		return false
	}
	if a.RentalID != nil && b.RentalID != nil && *a.RentalID != *b.RentalID {
		return false
	}
	return true
}

// TimesheetsOverlap reports whether existing already covers the candidate:
// same employee, intersecting work windows, compatible project/rental.
func TimesheetsOverlap(existing, candidate model.Timesheet) bool {
	if existing.EmployeeID != candidate.EmployeeID {
		return false
	}
	if !sameWorkTarget(existing, candidate) {
		return false
	}
	es, ee := workWindow(existing)
	cs, ce := workWindow(candidate)
	return RangesOverlap(es, ee, cs, ce)
}

// AssignmentCoversProject reports whether the assignment puts the employee
// on the project on the given day.
func AssignmentCoversProject(a model.EmployeeAssignment, employeeID, projectID uuid.UUID, day time.Time) bool {
	if a.EmployeeID != employeeID || a.Type != model.AssignmentTypeProject {
		return false
	}
	if a.ProjectID == nil || *a.ProjectID != projectID {
		return false
	}
	return a.ActiveOn(day)
}
