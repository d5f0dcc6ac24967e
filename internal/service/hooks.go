package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Clock returns the current time. Services take one so tests can pin it.
type Clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}

// TimesheetInvalidator drops downstream cached views of the given employees'
// timesheets.
type TimesheetInvalidator func(ctx context.Context, employeeIDs []uuid.UUID) error

// PostCommitHook is a cache invalidation the caller may run once an
// operation's writes are durable.
type PostCommitHook struct {
	Name string
	Run  func(ctx context.Context) error
}

// RunPostCommit runs every hook in order. Failures are logged and counted,
// never returned.
func RunPostCommit(ctx context.Context, hooks []PostCommitHook, log zerolog.Logger) int {
	failed := 0
	for _, hook := range hooks {
		if err := hook.Run(ctx); err != nil {
			failed++
			log.Warn().Err(err).Str("hook", hook.Name).Msg("post-commit hook failed")
		}
	}
	return failed
}

func zoneHook(zones *ZoneStore) PostCommitHook {
	return PostCommitHook{Name: "geofence_zones", Run: zones.InvalidateZones}
}

func timesheetHook(invalidate TimesheetInvalidator, employeeIDs []uuid.UUID) PostCommitHook {
	ids := append([]uuid.UUID(nil), employeeIDs...)
	return PostCommitHook{
		Name: "timesheets",
		Run: func(ctx context.Context) error {
			return invalidate(ctx, ids)
		},
	}
}

// employeeSet collects distinct employee ids in first-seen order.
type employeeSet struct {
	seen map[uuid.UUID]struct{}
	ids  []uuid.UUID
}

func (s *employeeSet) add(id uuid.UUID) {
	if s.seen == nil {
		s.seen = make(map[uuid.UUID]struct{})
	}
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.ids = append(s.ids, id)
}
