// Package eventstest provides an in-memory events.Publisher for tests.
package eventstest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"timesheet-service/internal/events"
)

// Recorder keeps published events in memory. When Err is set every publish
// fails with it and nothing is recorded.
type Recorder struct {
	mu      sync.Mutex
	events  []events.ViolationEvent
	changes []events.ChangeEvent
	Err     error
}

var _ events.Publisher = (*Recorder)(nil)

func (r *Recorder) PublishViolation(_ context.Context, event events.ViolationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	event.EventType = events.EventViolationDetected
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) PublishTimesheetsChanged(_ context.Context, employeeIDs []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	ids := append([]uuid.UUID{}, employeeIDs...)
	r.changes = append(r.changes, events.ChangeEvent{
		EventType:   events.EventTimesheetsChanged,
		EmployeeIDs: ids,
		ChangedAt:   time.Now().UTC(),
	})
	return nil
}

func (r *Recorder) Events() []events.ViolationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.ViolationEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) Changes() []events.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.ChangeEvent, len(r.changes))
	copy(out, r.changes)
	return out
}
