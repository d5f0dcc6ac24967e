package events

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestNATSSubject(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "geofence.violation_detected"},
		{"snowops", "snowops.geofence.violation_detected"},
	}
	for _, tt := range tests {
		p := NewNATSPublisher(nil, tt.prefix, zerolog.Nop())
		if got := p.subject(EventViolationDetected); got != tt.want {
			t.Errorf("subject(%q) = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}

func TestNATSPublisherHonoursCancelledContext(t *testing.T) {
	p := NewNATSPublisher(nil, "", zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.PublishViolation(ctx, ViolationEvent{TimesheetID: uuid.New()}); !errors.Is(err, context.Canceled) {
		t.Errorf("PublishViolation() error = %v, want context.Canceled", err)
	}
}

func TestLogPublisher(t *testing.T) {
	p := NewLogPublisher(zerolog.Nop())
	if err := p.PublishViolation(context.Background(), ViolationEvent{TimesheetID: uuid.New()}); err != nil {
		t.Errorf("PublishViolation() error = %v", err)
	}
	if err := p.PublishTimesheetsChanged(context.Background(), []uuid.UUID{uuid.New()}); err != nil {
		t.Errorf("PublishTimesheetsChanged() error = %v", err)
	}
}
