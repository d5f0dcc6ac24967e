package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"timesheet-service/internal/geo"
	"timesheet-service/internal/model"
)

const (
	EventViolationDetected = "geofence.violation_detected"
	EventTimesheetsChanged = "timesheets.changed"
	SeverityMedium         = "medium"
)

// ViolationEvent is the JSON payload published when a timesheet location
// falls outside every active zone.
type ViolationEvent struct {
	EventType   string            `json:"event_type"`
	TimesheetID uuid.UUID         `json:"timesheet_id"`
	EmployeeID  uuid.UUID         `json:"employee_id"`
	ProjectID   *uuid.UUID        `json:"project_id,omitempty"`
	Coordinate  geo.Point         `json:"coordinate"`
	Violations  []model.Violation `json:"violations"`
	Severity    string            `json:"severity"`
	DetectedAt  time.Time         `json:"detected_at"`
}

// ChangeEvent tells downstream caches which employees' timesheets changed.
// An empty list means any employee.
type ChangeEvent struct {
	EventType   string      `json:"event_type"`
	EmployeeIDs []uuid.UUID `json:"employee_ids"`
	ChangedAt   time.Time   `json:"changed_at"`
}

// Publisher delivers violation events to the notification dispatcher and
// change notices to cache owners.
type Publisher interface {
	PublishViolation(ctx context.Context, event ViolationEvent) error
	PublishTimesheetsChanged(ctx context.Context, employeeIDs []uuid.UUID) error
}

// NATSPublisher publishes events as JSON on <prefix>.<event_type>.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	log    zerolog.Logger
}

// Connect dials NATS with unlimited reconnects. The caller drains the
// returned connection on shutdown.
func Connect(url string, log zerolog.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("timesheet-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return conn, nil
}

func NewNATSPublisher(conn *nats.Conn, prefix string, log zerolog.Logger) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix, log: log}
}

func (p *NATSPublisher) subject(eventType string) string {
	if p.prefix == "" {
		return eventType
	}
	return p.prefix + "." + eventType
}

func (p *NATSPublisher) publish(ctx context.Context, eventType string, event interface{}) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	subject := p.subject(eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		return "", fmt.Errorf("publish %s: %w", subject, err)
	}
	return subject, nil
}

func (p *NATSPublisher) PublishViolation(ctx context.Context, event ViolationEvent) error {
	event.EventType = EventViolationDetected
	subject, err := p.publish(ctx, EventViolationDetected, event)
	if err != nil {
		return err
	}

	p.log.Debug().
		Str("subject", subject).
		Str("timesheet_id", event.TimesheetID.String()).
		Int("violations", len(event.Violations)).
		Msg("violation event published")
	return nil
}

func (p *NATSPublisher) PublishTimesheetsChanged(ctx context.Context, employeeIDs []uuid.UUID) error {
	subject, err := p.publish(ctx, EventTimesheetsChanged, newChangeEvent(employeeIDs))
	if err != nil {
		return err
	}

	p.log.Debug().
		Str("subject", subject).
		Int("employees", len(employeeIDs)).
		Msg("timesheet change published")
	return nil
}

func newChangeEvent(employeeIDs []uuid.UUID) ChangeEvent {
	if employeeIDs == nil {
		employeeIDs = []uuid.UUID{}
	}
	return ChangeEvent{
		EventType:   EventTimesheetsChanged,
		EmployeeIDs: employeeIDs,
		ChangedAt:   time.Now().UTC(),
	}
}

// LogPublisher writes events to the log. Used when NATS is not configured.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) PublishViolation(_ context.Context, event ViolationEvent) error {
	p.log.Warn().
		Str("event_type", EventViolationDetected).
		Str("timesheet_id", event.TimesheetID.String()).
		Str("employee_id", event.EmployeeID.String()).
		Float64("lat", event.Coordinate.Lat).
		Float64("lon", event.Coordinate.Lon).
		Int("violations", len(event.Violations)).
		Str("severity", event.Severity).
		Msg("geofence violation detected")
	return nil
}

func (p *LogPublisher) PublishTimesheetsChanged(_ context.Context, employeeIDs []uuid.UUID) error {
	p.log.Info().
		Str("event_type", EventTimesheetsChanged).
		Int("employees", len(employeeIDs)).
		Msg("timesheets changed")
	return nil
}
