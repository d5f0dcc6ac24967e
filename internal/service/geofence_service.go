package service

import (
	"context"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"timesheet-service/internal/geo"
	"timesheet-service/internal/model"
	"timesheet-service/internal/repository"
)

const ReasonOutsideZone = "outside_zone"

// ValidationResult is the outcome of checking one coordinate against the
// active zones.
type ValidationResult struct {
	Compliant               bool              `json:"compliant"`
	NoActiveZones           bool              `json:"no_active_zones"`
	Violations              []model.Violation `json:"violations"`
	DistanceFromNearestZone *float64          `json:"distance_from_nearest_zone"`
	MatchedZoneID           *uuid.UUID        `json:"matched_zone_id"`
	MatchedZoneIDs          []uuid.UUID       `json:"matched_zone_ids"`
	NearestZoneID           *uuid.UUID        `json:"nearest_zone_id"`
}

// EvaluateZones checks p against zones. A point inside at least one zone is
// compliant; otherwise every zone yields one violation. An empty zone set is
// compliant.
func EvaluateZones(zones []model.GeofenceZone, p geo.Point) (*ValidationResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	result := &ValidationResult{
		Violations:     []model.Violation{},
		MatchedZoneIDs: []uuid.UUID{},
	}
	if len(zones) == 0 {
		result.Compliant = true
		result.NoActiveZones = true
		return result, nil
	}

	nearest := math.Inf(1)
	var nearestID uuid.UUID
	outside := make([]model.Violation, 0, len(zones))

	for i := range zones {
		zone := &zones[i]
		d := zone.BoundaryDistance(p)
		if d <= 0 {
			result.MatchedZoneIDs = append(result.MatchedZoneIDs, zone.ID)
			continue
		}
		outside = append(outside, model.Violation{
			ZoneID:   zone.ID,
			ZoneName: zone.Name,
			Reason:   ReasonOutsideZone,
			Distance: d,
		})
		if d < nearest {
			nearest = d
			nearestID = zone.ID
		}
	}

	if len(result.MatchedZoneIDs) > 0 {
		matched := result.MatchedZoneIDs[0]
		zero := 0.0
		result.Compliant = true
		result.MatchedZoneID = &matched
		result.NearestZoneID = &matched
		result.DistanceFromNearestZone = &zero
		return result, nil
	}

	result.Violations = outside
	result.DistanceFromNearestZone = &nearest
	result.NearestZoneID = &nearestID
	return result, nil
}

// GeofenceService validates coordinates against the zone store and reports
// compliance over stored timesheets.
type GeofenceService struct {
	zones         *ZoneStore
	timesheetRepo *repository.TimesheetRepository
	log           zerolog.Logger
}

func NewGeofenceService(zones *ZoneStore, timesheetRepo *repository.TimesheetRepository, log zerolog.Logger) *GeofenceService {
	return &GeofenceService{
		zones:         zones,
		timesheetRepo: timesheetRepo,
		log:           log,
	}
}

// Validate checks the coordinate against active zones, narrowed to the
// project's zones when projectID is set. employeeID only annotates logs.
func (s *GeofenceService) Validate(ctx context.Context, lat, lon float64, employeeID, projectID *uuid.UUID) (*ValidationResult, error) {
	p := geo.Point{Lat: lat, Lon: lon}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	zones, err := s.zones.ActiveZones(ctx, projectID)
	if err != nil {
		return nil, err
	}

	result, err := EvaluateZones(zones, p)
	if err != nil {
		return nil, err
	}

	if !result.Compliant {
		event := s.log.Debug().
			Float64("lat", lat).
			Float64("lon", lon).
			Int("violations", len(result.Violations))
		if employeeID != nil {
			event = event.Str("employee_id", employeeID.String())
		}
		event.Msg("coordinate outside all geofence zones")
	}
	return result, nil
}

type ComplianceStats struct {
	TotalEntries     int64   `json:"total_entries"`
	CompliantEntries int64   `json:"compliant_entries"`
	ViolationEntries int64   `json:"violation_entries"`
	UnknownEntries   int64   `json:"unknown_entries"`
	ComplianceRate   float64 `json:"compliance_rate"`
}

// Statistics summarises geofence status over timesheets that carry a
// location. Only compliant and violation rows make up the total; unknown rows
// are reported but never weigh on the rate, a percentage rounded to two
// decimals.
func (s *GeofenceService) Statistics(ctx context.Context, filter repository.ComplianceFilter) (*ComplianceStats, error) {
	counts, err := s.timesheetRepo.CountByGeofenceStatus(ctx, filter)
	if err != nil {
		return nil, err
	}

	stats := &ComplianceStats{
		CompliantEntries: counts[model.GeofenceStatusCompliant],
		ViolationEntries: counts[model.GeofenceStatusViolation],
		UnknownEntries:   counts[model.GeofenceStatusUnknown],
	}
	stats.TotalEntries = stats.CompliantEntries + stats.ViolationEntries
	stats.ComplianceRate = percentage(stats.CompliantEntries, stats.TotalEntries)
	return stats, nil
}

func percentage(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*10000) / 100
}
