package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"timesheet-service/internal/geo"
	"timesheet-service/internal/model"
	"timesheet-service/internal/repository"
)

const (
	maxPolygonPoints = 50
	allProjectsKey   = "*"
	defaultZoneTTL   = time.Minute
)

// ZoneStore serves geofence zones to the validation engine. Active-zone
// snapshots are cached per project for ttl; every write through the store
// drops the cache.
type ZoneStore struct {
	repo     *repository.GeofenceZoneRepository
	validate *validator.Validate
	log      zerolog.Logger
	ttl      time.Duration
	now      func() time.Time

	mu    sync.RWMutex
	cache map[string]zoneSnapshot
	// gen advances on every invalidation. A load started under an older
	// generation is returned to its caller but never cached.
	gen uint64
}

type zoneSnapshot struct {
	zones    []model.GeofenceZone
	loadedAt time.Time
}

func NewZoneStore(repo *repository.GeofenceZoneRepository, ttl time.Duration, log zerolog.Logger) *ZoneStore {
	if ttl <= 0 {
		ttl = defaultZoneTTL
	}
	return &ZoneStore{
		repo:     repo,
		validate: validator.New(),
		log:      log,
		ttl:      ttl,
		now:      time.Now,
		cache:    make(map[string]zoneSnapshot),
	}
}

func cacheKey(projectID *uuid.UUID) string {
	if projectID == nil {
		return allProjectsKey
	}
	return projectID.String()
}

// ActiveZones returns the active, non-deleted zones, all of them when
// projectID is nil or only the project's zones otherwise. Callers must not
// modify the returned slice.
func (s *ZoneStore) ActiveZones(ctx context.Context, projectID *uuid.UUID) ([]model.GeofenceZone, error) {
	key := cacheKey(projectID)
	now := s.now()

	s.mu.RLock()
	snap, ok := s.cache[key]
	gen := s.gen
	s.mu.RUnlock()
	if ok && now.Sub(snap.loadedAt) < s.ttl {
		return snap.zones, nil
	}

	zones, err := s.repo.ListActive(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load active zones: %w", err)
	}

	s.remember(key, zoneSnapshot{zones: zones, loadedAt: now}, gen)
	return zones, nil
}

// remember caches snap unless the cache was invalidated after gen was read.
func (s *ZoneStore) remember(key string, snap zoneSnapshot, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.cache[key] = snap
	return true
}

// InvalidateZones drops every cached snapshot.
func (s *ZoneStore) InvalidateZones(ctx context.Context) error {
	s.mu.Lock()
	s.gen++
	s.cache = make(map[string]zoneSnapshot)
	s.mu.Unlock()
	s.log.Debug().Msg("geofence zone cache invalidated")
	return nil
}

type CreateZoneInput struct {
	Name         string         `json:"name" validate:"required,max=255"`
	Description  *string        `json:"description" validate:"omitempty,max=1000"`
	ZoneType     model.ZoneType `json:"zone_type" validate:"required,oneof=project_site office warehouse restricted custom"`
	CenterLat    *float64       `json:"center_lat" validate:"omitempty,gte=-90,lte=90"`
	CenterLon    *float64       `json:"center_lon" validate:"omitempty,gte=-180,lte=180"`
	RadiusMeters *float64       `json:"radius_meters" validate:"omitempty,gte=1,lte=50000"`
	Polygon      []geo.Point    `json:"polygon" validate:"omitempty,min=3,max=50"`
	BufferMeters float64        `json:"buffer_meters" validate:"gte=0,lte=1000"`
	ProjectID    *uuid.UUID     `json:"project_id"`
	IsActive     *bool          `json:"is_active"`
}

func (s *ZoneStore) CreateZone(ctx context.Context, input CreateZoneInput) (*model.GeofenceZone, error) {
	input.Name = strings.TrimSpace(input.Name)

	fields := map[string]string{}
	if err := s.validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, err
		}
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
	}

	shape, shapeErrs := zoneShape(input)
	for k, v := range shapeErrs {
		fields[k] = v
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	zone := &model.GeofenceZone{
		Name:         input.Name,
		Description:  input.Description,
		ZoneType:     input.ZoneType,
		Shape:        shape,
		BufferMeters: input.BufferMeters,
		ProjectID:    input.ProjectID,
		IsActive:     true,
	}
	if input.IsActive != nil {
		zone.IsActive = *input.IsActive
	}
	if shape == model.ZoneShapePolygon {
		zone.Polygon = input.Polygon
	} else {
		zone.CenterLat = input.CenterLat
		zone.CenterLon = input.CenterLon
		zone.RadiusMeters = input.RadiusMeters
	}

	if err := s.repo.Create(ctx, zone); err != nil {
		return nil, err
	}
	_ = s.InvalidateZones(ctx)

	s.log.Info().
		Str("zone_id", zone.ID.String()).
		Str("shape", string(zone.Shape)).
		Bool("is_active", zone.IsActive).
		Msg("geofence zone created")

	return zone, nil
}

// zoneShape picks the shape kind and checks the rules the struct tags cannot
// express: exactly one shape, a complete circle, a simple polygon.
func zoneShape(input CreateZoneInput) (model.ZoneShape, map[string]string) {
	errs := map[string]string{}
	hasCircle := input.CenterLat != nil || input.CenterLon != nil || input.RadiusMeters != nil
	hasPolygon := len(input.Polygon) > 0

	switch {
	case hasCircle && hasPolygon:
		errs["shape"] = "exactly_one"
		return "", errs
	case hasPolygon:
		for i, p := range input.Polygon {
			if err := p.Validate(); err != nil {
				errs[fmt.Sprintf("Polygon[%d]", i)] = "coordinate"
			}
		}
		if len(errs) == 0 && len(input.Polygon) >= 3 && len(input.Polygon) <= maxPolygonPoints && geo.SelfIntersects(input.Polygon) {
			errs["Polygon"] = "self_intersecting"
		}
		return model.ZoneShapePolygon, errs
	case hasCircle:
		if input.CenterLat == nil {
			errs["CenterLat"] = "required"
		}
		if input.CenterLon == nil {
			errs["CenterLon"] = "required"
		}
		if input.RadiusMeters == nil {
			errs["RadiusMeters"] = "required"
		}
		return model.ZoneShapeCircle, errs
	default:
		errs["shape"] = "required"
		return "", errs
	}
}

func (s *ZoneStore) ListZones(ctx context.Context, filter repository.ZoneListFilter) ([]model.GeofenceZone, error) {
	return s.repo.List(ctx, filter)
}

func (s *ZoneStore) GetZone(ctx context.Context, id uuid.UUID) (*model.GeofenceZone, error) {
	zone, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if zone == nil {
		return nil, ErrNotFound
	}
	return zone, nil
}

// ToggleActive flips the active flag and returns the updated zone.
func (s *ZoneStore) ToggleActive(ctx context.Context, id uuid.UUID) (*model.GeofenceZone, error) {
	zone, err := s.GetZone(ctx, id)
	if err != nil {
		return nil, err
	}
	found, err := s.repo.SetActive(ctx, id, !zone.IsActive)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	zone.IsActive = !zone.IsActive
	_ = s.InvalidateZones(ctx)
	return zone, nil
}

func (s *ZoneStore) DeleteZone(ctx context.Context, id uuid.UUID) error {
	found, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	_ = s.InvalidateZones(ctx)
	return nil
}
