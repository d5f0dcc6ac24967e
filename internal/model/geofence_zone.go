package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"timesheet-service/internal/geo"
)

type ZoneShape string

const (
	ZoneShapeCircle  ZoneShape = "circle"
	ZoneShapePolygon ZoneShape = "polygon"
)

type ZoneType string

const (
	ZoneTypeProjectSite ZoneType = "project_site"
	ZoneTypeOffice      ZoneType = "office"
	ZoneTypeWarehouse   ZoneType = "warehouse"
	ZoneTypeRestricted  ZoneType = "restricted"
	ZoneTypeCustom      ZoneType = "custom"
)

// GeofenceZone is a named boundary. Exactly one of the circle fields or
// Polygon is populated, according to Shape. Shape invariants are checked on
// creation only.
type GeofenceZone struct {
	ID           uuid.UUID                      `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string                         `gorm:"type:varchar(255);not null" json:"name"`
	Description  *string                        `gorm:"type:text" json:"description"`
	ZoneType     ZoneType                       `gorm:"type:varchar(32);not null" json:"zone_type"`
	Shape        ZoneShape                      `gorm:"type:varchar(16);not null" json:"shape"`
	CenterLat    *float64                       `json:"center_lat"`
	CenterLon    *float64                       `json:"center_lon"`
	RadiusMeters *float64                       `json:"radius_meters"`
	Polygon      datatypes.JSONSlice[geo.Point] `gorm:"type:jsonb" json:"polygon,omitempty"`
	BufferMeters float64                        `gorm:"not null" json:"buffer_meters"`
	ProjectID    *uuid.UUID                     `gorm:"type:uuid;index" json:"project_id"`
	IsActive     bool                           `gorm:"not null;index" json:"is_active"`
	CreatedAt    time.Time                      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time                      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt                 `gorm:"index" json:"-"`
}

func (GeofenceZone) TableName() string {
	return "geofence_zones"
}

func (z *GeofenceZone) BeforeCreate(tx *gorm.DB) error {
	if z.ID == uuid.Nil {
		z.ID = uuid.New()
	}
	return nil
}

func (z *GeofenceZone) Center() geo.Point {
	var p geo.Point
	if z.CenterLat != nil {
		p.Lat = *z.CenterLat
	}
	if z.CenterLon != nil {
		p.Lon = *z.CenterLon
	}
	return p
}

// BoundaryDistance returns the signed distance from p to the zone edge,
// with the buffer already applied. Zero or negative means compliant.
func (z *GeofenceZone) BoundaryDistance(p geo.Point) float64 {
	switch z.Shape {
	case ZoneShapePolygon:
		if geo.ContainsPoint(z.Polygon, p) {
			return 0
		}
		return geo.DistanceToPolygonEdge(z.Polygon, p) - z.BufferMeters
	default:
		radius := 0.0
		if z.RadiusMeters != nil {
			radius = *z.RadiusMeters
		}
		return geo.CircleBoundaryDistance(p, z.Center(), radius+z.BufferMeters)
	}
}
