// Package geo holds the distance and containment math used for geofencing.
// Coordinates are WGS84 degrees, distances are meters.
package geo

import (
	"errors"
	"math"
)

const earthRadius = 6371000.0

var ErrInvalidCoordinate = errors.New("invalid coordinate")

type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate rejects coordinates outside [-90,90] x [-180,180] and NaNs.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return ErrInvalidCoordinate
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return ErrInvalidCoordinate
	}
	return nil
}

// Haversine returns the great-circle distance between two points.
func Haversine(a, b Point) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadius * c
}

// CircleBoundaryDistance is the signed distance from p to the circle edge.
// Zero or negative means p is inside.
func CircleBoundaryDistance(p, center Point, radius float64) float64 {
	return Haversine(p, center) - radius
}

// ContainsPoint reports whether p is inside the polygon using ray casting.
// The polygon is implicitly closed.
func ContainsPoint(polygon []Point, p Point) bool {
	inside := false
	n := len(polygon)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := polygon[i], polygon[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) {
			crossLon := (vj.Lon-vi.Lon)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat) + vi.Lon
			if p.Lon < crossLon {
				inside = !inside
			}
		}
	}
	return inside
}

// DistanceToPolygonEdge returns the minimum distance from p to any polygon edge.
// Vertices are projected onto a local equirectangular plane centered on p,
// which is accurate for site-sized polygons.
func DistanceToPolygonEdge(polygon []Point, p Point) float64 {
	n := len(polygon)
	if n == 0 {
		return math.Inf(1)
	}
	if n == 1 {
		return Haversine(p, polygon[0])
	}

	cosLat := math.Cos(toRad(p.Lat))
	project := func(v Point) (float64, float64) {
		x := toRad(v.Lon-p.Lon) * cosLat * earthRadius
		y := toRad(v.Lat-p.Lat) * earthRadius
		return x, y
	}

	best := math.Inf(1)
	for i := 0; i < n; i++ {
		ax, ay := project(polygon[i])
		bx, by := project(polygon[(i+1)%n])
		if d := distanceToSegment(ax, ay, bx, by); d < best {
			best = d
		}
	}
	return best
}

// PolygonBoundaryDistance is the signed distance from p to the polygon edge.
// Points inside report zero.
func PolygonBoundaryDistance(polygon []Point, p Point) float64 {
	if ContainsPoint(polygon, p) {
		return 0
	}
	return DistanceToPolygonEdge(polygon, p)
}

// SelfIntersects reports whether any two non-adjacent edges of the closed
// polygon cross each other.
func SelfIntersects(polygon []Point) bool {
	n := len(polygon)
	if n < 4 {
		return false
	}
	for i := 0; i < n; i++ {
		a1, a2 := polygon[i], polygon[(i+1)%n]
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			b1, b2 := polygon[j], polygon[(j+1)%n]
			if segmentsIntersect(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

func distanceToSegment(ax, ay, bx, by float64) float64 {
	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(ax, ay)
	}
	// origin is the query point
	t := -(ax*dx + ay*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(ax+t*dx, ay+t*dy)
}

func segmentsIntersect(p1, p2, q1, q2 Point) bool {
	d1 := orientation(q1, q2, p1)
	d2 := orientation(q1, q2, p2)
	d3 := orientation(p1, p2, q1)
	d4 := orientation(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	switch {
	case d1 == 0 && onSegment(q1, q2, p1):
		return true
	case d2 == 0 && onSegment(q1, q2, p2):
		return true
	case d3 == 0 && onSegment(p1, p2, q1):
		return true
	case d4 == 0 && onSegment(p1, p2, q2):
		return true
	}
	return false
}

func orientation(a, b, c Point) float64 {
	return (b.Lon-a.Lon)*(c.Lat-a.Lat) - (b.Lat-a.Lat)*(c.Lon-a.Lon)
}

func onSegment(a, b, c Point) bool {
	return math.Min(a.Lon, b.Lon) <= c.Lon && c.Lon <= math.Max(a.Lon, b.Lon) &&
		math.Min(a.Lat, b.Lat) <= c.Lat && c.Lat <= math.Max(a.Lat, b.Lat)
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
