// Package geo provides the pure geospatial math used by geofence
// evaluation: great-circle distance, bounding boxes, and point-in-polygon
// tests. All functions are deterministic and side-effect free.
package geo

import (
	"errors"
	"math"
)

const earthRadiusMeters = 6371000

// ErrInvalidGeometry is returned for malformed input: NaN or infinite
// coordinates, out-of-range latitude/longitude, or polygons with fewer
// than three vertices.
var ErrInvalidGeometry = errors.New("invalid geometry")

type Point struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Box is a latitude/longitude axis-aligned bounding box. Boxes produced
// by this package over-approximate: a point inside the true region is
// always inside the box.
type Box struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

func (b Box) Contains(p Point) bool {
	if p.Lat < b.MinLat || p.Lat > b.MaxLat {
		return false
	}
	if b.MinLon <= b.MaxLon {
		return p.Lon >= b.MinLon && p.Lon <= b.MaxLon
	}
	// box crosses the antimeridian
	return p.Lon >= b.MinLon || p.Lon <= b.MaxLon
}

func validPoint(p Point) bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Distance returns the great-circle distance between a and b in meters
// using the haversine formula.
func Distance(a, b Point) (float64, error) {
	if !validPoint(a) || !validPoint(b) {
		return 0, ErrInvalidGeometry
	}
	return haversine(a.Lat, a.Lon, b.Lat, b.Lon), nil
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// BoundingBox returns a box guaranteed to contain the circle of the given
// radius around center. Near the poles the longitude span degenerates, so
// the box widens to the full longitude range there.
func BoundingBox(center Point, radiusMeters float64) (Box, error) {
	if !validPoint(center) || math.IsNaN(radiusMeters) || radiusMeters < 0 {
		return Box{}, ErrInvalidGeometry
	}
	latDelta := radiusMeters / earthRadiusMeters * 180 / math.Pi

	box := Box{
		MinLat: math.Max(center.Lat-latDelta, -90),
		MaxLat: math.Min(center.Lat+latDelta, 90),
	}

	cosLat := math.Cos(toRad(center.Lat))
	if cosLat < 1e-9 || box.MinLat <= -90+1e-9 || box.MaxLat >= 90-1e-9 {
		box.MinLon, box.MaxLon = -180, 180
		return box, nil
	}

	lonDelta := latDelta / cosLat
	if lonDelta >= 180 {
		box.MinLon, box.MaxLon = -180, 180
		return box, nil
	}
	box.MinLon = normalizeLon(center.Lon - lonDelta)
	box.MaxLon = normalizeLon(center.Lon + lonDelta)
	return box, nil
}

func normalizeLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}

// PolygonBounds returns the bounding box of a polygon's vertices.
func PolygonBounds(vertices []Point) (Box, error) {
	if len(vertices) < 3 {
		return Box{}, ErrInvalidGeometry
	}
	box := Box{MinLat: 90, MaxLat: -90, MinLon: 180, MaxLon: -180}
	for _, v := range vertices {
		if !validPoint(v) {
			return Box{}, ErrInvalidGeometry
		}
		box.MinLat = math.Min(box.MinLat, v.Lat)
		box.MaxLat = math.Max(box.MaxLat, v.Lat)
		box.MinLon = math.Min(box.MinLon, v.Lon)
		box.MaxLon = math.Max(box.MaxLon, v.Lon)
	}
	return box, nil
}

// PointInPolygon reports whether p lies inside the polygon described by
// vertices, treated as closed (the last vertex connects back to the
// first). Ray casting with the even-odd rule; points on the boundary
// count as inside.
func PointInPolygon(p Point, vertices []Point) (bool, error) {
	if len(vertices) < 3 {
		return false, ErrInvalidGeometry
	}
	if !validPoint(p) {
		return false, ErrInvalidGeometry
	}
	for _, v := range vertices {
		if !validPoint(v) {
			return false, ErrInvalidGeometry
		}
	}

	inside := false
	n := len(vertices)
	for i := 0; i < n; i++ {
		a := vertices[i]
		b := vertices[(i+1)%n]

		if onSegment(p, a, b) {
			return true, nil
		}

		intersects := (a.Lat > p.Lat) != (b.Lat > p.Lat) &&
			p.Lon < (b.Lon-a.Lon)*(p.Lat-a.Lat)/(b.Lat-a.Lat)+a.Lon
		if intersects {
			inside = !inside
		}
	}
	return inside, nil
}

func onSegment(p, a, b Point) bool {
	const eps = 1e-12
	cross := (b.Lon-a.Lon)*(p.Lat-a.Lat) - (b.Lat-a.Lat)*(p.Lon-a.Lon)
	if math.Abs(cross) > eps {
		return false
	}
	dot := (p.Lon-a.Lon)*(b.Lon-a.Lon) + (p.Lat-a.Lat)*(b.Lat-a.Lat)
	if dot < 0 {
		return false
	}
	sq := (b.Lon-a.Lon)*(b.Lon-a.Lon) + (b.Lat-a.Lat)*(b.Lat-a.Lat)
	return dot <= sq
}

// DistanceToSegment returns the approximate great-circle distance in
// meters from p to the segment ab. The perpendicular foot is computed in
// the equirectangular plane, which is accurate enough at geofence scale.
func DistanceToSegment(p, a, b Point) float64 {
	refLat := toRad(p.Lat)
	ax, ay := a.Lon*math.Cos(refLat), a.Lat
	bx, by := b.Lon*math.Cos(refLat), b.Lat
	px, py := p.Lon*math.Cos(refLat), p.Lat

	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy

	t := 0.0
	if lenSq > 0 {
		t = ((px-ax)*dx + (py-ay)*dy) / lenSq
		t = math.Max(0, math.Min(1, t))
	}

	foot := Point{
		Lat: a.Lat + t*(b.Lat-a.Lat),
		Lon: a.Lon + t*(b.Lon-a.Lon),
	}
	return haversine(p.Lat, p.Lon, foot.Lat, foot.Lon)
}
