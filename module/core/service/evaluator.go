package service

import (
	"fmt"
	"math"

	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/geo"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/domain"
)

// Evaluator decides geofence containment for a point. Stateless; the
// edge-triggered event derivation lives in the ingest service, which
// owns the per-entity containment state.
type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate tests the point against every geofence. A bounding box is
// used as a cheap rejection before the exact test. For inclusion zones
// the point is outside of, DistanceToBoundary carries the approximate
// distance to the perimeter so callers can grade alert severity.
func (e *Evaluator) Evaluate(p geo.Point, fences []domain.Geofence) ([]domain.ZoneStatus, error) {
	results := make([]domain.ZoneStatus, 0, len(fences))
	for i := range fences {
		status, err := e.evaluateOne(p, &fences[i])
		if err != nil {
			return nil, fmt.Errorf("geofence %s: %w", fences[i].ID, err)
		}
		results = append(results, status)
	}
	return results, nil
}

func (e *Evaluator) evaluateOne(p geo.Point, gf *domain.Geofence) (domain.ZoneStatus, error) {
	if err := gf.Validate(); err != nil {
		return domain.ZoneStatus{}, err
	}

	status := domain.ZoneStatus{GeofenceID: gf.ID}

	switch gf.Shape.Type {
	case domain.ShapeCircle:
		box, err := geo.BoundingBox(gf.Shape.Center, gf.Shape.RadiusMeters)
		if err != nil {
			return domain.ZoneStatus{}, err
		}
		dist, err := geo.Distance(p, gf.Shape.Center)
		if err != nil {
			return domain.ZoneStatus{}, err
		}
		if box.Contains(p) {
			status.Inside = dist <= gf.Shape.RadiusMeters
		}
		if !status.Inside && gf.Kind == domain.GeofenceInclusion {
			d := dist - gf.Shape.RadiusMeters
			status.DistanceToBoundary = &d
		}

	case domain.ShapePolygon:
		box, err := geo.PolygonBounds(gf.Shape.Vertices)
		if err != nil {
			return domain.ZoneStatus{}, err
		}
		if box.Contains(p) {
			inside, err := geo.PointInPolygon(p, gf.Shape.Vertices)
			if err != nil {
				return domain.ZoneStatus{}, err
			}
			status.Inside = inside
		} else if !validProbe(p) {
			// outside the box the exact test is skipped, so malformed
			// points must still be rejected here
			return domain.ZoneStatus{}, geo.ErrInvalidGeometry
		}
		if !status.Inside && gf.Kind == domain.GeofenceInclusion {
			d := minEdgeDistance(p, gf.Shape.Vertices)
			status.DistanceToBoundary = &d
		}
	}

	return status, nil
}

func validProbe(p geo.Point) bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

func minEdgeDistance(p geo.Point, vertices []geo.Point) float64 {
	minDist := math.MaxFloat64
	n := len(vertices)
	for i := 0; i < n; i++ {
		d := geo.DistanceToSegment(p, vertices[i], vertices[(i+1)%n])
		if d < minDist {
			minDist = d
		}
	}
	return minDist
}
