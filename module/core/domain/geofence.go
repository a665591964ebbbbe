package domain

import (
	"fmt"
	"time"

	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/geo"
)

type GeofenceKind string

const (
	GeofenceInclusion GeofenceKind = "inclusion"
	GeofenceExclusion GeofenceKind = "exclusion"
)

type ShapeType string

const (
	ShapeCircle  ShapeType = "circle"
	ShapePolygon ShapeType = "polygon"
)

// Shape is the geometry of a geofence, tagged by Type. Exactly one of
// the circle fields or Vertices is meaningful.
type Shape struct {
	Type         ShapeType   `json:"type"`
	Center       geo.Point   `json:"center,omitempty"`
	RadiusMeters float64     `json:"radius_meters,omitempty"`
	Vertices     []geo.Point `json:"vertices,omitempty"`
}

// Geofence definitions are owned by the fleet-management collaborator
// and read-only here. Polygon self-intersection and winding order are
// the definition owner's responsibility and are not validated at
// evaluation time.
type Geofence struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Kind  GeofenceKind `json:"kind"`
	Shape Shape        `json:"shape"`
}

func (g *Geofence) Validate() error {
	switch g.Shape.Type {
	case ShapeCircle:
		if g.Shape.RadiusMeters <= 0 {
			return fmt.Errorf("%w: circle radius must be positive", ErrInvalidGeometry)
		}
	case ShapePolygon:
		if len(g.Shape.Vertices) < 3 {
			return fmt.Errorf("%w: polygon requires at least 3 vertices", ErrInvalidGeometry)
		}
	default:
		return fmt.Errorf("%w: unknown shape type %q", ErrInvalidGeometry, g.Shape.Type)
	}
	if g.Kind != GeofenceInclusion && g.Kind != GeofenceExclusion {
		return fmt.Errorf("%w: unknown geofence kind %q", ErrValidation, g.Kind)
	}
	return nil
}

type GeofenceEventKind string

const (
	GeofenceEnter     GeofenceEventKind = "enter"
	GeofenceExit      GeofenceEventKind = "exit"
	GeofenceViolation GeofenceEventKind = "violation"
)

// GeofenceEvent is derived and append-only. Events are edge-triggered:
// one is produced only when a sample changes an entity's containment
// state relative to a geofence.
type GeofenceEvent struct {
	ID         string            `json:"id"`
	EntityID   string            `json:"entity_id"`
	GeofenceID string            `json:"geofence_id"`
	Kind       GeofenceEventKind `json:"kind"`
	At         time.Time         `json:"at"`
	Location   geo.Point         `json:"location"`
}

// ZoneStatus is one geofence's evaluation result for a point.
// DistanceToBoundary is set only when the point is outside an inclusion
// zone; it is advisory precision for alert severity, not containment.
type ZoneStatus struct {
	GeofenceID         string   `json:"geofence_id"`
	Inside             bool     `json:"inside"`
	DistanceToBoundary *float64 `json:"distance_to_boundary,omitempty"`
}
