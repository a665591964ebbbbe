package domain

import (
	"fmt"
	"time"

	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/geo"
)

type DeliveryStatus string

const (
	DeliveryCreated   DeliveryStatus = "created"
	DeliveryAssigned  DeliveryStatus = "assigned"
	DeliveryPickedUp  DeliveryStatus = "picked_up"
	DeliveryInTransit DeliveryStatus = "in_transit"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryCreated:   {DeliveryAssigned, DeliveryFailed},
	DeliveryAssigned:  {DeliveryPickedUp, DeliveryFailed},
	DeliveryPickedUp:  {DeliveryInTransit, DeliveryDelivered, DeliveryFailed},
	DeliveryInTransit: {DeliveryDelivered, DeliveryFailed},
}

func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryCreated, DeliveryAssigned, DeliveryPickedUp, DeliveryInTransit, DeliveryDelivered, DeliveryFailed:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal step of
// the delivery state machine. Terminal states have no outgoing edges.
func (s DeliveryStatus) CanTransition(next DeliveryStatus) bool {
	for _, allowed := range deliveryTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// DeliveryUpdateRecord is one entry of a delivery's append-only status
// log. Status history is never edited in place.
type DeliveryUpdateRecord struct {
	ID               string         `json:"id"`
	DeliveryID       string         `json:"delivery_id"`
	NewStatus        DeliveryStatus `json:"new_status"`
	CapturedAt       time.Time      `json:"captured_at"`
	LocationAtUpdate *geo.Point     `json:"location_at_update,omitempty"`
}

func (r *DeliveryUpdateRecord) Validate(now time.Time) error {
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if r.DeliveryID == "" {
		return fmt.Errorf("%w: delivery_id is required", ErrValidation)
	}
	if !r.NewStatus.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, r.NewStatus)
	}
	if r.CapturedAt.IsZero() {
		return fmt.Errorf("%w: captured_at is required", ErrValidation)
	}
	if r.CapturedAt.After(now.Add(clockSkewGrace)) {
		return fmt.Errorf("%w: captured_at is in the future", ErrValidation)
	}
	if r.LocationAtUpdate != nil {
		if r.LocationAtUpdate.Lat < -90 || r.LocationAtUpdate.Lat > 90 ||
			r.LocationAtUpdate.Lon < -180 || r.LocationAtUpdate.Lon > 180 {
			return fmt.Errorf("%w: location_at_update out of range", ErrValidation)
		}
	}
	return nil
}

// ProofOfDeliveryRecord carries the signature and/or photos captured at
// handoff. Created once per completed delivery; immutable.
type ProofOfDeliveryRecord struct {
	ID            string    `json:"id"`
	DeliveryID    string    `json:"delivery_id"`
	SignatureBlob []byte    `json:"signature_blob,omitempty"`
	PhotoBlobs    [][]byte  `json:"photo_blobs,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	CapturedAt    time.Time `json:"captured_at"`
}

func (r *ProofOfDeliveryRecord) SizeBytes() int {
	total := len(r.SignatureBlob) + len(r.Notes)
	for _, p := range r.PhotoBlobs {
		total += len(p)
	}
	return total
}

// Validate enforces the proof invariants: a delivery reference, at least
// one of signature or photo, and a hard size cap. Oversized proofs are
// rejected outright rather than truncated.
func (r *ProofOfDeliveryRecord) Validate(now time.Time, maxBytes int) error {
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if r.DeliveryID == "" {
		return fmt.Errorf("%w: delivery_id is required", ErrValidation)
	}
	if len(r.SignatureBlob) == 0 && len(r.PhotoBlobs) == 0 {
		return fmt.Errorf("%w: proof requires a signature or at least one photo", ErrValidation)
	}
	if r.CapturedAt.IsZero() {
		return fmt.Errorf("%w: captured_at is required", ErrValidation)
	}
	if r.CapturedAt.After(now.Add(clockSkewGrace)) {
		return fmt.Errorf("%w: captured_at is in the future", ErrValidation)
	}
	if maxBytes > 0 && r.SizeBytes() > maxBytes {
		return fmt.Errorf("%w: proof exceeds %d bytes", ErrValidation, maxBytes)
	}
	return nil
}

// Delivery is the server's current view of a delivery, maintained by
// applying the newest DeliveryUpdateRecord (last writer wins by
// captured_at).
type Delivery struct {
	ID              string         `json:"id"`
	EntityID        string         `json:"entity_id"`
	Status          DeliveryStatus `json:"status"`
	StatusChangedAt time.Time      `json:"status_changed_at"`
}
