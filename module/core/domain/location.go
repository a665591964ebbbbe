package domain

import (
	"fmt"
	"time"

	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/geo"
)

// clockSkewGrace tolerates small device clock drift when checking that
// capture timestamps are not in the future.
const clockSkewGrace = 2 * time.Minute

// LocationSample is one GPS fix captured on a device. Immutable once
// created; identified by a client-generated id so server ingestion is
// idempotent across retries.
type LocationSample struct {
	ID         string    `json:"id"`
	EntityID   string    `json:"entity_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Speed      float64   `json:"speed"`
	Heading    float64   `json:"heading"`
	Accuracy   float64   `json:"accuracy"`
	CapturedAt time.Time `json:"captured_at"`
}

func (s *LocationSample) Point() geo.Point {
	return geo.Point{Lat: s.Latitude, Lon: s.Longitude}
}

func (s *LocationSample) Validate(now time.Time) error {
	if s.ID == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if s.EntityID == "" {
		return fmt.Errorf("%w: entity_id is required", ErrValidation)
	}
	if s.Latitude < -90 || s.Latitude > 90 {
		return fmt.Errorf("%w: latitude must be between -90 and 90", ErrValidation)
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		return fmt.Errorf("%w: longitude must be between -180 and 180", ErrValidation)
	}
	if s.CapturedAt.IsZero() {
		return fmt.Errorf("%w: captured_at is required", ErrValidation)
	}
	if s.CapturedAt.After(now.Add(clockSkewGrace)) {
		return fmt.Errorf("%w: captured_at is in the future", ErrValidation)
	}
	return nil
}

const (
	AckOK       = "ok"
	AckRejected = "rejected"
)

// Ack correlates a server acknowledgment with the submitted record id.
// In batch responses acks appear in input order; Kind carries the
// machine-readable error kind for rejected records.
type Ack struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Kind   string `json:"kind,omitempty"`
}

type Vehicle struct {
	EntityID string `json:"entity_id"`
}

type HistoryQuery struct {
	EntityID string
	Start    time.Time
	End      time.Time
}
