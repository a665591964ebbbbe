package database

import (
	"context"

	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/domain"
)

type LocationRepository interface {
	// InsertSample persists a sample. Reinserting an already stored id is
	// a no-op and reports inserted=false so ingestion stays idempotent.
	InsertSample(ctx context.Context, sample *domain.LocationSample) (inserted bool, err error)
	GetLatest(ctx context.Context, entityID string) (*domain.LocationSample, error)
	GetHistory(ctx context.Context, query *domain.HistoryQuery) ([]domain.LocationSample, error)
	GetAllVehicles(ctx context.Context) ([]domain.Vehicle, error)
}

type DeliveryRepository interface {
	GetDelivery(ctx context.Context, deliveryID string) (*domain.Delivery, error)
	// ApplyStatusUpdate performs the last-writer-wins compare-and-swap:
	// the update is applied and logged only if the stored status timestamp
	// is not newer than the record's. Returns domain.ErrConflict when the
	// stored copy is strictly newer, domain.ErrNotFound when the delivery
	// does not exist.
	ApplyStatusUpdate(ctx context.Context, rec *domain.DeliveryUpdateRecord) error
	// InsertProof is idempotent by record id, like InsertSample.
	InsertProof(ctx context.Context, rec *domain.ProofOfDeliveryRecord) (inserted bool, err error)
}

type GeofenceRepository interface {
	// ActiveForEntity returns the geofences the entity is evaluated
	// against. Definitions are owned by fleet management; read-only here.
	ActiveForEntity(ctx context.Context, entityID string) ([]domain.Geofence, error)
}

type GeofenceStateRepository interface {
	// GetContainment returns geofence id -> inside for the entity's last
	// known containment state.
	GetContainment(ctx context.Context, entityID string) (map[string]bool, error)
	SetContainment(ctx context.Context, entityID, geofenceID string, inside bool) error
	InsertEvent(ctx context.Context, event *domain.GeofenceEvent) error
}
