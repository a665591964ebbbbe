package publisher

import (
	"context"

	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/domain"
)

// EventPublisher is the broadcast fan-out: best effort, no replay. One
// topic per tracked entity; durable history lives in the ingest store.
type EventPublisher interface {
	PublishLocation(ctx context.Context, sample *domain.LocationSample) error
	PublishGeofenceEvent(ctx context.Context, event *domain.GeofenceEvent) error
	PublishDeliveryEvent(ctx context.Context, rec *domain.DeliveryUpdateRecord) error
}
