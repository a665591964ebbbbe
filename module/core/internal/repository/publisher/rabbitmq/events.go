package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/domain"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/internal/repository/publisher"
)

var _ publisher.EventPublisher = (*EventPublisher)(nil)

const exchangeName = "fleet.events"

// EventPublisher fans ingested and derived events out over a topic
// exchange. Routing keys are scoped per tracked entity so subscribers
// can bind to a single vehicle or delivery; the broker isolates slow or
// churning consumers from the publish path.
type EventPublisher struct {
	ch *amqp.Channel
}

func NewEventPublisher(conn *amqp.Connection) (*EventPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &EventPublisher{ch: ch}, nil
}

func (p *EventPublisher) Close() error {
	return p.ch.Close()
}

type locationEvent struct {
	Type       string  `json:"type"`
	ID         string  `json:"id"`
	EntityID   string  `json:"entity_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Speed      float64 `json:"speed"`
	Heading    float64 `json:"heading"`
	CapturedAt int64   `json:"captured_at"`
}

func (p *EventPublisher) PublishLocation(ctx context.Context, s *domain.LocationSample) error {
	msg := locationEvent{
		Type:       "location_update",
		ID:         s.ID,
		EntityID:   s.EntityID,
		Latitude:   s.Latitude,
		Longitude:  s.Longitude,
		Speed:      s.Speed,
		Heading:    s.Heading,
		CapturedAt: s.CapturedAt.Unix(),
	}
	key := fmt.Sprintf("entity.%s.location", s.EntityID)
	return p.publish(ctx, key, msg)
}

type geofenceEvent struct {
	Type       string  `json:"type"`
	ID         string  `json:"id"`
	EntityID   string  `json:"entity_id"`
	GeofenceID string  `json:"geofence_id"`
	Kind       string  `json:"kind"`
	At         int64   `json:"at"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

func (p *EventPublisher) PublishGeofenceEvent(ctx context.Context, e *domain.GeofenceEvent) error {
	msg := geofenceEvent{
		Type:       "geofence_event",
		ID:         e.ID,
		EntityID:   e.EntityID,
		GeofenceID: e.GeofenceID,
		Kind:       string(e.Kind),
		At:         e.At.Unix(),
		Latitude:   e.Location.Lat,
		Longitude:  e.Location.Lon,
	}
	key := fmt.Sprintf("entity.%s.geofence", e.EntityID)
	return p.publish(ctx, key, msg)
}

type deliveryEvent struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	DeliveryID string `json:"delivery_id"`
	NewStatus  string `json:"new_status"`
	CapturedAt int64  `json:"captured_at"`
}

func (p *EventPublisher) PublishDeliveryEvent(ctx context.Context, rec *domain.DeliveryUpdateRecord) error {
	msg := deliveryEvent{
		Type:       "delivery_status",
		ID:         rec.ID,
		DeliveryID: rec.DeliveryID,
		NewStatus:  string(rec.NewStatus),
		CapturedAt: rec.CapturedAt.Unix(),
	}
	key := fmt.Sprintf("delivery.%s.status", rec.DeliveryID)
	return p.publish(ctx, key, msg)
}

func (p *EventPublisher) publish(ctx context.Context, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.ch.PublishWithContext(ctx, exchangeName, key, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}
