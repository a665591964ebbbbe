package subscriber

import (
	"context"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/domain"
)

const topicPattern = "/fleet/vehicle/+/location"

type ingestService interface {
	IngestLocation(ctx context.Context, sample *domain.LocationSample) (*domain.Ack, error)
}

type locationMessage struct {
	ID        string  `json:"id"`
	VehicleID string  `json:"vehicle_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
	Heading   float64 `json:"heading"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp int64   `json:"timestamp"`
}

// LocationSubscriber is the live streaming ingest path: devices with
// connectivity publish fixes over MQTT and they flow through the same
// ingest service as the batched offline sync.
type LocationSubscriber struct {
	client mqtt.Client
	svc    ingestService
	log    logrus.FieldLogger
}

func NewLocationSubscriber(client mqtt.Client, svc ingestService, log logrus.FieldLogger) *LocationSubscriber {
	return &LocationSubscriber{client: client, svc: svc, log: log}
}

func (s *LocationSubscriber) Start() error {
	token := s.client.Subscribe(topicPattern, 1, s.handleMessage)
	token.Wait()
	return token.Error()
}

func (s *LocationSubscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var raw locationMessage
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		s.log.WithError(err).Warn("invalid location message")
		return
	}

	if raw.ID == "" {
		// streaming devices may omit ids; retries then lose idempotence,
		// which is acceptable for live fixes
		raw.ID = uuid.NewString()
	}

	sample := &domain.LocationSample{
		ID:         raw.ID,
		EntityID:   raw.VehicleID,
		Latitude:   raw.Latitude,
		Longitude:  raw.Longitude,
		Speed:      raw.Speed,
		Heading:    raw.Heading,
		Accuracy:   raw.Accuracy,
		CapturedAt: time.Unix(raw.Timestamp, 0),
	}

	if _, err := s.svc.IngestLocation(context.Background(), sample); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"entity_id": sample.EntityID,
			"sample_id": sample.ID,
		}).Warn("ingest streamed location failed")
	}
}
