package core

import (
	"database/sql"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	handler "github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/internal/handler/http"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/internal/handler/subscriber"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/internal/repository/database/postgres"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/internal/repository/publisher/rabbitmq"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/service"
)

type Module struct {
	IngestSvc  *service.IngestService
	handler    *handler.IngestHandler
	subscriber *subscriber.LocationSubscriber
}

func Build(db *sql.DB, amqpConn *amqp.Connection, mqttClient mqtt.Client, log logrus.FieldLogger) (*Module, error) {
	locationRepo := postgres.NewLocationRepo(db)
	deliveryRepo := postgres.NewDeliveryRepo(db)
	geofenceRepo := postgres.NewGeofenceRepo(db)

	eventPub, err := rabbitmq.NewEventPublisher(amqpConn)
	if err != nil {
		return nil, fmt.Errorf("event publisher: %w", err)
	}

	ingestSvc := service.NewIngestService(
		locationRepo,
		deliveryRepo,
		geofenceRepo,
		geofenceRepo,
		service.NewEvaluator(),
		eventPub,
		log,
	)

	h := handler.NewIngestHandler(ingestSvc)
	sub := subscriber.NewLocationSubscriber(mqttClient, ingestSvc, log)

	return &Module{
		IngestSvc:  ingestSvc,
		handler:    h,
		subscriber: sub,
	}, nil
}

func (m *Module) RegisterRoutes(r *gin.RouterGroup) {
	m.handler.Register(r)
}

func (m *Module) StartSubscribers() error {
	return m.subscriber.Start()
}
