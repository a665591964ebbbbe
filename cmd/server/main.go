package main

import (
	"github.com/gin-gonic/gin"

	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/config"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := config.NewLogger(cfg)

	db, err := config.NewPostgres(cfg)
	if err != nil {
		log.WithError(err).Fatal("postgres")
	}
	defer func() { _ = db.Close() }()

	amqpConn, err := config.NewRabbitMQ(cfg)
	if err != nil {
		log.WithError(err).Fatal("rabbitmq")
	}
	defer func() { _ = amqpConn.Close() }()

	mqttClient, err := config.NewMQTT(cfg)
	if err != nil {
		log.WithError(err).Fatal("mqtt")
	}
	defer mqttClient.Disconnect(250)

	coreModule, err := core.Build(db, amqpConn, mqttClient, log)
	if err != nil {
		log.WithError(err).Fatal("core module")
	}

	if err := coreModule.StartSubscribers(); err != nil {
		log.WithError(err).Fatal("start subscribers")
	}

	r := gin.Default()

	health := config.NewHealthChecker(db, amqpConn, mqttClient)
	health.Register(r)

	coreModule.RegisterRoutes(&r.RouterGroup)

	log.WithField("port", cfg.HTTPPort).Info("listening")
	if err := r.Run(":" + cfg.HTTPPort); err != nil {
		log.WithError(err).Fatal("server")
	}
}
