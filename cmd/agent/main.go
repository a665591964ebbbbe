package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/config"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/agent"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := config.NewLogger(cfg)

	agentModule, err := agent.Build(cfg.QueuePath, cfg.QueueMaxBytes, cfg.ServerURL, log)
	if err != nil {
		log.WithError(err).Fatal("agent module")
	}
	agentModule.Start()

	r := gin.Default()
	agentModule.RegisterRoutes(&r.RouterGroup)

	go func() {
		log.WithField("port", cfg.AgentHTTPPort).Info("capture API listening")
		if err := r.Run(":" + cfg.AgentHTTPPort); err != nil {
			log.WithError(err).Fatal("capture API")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	if err := agentModule.Stop(); err != nil {
		log.WithError(err).Error("stop agent module")
	}
}
