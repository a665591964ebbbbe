// Package agent assembles the on-device side: durable capture, a
// connectivity monitor, and the sync coordinator that drains the queue
// to the server.
package agent

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/agent/connectivity"
	handler "github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/agent/internal/handler/http"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/agent/queue"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/agent/remote"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/agent/report"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/agent/syncer"
)

type Module struct {
	Queue       *queue.Queue
	Monitor     *connectivity.Monitor
	Coordinator *syncer.Coordinator
	handler     *handler.CaptureHandler
}

func Build(queuePath string, queueMaxBytes int64, serverURL string, log logrus.FieldLogger) (*Module, error) {
	q, err := queue.Open(queuePath, queueMaxBytes, log)
	if err != nil {
		return nil, fmt.Errorf("open sync queue: %w", err)
	}

	monitor := connectivity.NewMonitor(
		connectivity.HTTPProbe(serverURL, &http.Client{}),
		connectivity.DefaultInterval,
		log,
	)
	client := remote.NewClient(serverURL, remote.DefaultTimeout)
	coordinator := syncer.NewCoordinator(q, client, monitor, report.NewLogSink(log), log)
	h := handler.NewCaptureHandler(q, coordinator, monitor, log)

	return &Module{
		Queue:       q,
		Monitor:     monitor,
		Coordinator: coordinator,
		handler:     h,
	}, nil
}

func (m *Module) RegisterRoutes(r *gin.RouterGroup) {
	m.handler.Register(r)
}

// Start brings up the monitor first so the coordinator sees a usable
// connectivity state on its first pass.
func (m *Module) Start() {
	m.Monitor.Start()
	m.Coordinator.Start()
}

func (m *Module) Stop() error {
	m.Coordinator.Stop()
	m.Monitor.Stop()
	return m.Queue.Close()
}
