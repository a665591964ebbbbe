// Package metrics holds the prometheus collectors shared by the server
// and the device agent.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SamplesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_location_samples_ingested_total",
		Help: "Location samples processed by the ingest service, by result.",
	}, []string{"result"})

	DeliveryUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_delivery_updates_total",
		Help: "Delivery status updates processed by the ingest service, by result.",
	}, []string{"result"})

	GeofenceEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_geofence_events_total",
		Help: "Edge-triggered geofence events emitted, by kind.",
	}, []string{"kind"})

	QueuePending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_sync_queue_pending",
		Help: "Records waiting in the local sync queue.",
	})

	QueueUsageBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_sync_queue_usage_bytes",
		Help: "Payload bytes held by the local sync queue.",
	})

	RecordsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_sync_records_dropped_total",
		Help: "Queued records dropped after exhausting their retry budget, by kind.",
	}, []string{"kind"})
)
