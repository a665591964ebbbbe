// Package syncer drains the durable queue to the server whenever
// connectivity allows. A single goroutine owns the drain; triggers
// coalesce, so concurrent kicks cost at most one extra pass.
package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/internal/metrics"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/agent/queue"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/agent/report"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/domain"
)

const (
	DefaultBatchSize = 50
	DefaultInterval  = 30 * time.Second

	backoffBase = time.Second
	backoffCap  = 30 * time.Second

	// a record past either ceiling is dropped instead of retried
	maxRetries = 5
	maxAge     = 24 * time.Hour
)

// Journal is the durable queue surface the coordinator drives.
type Journal interface {
	PeekBatch(ctx context.Context, maxN int) ([]queue.Entry, error)
	MarkSynced(ctx context.Context, ids []string) error
	MarkFailed(ctx context.Context, id string, cause string, nextRetryAt time.Time) error
	MarkDropped(ctx context.Context, id string) error
	Requeue(ctx context.Context, ids []string) error
}

// Uploader ships records to the server ingest API.
type Uploader interface {
	SendLocationBatch(ctx context.Context, samples []*domain.LocationSample) ([]domain.Ack, error)
	SendDeliveryUpdate(ctx context.Context, rec *domain.DeliveryUpdateRecord) error
	SendProof(ctx context.Context, rec *domain.ProofOfDeliveryRecord) error
}

// Connectivity reports backend reachability.
type Connectivity interface {
	Online() bool
	Subscribe() <-chan bool
}

type Coordinator struct {
	journal   Journal
	uploader  Uploader
	conn      Connectivity
	sink      report.Sink
	log       logrus.FieldLogger
	batchSize int
	interval  time.Duration
	now       func() time.Time

	trigger chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

func NewCoordinator(journal Journal, uploader Uploader, conn Connectivity, sink report.Sink, log logrus.FieldLogger) *Coordinator {
	return &Coordinator{
		journal:   journal,
		uploader:  uploader,
		conn:      conn,
		sink:      sink,
		log:       log,
		batchSize: DefaultBatchSize,
		interval:  DefaultInterval,
		now:       time.Now,
		trigger:   make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Kick requests a drain pass. Safe from any goroutine; kicks while a
// pass is already pending are merged.
func (c *Coordinator) Kick() {
	select {
	case c.trigger <- struct{}{}:
	default:
	}
}

func (c *Coordinator) Start() {
	go c.loop()
}

func (c *Coordinator) Stop() {
	close(c.stop)
	<-c.done
}

func (c *Coordinator) loop() {
	defer close(c.done)

	reconnect := c.conn.Subscribe()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.trigger:
			c.Drain(context.Background())
		case <-ticker.C:
			c.Drain(context.Background())
		case online := <-reconnect:
			if online {
				c.Drain(context.Background())
			}
		case <-c.stop:
			return
		}
	}
}

// Drain pushes due records until the queue is empty, the backend goes
// unreachable, or the context ends. Loss of connectivity mid-pass
// requeues whatever was claimed but not yet attempted.
func (c *Coordinator) Drain(ctx context.Context) {
	for {
		if ctx.Err() != nil || !c.conn.Online() {
			return
		}

		entries, err := c.journal.PeekBatch(ctx, c.batchSize)
		if err != nil {
			c.log.WithError(err).Error("peek sync batch")
			return
		}
		if len(entries) == 0 {
			return
		}

		if !c.drainBatch(ctx, entries) {
			return
		}
	}
}

// drainBatch returns false when the pass should end early.
func (c *Coordinator) drainBatch(ctx context.Context, entries []queue.Entry) bool {
	var locations []queue.Entry
	var critical []queue.Entry
	for _, e := range entries {
		if e.Record.Kind == domain.KindLocation {
			locations = append(locations, e)
		} else {
			critical = append(critical, e)
		}
	}

	if len(locations) > 0 {
		if !c.sendLocations(ctx, locations) {
			c.requeue(ctx, critical)
			return false
		}
	}

	for i, e := range critical {
		if ctx.Err() != nil || !c.conn.Online() {
			c.requeue(ctx, critical[i:])
			return false
		}
		if !c.sendCritical(ctx, e) {
			c.requeue(ctx, critical[i+1:])
			return false
		}
	}
	return true
}

func (c *Coordinator) sendLocations(ctx context.Context, entries []queue.Entry) bool {
	samples := make([]*domain.LocationSample, len(entries))
	for i, e := range entries {
		samples[i] = e.Record.Location
	}

	acks, err := c.uploader.SendLocationBatch(ctx, samples)
	if err != nil {
		for _, e := range entries {
			c.recordFailure(ctx, e, err)
		}
		// a whole-batch failure means the backend is struggling
		return !errors.Is(err, domain.ErrUnavailable)
	}

	var synced []string
	for i, ack := range acks {
		switch ack.Status {
		case domain.AckOK:
			synced = append(synced, ack.ID)
		default:
			c.discard(ctx, entries[i], "rejected by server: "+ack.Kind)
		}
	}
	if len(synced) > 0 {
		if err := c.journal.MarkSynced(ctx, synced); err != nil {
			c.log.WithError(err).Error("mark records synced")
		}
	}
	return true
}

func (c *Coordinator) sendCritical(ctx context.Context, e queue.Entry) bool {
	var err error
	switch e.Record.Kind {
	case domain.KindDelivery:
		err = c.uploader.SendDeliveryUpdate(ctx, e.Record.Delivery)
	case domain.KindProof:
		err = c.uploader.SendProof(ctx, e.Record.Proof)
	}

	switch {
	case err == nil:
		if err := c.journal.MarkSynced(ctx, []string{e.Record.ID()}); err != nil {
			c.log.WithError(err).Error("mark record synced")
		}
		return true
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrNotFound):
		// superseded or orphaned on the server; keeping it would wedge the queue
		c.log.WithFields(logrus.Fields{
			"record_id": e.Record.ID(),
			"kind":      e.Record.Kind,
		}).WithError(err).Info("discarding superseded record")
		if err := c.journal.MarkDropped(ctx, e.Record.ID()); err != nil {
			c.log.WithError(err).Error("drop superseded record")
		}
		return true
	case errors.Is(err, domain.ErrValidation):
		c.discard(ctx, e, err.Error())
		return true
	default:
		c.recordFailure(ctx, e, err)
		return !errors.Is(err, domain.ErrUnavailable)
	}
}

// recordFailure schedules a retry, or gives up once a ceiling is hit.
func (c *Coordinator) recordFailure(ctx context.Context, e queue.Entry, cause error) {
	age := c.now().Sub(e.EnqueuedAt)
	if e.RetryCount >= maxRetries || age > maxAge {
		c.discard(ctx, e, cause.Error())
		return
	}

	delay := backoffBase << e.RetryCount
	if delay > backoffCap {
		delay = backoffCap
	}
	if err := c.journal.MarkFailed(ctx, e.Record.ID(), cause.Error(), c.now().Add(delay)); err != nil {
		c.log.WithError(err).Error("mark record failed")
	}
}

// discard removes a record for good. Critical records raise exactly one
// report; location samples go quietly, they age out of relevance anyway.
func (c *Coordinator) discard(ctx context.Context, e queue.Entry, cause string) {
	if err := c.journal.MarkDropped(ctx, e.Record.ID()); err != nil {
		c.log.WithError(err).Error("drop record")
		return
	}
	metrics.RecordsDropped.WithLabelValues(string(e.Record.Kind)).Inc()

	if e.Record.Critical() {
		c.sink.Report(report.KindDropped, map[string]any{
			"record_id":   e.Record.ID(),
			"kind":        string(e.Record.Kind),
			"retry_count": e.RetryCount,
			"cause":       cause,
		})
	}
}

func (c *Coordinator) requeue(ctx context.Context, entries []queue.Entry) {
	if len(entries) == 0 {
		return
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.Record.ID()
	}
	if err := c.journal.Requeue(ctx, ids); err != nil {
		c.log.WithError(err).Error("requeue unsent records")
	}
}
