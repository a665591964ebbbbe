package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/agent/queue"
	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/domain"
)

type mockJournal struct {
	peekBatch   func(ctx context.Context, maxN int) ([]queue.Entry, error)
	markSynced  func(ctx context.Context, ids []string) error
	markFailed  func(ctx context.Context, id string, cause string, nextRetryAt time.Time) error
	markDropped func(ctx context.Context, id string) error
	requeue     func(ctx context.Context, ids []string) error
}

func (m *mockJournal) PeekBatch(ctx context.Context, maxN int) ([]queue.Entry, error) {
	return m.peekBatch(ctx, maxN)
}
func (m *mockJournal) MarkSynced(ctx context.Context, ids []string) error {
	if m.markSynced == nil {
		return nil
	}
	return m.markSynced(ctx, ids)
}
func (m *mockJournal) MarkFailed(ctx context.Context, id string, cause string, nextRetryAt time.Time) error {
	if m.markFailed == nil {
		return nil
	}
	return m.markFailed(ctx, id, cause, nextRetryAt)
}
func (m *mockJournal) MarkDropped(ctx context.Context, id string) error {
	if m.markDropped == nil {
		return nil
	}
	return m.markDropped(ctx, id)
}
func (m *mockJournal) Requeue(ctx context.Context, ids []string) error {
	if m.requeue == nil {
		return nil
	}
	return m.requeue(ctx, ids)
}

type mockUploader struct {
	sendLocationBatch  func(ctx context.Context, samples []*domain.LocationSample) ([]domain.Ack, error)
	sendDeliveryUpdate func(ctx context.Context, rec *domain.DeliveryUpdateRecord) error
	sendProof          func(ctx context.Context, rec *domain.ProofOfDeliveryRecord) error
}

func (m *mockUploader) SendLocationBatch(ctx context.Context, samples []*domain.LocationSample) ([]domain.Ack, error) {
	return m.sendLocationBatch(ctx, samples)
}
func (m *mockUploader) SendDeliveryUpdate(ctx context.Context, rec *domain.DeliveryUpdateRecord) error {
	return m.sendDeliveryUpdate(ctx, rec)
}
func (m *mockUploader) SendProof(ctx context.Context, rec *domain.ProofOfDeliveryRecord) error {
	return m.sendProof(ctx, rec)
}

type stubConn struct {
	mu     sync.Mutex
	online bool
	ch     chan bool
}

func (s *stubConn) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}
func (s *stubConn) Subscribe() <-chan bool {
	if s.ch == nil {
		s.ch = make(chan bool, 1)
	}
	return s.ch
}
func (s *stubConn) set(online bool) {
	s.mu.Lock()
	s.online = online
	s.mu.Unlock()
}

type mockSink struct {
	mu      sync.Mutex
	reports []string
}

func (m *mockSink) Report(kind string, fields map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, fmt.Sprintf("%s:%v", kind, fields["record_id"]))
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func locationEntry(id string, enqueuedAt time.Time) queue.Entry {
	return queue.Entry{
		Record: domain.NewLocationRecord(&domain.LocationSample{
			ID:         id,
			EntityID:   "B1234XYZ",
			Latitude:   -6.2,
			Longitude:  106.8,
			CapturedAt: enqueuedAt,
		}),
		EnqueuedAt: enqueuedAt,
	}
}

func deliveryEntry(id string, retryCount int, enqueuedAt time.Time) queue.Entry {
	return queue.Entry{
		Record: domain.NewDeliveryRecord(&domain.DeliveryUpdateRecord{
			ID:         id,
			DeliveryID: "d-1",
			NewStatus:  domain.DeliveryDelivered,
			CapturedAt: enqueuedAt,
		}),
		RetryCount: retryCount,
		EnqueuedAt: enqueuedAt,
	}
}

func fixture(j Journal, u Uploader, conn Connectivity, sink *mockSink) *Coordinator {
	if sink == nil {
		sink = &mockSink{}
	}
	c := NewCoordinator(j, u, conn, sink, discardLogger())
	c.now = func() time.Time { return time.Unix(1715000000, 0) }
	return c
}

// batches hands out each prepared batch once, then empties.
func batches(b ...[]queue.Entry) func(ctx context.Context, maxN int) ([]queue.Entry, error) {
	i := 0
	return func(_ context.Context, _ int) ([]queue.Entry, error) {
		if i >= len(b) {
			return nil, nil
		}
		out := b[i]
		i++
		return out, nil
	}
}

func TestDrain_SyncsLocationsAsOneBatch(t *testing.T) {
	now := time.Unix(1715000000, 0)
	var synced []string
	var sent int
	j := &mockJournal{
		peekBatch: batches([]queue.Entry{
			locationEntry("a", now), locationEntry("b", now), deliveryEntry("upd-1", 0, now),
		}),
		markSynced: func(_ context.Context, ids []string) error {
			synced = append(synced, ids...)
			return nil
		},
	}
	u := &mockUploader{
		sendLocationBatch: func(_ context.Context, samples []*domain.LocationSample) ([]domain.Ack, error) {
			sent = len(samples)
			acks := make([]domain.Ack, len(samples))
			for i, s := range samples {
				acks[i] = domain.Ack{ID: s.ID, Status: domain.AckOK}
			}
			return acks, nil
		},
		sendDeliveryUpdate: func(_ context.Context, _ *domain.DeliveryUpdateRecord) error { return nil },
	}

	c := fixture(j, u, &stubConn{online: true}, nil)
	c.Drain(context.Background())

	if sent != 2 {
		t.Errorf("expected 2 samples in one batch call, got %d", sent)
	}
	if len(synced) != 3 {
		t.Fatalf("expected 3 synced ids, got %v", synced)
	}
}

func TestDrain_OfflineIsNoop(t *testing.T) {
	j := &mockJournal{
		peekBatch: func(_ context.Context, _ int) ([]queue.Entry, error) {
			t.Fatal("must not touch the queue while offline")
			return nil, nil
		},
	}
	c := fixture(j, &mockUploader{}, &stubConn{online: false}, nil)
	c.Drain(context.Background())
}

func TestDrain_ConflictDiscardsWithoutReport(t *testing.T) {
	now := time.Unix(1715000000, 0)
	var dropped []string
	j := &mockJournal{
		peekBatch: batches([]queue.Entry{deliveryEntry("upd-1", 0, now)}),
		markDropped: func(_ context.Context, id string) error {
			dropped = append(dropped, id)
			return nil
		},
	}
	u := &mockUploader{
		sendDeliveryUpdate: func(_ context.Context, _ *domain.DeliveryUpdateRecord) error {
			return fmt.Errorf("%w: newer state exists", domain.ErrConflict)
		},
	}
	sink := &mockSink{}

	c := fixture(j, u, &stubConn{online: true}, sink)
	c.Drain(context.Background())

	if len(dropped) != 1 || dropped[0] != "upd-1" {
		t.Fatalf("expected upd-1 dropped, got %v", dropped)
	}
	if len(sink.reports) != 0 {
		t.Errorf("conflict discard must not raise a report, got %v", sink.reports)
	}
}

func TestDrain_TransientFailureSchedulesBackoff(t *testing.T) {
	now := time.Unix(1715000000, 0)
	var gotDelay time.Duration
	j := &mockJournal{
		peekBatch: batches([]queue.Entry{deliveryEntry("upd-1", 2, now)}),
		markFailed: func(_ context.Context, id string, cause string, nextRetryAt time.Time) error {
			gotDelay = nextRetryAt.Sub(now)
			return nil
		},
	}
	u := &mockUploader{
		sendDeliveryUpdate: func(_ context.Context, _ *domain.DeliveryUpdateRecord) error {
			return fmt.Errorf("%w: 503", domain.ErrUnavailable)
		},
	}

	c := fixture(j, u, &stubConn{online: true}, nil)
	c.Drain(context.Background())

	// retry 2 backs off 1s << 2
	if gotDelay != 4*time.Second {
		t.Errorf("expected 4s backoff, got %v", gotDelay)
	}
}

func TestDrain_RetryCeilingDropsWithSingleReport(t *testing.T) {
	now := time.Unix(1715000000, 0)
	var dropped []string
	j := &mockJournal{
		peekBatch: batches([]queue.Entry{deliveryEntry("upd-1", maxRetries, now)}),
		markDropped: func(_ context.Context, id string) error {
			dropped = append(dropped, id)
			return nil
		},
		markFailed: func(_ context.Context, _ string, _ string, _ time.Time) error {
			t.Fatal("record past the ceiling must not be retried")
			return nil
		},
	}
	u := &mockUploader{
		sendDeliveryUpdate: func(_ context.Context, _ *domain.DeliveryUpdateRecord) error {
			return fmt.Errorf("%w: 503", domain.ErrUnavailable)
		},
	}
	sink := &mockSink{}

	c := fixture(j, u, &stubConn{online: true}, sink)
	c.Drain(context.Background())

	if len(dropped) != 1 {
		t.Fatalf("expected 1 drop, got %v", dropped)
	}
	if len(sink.reports) != 1 || sink.reports[0] != "dropped:upd-1" {
		t.Fatalf("expected exactly one dropped report, got %v", sink.reports)
	}
}

func TestDrain_AgeCeilingDrops(t *testing.T) {
	now := time.Unix(1715000000, 0)
	stale := now.Add(-25 * time.Hour)
	var dropped []string
	j := &mockJournal{
		peekBatch: batches([]queue.Entry{deliveryEntry("upd-1", 1, stale)}),
		markDropped: func(_ context.Context, id string) error {
			dropped = append(dropped, id)
			return nil
		},
	}
	u := &mockUploader{
		sendDeliveryUpdate: func(_ context.Context, _ *domain.DeliveryUpdateRecord) error {
			return fmt.Errorf("%w: 503", domain.ErrUnavailable)
		},
	}
	sink := &mockSink{}

	c := fixture(j, u, &stubConn{online: true}, sink)
	c.Drain(context.Background())

	if len(dropped) != 1 {
		t.Fatalf("expected stale record dropped, got %v", dropped)
	}
	if len(sink.reports) != 1 {
		t.Errorf("expected a dropped report, got %v", sink.reports)
	}
}

func TestDrain_RejectedLocationDiscardedSilently(t *testing.T) {
	now := time.Unix(1715000000, 0)
	var synced, dropped []string
	j := &mockJournal{
		peekBatch: batches([]queue.Entry{locationEntry("a", now), locationEntry("b", now)}),
		markSynced: func(_ context.Context, ids []string) error {
			synced = append(synced, ids...)
			return nil
		},
		markDropped: func(_ context.Context, id string) error {
			dropped = append(dropped, id)
			return nil
		},
	}
	u := &mockUploader{
		sendLocationBatch: func(_ context.Context, samples []*domain.LocationSample) ([]domain.Ack, error) {
			return []domain.Ack{
				{ID: "a", Status: domain.AckOK},
				{ID: "b", Status: domain.AckRejected, Kind: "validation"},
			}, nil
		},
	}
	sink := &mockSink{}

	c := fixture(j, u, &stubConn{online: true}, sink)
	c.Drain(context.Background())

	if len(synced) != 1 || synced[0] != "a" {
		t.Errorf("expected a synced, got %v", synced)
	}
	if len(dropped) != 1 || dropped[0] != "b" {
		t.Errorf("expected b dropped, got %v", dropped)
	}
	if len(sink.reports) != 0 {
		t.Errorf("rejected location samples must not raise reports, got %v", sink.reports)
	}
}

func TestDrain_ConnectivityLossRequeuesRemainder(t *testing.T) {
	now := time.Unix(1715000000, 0)
	conn := &stubConn{online: true}
	var requeued []string
	j := &mockJournal{
		peekBatch: batches([]queue.Entry{
			deliveryEntry("upd-1", 0, now), deliveryEntry("upd-2", 0, now), deliveryEntry("upd-3", 0, now),
		}),
		requeue: func(_ context.Context, ids []string) error {
			requeued = append(requeued, ids...)
			return nil
		},
	}
	u := &mockUploader{
		sendDeliveryUpdate: func(_ context.Context, _ *domain.DeliveryUpdateRecord) error {
			conn.set(false) // link drops after the first send
			return nil
		},
	}

	c := fixture(j, u, conn, nil)
	c.Drain(context.Background())

	if len(requeued) != 2 {
		t.Fatalf("expected 2 requeued records, got %v", requeued)
	}
}

func TestLoop_DrainsOnReconnect(t *testing.T) {
	conn := &stubConn{online: false, ch: make(chan bool, 1)}
	drained := make(chan struct{}, 1)
	j := &mockJournal{
		peekBatch: func(_ context.Context, _ int) ([]queue.Entry, error) {
			select {
			case drained <- struct{}{}:
			default:
			}
			return nil, nil
		},
	}

	c := fixture(j, &mockUploader{}, conn, nil)
	c.interval = time.Hour
	c.Start()
	defer c.Stop()

	conn.set(true)
	conn.ch <- true

	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("expected a drain pass after reconnect")
	}
}

func TestLoop_KickTriggersDrain(t *testing.T) {
	conn := &stubConn{online: true, ch: make(chan bool, 1)}
	drained := make(chan struct{}, 1)
	j := &mockJournal{
		peekBatch: func(_ context.Context, _ int) ([]queue.Entry, error) {
			select {
			case drained <- struct{}{}:
			default:
			}
			return nil, nil
		},
	}

	c := fixture(j, &mockUploader{}, conn, nil)
	c.interval = time.Hour
	c.Start()
	defer c.Stop()

	c.Kick()

	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("expected a drain pass after a kick")
	}
}

func TestSendLocations_WholeBatchUnavailableStopsPass(t *testing.T) {
	now := time.Unix(1715000000, 0)
	peeks := 0
	var failed []string
	j := &mockJournal{
		peekBatch: func(_ context.Context, _ int) ([]queue.Entry, error) {
			peeks++
			if peeks > 1 {
				t.Fatal("pass must stop after an unavailable batch")
			}
			return []queue.Entry{locationEntry("a", now)}, nil
		},
		markFailed: func(_ context.Context, id string, _ string, _ time.Time) error {
			failed = append(failed, id)
			return nil
		},
	}
	u := &mockUploader{
		sendLocationBatch: func(_ context.Context, _ []*domain.LocationSample) ([]domain.Ack, error) {
			return nil, fmt.Errorf("%w: connection refused", domain.ErrUnavailable)
		},
	}

	c := fixture(j, u, &stubConn{online: true}, nil)
	c.Drain(context.Background())

	if len(failed) != 1 {
		t.Errorf("expected the sample scheduled for retry, got %v", failed)
	}
}

func TestDrain_PeekErrorStopsPass(t *testing.T) {
	j := &mockJournal{
		peekBatch: func(_ context.Context, _ int) ([]queue.Entry, error) {
			return nil, errors.New("disk gone")
		},
	}
	c := fixture(j, &mockUploader{}, &stubConn{online: true}, nil)
	c.Drain(context.Background()) // must not panic or loop forever
}
