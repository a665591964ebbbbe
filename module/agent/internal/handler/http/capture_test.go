package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/blitzy-public-samples/goshare-fleet-tracking-y6kjv5-sub002/module/core/domain"
)

type mockJournal struct {
	enqueue      func(ctx context.Context, rec domain.Record) (string, error)
	pendingCount func(ctx context.Context) (int, error)
	usageBytes   func(ctx context.Context) (int64, error)
}

func (m *mockJournal) Enqueue(ctx context.Context, rec domain.Record) (string, error) {
	return m.enqueue(ctx, rec)
}
func (m *mockJournal) PendingCount(ctx context.Context) (int, error) {
	return m.pendingCount(ctx)
}
func (m *mockJournal) UsageBytes(ctx context.Context) (int64, error) {
	return m.usageBytes(ctx)
}

type mockKicker struct{ kicks int }

func (m *mockKicker) Kick() { m.kicks++ }

type stubConn struct{ online bool }

func (s *stubConn) Online() bool { return s.online }

func fixture(j *mockJournal, k *mockKicker, conn *stubConn) *gin.Engine {
	gin.SetMode(gin.TestMode)
	l := logrus.New()
	l.SetOutput(io.Discard)

	h := NewCaptureHandler(j, k, conn, l)
	h.now = func() time.Time { return time.Unix(1715000100, 0) }

	r := gin.New()
	h.Register(r)
	return r
}

func doRequest(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCaptureLocation_EnqueuesWithoutKick(t *testing.T) {
	var got domain.Record
	k := &mockKicker{}
	j := &mockJournal{
		enqueue: func(_ context.Context, rec domain.Record) (string, error) {
			got = rec
			return rec.ID(), nil
		},
	}
	r := fixture(j, k, &stubConn{})

	body := `{"id":"loc-1","entity_id":"B1234XYZ","latitude":-6.2,"longitude":106.8,"captured_at":1715000000}`
	w := doRequest(t, r, http.MethodPost, "/capture/location", body)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if got.Kind != domain.KindLocation || got.Location.ID != "loc-1" {
		t.Errorf("unexpected enqueued record: %+v", got)
	}
	if k.kicks != 0 {
		t.Errorf("location capture must not kick the syncer, got %d kicks", k.kicks)
	}
}

func TestCaptureLocation_AssignsIDWhenMissing(t *testing.T) {
	var got domain.Record
	j := &mockJournal{
		enqueue: func(_ context.Context, rec domain.Record) (string, error) {
			got = rec
			return rec.ID(), nil
		},
	}
	r := fixture(j, &mockKicker{}, &stubConn{})

	body := `{"entity_id":"B1234XYZ","latitude":-6.2,"longitude":106.8,"captured_at":1715000000}`
	w := doRequest(t, r, http.MethodPost, "/capture/location", body)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if got.Location.ID == "" {
		t.Error("expected a generated id")
	}
}

func TestCaptureLocation_RejectsInvalidSample(t *testing.T) {
	j := &mockJournal{
		enqueue: func(_ context.Context, _ domain.Record) (string, error) {
			t.Fatal("invalid sample must not be enqueued")
			return "", nil
		},
	}
	r := fixture(j, &mockKicker{}, &stubConn{})

	body := `{"id":"loc-1","entity_id":"B1234XYZ","latitude":95,"longitude":106.8,"captured_at":1715000000}`
	w := doRequest(t, r, http.MethodPost, "/capture/location", body)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestCaptureDelivery_KicksSyncer(t *testing.T) {
	k := &mockKicker{}
	j := &mockJournal{
		enqueue: func(_ context.Context, rec domain.Record) (string, error) {
			return rec.ID(), nil
		},
	}
	r := fixture(j, k, &stubConn{})

	body := `{"id":"upd-1","delivery_id":"d-1","new_status":"in_transit","captured_at":1715000000}`
	w := doRequest(t, r, http.MethodPost, "/capture/delivery", body)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if k.kicks != 1 {
		t.Errorf("expected exactly one kick, got %d", k.kicks)
	}
}

func TestCaptureProof_StorageExhausted(t *testing.T) {
	j := &mockJournal{
		enqueue: func(_ context.Context, _ domain.Record) (string, error) {
			return "", fmt.Errorf("%w: queue full", domain.ErrStorageExhausted)
		},
	}
	r := fixture(j, &mockKicker{}, &stubConn{})

	body := `{"id":"pod-1","delivery_id":"d-1","signature":"c2ln","captured_at":1715000000}`
	w := doRequest(t, r, http.MethodPost, "/capture/proof", body)

	if w.Code != http.StatusInsufficientStorage {
		t.Fatalf("expected 507, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCaptureProof_RequiresSignatureOrPhoto(t *testing.T) {
	j := &mockJournal{
		enqueue: func(_ context.Context, _ domain.Record) (string, error) {
			t.Fatal("invalid proof must not be enqueued")
			return "", nil
		},
	}
	r := fixture(j, &mockKicker{}, &stubConn{})

	body := `{"id":"pod-1","delivery_id":"d-1","captured_at":1715000000}`
	w := doRequest(t, r, http.MethodPost, "/capture/proof", body)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestStatus(t *testing.T) {
	j := &mockJournal{
		pendingCount: func(_ context.Context) (int, error) { return 7, nil },
		usageBytes:   func(_ context.Context) (int64, error) { return 4096, nil },
	}
	r := fixture(j, &mockKicker{}, &stubConn{online: true})

	w := doRequest(t, r, http.MethodGet, "/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	for _, want := range []string{`"online":true`, `"pending":7`, `"usage_bytes":4096`} {
		if !strings.Contains(w.Body.String(), want) {
			t.Errorf("expected %s in %s", want, w.Body.String())
		}
	}
}
