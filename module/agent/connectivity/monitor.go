// Package connectivity observes reachability of the sync backend and
// signals transitions to interested components. It only signals; it
// never touches the queue itself.
package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultInterval     = 10 * time.Second
	DefaultProbeTimeout = 3 * time.Second
)

// Prober reports nil when the backend is reachable.
type Prober func(ctx context.Context) error

// HTTPProbe checks the server health endpoint.
func HTTPProbe(baseURL string, client *http.Client) Prober {
	if client == nil {
		client = &http.Client{}
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/healthz", nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("health probe: status %d", resp.StatusCode)
		}
		return nil
	}
}

type Monitor struct {
	probe    Prober
	interval time.Duration
	timeout  time.Duration
	log      logrus.FieldLogger

	mu     sync.Mutex
	online bool
	known  bool
	subs   []chan bool

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func NewMonitor(probe Prober, interval time.Duration, log logrus.FieldLogger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		probe:    probe,
		interval: interval,
		timeout:  DefaultProbeTimeout,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Subscribe returns a channel receiving the new online state on every
// transition. Sends never block; a slow subscriber misses intermediate
// flips but always observes the latest pending state.
func (m *Monitor) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) Stop() {
	m.once.Do(func() { close(m.stop) })
	<-m.done
}

func (m *Monitor) loop() {
	defer close(m.done)

	m.check()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.check()
		case <-m.stop:
			return
		}
	}
}

func (m *Monitor) check() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	err := m.probe(ctx)
	online := err == nil

	m.mu.Lock()
	changed := !m.known || m.online != online
	m.online = online
	m.known = true
	var subs []chan bool
	if changed {
		subs = append(subs, m.subs...)
	}
	m.mu.Unlock()

	if !changed {
		return
	}
	if online {
		m.log.Info("connectivity restored")
	} else {
		m.log.WithError(err).Warn("connectivity lost")
	}
	for _, ch := range subs {
		select {
		case ch <- online:
		default:
			// replace a stale pending notification with the latest state
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- online:
			default:
			}
		}
	}
}
