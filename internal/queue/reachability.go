package queue

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Reachability reports whether uploads can currently reach the network.
type Reachability interface {
	Online() bool
}

// ReachabilityFunc adapts a function to Reachability.
type ReachabilityFunc func() bool

// Online calls f.
func (f ReachabilityFunc) Online() bool { return f() }

// MonitorConfig configures an HTTP reachability probe.
type MonitorConfig struct {
	URL      string
	Interval time.Duration
	Timeout  time.Duration
}

// Monitor polls a URL and tracks online/offline transitions.
type Monitor struct {
	probe     func(ctx context.Context) bool
	logger    *slog.Logger
	metrics   *Metrics
	listeners map[chan bool]struct{}
	interval  time.Duration
	online    atomic.Bool
	mu        sync.Mutex
}

// NewMonitor creates a monitor that HEADs cfg.URL. Any HTTP response counts as
// online; transport errors count as offline. The monitor starts offline until
// the first probe.
func NewMonitor(cfg MonitorConfig, logger *slog.Logger, metrics *Metrics) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := &http.Client{Timeout: cfg.Timeout}

	probe := func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, cfg.URL, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return true
	}

	return newMonitor(probe, cfg.Interval, logger, metrics)
}

func newMonitor(probe func(ctx context.Context) bool, interval time.Duration, logger *slog.Logger, metrics *Metrics) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		probe:     probe,
		interval:  interval,
		logger:    logger,
		metrics:   metrics,
		listeners: make(map[chan bool]struct{}),
	}
}

// Online returns the last probed state.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Changes delivers the new state after each transition until ctx is done.
func (m *Monitor) Changes(ctx context.Context) <-chan bool {
	ch := make(chan bool, 1)

	m.mu.Lock()
	m.listeners[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.listeners, ch)
		m.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Check probes once and notifies listeners if the state changed.
func (m *Monitor) Check(ctx context.Context) bool {
	online := m.probe(ctx)
	m.metrics.SetOnline(online)

	if m.online.Swap(online) == online {
		return online
	}

	m.logger.Info("Network state changed", "online", online)

	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.listeners {
		// Keep only the latest state for slow listeners.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- online:
		default:
		}
	}
	return online
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
