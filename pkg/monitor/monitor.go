// Package monitor tracks connectivity state and coarse link quality.
// It is the single source of truth for online/offline: the offline
// queue and the retry engine both subscribe to it and never inspect
// the platform directly.
package monitor

import (
	"net/http"
	"sync"
	"time"

	"github.com/linkguard-hq/linkguard/pkg/clock"
	"github.com/linkguard-hq/linkguard/pkg/logger"
	"github.com/linkguard-hq/linkguard/pkg/metrics"
	"github.com/linkguard-hq/linkguard/pkg/models"
)

// DefaultProbeInterval is how often the liveness probe runs unless
// configured otherwise.
const DefaultProbeInterval = 30 * time.Second

// Config tunes the status monitor.
type Config struct {
	// ProbeURL is the liveness endpoint hit by the background probe.
	// Empty disables probing and the monitor trusts the source alone.
	ProbeURL string

	// ProbeInterval is the delay between probes.
	ProbeInterval time.Duration

	// ProbeTimeout bounds a single probe round trip.
	ProbeTimeout time.Duration

	// SaveDataMode marks the reported status as data-saving; it is a
	// deployment setting, not something the monitor detects.
	SaveDataMode bool
}

// StatusMonitor combines a platform connectivity source with a
// periodic liveness probe. The probe distinguishes "link up" from
// "application reachable": when the source says online but the probe
// fails, subscribers see an offline status.
type StatusMonitor struct {
	source     ConnectivitySource
	cfg        Config
	clk        clock.Clock
	logger     logger.Logger
	httpClient *http.Client

	mu            sync.Mutex
	subs          map[int]func(models.ConnectivityStatus)
	nextSubID     int
	probeFailed   bool
	probeRTT      time.Duration
	haveProbeRTT  bool
	lastBroadcast models.ConnectivityStatus
	haveLast      bool
	sourceCancel  func()
	stopChan      chan struct{}
	running       bool
}

// NewStatusMonitor creates a status monitor over the given source.
// A nil clock or logger falls back to the system clock and a no-op
// logger.
func NewStatusMonitor(source ConnectivitySource, cfg Config, clk clock.Clock, log logger.Logger) *StatusMonitor {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	return &StatusMonitor{
		source:     source,
		cfg:        cfg,
		clk:        clk,
		logger:     log,
		httpClient: &http.Client{Timeout: cfg.ProbeTimeout},
		subs:       make(map[int]func(models.ConnectivityStatus)),
	}
}

// Start registers the source watcher and starts the probe timer.
func (m *StatusMonitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopChan = make(chan struct{})
	stop := m.stopChan
	m.mu.Unlock()

	cancel := m.source.Watch(func(models.ConnectivityStatus) {
		m.recompute()
	})

	m.mu.Lock()
	if !m.running {
		// Stopped while the watcher was being registered
		m.mu.Unlock()
		cancel()
		return
	}
	m.sourceCancel = cancel
	m.mu.Unlock()

	if m.cfg.ProbeURL != "" {
		go m.probeLoop(stop)
	}

	m.logger.InfoWith(logger.Monitor, "Status monitor started (probe every %v)", m.cfg.ProbeInterval)
	m.recompute()
}

// Stop releases the probe timer and the source watcher. The monitor
// can be restarted afterwards.
func (m *StatusMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	m.stopChan = nil
	cancel := m.sourceCancel
	m.sourceCancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.logger.InfoWith(logger.Monitor, "Status monitor stopped")
}

// GetStatus returns the current best-known connectivity state. The
// value is recomputed from the source on every call, so consumers
// never see a stale snapshot.
func (m *StatusMonitor) GetStatus() models.ConnectivityStatus {
	status := m.source.Status()

	m.mu.Lock()
	if m.probeFailed && status.IsOnline {
		// Link is up but the application endpoint is unreachable
		status.IsOnline = false
	}
	if m.haveProbeRTT && status.RoundTripMs == 0 {
		status.RoundTripMs = int(m.probeRTT.Milliseconds())
		status.EffectiveType = effectiveTypeForRTT(m.probeRTT)
	}
	m.mu.Unlock()

	status.SaveDataMode = m.cfg.SaveDataMode
	return status
}

// Subscribe registers a callback that fires immediately with the
// current status and again on every detected change. The returned
// disposer unregisters it; calling the disposer twice is a no-op.
func (m *StatusMonitor) Subscribe(cb func(models.ConnectivityStatus)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = cb
	m.mu.Unlock()

	cb(m.GetStatus())

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// probeLoop runs the liveness probe on a fixed interval until stopped
func (m *StatusMonitor) probeLoop(stop chan struct{}) {
	m.runProbe()
	for {
		select {
		case <-stop:
			return
		case <-m.clk.After(m.cfg.ProbeInterval):
			m.runProbe()
		}
	}
}

// runProbe issues a single reachability check. Probe failures are
// never surfaced as errors; they only flip the broadcast status.
func (m *StatusMonitor) runProbe() {
	start := time.Now()
	resp, err := m.httpClient.Get(m.cfg.ProbeURL)
	rtt := time.Since(start)

	failed := err != nil
	if resp != nil {
		failed = failed || resp.StatusCode >= 400
		_ = resp.Body.Close()
	}

	if failed {
		metrics.ProbeFailures.Inc()
		m.logger.DebugWith(logger.Monitor, "Liveness probe failed: %v", err)
	} else {
		metrics.ProbeDuration.Observe(rtt.Seconds())
	}

	m.mu.Lock()
	m.probeFailed = failed
	if !failed {
		m.probeRTT = rtt
		m.haveProbeRTT = true
	}
	m.mu.Unlock()

	m.recompute()
}

// recompute re-reads the status and notifies subscribers when it
// differs from the last broadcast value
func (m *StatusMonitor) recompute() {
	status := m.GetStatus()

	m.mu.Lock()
	changed := !m.haveLast || status != m.lastBroadcast
	wasOnline := m.haveLast && m.lastBroadcast.IsOnline
	m.lastBroadcast = status
	m.haveLast = true
	var cbs []func(models.ConnectivityStatus)
	if changed {
		for _, cb := range m.subs {
			cbs = append(cbs, cb)
		}
	}
	m.mu.Unlock()

	if !changed {
		return
	}

	if status.IsOnline {
		metrics.Online.Set(1)
	} else {
		metrics.Online.Set(0)
	}
	if wasOnline != status.IsOnline {
		if status.IsOnline {
			metrics.ConnectivityTransitions.WithLabelValues("online").Inc()
			m.logger.NoticeWith(logger.Monitor, "Back online (%s)", status.ConnectionType)
		} else {
			metrics.ConnectivityTransitions.WithLabelValues("offline").Inc()
			m.logger.NoticeWith(logger.Monitor, "Went offline")
		}
	}

	for _, cb := range cbs {
		cb(status)
	}
}

// effectiveTypeForRTT buckets a measured round trip into the coarse
// quality classes reported by browsers
func effectiveTypeForRTT(rtt time.Duration) models.EffectiveType {
	switch {
	case rtt <= 150*time.Millisecond:
		return models.Effective4G
	case rtt <= 400*time.Millisecond:
		return models.Effective3G
	case rtt <= 1000*time.Millisecond:
		return models.Effective2G
	default:
		return models.EffectiveSlow2G
	}
}
