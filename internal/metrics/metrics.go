package metrics

import (
	"sync"
	"time"
)

// Metric names used across the service.
const (
	InvoicesListed     = "invoices_listed"
	InvoicesSearched   = "invoices_searched"
	UrgencyRecomputes  = "urgency_recomputes"
	UrgencyFlagWrites  = "urgency_flag_writes"
	CustomDelayExpired = "custom_delays_expired"
	PaymentEvents      = "payment_events_processed"
	ScopeCacheHits     = "scope_cache_hits"
	InvoicesIndexed    = "invoices_indexed"
	UrgentInvoices     = "invoices_urgent"
)

// TimerStats captures timing information for one operation
type TimerStats struct {
	Count         int64   `json:"count"`
	TotalTimeMs   int64   `json:"total_time_ms"`
	AverageTimeMs float64 `json:"average_time_ms"`
	MinTimeMs     int64   `json:"min_time_ms"`
	MaxTimeMs     int64   `json:"max_time_ms"`
}

type timer struct {
	count       int64
	totalTimeMs int64
	minTimeMs   int64
	maxTimeMs   int64
}

// Metrics is an in-process metrics collector served on /metrics
type Metrics struct {
	mu           sync.RWMutex
	counters     map[string]int64
	gauges       map[string]int64
	timers       map[string]*timer
	healthChecks map[string]bool
	startTime    time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		counters:     make(map[string]int64),
		gauges:       make(map[string]int64),
		timers:       make(map[string]*timer),
		healthChecks: make(map[string]bool),
		startTime:    time.Now(),
	}
}

// IncrementCounter increments a counter by 1
func (m *Metrics) IncrementCounter(name string) {
	m.IncrementCounterBy(name, 1)
}

// IncrementCounterBy increments a counter by the specified value
func (m *Metrics) IncrementCounterBy(name string, value int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += value
}

// SetGauge sets a gauge to a point-in-time value
func (m *Metrics) SetGauge(name string, value int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = value
}

// RecordTimer records a duration for a named operation
func (m *Metrics) RecordTimer(name string, d time.Duration) {
	ms := d.Milliseconds()

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.timers[name]
	if !ok {
		t = &timer{minTimeMs: ms, maxTimeMs: ms}
		m.timers[name] = t
	}

	t.count++
	t.totalTimeMs += ms
	if ms < t.minTimeMs {
		t.minTimeMs = ms
	}
	if ms > t.maxTimeMs {
		t.maxTimeMs = ms
	}
}

// TimeOperation runs fn and records its duration under name
func (m *Metrics) TimeOperation(name string, fn func()) {
	start := time.Now()
	fn()
	m.RecordTimer(name, time.Since(start))
}

// SetHealthCheck records the health of a dependency
func (m *Metrics) SetHealthCheck(name string, healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthChecks[name] = healthy
}

// GetHealthChecks returns a snapshot of all health checks
func (m *Metrics) GetHealthChecks() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]bool, len(m.healthChecks))
	for k, v := range m.healthChecks {
		out[k] = v
	}
	return out
}

// GetAllMetrics returns a snapshot of every metric, keyed by type
func (m *Metrics) GetAllMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		counters[k] = v
	}

	gauges := make(map[string]int64, len(m.gauges))
	for k, v := range m.gauges {
		gauges[k] = v
	}

	timers := make(map[string]TimerStats, len(m.timers))
	for k, t := range m.timers {
		stats := TimerStats{
			Count:       t.count,
			TotalTimeMs: t.totalTimeMs,
			MinTimeMs:   t.minTimeMs,
			MaxTimeMs:   t.maxTimeMs,
		}
		if t.count > 0 {
			stats.AverageTimeMs = float64(t.totalTimeMs) / float64(t.count)
		}
		timers[k] = stats
	}

	health := make(map[string]bool, len(m.healthChecks))
	for k, v := range m.healthChecks {
		health[k] = v
	}

	return map[string]interface{}{
		"uptime_seconds": int64(time.Since(m.startTime).Seconds()),
		"counters":       counters,
		"gauges":         gauges,
		"timers":         timers,
		"health":         health,
	}
}
