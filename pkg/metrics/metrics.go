// Package metrics implements the voice bridge's metrics surface: counters,
// gauges, and timing histograms with a last-1000-sample p50/p95/p99
// snapshot, plus an optional HTTP health/metrics server.
//
// The snapshot algorithm is bespoke (spec-mandated nearest-rank
// percentiles over a fixed window), grounded on the ring-buffer shape of
// ent0n29-samantha's turnStageWindow. Each series additionally feeds a real
// Prometheus collector (ent0n29-samantha's own prometheus/client_golang
// wiring) so the same call site serves both the JSON snapshot this spec
// requires and a standard /metrics scrape target.
package metrics

import (
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voice"

const timingWindowSize = 1000

// Counter names required by spec §4.1.
const (
	CounterSessionCount         = "voice.session.count"
	CounterReconnectCount       = "voice.reconnect.count"
	CounterReconnectSuccess     = "voice.reconnect.success"
	CounterSTTRequests          = "voice.stt.requests"
	CounterTTSRequests          = "voice.tts.requests"
	CounterTTSCacheHits         = "voice.tts.cache_hits"
	CounterTTSCacheMisses       = "voice.tts.cache_misses"
	CounterLLMErrors            = "voice.llm.errors"
	CounterOpusDecodeErrors     = "voice.opus.decode_errors"
	CounterHeartbeatSilence     = "voice.heartbeat.silence_prompts"
	CounterHeartbeatStalls      = "voice.heartbeat.stalls_detected"
	CounterIdleDisconnects      = "voice.idle_disconnects"
)

// Gauge names required by spec §4.1.
const (
	GaugeTTSCacheSizeBytes  = "voice.tts.cache_size_bytes"
	GaugeSessionDurationSec = "voice.session.duration_sec"
)

// Timing series names required by spec §4.1.
const (
	TimingSTTLatencyMs      = "voice.stt.latency_ms"
	TimingTTSLatencyMs      = "voice.tts.latency_ms"
	TimingLLMLatencyMs      = "voice.llm.latency_ms"
	TimingPipelineE2EMs     = "voice.pipeline.e2e_latency_ms"
)

var allCounters = []string{
	CounterSessionCount, CounterReconnectCount, CounterReconnectSuccess,
	CounterSTTRequests, CounterTTSRequests, CounterTTSCacheHits, CounterTTSCacheMisses,
	CounterLLMErrors, CounterOpusDecodeErrors, CounterHeartbeatSilence,
	CounterHeartbeatStalls, CounterIdleDisconnects,
}

var allGauges = []string{GaugeTTSCacheSizeBytes, GaugeSessionDurationSec}

var allTimings = []string{
	TimingSTTLatencyMs, TimingTTSLatencyMs, TimingLLMLatencyMs, TimingPipelineE2EMs,
}

// promName turns "voice.stt.latency_ms" into "voice_stt_latency_ms" for
// Prometheus, which disallows dots in metric names.
func promName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			out[i] = '_'
		} else {
			out[i] = name[i]
		}
	}
	return string(out)
}

// Metrics is a process-wide-capable (but normally per-session-injected)
// collection of counters, gauges, and timing series. The zero value is not
// usable; construct with New.
type Metrics struct {
	mu       sync.Mutex
	counters map[string]int64
	gauges   map[string]int64
	timings  map[string]*timingSeries

	registry     *prometheus.Registry
	promCounters map[string]prometheus.Counter
	promGauges   map[string]prometheus.Gauge
	promTimings  map[string]prometheus.Histogram
}

// timingSeries keeps the most recent timingWindowSize samples in a ring
// buffer, matching spec §4.1's "keep most-recent 1,000 samples per series".
type timingSeries struct {
	values []float64
	next   int
	filled bool
}

func newTimingSeries() *timingSeries {
	return &timingSeries{values: make([]float64, timingWindowSize)}
}

func (s *timingSeries) observe(v float64) {
	s.values[s.next] = v
	s.next++
	if s.next >= len(s.values) {
		s.next = 0
		s.filled = true
	}
}

func (s *timingSeries) samples() []float64 {
	n := s.next
	if s.filled {
		n = len(s.values)
	}
	out := make([]float64, n)
	copy(out, s.values[:n])
	return out
}

// New builds a Metrics instance and registers its Prometheus collectors
// against a private registry of its own (served by PrometheusHandler), not
// the global default registry. Construct one per session (per spec's
// Design Notes preferring injected instances over a singleton); the
// Prometheus collector names stay stable across sessions since they carry
// no session label, matching the teacher pack's single-process deployment
// model.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		counters:     make(map[string]int64, len(allCounters)),
		gauges:       make(map[string]int64, len(allGauges)),
		timings:      make(map[string]*timingSeries, len(allTimings)),
		registry:     registry,
		promCounters: make(map[string]prometheus.Counter, len(allCounters)),
		promGauges:   make(map[string]prometheus.Gauge, len(allGauges)),
		promTimings:  make(map[string]prometheus.Histogram, len(allTimings)),
	}

	factory := promauto.With(registry)
	for _, name := range allCounters {
		m.counters[name] = 0
		m.promCounters[name] = factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      promName(name) + "_total",
			Help:      "Voice bridge counter " + name,
		})
	}
	for _, name := range allGauges {
		m.gauges[name] = 0
		m.promGauges[name] = factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      promName(name),
			Help:      "Voice bridge gauge " + name,
		})
	}
	for _, name := range allTimings {
		m.timings[name] = newTimingSeries()
		m.promTimings[name] = factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      promName(name),
			Help:      "Voice bridge timing " + name,
			Buckets:   []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3200, 6400},
		})
	}
	return m
}

// PrometheusHandler returns an http.Handler serving this instance's metrics
// in the Prometheus exposition format, for mounting at /metrics.
func (m *Metrics) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Inc increments a monotonic counter by 1.
func (m *Metrics) Inc(name string) {
	m.mu.Lock()
	m.counters[name]++
	m.mu.Unlock()
	if c, ok := m.promCounters[name]; ok {
		c.Inc()
	}
}

// SetGauge overwrites a gauge with a last-write-wins integer value.
func (m *Metrics) SetGauge(name string, value int64) {
	m.mu.Lock()
	m.gauges[name] = value
	m.mu.Unlock()
	if g, ok := m.promGauges[name]; ok {
		g.Set(float64(value))
	}
}

// Observe records one sample into a timing series.
func (m *Metrics) Observe(name string, valueMs float64) {
	m.mu.Lock()
	s, ok := m.timings[name]
	if !ok {
		s = newTimingSeries()
		m.timings[name] = s
	}
	s.observe(valueMs)
	m.mu.Unlock()
	if h, ok := m.promTimings[name]; ok {
		h.Observe(valueMs)
	}
}

// TimingStats is the derived _count/_p50/_p95/_p99 for one timing series.
type TimingStats struct {
	Count int     `json:"count"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// Snapshot is the full metrics surface at one instant.
type Snapshot struct {
	Counters map[string]int64         `json:"counters"`
	Gauges   map[string]int64         `json:"gauges"`
	Timings  map[string]TimingStats   `json:"timings"`
}

// percentile implements spec §4.1's exact rule: index = floor(pct/100*n)
// clamped to n-1, over the sorted sample vector.
func percentile(sorted []float64, pct float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(pct / 100 * float64(n))
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// Snapshot captures a consistent-enough view of every counter, gauge, and
// timing series (each timing series yielding count/p50/p95/p99).
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Counters: make(map[string]int64, len(m.counters)),
		Gauges:   make(map[string]int64, len(m.gauges)),
		Timings:  make(map[string]TimingStats, len(m.timings)),
	}
	for k, v := range m.counters {
		snap.Counters[k] = v
	}
	for k, v := range m.gauges {
		snap.Gauges[k] = v
	}
	for k, s := range m.timings {
		samples := s.samples()
		sort.Float64s(samples)
		snap.Timings[k] = TimingStats{
			Count: len(samples),
			P50:   percentile(samples, 50),
			P95:   percentile(samples, 95),
			P99:   percentile(samples, 99),
		}
	}
	return snap
}
