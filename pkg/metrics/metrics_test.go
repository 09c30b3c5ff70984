package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIncAndSnapshotCounters(t *testing.T) {
	m := New()
	m.Inc(CounterSTTRequests)
	m.Inc(CounterSTTRequests)
	m.Inc(CounterTTSCacheHits)

	snap := m.Snapshot()
	if snap.Counters[CounterSTTRequests] != 2 {
		t.Errorf("expected 2 stt requests, got %d", snap.Counters[CounterSTTRequests])
	}
	if snap.Counters[CounterTTSCacheHits] != 1 {
		t.Errorf("expected 1 cache hit, got %d", snap.Counters[CounterTTSCacheHits])
	}
	if snap.Counters[CounterLLMErrors] != 0 {
		t.Errorf("expected untouched counter to stay 0, got %d", snap.Counters[CounterLLMErrors])
	}
}

func TestSetGauge(t *testing.T) {
	m := New()
	m.SetGauge(GaugeTTSCacheSizeBytes, 1024)
	m.SetGauge(GaugeTTSCacheSizeBytes, 2048)

	snap := m.Snapshot()
	if snap.Gauges[GaugeTTSCacheSizeBytes] != 2048 {
		t.Errorf("expected last-write-wins 2048, got %d", snap.Gauges[GaugeTTSCacheSizeBytes])
	}
}

func TestPercentileNearestRank(t *testing.T) {
	sorted := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	if got := percentile(sorted, 50); got != 60 {
		t.Errorf("p50: expected 60, got %v", got)
	}
	if got := percentile(sorted, 95); got != 100 {
		t.Errorf("p95: expected 100, got %v", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("empty series: expected 0, got %v", got)
	}
}

func TestObserveTimingWindowCapsAtWindowSize(t *testing.T) {
	m := New()
	for i := 0; i < timingWindowSize+10; i++ {
		m.Observe(TimingSTTLatencyMs, float64(i))
	}
	snap := m.Snapshot()
	stats := snap.Timings[TimingSTTLatencyMs]
	if stats.Count != timingWindowSize {
		t.Errorf("expected window capped at %d samples, got %d", timingWindowSize, stats.Count)
	}
}

func TestHealthEndpointShape(t *testing.T) {
	srv := NewServer()
	m := New()
	srv.SetSession(m, time.Now().Add(-5*time.Second))
	m.Inc(CounterSessionCount)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status ok, got %q", resp.Status)
	}
	if resp.CurrentSession == nil {
		t.Fatal("expected currentSession to be present")
	}
	if resp.CurrentSession.DurationSec < 5 {
		t.Errorf("expected session duration >= 5s, got %v", resp.CurrentSession.DurationSec)
	}
	if resp.CurrentSession.Metrics.Counters[CounterSessionCount] != 1 {
		t.Errorf("expected embedded snapshot to carry the counter, got %+v", resp.CurrentSession.Metrics.Counters)
	}
}

func TestHealthEndpointWithoutSession(t *testing.T) {
	srv := NewServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.CurrentSession != nil {
		t.Error("expected no currentSession before any session attaches")
	}
}

func TestUnknownRouteNotFound(t *testing.T) {
	srv := NewServer()
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown route, got %d", rec.Code)
	}
}
