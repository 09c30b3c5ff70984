package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthResponse is the exact shape spec §4.1/§8's "GET /health returns
// {status:"ok", uptime, currentSession:{duration, metrics: <snapshot>}}".
type healthResponse struct {
	Status         string         `json:"status"`
	UptimeSec      float64        `json:"uptime"`
	CurrentSession *sessionHealth `json:"currentSession,omitempty"`
}

type sessionHealth struct {
	DurationSec float64  `json:"duration"`
	Metrics     Snapshot `json:"metrics"`
}

// Server exposes the process's health and its current session's metrics.
// A new session calls SetSession when it becomes active and ClearSession
// when it ends; Server reports currentSession only while one is set.
type Server struct {
	startedAt time.Time

	mu             sync.Mutex
	sessionMetrics *Metrics
	sessionStarted time.Time
}

// NewServer builds a health/metrics server. Construct once per process;
// sessions attach to it via SetSession as they come and go.
func NewServer() *Server {
	return &Server{startedAt: time.Now()}
}

// SetSession attaches the active session's Metrics instance, so /health can
// report its duration and snapshot. Call ClearSession when the session ends.
func (s *Server) SetSession(m *Metrics, startedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionMetrics = m
	s.sessionStarted = startedAt
}

// ClearSession detaches the current session, e.g. after a disconnect with no
// reconnect pending.
func (s *Server) ClearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionMetrics = nil
}

// Router builds the chi router serving /health and /metrics. Any other path
// 404s, matching the teacher pack's habit of a narrow, explicit route set
// rather than a catch-all mux.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)

	s.mu.Lock()
	m := s.sessionMetrics
	s.mu.Unlock()
	if m != nil {
		r.Handle("/metrics", m.PrometheusHandler())
	} else {
		// No session attached yet: still mount /metrics against whatever
		// instance shows up later by re-resolving on each request.
		r.Get("/metrics", s.handleMetrics)
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	m := s.sessionMetrics
	started := s.sessionStarted
	s.mu.Unlock()

	resp := healthResponse{
		Status:    "ok",
		UptimeSec: time.Since(s.startedAt).Seconds(),
	}
	if m != nil {
		resp.CurrentSession = &sessionHealth{
			DurationSec: time.Since(started).Seconds(),
			Metrics:     m.Snapshot(),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	m := s.sessionMetrics
	s.mu.Unlock()
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	m.PrometheusHandler().ServeHTTP(w, r)
}
