// Package heartbeat implements spec §4.7: a per-session liveness ticker
// tracking five timestamps and running four checks each tick (silence
// prompt, bot stall, audio desync, two-stage idle timeout). Every check
// except audio desync is held off by its own guard flag once fired; desync
// has no guard and fires on every tick while its condition holds. Grounded on the teacher's own timer/ticker idioms
// (managed_stream.go's time.NewTimer/time.Since instrumentation
// timestamps, mutex-guarded state struct), generalized into a standalone
// ticking component since the teacher itself has no heartbeat.
package heartbeat

import (
	"sync"
	"time"

	"github.com/openclaw/voicebridge/pkg/config"
	"github.com/openclaw/voicebridge/pkg/metrics"
	"github.com/openclaw/voicebridge/pkg/voicecore"
)

const activeSilencePromptThresholdSec = 30

// Callbacks are the five liveness reactions the session orchestrator
// installs (spec.md §4.8's "Liveness callbacks").
type Callbacks struct {
	OnSilencePrompt func()
	OnBotStall      func()
	OnDesync        func()
	OnGraceAnnounce func()
	OnIdleTimeout   func()
}

// Config carries the subset of the frozen configuration record the
// heartbeat needs.
type Config struct {
	IntervalMs           int
	SilencePromptSec     int
	BotStallThresholdSec int
	Initiative           config.Initiative
	IdleDisconnectMin    int
	GraceAnnounceSec     int
}

// Heartbeat ticks every cfg.IntervalMs for one joined session, firing
// Callbacks as each guarded condition trips. The zero value is not usable;
// construct with New.
type Heartbeat struct {
	cfg       Config
	callbacks Callbacks
	metrics   *metrics.Metrics
	logger    voicecore.Logger

	mu                  sync.Mutex
	lastUserSpeechAt    time.Time
	lastBotSpeechAt     time.Time
	lastFrameReceivedAt time.Time
	sessionStartAt      time.Time
	userSpeaking        bool

	silencePromptGuard  bool
	botStallGuard       bool
	graceAnnouncedGuard bool
	idleTimeoutGuard    bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New builds a Heartbeat with every timestamp anchored to now. Start must
// be called separately to begin ticking.
func New(cfg Config, callbacks Callbacks, m *metrics.Metrics, logger voicecore.Logger) *Heartbeat {
	if logger == nil {
		logger = voicecore.NoOpLogger{}
	}
	now := time.Now()
	return &Heartbeat{
		cfg:                 cfg,
		callbacks:           callbacks,
		metrics:             m,
		logger:              logger,
		lastUserSpeechAt:    now,
		lastBotSpeechAt:     now,
		lastFrameReceivedAt: now,
		sessionStartAt:      now,
		stopCh:              make(chan struct{}),
	}
}

func (h *Heartbeat) incMetric(name string) {
	if h.metrics != nil {
		h.metrics.Inc(name)
	}
}

func (h *Heartbeat) setGauge(name string, v int64) {
	if h.metrics != nil {
		h.metrics.SetGauge(name, v)
	}
}

// Start runs the ticking goroutine until Stop is called.
func (h *Heartbeat) Start() {
	go func() {
		interval := time.Duration(h.cfg.IntervalMs) * time.Millisecond
		if interval <= 0 {
			interval = 15 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-h.stopCh:
				return
			case now := <-ticker.C:
				h.Tick(now)
			}
		}
	}()
}

// Stop halts the ticking goroutine. Idempotent.
func (h *Heartbeat) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

// ReportUserSpeech timestamps user speech and clears every firing guard,
// matching spec.md §4.7's external-updater semantics.
func (h *Heartbeat) ReportUserSpeech() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastUserSpeechAt = time.Now()
	h.silencePromptGuard = false
	h.botStallGuard = false
	h.graceAnnouncedGuard = false
	h.idleTimeoutGuard = false
}

// ReportBotSpeech timestamps bot speech and clears only the bot-stall
// guard.
func (h *Heartbeat) ReportBotSpeech() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastBotSpeechAt = time.Now()
	h.botStallGuard = false
}

// ReportAudioFrameReceived timestamps the last inbound audio frame.
func (h *Heartbeat) ReportAudioFrameReceived() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastFrameReceivedAt = time.Now()
}

// SetUserSpeaking tracks the transient speaking flag the desync check
// reads.
func (h *Heartbeat) SetUserSpeaking(speaking bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.userSpeaking = speaking
}

// Tick runs one pass of the four checks against now. Exported so tests can
// drive the heartbeat with synthetic timestamps instead of real sleeps;
// Start's ticking goroutine is the only production caller.
func (h *Heartbeat) Tick(now time.Time) {
	h.mu.Lock()

	h.setGauge(metrics.GaugeSessionDurationSec, int64(now.Sub(h.sessionStartAt).Seconds()))

	fireSilencePrompt := h.checkSilencePromptLocked(now)
	fireBotStall := h.checkBotStallLocked(now)
	fireDesync := h.userSpeaking && now.Sub(h.lastFrameReceivedAt) > 5*time.Second
	fireGraceAnnounce, fireIdleTimeout := h.checkIdleTimeoutLocked(now)

	h.mu.Unlock()

	if fireSilencePrompt {
		h.incMetric(metrics.CounterHeartbeatSilence)
		if h.callbacks.OnSilencePrompt != nil {
			h.callbacks.OnSilencePrompt()
		}
	}
	if fireBotStall {
		h.incMetric(metrics.CounterHeartbeatStalls)
		if h.callbacks.OnBotStall != nil {
			h.callbacks.OnBotStall()
		}
	}
	if fireDesync && h.callbacks.OnDesync != nil {
		h.callbacks.OnDesync()
	}
	if fireGraceAnnounce && h.callbacks.OnGraceAnnounce != nil {
		h.callbacks.OnGraceAnnounce()
	}
	if fireIdleTimeout {
		h.incMetric(metrics.CounterIdleDisconnects)
		if h.callbacks.OnIdleTimeout != nil {
			h.callbacks.OnIdleTimeout()
		}
		h.Stop()
	}
}

func (h *Heartbeat) checkSilencePromptLocked(now time.Time) bool {
	if h.cfg.Initiative == config.InitiativePassive {
		return false
	}
	if h.silencePromptGuard {
		return false
	}
	thresholdSec := h.cfg.SilencePromptSec
	if h.cfg.Initiative == config.InitiativeActive {
		thresholdSec = activeSilencePromptThresholdSec
	}
	threshold := time.Duration(thresholdSec) * time.Second
	if now.Sub(h.lastUserSpeechAt) <= threshold {
		return false
	}
	if !h.lastBotSpeechAt.After(h.lastUserSpeechAt) {
		return false
	}
	h.silencePromptGuard = true
	return true
}

func (h *Heartbeat) checkBotStallLocked(now time.Time) bool {
	if h.botStallGuard {
		return false
	}
	if !h.lastUserSpeechAt.After(h.lastBotSpeechAt) {
		return false
	}
	threshold := time.Duration(h.cfg.BotStallThresholdSec) * time.Second
	if now.Sub(h.lastBotSpeechAt) <= threshold {
		return false
	}
	h.botStallGuard = true
	return true
}

func (h *Heartbeat) checkIdleTimeoutLocked(now time.Time) (graceAnnounce, idleTimeout bool) {
	userIdle := now.Sub(h.lastUserSpeechAt)
	botIdle := now.Sub(h.lastBotSpeechAt)
	idleSince := userIdle
	if botIdle < idleSince {
		idleSince = botIdle
	}

	idleDur := time.Duration(h.cfg.IdleDisconnectMin) * time.Minute
	graceDur := time.Duration(h.cfg.GraceAnnounceSec) * time.Second
	graceThreshold := idleDur - graceDur

	if idleSince > graceThreshold && !h.graceAnnouncedGuard {
		h.graceAnnouncedGuard = true
		graceAnnounce = true
	}
	if idleSince > idleDur && h.graceAnnouncedGuard && !h.idleTimeoutGuard {
		h.idleTimeoutGuard = true
		idleTimeout = true
	}
	return graceAnnounce, idleTimeout
}
