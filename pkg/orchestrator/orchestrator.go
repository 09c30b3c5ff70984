package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"github.com/openclaw/voicebridge/pkg/audiopipeline"
	"github.com/openclaw/voicebridge/pkg/chatstream"
	"github.com/openclaw/voicebridge/pkg/config"
	"github.com/openclaw/voicebridge/pkg/heartbeat"
	"github.com/openclaw/voicebridge/pkg/metrics"
	"github.com/openclaw/voicebridge/pkg/sttclient"
	"github.com/openclaw/voicebridge/pkg/ttscache"
	"github.com/openclaw/voicebridge/pkg/ttsclient"
	"github.com/openclaw/voicebridge/pkg/voicecore"
	"github.com/openclaw/voicebridge/pkg/voiceplatform"
)

const (
	connReadyTimeout = 15 * time.Second
	pollInterval     = 50 * time.Millisecond
)

// Orchestrator owns the single joined session for cfg.TargetUserID: it
// watches presence and speaking events on session, drives the capture
// loop, and wires the Audio Pipeline and Heartbeat together. The zero
// value is not usable; construct with New.
type Orchestrator struct {
	cfg     config.Config
	session voiceplatform.Session
	stt     *sttclient.Client
	chat    *chatstream.Client
	tts     *ttsclient.Client
	cache   *ttscache.Cache
	metrics *metrics.Metrics
	logger  voicecore.Logger
	decoder OpusDecoder

	mu            sync.Mutex
	conn          voiceplatform.Connection
	pipeline      *audiopipeline.Pipeline
	hb            *heartbeat.Heartbeat
	joining       bool
	tearingDown   bool
	reconnecting  bool
	capturing     bool
	captureGen    int
	captureCancel func()
	captureUserID string
	uttSeq        int
	stallGraced   bool
	leaveGrace    *time.Timer

	metricsStop chan struct{}
}

// New builds an Orchestrator against an already-connected session and
// already-constructed STT/chat/TTS clients. decoder may be nil only if the
// capture loop is never exercised (e.g. in tests that drive the pipeline
// directly); a nil decoder used against a real packet stream panics on the
// first Decode call, which is intentional — a misconfigured deployment
// should fail loudly rather than silently drop audio.
func New(cfg config.Config, session voiceplatform.Session, stt *sttclient.Client, chat *chatstream.Client, tts *ttsclient.Client, cache *ttscache.Cache, m *metrics.Metrics, logger voicecore.Logger, decoder OpusDecoder) *Orchestrator {
	if logger == nil {
		logger = voicecore.NoOpLogger{}
	}
	return &Orchestrator{
		cfg:     cfg,
		session: session,
		stt:     stt,
		chat:    chat,
		tts:     tts,
		cache:   cache,
		metrics: m,
		logger:  logger,
		decoder: decoder,
	}
}

func (o *Orchestrator) incMetric(name string) {
	if o.metrics != nil {
		o.metrics.Inc(name)
	}
}

func (o *Orchestrator) logEvent(event string, kv ...interface{}) {
	args := append([]interface{}{"event", event}, kv...)
	o.logger.Info("orchestrator event", args...)
}

// Start subscribes the presence and speaking-start handlers on the
// session. It does not itself join a channel; that happens reactively on
// the target user's first qualifying presence event, or immediately if
// autoJoin and the target is already present is handled by the caller
// calling JoinNow.
func (o *Orchestrator) Start() {
	o.session.OnPresenceChange(o.onPresenceChange)
	o.session.OnSpeakingStart(o.onSpeakingStart)
}

// JoinNow triggers an immediate join attempt, for callers that already
// know the target user is present (e.g. at startup).
func (o *Orchestrator) JoinNow() {
	go o.joinChannel()
}

// Shutdown tears down the active connection and stops every background
// loop. Safe to call even if no session is currently joined.
func (o *Orchestrator) Shutdown() {
	o.teardown()
}

func (o *Orchestrator) onPresenceChange(userID, oldChannelID, newChannelID string) {
	if userID != o.cfg.TargetUserID {
		return
	}

	if newChannelID == o.cfg.TargetChannelID {
		o.mu.Lock()
		if o.leaveGrace != nil {
			o.leaveGrace.Stop()
			o.leaveGrace = nil
		}
		hasConn := o.conn != nil
		joining := o.joining
		o.mu.Unlock()

		if o.cfg.AutoJoin && !hasConn && !joining {
			go o.joinChannel()
		}
		return
	}

	if oldChannelID == o.cfg.TargetChannelID {
		o.mu.Lock()
		hasConn := o.conn != nil
		if hasConn && o.leaveGrace == nil {
			graceSec := o.cfg.Resilience.UserLeftGraceSec
			o.leaveGrace = time.AfterFunc(time.Duration(graceSec)*time.Second, o.onLeaveGraceExpired)
		}
		o.mu.Unlock()
	}
}

func (o *Orchestrator) onLeaveGraceExpired() {
	o.mu.Lock()
	o.leaveGrace = nil
	o.mu.Unlock()
	o.logEvent("USER_LEFT_GRACE_EXPIRED")
	o.teardown()
}

// joinChannel implements spec.md §4.8's joinChannel, guarded by the
// joining flag so a second presence event mid-join is a no-op.
func (o *Orchestrator) joinChannel() {
	o.mu.Lock()
	if o.joining || o.conn != nil {
		o.mu.Unlock()
		return
	}
	o.joining = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.joining = false
		o.mu.Unlock()
	}()

	conn, err := o.session.JoinChannel("", o.cfg.TargetChannelID, false, false)
	if err != nil {
		o.logger.Error("join channel failed", "error", err.Error())
		return
	}

	hbCfg := heartbeat.Config{
		IntervalMs:           o.cfg.Heartbeat.IntervalMs,
		SilencePromptSec:     o.cfg.Heartbeat.SilencePromptSec,
		BotStallThresholdSec: o.cfg.Heartbeat.BotStallThresholdSec,
		Initiative:           o.cfg.Heartbeat.Initiative,
		IdleDisconnectMin:    o.cfg.Resilience.IdleDisconnectMin,
		GraceAnnounceSec:     o.cfg.Resilience.GraceAnnounceSec,
	}
	hb := heartbeat.New(hbCfg, heartbeat.Callbacks{
		OnSilencePrompt: o.onSilencePrompt,
		OnBotStall:      o.onBotStall,
		OnDesync:        o.onDesync,
		OnGraceAnnounce: o.onGraceAnnounce,
		OnIdleTimeout:   o.onIdleTimeout,
	}, o.metrics, o.logger)

	pCfg := audiopipeline.Config{
		CacheEnabled:       o.cfg.Cache.Enabled,
		CacheMaxSizeMb:     o.cfg.Cache.MaxSizeMb,
		NoiseFilterEnabled: o.cfg.VAD.NoiseFilterEnabled,
		TTSProvider:        o.cfg.TTS.Provider,
		TTSModel:           o.cfg.TTS.Model,
		TTSVoice:           o.cfg.TTS.Voice,
		TTSInstructions:    o.cfg.TTS.Instructions,
	}
	var cache *ttscache.Cache
	if o.cfg.Cache.Enabled {
		cache = o.cache
	}
	pipeline := audiopipeline.New(o.stt, o.chat, o.tts, cache, conn.Player(), o.metrics, o.logger, pCfg, hb.ReportBotSpeech)

	if err := conn.Player().Subscribe(conn); err != nil {
		o.logger.Error("player subscribe failed", "error", err.Error())
		conn.Disconnect()
		return
	}

	if !o.waitForReady(conn, connReadyTimeout) {
		o.logger.Error("connection never reached ready", "timeoutSec", connReadyTimeout.Seconds())
		conn.Disconnect()
		return
	}

	// Install the disconnect watcher only after the initial Ready so the
	// normal Connecting→Signalling→Ready progression never looks like a
	// disconnect needing a reconnect.
	conn.OnStateChange(func(from, to voiceplatform.ConnectionState) {
		if to == voiceplatform.StateDisconnected {
			go o.handleDisconnect()
		}
	})

	o.mu.Lock()
	o.conn = conn
	o.pipeline = pipeline
	o.hb = hb
	o.uttSeq = 0
	o.stallGraced = false
	o.tearingDown = false
	o.metricsStop = make(chan struct{})
	o.mu.Unlock()

	hb.Start()
	o.incMetric(metrics.CounterSessionCount)
	o.startMetricsLog(o.metricsStopChan())
	o.logEvent("SESSION_JOINED")
}

func (o *Orchestrator) metricsStopChan() chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.metricsStop
}

func (o *Orchestrator) waitForReady(conn voiceplatform.Connection, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if conn.State() == voiceplatform.StateReady {
			return true
		}
		time.Sleep(pollInterval)
	}
	return conn.State() == voiceplatform.StateReady
}

func (o *Orchestrator) startMetricsLog(stop chan struct{}) {
	intervalSec := o.cfg.Observability.MetricsLogIntervalSec
	if intervalSec <= 0 {
		intervalSec = 60
	}
	go func() {
		ticker := time.NewTicker(time.Duration(intervalSec) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if o.metrics == nil {
					continue
				}
				snap := o.metrics.Snapshot()
				o.logger.Info("metrics snapshot", "counters", snap.Counters, "gauges", snap.Gauges)
			}
		}
	}()
}

// teardown disconnects the active connection and stops every background
// loop associated with it. Idempotent.
func (o *Orchestrator) teardown() {
	o.mu.Lock()
	conn := o.conn
	hb := o.hb
	stop := o.metricsStop
	captureCancel := o.captureCancel
	o.conn = nil
	o.pipeline = nil
	o.hb = nil
	o.metricsStop = nil
	o.tearingDown = true
	o.capturing = false
	o.captureCancel = nil
	o.captureUserID = ""
	if o.leaveGrace != nil {
		o.leaveGrace.Stop()
		o.leaveGrace = nil
	}
	o.mu.Unlock()

	if captureCancel != nil {
		captureCancel()
	}
	if stop != nil {
		close(stop)
	}
	if hb != nil {
		hb.Stop()
	}
	if conn != nil {
		conn.Disconnect()
	}
	o.logEvent("SESSION_TORN_DOWN")
}

func (o *Orchestrator) nextUttID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.uttSeq++
	return fmt.Sprintf("utt-%03d", o.uttSeq)
}
