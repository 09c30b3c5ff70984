package orchestrator

import (
	"github.com/openclaw/voicebridge/pkg/voicecore"
)

const checkInPhraseLabel = "check-ins"

// onSilencePrompt implements spec.md §4.8's liveness callback: prefer a
// cached check-in phrase, falling back to live synthesis of a fixed line.
func (o *Orchestrator) onSilencePrompt() {
	o.mu.Lock()
	pipeline := o.pipeline
	cache := o.cache
	o.mu.Unlock()
	if pipeline == nil {
		return
	}

	if cache != nil {
		if buf, isBaked, ok := cache.GetRandomPhrase(checkInPhraseLabel); ok {
			container := voicecore.ContainerArbitrary
			if isBaked {
				container = voicecore.ContainerOggOpus
			}
			o.playDirect(buf, container)
			return
		}
	}
	o.speakFallback("Still there?")
}

// onGraceAnnounce synthesises the grace line announced before idle
// teardown.
func (o *Orchestrator) onGraceAnnounce() {
	o.speakFallback("I'll step away soon if it's quiet — say something to keep me around.")
}

// onBotStall implements the first-stall-recovers, subsequent-stalls-replay
// toggle spec.md §4.8 describes: the first stall after a fresh capture
// interrupts the pipeline, plays a recovery line, and forces a reconnect;
// later stalls (until the toggle is cleared by fresh user speech) just
// replay the recovery line.
func (o *Orchestrator) onBotStall() {
	o.mu.Lock()
	pipeline := o.pipeline
	conn := o.conn
	alreadyGraced := o.stallGraced
	if pipeline != nil && pipeline.LastTranscript() != "" {
		o.stallGraced = true
	}
	o.mu.Unlock()
	if pipeline == nil || pipeline.LastTranscript() == "" {
		return
	}

	if !alreadyGraced {
		pipeline.Interrupt()
		o.speakFallback("Sorry, let me pick that back up.")
		// Force the transport down so handleDisconnect's wait for
		// Signalling→Ready actually has a disconnect to recover from,
		// instead of polling a connection that never left Ready.
		if conn != nil {
			conn.Disconnect()
		}
		go o.handleDisconnect()
		return
	}
	o.speakFallback("Sorry, let me pick that back up.")
}

// onDesync implements spec.md §4.8's "stop and restart the capture loop to
// resubscribe": the existing subscription is cancelled (actually tearing
// the receive stream down, not just flipping a local flag) and, if a
// capture was genuinely in progress, a fresh one is started immediately
// against the same user so the window the heartbeat's desync check uses
// resets.
func (o *Orchestrator) onDesync() {
	o.mu.Lock()
	cancel := o.captureCancel
	userID := o.captureUserID
	hb := o.hb
	wasCapturing := o.capturing
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.logEvent("DESYNC_RESTART_CAPTURE")

	if !wasCapturing || userID == "" {
		return
	}
	o.startCapture(userID, hb)
}

// onIdleTimeout tears the session down after the grace period elapses with
// no renewed activity.
func (o *Orchestrator) onIdleTimeout() {
	o.teardown()
}

// speakFallback routes a fixed line through the pipeline's own TTS path
// (cache-first, same as any sentence) rather than bypassing it.
func (o *Orchestrator) speakFallback(text string) {
	o.mu.Lock()
	pipeline := o.pipeline
	o.mu.Unlock()
	if pipeline == nil {
		return
	}
	pipeline.SpeakDirect(text)
}

// playDirect pushes a pre-synthesised buffer straight to the pipeline's
// playback queue, bypassing TTS entirely.
func (o *Orchestrator) playDirect(buf []byte, container voicecore.Container) {
	o.mu.Lock()
	pipeline := o.pipeline
	o.mu.Unlock()
	if pipeline == nil {
		return
	}
	pipeline.PlayDirect(voicecore.AudioChunk{Bytes: buf, Container: container})
}
