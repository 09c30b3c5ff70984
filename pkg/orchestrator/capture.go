package orchestrator

import (
	"github.com/openclaw/voicebridge/pkg/heartbeat"
	"github.com/openclaw/voicebridge/pkg/metrics"
	"github.com/openclaw/voicebridge/pkg/voiceplatform"
)

const (
	pcmSampleRate    = 48000
	pcmBytesPerFrame = 4 // 2 channels * 16-bit signed LE

	decodeFailWarnThreshold    = 20
	decodeFailDestroyThreshold = 50
)

// onSpeakingStart implements spec.md §4.8's capture-loop entry: one active
// capture at a time, duplicates dropped and counted.
func (o *Orchestrator) onSpeakingStart(userID string) {
	if userID != o.cfg.TargetUserID {
		return
	}

	o.mu.Lock()
	conn := o.conn
	if conn == nil {
		o.mu.Unlock()
		return
	}
	if o.capturing {
		o.mu.Unlock()
		o.logEvent("UTTERANCE_DROPPED_CAPTURING", "uttId", o.nextUttID())
		return
	}
	o.capturing = true
	o.stallGraced = false
	hb := o.hb
	o.mu.Unlock()

	if hb != nil {
		hb.ReportUserSpeech()
		hb.SetUserSpeaking(true)
	}

	o.mu.Lock()
	pipeline := o.pipeline
	o.mu.Unlock()
	if pipeline != nil {
		pipeline.Interrupt()
	}

	o.startCapture(userID, hb)
}

// startCapture subscribes userID's audio stream and launches runCapture
// under a fresh capture generation. The generation bump, the new cancel
// func, and capturing=true are set atomically under one lock so a
// still-winding-down prior capture (see runCapture's tail) can never
// clobber this one regardless of goroutine scheduling order. Callers
// (onSpeakingStart, onDesync's resubscribe) must already have decided a
// new capture should start; startCapture does not itself guard against a
// capture already being in progress.
func (o *Orchestrator) startCapture(userID string, hb *heartbeat.Heartbeat) {
	ch, cancel, err := o.session.SubscribeAudio(userID, voiceplatform.SubscribeOptions{
		EndAfterSilenceMs: o.cfg.VAD.SilenceThresholdMs,
	})
	if err != nil {
		o.logger.Error("subscribe audio failed", "error", err.Error())
		o.mu.Lock()
		o.capturing = false
		o.mu.Unlock()
		if hb != nil {
			hb.SetUserSpeaking(false)
		}
		return
	}

	o.mu.Lock()
	o.capturing = true
	o.captureGen++
	gen := o.captureGen
	o.captureCancel = cancel
	o.captureUserID = userID
	o.mu.Unlock()

	go o.runCapture(ch, hb, gen)
}

// runCapture drains one utterance's packet stream, decoding Opus to PCM
// and tracking the consecutive-failure thresholds spec.md §4.8 describes,
// then enqueues the assembled PCM to the pipeline. gen identifies the
// capture generation this goroutine belongs to: if a newer generation has
// since started (onDesync's forced restart), this goroutine's teardown of
// shared state at the end is skipped so it can't clobber the new capture.
func (o *Orchestrator) runCapture(ch <-chan voiceplatform.PacketEvent, hb *heartbeat.Heartbeat, gen int) {
	maxBytes := o.cfg.VAD.MaxUtteranceSec * pcmSampleRate * pcmBytesPerFrame
	var chunks [][]byte
	totalBytes := 0
	consecutiveFails := 0
	warned := false

	for ev := range ch {
		if ev.Err != nil || ev.End {
			break
		}
		if hb != nil {
			hb.ReportAudioFrameReceived()
		}
		if maxBytes > 0 && totalBytes >= maxBytes {
			continue
		}

		pcm, err := o.decoder.Decode(ev.Data)
		if err != nil {
			consecutiveFails++
			o.incMetric(metrics.CounterOpusDecodeErrors)
			if consecutiveFails > decodeFailWarnThreshold && !warned {
				warned = true
				o.logger.Warn("opus decode failures climbing", "consecutiveFails", consecutiveFails)
			}
			if consecutiveFails > decodeFailDestroyThreshold {
				o.logger.Error("opus decode failures exceeded threshold, destroying stream", "consecutiveFails", consecutiveFails)
				break
			}
			continue
		}
		consecutiveFails = 0
		chunks = append(chunks, pcm)
		totalBytes += len(pcm)
	}

	// Only clear shared capture state — and only actually tear the stream
	// down via cancel — if no newer generation has superseded this one
	// (onDesync may have already cancelled and restarted while this
	// goroutine was still unwinding from its own break/range-end).
	o.mu.Lock()
	stillActive := o.captureGen == gen
	var cancel func()
	if stillActive {
		o.capturing = false
		cancel = o.captureCancel
		o.captureCancel = nil
		o.captureUserID = ""
	}
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stillActive && hb != nil {
		hb.SetUserSpeaking(false)
	}

	pcm := make([]byte, 0, totalBytes)
	for _, c := range chunks {
		pcm = append(pcm, c...)
	}

	uttID := o.nextUttID()
	o.mu.Lock()
	pipeline := o.pipeline
	o.mu.Unlock()
	if pipeline != nil {
		pipeline.Enqueue(pcm, uttID)
	}
}
