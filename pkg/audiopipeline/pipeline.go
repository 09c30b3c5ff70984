// Package audiopipeline drains captured utterances through transcription,
// streaming chat completion, and per-sentence speech synthesis, then plays
// the resulting audio chunks back in strict submission order. Grounded on
// the teacher's ManagedStream drain/interrupt/playback machinery
// (managed_stream.go), generalized from a local-mic capture model to one
// where the caller hands over a complete utterance buffer.
package audiopipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/openclaw/voicebridge/pkg/chatstream"
	"github.com/openclaw/voicebridge/pkg/metrics"
	"github.com/openclaw/voicebridge/pkg/sttclient"
	"github.com/openclaw/voicebridge/pkg/ttscache"
	"github.com/openclaw/voicebridge/pkg/ttsclient"
	"github.com/openclaw/voicebridge/pkg/voicecore"
	"github.com/openclaw/voicebridge/pkg/voiceplatform"
)

// Config carries the subset of the frozen configuration record the
// pipeline needs: cache policy and the TTS identity that keys the cache.
type Config struct {
	CacheEnabled       bool
	CacheMaxSizeMb     int
	NoiseFilterEnabled bool

	TTSProvider     string
	TTSModel        string
	TTSVoice        string
	TTSInstructions string
}

type utteranceJob struct {
	pcm   []byte
	uttID string
}

// Pipeline owns the utterance FIFO, the chunk FIFO, and the playback state
// for one joined session. The zero value is not usable; construct with New.
type Pipeline struct {
	stt    *sttclient.Client
	chat   *chatstream.Client
	tts    *ttsclient.Client
	cache  *ttscache.Cache
	player voiceplatform.Player
	metrics *metrics.Metrics
	logger  voicecore.Logger
	history *History
	cfg     Config

	onBotSpeech func()

	mu               sync.Mutex
	utteranceQueue   []utteranceJob
	chunkQueue       []voicecore.AudioChunk
	processing       bool
	playingAudio     bool
	e2eRecorded      bool
	currentAbort     context.CancelFunc
	currentUttID     string
	lastTranscript   string
	utteranceStartAt time.Time
}

// New builds a Pipeline and subscribes its playback-idle handler to player.
// onBotSpeech is invoked once per chunk that starts playing (the caller
// uses it to timestamp the heartbeat's lastBotSpeechAt).
func New(stt *sttclient.Client, chat *chatstream.Client, tts *ttsclient.Client, cache *ttscache.Cache, player voiceplatform.Player, m *metrics.Metrics, logger voicecore.Logger, cfg Config, onBotSpeech func()) *Pipeline {
	if logger == nil {
		logger = voicecore.NoOpLogger{}
	}
	p := &Pipeline{
		stt:         stt,
		chat:        chat,
		tts:         tts,
		cache:       cache,
		player:      player,
		metrics:     m,
		logger:      logger,
		history:     NewHistory(),
		cfg:         cfg,
		onBotSpeech: onBotSpeech,
	}
	player.OnIdle(func() { p.playNextChunk() })
	return p
}

// LastTranscript returns the most recently transcribed utterance text, used
// by the bot-stall recovery path to judge whether there is anything to
// react to.
func (p *Pipeline) LastTranscript() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTranscript
}

func (p *Pipeline) incMetric(name string) {
	if p.metrics != nil {
		p.metrics.Inc(name)
	}
}

func (p *Pipeline) observe(name string, valueMs float64) {
	if p.metrics != nil {
		p.metrics.Observe(name, valueMs)
	}
}

func (p *Pipeline) logEvent(event, uttID string, kv ...interface{}) {
	args := append([]interface{}{"event", event, "uttId", uttID}, kv...)
	p.logger.Info("pipeline event", args...)
}

// Enqueue appends a captured utterance to the FIFO and starts the drain
// loop if it is not already running.
func (p *Pipeline) Enqueue(pcm []byte, uttID string) {
	p.mu.Lock()
	p.utteranceQueue = append(p.utteranceQueue, utteranceJob{pcm: pcm, uttID: uttID})
	start := !p.processing
	if start {
		p.processing = true
	}
	p.mu.Unlock()
	if start {
		go p.drain()
	}
}

func (p *Pipeline) drain() {
	for {
		p.mu.Lock()
		if len(p.utteranceQueue) == 0 {
			p.processing = false
			p.mu.Unlock()
			return
		}
		job := p.utteranceQueue[0]
		p.utteranceQueue = p.utteranceQueue[1:]
		p.currentUttID = job.uttID
		p.utteranceStartAt = time.Now()
		p.e2eRecorded = false
		ctx, cancel := context.WithCancel(context.Background())
		p.currentAbort = cancel
		p.mu.Unlock()

		p.logEvent("UTTERANCE_RECEIVED", job.uttID)
		err := p.runUtterance(ctx, job)
		cancel()

		p.mu.Lock()
		p.currentAbort = nil
		p.mu.Unlock()

		if err != nil {
			p.logger.Error("utterance processing failed", "uttId", job.uttID, "error", err.Error())
			p.mu.Lock()
			p.processing = false
			p.mu.Unlock()
			time.AfterFunc(time.Second, p.resumeDrain)
			return
		}

		for {
			p.mu.Lock()
			idle := len(p.chunkQueue) == 0 && !p.playingAudio
			p.mu.Unlock()
			if idle {
				break
			}
			time.Sleep(100 * time.Millisecond)
		}
		p.logEvent("UTTERANCE_COMPLETE", job.uttID)
	}
}

// resumeDrain restarts the drain loop after a failure's 1s backoff, unless
// something else (e.g. a fresh Enqueue) already restarted it first.
func (p *Pipeline) resumeDrain() {
	p.mu.Lock()
	if p.processing || len(p.utteranceQueue) == 0 {
		p.mu.Unlock()
		return
	}
	p.processing = true
	p.mu.Unlock()
	p.drain()
}

func (p *Pipeline) runUtterance(ctx context.Context, job utteranceJob) error {
	p.logEvent("STT_START", job.uttID)
	sttStart := time.Now()
	transcript := p.stt.Transcribe(ctx, job.pcm)
	p.observe(metrics.TimingSTTLatencyMs, float64(time.Since(sttStart).Milliseconds()))
	p.incMetric(metrics.CounterSTTRequests)
	p.logEvent("STT_DONE", job.uttID, "chars", len(transcript))

	if transcript == "" {
		return nil
	}
	if p.cfg.NoiseFilterEnabled && shouldFilterNoise(transcript) {
		p.logEvent("UTTERANCE_FILTERED", job.uttID, "transcript", transcript)
		return nil
	}

	p.mu.Lock()
	p.lastTranscript = transcript
	p.mu.Unlock()

	p.history.AddUser(transcript)
	messages := p.history.Snapshot()

	p.logEvent("LLM_START", job.uttID)
	llmStart := time.Now()
	firstToken := false
	fullText, err := p.chat.Stream(ctx, messages, func(sentence string) {
		if !firstToken {
			firstToken = true
			p.logEvent("LLM_FIRST_TOKEN", job.uttID)
		}
		p.synthesizeSentence(ctx, job.uttID, sentence)
	})
	p.observe(metrics.TimingLLMLatencyMs, float64(time.Since(llmStart).Milliseconds()))
	if err != nil {
		if errors.Is(err, voicecore.ErrCancelled) || errors.Is(err, chatstream.ErrEmptyResponse) {
			return nil
		}
		p.incMetric(metrics.CounterLLMErrors)
		return err
	}
	p.logEvent("LLM_DONE", job.uttID, "chars", len(fullText))
	if fullText != "" {
		p.history.AddAssistant(fullText)
	}
	return nil
}

func (p *Pipeline) synthesizeSentence(ctx context.Context, uttID, sentence string) {
	var key string
	if p.cache != nil {
		key = ttscache.Key(p.cfg.TTSProvider, p.cfg.TTSModel, p.cfg.TTSVoice, p.cfg.TTSInstructions, sentence)
		if buf, ok := p.cache.Get(key); ok {
			p.enqueueChunk(voicecore.AudioChunk{Bytes: buf, Container: voicecore.ContainerArbitrary})
			return
		}
	}

	p.logEvent("TTS_START", uttID)
	ttsStart := time.Now()
	chunk, err := p.tts.Synthesize(ctx, sentence)
	p.observe(metrics.TimingTTSLatencyMs, float64(time.Since(ttsStart).Milliseconds()))
	p.incMetric(metrics.CounterTTSRequests)
	if err != nil {
		if !errors.Is(err, voicecore.ErrCancelled) {
			p.logger.Error("tts synthesis failed", "uttId", uttID, "error", err.Error())
		}
		return
	}
	p.logEvent("TTS_DONE", uttID)

	if p.cache != nil {
		p.cache.Set(key, chunk.Bytes, p.cfg.CacheMaxSizeMb)
	}
	p.enqueueChunk(chunk)
}

func (p *Pipeline) enqueueChunk(chunk voicecore.AudioChunk) {
	p.mu.Lock()
	p.chunkQueue = append(p.chunkQueue, chunk)
	idle := !p.playingAudio
	p.mu.Unlock()
	if idle {
		p.playNextChunk()
	}
}

// playNextChunk pops the head chunk and submits it to the player, or marks
// playback idle and logs PLAYBACK_DONE once the chunk FIFO is drained. The
// player's OnIdle handler calls this again when a chunk finishes.
func (p *Pipeline) playNextChunk() {
	p.mu.Lock()
	if len(p.chunkQueue) == 0 {
		p.playingAudio = false
		uttID := p.currentUttID
		p.mu.Unlock()
		p.logEvent("PLAYBACK_DONE", uttID)
		return
	}
	chunk := p.chunkQueue[0]
	p.chunkQueue = p.chunkQueue[1:]
	p.playingAudio = true
	firstForUtterance := !p.e2eRecorded
	p.e2eRecorded = true
	uttID := p.currentUttID
	startedAt := p.utteranceStartAt
	p.mu.Unlock()

	if p.onBotSpeech != nil {
		p.onBotSpeech()
	}
	if firstForUtterance {
		p.observe(metrics.TimingPipelineE2EMs, float64(time.Since(startedAt).Milliseconds()))
	}
	p.logEvent("PLAYBACK_START", uttID)
	if err := p.player.Play(chunk); err != nil {
		p.logger.Error("playback submit failed", "uttId", uttID, "error", err.Error())
		p.playNextChunk()
	}
}

// SpeakDirect synthesises text through the same cache-first TTS path as any
// sentence and enqueues the result, independent of any in-flight
// utterance. Used by liveness callbacks (silence prompt, grace announce,
// bot-stall recovery) that need to speak a fixed line outside the normal
// STT→chat→TTS turn.
func (p *Pipeline) SpeakDirect(text string) {
	p.synthesizeSentence(context.Background(), "liveness", text)
}

// PlayDirect pushes a pre-synthesised chunk straight onto the playback
// queue, bypassing TTS entirely. Used for cached check-in/greeting phrases.
func (p *Pipeline) PlayDirect(chunk voicecore.AudioChunk) {
	p.enqueueChunk(chunk)
}

// Interrupt aborts the current utterance, discards both FIFOs with no
// partial audio preserved, stops the voice sink hard, and forces the
// pipeline idle so the next Enqueue starts a fresh drain.
func (p *Pipeline) Interrupt() {
	p.mu.Lock()
	abort := p.currentAbort
	p.currentAbort = nil
	p.utteranceQueue = nil
	p.chunkQueue = nil
	p.playingAudio = false
	p.processing = false
	uttID := p.currentUttID
	p.mu.Unlock()

	if abort != nil {
		abort()
	}
	p.player.Stop()
	if err := p.tts.Abort(); err != nil {
		p.logger.Warn("tts abort failed", "error", err.Error())
	}
	p.logEvent("INTERRUPT", uttID)
}
