// Package sttclient implements spec §4.3: wrap captured PCM in a WAV
// envelope, reject utterances shorter than the configured minimum, and
// submit to a transcription endpoint. The endpoint call itself is a small
// Transport interface so the same wrapping/rejection logic serves every
// backend the teacher pack selects between by env var.
package sttclient

import (
	"context"

	"github.com/openclaw/voicebridge/pkg/audio"
	"github.com/openclaw/voicebridge/pkg/voicecore"
)

const (
	sampleRate    = 48000
	channels      = 2
	bitsPerSample = 16
	bytesPerFrame = channels * (bitsPerSample / 8)
)

// Transport performs the actual upload of a WAV-encoded buffer and returns
// the transcribed text. Implementations differ in endpoint, auth, and
// response shape; Client owns none of that.
type Transport interface {
	Submit(ctx context.Context, wav []byte) (string, error)
	Name() string
}

// Client wraps a Transport with the minimum-speech-length rejection and WAV
// envelope construction spec.md §4.3 requires of every STT backend.
type Client struct {
	transport   Transport
	minSpeechMs int
	logger      voicecore.Logger
}

// New builds a Client. minSpeechMs is VAD.MinSpeechMs from config; logger
// may be voicecore.NoOpLogger{}.
func New(transport Transport, minSpeechMs int, logger voicecore.Logger) *Client {
	if logger == nil {
		logger = voicecore.NoOpLogger{}
	}
	return &Client{transport: transport, minSpeechMs: minSpeechMs, logger: logger}
}

func (c *Client) Name() string { return c.transport.Name() }

// Transcribe wraps pcm in a WAV envelope and submits it. Utterances shorter
// than minSpeechMs yield an empty string without calling the transport.
// Transport failures are logged and also yield an empty string: spec.md
// §4.3 treats STT failure as a silent miss, not a propagated error.
func (c *Client) Transcribe(ctx context.Context, pcm []byte) string {
	minBytes := c.minSpeechMs * sampleRate * bytesPerFrame / 1000
	if len(pcm) < minBytes {
		return ""
	}

	wav := audio.NewWavBuffer(pcm, sampleRate, channels, bitsPerSample)
	text, err := c.transport.Submit(ctx, wav)
	if err != nil {
		c.logger.Error("stt transcription failed", "provider", c.transport.Name(), "error", err.Error())
		return ""
	}
	return text
}
