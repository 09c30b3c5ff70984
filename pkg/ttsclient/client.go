// Package ttsclient implements spec §4.5: synthesise sentence text to audio
// bytes in a specified container, truncating long input, with a second
// "baked" mode used only by the TTS cache's pre-warm path to request OGG
// Opus for on-disk storage.
package ttsclient

import (
	"context"

	"github.com/openclaw/voicebridge/pkg/voicecore"
)

// maxChars is spec.md §4.5's truncation bound; text longer than this is cut
// and "..." appended before the request is built.
const maxChars = 4093

// Provider synthesises text against one TTS backend. Synthesize returns the
// backend's default container (typically MP3/compressed, tagged Arbitrary);
// SynthesizeBaked requests OGG Opus for the baked-phrase store. Abort closes
// any in-flight request/connection so the interruption path (spec.md §4.6)
// can unblock a stuck synth immediately.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text string) ([]byte, error)
	SynthesizeBaked(ctx context.Context, text string) ([]byte, error)
	Abort() error
}

// Client wraps a Provider with the truncation rule common to every backend.
type Client struct {
	provider Provider
}

func New(provider Provider) *Client {
	return &Client{provider: provider}
}

func (c *Client) Name() string { return c.provider.Name() }

func truncate(text string) string {
	if len(text) <= maxChars {
		return text
	}
	return text[:maxChars] + "..."
}

// Synthesize produces an AudioChunk in the provider's default container.
func (c *Client) Synthesize(ctx context.Context, text string) (voicecore.AudioChunk, error) {
	bytes, err := c.provider.Synthesize(ctx, truncate(text))
	if err != nil {
		return voicecore.AudioChunk{}, err
	}
	return voicecore.AudioChunk{Bytes: bytes, Container: voicecore.ContainerArbitrary}, nil
}

// SynthesizeBaked produces an OGG Opus AudioChunk, used only by the TTS
// cache's preWarm path.
func (c *Client) SynthesizeBaked(ctx context.Context, text string) (voicecore.AudioChunk, error) {
	bytes, err := c.provider.SynthesizeBaked(ctx, truncate(text))
	if err != nil {
		return voicecore.AudioChunk{}, err
	}
	return voicecore.AudioChunk{Bytes: bytes, Container: voicecore.ContainerOggOpus}, nil
}

// Abort unblocks any in-flight synthesis call.
func (c *Client) Abort() error { return c.provider.Abort() }
