package sttclient

import (
	"context"
	"testing"

	"github.com/openclaw/voicebridge/pkg/voicecore"
)

type stubTransport struct {
	text string
	err  error
	got  []byte
}

func (s *stubTransport) Name() string { return "stub" }

func (s *stubTransport) Submit(ctx context.Context, wav []byte) (string, error) {
	s.got = wav
	return s.text, s.err
}

func TestTranscribeRejectsShortUtterance(t *testing.T) {
	transport := &stubTransport{text: "hello"}
	c := New(transport, 200, voicecore.NoOpLogger{})

	got := c.Transcribe(context.Background(), make([]byte, 10))
	if got != "" {
		t.Errorf("expected empty string for short utterance, got %q", got)
	}
	if transport.got != nil {
		t.Error("expected transport not to be called for a short utterance")
	}
}

func TestTranscribeWrapsAndSubmits(t *testing.T) {
	transport := &stubTransport{text: "hello there"}
	c := New(transport, 200, voicecore.NoOpLogger{})

	minBytes := 200 * sampleRate * bytesPerFrame / 1000
	pcm := make([]byte, minBytes+100)

	got := c.Transcribe(context.Background(), pcm)
	if got != "hello there" {
		t.Errorf("expected %q, got %q", "hello there", got)
	}
	if len(transport.got) != 44+len(pcm) {
		t.Errorf("expected wav envelope of length %d, got %d", 44+len(pcm), len(transport.got))
	}
}

func TestTranscribeSwallowsTransportError(t *testing.T) {
	transport := &stubTransport{err: errFake{}}
	c := New(transport, 0, voicecore.NoOpLogger{})

	got := c.Transcribe(context.Background(), make([]byte, 100))
	if got != "" {
		t.Errorf("expected empty string on transport failure, got %q", got)
	}
}

type errFake struct{}

func (errFake) Error() string { return "boom" }
