package ttsclient

import (
	"context"
	"strings"
	"testing"

	"github.com/openclaw/voicebridge/pkg/voicecore"
)

type stubProvider struct {
	gotText       string
	gotBakedText  string
	abortCalled   bool
	synthesizeErr error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	s.gotText = text
	if s.synthesizeErr != nil {
		return nil, s.synthesizeErr
	}
	return []byte(text), nil
}

func (s *stubProvider) SynthesizeBaked(ctx context.Context, text string) ([]byte, error) {
	s.gotBakedText = text
	return []byte(text), nil
}

func (s *stubProvider) Abort() error {
	s.abortCalled = true
	return nil
}

func TestSynthesizeTagsArbitraryContainer(t *testing.T) {
	provider := &stubProvider{}
	c := New(provider)

	chunk, err := c.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chunk.Container != voicecore.ContainerArbitrary {
		t.Errorf("expected Arbitrary container, got %v", chunk.Container)
	}
	if string(chunk.Bytes) != "hello" {
		t.Errorf("unexpected bytes: %s", chunk.Bytes)
	}
}

func TestSynthesizeBakedTagsOggOpusContainer(t *testing.T) {
	provider := &stubProvider{}
	c := New(provider)

	chunk, err := c.SynthesizeBaked(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chunk.Container != voicecore.ContainerOggOpus {
		t.Errorf("expected OggOpus container, got %v", chunk.Container)
	}
}

func TestSynthesizeTruncatesLongText(t *testing.T) {
	provider := &stubProvider{}
	c := New(provider)

	long := strings.Repeat("a", maxChars+50)
	if _, err := c.Synthesize(context.Background(), long); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(provider.gotText) != maxChars+3 {
		t.Fatalf("expected truncated length %d, got %d", maxChars+3, len(provider.gotText))
	}
	if !strings.HasSuffix(provider.gotText, "...") {
		t.Errorf("expected truncated text to end with '...', got suffix %q", provider.gotText[len(provider.gotText)-3:])
	}
}

func TestSynthesizeLeavesShortTextUntouched(t *testing.T) {
	provider := &stubProvider{}
	c := New(provider)

	if _, err := c.Synthesize(context.Background(), "short"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.gotText != "short" {
		t.Errorf("expected untruncated text, got %q", provider.gotText)
	}
}

func TestAbortDelegatesToProvider(t *testing.T) {
	provider := &stubProvider{}
	c := New(provider)

	if err := c.Abort(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !provider.abortCalled {
		t.Error("expected Abort to delegate to the provider")
	}
}
