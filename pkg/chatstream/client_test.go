package chatstream

import (
	"context"
	"errors"
	"testing"

	"github.com/openclaw/voicebridge/pkg/voicecore"
)

type fakeStream struct {
	deltas []string
	i      int
}

func (f *fakeStream) Next() (string, error) {
	if f.i >= len(f.deltas) {
		return "", errStreamDone
	}
	d := f.deltas[f.i]
	f.i++
	return d, nil
}

func (f *fakeStream) Close() error { return nil }

type fakeProvider struct {
	stream *fakeStream
	err    error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Open(ctx context.Context, messages []voicecore.Message) (DeltaStream, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

func TestStreamEmitsSentencesInOrder(t *testing.T) {
	provider := &fakeProvider{stream: &fakeStream{deltas: []string{"Hi there. ", "How are you?"}}}
	c := New(provider, voicecore.NoOpLogger{})

	var got []string
	fullText, err := c.Stream(context.Background(), nil, func(s string) { got = append(got, s) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fullText != "Hi there. How are you?" {
		t.Errorf("unexpected full text: %q", fullText)
	}
	want := []string{"Hi there.", "How are you?"}
	if len(got) != len(want) {
		t.Fatalf("expected %d sentences, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestStreamFlushesResidualAtEnd(t *testing.T) {
	provider := &fakeProvider{stream: &fakeStream{deltas: []string{"no terminator here"}}}
	c := New(provider, voicecore.NoOpLogger{})

	var got []string
	_, err := c.Stream(context.Background(), nil, func(s string) { got = append(got, s) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != "no terminator here" {
		t.Errorf("expected residual flush, got %v", got)
	}
}

func TestStreamEmptyResponseIsError(t *testing.T) {
	provider := &fakeProvider{stream: &fakeStream{deltas: nil}}
	c := New(provider, voicecore.NoOpLogger{})

	_, err := c.Stream(context.Background(), nil, func(string) {})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestStreamOpenFailurePropagates(t *testing.T) {
	provider := &fakeProvider{err: errors.New("boom")}
	c := New(provider, voicecore.NoOpLogger{})

	_, err := c.Stream(context.Background(), nil, func(string) {})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestStreamCancellation(t *testing.T) {
	provider := &fakeProvider{stream: &fakeStream{deltas: []string{"partial"}}}
	c := New(provider, voicecore.NoOpLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Stream(ctx, nil, func(string) {})
	if !errors.Is(err, voicecore.ErrCancelled) {
		t.Fatalf("expected cancellation to surface, got %v", err)
	}
}
