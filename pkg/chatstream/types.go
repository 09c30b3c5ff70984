// Package chatstream implements spec §4.4: a streaming chat-completion
// request, sentence-boundary segmentation and markdown scrubbing for TTS,
// and the two cancellation sources (60s deadline, external interrupt
// token). Each backend only differs in how it opens the stream and how it
// decodes one delta off the wire; that shape is captured by Provider/
// DeltaStream so the segmentation/cleaning/cancellation logic in Client is
// written once.
package chatstream

import (
	"context"
	"errors"

	"github.com/openclaw/voicebridge/pkg/voicecore"
)

// ErrEmptyResponse marks a stream that completed with no accumulated text.
var ErrEmptyResponse = errors.New("chat stream returned empty response")

// Provider opens one streaming chat-completion request against a specific
// backend and returns a DeltaStream positioned at the start of the reply.
type Provider interface {
	Name() string
	Open(ctx context.Context, messages []voicecore.Message) (DeltaStream, error)
}

// DeltaStream yields successive content fragments of a streaming reply.
// Next returns the package's internal done sentinel once the stream hits
// its clean "[DONE]"/stop-reason terminator; any other error is a
// transport failure.
type DeltaStream interface {
	Next() (delta string, err error)
	Close() error
}
