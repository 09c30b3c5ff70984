package chatstream

import (
	"context"
	"errors"
	"time"

	"github.com/openclaw/voicebridge/pkg/voicecore"
)

// overallDeadline is spec.md §4.4's fixed 60-second request deadline.
const overallDeadline = 60 * time.Second

// Client drives one provider's streaming reply through sentence
// segmentation and cleaning, invoking onSentence for each completed,
// non-empty sentence in production order.
type Client struct {
	provider Provider
	logger   voicecore.Logger
}

func New(provider Provider, logger voicecore.Logger) *Client {
	if logger == nil {
		logger = voicecore.NoOpLogger{}
	}
	return &Client{provider: provider, logger: logger}
}

func (c *Client) Name() string { return c.provider.Name() }

// Stream opens the chat stream and reads it to completion, or until ctx is
// cancelled (the caller's cancel token is the "externally supplied cancel
// token" spec.md §4.4 requires). onSentence is called synchronously and in
// order as each sentence completes; the accumulated full text is returned
// at the end.
func (c *Client) Stream(ctx context.Context, messages []voicecore.Message, onSentence func(string)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, overallDeadline)
	defer cancel()

	stream, err := c.provider.Open(ctx, messages)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", voicecore.ErrCancelled
		}
		return "", err
	}
	defer stream.Close()

	var fullText string
	var splitter SentenceSplitter

	for {
		if ctx.Err() != nil {
			c.logger.Debug("chat stream cancelled", "provider", c.provider.Name())
			return fullText, voicecore.ErrCancelled
		}
		delta, err := stream.Next()
		if delta != "" {
			fullText += delta
			for _, raw := range splitter.Feed(delta) {
				if cleaned := CleanSentence(raw); cleaned != "" {
					onSentence(cleaned)
				}
			}
		}
		if err != nil {
			if errors.Is(err, errStreamDone) {
				break
			}
			if ctx.Err() != nil {
				c.logger.Debug("chat stream cancelled", "provider", c.provider.Name())
				return fullText, voicecore.ErrCancelled
			}
			return fullText, err
		}
	}

	if tail := splitter.Flush(); tail != "" {
		if cleaned := CleanSentence(tail); cleaned != "" {
			onSentence(cleaned)
		}
	}

	if fullText == "" {
		return "", ErrEmptyResponse
	}
	return fullText, nil
}

// errStreamDone is the sentinel DeltaStream implementations return from
// Next to signal a clean end of stream (distinct from io.EOF so a provider
// can still report a final delta alongside the terminator in one return).
var errStreamDone = errors.New("chat stream done")
