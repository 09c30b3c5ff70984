package ttsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/openclaw/voicebridge/pkg/voicecore"
)

// OpenAIProvider calls the generic "POST <ttsBase>/audio/speech" endpoint
// spec.md §6 describes (OpenAI's own shape, reused as the default backend).
type OpenAIProvider struct {
	apiKey       string
	url          string
	model        string
	voice        string
	instructions string

	mu       sync.Mutex
	inflight *http.Request
	cancel   func()
}

// NewOpenAIProvider builds a provider against the OpenAI speech endpoint.
// baseURL overrides the production endpoint when non-empty, for pointing
// at an httptest server in tests.
func NewOpenAIProvider(apiKey, model, voice, instructions, baseURL string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1/audio/speech"
	}
	return &OpenAIProvider{
		apiKey:       apiKey,
		url:          baseURL,
		model:        model,
		voice:        voice,
		instructions: instructions,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return p.call(ctx, text, "mp3")
}

func (p *OpenAIProvider) SynthesizeBaked(ctx context.Context, text string) ([]byte, error) {
	return p.call(ctx, text, "opus")
}

func (p *OpenAIProvider) call(ctx context.Context, text, format string) ([]byte, error) {
	payload := map[string]interface{}{
		"model":           p.model,
		"voice":           p.voice,
		"input":           text,
		"response_format": format,
	}
	if p.instructions != "" {
		payload["instructions"] = p.instructions
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	p.mu.Lock()
	p.inflight = req
	p.cancel = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.inflight = nil
		p.cancel = nil
		p.mu.Unlock()
		cancel()
	}()

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: tts endpoint: %s (status %d)", voicecore.ErrTransientNetwork, string(respBody), resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Abort cancels the in-flight synthesis request, if any.
func (p *OpenAIProvider) Abort() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}
