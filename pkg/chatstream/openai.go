package chatstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/openclaw/voicebridge/pkg/voicecore"
)

// OpenAIProvider streams OpenAI's (and Groq's wire-compatible) chat
// completion endpoint, generalizing the teacher's non-streaming
// OpenAILLM.Complete/GroqLLM to stream=true and SSE reading.
type OpenAIProvider struct {
	apiKey string
	url    string
	model  string
	name   string
	client *http.Client
}

func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAIProvider{
		apiKey: apiKey,
		url:    "https://api.openai.com/v1/chat/completions",
		model:  model,
		name:   "openai",
		client: http.DefaultClient,
	}
}

func NewGroqProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	return &OpenAIProvider{
		apiKey: apiKey,
		url:    "https://api.groq.com/openai/v1/chat/completions",
		model:  model,
		name:   "groq",
		client: http.DefaultClient,
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) Open(ctx context.Context, messages []voicecore.Message) (DeltaStream, error) {
	payload := map[string]interface{}{
		"model":    p.model,
		"stream":   true,
		"messages": messages,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s chat endpoint: %s (status %d)", voicecore.ErrTransientNetwork, p.name, string(respBody), resp.StatusCode)
	}
	return newOpenAICompatibleStream(resp.Body), nil
}
