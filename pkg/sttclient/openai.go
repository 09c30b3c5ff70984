package sttclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// OpenAITransport submits the WAV buffer as multipart form data, matching
// the generic "POST <sttBase>/transcriptions" shape spec.md §6 describes.
// Groq's endpoint is wire-compatible with this shape, so GroqTransport
// shares this implementation with a different base URL and default model.
type OpenAITransport struct {
	apiKey string
	url    string
	model  string
	name   string
	client *http.Client
}

// NewOpenAITransport builds a transport against the OpenAI transcription
// endpoint. model defaults to "whisper-1" (spec.md §6 default). baseURL
// overrides the production endpoint when non-empty, for pointing at an
// httptest server in tests.
func NewOpenAITransport(apiKey, model, baseURL string) *OpenAITransport {
	if model == "" {
		model = "whisper-1"
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1/audio/transcriptions"
	}
	return &OpenAITransport{
		apiKey: apiKey,
		url:    baseURL,
		model:  model,
		name:   "openai",
		client: http.DefaultClient,
	}
}

// NewGroqTransport builds a transport against Groq's OpenAI-compatible
// transcription endpoint.
func NewGroqTransport(apiKey, model, baseURL string) *OpenAITransport {
	if model == "" {
		model = "whisper-large-v3-turbo"
	}
	if baseURL == "" {
		baseURL = "https://api.groq.com/openai/v1/audio/transcriptions"
	}
	return &OpenAITransport{
		apiKey: apiKey,
		url:    baseURL,
		model:  model,
		name:   "groq",
		client: http.DefaultClient,
	}
}

func (t *OpenAITransport) Name() string { return t.name }

func (t *OpenAITransport) Submit(ctx context.Context, wav []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("model", t.model); err != nil {
		return "", err
	}
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(wav); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("stt transcription endpoint: %s (status %d)", string(respBody), resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Text, nil
}
