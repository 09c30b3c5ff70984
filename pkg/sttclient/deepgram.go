package sttclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// DeepgramTransport posts the WAV buffer directly (Deepgram accepts a raw
// audio body with format hints in the Content-Type header) rather than
// multipart form data.
type DeepgramTransport struct {
	apiKey string
	url    string
	model  string
	client *http.Client
}

func NewDeepgramTransport(apiKey, model string) *DeepgramTransport {
	if model == "" {
		model = "nova-2"
	}
	return &DeepgramTransport{
		apiKey: apiKey,
		url:    "https://api.deepgram.com/v1/listen",
		model:  model,
		client: http.DefaultClient,
	}
}

func (t *DeepgramTransport) Name() string { return "deepgram" }

func (t *DeepgramTransport) Submit(ctx context.Context, wav []byte) (string, error) {
	u, err := url.Parse(t.url)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", t.model)
	q.Set("smart_format", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(wav))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Token "+t.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("deepgram error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return result.Results.Channels[0].Alternatives[0].Transcript, nil
}
