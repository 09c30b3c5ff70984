package sttclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// AssemblyAITransport is the only three-step variant: upload the buffer,
// submit a transcription job against the uploaded URL, then poll until the
// job completes or errors.
type AssemblyAITransport struct {
	apiKey string
	client *http.Client
	poll   time.Duration
}

func NewAssemblyAITransport(apiKey string) *AssemblyAITransport {
	return &AssemblyAITransport{apiKey: apiKey, client: http.DefaultClient, poll: 500 * time.Millisecond}
}

func (t *AssemblyAITransport) Name() string { return "assemblyai" }

func (t *AssemblyAITransport) Submit(ctx context.Context, wav []byte) (string, error) {
	uploadURL, err := t.upload(ctx, wav)
	if err != nil {
		return "", err
	}
	transcriptID, err := t.submitJob(ctx, uploadURL)
	if err != nil {
		return "", err
	}
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(t.poll):
			text, status, err := t.getTranscript(ctx, transcriptID)
			if err != nil {
				return "", err
			}
			switch status {
			case "completed":
				return text, nil
			case "error":
				return "", fmt.Errorf("assemblyai transcription failed")
			}
		}
	}
}

func (t *AssemblyAITransport) upload(ctx context.Context, wav []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.assemblyai.com/v2/upload", bytes.NewReader(wav))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		UploadURL string `json:"upload_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.UploadURL, nil
}

func (t *AssemblyAITransport) submitJob(ctx context.Context, uploadURL string) (string, error) {
	payload, err := json.Marshal(map[string]string{"audio_url": uploadURL})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.assemblyai.com/v2/transcript", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.ID, nil
}

func (t *AssemblyAITransport) getTranscript(ctx context.Context, id string) (text, status string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.assemblyai.com/v2/transcript/"+id, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	var result struct {
		Status string `json:"status"`
		Text   string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", err
	}
	return result.Text, result.Status, nil
}
