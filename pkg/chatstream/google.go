package chatstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openclaw/voicebridge/pkg/voicecore"
)

// GoogleProvider streams Gemini's generateContent endpoint in SSE mode
// (`?alt=sse`), generalizing the teacher's non-streaming GoogleLLM
// (role remapping: system/assistant -> user/model) to streaming.
type GoogleProvider struct {
	apiKey string
	url    string
	client *http.Client
}

func NewGoogleProvider(apiKey, model string) *GoogleProvider {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GoogleProvider{
		apiKey: apiKey,
		url:    "https://generativelanguage.googleapis.com/v1beta/models/" + model + ":streamGenerateContent",
		client: http.DefaultClient,
	}
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) Open(ctx context.Context, messages []voicecore.Message) (DeltaStream, error) {
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Role  string `json:"role"`
		Parts []part `json:"parts"`
	}

	contents := make([]content, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		switch role {
		case "system":
			role = "user"
		case "assistant":
			role = "model"
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}

	body, err := json.Marshal(map[string]interface{}{"contents": contents})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"?alt=sse&key="+p.apiKey, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%w: google chat endpoint: %s (status %d)", voicecore.ErrTransientNetwork, string(respBody), resp.StatusCode)
	}
	return &googleStream{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

type googleStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func (s *googleStream) Next() (string, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}

		var event struct {
			Candidates []struct {
				Content struct {
					Parts []struct {
						Text string `json:"text"`
					} `json:"parts"`
				} `json:"content"`
			} `json:"candidates"`
		}
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue
		}
		if len(event.Candidates) == 0 || len(event.Candidates[0].Content.Parts) == 0 {
			continue
		}
		return event.Candidates[0].Content.Parts[0].Text, nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", errStreamDone
}

func (s *googleStream) Close() error { return s.body.Close() }
