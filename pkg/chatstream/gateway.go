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

// GatewayProvider is the primary backend: spec.md §6's
// "POST <gatewayUrl>/v1/chat/completions" contract with the
// x-openclaw-agent-id/x-openclaw-session-key headers.
type GatewayProvider struct {
	url        string
	token      string
	agentID    string
	sessionKey string
	model      string
	client     *http.Client
}

func NewGatewayProvider(baseURL, token, agentID, sessionKey, model string) *GatewayProvider {
	return &GatewayProvider{
		url:        baseURL + "/v1/chat/completions",
		token:      token,
		agentID:    agentID,
		sessionKey: sessionKey,
		model:      model,
		client:     http.DefaultClient,
	}
}

func (p *GatewayProvider) Name() string { return "gateway" }

func (p *GatewayProvider) Open(ctx context.Context, messages []voicecore.Message) (DeltaStream, error) {
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
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("x-openclaw-agent-id", p.agentID)
	req.Header.Set("x-openclaw-session-key", p.sessionKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%w: gateway chat endpoint: %s (status %d)", voicecore.ErrTransientNetwork, string(respBody), resp.StatusCode)
	}
	return newOpenAICompatibleStream(resp.Body), nil
}
