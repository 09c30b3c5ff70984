package ttsclient

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// LokutorProvider streams synthesis over a persistent websocket connection,
// adapted from the teacher's pkg/providers/tts/lokutor.go. Abort closes the
// connection so a stuck read in Synthesize or SynthesizeBaked unblocks
// immediately; the
// teacher's own TTSProvider interface never declared Abort even though its
// ManagedStream called it — this version fixes that gap.
type LokutorProvider struct {
	apiKey string
	host   string
	voice  string
	lang   string

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewLokutorProvider(apiKey, voice, lang string) *LokutorProvider {
	return &LokutorProvider{apiKey: apiKey, host: "api.lokutor.com", voice: voice, lang: lang}
}

func (p *LokutorProvider) Name() string { return "lokutor" }

func (p *LokutorProvider) getConn(ctx context.Context) (*websocket.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		return p.conn, nil
	}

	u := url.URL{Scheme: "wss", Host: p.host, Path: "/ws", RawQuery: "api_key=" + p.apiKey}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to lokutor: %w", err)
	}
	p.conn = conn
	return conn, nil
}

func (p *LokutorProvider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return p.synthesize(ctx, text, "versa-1.0")
}

func (p *LokutorProvider) SynthesizeBaked(ctx context.Context, text string) ([]byte, error) {
	return p.synthesize(ctx, text, "versa-1.0-opus")
}

func (p *LokutorProvider) synthesize(ctx context.Context, text, version string) ([]byte, error) {
	conn, err := p.getConn(ctx)
	if err != nil {
		return nil, err
	}

	req := map[string]interface{}{
		"text":    text,
		"voice":   p.voice,
		"lang":    p.lang,
		"speed":   1.05,
		"steps":   5,
		"version": version,
	}
	if err := wsjson.Write(ctx, conn, req); err != nil {
		p.dropConn()
		conn.Close(websocket.StatusAbnormalClosure, "failed to write json")
		return nil, fmt.Errorf("failed to send synthesis request: %w", err)
	}

	var audio []byte
	for {
		messageType, payload, err := conn.Read(ctx)
		if err != nil {
			p.dropConn()
			conn.Close(websocket.StatusAbnormalClosure, "failed to read")
			return nil, fmt.Errorf("failed to read from lokutor: %w", err)
		}

		switch messageType {
		case websocket.MessageBinary:
			audio = append(audio, payload...)
		case websocket.MessageText:
			msg := string(payload)
			if msg == "EOS" {
				return audio, nil
			}
			if len(msg) >= 4 && msg[:4] == "ERR:" {
				return nil, fmt.Errorf("lokutor error: %s", msg)
			}
		}
	}
}

func (p *LokutorProvider) dropConn() {
	p.mu.Lock()
	p.conn = nil
	p.mu.Unlock()
}

// Abort closes the persistent connection, unblocking any in-flight Read and
// forcing the next call to reconnect.
func (p *LokutorProvider) Abort() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close(websocket.StatusNormalClosure, "aborted")
	p.conn = nil
	return err
}
