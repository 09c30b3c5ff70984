package audiopipeline

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openclaw/voicebridge/pkg/chatstream"
	"github.com/openclaw/voicebridge/pkg/sttclient"
	"github.com/openclaw/voicebridge/pkg/ttsclient"
	"github.com/openclaw/voicebridge/pkg/voicecore"
	"github.com/openclaw/voicebridge/pkg/voiceplatform"
)

// sttServer replies with a fixed transcript for every request.
func sttServer(transcript string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"text":%q}`, transcript)
	}))
}

// chatServer streams sentences as SSE deltas, one data: line per sentence,
// then the [DONE] terminator, exactly as the gateway contract requires.
func chatServer(sentences []string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, s := range sentences {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", s)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

// ttsServer counts requests and echoes the requested input back as bytes.
type ttsServerState struct {
	mu    sync.Mutex
	calls int
}

func ttsServer(state *ttsServerState) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state.mu.Lock()
		state.calls++
		state.mu.Unlock()
		var req struct {
			Input string `json:"input"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Write([]byte(req.Input))
	}))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func newTestPipeline(t *testing.T, transcript string, sentences []string) (*Pipeline, *voiceplatform.MemoryPlayer, *ttsServerState, func()) {
	t.Helper()
	sttSrv := sttServer(transcript)
	chatSrv := chatServer(sentences)
	ttsState := &ttsServerState{}
	ttsSrv := ttsServer(ttsState)

	stt := sttclient.New(sttclient.NewOpenAITransport("key", "whisper-1", sttSrv.URL), 0, voicecore.NoOpLogger{})
	chat := chatstream.New(chatstream.NewGatewayProvider(chatSrv.URL, "tok", "agent", "session", "model"), voicecore.NoOpLogger{})
	tts := ttsclient.New(ttsclient.NewOpenAIProvider("key", "model", "voice", "", ttsSrv.URL))

	player := voiceplatform.NewMemoryPlayer()
	cfg := Config{NoiseFilterEnabled: true, TTSProvider: "stub", TTSModel: "m", TTSVoice: "v"}
	p := New(stt, chat, tts, nil, player, nil, voicecore.NoOpLogger{}, cfg, nil)

	cleanup := func() {
		sttSrv.Close()
		chatSrv.Close()
		ttsSrv.Close()
	}
	return p, player, ttsState, cleanup
}

func TestPipelineHappyPathPlaysSentencesInOrder(t *testing.T) {
	p, player, ttsState, cleanup := newTestPipeline(t, "hello there", []string{"First sentence. ", "Second sentence. "})
	defer cleanup()

	p.Enqueue([]byte{1, 2, 3}, "utt-1")

	// MemoryPlayer only reports idle on FinishPlayback, so end each chunk's
	// playback to let the pipeline move on to the next one.
	waitFor(t, func() bool {
		if len(player.PlayedChunks()) >= 2 {
			return true
		}
		player.FinishPlayback()
		return false
	})

	played := player.PlayedChunks()
	if !strings.HasPrefix(string(played[0].Bytes), "First") || !strings.HasPrefix(string(played[1].Bytes), "Second") {
		t.Errorf("expected sentences played in order, got %q then %q", played[0].Bytes, played[1].Bytes)
	}

	ttsState.mu.Lock()
	calls := ttsState.calls
	ttsState.mu.Unlock()
	if calls != 2 {
		t.Errorf("expected 2 TTS calls, got %d", calls)
	}
}

func TestPipelineFiltersNoiseUtterance(t *testing.T) {
	p, player, ttsState, cleanup := newTestPipeline(t, "um", nil)
	defer cleanup()

	p.Enqueue([]byte{1, 2, 3}, "utt-1")

	waitFor(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return !p.processing
	})

	played := len(player.PlayedChunks())
	if played != 0 {
		t.Errorf("expected no playback for a filtered utterance, got %d chunks", played)
	}
	ttsState.mu.Lock()
	calls := ttsState.calls
	ttsState.mu.Unlock()
	if calls != 0 {
		t.Errorf("expected no TTS calls for a filtered utterance, got %d", calls)
	}
}

func TestPipelineInterruptClearsQueues(t *testing.T) {
	p, player, _, cleanup := newTestPipeline(t, "hello there", []string{"First sentence. ", "Second sentence. "})
	defer cleanup()

	p.Enqueue([]byte{1, 2, 3}, "utt-1")
	p.Interrupt()

	p.mu.Lock()
	qLen := len(p.utteranceQueue)
	cLen := len(p.chunkQueue)
	playing := p.playingAudio
	p.mu.Unlock()

	if qLen != 0 || cLen != 0 || playing {
		t.Errorf("expected empty queues and idle playback after interrupt, got qLen=%d cLen=%d playing=%v", qLen, cLen, playing)
	}
	_ = player
}

func TestShouldFilterNoise(t *testing.T) {
	cases := map[string]bool{
		"um":           true,
		"uh.":          true,
		"hmm":          true,
		"...":          true,
		"hello there":  false,
		"":             false,
	}
	for in, want := range cases {
		if got := shouldFilterNoise(in); got != want {
			t.Errorf("shouldFilterNoise(%q) = %v, want %v", in, got, want)
		}
	}
}
