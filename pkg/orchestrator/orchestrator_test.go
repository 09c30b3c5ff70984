package orchestrator

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openclaw/voicebridge/pkg/chatstream"
	"github.com/openclaw/voicebridge/pkg/config"
	"github.com/openclaw/voicebridge/pkg/metrics"
	"github.com/openclaw/voicebridge/pkg/sttclient"
	"github.com/openclaw/voicebridge/pkg/ttscache"
	"github.com/openclaw/voicebridge/pkg/ttsclient"
	"github.com/openclaw/voicebridge/pkg/voicecore"
	"github.com/openclaw/voicebridge/pkg/voiceplatform"
)

// identityDecoder treats each "packet" as already being raw PCM, so tests
// can drive the capture loop without a real Opus codec.
type identityDecoder struct{}

func (identityDecoder) Decode(packet []byte) ([]byte, error) { return packet, nil }

// failingDecoder always errors, for exercising the consecutive-failure
// thresholds.
type failingDecoder struct{}

func (failingDecoder) Decode(packet []byte) ([]byte, error) { return nil, fmt.Errorf("boom") }

func sttServer(transcript string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"text":%q}`, transcript)
	}))
}

func chatServer(sentences []string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, s := range sentences {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", s)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func ttsServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("audio-bytes"))
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

// autoReadySession wraps NewMemorySession so that every JoinChannel call
// returns a connection that progresses Connecting→Signalling→Ready on its
// own, the way a real gateway handshake would.
func autoReadySession() *voiceplatform.MemorySession {
	session := voiceplatform.NewMemorySession()
	session.JoinFunc = func(guildID, channelID string, selfDeaf, selfMute bool) (voiceplatform.Connection, error) {
		conn := voiceplatform.NewMemoryConnection()
		go func() {
			conn.SetState(voiceplatform.StateSignalling)
			conn.SetState(voiceplatform.StateReady)
		}()
		return conn, nil
	}
	return session
}

func newTestOrchestrator(t *testing.T, transcript string, sentences []string) (*Orchestrator, *voiceplatform.MemorySession, func()) {
	t.Helper()
	sttSrv := sttServer(transcript)
	chatSrv := chatServer(sentences)
	ttsSrv := ttsServer()

	stt := sttclient.New(sttclient.NewOpenAITransport("key", "whisper-1", sttSrv.URL), 0, voicecore.NoOpLogger{})
	chat := chatstream.New(chatstream.NewGatewayProvider(chatSrv.URL, "tok", "agent", "session", "model"), voicecore.NoOpLogger{})
	tts := ttsclient.New(ttsclient.NewOpenAIProvider("key", "model", "voice", "", ttsSrv.URL))
	cache := ttscache.New(nil)

	cfg := config.DefaultConfig()
	cfg.TargetUserID = "target-user"
	cfg.TargetChannelID = "target-channel"
	cfg.AutoJoin = true
	cfg.Resilience.UserLeftGraceSec = 1
	cfg.Resilience.MaxReconnectAttempts = 2
	cfg.Resilience.ReconnectBackoffMs = 10
	cfg.Resilience.ReconnectBackoffMaxMs = 20
	cfg.VAD.MaxUtteranceSec = 120

	session := autoReadySession()
	o := New(cfg, session, stt, chat, tts, cache, metrics.New(), voicecore.NoOpLogger{}, identityDecoder{})
	o.Start()

	cleanup := func() {
		sttSrv.Close()
		chatSrv.Close()
		ttsSrv.Close()
	}
	return o, session, cleanup
}

func TestPresenceJoinStartsHeartbeatAndCapture(t *testing.T) {
	o, session, cleanup := newTestOrchestrator(t, "hello there", []string{"Hi. "})
	defer cleanup()

	session.TriggerPresenceChange("target-user", "", "target-channel")

	waitFor(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.conn != nil && o.hb != nil
	})
}

func TestCaptureLoopEnqueuesUtteranceOnStreamEnd(t *testing.T) {
	o, session, cleanup := newTestOrchestrator(t, "hello there", []string{"Hi. "})
	defer cleanup()

	session.TriggerPresenceChange("target-user", "", "target-channel")
	waitFor(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.conn != nil
	})

	session.TriggerSpeakingStart("target-user")
	waitFor(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.capturing
	})

	session.PushPacket("target-user", []byte{1, 2, 3, 4})
	session.EndStream("target-user", nil)

	waitFor(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.pipeline != nil && o.pipeline.LastTranscript() == "hello there"
	})
}

func TestDuplicateSpeakingStartIsDroppedWhileCapturing(t *testing.T) {
	o, session, cleanup := newTestOrchestrator(t, "hello there", nil)
	defer cleanup()

	session.TriggerPresenceChange("target-user", "", "target-channel")
	waitFor(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.conn != nil
	})

	session.TriggerSpeakingStart("target-user")
	waitFor(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.capturing
	})

	before := o.uttSeq
	session.TriggerSpeakingStart("target-user")
	time.Sleep(20 * time.Millisecond)

	o.mu.Lock()
	after := o.uttSeq
	o.mu.Unlock()
	if after <= before {
		t.Errorf("expected the dropped duplicate to still consume a uttId, before=%d after=%d", before, after)
	}

	session.EndStream("target-user", nil)
}

func TestUserLeaveGraceTearsDownAfterExpiry(t *testing.T) {
	o, session, cleanup := newTestOrchestrator(t, "hello there", nil)
	defer cleanup()

	session.TriggerPresenceChange("target-user", "", "target-channel")
	waitFor(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.conn != nil
	})

	session.TriggerPresenceChange("target-user", "target-channel", "")

	waitFor(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.conn == nil
	})
}

func TestUserLeaveGraceCancelledByRejoin(t *testing.T) {
	o, session, cleanup := newTestOrchestrator(t, "hello there", nil)
	defer cleanup()

	session.TriggerPresenceChange("target-user", "", "target-channel")
	waitFor(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.conn != nil
	})

	session.TriggerPresenceChange("target-user", "target-channel", "")
	o.mu.Lock()
	connBefore := o.conn
	o.mu.Unlock()

	session.TriggerPresenceChange("target-user", "", "target-channel")
	time.Sleep(1500 * time.Millisecond)

	o.mu.Lock()
	connAfter := o.conn
	o.mu.Unlock()
	if connAfter != connBefore {
		t.Errorf("expected rejoin to cancel the grace timer and keep the original connection")
	}
}

func TestOpusDecodeFailuresDestroyStreamPastThreshold(t *testing.T) {
	sttSrv := sttServer("hello")
	chatSrv := chatServer(nil)
	ttsSrv := ttsServer()
	defer sttSrv.Close()
	defer chatSrv.Close()
	defer ttsSrv.Close()

	stt := sttclient.New(sttclient.NewOpenAITransport("key", "whisper-1", sttSrv.URL), 0, voicecore.NoOpLogger{})
	chat := chatstream.New(chatstream.NewGatewayProvider(chatSrv.URL, "tok", "agent", "session", "model"), voicecore.NoOpLogger{})
	tts := ttsclient.New(ttsclient.NewOpenAIProvider("key", "model", "voice", "", ttsSrv.URL))

	cfg := config.DefaultConfig()
	cfg.TargetUserID = "target-user"
	cfg.TargetChannelID = "target-channel"
	cfg.VAD.MaxUtteranceSec = 120

	session := autoReadySession()
	o := New(cfg, session, stt, chat, tts, nil, metrics.New(), voicecore.NoOpLogger{}, failingDecoder{})
	o.Start()

	session.TriggerPresenceChange("target-user", "", "target-channel")
	waitFor(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.conn != nil
	})

	session.TriggerSpeakingStart("target-user")
	waitFor(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.capturing
	})

	for i := 0; i < 60; i++ {
		session.PushPacket("target-user", []byte{byte(i)})
	}

	waitFor(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return !o.capturing
	})

	o.mu.Lock()
	cancelled := o.captureCancel == nil
	o.mu.Unlock()
	if !cancelled {
		t.Error("expected the receive stream to be torn down (captureCancel cleared) past the destroy threshold")
	}

	// A fresh speakingStart after the destroyed stream must be able to
	// start a new capture (not be dropped as a false duplicate).
	before := o.uttSeq
	session.TriggerSpeakingStart("target-user")
	waitFor(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.capturing
	})
	session.EndStream("target-user", nil)
	waitFor(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.uttSeq > before
	})
}

func TestDesyncCancelsAndResubscribesWhileCapturing(t *testing.T) {
	o, session, cleanup := newTestOrchestrator(t, "hello there", nil)
	defer cleanup()

	session.TriggerPresenceChange("target-user", "", "target-channel")
	waitFor(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.conn != nil
	})

	session.TriggerSpeakingStart("target-user")
	waitFor(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.capturing
	})

	o.mu.Lock()
	genBefore := o.captureGen
	o.mu.Unlock()

	o.onDesync()

	waitFor(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.captureGen > genBefore && o.capturing
	})

	// Packets pushed after the desync-triggered resubscribe must flow into
	// the new capture generation, proving the old stream was actually torn
	// down and replaced rather than left dangling alongside a new one.
	session.PushPacket("target-user", []byte{1, 2, 3, 4})
	session.EndStream("target-user", nil)

	waitFor(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.pipeline != nil && o.pipeline.LastTranscript() == "hello there"
	})
}
