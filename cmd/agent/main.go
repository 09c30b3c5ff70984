package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/voicebridge/pkg/chatstream"
	"github.com/openclaw/voicebridge/pkg/config"
	"github.com/openclaw/voicebridge/pkg/logging"
	"github.com/openclaw/voicebridge/pkg/metrics"
	"github.com/openclaw/voicebridge/pkg/orchestrator"
	"github.com/openclaw/voicebridge/pkg/sttclient"
	"github.com/openclaw/voicebridge/pkg/ttscache"
	"github.com/openclaw/voicebridge/pkg/ttsclient"
	"github.com/openclaw/voicebridge/pkg/voiceplatform"
)

func buildSTT(cfg config.Config, logger *logging.ZerologAdapter) *sttclient.Client {
	var transport sttclient.Transport
	switch cfg.STT.Provider {
	case "openai":
		transport = sttclient.NewOpenAITransport(cfg.STT.APIKey, cfg.STT.Model, "")
	case "deepgram":
		transport = sttclient.NewDeepgramTransport(cfg.STT.APIKey, cfg.STT.Model)
	case "assemblyai":
		transport = sttclient.NewAssemblyAITransport(cfg.STT.APIKey)
	case "groq":
		fallthrough
	default:
		transport = sttclient.NewGroqTransport(cfg.STT.APIKey, cfg.STT.Model, "")
	}
	return sttclient.New(transport, cfg.VAD.MinSpeechMs, logger)
}

func buildChat(cfg config.Config, logger *logging.ZerologAdapter) *chatstream.Client {
	var provider chatstream.Provider
	switch cfg.Gateway.URL {
	case "":
		// No gateway configured: fall back to a direct provider selected by
		// STT_PROVIDER's sibling, LLM_PROVIDER, the way the teacher's
		// cmd/agent chose between direct vendor SDKs.
		switch os.Getenv("LLM_PROVIDER") {
		case "openai":
			provider = chatstream.NewOpenAIProvider(os.Getenv("OPENAI_API_KEY"), "gpt-4o")
		case "anthropic":
			provider = chatstream.NewAnthropicProvider(os.Getenv("ANTHROPIC_API_KEY"), "claude-3-5-sonnet-20241022")
		case "google":
			provider = chatstream.NewGoogleProvider(os.Getenv("GOOGLE_API_KEY"), "gemini-1.5-flash")
		default:
			provider = chatstream.NewGroqProvider(os.Getenv("GROQ_API_KEY"), "llama-3.3-70b-versatile")
		}
	default:
		provider = chatstream.NewGatewayProvider(cfg.Gateway.URL, cfg.Gateway.Token, cfg.Gateway.AgentID, cfg.Gateway.SessionKey, "gpt-4o-mini")
	}
	return chatstream.New(provider, logger)
}

func buildTTS(cfg config.Config) *ttsclient.Client {
	var provider ttsclient.Provider
	switch cfg.TTS.Provider {
	case "lokutor":
		provider = ttsclient.NewLokutorProvider(cfg.TTS.APIKey, cfg.TTS.Voice, "en")
	case "openai":
		fallthrough
	default:
		provider = ttsclient.NewOpenAIProvider(cfg.TTS.APIKey, cfg.TTS.Model, cfg.TTS.Voice, cfg.TTS.Instructions, "")
	}
	return ttsclient.New(provider)
}

// greetingPhrases and checkInPhrases are the baked-phrase manifests
// pre-warmed once at startup, before any channel is joined, when
// Cache.PreWarmOnConnect is set (spec.md §4.2); a real deployment would load these
// from a content file, but a fixed set keeps this example self-contained.
var greetingPhrases = []string{
	"Hey, I'm here.",
	"Hi there, ready when you are.",
}

var checkInPhrases = []string{
	"Still there?",
	"Everything okay?",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	logger := logging.New(os.Getenv("LOG_LEVEL"))
	sessionID := uuid.NewString()
	logger.Info("starting voice bridge agent", "sessionId", sessionID, "targetUserId", cfg.TargetUserID)

	m := metrics.New()
	cache := ttscache.New(m)

	stt := buildSTT(cfg, logger)
	chat := buildChat(cfg, logger)
	tts := buildTTS(cfg)

	if cfg.Cache.PreWarmOnConnect {
		ctx := context.Background()
		if err := cache.PreWarm(ctx, greetingPhrases, "greetings", tts, cfg.Cache.BakedPhrasesDir, cfg.TTS.Provider, cfg.TTS.Model, cfg.TTS.Voice, cfg.TTS.Instructions, cfg.Cache.MaxSizeMb, logger); err != nil {
			logger.Warn("greeting prewarm failed", "error", err.Error())
		}
		if err := cache.PreWarm(ctx, checkInPhrases, "check-ins", tts, cfg.Cache.BakedPhrasesDir, cfg.TTS.Provider, cfg.TTS.Model, cfg.TTS.Voice, cfg.TTS.Instructions, cfg.Cache.MaxSizeMb, logger); err != nil {
			logger.Warn("check-in prewarm failed", "error", err.Error())
		}
	}

	// No voice-platform adapter ships with this module (the UDP/Opus
	// transport is out of scope); MemorySession documents the extension
	// point a real adapter implements. Swapping it for a live adapter is
	// the only change needed to run against a real voice platform.
	session := voiceplatform.NewMemorySession()

	orch := orchestrator.New(cfg, session, stt, chat, tts, cache, m, logger, nil)
	orch.Start()
	if cfg.AutoJoin {
		orch.JoinNow()
	}

	if cfg.Observability.HealthPort > 0 {
		healthSrv := metrics.NewServer()
		healthSrv.SetSession(m, time.Now())
		addr := fmt.Sprintf(":%d", cfg.Observability.HealthPort)
		go func() {
			logger.Info("health server listening", "addr", addr)
			if err := http.ListenAndServe(addr, healthSrv.Router()); err != nil {
				logger.Error("health server stopped", "error", err.Error())
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down", "sessionId", sessionID)
	orch.Shutdown()
}
