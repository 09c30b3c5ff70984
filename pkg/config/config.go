// Package config loads and validates the frozen configuration record that
// every other component of the voice bridge reads from. Loading follows the
// teacher's own idiom (github.com/joho/godotenv for an optional .env file,
// then plain os.Getenv reads with defaults) rather than a generic config
// framework — matching cmd/agent/main.go's provider-selection style.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/openclaw/voicebridge/pkg/voicecore"
)

// Initiative scales how aggressively the bot prompts a silent user.
type Initiative string

const (
	InitiativePassive Initiative = "passive"
	InitiativeNormal  Initiative = "normal"
	InitiativeActive  Initiative = "active"
)

// VAD controls utterance segmentation and the noise filter.
type VAD struct {
	SilenceThresholdMs  int
	MinSpeechMs         int
	MaxUtteranceSec     int
	NoiseFilterEnabled  bool
}

// Resilience controls reconnect backoff and disconnect grace windows.
type Resilience struct {
	MaxReconnectAttempts  int
	ReconnectBackoffMs    int
	ReconnectBackoffMaxMs int
	IdleDisconnectMin     int
	GraceAnnounceSec      int
	UserLeftGraceSec      int
}

// Heartbeat controls liveness tick cadence and thresholds.
type Heartbeat struct {
	IntervalMs           int
	SilencePromptSec     int
	BotStallThresholdSec int
	Initiative           Initiative
}

// Cache controls the TTS cache's size budget and phrase pre-warming.
type Cache struct {
	Enabled          bool
	MaxSizeMb        int
	PreWarmOnConnect bool
	BakedPhrasesDir  string
}

// Observability controls the metrics-log cadence and optional health port.
type Observability struct {
	MetricsLogIntervalSec int
	HealthPort            int
}

// STT names the transcription backend and its credentials.
type STT struct {
	Provider string
	Model    string
	APIKey   string
}

// TTS names the synthesis backend, voice, and credentials.
type TTS struct {
	Provider     string
	Model        string
	Voice        string
	Instructions string
	APIKey       string
}

// Gateway describes the chat-completion endpoint this session talks to.
type Gateway struct {
	URL        string
	Token      string
	SessionKey string
	AgentID    string
}

// Config is the frozen record every component reads from. It is built once
// by Load (or DefaultConfig for tests) and never mutated afterward.
type Config struct {
	TargetUserID    string
	TargetChannelID string
	AutoJoin        bool

	Gateway Gateway
	STT     STT
	TTS     TTS

	VAD           VAD
	Resilience    Resilience
	Heartbeat     Heartbeat
	Cache         Cache
	Observability Observability
}

// DefaultConfig returns the defaults enumerated in spec §6, with no
// credentials or target IDs set — callers must fill those in before Validate
// will pass.
func DefaultConfig() Config {
	return Config{
		AutoJoin: true,
		Gateway: Gateway{
			SessionKey: "voice:default",
			AgentID:    "voice",
		},
		STT: STT{Model: "whisper-1"},
		TTS: TTS{Model: "gpt-4o-mini-tts", Voice: "nova"},
		VAD: VAD{
			SilenceThresholdMs: 500,
			MinSpeechMs:        200,
			MaxUtteranceSec:    120,
			NoiseFilterEnabled: true,
		},
		Resilience: Resilience{
			MaxReconnectAttempts:  5,
			ReconnectBackoffMs:    1000,
			ReconnectBackoffMaxMs: 30000,
			IdleDisconnectMin:     10,
			GraceAnnounceSec:      30,
			UserLeftGraceSec:      60,
		},
		Heartbeat: Heartbeat{
			IntervalMs:           15000,
			SilencePromptSec:     60,
			BotStallThresholdSec: 45,
			Initiative:           InitiativeNormal,
		},
		Cache: Cache{
			Enabled:          true,
			MaxSizeMb:        50,
			PreWarmOnConnect: true,
		},
		Observability: Observability{
			MetricsLogIntervalSec: 60,
		},
	}
}

// Load builds a Config from environment variables (loading a .env file
// first, if present — a missing .env is not an error), then validates it.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		// No .env file is fine; the caller's real environment still applies.
	}

	cfg := DefaultConfig()

	cfg.TargetUserID = os.Getenv("VOICE_TARGET_USER_ID")
	cfg.TargetChannelID = os.Getenv("VOICE_TARGET_CHANNEL_ID")
	cfg.AutoJoin = envBoolOr("VOICE_AUTO_JOIN", cfg.AutoJoin)

	cfg.Gateway.URL = os.Getenv("OPENCLAW_GATEWAY_URL")
	cfg.Gateway.Token = os.Getenv("OPENCLAW_TOKEN")
	cfg.Gateway.SessionKey = envStrOr("OPENCLAW_SESSION_KEY", cfg.Gateway.SessionKey)
	cfg.Gateway.AgentID = envStrOr("OPENCLAW_AGENT_ID", cfg.Gateway.AgentID)

	cfg.STT.Provider = envStrOr("STT_PROVIDER", "groq")
	cfg.STT.Model = envStrOr("STT_MODEL", cfg.STT.Model)
	cfg.STT.APIKey = os.Getenv("STT_API_KEY")

	cfg.TTS.Provider = envStrOr("TTS_PROVIDER", "openai")
	cfg.TTS.Model = envStrOr("TTS_MODEL", cfg.TTS.Model)
	cfg.TTS.Voice = envStrOr("TTS_VOICE", cfg.TTS.Voice)
	cfg.TTS.Instructions = os.Getenv("TTS_INSTRUCTIONS")
	cfg.TTS.APIKey = os.Getenv("TTS_API_KEY")

	cfg.VAD.SilenceThresholdMs = envIntOr("VAD_SILENCE_THRESHOLD_MS", cfg.VAD.SilenceThresholdMs)
	cfg.VAD.MinSpeechMs = envIntOr("VAD_MIN_SPEECH_MS", cfg.VAD.MinSpeechMs)
	cfg.VAD.MaxUtteranceSec = envIntOr("VAD_MAX_UTTERANCE_SEC", cfg.VAD.MaxUtteranceSec)
	cfg.VAD.NoiseFilterEnabled = envBoolOr("VAD_NOISE_FILTER_ENABLED", cfg.VAD.NoiseFilterEnabled)

	cfg.Resilience.MaxReconnectAttempts = envIntOr("RESILIENCE_MAX_RECONNECT_ATTEMPTS", cfg.Resilience.MaxReconnectAttempts)
	cfg.Resilience.ReconnectBackoffMs = envIntOr("RESILIENCE_RECONNECT_BACKOFF_MS", cfg.Resilience.ReconnectBackoffMs)
	cfg.Resilience.ReconnectBackoffMaxMs = envIntOr("RESILIENCE_RECONNECT_BACKOFF_MAX_MS", cfg.Resilience.ReconnectBackoffMaxMs)
	cfg.Resilience.IdleDisconnectMin = envIntOr("RESILIENCE_IDLE_DISCONNECT_MIN", cfg.Resilience.IdleDisconnectMin)
	cfg.Resilience.GraceAnnounceSec = envIntOr("RESILIENCE_GRACE_ANNOUNCE_SEC", cfg.Resilience.GraceAnnounceSec)
	cfg.Resilience.UserLeftGraceSec = envIntOr("RESILIENCE_USER_LEFT_GRACE_SEC", cfg.Resilience.UserLeftGraceSec)

	cfg.Heartbeat.IntervalMs = envIntOr("HEARTBEAT_INTERVAL_MS", cfg.Heartbeat.IntervalMs)
	cfg.Heartbeat.SilencePromptSec = envIntOr("HEARTBEAT_SILENCE_PROMPT_SEC", cfg.Heartbeat.SilencePromptSec)
	cfg.Heartbeat.BotStallThresholdSec = envIntOr("HEARTBEAT_BOT_STALL_THRESHOLD_SEC", cfg.Heartbeat.BotStallThresholdSec)
	cfg.Heartbeat.Initiative = Initiative(envStrOr("HEARTBEAT_INITIATIVE", string(cfg.Heartbeat.Initiative)))

	cfg.Cache.Enabled = envBoolOr("CACHE_TTS_ENABLED", cfg.Cache.Enabled)
	cfg.Cache.MaxSizeMb = envIntOr("CACHE_TTS_MAX_SIZE_MB", cfg.Cache.MaxSizeMb)
	cfg.Cache.PreWarmOnConnect = envBoolOr("CACHE_TTS_PREWARM_ON_CONNECT", cfg.Cache.PreWarmOnConnect)
	cfg.Cache.BakedPhrasesDir = envStrOr("CACHE_BAKED_PHRASES_DIR", "baked_phrases")

	cfg.Observability.MetricsLogIntervalSec = envIntOr("OBSERVABILITY_METRICS_LOG_INTERVAL_SEC", cfg.Observability.MetricsLogIntervalSec)
	cfg.Observability.HealthPort = envIntOr("OBSERVABILITY_HEALTH_PORT", 0)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the required fields spec §7 calls ConfigInvalid: missing
// required fields are fatal before any connection is opened.
func (c Config) Validate() error {
	var missing []string
	if c.TargetUserID == "" {
		missing = append(missing, "TargetUserID")
	}
	if c.TargetChannelID == "" {
		missing = append(missing, "TargetChannelID")
	}
	if c.Gateway.URL == "" {
		missing = append(missing, "Gateway.URL")
	}
	if c.Gateway.Token == "" {
		missing = append(missing, "Gateway.Token")
	}
	if c.STT.APIKey == "" {
		missing = append(missing, "STT.APIKey")
	}
	if c.TTS.APIKey == "" {
		missing = append(missing, "TTS.APIKey")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", voicecore.ErrConfigInvalid, missing)
	}
	return nil
}

func envStrOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBoolOr(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
