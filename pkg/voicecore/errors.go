package voicecore

import "errors"

// Error kinds from spec §7. Each is a sentinel so callers can classify with
// errors.Is; component-level errors wrap one of these with %w.
var (
	// ErrTransientNetwork marks a non-2xx or timeout talking to STT/chat/TTS.
	// Recovered locally: the pipeline logs and retries the drain after 1s.
	ErrTransientNetwork = errors.New("transient network failure")

	// ErrCancelled marks a chat stream aborted by interrupt or deadline.
	// Silent at debug level; does not taint subsequent runs.
	ErrCancelled = errors.New("cancelled")

	// ErrDecodeFailure marks an Opus frame decode error. Counted; suppressed
	// until the consecutive-failure thresholds trigger (warn 20, reset 50).
	ErrDecodeFailure = errors.New("opus decode failure")

	// ErrConfigInvalid marks a missing required config field at startup.
	// Fatal before any connection opens.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrVoiceTransportFailure marks a connection that never reached Ready,
	// or that disconnected. Triggers the reconnect state machine; exhaustion
	// is fatal for the session.
	ErrVoiceTransportFailure = errors.New("voice transport failure")

	// ErrBakedStoreCorrupt marks a baked-manifest read/parse failure or a
	// per-file read failure. Recovered by re-synthesising affected phrases.
	ErrBakedStoreCorrupt = errors.New("baked phrase store corrupt")

	// ErrEmptyTranscription marks an STT call that returned no text.
	ErrEmptyTranscription = errors.New("transcription returned empty text")

	// ErrNilProvider marks a required provider left unset at construction.
	ErrNilProvider = errors.New("required provider is nil")
)
