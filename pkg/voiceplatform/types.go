// Package voiceplatform declares the narrow abstraction the session
// orchestrator needs from whatever real-time voice platform hosts the
// channel: speaking events, a subscribable audio stream, a joinable
// connection with observable state, and a player that accepts tagged audio
// buffers. No concrete platform adapter ships here (out of scope); the
// MemorySession, MemoryConnection and MemoryPlayer test doubles live in
// memory.go for orchestrator tests.
package voiceplatform

// ConnectionState mirrors the platform's connection lifecycle.
type ConnectionState string

const (
	StateConnecting  ConnectionState = "connecting"
	StateSignalling  ConnectionState = "signalling"
	StateReady       ConnectionState = "ready"
	StateDisconnected ConnectionState = "disconnected"
)

// PacketEvent is one inbound Opus frame from a subscribed audio stream, or
// the stream's terminal event.
type PacketEvent struct {
	Data []byte // Opus frame bytes; nil on End/Err
	End  bool
	Err  error
}

// SubscribeOptions configures subscribeAudio's end-of-utterance behaviour.
type SubscribeOptions struct {
	// EndAfterSilenceMs ends the stream after this many milliseconds of
	// inbound silence (vad.silenceThresholdMs).
	EndAfterSilenceMs int
}
