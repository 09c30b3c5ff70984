// Package orchestrator implements spec.md §4.8: presence-driven join/leave
// for one target user, a single-capture-at-a-time audio ingestion loop, an
// exponential-backoff reconnect state machine, and the wiring between the
// Heartbeat's five liveness callbacks and the Audio Pipeline. Grounded on
// the teacher's ManagedStream/Orchestrator split (types.go's provider
// interfaces and Config shape, managed_stream.go's internalInterrupt and
// drain idioms), generalized from a local-mic single-process model to a
// presence-event-driven, reconnecting voice-platform session.
package orchestrator

// OpusDecoder turns one received Opus packet into raw PCM (48kHz, 2ch,
// 16-bit signed LE interleaved). No concrete implementation ships here —
// the UDP/Opus transport is out of scope (spec.md §1) — but the shape is
// fixed so a real adapter (wrapping hraban/opus or a voice platform SDK's
// own decoder) drops in without touching the capture loop.
type OpusDecoder interface {
	Decode(packet []byte) (pcm []byte, err error)
}
