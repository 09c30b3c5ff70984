package voiceplatform

import "github.com/openclaw/voicebridge/pkg/voicecore"

// Player accepts playback-ready audio chunks for a connection, one at a
// time, emitting Idle when each finishes.
type Player interface {
	// Subscribe attaches the player to conn. Safe to call once per
	// connection lifetime.
	Subscribe(conn Connection) error

	// Play submits chunk for playback. Returns once playback has started
	// (not once it finishes); completion is reported via OnIdle.
	Play(chunk voicecore.AudioChunk) error

	// OnIdle registers a callback invoked each time playback of the
	// current chunk completes. Returns an unsubscribe func.
	OnIdle(handler func()) (unsubscribe func())

	// Stop halts playback immediately, discarding whatever is in flight.
	Stop()
}
