package voiceplatform

// Connection is a joined voice channel connection with an observable state
// machine: Connecting -> Signalling -> Ready, or -> Disconnected at any
// point.
type Connection interface {
	State() ConnectionState

	// OnStateChange registers a callback invoked on every transition.
	// Returns an unsubscribe func.
	OnStateChange(handler func(from, to ConnectionState)) (unsubscribe func())

	// Player returns the connection's audio sink.
	Player() Player

	// Disconnect tears down the connection. Idempotent.
	Disconnect() error
}
