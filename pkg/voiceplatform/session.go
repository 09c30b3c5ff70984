package voiceplatform

// Session is the platform capability the orchestrator consumes: speaker
// events for one tracked user, presence transitions, and channel join.
type Session interface {
	// OnSpeakingStart registers a callback invoked each time userID starts
	// speaking. Returns an unsubscribe func.
	OnSpeakingStart(handler func(userID string)) (unsubscribe func())

	// OnPresenceChange registers a callback invoked on any channel move for
	// userID: oldChannelID/newChannelID are empty when the user was not in
	// (or is no longer in) any tracked channel.
	OnPresenceChange(handler func(userID, oldChannelID, newChannelID string)) (unsubscribe func())

	// SubscribeAudio returns a channel of PacketEvents for userID, ending
	// the stream per opts. Closing is signalled by a PacketEvent with
	// End==true; the channel is closed after that event. The returned
	// cancel func tears the subscription down explicitly — the caller
	// must invoke it (idempotent) once it no longer wants the stream,
	// whether or not a terminal event was ever observed, so a stale
	// receive stream is never left listening past its owner's interest.
	SubscribeAudio(userID string, opts SubscribeOptions) (ch <-chan PacketEvent, cancel func(), err error)

	// JoinChannel opens a Connection to channelID in guildID.
	JoinChannel(guildID, channelID string, selfDeaf, selfMute bool) (Connection, error)
}
