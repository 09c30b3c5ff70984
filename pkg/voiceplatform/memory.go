package voiceplatform

import (
	"sync"

	"github.com/openclaw/voicebridge/pkg/voicecore"
)

// MemorySession is an in-process Session double: tests drive it by calling
// TriggerSpeakingStart/TriggerPresenceChange/PushPacket/EndStream directly,
// no real transport involved. Not a production platform adapter.
type MemorySession struct {
	mu               sync.Mutex
	speakingHandlers map[int]func(userID string)
	presenceHandlers map[int]func(userID, oldChannelID, newChannelID string)
	nextHandlerID    int

	streams map[string]*audioStream

	JoinErr  error
	JoinFunc func(guildID, channelID string, selfDeaf, selfMute bool) (Connection, error)
}

// NewMemorySession builds an empty double.
func NewMemorySession() *MemorySession {
	return &MemorySession{
		speakingHandlers: make(map[int]func(userID string)),
		presenceHandlers: make(map[int]func(userID, oldChannelID, newChannelID string)),
		streams:          make(map[string]*audioStream),
	}
}

// audioStream tracks one subscription's channel alongside a closed flag so
// cancel and a natural EndStream close race-free against each other.
type audioStream struct {
	mu     sync.Mutex
	ch     chan PacketEvent
	closed bool
}

func newAudioStream() *audioStream {
	return &audioStream{ch: make(chan PacketEvent, 64)}
}

func (a *audioStream) send(ev PacketEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.ch <- ev
}

func (a *audioStream) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	close(a.ch)
}

func (s *MemorySession) OnSpeakingStart(handler func(userID string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextHandlerID
	s.nextHandlerID++
	s.speakingHandlers[id] = handler
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.speakingHandlers, id)
	}
}

func (s *MemorySession) OnPresenceChange(handler func(userID, oldChannelID, newChannelID string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextHandlerID
	s.nextHandlerID++
	s.presenceHandlers[id] = handler
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.presenceHandlers, id)
	}
}

func (s *MemorySession) SubscribeAudio(userID string, opts SubscribeOptions) (<-chan PacketEvent, func(), error) {
	stream := newAudioStream()
	s.mu.Lock()
	s.streams[userID] = stream
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if s.streams[userID] == stream {
			delete(s.streams, userID)
		}
		s.mu.Unlock()
		stream.close()
	}
	return stream.ch, cancel, nil
}

func (s *MemorySession) JoinChannel(guildID, channelID string, selfDeaf, selfMute bool) (Connection, error) {
	if s.JoinFunc != nil {
		return s.JoinFunc(guildID, channelID, selfDeaf, selfMute)
	}
	if s.JoinErr != nil {
		return nil, s.JoinErr
	}
	return NewMemoryConnection(), nil
}

// TriggerSpeakingStart fires every registered speaking-start handler.
func (s *MemorySession) TriggerSpeakingStart(userID string) {
	s.mu.Lock()
	handlers := make([]func(string), 0, len(s.speakingHandlers))
	for _, h := range s.speakingHandlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()
	for _, h := range handlers {
		h(userID)
	}
}

// TriggerPresenceChange fires every registered presence handler.
func (s *MemorySession) TriggerPresenceChange(userID, oldChannelID, newChannelID string) {
	s.mu.Lock()
	handlers := make([]func(string, string, string), 0, len(s.presenceHandlers))
	for _, h := range s.presenceHandlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()
	for _, h := range handlers {
		h(userID, oldChannelID, newChannelID)
	}
}

// PushPacket delivers a data frame to userID's subscribed stream, if any.
func (s *MemorySession) PushPacket(userID string, data []byte) {
	s.mu.Lock()
	stream := s.streams[userID]
	s.mu.Unlock()
	if stream != nil {
		stream.send(PacketEvent{Data: data})
	}
}

// EndStream closes out userID's subscribed stream with a terminal event.
func (s *MemorySession) EndStream(userID string, err error) {
	s.mu.Lock()
	stream := s.streams[userID]
	delete(s.streams, userID)
	s.mu.Unlock()
	if stream == nil {
		return
	}
	stream.send(PacketEvent{End: true, Err: err})
	stream.close()
}

// MemoryConnection is an in-process Connection double whose state is
// driven directly by tests via SetState.
type MemoryConnection struct {
	mu       sync.Mutex
	state    ConnectionState
	handlers map[int]func(from, to ConnectionState)
	nextID   int
	player   *MemoryPlayer

	DisconnectCalls int
}

// NewMemoryConnection builds a double starting in StateConnecting with a
// fresh MemoryPlayer attached.
func NewMemoryConnection() *MemoryConnection {
	return &MemoryConnection{
		state:    StateConnecting,
		handlers: make(map[int]func(from, to ConnectionState)),
		player:   NewMemoryPlayer(),
	}
}

func (c *MemoryConnection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *MemoryConnection) OnStateChange(handler func(from, to ConnectionState)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = handler
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

func (c *MemoryConnection) Player() Player {
	return c.player
}

func (c *MemoryConnection) Disconnect() error {
	c.SetState(StateDisconnected)
	c.mu.Lock()
	c.DisconnectCalls++
	c.mu.Unlock()
	return nil
}

// SetState transitions the connection and notifies every subscriber, the
// way a real adapter would on a gateway event.
func (c *MemoryConnection) SetState(to ConnectionState) {
	c.mu.Lock()
	from := c.state
	c.state = to
	handlers := make([]func(ConnectionState, ConnectionState), 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()
	if from == to {
		return
	}
	for _, h := range handlers {
		h(from, to)
	}
}

// MemoryPlayer is an in-process Player double: Play only records the chunk,
// and idle handlers fire only when a test calls FinishPlayback; real
// adapters would signal completion asynchronously from the transport.
type MemoryPlayer struct {
	mu          sync.Mutex
	subscribed  bool
	idleHandlers map[int]func()
	nextID      int
	stopCalls   int

	Played []voicecore.AudioChunk
}

// NewMemoryPlayer builds an empty double.
func NewMemoryPlayer() *MemoryPlayer {
	return &MemoryPlayer{idleHandlers: make(map[int]func())}
}

func (p *MemoryPlayer) Subscribe(conn Connection) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribed = true
	return nil
}

func (p *MemoryPlayer) Play(chunk voicecore.AudioChunk) error {
	p.mu.Lock()
	p.Played = append(p.Played, chunk)
	p.mu.Unlock()
	return nil
}

// PlayedChunks returns a snapshot of every chunk submitted to Play so far.
func (p *MemoryPlayer) PlayedChunks() []voicecore.AudioChunk {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]voicecore.AudioChunk, len(p.Played))
	copy(out, p.Played)
	return out
}

// StopCalls reports how many times Stop has been called.
func (p *MemoryPlayer) StopCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopCalls
}

func (p *MemoryPlayer) OnIdle(handler func()) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.idleHandlers[id] = handler
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.idleHandlers, id)
	}
}

func (p *MemoryPlayer) Stop() {
	p.mu.Lock()
	p.stopCalls++
	p.mu.Unlock()
}

// FinishPlayback fires every idle handler, simulating the sink reporting
// completion of whatever chunk is currently playing.
func (p *MemoryPlayer) FinishPlayback() {
	p.mu.Lock()
	handlers := make([]func(), 0, len(p.idleHandlers))
	for _, h := range p.idleHandlers {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()
	for _, h := range handlers {
		h()
	}
}
