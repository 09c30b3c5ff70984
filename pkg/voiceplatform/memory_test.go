package voiceplatform

import (
	"testing"

	"github.com/openclaw/voicebridge/pkg/voicecore"
)

func TestMemorySessionSpeakingStart(t *testing.T) {
	s := NewMemorySession()
	var got string
	s.OnSpeakingStart(func(userID string) { got = userID })
	s.TriggerSpeakingStart("u1")
	if got != "u1" {
		t.Errorf("expected handler to fire with u1, got %q", got)
	}
}

func TestMemorySessionUnsubscribe(t *testing.T) {
	s := NewMemorySession()
	calls := 0
	unsub := s.OnSpeakingStart(func(string) { calls++ })
	unsub()
	s.TriggerSpeakingStart("u1")
	if calls != 0 {
		t.Errorf("expected no calls after unsubscribe, got %d", calls)
	}
}

func TestMemorySessionAudioStream(t *testing.T) {
	s := NewMemorySession()
	ch, cancel, err := s.SubscribeAudio("u1", SubscribeOptions{EndAfterSilenceMs: 500})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.PushPacket("u1", []byte{1, 2, 3})
	s.EndStream("u1", nil)

	pkt := <-ch
	if string(pkt.Data) != "\x01\x02\x03" {
		t.Errorf("unexpected packet data: %v", pkt.Data)
	}
	end := <-ch
	if !end.End {
		t.Error("expected terminal End event")
	}
	cancel() // idempotent even after the stream already ended naturally
}

func TestMemorySessionAudioStreamCancel(t *testing.T) {
	s := NewMemorySession()
	ch, cancel, err := s.SubscribeAudio("u1", SubscribeOptions{EndAfterSilenceMs: 500})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()
	cancel() // must tolerate a second call

	if _, ok := <-ch; ok {
		t.Error("expected channel closed by cancel with no pending events")
	}

	// A cancelled stream must not still be reachable for PushPacket/EndStream.
	s.PushPacket("u1", []byte{9})
	s.EndStream("u1", nil)
}

func TestMemoryConnectionStateTransitions(t *testing.T) {
	c := NewMemoryConnection()
	var transitions [][2]ConnectionState
	c.OnStateChange(func(from, to ConnectionState) {
		transitions = append(transitions, [2]ConnectionState{from, to})
	})
	c.SetState(StateSignalling)
	c.SetState(StateReady)
	if len(transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(transitions))
	}
	if transitions[1][1] != StateReady {
		t.Errorf("expected final state Ready, got %v", transitions[1][1])
	}
}

func TestMemoryPlayerPlayAndIdle(t *testing.T) {
	p := NewMemoryPlayer()
	idled := false
	p.OnIdle(func() { idled = true })
	p.Play(voicecore.AudioChunk{Bytes: []byte("a"), Container: voicecore.ContainerArbitrary})
	p.FinishPlayback()
	if len(p.Played) != 1 {
		t.Fatalf("expected 1 played chunk, got %d", len(p.Played))
	}
	if !idled {
		t.Error("expected idle handler to fire")
	}
}

func TestMemorySessionJoinChannel(t *testing.T) {
	s := NewMemorySession()
	conn, err := s.JoinChannel("g1", "c1", false, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conn.State() != StateConnecting {
		t.Errorf("expected initial state Connecting, got %v", conn.State())
	}
}
