package heartbeat

import (
	"testing"
	"time"

	"github.com/openclaw/voicebridge/pkg/config"
)

func TestSilencePromptFiresOncePerGuard(t *testing.T) {
	var fired int
	h := New(Config{SilencePromptSec: 60, Initiative: config.InitiativeNormal}, Callbacks{
		OnSilencePrompt: func() { fired++ },
	}, nil, nil)

	h.ReportUserSpeech()
	time.Sleep(time.Millisecond)
	h.ReportBotSpeech()

	now := time.Now()
	h.Tick(now.Add(61 * time.Second))
	if fired != 1 {
		t.Fatalf("expected 1 fire, got %d", fired)
	}
	h.Tick(now.Add(120 * time.Second))
	if fired != 1 {
		t.Fatalf("expected guard to suppress repeat fire, got %d", fired)
	}

	h.ReportUserSpeech()
	time.Sleep(time.Millisecond)
	h.ReportBotSpeech()
	h.Tick(time.Now().Add(61 * time.Second))
	if fired != 2 {
		t.Fatalf("expected reportUserSpeech to clear the guard, got %d fires", fired)
	}
}

func TestSilencePromptNeverFiresPassiveInitiative(t *testing.T) {
	var fired int
	h := New(Config{SilencePromptSec: 60, Initiative: config.InitiativePassive}, Callbacks{
		OnSilencePrompt: func() { fired++ },
	}, nil, nil)
	h.ReportUserSpeech()
	time.Sleep(time.Millisecond)
	h.ReportBotSpeech()
	h.Tick(time.Now().Add(time.Hour))
	if fired != 0 {
		t.Errorf("expected passive initiative to never fire, got %d", fired)
	}
}

func TestSilencePromptUsesShorterThresholdWhenActive(t *testing.T) {
	var fired int
	h := New(Config{SilencePromptSec: 60, Initiative: config.InitiativeActive}, Callbacks{
		OnSilencePrompt: func() { fired++ },
	}, nil, nil)
	h.ReportUserSpeech()
	time.Sleep(time.Millisecond)
	h.ReportBotSpeech()
	h.Tick(time.Now().Add(31 * time.Second))
	if fired != 1 {
		t.Errorf("expected active initiative to fire at the 30s threshold, got %d", fired)
	}
}

func TestBotStallFiresWhenUserSpokeLast(t *testing.T) {
	var fired int
	h := New(Config{BotStallThresholdSec: 45}, Callbacks{
		OnBotStall: func() { fired++ },
	}, nil, nil)
	h.ReportBotSpeech()
	time.Sleep(time.Millisecond)
	h.ReportUserSpeech()

	now := time.Now()
	h.Tick(now.Add(46 * time.Second))
	if fired != 1 {
		t.Fatalf("expected 1 fire, got %d", fired)
	}
	h.Tick(now.Add(90 * time.Second))
	if fired != 1 {
		t.Fatalf("expected guard to suppress repeat fire, got %d", fired)
	}

	h.ReportBotSpeech()
	if fired != 1 {
		t.Fatalf("reportBotSpeech should not itself fire a callback")
	}
}

func TestAudioDesyncFiresEveryTickWhileUserSpeaking(t *testing.T) {
	var fired int
	h := New(Config{}, Callbacks{
		OnDesync: func() { fired++ },
	}, nil, nil)
	h.SetUserSpeaking(true)

	now := time.Now()
	h.Tick(now.Add(6 * time.Second))
	h.Tick(now.Add(7 * time.Second))
	if fired != 2 {
		t.Errorf("expected desync to fire on every tick without a guard, got %d", fired)
	}
}

func TestAudioDesyncDoesNotFireWhenUserNotSpeaking(t *testing.T) {
	var fired int
	h := New(Config{}, Callbacks{
		OnDesync: func() { fired++ },
	}, nil, nil)
	h.Tick(time.Now().Add(time.Hour))
	if fired != 0 {
		t.Errorf("expected no desync fire when userSpeaking is false, got %d", fired)
	}
}

func TestIdleTimeoutTwoStage(t *testing.T) {
	var graceFired, idleFired int
	h := New(Config{IdleDisconnectMin: 1, GraceAnnounceSec: 10}, Callbacks{
		OnGraceAnnounce: func() { graceFired++ },
		OnIdleTimeout:   func() { idleFired++ },
	}, nil, nil)

	now := time.Now()
	h.Tick(now.Add(55 * time.Second)) // idleSince=55s > graceThreshold(50s), <= idleMs(60s)
	if graceFired != 1 || idleFired != 0 {
		t.Fatalf("expected grace announce only, got grace=%d idle=%d", graceFired, idleFired)
	}

	h.Tick(now.Add(65 * time.Second)) // idleSince=65s > idleMs(60s), grace already announced
	if graceFired != 1 || idleFired != 1 {
		t.Fatalf("expected idle timeout after grace, got grace=%d idle=%d", graceFired, idleFired)
	}
}

func TestIdleTimeoutFiresAlongsideGraceOnABigJump(t *testing.T) {
	var graceFired, idleFired int
	h := New(Config{IdleDisconnectMin: 1, GraceAnnounceSec: 10}, Callbacks{
		OnGraceAnnounce: func() { graceFired++ },
		OnIdleTimeout:   func() { idleFired++ },
	}, nil, nil)
	// A single tick that jumps past both thresholds fires the grace
	// announcement and the idle timeout together, since grace's guard is
	// set earlier in the same pass.
	h.Tick(time.Now().Add(65 * time.Second))
	if graceFired != 1 || idleFired != 1 {
		t.Errorf("expected both to fire on a big jump, got grace=%d idle=%d", graceFired, idleFired)
	}
}
