package orchestrator

import (
	"time"

	"github.com/openclaw/voicebridge/pkg/metrics"
	"github.com/openclaw/voicebridge/pkg/voiceplatform"
)

// handleDisconnect implements spec.md §4.8's reconnect state machine:
// exponential backoff up to maxReconnectAttempts, each attempt waiting for
// Signalling then Ready within 15s apiece. Guarded so a flurry of
// disconnect-state-change notifications only drives one reconnect loop.
func (o *Orchestrator) handleDisconnect() {
	o.mu.Lock()
	if o.reconnecting || o.tearingDown {
		o.mu.Unlock()
		return
	}
	o.reconnecting = true
	conn := o.conn
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.reconnecting = false
		o.mu.Unlock()
	}()

	o.logEvent("RECONNECTING")

	backoffMs := o.cfg.Resilience.ReconnectBackoffMs
	backoffMaxMs := o.cfg.Resilience.ReconnectBackoffMaxMs
	maxAttempts := o.cfg.Resilience.MaxReconnectAttempts

	for k := 1; k <= maxAttempts; k++ {
		sleepMs := backoffMs << uint(k-1)
		if backoffMaxMs > 0 && sleepMs > backoffMaxMs {
			sleepMs = backoffMaxMs
		}
		time.Sleep(time.Duration(sleepMs) * time.Millisecond)

		o.incMetric(metrics.CounterReconnectCount)

		if !o.waitForState(conn, voiceplatform.StateSignalling, connReadyTimeout) {
			continue
		}
		if !o.waitForState(conn, voiceplatform.StateReady, connReadyTimeout) {
			continue
		}

		o.mu.Lock()
		pipeline := o.pipeline
		o.mu.Unlock()
		if pipeline != nil && conn.Player() != nil {
			if err := conn.Player().Subscribe(conn); err != nil {
				o.logger.Error("reconnect re-subscribe failed", "error", err.Error())
				continue
			}
		}

		o.mu.Lock()
		o.capturing = false
		o.mu.Unlock()

		o.incMetric(metrics.CounterReconnectSuccess)
		o.logEvent("RECONNECTED", "attempt", k)
		return
	}

	o.logger.Error("reconnect attempts exhausted", "maxAttempts", maxAttempts)
	o.teardown()
}

func (o *Orchestrator) waitForState(conn voiceplatform.Connection, want voiceplatform.ConnectionState, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if conn.State() == want {
			return true
		}
		time.Sleep(pollInterval)
	}
	return conn.State() == want
}
