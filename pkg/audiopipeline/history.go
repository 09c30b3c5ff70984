package audiopipeline

import (
	"sync"

	"github.com/openclaw/voicebridge/pkg/voicecore"
)

const maxHistoryMessages = 20

// History is the per-session chat transcript the pipeline feeds to the
// Chat-Stream Client on every turn, capped to the most recent messages.
type History struct {
	mu       sync.Mutex
	messages []voicecore.Message
}

// NewHistory builds an empty transcript.
func NewHistory() *History {
	return &History{}
}

func (h *History) append(role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, voicecore.Message{Role: role, Content: content})
	if len(h.messages) > maxHistoryMessages {
		h.messages = h.messages[len(h.messages)-maxHistoryMessages:]
	}
}

// AddUser appends a user turn.
func (h *History) AddUser(content string) { h.append("user", content) }

// AddAssistant appends an assistant turn.
func (h *History) AddAssistant(content string) { h.append("assistant", content) }

// Snapshot returns a copy of the transcript safe for a concurrent chat call.
func (h *History) Snapshot() []voicecore.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]voicecore.Message, len(h.messages))
	copy(out, h.messages)
	return out
}
