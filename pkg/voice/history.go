package voice

import (
	"sync"

	"github.com/teslashibe/voxturn/pkg/llm"
)

// History is the in-memory conversation of one session. Entries are only
// ever appended.
type History struct {
	mu      sync.Mutex
	entries []llm.Message
}

// Append adds one entry.
func (h *History) Append(role llm.Role, content string) {
	h.mu.Lock()
	h.entries = append(h.entries, llm.Message{Role: role, Content: content})
	h.mu.Unlock()
}

// Messages returns a copy of all entries in order.
func (h *History) Messages() []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]llm.Message, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
