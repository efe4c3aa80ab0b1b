package chat

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Transcript is an append-only ordered log of chat messages. Entries are
// addressed by ID so a streaming reply can grow in place without disturbing
// order; positional mutation is deliberately not offered.
type Transcript struct {
	mu   sync.Mutex
	msgs []Message
}

func NewTranscript() *Transcript { return &Transcript{} }

// Append adds a message at the end of the log and returns it with its
// assigned ID.
func (t *Transcript) Append(sender Sender, text string) Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := Message{ID: uuid.New().String(), Sender: sender, Text: text}
	t.msgs = append(t.msgs, m)
	return m
}

// AppendText appends delta to the message with the given id, preserving its
// position. Returns false when the id is unknown.
func (t *Transcript) AppendText(id, delta string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.msgs {
		if t.msgs[i].ID == id {
			t.msgs[i].Text += delta
			return true
		}
	}
	return false
}

// SetText replaces the text of the message with the given id.
func (t *Transcript) SetText(id, text string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.msgs {
		if t.msgs[i].ID == id {
			t.msgs[i].Text = text
			return true
		}
	}
	return false
}

// Get returns the message with the given id.
func (t *Transcript) Get(id string) (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.msgs {
		if t.msgs[i].ID == id {
			return t.msgs[i], true
		}
	}
	return Message{}, false
}

// Messages returns a copy of the log in append order.
func (t *Transcript) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Len reports the number of entries.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.msgs)
}

// History returns the last n non-empty messages in chronological order.
func (t *Transcript) History(n int) []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Message
	for i := len(t.msgs) - 1; i >= 0 && len(out) < n; i-- {
		if strings.TrimSpace(t.msgs[i].Text) == "" {
			continue
		}
		out = append(out, t.msgs[i])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
