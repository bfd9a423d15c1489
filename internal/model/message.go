package model

import "sync"

// Role of a transcript message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the model conversation
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Transcript is the append-only conversation of one analysis
type Transcript struct {
	mu       sync.RWMutex
	messages []Message
	frozen   bool
}

// NewTranscript starts a transcript with the given messages
func NewTranscript(initial ...Message) *Transcript {
	t := &Transcript{}
	t.messages = append(t.messages, initial...)
	return t
}

// Append adds a message unless the transcript has been frozen
func (t *Transcript) Append(role Role, content string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen {
		return ErrTranscriptFrozen
	}
	t.messages = append(t.messages, Message{Role: role, Content: content})
	return nil
}

// Messages returns a copy of the conversation so far
func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Freeze makes the transcript read-only
func (t *Transcript) Freeze() {
	t.mu.Lock()
	t.frozen = true
	t.mu.Unlock()
}

// Frozen reports whether Freeze has been called
func (t *Transcript) Frozen() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.frozen
}
