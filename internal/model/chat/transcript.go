package chat

import "time"

// Transcript is the append-only history of one conversation.
// It is not safe for concurrent use; the owner serialises access.
type Transcript struct {
	messages []Message
}

// NewTranscript returns an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{messages: make([]Message, 0, 16)}
}

// AppendExchange records a completed exchange, user turn first.
func (t *Transcript) AppendExchange(userText, assistantText string) {
	now := time.Now().UTC()
	t.messages = append(t.messages,
		Message{Role: RoleUser, Content: userText, CreatedAt: now},
		Message{Role: RoleAssistant, Content: assistantText, CreatedAt: now},
	)
}

// Messages returns a copy of the recorded turns in chronological order.
func (t *Transcript) Messages() []Message {
	return append([]Message(nil), t.messages...)
}

// Len reports the number of recorded turns.
func (t *Transcript) Len() int {
	return len(t.messages)
}
