package chat

import "time"

// Roles a transcript entry can carry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message records a single turn of a conversation.
type Message struct {
	ID        string    `json:"id,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
