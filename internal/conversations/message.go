package conversations

import "time"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Placeholder is appended as a user line after every NPC line so roles keep alternating.
const Placeholder = "..."

// Message is a single utterance. Never modified once appended.
type Message struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// NewMessage stamps the message with the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// IsSystem is true for narration and instructions.
func (m Message) IsSystem() bool {
	return m.Role == RoleSystem
}

// IsPlaceholder is true for the filler line that follows every NPC line.
func (m Message) IsPlaceholder() bool {
	return m.Role == RoleUser && m.Content == Placeholder
}
