package domain

import "time"

// Role identifies who authored a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// IsValid returns true for roles that may be persisted.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Conversation is a guest's chat session. It is active while EndedAt is nil.
type Conversation struct {
	ID        string     `json:"id"`
	GuestID   string     `json:"guestId"`
	IPAddress string     `json:"-"`
	Title     string     `json:"title,omitempty"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// IsActive reports whether the conversation accepts new messages.
func (c *Conversation) IsActive() bool {
	return c.EndedAt == nil
}

// Message is an immutable entry in a conversation.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	Citations      *CitationSet   `json:"citations,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// ConversationDetail is a conversation with its full message history.
type ConversationDetail struct {
	Conversation
	Messages []Message `json:"messages"`
}

// ChatMessage is a role/content pair sent to the generative model.
type ChatMessage struct {
	Role    Role
	Content string
}

// Feedback is free text attached to an assistant message.
type Feedback struct {
	ID        string
	MessageID string
	GuestID   string
	Content   string
	CreatedAt time.Time
}

// OfftopicViolation is an append-only record of an out-of-domain question.
type OfftopicViolation struct {
	ID        string
	GuestID   string
	Question  string
	CreatedAt time.Time
}
