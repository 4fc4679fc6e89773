package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

// ConversationStore persists conversations and their messages.
// Every read is scoped by guest identity.
type ConversationStore interface {
	// CreateConversation inserts a new conversation.
	CreateConversation(ctx context.Context, conv *domain.Conversation) error

	// GetConversation returns the conversation only if guestID owns it,
	// domain.ErrNotFound otherwise.
	GetConversation(ctx context.Context, id, guestID string) (*domain.Conversation, error)

	// ListConversations returns the guest's conversations, most recent first.
	ListConversations(ctx context.Context, guestID string) ([]domain.Conversation, error)

	// EndConversation stamps endedAt, also when it is already set.
	EndConversation(ctx context.Context, id, guestID string, at time.Time) error

	// SetTitle replaces the conversation title.
	SetTitle(ctx context.Context, id, title string) error

	// DeleteConversation removes feedback, messages and the conversation.
	DeleteConversation(ctx context.Context, id, guestID string) error

	// AddMessage appends a message.
	AddMessage(ctx context.Context, msg *domain.Message) error

	// ListMessages returns all messages in chronological order.
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)

	// RecentMessages returns the last n messages in chronological order.
	RecentMessages(ctx context.Context, conversationID string, n int) ([]domain.Message, error)

	// GetOwnedMessage returns a message only if its conversation belongs to
	// guestID, domain.ErrNotFound otherwise.
	GetOwnedMessage(ctx context.Context, messageID, guestID string) (*domain.Message, error)
}

// FeedbackStore persists feedback on assistant messages.
type FeedbackStore interface {
	SaveFeedback(ctx context.Context, fb *domain.Feedback) error
}

// ViolationStore is the append-only off-topic audit log.
type ViolationStore interface {
	// RecordViolation appends a violation.
	RecordViolation(ctx context.Context, v *domain.OfftopicViolation) error

	// CountViolationsSince counts a guest's violations at or after since.
	CountViolationsSince(ctx context.Context, guestID string, since time.Time) (int, error)

	// PurgeViolationsBefore deletes violations older than before and returns
	// how many were removed.
	PurgeViolationsBefore(ctx context.Context, before time.Time) (int, error)
}

// RateCounter implements atomic sliding-window counting.
type RateCounter interface {
	// Hit records one event for key if fewer than limit events happened in
	// the window ending at now. When the limit is reached nothing is recorded
	// and retryAfter says when the oldest counted event leaves the window.
	Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (
		allowed bool, retryAfter time.Duration, err error)

	// Peek reports whether a hit would currently be allowed without recording one.
	Peek(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (
		allowed bool, retryAfter time.Duration, err error)
}
