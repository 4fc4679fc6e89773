package driving

import (
	"context"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

// ChatService is the guest-facing conversation API.
type ChatService interface {
	// StartConversation creates a conversation. An empty guestID mints a new guest identity.
	StartConversation(ctx context.Context, guestID, ip string) (*domain.Conversation, error)

	// SendMessage runs one turn. Validation, rate-limit and policy failures are
	// returned synchronously; otherwise the returned channel yields the turn's
	// events and is closed after a done or error event.
	SendMessage(ctx context.Context, req domain.SendRequest) (<-chan domain.Event, error)

	// GetConversation returns a guest's conversation with its messages.
	GetConversation(ctx context.Context, id, guestID string) (*domain.ConversationDetail, error)

	// ListConversations returns a guest's conversations, most recent first.
	ListConversations(ctx context.Context, guestID string) ([]domain.Conversation, error)

	// EndConversation marks a conversation ended.
	EndConversation(ctx context.Context, id, guestID string) error

	// SubmitFeedback attaches feedback to an assistant message the guest owns.
	SubmitFeedback(ctx context.Context, guestID, messageID, content string) (*domain.Feedback, error)
}
