package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
)

// ConversationService owns the conversation and message lifecycle.
// Every lookup is scoped to the guest identity that owns the conversation.
type ConversationService struct {
	store driven.ConversationStore
	now   func() time.Time
}

// NewConversationService creates a new conversation service.
func NewConversationService(store driven.ConversationStore) *ConversationService {
	return &ConversationService{store: store, now: time.Now}
}

// ValidateGuestID checks that a guest identity is a UUID.
func ValidateGuestID(guestID string) error {
	if _, err := uuid.Parse(guestID); err != nil {
		return fmt.Errorf("%w: malformed guest id", domain.ErrInvalidInput)
	}
	return nil
}

// Start creates a conversation. An empty guestID mints a new guest identity.
func (s *ConversationService) Start(ctx context.Context, guestID, ip string) (*domain.Conversation, error) {
	if guestID == "" {
		guestID = uuid.New().String()
	} else if err := ValidateGuestID(guestID); err != nil {
		return nil, err
	}

	conv := &domain.Conversation{
		ID:        uuid.New().String(),
		GuestID:   guestID,
		IPAddress: ip,
		StartedAt: s.now(),
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// Get returns the conversation if guestID owns it, domain.ErrNotFound otherwise.
func (s *ConversationService) Get(ctx context.Context, id, guestID string) (*domain.Conversation, error) {
	if id == "" || guestID == "" {
		return nil, domain.ErrNotFound
	}
	return s.store.GetConversation(ctx, id, guestID)
}

// Detail returns a conversation with all of its messages.
func (s *ConversationService) Detail(ctx context.Context, id, guestID string) (*domain.ConversationDetail, error) {
	conv, err := s.Get(ctx, id, guestID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return &domain.ConversationDetail{Conversation: *conv, Messages: msgs}, nil
}

// List returns the guest's conversations, most recent first.
func (s *ConversationService) List(ctx context.Context, guestID string) ([]domain.Conversation, error) {
	if err := ValidateGuestID(guestID); err != nil {
		return nil, err
	}
	convs, err := s.store.ListConversations(ctx, guestID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	return convs, nil
}

// AddMessage appends a message to the conversation.
func (s *ConversationService) AddMessage(
	ctx context.Context,
	conv *domain.Conversation,
	role domain.Role,
	content string,
	citations *domain.CitationSet,
) (*domain.Message, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("%w: role %q", domain.ErrInvalidInput, role)
	}
	msg := &domain.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           role,
		Content:        content,
		Citations:      citations,
		CreatedAt:      s.now(),
	}
	if err := s.store.AddMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("add message: %w", err)
	}
	return msg, nil
}

// End stamps the conversation's end time. Ending an ended conversation
// stamps it again.
func (s *ConversationService) End(ctx context.Context, id, guestID string) error {
	if _, err := s.Get(ctx, id, guestID); err != nil {
		return err
	}
	return s.store.EndConversation(ctx, id, guestID, s.now())
}

// History returns the last maxMessages messages as prompt messages in
// chronological order.
func (s *ConversationService) History(
	ctx context.Context, conv *domain.Conversation, maxMessages int,
) ([]domain.ChatMessage, error) {
	if maxMessages <= 0 {
		return nil, nil
	}
	msgs, err := s.store.RecentMessages(ctx, conv.ID, maxMessages)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	history := make([]domain.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, domain.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return history, nil
}

// SetTitle replaces the conversation title.
func (s *ConversationService) SetTitle(ctx context.Context, conv *domain.Conversation, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}
	if err := s.store.SetTitle(ctx, conv.ID, title); err != nil {
		return fmt.Errorf("set title: %w", err)
	}
	conv.Title = title
	return nil
}

// Delete removes a conversation with its messages and their feedback.
func (s *ConversationService) Delete(ctx context.Context, id, guestID string) error {
	if _, err := s.Get(ctx, id, guestID); err != nil {
		return err
	}
	return s.store.DeleteConversation(ctx, id, guestID)
}
