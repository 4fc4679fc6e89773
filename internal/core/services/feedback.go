package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
)

// MaxFeedbackLength caps feedback text in characters.
const MaxFeedbackLength = 2000

// FeedbackService attaches free-text feedback to assistant messages.
type FeedbackService struct {
	conversations driven.ConversationStore
	store         driven.FeedbackStore
	now           func() time.Time
}

// NewFeedbackService creates a new feedback service.
func NewFeedbackService(conversations driven.ConversationStore, store driven.FeedbackStore) *FeedbackService {
	return &FeedbackService{conversations: conversations, store: store, now: time.Now}
}

// Submit saves feedback for messageID. A message in a conversation the
// guest does not own is reported as domain.ErrNotFound.
func (s *FeedbackService) Submit(ctx context.Context, guestID, messageID, content string) (*domain.Feedback, error) {
	if err := ValidateGuestID(guestID); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty feedback", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(content) > MaxFeedbackLength {
		return nil, fmt.Errorf("%w: feedback longer than %d characters", domain.ErrInvalidInput, MaxFeedbackLength)
	}

	msg, err := s.conversations.GetOwnedMessage(ctx, messageID, guestID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("lookup message: %w", err)
	}
	if msg.Role != domain.RoleAssistant {
		return nil, domain.ErrNotAssistantMessage
	}

	fb := &domain.Feedback{
		ID:        uuid.New().String(),
		MessageID: msg.ID,
		GuestID:   guestID,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.store.SaveFeedback(ctx, fb); err != nil {
		return nil, fmt.Errorf("save feedback: %w", err)
	}
	return fb, nil
}
