package api

import (
	"context"
	"errors"
	"time"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

const testGuest = "7d3f0e1c-3b52-4a43-9c5e-2f6f3c1b9a10"

type mockChat struct {
	startGuest string
	startIP    string
	startErr   error

	sendReq    domain.SendRequest
	sendEvents []domain.Event
	sendErr    error

	detail *domain.ConversationDetail
	convs  []domain.Conversation
	err    error

	endedID  string
	feedback *domain.Feedback
}

func (m *mockChat) StartConversation(_ context.Context, guestID, ip string) (*domain.Conversation, error) {
	m.startGuest, m.startIP = guestID, ip
	if m.startErr != nil {
		return nil, m.startErr
	}
	if guestID == "" {
		guestID = "11111111-2222-4333-8444-555555555555"
	}
	return &domain.Conversation{
		ID:        "conv-1",
		GuestID:   guestID,
		StartedAt: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
	}, nil
}

func (m *mockChat) SendMessage(_ context.Context, req domain.SendRequest) (<-chan domain.Event, error) {
	m.sendReq = req
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	ch := make(chan domain.Event, len(m.sendEvents))
	for _, ev := range m.sendEvents {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (m *mockChat) GetConversation(_ context.Context, _, _ string) (*domain.ConversationDetail, error) {
	return m.detail, m.err
}

func (m *mockChat) ListConversations(_ context.Context, _ string) ([]domain.Conversation, error) {
	return m.convs, m.err
}

func (m *mockChat) EndConversation(_ context.Context, id, _ string) error {
	m.endedID = id
	return m.err
}

func (m *mockChat) SubmitFeedback(_ context.Context, guestID, messageID, content string) (*domain.Feedback, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.feedback = &domain.Feedback{
		ID:        "fb-1",
		MessageID: messageID,
		GuestID:   guestID,
		Content:   content,
		CreatedAt: time.Date(2026, 5, 4, 10, 5, 0, 0, time.UTC),
	}
	return m.feedback, nil
}

type mockPinger struct{ err error }

func (m mockPinger) Ping(context.Context) error { return m.err }

var errBoom = errors.New("boom")
