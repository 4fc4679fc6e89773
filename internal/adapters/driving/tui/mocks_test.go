package tui

import (
	"context"
	"time"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

const testGuest = "7d3f0e1c-3b52-4a43-9c5e-2f6f3c1b9a10"

type mockChat struct {
	events []domain.Event
	ended  []string
}

func (m *mockChat) StartConversation(_ context.Context, guestID, _ string) (*domain.Conversation, error) {
	if guestID == "" {
		guestID = testGuest
	}
	return &domain.Conversation{ID: "conv-1", GuestID: guestID, StartedAt: time.Now()}, nil
}

func (m *mockChat) SendMessage(context.Context, domain.SendRequest) (<-chan domain.Event, error) {
	ch := make(chan domain.Event, len(m.events))
	for _, ev := range m.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (m *mockChat) GetConversation(context.Context, string, string) (*domain.ConversationDetail, error) {
	return nil, domain.ErrNotFound
}

func (m *mockChat) ListConversations(context.Context, string) ([]domain.Conversation, error) {
	return nil, nil
}

func (m *mockChat) EndConversation(_ context.Context, id, _ string) error {
	m.ended = append(m.ended, id)
	return nil
}

func (m *mockChat) SubmitFeedback(context.Context, string, string, string) (*domain.Feedback, error) {
	return &domain.Feedback{ID: "fb-1"}, nil
}

type mockSearch struct {
	results []domain.RankedChunk
}

func (m *mockSearch) Search(context.Context, string, domain.SearchOptions) ([]domain.RankedChunk, error) {
	return m.results, nil
}

type mockDocuments struct {
	docs    []domain.Document
	content map[string]string
}

func (m *mockDocuments) List(context.Context) ([]domain.Document, error) {
	return m.docs, nil
}

func (m *mockDocuments) Get(_ context.Context, id string) (*domain.Document, error) {
	for i := range m.docs {
		if m.docs[i].ID == id {
			return &m.docs[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockDocuments) GetContent(_ context.Context, id string) (string, error) {
	c, ok := m.content[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	return c, nil
}

func (m *mockDocuments) Delete(context.Context, string) error {
	return nil
}
