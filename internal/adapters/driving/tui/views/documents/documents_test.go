package documents

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/townhall/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/townhall/internal/core/domain"
)

// mockDocumentService implements driving.DocumentService for testing.
type mockDocumentService struct {
	docs    []domain.Document
	listErr error
	deleted []string
	delErr  error
}

func (m *mockDocumentService) List(context.Context) ([]domain.Document, error) {
	return m.docs, m.listErr
}

func (m *mockDocumentService) Get(_ context.Context, id string) (*domain.Document, error) {
	for i := range m.docs {
		if m.docs[i].ID == id {
			return &m.docs[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockDocumentService) GetContent(context.Context, string) (string, error) {
	return "", nil
}

func (m *mockDocumentService) Delete(_ context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return m.delErr
}

func testDocs() []domain.Document {
	return []domain.Document{
		{ID: "d1", Title: "Jízdní řád", SourceURL: "https://obec.example.cz/doprava", Type: domain.DocumentTypeWebpage},
		{ID: "d2", Title: "", SourceURL: "file:///data/zapis.pdf", Type: domain.DocumentTypePDF},
	}
}

func loaded(v *View) {
	msg := v.Init()()
	v.Update(msg)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNewView(t *testing.T) {
	v := NewView(nil, &mockDocumentService{})

	require.NotNil(t, v)
	assert.NotNil(t, v.styles)
	assert.Empty(t, v.Documents())
	assert.False(t, v.IsShowingMenu())
}

func TestView_Init_LoadsDocuments(t *testing.T) {
	v := NewView(nil, &mockDocumentService{docs: testDocs()})

	cmd := v.Init()
	assert.True(t, v.Loading())

	v.Update(cmd())

	assert.False(t, v.Loading())
	assert.Len(t, v.Documents(), 2)
	assert.NoError(t, v.Err())
}

func TestView_Init_NoService(t *testing.T) {
	v := NewView(nil, nil)

	loaded(v)

	assert.ErrorIs(t, v.Err(), ErrNoDocumentService)
}

func TestView_Init_ListError(t *testing.T) {
	v := NewView(nil, &mockDocumentService{listErr: errors.New("db locked")})

	loaded(v)

	assert.EqualError(t, v.Err(), "db locked")
	assert.Contains(t, v.View(), "db locked")
}

func TestView_Navigate(t *testing.T) {
	v := NewView(nil, &mockDocumentService{docs: testDocs()})
	loaded(v)

	v.Update(key("down"))
	assert.Equal(t, 1, v.SelectedIndex())
	v.Update(key("j"))
	assert.Equal(t, 1, v.SelectedIndex())
	v.Update(key("k"))
	assert.Equal(t, 0, v.SelectedIndex())
}

func TestView_ShowContent(t *testing.T) {
	v := NewView(nil, &mockDocumentService{docs: testDocs()})
	loaded(v)

	v.Update(key("enter"))
	require.True(t, v.IsShowingMenu())

	_, cmd := v.Update(key("enter"))

	require.NotNil(t, cmd)
	assert.Equal(t, messages.DocumentSelected{Document: testDocs()[0]}, cmd())
	assert.False(t, v.IsShowingMenu())
}

func TestView_Delete_ReloadsList(t *testing.T) {
	svc := &mockDocumentService{docs: testDocs()}
	v := NewView(nil, svc)
	loaded(v)
	v.Update(key("down"))

	v.Update(key("d"))
	require.True(t, v.IsShowingMenu())
	_, cmd := v.Update(key("enter"))
	require.NotNil(t, cmd)

	deleted := cmd()
	assert.Equal(t, messages.DocumentDeleted{DocumentID: "d2"}, deleted)
	assert.Equal(t, []string{"d2"}, svc.deleted)

	svc.docs = testDocs()[:1]
	_, reload := v.Update(deleted)
	require.NotNil(t, reload)
	v.Update(reload())

	assert.Len(t, v.Documents(), 1)
	assert.Equal(t, 0, v.SelectedIndex())
}

func TestView_Delete_Error(t *testing.T) {
	v := NewView(nil, &mockDocumentService{docs: testDocs()})
	loaded(v)

	_, cmd := v.Update(messages.DocumentDeleted{DocumentID: "d1", Err: domain.ErrNotFound})

	assert.Nil(t, cmd)
	assert.ErrorIs(t, v.Err(), domain.ErrNotFound)
}

func TestView_Menu_CancelAndEsc(t *testing.T) {
	v := NewView(nil, &mockDocumentService{docs: testDocs()})
	loaded(v)

	v.Update(key("enter"))
	v.Update(key("esc"))
	assert.False(t, v.IsShowingMenu())

	v.Update(key("enter"))
	v.Update(key("down"))
	v.Update(key("down"))
	_, cmd := v.Update(key("enter"))
	assert.Nil(t, cmd)
	assert.False(t, v.IsShowingMenu())
}

func TestView_Esc_ReturnsToMenu(t *testing.T) {
	v := NewView(nil, &mockDocumentService{})

	_, cmd := v.Update(key("esc"))

	require.NotNil(t, cmd)
	assert.Equal(t, messages.ViewChanged{View: messages.ViewMenu}, cmd())
}

func TestView_View(t *testing.T) {
	v := NewView(nil, &mockDocumentService{})
	v.SetDimensions(120, 30)
	loaded(v)
	assert.Contains(t, v.View(), "Nothing has been ingested yet")

	v = NewView(nil, &mockDocumentService{docs: testDocs()})
	v.SetDimensions(120, 30)
	loaded(v)
	out := v.View()

	assert.Contains(t, out, "Documents (2)")
	assert.Contains(t, out, "Jízdní řád")
	assert.Contains(t, out, "d2")
	assert.Contains(t, out, "file:///data/zapis.pdf")

	v.Update(key("enter"))
	assert.Contains(t, v.View(), "Actions for: Jízdní řád")
}

func TestClipLeft(t *testing.T) {
	assert.Equal(t, "short", clipLeft("short", 10))
	assert.Equal(t, "...ef", clipLeft("abcdef", 5))
}
