package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

func newTestServer(t *testing.T, chat *mockChat, health Pinger) *Server {
	t.Helper()
	s, err := NewServer(&Ports{Chat: chat, Health: health}, domain.ServerSettings{})
	require.NoError(t, err)
	return s
}

func do(s *Server, method, target, body string, guest string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if guest != "" {
		req.Header.Set(HeaderGuestID, guest)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestNewServer_RequiresChat(t *testing.T) {
	_, err := NewServer(&Ports{}, domain.ServerSettings{})
	assert.ErrorIs(t, err, ErrMissingChatService)

	_, err = NewServer(nil, domain.ServerSettings{})
	assert.ErrorIs(t, err, ErrMissingChatService)
}

func TestHealth(t *testing.T) {
	rec := do(newTestServer(t, &mockChat{}, mockPinger{}), http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(newTestServer(t, &mockChat{}, mockPinger{err: errBoom}), http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStartConversation(t *testing.T) {
	t.Run("mints guest and sets cookie", func(t *testing.T) {
		chat := &mockChat{}
		rec := do(newTestServer(t, chat, nil), http.MethodPost, "/api/conversations", "", "")

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Empty(t, chat.startGuest)

		var body startResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "conv-1", body.ConversationID)
		assert.Equal(t, "11111111-2222-4333-8444-555555555555", body.GuestID)

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "townhall_guest", cookies[0].Name)
		assert.Equal(t, body.GuestID, cookies[0].Value)
		assert.Equal(t, int((400 * 24 * time.Hour).Seconds()), cookies[0].MaxAge)
		assert.True(t, cookies[0].HttpOnly)
	})

	t.Run("reuses cookie identity", func(t *testing.T) {
		chat := &mockChat{}
		s := newTestServer(t, chat, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/conversations", nil)
		req.AddCookie(&http.Cookie{Name: "townhall_guest", Value: testGuest})
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, testGuest, chat.startGuest)
	})

	t.Run("malformed guest id is rejected", func(t *testing.T) {
		chat := &mockChat{}
		rec := do(newTestServer(t, chat, nil), http.MethodPost, "/api/conversations", "", "not-a-uuid")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, CodeInvalidInput, decodeError(t, rec).Error)
		assert.Empty(t, chat.startIP)
	})

	t.Run("rate limited carries retry after", func(t *testing.T) {
		chat := &mockChat{startErr: &domain.RateLimitError{
			Action:     domain.RateConversationStart,
			RetryAfter: 90*time.Second + 300*time.Millisecond,
		}}
		rec := do(newTestServer(t, chat, nil), http.MethodPost, "/api/conversations", "", testGuest)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "91", rec.Header().Get("Retry-After"))
		body := decodeError(t, rec)
		assert.Equal(t, CodeRateLimited, body.Error)
		assert.Equal(t, 91, body.RetryAfter)
	})
}

func TestListAndGetConversation(t *testing.T) {
	t.Run("list requires guest", func(t *testing.T) {
		rec := do(newTestServer(t, &mockChat{}, nil), http.MethodGet, "/api/conversations", "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list returns empty array", func(t *testing.T) {
		rec := do(newTestServer(t, &mockChat{}, nil), http.MethodGet, "/api/conversations", "", testGuest)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("get not owned is 404", func(t *testing.T) {
		chat := &mockChat{err: fmt.Errorf("get conversation: %w", domain.ErrNotFound)}
		rec := do(newTestServer(t, chat, nil), http.MethodGet, "/api/conversations/conv-9", "", testGuest)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, CodeNotFound, decodeError(t, rec).Error)
	})

	t.Run("get returns messages", func(t *testing.T) {
		chat := &mockChat{detail: &domain.ConversationDetail{
			Conversation: domain.Conversation{ID: "conv-1", GuestID: testGuest, Title: "Svoz odpadu"},
			Messages: []domain.Message{
				{ID: "m1", ConversationID: "conv-1", Role: domain.RoleUser, Content: "Kdy je svoz odpadu?"},
			},
		}}
		rec := do(newTestServer(t, chat, nil), http.MethodGet, "/api/conversations/conv-1", "", testGuest)
		require.Equal(t, http.StatusOK, rec.Code)

		var got map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "conv-1", got["id"])
		assert.Equal(t, "Svoz odpadu", got["title"])
		assert.Len(t, got["messages"], 1)
	})
}

func TestEndConversation(t *testing.T) {
	chat := &mockChat{}
	rec := do(newTestServer(t, chat, nil), http.MethodPost, "/api/conversations/conv-1/end", "", testGuest)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "conv-1", chat.endedID)
}

func TestSendMessage(t *testing.T) {
	t.Run("streams events as SSE", func(t *testing.T) {
		chat := &mockChat{sendEvents: []domain.Event{
			{Type: domain.EventSources, Data: domain.CitationSet{}},
			{Type: domain.EventMessage, Data: domain.MessageDelta{Content: "Svoz je "}},
			{Type: domain.EventMessage, Data: domain.MessageDelta{Content: "v úterý."}},
			{Type: domain.EventMessageSaved, Data: domain.MessageSaved{MessageID: "m2"}},
			{Type: domain.EventDone, Data: domain.Done{ConversationID: "conv-1"}},
		}}
		rec := do(newTestServer(t, chat, nil), http.MethodPost,
			"/api/conversations/conv-1/messages", `{"message":"Kdy je svoz odpadu?"}`, testGuest)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/event-stream"))
		assert.Equal(t, domain.SendRequest{
			ConversationID: "conv-1",
			GuestID:        testGuest,
			Message:        "Kdy je svoz odpadu?",
		}, chat.sendReq)

		body := rec.Body.String()
		assert.Contains(t, body, "event: message\ndata: {\"content\":\"Svoz je \"}\n\n")
		assert.Contains(t, body, "event: message_saved\ndata: {\"messageId\":\"m2\"}\n\n")
		assert.True(t, strings.HasSuffix(body, "event: done\ndata: {\"conversationId\":\"conv-1\"}\n\n"))
		assert.Less(t, strings.Index(body, "event: sources"), strings.Index(body, "event: message\n"))
	})

	t.Run("policy refusal is JSON 403 with canned text", func(t *testing.T) {
		chat := &mockChat{sendErr: &domain.PolicyError{
			Err:     domain.ErrGuestBlocked,
			Message: "Vraťte se prosím zítra.",
		}}
		rec := do(newTestServer(t, chat, nil), http.MethodPost,
			"/api/conversations/conv-1/messages", `{"message":"Jaké je počasí na Marsu?"}`, testGuest)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, CodeBlocked, body.Error)
		assert.Equal(t, "Vraťte se prosím zítra.", body.Message)
	})

	t.Run("ended conversation is 409", func(t *testing.T) {
		chat := &mockChat{sendErr: domain.ErrConversationEnded}
		rec := do(newTestServer(t, chat, nil), http.MethodPost,
			"/api/conversations/conv-1/messages", `{"message":"Ahoj"}`, testGuest)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("upstream detail is hidden", func(t *testing.T) {
		chat := &mockChat{sendErr: fmt.Errorf("%w: dial tcp 10.0.0.3:11434", domain.ErrEmbeddingUnavailable)}
		rec := do(newTestServer(t, chat, nil), http.MethodPost,
			"/api/conversations/conv-1/messages", `{"message":"Ahoj"}`, testGuest)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.NotContains(t, rec.Body.String(), "10.0.0.3")
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		rec := do(newTestServer(t, &mockChat{}, nil), http.MethodPost,
			"/api/conversations/conv-1/messages", `{"message":`, testGuest)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestFeedback(t *testing.T) {
	t.Run("saved", func(t *testing.T) {
		chat := &mockChat{}
		rec := do(newTestServer(t, chat, nil), http.MethodPost,
			"/api/messages/m2/feedback", `{"content":"Odpověď byla přesná."}`, testGuest)

		require.Equal(t, http.StatusCreated, rec.Code)
		require.NotNil(t, chat.feedback)
		assert.Equal(t, "m2", chat.feedback.MessageID)
		assert.Equal(t, testGuest, chat.feedback.GuestID)
		assert.Equal(t, "Odpověď byla přesná.", chat.feedback.Content)
	})

	t.Run("foreign message is 404", func(t *testing.T) {
		chat := &mockChat{err: domain.ErrNotFound}
		rec := do(newTestServer(t, chat, nil), http.MethodPost,
			"/api/messages/m9/feedback", `{"content":"hm"}`, testGuest)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("user message is 400", func(t *testing.T) {
		chat := &mockChat{err: domain.ErrNotAssistantMessage}
		rec := do(newTestServer(t, chat, nil), http.MethodPost,
			"/api/messages/m1/feedback", `{"content":"hm"}`, testGuest)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestUnknownRoute(t *testing.T) {
	rec := do(newTestServer(t, &mockChat{}, nil), http.MethodGet, "/api/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeRouteNotFound, decodeError(t, rec).Error)
}

func TestCORS(t *testing.T) {
	s, err := NewServer(&Ports{Chat: &mockChat{}}, domain.ServerSettings{
		AllowedOrigins: []string{"https://obec.example"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodOptions, "/api/conversations", nil)
	req.Header.Set("Origin", "https://obec.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "https://obec.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}
