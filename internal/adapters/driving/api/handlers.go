package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

type startResponse struct {
	ConversationID string    `json:"conversationId"`
	GuestID        string    `json:"guestId"`
	StartedAt      time.Time `json:"startedAt"`
}

type sendRequest struct {
	Message string `json:"message"`
}

type feedbackRequest struct {
	Content string `json:"content"`
}

type feedbackResponse struct {
	ID        string    `json:"id"`
	MessageID string    `json:"messageId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Server) handleStartConversation(c echo.Context) error {
	guestID, err := s.guestID(c)
	if err != nil {
		return writeError(c, err)
	}

	conv, err := s.ports.Chat.StartConversation(c.Request().Context(), guestID, c.RealIP())
	if err != nil {
		return writeError(c, err)
	}

	s.setGuestCookie(c, conv.GuestID)
	c.Response().Header().Set(HeaderGuestID, conv.GuestID)
	return c.JSON(http.StatusCreated, startResponse{
		ConversationID: conv.ID,
		GuestID:        conv.GuestID,
		StartedAt:      conv.StartedAt,
	})
}

func (s *Server) handleListConversations(c echo.Context) error {
	guestID, err := s.requireGuest(c)
	if err != nil {
		return writeError(c, err)
	}

	convs, err := s.ports.Chat.ListConversations(c.Request().Context(), guestID)
	if err != nil {
		return writeError(c, err)
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	return c.JSON(http.StatusOK, convs)
}

func (s *Server) handleGetConversation(c echo.Context) error {
	guestID, err := s.requireGuest(c)
	if err != nil {
		return writeError(c, err)
	}

	detail, err := s.ports.Chat.GetConversation(c.Request().Context(), c.Param("id"), guestID)
	if err != nil {
		return writeError(c, err)
	}
	if detail.Messages == nil {
		detail.Messages = []domain.Message{}
	}
	return c.JSON(http.StatusOK, detail)
}

func (s *Server) handleEndConversation(c echo.Context) error {
	guestID, err := s.requireGuest(c)
	if err != nil {
		return writeError(c, err)
	}

	if err := s.ports.Chat.EndConversation(c.Request().Context(), c.Param("id"), guestID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSendMessage(c echo.Context) error {
	guestID, err := s.requireGuest(c)
	if err != nil {
		return writeError(c, err)
	}

	var body sendRequest
	if err := c.Bind(&body); err != nil {
		return writeError(c, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
	}

	events, err := s.ports.Chat.SendMessage(c.Request().Context(), domain.SendRequest{
		ConversationID: c.Param("id"),
		GuestID:        guestID,
		Message:        body.Message,
	})
	if err != nil {
		return writeError(c, err)
	}

	return streamEvents(c, events)
}

func (s *Server) handleFeedback(c echo.Context) error {
	guestID, err := s.requireGuest(c)
	if err != nil {
		return writeError(c, err)
	}

	var body feedbackRequest
	if err := c.Bind(&body); err != nil {
		return writeError(c, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
	}

	fb, err := s.ports.Chat.SubmitFeedback(c.Request().Context(), guestID, c.Param("id"), body.Content)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, feedbackResponse{
		ID:        fb.ID,
		MessageID: fb.MessageID,
		CreatedAt: fb.CreatedAt,
	})
}
