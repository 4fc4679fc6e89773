package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

// HeaderGuestID carries the guest identity for clients without cookies.
const HeaderGuestID = "X-Guest-ID"

// guestID returns the identity from the cookie, falling back to the header.
// An empty string means none was sent.
func (s *Server) guestID(c echo.Context) (string, error) {
	id := ""
	if cookie, err := c.Cookie(s.cfg.CookieName); err == nil {
		id = strings.TrimSpace(cookie.Value)
	}
	if id == "" {
		id = strings.TrimSpace(c.Request().Header.Get(HeaderGuestID))
	}
	if id == "" {
		return "", nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%w: malformed guest id", domain.ErrInvalidInput)
	}
	return id, nil
}

// requireGuest is guestID for routes that cannot mint an identity.
func (s *Server) requireGuest(c echo.Context) (string, error) {
	id, err := s.guestID(c)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("%w: missing guest id", domain.ErrInvalidInput)
	}
	return id, nil
}

func (s *Server) setGuestCookie(c echo.Context, guestID string) {
	c.SetCookie(&http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    guestID,
		Path:     "/",
		MaxAge:   int(s.cfg.CookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.IsTLS(),
		SameSite: http.SameSiteLaxMode,
	})
}
