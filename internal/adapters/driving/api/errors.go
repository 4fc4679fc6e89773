package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/logger"
)

const headerRetryAfter = "Retry-After"

// Error codes returned in the "error" field.
const (
	CodeInvalidInput   = "invalid_input"
	CodeNotFound       = "not_found"
	CodeEnded          = "conversation_ended"
	CodeRateLimited    = "rate_limited"
	CodeFlagged        = "message_flagged"
	CodeBlocked        = "guest_blocked"
	CodeCooldown       = "moderation_cooldown"
	CodeUpstream       = "upstream_error"
	CodeInternal       = "internal_error"
	CodeRouteNotFound  = "route_not_found"
)

const (
	msgInvalidInput = "Požadavek není platný."
	msgNotFound     = "Konverzace nebo zpráva nebyla nalezena."
	msgEnded        = "Tato konverzace již byla ukončena."
	msgRateLimited  = "Příliš mnoho požadavků. Zkuste to prosím později."
	msgGeneric      = "Omlouvám se, něco se pokazilo. Zkuste to prosím za chvíli znovu."
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// writeError maps a service error onto a status code and a user-facing body.
// Technical detail is logged, never returned.
func writeError(c echo.Context, err error) error {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error(err, "%s %s", c.Request().Method, c.Path())
	} else {
		logger.Debug("%s %s rejected: %v", c.Request().Method, c.Path(), err)
	}
	if body.RetryAfter > 0 {
		c.Response().Header().Set(headerRetryAfter, strconv.Itoa(body.RetryAfter))
	}
	return c.JSON(status, body)
}

func classify(err error) (int, ErrorResponse) {
	var rateErr *domain.RateLimitError
	if errors.As(err, &rateErr) {
		secs := int(math.Ceil(rateErr.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		return http.StatusTooManyRequests, ErrorResponse{Error: CodeRateLimited, Message: msgRateLimited, RetryAfter: secs}
	}

	var policyErr *domain.PolicyError
	if errors.As(err, &policyErr) {
		code := CodeFlagged
		switch {
		case errors.Is(err, domain.ErrGuestBlocked):
			code = CodeBlocked
		case errors.Is(err, domain.ErrModerationCooldown):
			code = CodeCooldown
		}
		return http.StatusForbidden, ErrorResponse{Error: code, Message: policyErr.Message}
	}

	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrNotAssistantMessage):
		return http.StatusBadRequest, ErrorResponse{Error: CodeInvalidInput, Message: msgInvalidInput}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: CodeNotFound, Message: msgNotFound}
	case errors.Is(err, domain.ErrConversationEnded):
		return http.StatusConflict, ErrorResponse{Error: CodeEnded, Message: msgEnded}
	case errors.Is(err, domain.ErrEmbeddingUnavailable),
		errors.Is(err, domain.ErrGenerationFailed),
		errors.Is(err, domain.ErrModerationUnavailable),
		errors.Is(err, domain.ErrUpstreamRejected):
		return http.StatusBadGateway, ErrorResponse{Error: CodeUpstream, Message: msgGeneric}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: CodeInternal, Message: msgGeneric}
	}
}

// httpErrorHandler renders echo's own errors (unknown route, bad method)
// in the same shape as service errors.
func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code := CodeInternal
		msg := msgGeneric
		switch he.Code {
		case http.StatusNotFound, http.StatusMethodNotAllowed:
			code, msg = CodeRouteNotFound, msgNotFound
		case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
			code, msg = CodeInvalidInput, msgInvalidInput
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(he.Code)
			return
		}
		_ = c.JSON(he.Code, ErrorResponse{Error: code, Message: msg})
		return
	}

	_ = writeError(c, err)
}
