package domain

import (
	"fmt"
	"time"
)

// RateAction identifies a rate-limited action per guest.
type RateAction string

// Rate-limited actions.
const (
	RateConversationStart RateAction = "conversation_start"
	RateMessageMinute     RateAction = "message_minute"
	RateMessageDay        RateAction = "message_day"
	RateModeration        RateAction = "moderation"
)

// RateRule allows Limit actions per sliding Window.
type RateRule struct {
	Action RateAction
	Limit  int
	Window time.Duration
}

// Key returns the counter key for a guest.
func (r RateRule) Key(guestID string) string {
	return string(r.Action) + ":" + guestID
}

// RateLimitError is returned when a guest exceeds a rule.
type RateLimitError struct {
	Action     RateAction
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s, retry after %s", e.Action, e.RetryAfter.Round(time.Second))
}

// Is lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
