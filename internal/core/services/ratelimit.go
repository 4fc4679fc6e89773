package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
)

// RateLimiter enforces per-guest sliding-window limits.
// Counting happens atomically in the counter store.
type RateLimiter struct {
	counter driven.RateCounter
	rules   map[domain.RateAction]domain.RateRule
	now     func() time.Time
}

// NewRateLimiter creates a limiter. Actions without a rule, or with a
// non-positive limit or window, are unlimited.
func NewRateLimiter(counter driven.RateCounter, rules map[domain.RateAction]domain.RateRule) *RateLimiter {
	return &RateLimiter{counter: counter, rules: rules, now: time.Now}
}

func (l *RateLimiter) rule(action domain.RateAction) (domain.RateRule, bool) {
	r, ok := l.rules[action]
	if !ok || r.Limit <= 0 || r.Window <= 0 || l.counter == nil {
		return domain.RateRule{}, false
	}
	return r, true
}

// Check reports whether action is currently allowed without consuming it.
func (l *RateLimiter) Check(ctx context.Context, guestID string, action domain.RateAction) error {
	r, ok := l.rule(action)
	if !ok {
		return nil
	}
	allowed, retry, err := l.counter.Peek(ctx, r.Key(guestID), r.Limit, r.Window, l.now())
	if err != nil {
		return fmt.Errorf("check rate %s: %w", action, err)
	}
	if !allowed {
		return &domain.RateLimitError{Action: action, RetryAfter: retry}
	}
	return nil
}

// Allow checks every listed action and then consumes each of them. A denial
// found by the checks consumes nothing. Each hit is atomic in the counter,
// but the sequence is not: a concurrent caller for the same guest can use up
// a later action between the checks and the hits, and earlier hits then stay
// counted.
func (l *RateLimiter) Allow(ctx context.Context, guestID string, actions ...domain.RateAction) error {
	for _, a := range actions {
		if err := l.Check(ctx, guestID, a); err != nil {
			return err
		}
	}
	now := l.now()
	for _, a := range actions {
		r, ok := l.rule(a)
		if !ok {
			continue
		}
		allowed, retry, err := l.counter.Hit(ctx, r.Key(guestID), r.Limit, r.Window, now)
		if err != nil {
			return fmt.Errorf("hit rate %s: %w", a, err)
		}
		if !allowed {
			return &domain.RateLimitError{Action: a, RetryAfter: retry}
		}
	}
	return nil
}
