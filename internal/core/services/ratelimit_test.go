package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/townhall/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/townhall/internal/core/domain"
)

func newTestLimiter(clock *fakeClock) *RateLimiter {
	rules := domain.RateLimitSettings{
		ConversationsPerHour: 2,
		MessagesPerMinute:    3,
		MessagesPerDay:       5,
	}.Rules(time.Minute)
	l := NewRateLimiter(memory.NewRateCounter(), rules)
	l.now = clock.Now
	return l
}

func TestRateLimiter_Allow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)}
	l := newTestLimiter(clock)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "g1", domain.RateConversationStart))
	require.NoError(t, l.Allow(ctx, "g1", domain.RateConversationStart))

	err := l.Allow(ctx, "g1", domain.RateConversationStart)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	var rle *domain.RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, domain.RateConversationStart, rle.Action)
	assert.Equal(t, time.Hour, rle.RetryAfter)

	assert.NoError(t, l.Allow(ctx, "g2", domain.RateConversationStart), "guests are independent")

	clock.Advance(time.Hour + time.Second)
	assert.NoError(t, l.Allow(ctx, "g1", domain.RateConversationStart))
}

func TestRateLimiter_AllowDenialConsumesNothing(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)}
	l := newTestLimiter(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow(ctx, "g", domain.RateMessageMinute, domain.RateMessageDay))
	}
	err := l.Allow(ctx, "g", domain.RateMessageMinute, domain.RateMessageDay)
	var rle *domain.RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, domain.RateMessageMinute, rle.Action)

	// The denied call did not consume the daily budget: two more fit.
	clock.Advance(2 * time.Minute)
	require.NoError(t, l.Allow(ctx, "g", domain.RateMessageMinute, domain.RateMessageDay))
	require.NoError(t, l.Allow(ctx, "g", domain.RateMessageMinute, domain.RateMessageDay))

	err = l.Allow(ctx, "g", domain.RateMessageMinute, domain.RateMessageDay)
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, domain.RateMessageDay, rle.Action)
}

func TestRateLimiter_CheckDoesNotConsume(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)}
	l := newTestLimiter(clock)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Check(ctx, "g", domain.RateModeration))
	}
	require.NoError(t, l.Allow(ctx, "g", domain.RateModeration))
	assert.ErrorIs(t, l.Check(ctx, "g", domain.RateModeration), domain.ErrRateLimited)

	clock.Advance(time.Minute + time.Second)
	assert.NoError(t, l.Check(ctx, "g", domain.RateModeration))
}

func TestRateLimiter_UnlimitedActions(t *testing.T) {
	l := NewRateLimiter(memory.NewRateCounter(), map[domain.RateAction]domain.RateRule{
		domain.RateMessageMinute: {Action: domain.RateMessageMinute, Limit: 0, Window: time.Minute},
	})
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.NoError(t, l.Allow(ctx, "g", domain.RateMessageMinute, domain.RateConversationStart))
	}

	nilCounter := NewRateLimiter(nil, domain.RateLimitSettings{MessagesPerMinute: 1}.Rules(time.Minute))
	assert.NoError(t, nilCounter.Allow(ctx, "g", domain.RateMessageMinute))
}
