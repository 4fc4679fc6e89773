package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateCounter_HitUntilLimit(t *testing.T) {
	c := NewRateCounter()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		ok, _, err := c.Hit(ctx, "k", 3, time.Minute, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, retry, err := c.Hit(ctx, "k", 3, time.Minute, now.Add(10*time.Second))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 50*time.Second, retry)
}

func TestRateCounter_WindowSlides(t *testing.T) {
	c := NewRateCounter()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	ok, _, _ := c.Hit(ctx, "k", 1, time.Minute, now)
	require.True(t, ok)
	ok, _, _ = c.Hit(ctx, "k", 1, time.Minute, now.Add(30*time.Second))
	assert.False(t, ok)
	ok, _, _ = c.Hit(ctx, "k", 1, time.Minute, now.Add(61*time.Second))
	assert.True(t, ok)
}

func TestRateCounter_PeekDoesNotRecord(t *testing.T) {
	c := NewRateCounter()
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		ok, _, err := c.Peek(ctx, "k", 1, time.Hour, now)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _, _ := c.Hit(ctx, "k", 1, time.Hour, now)
	assert.True(t, ok)
	ok, retry, _ := c.Peek(ctx, "k", 1, time.Hour, now)
	assert.False(t, ok)
	assert.Equal(t, time.Hour, retry)
}

func TestRateCounter_KeysAreIndependent(t *testing.T) {
	c := NewRateCounter()
	ctx := context.Background()
	now := time.Now()

	ok, _, _ := c.Hit(ctx, "message_minute:a", 1, time.Minute, now)
	assert.True(t, ok)
	ok, _, _ = c.Hit(ctx, "message_minute:b", 1, time.Minute, now)
	assert.True(t, ok)
}

func TestRateCounter_ConcurrentHitsNeverExceedLimit(t *testing.T) {
	c := NewRateCounter()
	ctx := context.Background()
	now := time.Now()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, _ := c.Hit(ctx, "k", 10, time.Minute, now)
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}
