package memory

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/townhall/internal/core/ports/driven"
)

// Ensure RateCounter implements the interface.
var _ driven.RateCounter = (*RateCounter)(nil)

// RateCounter is a sliding-window counter guarded by one mutex, so every
// check-and-record is atomic within the process.
type RateCounter struct {
	mu     sync.Mutex
	events map[string][]time.Time
}

// NewRateCounter creates an empty counter.
func NewRateCounter() *RateCounter {
	return &RateCounter{events: make(map[string][]time.Time)}
}

// Hit implements driven.RateCounter.
func (c *RateCounter) Hit(
	_ context.Context, key string, limit int, window time.Duration, now time.Time,
) (bool, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.prune(key, window, now)
	if len(live) >= limit {
		return false, retryAfter(live, limit, window, now), nil
	}
	c.events[key] = append(live, now)
	return true, 0, nil
}

// Peek implements driven.RateCounter.
func (c *RateCounter) Peek(
	_ context.Context, key string, limit int, window time.Duration, now time.Time,
) (bool, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.prune(key, window, now)
	if len(live) >= limit {
		return false, retryAfter(live, limit, window, now), nil
	}
	return true, 0, nil
}

// prune drops events that left the window. Events are kept in time order.
func (c *RateCounter) prune(key string, window time.Duration, now time.Time) []time.Time {
	events := c.events[key]
	cutoff := now.Add(-window)
	i := 0
	for i < len(events) && !events[i].After(cutoff) {
		i++
	}
	live := events[i:]
	if len(live) == 0 {
		delete(c.events, key)
		return nil
	}
	c.events[key] = live
	return live
}

// retryAfter is the time until enough events leave the window for one
// more to fit.
func retryAfter(live []time.Time, limit int, window time.Duration, now time.Time) time.Duration {
	oldest := live[len(live)-limit]
	d := oldest.Add(window).Sub(now)
	if d < time.Second {
		d = time.Second
	}
	return d
}
