package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/townhall/internal/core/ports/driven"
)

// rateCounter implements driven.RateCounter on the rate_events table.
// The count and the insert happen in one statement, which SQLite runs under
// its write lock, so concurrent processes cannot overshoot a limit.
type rateCounter struct {
	store *Store
}

var _ driven.RateCounter = (*rateCounter)(nil)

// Hit implements driven.RateCounter.
func (c *rateCounter) Hit(
	ctx context.Context, key string, limit int, window time.Duration, now time.Time,
) (bool, time.Duration, error) {
	cutoff := now.Add(-window).UnixMilli()
	if err := c.prune(ctx, key, cutoff); err != nil {
		return false, 0, err
	}

	res, err := c.store.db.ExecContext(ctx, `
		INSERT INTO rate_events (key, at)
		SELECT ?, ?
		WHERE (SELECT COUNT(*) FROM rate_events WHERE key = ? AND at > ?) < ?
	`, key, now.UnixMilli(), key, cutoff, limit)
	if err != nil {
		return false, 0, fmt.Errorf("recording rate event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, 0, nil
	}

	wait, err := c.retryAfter(ctx, key, limit, cutoff, window, now)
	return false, wait, err
}

// Peek implements driven.RateCounter.
func (c *rateCounter) Peek(
	ctx context.Context, key string, limit int, window time.Duration, now time.Time,
) (bool, time.Duration, error) {
	cutoff := now.Add(-window).UnixMilli()

	var count int
	err := c.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM rate_events WHERE key = ? AND at > ?", key, cutoff).Scan(&count)
	if err != nil {
		return false, 0, fmt.Errorf("counting rate events: %w", err)
	}
	if count < limit {
		return true, 0, nil
	}

	wait, err := c.retryAfter(ctx, key, limit, cutoff, window, now)
	return false, wait, err
}

func (c *rateCounter) prune(ctx context.Context, key string, cutoff int64) error {
	_, err := c.store.db.ExecContext(ctx,
		"DELETE FROM rate_events WHERE key = ? AND at <= ?", key, cutoff)
	if err != nil {
		return fmt.Errorf("pruning rate events: %w", err)
	}
	return nil
}

// retryAfter finds the event that has to leave the window before one more
// fits: the limit-th most recent one.
func (c *rateCounter) retryAfter(
	ctx context.Context, key string, limit int, cutoff int64, window time.Duration, now time.Time,
) (time.Duration, error) {
	var at int64
	err := c.store.db.QueryRowContext(ctx, `
		SELECT at FROM rate_events
		WHERE key = ? AND at > ?
		ORDER BY at DESC
		LIMIT 1 OFFSET ?
	`, key, cutoff, limit-1).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Second, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying rate events: %w", err)
	}

	d := time.UnixMilli(at).Add(window).Sub(now)
	if d < time.Second {
		d = time.Second
	}
	return d, nil
}
