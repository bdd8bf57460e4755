// Package clocktest provides a compressed clock for animation tests.
package clocktest

import (
	"context"
	"sync"
	"time"

	"libdb.so/barbatos/internal/clock"
)

// Clock reports virtual time that advances by the full requested duration on
// every Sleep, while only really sleeping for d / Speedup. A Speedup below 1
// is treated as 1.
type Clock struct {
	Speedup int

	mu  sync.Mutex
	now time.Time
}

var _ clock.Clock = (*Clock)(nil)

// New returns a clock starting at an arbitrary fixed instant.
func New(speedup int) *Clock {
	return &Clock{
		Speedup: speedup,
		now:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Now implements clock.Clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves virtual time forward without sleeping.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Sleep implements clock.Clock.
func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	speedup := max(c.Speedup, 1)
	if err := (clock.Real{}).Sleep(ctx, d/time.Duration(speedup)); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}
