package scraper

import (
	"context"
	"sync"
	"time"
)

// Cooldown enforces a minimum spacing between outbound requests. The
// upstream rate limit is global to our network identity, so there is one
// Cooldown shared by every fetch in the process (scheduled or ad hoc), not
// one per handle. The next-allowed timestamp is the only mutable state and
// is guarded by a single lock; concurrent callers each reserve their own
// slot so two near-simultaneous calls never compute a stale last-request
// time.
type Cooldown struct {
	mu    sync.Mutex
	next  time.Time
	delay time.Duration

	now func() time.Time // swapped out in tests
}

// NewCooldown returns a Cooldown with the given inter-request delay.
func NewCooldown(delay time.Duration) *Cooldown {
	return &Cooldown{delay: delay, now: time.Now}
}

// Wait blocks until the caller's reserved slot arrives, or until ctx is
// done. The slot is reserved before sleeping, so waiting callers queue up
// delay-spaced rather than stampeding when the current cooldown expires.
func (c *Cooldown) Wait(ctx context.Context) error {
	c.mu.Lock()
	now := c.now()
	var wait time.Duration
	if c.next.After(now) {
		wait = c.next.Sub(now)
		c.next = c.next.Add(c.delay)
	} else {
		c.next = now.Add(c.delay)
	}
	c.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
