// Package ratelimit bounds how many calls may start within a trailing one-second window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter keeps the timestamps of the last N grants in a ring. A new grant is allowed
// once the oldest of them has left the window. Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time
	next   int
	filled int

	now     func() time.Time
	granted func(time.Time)
}

// New returns a limiter allowing perSecond grants per second. perSecond <= 0 disables limiting.
func New(perSecond int) *Limiter {
	return newLimiter(perSecond, time.Second, time.Now)
}

func newLimiter(limit int, window time.Duration, now func() time.Time) *Limiter {
	l := &Limiter{limit: limit, window: window, now: now}
	if limit > 0 {
		l.stamps = make([]time.Time, limit)
	}
	return l
}

// Limit returns the configured grants per window, 0 when disabled.
func (l *Limiter) Limit() int {
	if l == nil || l.limit <= 0 {
		return 0
	}
	return l.limit
}

// Acquire blocks until a grant is available or ctx ends. It never rejects.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l == nil || l.limit <= 0 {
		return ctx.Err()
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		wait := l.tryGrant()
		if wait <= 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryGrant records a grant and returns 0, or returns how long until the oldest grant expires.
func (l *Limiter) tryGrant() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.filled == l.limit {
		// ring is full: next points at the oldest grant
		if elapsed := now.Sub(l.stamps[l.next]); elapsed < l.window {
			return l.window - elapsed
		}
	} else {
		l.filled++
	}
	l.stamps[l.next] = now
	l.next = (l.next + 1) % l.limit
	if l.granted != nil {
		l.granted(now)
	}
	return 0
}
