// Package retry runs an operation under exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultMaxDelay    = 5 * time.Minute
)

// ErrInterrupted marks a retry sequence cut short by context cancellation during backoff.
var ErrInterrupted = errors.New("retry interrupted")

// Policy describes how many times and how far apart an operation is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// MaxDelay caps a single backoff. Zero means DefaultMaxDelay.
	MaxDelay time.Duration
	// Jitter adds a random extra in [0, Jitter*delay) to each backoff.
	Jitter float64
	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
	// Sleep replaces the timer wait, mainly for tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Delay returns the backoff after the given failed attempt (1-based), without jitter,
// capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	limit := p.MaxDelay
	if limit <= 0 {
		limit = DefaultMaxDelay
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		if d >= limit/2 {
			return limit
		}
		d *= 2
	}
	return min(d, limit)
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p Policy) backoff(attempt int) time.Duration {
	d := p.Delay(attempt)
	if p.Jitter > 0 && d > 0 {
		d += time.Duration(rand.Float64() * p.Jitter * float64(d))
	}
	return d
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs op until it succeeds, fails with an error retryable rejects, or the attempts run out.
// On exhaustion the last error is returned. If ctx ends while waiting between attempts the
// returned error joins ErrInterrupted, the context error and the last failure.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), retryable func(error) bool) (T, error) {
	var zero T
	attempts := p.attempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if retryable == nil || !retryable(err) || attempt == attempts {
			return zero, err
		}

		delay := p.backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if err := ctx.Err(); err != nil {
			return zero, errors.Join(ErrInterrupted, err, lastErr)
		}
		if err := p.sleep(ctx, delay); err != nil {
			return zero, errors.Join(ErrInterrupted, err, lastErr)
		}
	}
	return zero, lastErr
}
