// Package retry provides a bounded retry loop for operations that depend
// on external processes settling.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrMaxAttempts is wrapped by the error Do returns when the attempt budget
// runs out.
var ErrMaxAttempts = errors.New("max retries exceeded")

// PermanentError wraps an error to signal that retrying will not help.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable. The loop returns the inner error
// immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err has been marked as permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Policy retries an operation a fixed number of times with a fixed wait
// between tries.
type Policy struct {
	// Delay is the wait between tries. Zero retries immediately.
	Delay time.Duration
	// MaxAttempts is the total number of tries including the first.
	// 0 retries until the context is cancelled.
	MaxAttempts int
	// Clock drives the waits. Nil uses the wall clock.
	Clock clock.Clock
	// OnRetry, when set, is called after a failed try that will be retried,
	// before the wait.
	OnRetry func(attempt int, err error)
}

// Constant returns a Policy that waits delay between each of attempts tries.
func Constant(delay time.Duration, attempts int) *Policy {
	return &Policy{Delay: delay, MaxAttempts: attempts}
}

// Do executes fn until it succeeds, returns a permanent error, or the
// attempt budget or context is exhausted.
//
// The attempt passed to fn is 1-based.
func (p *Policy) Do(ctx context.Context, fn func(attempt int) error) error {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return fmt.Errorf("%w (%d): %w", ErrMaxAttempts, p.MaxAttempts, err)
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if err := Sleep(ctx, clk, p.Delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// Sleep waits d on clk, returning early with the context error when ctx is
// cancelled.
func Sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if clk == nil {
		clk = clock.New()
	}
	timer := clk.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
