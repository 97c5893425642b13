// Package retry provides a bounded exponential-backoff call wrapper.
// The composition rule is fixed upstream: the circuit breaker wraps the
// retry loop, so one exhausted sequence counts as a single breaker failure.
package retry

import (
	"context"
	"time"
)

// Policy wraps an operation with exponential backoff. The delay before
// attempt n (n >= 2) is BaseDelay * 2^(n-2); the final failure is returned
// as-is.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// IsRetryable classifies errors; nil retries every non-nil error.
	IsRetryable func(error) bool
	// Sleep waits for the backoff delay; nil uses a context-aware timer.
	// Tests inject a recorder.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Execute runs op up to MaxAttempts times. Non-retryable errors abort
// immediately. A canceled context aborts the backoff wait and returns the
// context error.
func (p Policy) Execute(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := p.BaseDelay << (attempt - 2)
			if sleepErr := sleep(ctx, delay); sleepErr != nil {
				return sleepErr
			}
		}

		err = op(ctx)
		if err == nil {
			return nil
		}
		if p.IsRetryable != nil && !p.IsRetryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
