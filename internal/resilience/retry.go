// Package resilience provides retry and circuit breaker primitives used
// around provider calls.
//
// The central type is [Retry], a bounded exponential-backoff policy with a
// pluggable retryability predicate. All types are safe for concurrent use.
package resilience

import (
	"context"
	"log/slog"
	"time"
)

// Retry is a bounded exponential-backoff retry policy. The zero value retries
// nothing; use [DefaultRetry] for sensible defaults.
type Retry struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt. Each subsequent
	// delay is the previous one multiplied by Multiplier.
	BaseDelay time.Duration

	// Multiplier scales the delay between attempts. Values below 1 are
	// treated as 1 (constant delay).
	Multiplier float64

	// Retryable reports whether an error is worth retrying. A nil
	// Retryable retries every error.
	Retryable func(error) bool
}

// DefaultRetry returns a policy of 3 attempts with 500ms base delay doubling
// between attempts.
func DefaultRetry() Retry {
	return Retry{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2,
	}
}

// Do invokes fn until it succeeds, the policy is exhausted, the error is not
// retryable, or ctx is cancelled. It returns the last error observed, or
// ctx.Err() if the context ended while waiting between attempts.
func (r Retry) Do(ctx context.Context, fn func() error) error {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	mult := r.Multiplier
	if mult < 1 {
		mult = 1
	}

	delay := r.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if r.Retryable != nil && !r.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		slog.Debug("retrying after error",
			"attempt", attempt,
			"max_attempts", attempts,
			"delay", delay,
			"error", lastErr)

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
		delay = time.Duration(float64(delay) * mult)
	}
	return lastErr
}
