// Package retry applies a fixed-backoff retry policy to an operation.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Default is the policy used for ammeter requests: three attempts, half a
// second apart.
var Default = Policy{MaxAttempts: 3, Backoff: 500 * time.Millisecond}

// Policy bounds how often and how far apart an operation is attempted.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do runs op until it succeeds, fails with an error retryable rejects, or
// MaxAttempts is reached. onRetry, if set, is called after every retryable
// failure with the 1-based attempt number.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error, retryable func(error) bool, onRetry func(attempt int, err error)) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}

		lastErr = err
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if attempt == attempts {
			break
		}

		if err := p.sleep(ctx); err != nil {
			return err
		}
	}

	return &ExhaustedError{Attempts: attempts, Err: lastErr}
}

func (p Policy) sleep(ctx context.Context) error {
	if p.Backoff <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(p.Backoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
