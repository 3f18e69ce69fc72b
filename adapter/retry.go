package adapter

import (
	"context"
	"fmt"
	"time"
)

// ExponentialBackoff waits 500ms before retry 1 and doubles after that.
func ExponentialBackoff(i int) time.Duration {
	return time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
}

// Retry calls fn once plus up to retries more times, sleeping backoff(i)
// before retry i. It stops at the first success, when retriable rejects an
// error, or when ctx ends. A nil retriable retries every error.
func Retry(ctx context.Context, retries int, backoff func(int) time.Duration, retriable func(error) bool, fn func() error) error {
	attempts := 1 + retries
	var lastErr error
	for i := range attempts {
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("context canceled during backoff: %w", ctx.Err())
			case <-time.After(backoff(i)):
			}
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context canceled: %w", err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if retriable != nil && !retriable(lastErr) {
			return fmt.Errorf("non-retriable error: %w", lastErr)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
