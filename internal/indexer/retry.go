package indexer

import (
	"context"
	"time"
)

// retryWithBackoff calls fn until it succeeds or maxAttempts is reached,
// waiting base*2^attempt between attempts. Only the number of attempts is
// bounded; the wait itself is not capped.
func retryWithBackoff(ctx context.Context, maxAttempts int, base time.Duration, fn func() error) error {
	var err error
	wait := base
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == maxAttempts-1 {
			break
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		wait *= 2
	}
	return err
}
