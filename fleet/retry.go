package fleet

import (
	"context"
	"time"
)

// Retry runs fn up to attempts times with exponential backoff, retrying
// only errors IsRetryable reports as transient. Callers must only pass
// idempotent operations (reads, status transitions, recompute); conflict
// checks and entry creation are never routed through here.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var err error
	delay := base
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !IsRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
