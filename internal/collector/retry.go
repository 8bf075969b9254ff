package collector

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

func isRetriable(err error) bool {
	if errors.Is(err, ErrSourceRejected) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// withRetry runs fn up to maxRetries+1 times with jittered exponential
// backoff starting at baseDelay. Rejected requests and context errors
// stop the loop immediately.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	var err error
	for attempt := range maxRetries + 1 {
		err = fn(ctx)
		if err == nil || !isRetriable(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}
		var jitter time.Duration
		if baseDelay > 0 {
			jitter = time.Duration(rand.Int64N(int64(baseDelay))) //nolint:gosec // backoff jitter
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(baseDelay + jitter):
		}
		baseDelay *= 2
	}
	return err
}
