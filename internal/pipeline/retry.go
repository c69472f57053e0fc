package pipeline

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/docgloss/internal/model"
)

// DefaultMaxRetries is the number of extra attempts per chunk.
const DefaultMaxRetries = 3

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(min(attempt, 5))) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

// retry calls fn until it succeeds, fails with a non-retryable error, runs
// out of retries or ctx is done. The last error is returned.
func retry[T any](ctx context.Context, retries int, backoff func(int) time.Duration, onRetry func(attempt int, err error), fn func(context.Context) (T, error)) (T, error) {
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil || !model.IsRetryable(err) || attempt >= retries || ctx.Err() != nil {
			return v, err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		t := time.NewTimer(backoff(attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return v, err
		}
	}
}
