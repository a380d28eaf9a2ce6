package ai

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds how often a transient failure is retried.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	CallTimeout  time.Duration
}

// DefaultRetryPolicy mirrors the production defaults: three retries starting
// at two seconds and doubling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialDelay: 2 * time.Second, CallTimeout: 60 * time.Second}
}

// Retry invokes op until it succeeds, fails with a non-transient error, or
// MaxRetries retries have been spent. Attempt n waits InitialDelay * 2^n
// before the next try. A per-call timeout counts as transient while the
// parent context is still alive.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	delay := policy.InitialDelay

	for attempt := 0; ; attempt++ {
		result, err := call(ctx, policy.CallTimeout, op)
		if err == nil {
			return result, nil
		}

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		transient := IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
		if !transient || attempt >= policy.MaxRetries {
			return zero, err
		}

		retriesTotal.Inc()
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}

func call[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(callCtx)
}
