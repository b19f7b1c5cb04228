// Copyright (c) 2026 BVK Chaitanya

package ctxutil

import (
	"context"
	"time"
)

// Sleep blocks the caller for given duration. Returns the context's cause
// early if the input context is canceled, nil otherwise.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C:
		return nil
	}
}

// Retry runs the input function till it succeeds or till the input context is
// canceled. Returns nil if the input function is successful or the last
// non-nil error from the function after the context has expired.
func Retry(ctx context.Context, interval time.Duration, f func() error) error {
	return RetryN(ctx, interval, 0, f)
}

// RetryN is like Retry, but gives up after maxAttempts calls to the input
// function. Zero maxAttempts retries without a limit.
func RetryN(ctx context.Context, interval time.Duration, maxAttempts int, f func() error) (err error) {
	for attempt := 1; ; attempt++ {
		if err = f(); err == nil {
			return nil
		}
		if maxAttempts > 0 && attempt >= maxAttempts {
			return err
		}
		if Sleep(ctx, interval) != nil {
			return err
		}
	}
}

// RetryTimeout is like Retry, but also gives up after the input timeout.
func RetryTimeout(ctx context.Context, interval, timeout time.Duration, f func() error) error {
	sctx, scancel := context.WithTimeout(ctx, timeout)
	defer scancel()
	return Retry(sctx, interval, f)
}
