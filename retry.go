package main

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy bounds how hard a single resource is tried.
type RetryPolicy struct {
	Attempts int           // total attempts, at least 1
	Backoff  time.Duration // fixed wait between attempts
	Timeout  time.Duration // per-attempt deadline, 0 disables it
}

// retry calls fn until it succeeds or the policy is exhausted. Each call
// gets its own timeout context. The returned error joins every attempt's
// failure so the log shows the whole story.
func retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var errs []error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := runAttempt(ctx, p.Timeout, attempt, fn)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("attempt %d: %w", attempt, err))

		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if attempt < attempts && p.Backoff > 0 {
			t := time.NewTimer(p.Backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				errs = append(errs, ctx.Err())
				return errors.Join(errs...)
			case <-t.C:
			}
		}
	}
	return errors.Join(errs...)
}

func runAttempt(ctx context.Context, timeout time.Duration, attempt int, fn func(ctx context.Context, attempt int) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx, attempt)
}
