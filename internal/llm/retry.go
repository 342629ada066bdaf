package llm

import (
	"context"
	"errors"
	"time"
)

// RetryProvider retries transient failures. Attempts are bounded: the
// factory never configures more than one retry.
type RetryProvider struct {
	inner       Provider
	maxAttempts int
	wait        time.Duration
}

func WithRetry(p Provider, maxAttempts int, wait time.Duration) Provider {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryProvider{inner: p, maxAttempts: maxAttempts, wait: wait}
}

func (r *RetryProvider) ModelID() string { return r.inner.ModelID() }

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			wait := r.wait
			var rl *ErrRateLimit
			if errors.As(lastErr, &rl) && rl.RetryAfter > 0 {
				wait = rl.RetryAfter
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		resp, err := r.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rl *ErrRateLimit
	var unavail *ErrProviderUnavailable
	var empty *ErrEmptyResponse
	return errors.As(err, &rl) || errors.As(err, &unavail) || errors.As(err, &empty)
}
