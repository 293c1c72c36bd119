package ingest

import (
	"context"
	"time"
)

type retryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	// retryable reports whether err is worth another attempt. Nil retries everything.
	retryable func(error) bool
	onRetry   func(attempt int, delay time.Duration, err error)
}

// do runs fn until it succeeds, fails with a non-retryable error, or the
// retries are exhausted. The delay doubles after every attempt.
func (p retryPolicy) do(ctx context.Context, fn func(context.Context) error) error {
	maxRetries := p.maxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := p.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || ctx.Err() != nil {
			return err
		}
		if p.retryable != nil && !p.retryable(err) {
			return err
		}
		if p.onRetry != nil {
			p.onRetry(attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
