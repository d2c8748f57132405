package poller

import (
	"context"
	"time"

	"diagnosys-poller/internal/errors"
)

// Retry executes fn with retries, backoff, and cancellation support.
//
// fn must return nil on success. Only retryable kinds (transport, remote,
// parse) are tried again; anything else is returned immediately. Retry
// returns the number of attempts made alongside the last error.
func Retry(
	ctx context.Context,
	policy RetryPolicy,
	fn func() error,
) (int, error) {

	var attempt int
	var backoff = policy.BaseBackoff

	for {
		err := fn()
		attempt++
		if err == nil {
			return attempt, nil
		}

		if attempt > policy.MaxRetries || !errors.IsRetryable(err) || ctx.Err() != nil {
			return attempt, err
		}

		delay := backoff
		if policy.JitterFn != nil {
			delay += policy.JitterFn(backoff)
		}
		if policy.MaxBackoff > 0 && delay > policy.MaxBackoff {
			delay = policy.MaxBackoff
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
			backoff *= 2
		case <-ctx.Done():
			timer.Stop()
			return attempt, err
		}
	}
}
