package pkg

import (
	"context"
	"time"

	"github.com/LerianStudio/lib-commons/v2/commons/log"
)

// RetryExecutor wraps a unit of work with bounded retries for errors its
// classifier marks as retryable. It only schedules attempts; it never
// decides fallback behavior, which belongs to the caller.
type RetryExecutor struct {
	// MaxAttempts is the total number of attempts, first try included.
	// Values below 1 behave as a single attempt.
	MaxAttempts int

	// Backoff computes the delay before each retry.
	Backoff *BackoffPolicy

	// Classify reports whether an error is worth retrying. A nil Classify
	// retries every error.
	Classify func(error) bool

	// OnAttempt, when set, is invoked once per attempt regardless of outcome.
	OnAttempt func()

	// OnRetrySuccess, when set, is invoked when an operation succeeds on a
	// retry (any attempt after the first).
	OnRetrySuccess func()

	Logger log.Logger
}

// Run invokes op until it succeeds, fails non-retryably, exhausts
// MaxAttempts, or ctx is done. The sleep between attempts happens outside
// any lock and is cut short by context cancellation.
func (r *RetryExecutor) Run(ctx context.Context, operationName string, op func() (any, error)) (any, error) {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if r.OnAttempt != nil {
			r.OnAttempt()
		}

		result, err := op()
		if err == nil {
			if attempt > 0 {
				if r.OnRetrySuccess != nil {
					r.OnRetrySuccess()
				}

				r.Logger.Infof("Operation %s succeeded after %d retries", operationName, attempt)
			}

			return result, nil
		}

		if !r.retryable(err) {
			return nil, err
		}

		lastErr = err

		if attempt == attempts-1 {
			break
		}

		delay := r.Backoff.Delay(attempt)
		r.Logger.Warnf("Operation %s failed (attempt %d/%d), retrying in %v: %v",
			operationName, attempt+1, attempts, delay, err)

		if err := sleepContext(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

func (r *RetryExecutor) retryable(err error) bool {
	if r.Classify == nil {
		return true
	}

	return r.Classify(err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
