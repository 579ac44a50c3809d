package pkg

import (
	"context"
	"errors"
	"testing"
	"time"

	libZap "github.com/LerianStudio/lib-commons/v2/commons/zap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("connection refused")

func newTestExecutor(maxAttempts int) (*RetryExecutor, *int, *int) {
	attempts := 0
	retrySuccesses := 0

	executor := &RetryExecutor{
		MaxAttempts: maxAttempts,
		Backoff: &BackoffPolicy{
			BaseDelay:  time.Millisecond,
			MaxDelay:   5 * time.Millisecond,
			Multiplier: 2.0,
		},
		Classify:       func(err error) bool { return errors.Is(err, errTransient) },
		OnAttempt:      func() { attempts++ },
		OnRetrySuccess: func() { retrySuccesses++ },
		Logger:         libZap.InitializeLogger(),
	}

	return executor, &attempts, &retrySuccesses
}

func TestRetryExecutor_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	executor, attempts, retrySuccesses := newTestExecutor(3)

	calls := 0
	result, err := executor.Run(context.Background(), "flaky-op", func() (any, error) {
		calls++
		if calls <= 2 {
			return nil, errTransient
		}

		return "recovered", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, 3, *attempts, "every attempt must be counted")
	assert.Equal(t, 1, *retrySuccesses)
}

func TestRetryExecutor_SuccessOnFirstAttempt(t *testing.T) {
	t.Parallel()

	executor, attempts, retrySuccesses := newTestExecutor(3)

	result, err := executor.Run(context.Background(), "healthy-op", func() (any, error) {
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 1, *attempts)
	assert.Equal(t, 0, *retrySuccesses, "a first-attempt success is not a retry success")
}

func TestRetryExecutor_NonRetryableFailsImmediately(t *testing.T) {
	t.Parallel()

	executor, attempts, _ := newTestExecutor(3)

	errBadRequest := errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

	calls := 0
	result, err := executor.Run(context.Background(), "bad-op", func() (any, error) {
		calls++

		return nil, errBadRequest
	})

	assert.ErrorIs(t, err, errBadRequest)
	assert.Nil(t, result)
	assert.Equal(t, 1, calls, "non-retryable errors must not consume further attempts")
	assert.Equal(t, 1, *attempts)
}

func TestRetryExecutor_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	executor, attempts, retrySuccesses := newTestExecutor(3)

	calls := 0
	result, err := executor.Run(context.Background(), "dead-op", func() (any, error) {
		calls++

		return nil, errTransient
	})

	assert.ErrorIs(t, err, errTransient, "the last transient error surfaces to the caller")
	assert.Nil(t, result)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, *attempts)
	assert.Equal(t, 0, *retrySuccesses)
}

func TestRetryExecutor_ContextCancelsBackoffSleep(t *testing.T) {
	t.Parallel()

	executor, _, _ := newTestExecutor(3)
	executor.Backoff = &BackoffPolicy{
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := executor.Run(ctx, "canceled-op", func() (any, error) {
		return nil, errTransient
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 150*time.Millisecond, "cancellation must cut the backoff sleep short")
}

func TestRetryExecutor_ZeroMaxAttemptsRunsOnce(t *testing.T) {
	t.Parallel()

	executor, attempts, _ := newTestExecutor(0)

	calls := 0
	_, err := executor.Run(context.Background(), "single-op", func() (any, error) {
		calls++

		return nil, errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, *attempts)
}
