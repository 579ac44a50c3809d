// Copyright (c) 2026 Lerian Studio. All rights reserved.
// Use of this source code is governed by the Elastic License 2.0
// that can be found in the LICENSE file.

package redis

import (
	"context"
	"fmt"
	"syscall"
	"testing"
	"time"

	libZap "github.com/LerianStudio/lib-commons/v2/commons/zap"
	"github.com/LerianStudio/lib-redis-guard/pkg"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConnRefused = fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED)

// newTestManager builds a manager against the given miniredis with health
// monitoring off and millisecond backoff so retries do not slow the suite.
func newTestManager(t *testing.T, addr string, mutate func(*ConnectionConfig)) *ConnectionManager {
	t.Helper()

	cfg := ConnectionConfig{
		Address:                 addr,
		MaxConnections:          5,
		ConnectTimeout:          time.Second,
		SocketTimeout:           time.Second,
		FailureThreshold:        5,
		RecoveryTimeout:         time.Minute,
		MaxRetryAttempts:        3,
		DisableHealthMonitoring: true,
		Logger:                  libZap.InitializeLogger(),
	}

	if mutate != nil {
		mutate(&cfg)
	}

	m := NewConnectionManager(cfg)
	m.retry.Backoff = &pkg.BackoffPolicy{
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}

	t.Cleanup(func() {
		_ = m.Close()
	})

	return m
}

func TestNewConnectionManager_EstablishesPool(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	m := newTestManager(t, mr.Addr(), nil)

	assert.True(t, m.Healthy())
	assert.Equal(t, pkg.StateClosed, m.CircuitState())

	client, ok := m.GetClient(context.Background())
	require.True(t, ok)
	require.NotNil(t, client)

	assert.Equal(t, int64(1), m.GetStatistics().TotalRequests)
}

func TestExecuteWithFallback_Success(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	m := newTestManager(t, mr.Addr(), nil)

	ctx := context.Background()

	_, err := m.ExecuteWithFallback(ctx, "set_session", func(ctx context.Context, client *goredis.Client) (any, error) {
		return nil, client.Set(ctx, "session:1", "payload", time.Minute).Err()
	}, nil)
	require.NoError(t, err)

	result, err := m.ExecuteWithFallback(ctx, "get_session", func(ctx context.Context, client *goredis.Client) (any, error) {
		return client.Get(ctx, "session:1").Result()
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "payload", result)

	snap := m.GetStatistics()
	assert.Equal(t, int64(2), snap.TotalRequests)
	assert.Equal(t, int64(2), snap.SuccessfulRequests)
	assert.Equal(t, int64(0), snap.FailedRequests)
}

func TestExecuteWithFallback_TransientErrorFallsBack(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	m := newTestManager(t, mr.Addr(), nil)

	result, err := m.ExecuteWithFallback(context.Background(), "get_history", func(ctx context.Context, client *goredis.Client) (any, error) {
		return nil, errConnRefused
	}, func() any {
		return "local-history"
	})

	require.NoError(t, err, "transient failures must never surface when a fallback exists")
	assert.Equal(t, "local-history", result)

	snap := m.GetStatistics()
	assert.Equal(t, int64(1), snap.FailedRequests, "the exhausted operation counts as one failure")
	assert.Equal(t, int64(1), snap.FallbackActivations)
	assert.Equal(t, int64(3), snap.RetryAttempts, "every retry attempt is counted")
	assert.Equal(t, 1, m.breaker.FailureCount())
}

func TestExecuteWithFallback_NoFallbackDegradesToNil(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	m := newTestManager(t, mr.Addr(), nil)

	result, err := m.ExecuteWithFallback(context.Background(), "get_history", func(ctx context.Context, client *goredis.Client) (any, error) {
		return nil, errConnRefused
	}, nil)

	assert.NoError(t, err, "a missing fallback degrades to a no-op, not a crash")
	assert.Nil(t, result)
	assert.Equal(t, int64(0), m.GetStatistics().FallbackActivations)
}

func TestExecuteWithFallback_NonTransientPropagates(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	m := newTestManager(t, mr.Addr(), nil)

	errAuth := serverReply("NOAUTH Authentication required.")

	calls := 0
	fallbackCalled := false

	result, err := m.ExecuteWithFallback(context.Background(), "bad_auth", func(ctx context.Context, client *goredis.Client) (any, error) {
		calls++

		return nil, errAuth
	}, func() any {
		fallbackCalled = true

		return "masked"
	})

	assert.ErrorIs(t, err, errAuth, "configuration errors must fail loudly")
	assert.Nil(t, result)
	assert.Equal(t, 1, calls, "non-transient errors are not retried")
	assert.False(t, fallbackCalled, "non-transient errors are not hidden behind the fallback")
	assert.Equal(t, 0, m.breaker.FailureCount(), "request bugs must not trip the recovery path")
	assert.Equal(t, int64(1), m.GetStatistics().FailedRequests)
}

func TestExecuteWithFallbackNoRetry_SingleAttempt(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	m := newTestManager(t, mr.Addr(), nil)

	calls := 0
	result, err := m.ExecuteWithFallbackNoRetry(context.Background(), "incr_once", func(ctx context.Context, client *goredis.Client) (any, error) {
		calls++

		return nil, errConnRefused
	}, func() any {
		return "fallback"
	})

	require.NoError(t, err)
	assert.Equal(t, "fallback", result)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(0), m.GetStatistics().RetryAttempts, "the no-retry path bypasses the executor")
}

func TestGetClient_FailsFastWhileOpen(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	m := newTestManager(t, mr.Addr(), func(cfg *ConnectionConfig) {
		cfg.FailureThreshold = 2
	})

	m.breaker.RecordFailure("store down")
	m.breaker.RecordFailure("store down")
	require.Equal(t, pkg.StateOpen, m.CircuitState())

	client, ok := m.GetClient(context.Background())

	assert.False(t, ok)
	assert.Nil(t, client)

	snap := m.GetStatistics()
	assert.Equal(t, int64(1), snap.FallbackActivations)
	assert.Equal(t, int64(1), snap.CircuitOpens)
}

func TestExecuteWithFallback_OperationNeverInvokedWhileOpen(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	m := newTestManager(t, mr.Addr(), func(cfg *ConnectionConfig) {
		cfg.FailureThreshold = 2
	})

	m.breaker.RecordFailure("store down")
	m.breaker.RecordFailure("store down")
	require.True(t, m.breaker.IsOpen())

	opCalls := 0
	result, err := m.ExecuteWithFallback(context.Background(), "get_content", func(ctx context.Context, client *goredis.Client) (any, error) {
		opCalls++

		return "from-store", nil
	}, func() any {
		return "from-cache"
	})

	require.NoError(t, err)
	assert.Equal(t, "from-cache", result, "the result must be exactly the fallback's return value")
	assert.Equal(t, 0, opCalls, "no store I/O may happen while the circuit is open")
}

// Scenario: threshold 2, recovery 1s. Two failures open the circuit; after
// the recovery timeout the next access attempt gets a half-open trial, and a
// success closes the circuit and clears the failure count.
func TestCircuitRecoveryLifecycle(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	m := newTestManager(t, mr.Addr(), func(cfg *ConnectionConfig) {
		cfg.FailureThreshold = 2
		cfg.RecoveryTimeout = time.Second
		cfg.MaxRetryAttempts = 1
	})

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := m.ExecuteWithFallback(ctx, "flaky_op", func(ctx context.Context, client *goredis.Client) (any, error) {
			return nil, errConnRefused
		}, nil)
		require.NoError(t, err)
	}

	require.Equal(t, pkg.StateOpen, m.CircuitState())

	time.Sleep(1100 * time.Millisecond)

	client, ok := m.GetClient(ctx)
	require.True(t, ok, "after the recovery timeout the access attempt gets a trial client")
	require.NotNil(t, client)
	assert.Equal(t, pkg.StateHalfOpen, m.CircuitState())

	result, err := m.ExecuteWithFallback(ctx, "trial_op", func(ctx context.Context, client *goredis.Client) (any, error) {
		return client.Ping(ctx).Result()
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "PONG", result)

	assert.Equal(t, pkg.StateClosed, m.CircuitState())
	assert.Equal(t, 0, m.breaker.FailureCount())

	snap := m.GetStatistics()
	assert.Equal(t, int64(1), snap.CircuitOpens)
	assert.Equal(t, int64(1), snap.CircuitCloses)
}

// Scenario: an operation that throws a transient error twice and then
// succeeds is transparently retried to success.
func TestRetryLifecycle(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	m := newTestManager(t, mr.Addr(), nil)

	calls := 0
	result, err := m.ExecuteWithFallback(context.Background(), "flaky_set", func(ctx context.Context, client *goredis.Client) (any, error) {
		calls++
		if calls <= 2 {
			return nil, errConnRefused
		}

		return "stored", nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "stored", result)

	snap := m.GetStatistics()
	assert.Equal(t, int64(3), snap.RetryAttempts)
	assert.Equal(t, int64(1), snap.RetrySuccesses)
	assert.Equal(t, int64(1), snap.SuccessfulRequests)
}

// Scenario: the store is entirely unreachable, so the pool cannot even be
// built. Callers still get their fallback value and nothing crashes.
func TestFallbackWhenPoolCannotBeBuilt(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	m := newTestManager(t, addr, func(cfg *ConnectionConfig) {
		cfg.ConnectTimeout = 200 * time.Millisecond
		cfg.SocketTimeout = 200 * time.Millisecond
	})

	assert.False(t, m.Healthy())

	result, err := m.ExecuteWithFallback(context.Background(), "get_content", func(ctx context.Context, client *goredis.Client) (any, error) {
		return client.Get(ctx, "content").Result()
	}, func() any {
		return "cached"
	})

	require.NoError(t, err)
	assert.Equal(t, "cached", result)
	assert.Equal(t, int64(1), m.GetStatistics().FallbackActivations)
}

func TestStatisticsAccuracy(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	m := newTestManager(t, mr.Addr(), func(cfg *ConnectionConfig) {
		cfg.MaxRetryAttempts = 1
	})

	ctx := context.Background()

	const successes, failures = 3, 2

	for i := 0; i < successes; i++ {
		_, err := m.ExecuteWithFallback(ctx, "ping", func(ctx context.Context, client *goredis.Client) (any, error) {
			return client.Ping(ctx).Result()
		}, nil)
		require.NoError(t, err)
	}

	for i := 0; i < failures; i++ {
		_, err := m.ExecuteWithFallback(ctx, "dead_op", func(ctx context.Context, client *goredis.Client) (any, error) {
			return nil, errConnRefused
		}, nil)
		require.NoError(t, err)
	}

	snap := m.GetStatistics()
	assert.Equal(t, int64(successes+failures), snap.TotalRequests)
	assert.Equal(t, int64(successes), snap.SuccessfulRequests)
	assert.Equal(t, int64(failures), snap.FailedRequests)
	assert.InDelta(t, 60.0, snap.SuccessRate, 0.01)
	assert.Equal(t, int64(0), snap.FallbackActivations)
	assert.NotEmpty(t, snap.LastError)
}

func TestGetStatistics_EmptyManagerReportsFullSuccessRate(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	m := newTestManager(t, mr.Addr(), nil)

	snap := m.GetStatistics()

	assert.Equal(t, int64(0), snap.TotalRequests)
	assert.InDelta(t, 100.0, snap.SuccessRate, 0.01)
	assert.Equal(t, "closed", snap.CircuitState)
	assert.Equal(t, 5, snap.Pool.MaxConnections)
	assert.False(t, snap.HealthMonitor.Enabled)
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	m := newTestManager(t, mr.Addr(), nil)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close(), "closing twice must not raise")

	assert.False(t, m.Healthy())

	client, ok := m.GetClient(context.Background())
	assert.False(t, ok)
	assert.Nil(t, client, "a closed manager hands out no clients")
}

func TestResetCircuit_ForcesClosedAndReinitializes(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	m := newTestManager(t, mr.Addr(), func(cfg *ConnectionConfig) {
		cfg.FailureThreshold = 1
		cfg.RecoveryTimeout = time.Hour
	})

	m.breaker.RecordFailure("store down")
	require.True(t, m.breaker.IsOpen())

	m.ResetCircuit()

	assert.Equal(t, pkg.StateClosed, m.CircuitState())
	assert.Equal(t, 0, m.breaker.FailureCount())
	assert.True(t, m.Healthy())

	_, err := m.ExecuteWithFallback(context.Background(), "ping", func(ctx context.Context, client *goredis.Client) (any, error) {
		return client.Ping(ctx).Result()
	}, nil)
	assert.NoError(t, err)
}

func TestGuarded_TypedResults(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	m := newTestManager(t, mr.Addr(), nil)

	ctx := context.Background()
	require.NoError(t, mr.Set("greeting", "hello"))

	value, err := Guarded(ctx, m, "get_greeting", func(ctx context.Context, client *goredis.Client) (string, error) {
		return client.Get(ctx, "greeting").Result()
	}, func() string {
		return "fallback-greeting"
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", value)

	m.breaker.RecordFailure("down")
	m.breaker.RecordFailure("down")
	m.breaker.RecordFailure("down")
	m.breaker.RecordFailure("down")
	m.breaker.RecordFailure("down")
	require.True(t, m.breaker.IsOpen())

	value, err = Guarded(ctx, m, "get_greeting", func(ctx context.Context, client *goredis.Client) (string, error) {
		return client.Get(ctx, "greeting").Result()
	}, func() string {
		return "fallback-greeting"
	})
	require.NoError(t, err)
	assert.Equal(t, "fallback-greeting", value)

	missing, err := Guarded[string](ctx, m, "no_fallback", func(ctx context.Context, client *goredis.Client) (string, error) {
		return client.Get(ctx, "greeting").Result()
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, missing, "an absent result degrades to the zero value")
}

func TestExecuteWithFallback_ConcurrentCallers(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	m := newTestManager(t, mr.Addr(), nil)

	const callers = 20

	ctx := context.Background()
	done := make(chan error, callers)

	for i := 0; i < callers; i++ {
		go func(n int) {
			_, err := m.ExecuteWithFallback(ctx, "concurrent_set", func(ctx context.Context, client *goredis.Client) (any, error) {
				key := fmt.Sprintf("key:%d", n)

				return nil, client.Set(ctx, key, "value", 0).Err()
			}, nil)
			done <- err
		}(i)
	}

	for i := 0; i < callers; i++ {
		assert.NoError(t, <-done)
	}

	snap := m.GetStatistics()
	assert.Equal(t, int64(callers), snap.TotalRequests)
	assert.Equal(t, int64(callers), snap.SuccessfulRequests)
}

func TestConnectionConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := ConnectionConfig{Address: "localhost:6379"}.withDefaults()

	assert.Equal(t, 50, cfg.MaxConnections)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 5*time.Second, cfg.SocketTimeout)
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.RecoveryTimeout)
	assert.Equal(t, 3, cfg.MaxRetryAttempts)
	assert.Equal(t, 30*time.Second, cfg.HealthCheckInterval)
	assert.False(t, cfg.DisableHealthMonitoring)
	assert.NotNil(t, cfg.Logger)
}

func TestIsTransientError_ClientAgainstDeadStore(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	m := newTestManager(t, mr.Addr(), nil)

	client, ok := m.GetClient(context.Background())
	require.True(t, ok)

	mr.Close()

	err := client.Ping(context.Background()).Err()
	require.Error(t, err)
	assert.True(t, IsTransientError(err), "a dead store must classify as transient: %v", err)
}
