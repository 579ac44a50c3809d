// Copyright (c) 2026 Lerian Studio. All rights reserved.
// Use of this source code is governed by the Elastic License 2.0
// that can be found in the LICENSE file.

// Package redis brokers all access to a Redis backing store on behalf of
// higher-level caches and session stores. It keeps callers correct and
// responsive when the store is slow, unreachable, or flapping: operations
// run through a circuit breaker and a bounded retry executor, and callers
// supply fallbacks that run against local in-process state when the store
// is degraded.
package redis

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	libCommons "github.com/LerianStudio/lib-commons/v2/commons"
	"github.com/LerianStudio/lib-commons/v2/commons/log"
	libOpentelemetry "github.com/LerianStudio/lib-commons/v2/commons/opentelemetry"
	libZap "github.com/LerianStudio/lib-commons/v2/commons/zap"
	"github.com/LerianStudio/lib-redis-guard/pkg"
	"github.com/LerianStudio/lib-redis-guard/pkg/constant"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

// ConnectionConfig holds the manager's immutable configuration. Every field
// is independently defaultable; the zero value plus an Address is usable.
type ConnectionConfig struct {
	// Address is the host:port of the backing store.
	Address string

	Password string
	DB       int

	// MaxConnections bounds the connection pool. Default 50.
	MaxConnections int

	// ConnectTimeout bounds dialing. Default 5s.
	ConnectTimeout time.Duration

	// SocketTimeout bounds individual reads and writes. Default 5s.
	SocketTimeout time.Duration

	// FailureThreshold is the failure count that opens the circuit. Default 5.
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before a half-open
	// trial is allowed. Default 60s.
	RecoveryTimeout time.Duration

	// MaxRetryAttempts is the total number of attempts per operation,
	// first try included. Default 3.
	MaxRetryAttempts int

	// HealthCheckInterval is the period between background probes. Default 30s.
	HealthCheckInterval time.Duration

	// DisableHealthMonitoring turns the background health monitor off.
	// Monitoring is enabled by default.
	DisableHealthMonitoring bool

	Logger log.Logger
}

func (c ConnectionConfig) withDefaults() ConnectionConfig {
	if c.MaxConnections <= 0 {
		c.MaxConnections = constant.DefaultMaxConnections
	}

	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = constant.DefaultConnectTimeout
	}

	if c.SocketTimeout <= 0 {
		c.SocketTimeout = constant.DefaultSocketTimeout
	}

	if c.FailureThreshold <= 0 {
		c.FailureThreshold = constant.DefaultFailureThreshold
	}

	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = constant.DefaultRecoveryTimeout
	}

	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = constant.DefaultMaxRetryAttempts
	}

	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = constant.DefaultHealthCheckInterval
	}

	if c.Logger == nil {
		c.Logger = libZap.InitializeLogger()
	}

	return c
}

// Operation is a unit of work executed against the live client.
type Operation func(ctx context.Context, client *goredis.Client) (any, error)

// Fallback produces a degraded, in-process result when the store is
// unavailable. It must not perform store I/O.
type Fallback func() any

// HealthStatus is the structured result of a liveness probe.
type HealthStatus struct {
	Healthy      bool          `json:"healthy"`
	CircuitState string        `json:"circuitState"`
	FailureCount int           `json:"failureCount"`
	ResponseTime time.Duration `json:"responseTime"`
	Error        string        `json:"error,omitempty"`
	CheckedAt    time.Time     `json:"checkedAt"`
}

// ConnectionManager composes the circuit breaker, retry executor, pooled
// client handle and health monitor behind a single façade. It is the only
// type callers depend on; construct one per logical store target.
//
// Circuit state lives in the breaker under its own mutex, counters are
// atomic, and the manager mutex guards only the pool pointer. No lock is
// ever held across store I/O, so a slow store never stalls unrelated
// callers' circuit-state reads.
type ConnectionManager struct {
	config  ConnectionConfig
	logger  log.Logger
	breaker *pkg.CircuitBreaker
	retry   *pkg.RetryExecutor
	stats   *Statistics
	health  *HealthMetrics
	monitor *HealthMonitor

	mu     sync.Mutex
	client *goredis.Client

	healthy atomic.Bool
	closed  atomic.Bool
}

// NewConnectionManager builds the manager, eagerly opens the connection pool
// and, unless disabled, starts the health monitor. A pool that cannot be
// established is recorded as a failure and leaves the manager degraded
// rather than failing construction: the store may simply not be up yet, and
// callers keep working through their fallbacks until it is.
func NewConnectionManager(cfg ConnectionConfig) *ConnectionManager {
	cfg = cfg.withDefaults()

	m := &ConnectionManager{
		config: cfg,
		logger: cfg.Logger,
		stats:  &Statistics{},
		health: newHealthMetrics(),
	}

	m.breaker = pkg.NewCircuitBreaker(pkg.CircuitBreakerSettings{
		Name:             fmt.Sprintf("%s-%s", constant.ApplicationName, cfg.Address),
		FailureThreshold: cfg.FailureThreshold,
		RecoveryTimeout:  cfg.RecoveryTimeout,
		OnStateChange:    m.onCircuitStateChange,
		Logger:           cfg.Logger,
	})

	m.retry = &pkg.RetryExecutor{
		MaxAttempts:    cfg.MaxRetryAttempts,
		Backoff:        pkg.NewBackoffPolicy(),
		Classify:       IsTransientError,
		OnAttempt:      func() { m.stats.retryAttempts.Add(1) },
		OnRetrySuccess: func() { m.stats.retrySuccesses.Add(1) },
		Logger:         cfg.Logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	if _, err := m.initializePool(ctx); err != nil {
		m.recordFailure(err)
		m.logger.Errorf("Redis connection manager for %s starting degraded: %v", cfg.Address, err)
	}

	if !cfg.DisableHealthMonitoring {
		m.monitor = NewHealthMonitor(m, cfg.HealthCheckInterval, cfg.Logger)
		m.monitor.Start()
	}

	return m
}

func (m *ConnectionManager) onCircuitStateChange(_, to pkg.CircuitState) {
	switch to {
	case pkg.StateOpen:
		m.stats.circuitOpens.Add(1)
		m.healthy.Store(false)
	case pkg.StateClosed:
		m.stats.circuitCloses.Add(1)
	case pkg.StateHalfOpen:
	}
}

// initializePool builds a bounded go-redis client and performs one liveness
// probe. It is idempotent: when a pool already exists it is returned as-is.
// The manager mutex is only held to read or swap the pool pointer, never
// across the dial or the probe.
func (m *ConnectionManager) initializePool(ctx context.Context) (*goredis.Client, error) {
	m.mu.Lock()
	if m.client != nil {
		client := m.client
		m.mu.Unlock()

		return client, nil
	}
	m.mu.Unlock()

	client := goredis.NewClient(&goredis.Options{
		Addr:         m.config.Address,
		Password:     m.config.Password,
		DB:           m.config.DB,
		PoolSize:     m.config.MaxConnections,
		DialTimeout:  m.config.ConnectTimeout,
		ReadTimeout:  m.config.SocketTimeout,
		WriteTimeout: m.config.SocketTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, InitializationError{Address: m.config.Address, Err: err}
	}

	m.mu.Lock()
	if m.client != nil {
		existing := m.client
		m.mu.Unlock()
		_ = client.Close()

		return existing, nil
	}

	m.client = client
	m.mu.Unlock()

	m.healthy.Store(true)
	m.logger.Infof("Redis pool established at %s (pool size %d)", m.config.Address, m.config.MaxConnections)

	return client, nil
}

func (m *ConnectionManager) currentClient() *goredis.Client {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.client
}

// GetClient returns the live client, lazily re-initializing the pool when it
// is unset. While the circuit is open it first attempts a half-open reset;
// if the circuit stays open it fails fast with no network I/O, counting a
// fallback activation, and returns false.
func (m *ConnectionManager) GetClient(ctx context.Context) (*goredis.Client, bool) {
	m.stats.totalRequests.Add(1)

	if m.closed.Load() {
		m.stats.fallbackActivations.Add(1)

		return nil, false
	}

	if m.breaker.IsOpen() {
		m.breaker.AttemptReset()

		if m.breaker.IsOpen() {
			m.stats.fallbackActivations.Add(1)

			return nil, false
		}
	}

	if client := m.currentClient(); client != nil {
		return client, true
	}

	client, err := m.initializePool(ctx)
	if err != nil {
		m.recordFailure(err)
		m.stats.fallbackActivations.Add(1)

		return nil, false
	}

	return client, true
}

// ExecuteWithFallback runs op against the store through the retry executor.
// When the store is unavailable - circuit open, pool down, or op failing
// with a transient error after retries - the fallback's result is returned
// instead and no error surfaces to the caller. Non-transient errors
// (authentication, malformed requests) propagate unchanged so bugs are not
// masked. A nil fallback degrades a transient failure to a nil result.
func (m *ConnectionManager) ExecuteWithFallback(ctx context.Context, operationName string, op Operation, fallback Fallback) (any, error) {
	return m.execute(ctx, operationName, op, fallback, true)
}

// ExecuteWithFallbackNoRetry behaves like ExecuteWithFallback but invokes op
// at most once. Intended for operations that are not idempotent.
func (m *ConnectionManager) ExecuteWithFallbackNoRetry(ctx context.Context, operationName string, op Operation, fallback Fallback) (any, error) {
	return m.execute(ctx, operationName, op, fallback, false)
}

func (m *ConnectionManager) execute(ctx context.Context, operationName string, op Operation, fallback Fallback, useRetry bool) (any, error) {
	_, tracer, _, _ := libCommons.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "connection_manager.execute")
	defer span.End()

	span.SetAttributes(
		attribute.String("app.request.operation", operationName),
		attribute.Bool("app.request.retry", useRetry),
	)

	client, ok := m.GetClient(ctx)
	if !ok {
		if fallback != nil {
			return fallback(), nil
		}

		return nil, nil
	}

	run := func() (any, error) {
		return op(ctx, client)
	}

	var (
		result any
		err    error
	)

	if useRetry {
		result, err = m.retry.Run(ctx, operationName, run)
	} else {
		result, err = run()
	}

	if err == nil {
		m.recordSuccess()
		m.health.MarkSuccess()

		return result, nil
	}

	libOpentelemetry.HandleSpanError(&span, "Operation against redis failed", err)

	if IsTransientError(err) {
		m.recordFailure(err)
		m.health.MarkFailure()

		if fallback != nil {
			m.stats.fallbackActivations.Add(1)
			m.logger.Warnf("Operation %s degraded to fallback: %v", operationName, err)

			return fallback(), nil
		}

		return nil, nil
	}

	// Non-transient: the request was wrong, not the store. Counted for
	// observability but kept out of the breaker's recovery path.
	m.stats.failedRequests.Add(1)
	m.stats.setLastError(err.Error())

	return nil, err
}

// HealthCheck performs a synchronous liveness probe, independent of
// ExecuteWithFallback. It counts as an access attempt for the open to
// half-open gate, records the probe's wall-clock duration into the rolling
// window and feeds the result back into the circuit breaker.
func (m *ConnectionManager) HealthCheck(ctx context.Context) HealthStatus {
	_, tracer, _, _ := libCommons.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "connection_manager.health_check")
	defer span.End()

	m.stats.healthChecks.Add(1)

	if m.breaker.IsOpen() && m.breaker.ShouldAttemptReset() {
		m.breaker.AttemptReset()
	}

	start := time.Now()

	client := m.currentClient()
	if client == nil {
		var err error

		client, err = m.initializePool(ctx)
		if err != nil {
			m.health.RecordProbe(time.Since(start), false)
			m.breaker.RecordFailure(err.Error())
			m.stats.setLastError(err.Error())
			m.healthy.Store(false)

			libOpentelemetry.HandleSpanError(&span, "Health probe failed to initialize pool", err)

			return m.healthStatus(false, time.Since(start), err)
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, m.config.SocketTimeout)
	defer cancel()

	err := client.Ping(pingCtx).Err()
	elapsed := time.Since(start)

	m.health.RecordProbe(elapsed, err == nil)

	if err != nil {
		m.breaker.RecordFailure(err.Error())
		m.stats.setLastError(err.Error())
		m.healthy.Store(false)

		libOpentelemetry.HandleSpanError(&span, "Health probe failed", err)

		return m.healthStatus(false, elapsed, err)
	}

	m.breaker.RecordSuccess()
	m.healthy.Store(true)

	return m.healthStatus(true, elapsed, nil)
}

func (m *ConnectionManager) healthStatus(healthy bool, elapsed time.Duration, err error) HealthStatus {
	status := HealthStatus{
		Healthy:      healthy,
		CircuitState: m.breaker.State().String(),
		FailureCount: m.breaker.FailureCount(),
		ResponseTime: elapsed,
		CheckedAt:    time.Now(),
	}

	if err != nil {
		status.Error = err.Error()
	}

	return status
}

// GetStatistics returns a snapshot of the manager's counters, circuit state,
// pool occupancy and health-monitor metadata.
func (m *ConnectionManager) GetStatistics() StatsSnapshot {
	snap := m.stats.snapshotCounters()
	snap.CircuitState = m.breaker.State().String()
	snap.FailureCount = m.breaker.FailureCount()

	snap.Pool = PoolSnapshot{MaxConnections: m.config.MaxConnections}
	if client := m.currentClient(); client != nil {
		ps := client.PoolStats()
		snap.Pool.TotalConns = ps.TotalConns
		snap.Pool.IdleConns = ps.IdleConns
		snap.Pool.StaleConns = ps.StaleConns
		snap.Pool.Hits = ps.Hits
		snap.Pool.Misses = ps.Misses
		snap.Pool.Timeouts = ps.Timeouts
	}

	health := m.health.Snapshot()
	snap.HealthMonitor = HealthMonitorSnapshot{
		Enabled:              m.monitor != nil,
		Interval:             m.config.HealthCheckInterval,
		ProbeSamples:         health.ProbeSamples,
		AverageProbeTime:     health.AverageProbeTime,
		ConsecutiveSuccesses: health.ConsecutiveSuccesses,
		ConsecutiveFailures:  health.ConsecutiveFailures,
	}

	return snap
}

// CircuitState returns the breaker's current state.
func (m *ConnectionManager) CircuitState() pkg.CircuitState {
	return m.breaker.State()
}

// Healthy reports whether the last contact with the store succeeded.
func (m *ConnectionManager) Healthy() bool {
	return m.healthy.Load()
}

// ResetCircuit is the operator override: it forces the circuit closed and
// eagerly re-establishes the pool, replacing a pool whose probe fails.
func (m *ConnectionManager) ResetCircuit() {
	m.breaker.ManualReset()

	ctx, cancel := context.WithTimeout(context.Background(), m.config.ConnectTimeout)
	defer cancel()

	if client := m.currentClient(); client != nil {
		if err := client.Ping(ctx).Err(); err == nil {
			m.healthy.Store(true)

			return
		}

		m.mu.Lock()
		if m.client == client {
			m.client = nil
		}
		m.mu.Unlock()

		_ = client.Close()
	}

	if _, err := m.initializePool(ctx); err != nil {
		m.logger.Warnf("Circuit reset: pool re-initialization failed: %v", err)
	}
}

// Close stops the health monitor with a bounded wait, releases the pool and
// marks the manager unhealthy. It is idempotent.
func (m *ConnectionManager) Close() error {
	if m.closed.Swap(true) {
		return nil
	}

	if m.monitor != nil {
		m.monitor.Stop()
	}

	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()

	m.healthy.Store(false)

	if client != nil {
		if err := client.Close(); err != nil {
			return err
		}
	}

	m.logger.Infof("Redis connection manager for %s closed", m.config.Address)

	return nil
}

func (m *ConnectionManager) recordSuccess() {
	m.stats.successfulRequests.Add(1)
	m.breaker.RecordSuccess()
}

func (m *ConnectionManager) recordFailure(err error) {
	message := err.Error()

	m.stats.failedRequests.Add(1)
	m.stats.setLastError(message)
	m.breaker.RecordFailure(message)
}
