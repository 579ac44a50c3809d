// Copyright (c) 2026 Lerian Studio. All rights reserved.
// Use of this source code is governed by the Elastic License 2.0
// that can be found in the LICENSE file.

package redis

import (
	"sync"
	"sync/atomic"
	"time"
)

// Statistics tracks the manager's monotonically growing counters. The hot
// path is plain atomic increments, so no lock is ever taken while counting.
type Statistics struct {
	totalRequests       atomic.Int64
	successfulRequests  atomic.Int64
	failedRequests      atomic.Int64
	circuitOpens        atomic.Int64
	circuitCloses       atomic.Int64
	fallbackActivations atomic.Int64
	retryAttempts       atomic.Int64
	retrySuccesses      atomic.Int64
	healthChecks        atomic.Int64

	mu        sync.Mutex
	lastError string
}

func (s *Statistics) setLastError(message string) {
	s.mu.Lock()
	s.lastError = message
	s.mu.Unlock()
}

func (s *Statistics) lastErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastError
}

// PoolSnapshot describes the connection pool occupancy at snapshot time.
type PoolSnapshot struct {
	MaxConnections int    `json:"maxConnections"`
	TotalConns     uint32 `json:"totalConns"`
	IdleConns      uint32 `json:"idleConns"`
	StaleConns     uint32 `json:"staleConns"`
	Hits           uint32 `json:"hits"`
	Misses         uint32 `json:"misses"`
	Timeouts       uint32 `json:"timeouts"`
}

// HealthMonitorSnapshot describes the background monitor at snapshot time.
type HealthMonitorSnapshot struct {
	Enabled              bool          `json:"enabled"`
	Interval             time.Duration `json:"interval"`
	ProbeSamples         int           `json:"probeSamples"`
	AverageProbeTime     time.Duration `json:"averageProbeTime"`
	ConsecutiveSuccesses int64         `json:"consecutiveSuccesses"`
	ConsecutiveFailures  int64         `json:"consecutiveFailures"`
}

// StatsSnapshot is the structure returned by GetStatistics.
type StatsSnapshot struct {
	TotalRequests       int64   `json:"totalRequests"`
	SuccessfulRequests  int64   `json:"successfulRequests"`
	FailedRequests      int64   `json:"failedRequests"`
	SuccessRate         float64 `json:"successRate"`
	CircuitOpens        int64   `json:"circuitOpens"`
	CircuitCloses       int64   `json:"circuitCloses"`
	FallbackActivations int64   `json:"fallbackActivations"`
	RetryAttempts       int64   `json:"retryAttempts"`
	RetrySuccesses      int64   `json:"retrySuccesses"`
	RetrySuccessRate    float64 `json:"retrySuccessRate"`
	HealthChecks        int64   `json:"healthChecks"`
	LastError           string  `json:"lastError,omitempty"`

	CircuitState  string                `json:"circuitState"`
	FailureCount  int                   `json:"failureCount"`
	Pool          PoolSnapshot          `json:"pool"`
	HealthMonitor HealthMonitorSnapshot `json:"healthMonitor"`
}

// snapshotCounters copies the counters into a snapshot. Rates are defined as
// 100% when the corresponding denominator is zero.
func (s *Statistics) snapshotCounters() StatsSnapshot {
	total := s.totalRequests.Load()
	successful := s.successfulRequests.Load()
	attempts := s.retryAttempts.Load()
	retrySuccesses := s.retrySuccesses.Load()

	successRate := 100.0
	if total > 0 {
		successRate = float64(successful) / float64(total) * 100
	}

	retrySuccessRate := 100.0
	if attempts > 0 {
		retrySuccessRate = float64(retrySuccesses) / float64(attempts) * 100
	}

	return StatsSnapshot{
		TotalRequests:       total,
		SuccessfulRequests:  successful,
		FailedRequests:      s.failedRequests.Load(),
		SuccessRate:         successRate,
		CircuitOpens:        s.circuitOpens.Load(),
		CircuitCloses:       s.circuitCloses.Load(),
		FallbackActivations: s.fallbackActivations.Load(),
		RetryAttempts:       attempts,
		RetrySuccesses:      retrySuccesses,
		RetrySuccessRate:    retrySuccessRate,
		HealthChecks:        s.healthChecks.Load(),
		LastError:           s.lastErrorMessage(),
	}
}
