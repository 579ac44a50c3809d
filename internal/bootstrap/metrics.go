// Copyright (c) 2026 Lerian Studio. All rights reserved.
// Use of this source code is governed by the Elastic License 2.0
// that can be found in the LICENSE file.

package bootstrap

import (
	"github.com/LerianStudio/lib-redis-guard/pkg"
	"github.com/LerianStudio/lib-redis-guard/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
)

// statsCollector translates the manager's statistics snapshot into
// Prometheus metrics on scrape, so the counters have a single source of
// truth inside the manager.
type statsCollector struct {
	manager *redis.ConnectionManager

	requestsTotal       *prometheus.Desc
	requestsSuccessful  *prometheus.Desc
	requestsFailed      *prometheus.Desc
	circuitOpens        *prometheus.Desc
	circuitCloses       *prometheus.Desc
	circuitState        *prometheus.Desc
	failureCount        *prometheus.Desc
	fallbackActivations *prometheus.Desc
	retryAttempts       *prometheus.Desc
	retrySuccesses      *prometheus.Desc
	healthChecks        *prometheus.Desc
	poolTotalConns      *prometheus.Desc
	poolIdleConns       *prometheus.Desc
}

func newStatsCollector(manager *redis.ConnectionManager) *statsCollector {
	return &statsCollector{
		manager: manager,
		requestsTotal: prometheus.NewDesc(
			"redis_guard_requests_total", "Total requests brokered by the connection manager.", nil, nil),
		requestsSuccessful: prometheus.NewDesc(
			"redis_guard_requests_successful_total", "Requests that completed against the store.", nil, nil),
		requestsFailed: prometheus.NewDesc(
			"redis_guard_requests_failed_total", "Requests that failed against the store.", nil, nil),
		circuitOpens: prometheus.NewDesc(
			"redis_guard_circuit_opens_total", "Times the circuit breaker opened.", nil, nil),
		circuitCloses: prometheus.NewDesc(
			"redis_guard_circuit_closes_total", "Times the circuit breaker closed.", nil, nil),
		circuitState: prometheus.NewDesc(
			"redis_guard_circuit_state", "Circuit state: 0 closed, 1 open, 2 half-open.", nil, nil),
		failureCount: prometheus.NewDesc(
			"redis_guard_circuit_failure_count", "Failures accumulated toward the circuit threshold.", nil, nil),
		fallbackActivations: prometheus.NewDesc(
			"redis_guard_fallback_activations_total", "Times a caller was degraded to its fallback.", nil, nil),
		retryAttempts: prometheus.NewDesc(
			"redis_guard_retry_attempts_total", "Operation attempts made by the retry executor.", nil, nil),
		retrySuccesses: prometheus.NewDesc(
			"redis_guard_retry_successes_total", "Operations that succeeded on a retry.", nil, nil),
		healthChecks: prometheus.NewDesc(
			"redis_guard_health_checks_total", "Liveness probes performed.", nil, nil),
		poolTotalConns: prometheus.NewDesc(
			"redis_guard_pool_total_connections", "Connections currently in the pool.", nil, nil),
		poolIdleConns: prometheus.NewDesc(
			"redis_guard_pool_idle_connections", "Idle connections currently in the pool.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requestsTotal
	ch <- c.requestsSuccessful
	ch <- c.requestsFailed
	ch <- c.circuitOpens
	ch <- c.circuitCloses
	ch <- c.circuitState
	ch <- c.failureCount
	ch <- c.fallbackActivations
	ch <- c.retryAttempts
	ch <- c.retrySuccesses
	ch <- c.healthChecks
	ch <- c.poolTotalConns
	ch <- c.poolIdleConns
}

// Collect implements prometheus.Collector.
func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.manager.GetStatistics()

	ch <- prometheus.MustNewConstMetric(c.requestsTotal, prometheus.CounterValue, float64(snap.TotalRequests))
	ch <- prometheus.MustNewConstMetric(c.requestsSuccessful, prometheus.CounterValue, float64(snap.SuccessfulRequests))
	ch <- prometheus.MustNewConstMetric(c.requestsFailed, prometheus.CounterValue, float64(snap.FailedRequests))
	ch <- prometheus.MustNewConstMetric(c.circuitOpens, prometheus.CounterValue, float64(snap.CircuitOpens))
	ch <- prometheus.MustNewConstMetric(c.circuitCloses, prometheus.CounterValue, float64(snap.CircuitCloses))
	ch <- prometheus.MustNewConstMetric(c.circuitState, prometheus.GaugeValue, circuitStateValue(c.manager.CircuitState()))
	ch <- prometheus.MustNewConstMetric(c.failureCount, prometheus.GaugeValue, float64(snap.FailureCount))
	ch <- prometheus.MustNewConstMetric(c.fallbackActivations, prometheus.CounterValue, float64(snap.FallbackActivations))
	ch <- prometheus.MustNewConstMetric(c.retryAttempts, prometheus.CounterValue, float64(snap.RetryAttempts))
	ch <- prometheus.MustNewConstMetric(c.retrySuccesses, prometheus.CounterValue, float64(snap.RetrySuccesses))
	ch <- prometheus.MustNewConstMetric(c.healthChecks, prometheus.CounterValue, float64(snap.HealthChecks))
	ch <- prometheus.MustNewConstMetric(c.poolTotalConns, prometheus.GaugeValue, float64(snap.Pool.TotalConns))
	ch <- prometheus.MustNewConstMetric(c.poolIdleConns, prometheus.GaugeValue, float64(snap.Pool.IdleConns))
}

func circuitStateValue(state pkg.CircuitState) float64 {
	switch state {
	case pkg.StateOpen:
		return 1
	case pkg.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

// newMetricsRegistry builds a registry holding only this service's collector.
func newMetricsRegistry(manager *redis.ConnectionManager) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(newStatsCollector(manager))

	return registry
}
