// Copyright (c) 2026 Lerian Studio. All rights reserved.
// Use of this source code is governed by the Elastic License 2.0
// that can be found in the LICENSE file.

package constant

import "time"

// Redis Connection Defaults
const (
	// DefaultMaxConnections is the default size of the Redis connection pool.
	DefaultMaxConnections = 50

	// DefaultConnectTimeout bounds dialing a new connection to the store.
	DefaultConnectTimeout = 5 * time.Second

	// DefaultSocketTimeout bounds individual read and write operations.
	DefaultSocketTimeout = 5 * time.Second
)

// Circuit Breaker Defaults
const (
	// DefaultFailureThreshold is the number of recorded failures that trips
	// the circuit from closed to open.
	DefaultFailureThreshold = 5

	// DefaultRecoveryTimeout is how long the circuit stays open before the
	// next access attempt is allowed a half-open trial.
	DefaultRecoveryTimeout = 60 * time.Second
)

// Health Monitoring Configuration
const (
	// DefaultHealthCheckInterval is the period between background store probes.
	DefaultHealthCheckInterval = 30 * time.Second

	// HealthWindowSize is the number of probe response times kept in the
	// rolling health metrics window.
	HealthWindowSize = 100

	// MonitorJoinTimeout is the maximum time Close waits for the health
	// monitor goroutine to exit.
	MonitorJoinTimeout = 5 * time.Second
)
