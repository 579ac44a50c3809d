// Copyright (c) 2026 Lerian Studio. All rights reserved.
// Use of this source code is governed by the Elastic License 2.0
// that can be found in the LICENSE file.

package redis

import (
	"sync"
	"time"

	"github.com/LerianStudio/lib-redis-guard/pkg/constant"
)

// HealthMetrics keeps a rolling window of probe response times (capped at
// the last 100 samples) and consecutive success/failure counters fed by both
// health probes and user operations.
type HealthMetrics struct {
	mu                   sync.Mutex
	samples              []time.Duration
	consecutiveSuccesses int64
	consecutiveFailures  int64
}

// HealthMetricsSnapshot is a point-in-time view of the health metrics.
type HealthMetricsSnapshot struct {
	ProbeSamples         int           `json:"probeSamples"`
	AverageProbeTime     time.Duration `json:"averageProbeTime"`
	ConsecutiveSuccesses int64         `json:"consecutiveSuccesses"`
	ConsecutiveFailures  int64         `json:"consecutiveFailures"`
}

func newHealthMetrics() *HealthMetrics {
	return &HealthMetrics{
		samples: make([]time.Duration, 0, constant.HealthWindowSize),
	}
}

// RecordProbe stores a probe's wall-clock duration in the rolling window and
// updates the consecutive counters.
func (h *HealthMetrics) RecordProbe(d time.Duration, healthy bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) == constant.HealthWindowSize {
		copy(h.samples, h.samples[1:])
		h.samples = h.samples[:constant.HealthWindowSize-1]
	}

	h.samples = append(h.samples, d)
	h.markLocked(healthy)
}

// MarkSuccess updates the consecutive counters after a successful user
// operation without adding a probe sample.
func (h *HealthMetrics) MarkSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.markLocked(true)
}

// MarkFailure updates the consecutive counters after a failed user operation
// without adding a probe sample.
func (h *HealthMetrics) MarkFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.markLocked(false)
}

func (h *HealthMetrics) markLocked(healthy bool) {
	if healthy {
		h.consecutiveSuccesses++
		h.consecutiveFailures = 0

		return
	}

	h.consecutiveFailures++
	h.consecutiveSuccesses = 0
}

// Snapshot returns a consistent view of the metrics.
func (h *HealthMetrics) Snapshot() HealthMetricsSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	var avg time.Duration

	if len(h.samples) > 0 {
		var sum time.Duration
		for _, s := range h.samples {
			sum += s
		}

		avg = sum / time.Duration(len(h.samples))
	}

	return HealthMetricsSnapshot{
		ProbeSamples:         len(h.samples),
		AverageProbeTime:     avg,
		ConsecutiveSuccesses: h.consecutiveSuccesses,
		ConsecutiveFailures:  h.consecutiveFailures,
	}
}
