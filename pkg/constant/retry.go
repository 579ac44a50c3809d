// Copyright (c) 2026 Lerian Studio. All rights reserved.
// Use of this source code is governed by the Elastic License 2.0
// that can be found in the LICENSE file.

package constant

import "time"

// Retry and Backoff Configuration
const (
	// DefaultMaxRetryAttempts is the total number of attempts (first try
	// included) the retry executor makes for transient failures.
	DefaultMaxRetryAttempts = 3

	// RetryBaseDelay is the base delay for exponential backoff calculation.
	RetryBaseDelay = 1 * time.Second

	// RetryMaxDelay is the upper bound for the backoff delay.
	RetryMaxDelay = 30 * time.Second

	// RetryBackoffMultiplier is the growth factor applied per attempt.
	RetryBackoffMultiplier = 2.0

	// RetryJitterFraction is the maximum relative perturbation applied to a
	// backoff delay when jitter is enabled, to prevent thundering herd.
	RetryJitterFraction = 0.25

	// RetryMinDelay is the lower bound for a jittered backoff delay.
	RetryMinDelay = 100 * time.Millisecond
)
