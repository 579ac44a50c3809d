// Copyright (c) 2026 Lerian Studio. All rights reserved.
// Use of this source code is governed by the Elastic License 2.0
// that can be found in the LICENSE file.

package pkg

import (
	"math"
	"math/rand"
	"time"

	"github.com/LerianStudio/lib-redis-guard/pkg/constant"
)

// BackoffPolicy computes retry delays using capped exponential growth with
// optional jitter. It performs no I/O and keeps no state beyond its jitter
// source, so a single policy is safe to share across retry executors.
type BackoffPolicy struct {
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	JitterEnabled bool

	// rnd is the jitter source. Tests inject a seeded source through
	// WithRand; nil falls back to the shared math/rand source.
	rnd *rand.Rand
}

// NewBackoffPolicy returns a policy with the production defaults: 1s base
// delay, 30s cap, doubling per attempt, jitter enabled.
func NewBackoffPolicy() *BackoffPolicy {
	return &BackoffPolicy{
		BaseDelay:     constant.RetryBaseDelay,
		MaxDelay:      constant.RetryMaxDelay,
		Multiplier:    constant.RetryBackoffMultiplier,
		JitterEnabled: true,
	}
}

// WithRand sets a deterministic jitter source and returns the policy.
func (p *BackoffPolicy) WithRand(rnd *rand.Rand) *BackoffPolicy {
	p.rnd = rnd
	return p
}

// Delay returns the sleep duration before retrying the given zero-based
// attempt: min(BaseDelay * Multiplier^attempt, MaxDelay). With jitter
// enabled the delay is perturbed by up to ±25% and floored at 100ms.
func (p *BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.JitterEnabled {
		delay *= 1 + constant.RetryJitterFraction*(2*p.randFloat()-1)

		if delay < float64(constant.RetryMinDelay) {
			delay = float64(constant.RetryMinDelay)
		}
	}

	return time.Duration(delay)
}

func (p *BackoffPolicy) randFloat() float64 {
	if p.rnd != nil {
		return p.rnd.Float64()
	}

	return rand.Float64() //nolint:gosec // jitter does not need crypto randomness
}
