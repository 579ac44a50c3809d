// Copyright (c) 2026 Lerian Studio. All rights reserved.
// Use of this source code is governed by the Elastic License 2.0
// that can be found in the LICENSE file.

package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
)

// Guarded runs a typed operation through the manager's circuit breaker,
// retry and fallback machinery. It is the convenience wrapper collaborators
// use instead of hand-converting ExecuteWithFallback's any-typed result.
// A nil fallback degrades transient failures to the zero value of T.
func Guarded[T any](ctx context.Context, m *ConnectionManager, operationName string, op func(ctx context.Context, client *goredis.Client) (T, error), fallback func() T) (T, error) {
	var zero T

	var fb Fallback
	if fallback != nil {
		fb = func() any {
			return fallback()
		}
	}

	result, err := m.ExecuteWithFallback(ctx, operationName, func(ctx context.Context, client *goredis.Client) (any, error) {
		return op(ctx, client)
	}, fb)
	if err != nil {
		return zero, err
	}

	typed, ok := result.(T)
	if !ok {
		return zero, nil
	}

	return typed, nil
}
