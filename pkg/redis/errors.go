package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
)

// InitializationError indicates the connection pool could not be built or
// its initial liveness probe failed. It is transient: the manager stays
// degraded and re-initialization is retried on later access attempts.
type InitializationError struct {
	Address string
	Err     error
}

// Error implements the error interface.
func (e InitializationError) Error() string {
	return fmt.Sprintf("failed to initialize redis pool at %s: %v", e.Address, e.Err)
}

// Unwrap exposes the underlying cause.
func (e InitializationError) Unwrap() error {
	return e.Err
}

// transientReplyPrefixes are Redis server reply prefixes that indicate a
// temporarily unavailable store rather than a malformed request.
var transientReplyPrefixes = []string{
	"LOADING",
	"READONLY",
	"CLUSTERDOWN",
	"MASTERDOWN",
	"TRYAGAIN",
	"BUSY",
}

// authReplyPrefixes are Redis server reply prefixes for authentication and
// authorization failures. These are configuration errors and must surface
// loudly instead of being retried or hidden behind a fallback.
var authReplyPrefixes = []string{
	"NOAUTH",
	"WRONGPASS",
	"NOPERM",
	"ERR AUTH",
}

// IsTransientError reports whether err belongs to the transient class that
// is retried and recorded into the circuit breaker. The mapping:
//
//   - transient: dial/connection errors (refused, reset, broken pipe),
//     timeouts (net.Error, context.DeadlineExceeded, pool timeout), closed
//     client, unexpected EOF, pool initialization failures, and the Redis
//     server states LOADING/READONLY/CLUSTERDOWN/MASTERDOWN/TRYAGAIN/BUSY.
//   - non-transient: authentication replies (NOAUTH/WRONGPASS/NOPERM),
//     every other Redis command reply (the request was wrong, not the
//     store), context.Canceled, and anything unclassified.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if errors.Is(err, goredis.ErrClosed) || errors.Is(err, goredis.ErrPoolTimeout) {
		return true
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	var initErr InitializationError
	if errors.As(err, &initErr) {
		return true
	}

	// Server replies implement goredis.Error; classify them by prefix
	// before the generic net.Error check.
	var redisErr goredis.Error
	if errors.As(err, &redisErr) {
		return isTransientReply(redisErr.Error())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}

func isTransientReply(reply string) bool {
	for _, prefix := range authReplyPrefixes {
		if strings.HasPrefix(reply, prefix) {
			return false
		}
	}

	for _, prefix := range transientReplyPrefixes {
		if strings.HasPrefix(reply, prefix) {
			return true
		}
	}

	return false
}
