package pkg

import (
	"sync"
	"time"

	"github.com/LerianStudio/lib-commons/v2/commons/log"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int32

const (
	// StateClosed allows requests through; failures accumulate toward the threshold.
	StateClosed CircuitState = iota

	// StateOpen fails fast; no request reaches the store.
	StateOpen

	// StateHalfOpen allows a trial window to test recovery.
	StateHalfOpen
)

// String returns the lowercase name of the state.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerSettings configures a CircuitBreaker.
type CircuitBreakerSettings struct {
	// Name identifies the breaker in logs.
	Name string

	// FailureThreshold is the failure count at which a closed circuit opens.
	FailureThreshold int

	// RecoveryTimeout is how long an open circuit waits before an access
	// attempt may transition it to half-open.
	RecoveryTimeout time.Duration

	// OnStateChange, when set, is invoked after every state transition,
	// outside the breaker's internal lock.
	OnStateChange func(from, to CircuitState)

	Logger log.Logger
}

// CircuitBreaker is a three-state (closed/open/half-open) breaker guarding a
// single backing store. All methods are safe for concurrent use; state
// transitions are linearized under an internal mutex that is never held
// across I/O or callbacks.
//
// The failure counter deliberately survives successes in the closed state:
// isolated transient failures keep accumulating toward the threshold, and
// only a half-open trial success or a manual reset clears the count.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	onStateChange    func(from, to CircuitState)
	logger           log.Logger

	mu                sync.Mutex
	state             CircuitState
	failureCount      int
	lastFailureTime   time.Time
	halfOpenStartedAt time.Time
	lastError         string

	// now is the clock; tests override it to drive recovery windows.
	now func() time.Time
}

// CircuitSnapshot is a point-in-time view of a breaker's state.
type CircuitSnapshot struct {
	State             CircuitState `json:"state"`
	FailureCount      int          `json:"failureCount"`
	LastError         string       `json:"lastError,omitempty"`
	LastFailureTime   time.Time    `json:"lastFailureTime,omitzero"`
	HalfOpenStartedAt time.Time    `json:"halfOpenStartedAt,omitzero"`
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(settings CircuitBreakerSettings) *CircuitBreaker {
	return &CircuitBreaker{
		name:             settings.Name,
		failureThreshold: settings.FailureThreshold,
		recoveryTimeout:  settings.RecoveryTimeout,
		onStateChange:    settings.OnStateChange,
		logger:           settings.Logger,
		state:            StateClosed,
		now:              time.Now,
	}
}

// RecordFailure increments the failure count, re-arms the failure timestamp
// and stores message as the last error. A closed circuit at or past the
// threshold opens; a half-open circuit re-opens immediately, since the trial
// request just failed.
func (cb *CircuitBreaker) RecordFailure(message string) {
	cb.mu.Lock()

	from := cb.state
	cb.failureCount++
	cb.lastFailureTime = cb.now()
	cb.lastError = message

	switch {
	case cb.state == StateClosed && cb.failureCount >= cb.failureThreshold:
		cb.state = StateOpen
	case cb.state == StateHalfOpen:
		cb.state = StateOpen
	}

	to := cb.state
	count := cb.failureCount
	cb.mu.Unlock()

	cb.logger.Warnf("Circuit breaker [%s] recorded failure %d/%d: %s", cb.name, count, cb.failureThreshold, message)

	if from != to {
		cb.notifyStateChange(from, to)
	}
}

// RecordSuccess closes a half-open circuit and resets the failure count.
// In the closed state it is a no-op: the failure count is not reset, so
// intermittent failures still accumulate toward the threshold.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()

	from := cb.state
	if cb.state == StateHalfOpen {
		cb.state = StateClosed
		cb.failureCount = 0
	}

	to := cb.state
	cb.mu.Unlock()

	if from != to {
		cb.notifyStateChange(from, to)
	}
}

// IsOpen reports whether the circuit is open.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.state == StateOpen
}

// ShouldAttemptReset reports whether an open circuit has waited out its
// recovery timeout and may be given a half-open trial.
func (cb *CircuitBreaker) ShouldAttemptReset() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.shouldAttemptResetLocked()
}

func (cb *CircuitBreaker) shouldAttemptResetLocked() bool {
	if cb.state != StateOpen {
		return false
	}

	if cb.lastFailureTime.IsZero() {
		return true
	}

	return cb.now().Sub(cb.lastFailureTime) >= cb.recoveryTimeout
}

// AttemptReset transitions an open circuit to half-open when the recovery
// timeout has elapsed. It reports whether the transition happened. The
// transition is never forced by a background task directly; callers invoke
// this as a side effect of an access attempt.
func (cb *CircuitBreaker) AttemptReset() bool {
	cb.mu.Lock()

	if !cb.shouldAttemptResetLocked() {
		cb.mu.Unlock()
		return false
	}

	from := cb.state
	cb.state = StateHalfOpen
	cb.halfOpenStartedAt = cb.now()
	cb.mu.Unlock()

	cb.notifyStateChange(from, StateHalfOpen)

	return true
}

// ManualReset unconditionally closes the circuit, clears the failure count
// and timestamps. Used for operator-triggered recovery.
func (cb *CircuitBreaker) ManualReset() {
	cb.mu.Lock()

	from := cb.state
	cb.state = StateClosed
	cb.failureCount = 0
	cb.lastFailureTime = time.Time{}
	cb.halfOpenStartedAt = time.Time{}
	cb.mu.Unlock()

	cb.logger.Infof("Circuit breaker [%s] manually reset", cb.name)

	if from != StateClosed {
		cb.notifyStateChange(from, StateClosed)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.state
}

// FailureCount returns the current failure count.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.failureCount
}

// Snapshot returns a consistent view of the breaker's state.
func (cb *CircuitBreaker) Snapshot() CircuitSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitSnapshot{
		State:             cb.state,
		FailureCount:      cb.failureCount,
		LastError:         cb.lastError,
		LastFailureTime:   cb.lastFailureTime,
		HalfOpenStartedAt: cb.halfOpenStartedAt,
	}
}

func (cb *CircuitBreaker) notifyStateChange(from, to CircuitState) {
	switch to {
	case StateOpen:
		cb.logger.Errorf("Circuit breaker [%s] OPENED - store is unhealthy, requests will fast-fail", cb.name)
	case StateHalfOpen:
		cb.logger.Infof("Circuit breaker [%s] HALF-OPEN - testing store recovery", cb.name)
	case StateClosed:
		cb.logger.Infof("Circuit breaker [%s] CLOSED - store is healthy", cb.name)
	}

	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}
