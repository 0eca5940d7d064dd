package circuitbreaker

import (
	"sync"
	"time"

	"github.com/linkguard-hq/linkguard/pkg/logger"
	"github.com/linkguard-hq/linkguard/pkg/metrics"
)

// CircuitBreaker implements the circuit breaker pattern for request
// traffic against a single host. When a host keeps failing, the
// breaker opens and the client short-circuits calls until the reset
// timeout elapses.
type CircuitBreaker struct {
	host          string
	enabled       bool
	failureCount  int
	failureWindow time.Duration
	failThreshold int
	resetTimeout  time.Duration
	lastFailure   time.Time
	tripped       bool
	tripTime      time.Time
	logger        logger.Logger
	mu            sync.Mutex
}

// New creates a circuit breaker for the given host.
func New(host string, enabled bool, threshold int, window, resetTimeout time.Duration, log logger.Logger) *CircuitBreaker {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &CircuitBreaker{
		host:          host,
		enabled:       enabled,
		failThreshold: threshold,
		failureWindow: window,
		resetTimeout:  resetTimeout,
		logger:        log,
	}
}

// RecordFailure records a failure and trips the circuit if the
// threshold is exceeded inside the window. Returns true if the
// circuit is open after recording.
func (cb *CircuitBreaker) RecordFailure() bool {
	if !cb.enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()

	// If the circuit is already tripped, check if it's time to try again
	if cb.tripped {
		if time.Since(cb.tripTime) > cb.resetTimeout {
			cb.logger.InfoWith(logger.Client, "Circuit breaker for %s attempting reset after timeout", cb.host)
			cb.tripped = false
			cb.failureCount = 0
		} else {
			return true // Still tripped
		}
	}

	// Reset failure count if outside window
	if time.Since(cb.lastFailure) > cb.failureWindow {
		cb.failureCount = 0
	}

	cb.failureCount++
	cb.lastFailure = now

	if cb.failureCount >= cb.failThreshold {
		cb.tripped = true
		cb.tripTime = now
		metrics.CircuitBreakerTrips.WithLabelValues(cb.host).Inc()
		cb.logger.NoticeWith(logger.Client, "Circuit breaker for %s tripped: %d failures in window", cb.host, cb.failureCount)
		return true
	}

	return false
}

// RecordSuccess clears the accumulated failure count. A single
// successful call is taken as evidence the host has recovered.
func (cb *CircuitBreaker) RecordSuccess() {
	if !cb.enabled {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	if cb.tripped {
		cb.logger.InfoWith(logger.Client, "Circuit breaker for %s closed after successful call", cb.host)
		cb.tripped = false
	}
}

// IsOpen returns true if the circuit is open (tripped)
func (cb *CircuitBreaker) IsOpen() bool {
	if !cb.enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	// If tripped but reset timeout has passed, try again
	if cb.tripped && time.Since(cb.tripTime) > cb.resetTimeout {
		cb.tripped = false
		cb.failureCount = 0
		return false
	}

	return cb.tripped
}

// Reset manually resets the circuit breaker
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.tripped = false
	cb.failureCount = 0
}

// Host returns the host this breaker guards.
func (cb *CircuitBreaker) Host() string {
	return cb.host
}

// State reports the current failure accounting for status endpoints.
func (cb *CircuitBreaker) State() (failureCount int, lastFailure time.Time, open bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	open = cb.tripped && time.Since(cb.tripTime) <= cb.resetTimeout
	return cb.failureCount, cb.lastFailure, open
}

// IsEnabled returns true if the circuit breaker is enabled
func (cb *CircuitBreaker) IsEnabled() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.enabled
}
