// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resilience

import (
	"sync"
	"time"
)

// CircuitState represents the circuit breaker state.
type CircuitState int

const (
	// CircuitClosed is normal operation - requests pass through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means too many failures - requests are rejected.
	CircuitOpen
	// CircuitHalfOpen is testing recovery - limited probe calls allowed.
	CircuitHalfOpen
)

// String returns a human-readable state name.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before
	// opening (default: 5).
	FailureThreshold int

	// RecoveryTimeout is how long an open breaker waits before the next
	// CanExecute call moves it to half-open (default: 60s). The
	// transition is lazy and pull-based; there is no background timer.
	RecoveryTimeout time.Duration

	// HalfOpenMaxCalls is the number of consecutive half-open successes
	// needed to close (default: 3).
	HalfOpenMaxCalls int
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// CircuitBreakerMetrics is a read-only snapshot of breaker state.
type CircuitBreakerMetrics struct {
	State         string    `json:"state"`
	FailureCount  int       `json:"failure_count"`
	SuccessCount  int       `json:"success_count"`
	TotalCalls    int64     `json:"total_calls"`
	TotalFailures int64     `json:"total_failures"`
	FailureRate   float64   `json:"failure_rate"`
	LastFailureAt time.Time `json:"last_failure_at,omitempty"`
}

// CircuitBreaker protects one operation identifier from cascading failure.
//
// States:
//
//   - Closed: normal operation. FailureThreshold consecutive failures open it.
//   - Open: calls are rejected. The next CanExecute after RecoveryTimeout
//     moves it to half-open.
//   - Half-Open: probe calls pass; HalfOpenMaxCalls consecutive successes
//     close it, any failure reopens it immediately.
//
// Counters are cleared on every state transition so no stale counts leak
// across states.
//
// Thread Safety: Safe for concurrent use.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu            sync.Mutex
	state         CircuitState
	failureCount  int
	successCount  int
	lastFailureAt time.Time

	totalCalls    int64
	totalFailures int64

	// now is the clock source; overridable in tests.
	now func() time.Time
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = 3
	}
	return &CircuitBreaker{
		config: config,
		state:  CircuitClosed,
		now:    time.Now,
	}
}

// State returns the current state without side effects.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// CanExecute reports whether a call may proceed.
//
// Side-effecting: an open breaker whose recovery timeout has elapsed
// transitions to half-open here. Counters are tracked for Metrics.
//
// Thread Safety: Safe for concurrent use.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalCalls++

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailureAt) >= cb.config.RecoveryTimeout {
			cb.transitionTo(CircuitHalfOpen)
			return true
		}
		return false
	}
	return false
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount = 0
		cb.successCount++
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.HalfOpenMaxCalls {
			cb.transitionTo(CircuitClosed)
		}
	}
}

// RecordFailure records a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalFailures++
	cb.lastFailureAt = cb.now()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount++
		cb.successCount = 0
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

// Reset forces the breaker closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionTo(CircuitClosed)
	cb.lastFailureAt = time.Time{}
}

// Metrics returns a read-only snapshot including the computed failure rate.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var rate float64
	if cb.totalCalls > 0 {
		rate = float64(cb.totalFailures) / float64(cb.totalCalls)
	}
	return CircuitBreakerMetrics{
		State:         cb.state.String(),
		FailureCount:  cb.failureCount,
		SuccessCount:  cb.successCount,
		TotalCalls:    cb.totalCalls,
		TotalFailures: cb.totalFailures,
		FailureRate:   rate,
		LastFailureAt: cb.lastFailureAt,
	}
}

// transitionTo changes state and clears per-state counters.
// Must be called with lock held.
func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	cb.state = newState
	cb.failureCount = 0
	cb.successCount = 0
}
