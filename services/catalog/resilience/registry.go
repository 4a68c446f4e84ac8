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

import "sync"

// Registry owns the circuit breakers and retry counters, keyed by
// operation identifier.
//
// The registry is an explicit dependency injected into the executor and
// the orchestrator rather than a process-wide singleton, so tests build a
// fresh one per case instead of resetting shared state. Records are
// created lazily on first use and live until Reset or process exit.
//
// Thread Safety: Safe for concurrent use. Updates to one operation
// identifier's breaker or counter are never interleaved: each record
// serializes its own mutations and the registry only guards the maps.
type Registry struct {
	breakerConfig CircuitBreakerConfig

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	counters map[string]*RetryCounter
}

// NewRegistry creates an empty registry. Breakers created through it use
// the supplied configuration.
func NewRegistry(breakerConfig CircuitBreakerConfig) *Registry {
	return &Registry{
		breakerConfig: breakerConfig,
		breakers:      make(map[string]*CircuitBreaker),
		counters:      make(map[string]*RetryCounter),
	}
}

// Breaker returns the circuit breaker for an operation identifier,
// creating it on first use.
func (r *Registry) Breaker(operationID string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[operationID]
	if !ok {
		cb = NewCircuitBreaker(r.breakerConfig)
		r.breakers[operationID] = cb
	}
	return cb
}

// Counter returns the retry counter for an operation identifier,
// creating it on first use.
func (r *Registry) Counter(operationID string) *RetryCounter {
	r.mu.Lock()
	defer r.mu.Unlock()
	rc, ok := r.counters[operationID]
	if !ok {
		rc = NewRetryCounter()
		r.counters[operationID] = rc
	}
	return rc
}

// Reset forces every breaker closed and clears all registered records.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cb := range r.breakers {
		cb.Reset()
	}
	r.breakers = make(map[string]*CircuitBreaker)
	r.counters = make(map[string]*RetryCounter)
}

// BreakerMetrics returns a snapshot of every registered breaker, keyed by
// operation identifier. Used by the status endpoint.
func (r *Registry) BreakerMetrics() map[string]CircuitBreakerMetrics {
	r.mu.Lock()
	breakers := make(map[string]*CircuitBreaker, len(r.breakers))
	for id, cb := range r.breakers {
		breakers[id] = cb
	}
	r.mu.Unlock()

	out := make(map[string]CircuitBreakerMetrics, len(breakers))
	for id, cb := range breakers {
		out[id] = cb.Metrics()
	}
	return out
}

// RetryStats returns a snapshot of every registered retry counter.
func (r *Registry) RetryStats() map[string]RetryStats {
	r.mu.Lock()
	counters := make(map[string]*RetryCounter, len(r.counters))
	for id, rc := range r.counters {
		counters[id] = rc
	}
	r.mu.Unlock()

	out := make(map[string]RetryStats, len(counters))
	for id, rc := range counters {
		out[id] = rc.Stats()
	}
	return out
}
