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
	"context"
	"sync"
)

// DegradationStrategy selects the behavior when an operation's retries
// are exhausted.
type DegradationStrategy string

const (
	// DegradeReturnCached returns the caller-supplied fallback value,
	// which by convention is the last known-good result.
	DegradeReturnCached DegradationStrategy = "return_cached"

	// DegradeReturnDefault returns the caller-supplied fallback value.
	DegradeReturnDefault DegradationStrategy = "return_default"

	// DegradeSkipOperation treats the operation as a successful no-op and
	// returns the zero value.
	DegradeSkipOperation DegradationStrategy = "skip_operation"

	// DegradeUseAlternative invokes a registered alternative operation.
	DegradeUseAlternative DegradationStrategy = "use_alternative_service"
)

// AlternativeFunc is a registered substitute operation invoked for
// DegradeUseAlternative. The returned value must be assignable to the
// result type of the degraded operation.
type AlternativeFunc func(ctx context.Context) (any, error)

// DegradationManager maps operation identifiers to degradation strategies.
//
// Consulted by the executor after retries are exhausted and before the
// error propagates; an unregistered operation degrades nowhere and the
// error surfaces unchanged.
//
// Thread Safety: Safe for concurrent use.
type DegradationManager struct {
	mu           sync.RWMutex
	strategies   map[string]DegradationStrategy
	alternatives map[string]AlternativeFunc

	onDegrade func(operationID string, strategy DegradationStrategy)
}

// NewDegradationManager creates an empty manager.
func NewDegradationManager() *DegradationManager {
	return &DegradationManager{
		strategies:   make(map[string]DegradationStrategy),
		alternatives: make(map[string]AlternativeFunc),
	}
}

// RegisterStrategy sets the strategy for an operation identifier.
func (m *DegradationManager) RegisterStrategy(operationID string, strategy DegradationStrategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategies[operationID] = strategy
}

// RegisterAlternative sets the substitute operation used by
// DegradeUseAlternative for an operation identifier.
func (m *DegradationManager) RegisterAlternative(operationID string, fn AlternativeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alternatives[operationID] = fn
}

// OnDegrade sets a callback fired whenever a strategy is applied.
func (m *DegradationManager) OnDegrade(fn func(operationID string, strategy DegradationStrategy)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDegrade = fn
}

// StrategyFor returns the registered strategy, if any.
func (m *DegradationManager) StrategyFor(operationID string) (DegradationStrategy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.strategies[operationID]
	return s, ok
}

// AlternativeFor returns the registered alternative, if any.
func (m *DegradationManager) AlternativeFor(operationID string) (AlternativeFunc, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn, ok := m.alternatives[operationID]
	return fn, ok
}

// notifyDegrade fires the callback outside any caller-held locks.
func (m *DegradationManager) notifyDegrade(operationID string, strategy DegradationStrategy) {
	m.mu.RLock()
	fn := m.onDegrade
	m.mu.RUnlock()
	if fn != nil {
		fn(operationID, strategy)
	}
}
