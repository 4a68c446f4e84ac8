// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resilience provides the fault-tolerance primitives every remote
// call and persistence batch in the sync engine is routed through:
// per-operation circuit breakers, retry bookkeeping, a recovery executor
// with jittered exponential backoff, and graceful degradation strategies.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

var (
	// ErrCircuitOpen indicates the circuit breaker for an operation denied
	// execution. Terminal: never retried.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrRetriesExhausted indicates all retry attempts were consumed.
	// Terminal when seen by an outer executor.
	ErrRetriesExhausted = errors.New("retry attempts exhausted")

	// ErrOperationTimeout indicates the operation lost the race against its
	// timeout. Distinguishable from application failures; retryable until
	// attempts run out.
	ErrOperationTimeout = errors.New("operation timed out")
)

// -----------------------------------------------------------------------------
// Error Classification
// -----------------------------------------------------------------------------

// ErrorClass categorizes a failure for retry decisions.
type ErrorClass int

const (
	// ClassTransient failures (network, 5xx, rate limit) are retried with backoff.
	ClassTransient ErrorClass = iota
	// ClassAuth failures (401/403) are terminal-recoverable: surfaced
	// immediately so a re-authentication flow outside this core can run.
	ClassAuth
	// ClassValidation failures (malformed input) are terminal: retrying the
	// same input cannot succeed.
	ClassValidation
	// ClassTimeout failures are retryable but reported as a distinct kind.
	ClassTimeout
)

// String returns a human-readable class name.
func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassAuth:
		return "auth"
	case ClassValidation:
		return "validation"
	case ClassTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps an error with an explicit class so callers do not
// have to rely on message sniffing.
type ClassifiedError struct {
	Class ErrorClass
	Err   error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// NewAuthError wraps err as a terminal authentication/authorization failure.
func NewAuthError(err error) error {
	return &ClassifiedError{Class: ClassAuth, Err: err}
}

// NewValidationError wraps err as a terminal validation failure.
func NewValidationError(err error) error {
	return &ClassifiedError{Class: ClassValidation, Err: err}
}

// NewTransientError wraps err as an explicitly retryable failure.
func NewTransientError(err error) error {
	return &ClassifiedError{Class: ClassTransient, Err: err}
}

// terminalMessageMarkers are substrings that mark an unclassified error as
// terminal. Upstream services are not consistent about typed errors, so
// message matching remains the fallback.
var terminalMessageMarkers = []string{
	"validation",
	"invalid",
	"unauthorized",
	"unauthenticated",
	"forbidden",
	"authentication",
	"authorization",
}

// IsRetryable reports whether err should be retried by the executor.
//
// Terminal: circuit-open, retries-exhausted, context cancellation, auth
// and validation failures (typed or recognized by message). Timeouts and
// everything else are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrRetriesExhausted) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		switch classified.Class {
		case ClassAuth, ClassValidation:
			return false
		default:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range terminalMessageMarkers {
		if strings.Contains(msg, marker) {
			return false
		}
	}
	return true
}

// IsTimeout reports whether err is (or wraps) an operation timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, ErrOperationTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var classified *ClassifiedError
	return errors.As(err, &classified) && classified.Class == ClassTimeout
}
