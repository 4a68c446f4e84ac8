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

// RetryStats is a read-only snapshot of retry bookkeeping.
type RetryStats struct {
	TotalRetries          int64 `json:"total_retries"`
	SuccessfulRetries     int64 `json:"successful_retries"`
	FailedRetries         int64 `json:"failed_retries"`
	CurrentAttemptRetries int   `json:"current_attempt_retries"`
}

// RetryCounter tracks attempt-scoped and cumulative retry statistics for
// one operation identifier.
//
// Purely observational: it never decides whether to retry. The executor
// owns that decision.
//
// Thread Safety: Safe for concurrent use.
type RetryCounter struct {
	mu sync.Mutex

	totalRetries          int64
	successfulRetries     int64
	failedRetries         int64
	currentAttemptRetries int
}

// NewRetryCounter creates a zeroed counter.
func NewRetryCounter() *RetryCounter {
	return &RetryCounter{}
}

// RecordFailure records one failed attempt: both the attempt-scoped and
// the cumulative retry counts grow.
func (rc *RetryCounter) RecordFailure() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.totalRetries++
	rc.currentAttemptRetries++
}

// RecordSuccess records a terminal success. SuccessfulRetries is credited
// only when at least one retry preceded the success; a first-attempt
// success is not a "successful retry". The attempt counter is cleared.
func (rc *RetryCounter) RecordSuccess() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.currentAttemptRetries > 0 {
		rc.successfulRetries++
	}
	rc.currentAttemptRetries = 0
}

// RecordFinalFailure records that all attempts were exhausted. The attempt
// counter is cleared for the next execution.
func (rc *RetryCounter) RecordFinalFailure() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.failedRetries++
	rc.currentAttemptRetries = 0
}

// Stats returns a snapshot.
func (rc *RetryCounter) Stats() RetryStats {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return RetryStats{
		TotalRetries:          rc.totalRetries,
		SuccessfulRetries:     rc.successfulRetries,
		FailedRetries:         rc.failedRetries,
		CurrentAttemptRetries: rc.currentAttemptRetries,
	}
}
