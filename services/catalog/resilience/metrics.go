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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	retryAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalogsync_retry_attempts_total",
		Help: "Failed attempts per operation, including the final one.",
	}, []string{"operation"})

	finalFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalogsync_final_failures_total",
		Help: "Executions that exhausted all attempts or hit a terminal error.",
	}, []string{"operation"})

	breakerRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalogsync_breaker_rejections_total",
		Help: "Executions rejected by an open circuit breaker.",
	}, []string{"operation"})
)
