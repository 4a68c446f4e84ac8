// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncsInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalogsync_syncs_in_progress",
		Help: "Number of sync runs currently executing (0 or 1).",
	})

	syncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalogsync_sync_runs_total",
		Help: "Finished sync runs by type and terminal phase.",
	}, []string{"type", "phase"})

	syncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalogsync_sync_duration_seconds",
		Help:    "Wall-clock duration of finished sync runs.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"type"})

	objectsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalogsync_objects_processed_total",
		Help: "Catalog objects committed, by sync type and outcome.",
	}, []string{"type", "outcome"})
)

func recordBatchMetrics(syncType SyncType, stats BatchStats) {
	t := string(syncType)
	objectsProcessedTotal.WithLabelValues(t, "inserted").Add(float64(stats.Inserted))
	objectsProcessedTotal.WithLabelValues(t, "updated").Add(float64(stats.Updated))
	objectsProcessedTotal.WithLabelValues(t, "deleted").Add(float64(stats.Deleted))
	objectsProcessedTotal.WithLabelValues(t, "skipped").Add(float64(stats.Skipped))
}
