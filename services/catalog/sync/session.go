// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sync orchestrates catalog synchronization: paging the remote
// listing, reconciling each page into the local mirror in dependency
// order, checkpointing for resume, and reporting progress.
package sync

import (
	"time"

	"github.com/google/uuid"
)

// SyncType distinguishes full from incremental runs.
type SyncType string

const (
	// SyncFull replaces the whole local mirror.
	SyncFull SyncType = "full"

	// SyncIncremental applies only changes since the last watermark.
	SyncIncremental SyncType = "incremental"
)

// Phase is the lifecycle stage of a sync run.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseInitializing Phase = "initializing"
	PhaseClearing     Phase = "clearing"
	PhaseDownloading  Phase = "downloading"
	PhaseProcessing   Phase = "processing"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
	PhaseCancelled    Phase = "cancelled"
)

// Terminal reports whether the phase ends a run.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseCancelled
}

// Session is one sync run in flight.
//
// The processed counts only advance on committed batches, so a
// cancelled run's counts reflect exactly what was durably applied.
// ItemsProcessed tracks ITEM objects separately; consumers render it
// as the user-meaningful measure alongside the raw object count.
type Session struct {
	ID        string    `json:"id"`
	Type      SyncType  `json:"type"`
	StartedAt time.Time `json:"started_at"`

	ObjectsProcessed int `json:"objects_processed"`
	ItemsProcessed   int `json:"items_processed"`
}

// NewSession creates a session with a fresh identifier.
func NewSession(syncType SyncType, startedAt time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Type:      syncType,
		StartedAt: startedAt,
	}
}

// Result summarizes a finished sync run.
type Result struct {
	SessionID   string    `json:"session_id"`
	Type        SyncType  `json:"type"`
	Phase       Phase     `json:"phase"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMS  int64     `json:"duration_ms"`

	TotalProcessed int `json:"total_processed"`
	Inserted       int `json:"inserted"`
	Updated        int `json:"updated"`
	Deleted        int `json:"deleted"`
	Skipped        int `json:"skipped"`

	Errors []string `json:"errors,omitempty"`
}

// Progress is a point-in-time view of a running sync. The counts reset
// at every phase transition so consumers can render per-phase progress;
// within a phase they are monotonically non-decreasing.
type Progress struct {
	SessionID        string   `json:"session_id"`
	Type             SyncType `json:"type"`
	Phase            Phase    `json:"phase"`
	ObjectsProcessed int      `json:"objects_processed"`
	ItemsProcessed   int      `json:"items_processed"`
}

// ProgressFunc receives progress updates. Called from the sync goroutine;
// implementations must not block.
type ProgressFunc func(Progress)
