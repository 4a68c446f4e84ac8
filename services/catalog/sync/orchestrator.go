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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/catalog-sync/services/catalog"
	"github.com/AleutianAI/catalog-sync/services/catalog/remote"
	"github.com/AleutianAI/catalog-sync/services/catalog/resilience"
	"github.com/AleutianAI/catalog-sync/services/catalog/store"
)

// Operation identifiers for breaker and retry bookkeeping.
const (
	opListPage       = "remote.list_page"
	opClearMirror    = "store.clear"
	opReconcileBatch = "store.reconcile_batch"
)

var (
	// ErrSyncInProgress is returned when a sync is requested while
	// another run holds the single-flight guard.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrNoPreviousSync is returned by an incremental sync when no full
	// sync has ever completed; the caller should run a full sync first.
	ErrNoPreviousSync = errors.New("no previous sync to increment from")
)

// RemoteLister pages the upstream catalog. Satisfied by *remote.Client.
type RemoteLister interface {
	ListPage(ctx context.Context, cursor string, changedSince time.Time) (remote.Page, error)
}

// Config tunes the orchestrator.
type Config struct {
	// CheckpointBatchSize is how many objects commit per batch before a
	// checkpoint is written (default: 100).
	CheckpointBatchSize int

	// YieldInterval is an optional pause between batches so a long sync
	// cooperates with other work on the host. 0 disables it.
	YieldInterval time.Duration

	// HistoryLimit caps stored sync summaries returned by History
	// (default: 50).
	HistoryLimit int

	// OnProgress receives progress updates. Optional; must not block.
	OnProgress ProgressFunc
}

// DefaultConfig returns orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		CheckpointBatchSize: 100,
		HistoryLimit:        50,
	}
}

// checkpoint is the resume point persisted after every committed batch.
// Cursor is the fetch cursor of the page being processed and Offset the
// number of its objects already committed, so a run interrupted between
// batches of one page resumes inside that page rather than past it.
// After a page's last batch, the checkpoint advances to the next page's
// cursor with a zero offset.
type checkpoint struct {
	SessionID        string    `json:"session_id"`
	Type             SyncType  `json:"type"`
	Cursor           string    `json:"cursor"`
	Offset           int       `json:"offset"`
	ObjectsProcessed int       `json:"objects_processed"`
	ItemsProcessed   int       `json:"items_processed"`
	Since            time.Time `json:"since,omitempty"`
	StartedAt        time.Time `json:"started_at"`
}

// Status is a point-in-time view of the engine for the status endpoint.
type Status struct {
	Running    bool                                        `json:"running"`
	Progress   Progress                                    `json:"progress"`
	LastResult *Result                                     `json:"last_result,omitempty"`
	Breakers   map[string]resilience.CircuitBreakerMetrics `json:"breakers"`
	Retries    map[string]resilience.RetryStats            `json:"retries"`
}

// Orchestrator runs catalog syncs.
//
// At most one sync runs at a time; concurrent requests fail fast with
// ErrSyncInProgress. A run pages the remote listing, reconciles each page
// through the recovery executor, checkpoints after every committed batch,
// and can be cancelled cooperatively between batches. A cancelled or
// failed run resumes from its checkpoint on the next request of the same
// type.
//
// Thread Safety: Safe for concurrent use.
type Orchestrator struct {
	store      *store.Store
	remote     RemoteLister
	reconciler *Reconciler
	exec       *resilience.Executor
	config     Config
	logger     *slog.Logger
	tracer     trace.Tracer

	running atomic.Bool

	mu         stdsync.Mutex
	progress   Progress
	cancelRun  context.CancelFunc
	lastResult *Result
}

// NewOrchestrator wires the sync engine together.
func NewOrchestrator(st *store.Store, rl RemoteLister, exec *resilience.Executor, config Config, logger *slog.Logger) *Orchestrator {
	if config.CheckpointBatchSize <= 0 {
		config.CheckpointBatchSize = 100
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:      st,
		remote:     rl,
		reconciler: NewReconciler(st, logger),
		exec:       exec,
		config:     config,
		logger:     logger.With(slog.String("component", "sync_orchestrator")),
		tracer:     otel.Tracer("catalog-sync/sync"),
		progress:   Progress{Phase: PhaseIdle},
	}
}

// PerformFullSync replaces the local mirror with the remote catalog.
//
// Description:
//
//	Clears the mirror, then pages and reconciles the full listing. The
//	last-full-sync marker commits in the same transaction as the final
//	batch, so an interrupted run never claims completion. If a full-sync
//	checkpoint exists from an interrupted run, the listing resumes from
//	its recorded page position (refetching a partially committed page
//	and skipping the committed prefix) and the mirror is not re-cleared.
//
// Outputs:
//
//	Result - Run summary. Phase is Completed or Cancelled.
//	error - ErrSyncInProgress if another run is active, or the terminal
//	  failure that ended the run.
func (o *Orchestrator) PerformFullSync(ctx context.Context) (Result, error) {
	return o.run(ctx, SyncFull)
}

// PerformIncrementalSync applies changes since the stored watermark.
//
// Returns ErrNoPreviousSync when no full sync has ever completed.
func (o *Orchestrator) PerformIncrementalSync(ctx context.Context) (Result, error) {
	return o.run(ctx, SyncIncremental)
}

// CancelSync requests cooperative cancellation of the running sync.
// Returns false when nothing is running. The run stops at the next batch
// boundary; committed batches stay committed.
func (o *Orchestrator) CancelSync() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancelRun == nil {
		return false
	}
	o.cancelRun()
	return true
}

// Status returns the engine state for the status endpoint.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{
		Running:    o.running.Load(),
		Progress:   o.progress,
		LastResult: o.lastResult,
		Breakers:   o.exec.Registry().BreakerMetrics(),
		Retries:    o.exec.Registry().RetryStats(),
	}
}

// History returns stored sync summaries, newest first.
func (o *Orchestrator) History(ctx context.Context, limit int) ([]Result, error) {
	if limit <= 0 || limit > o.config.HistoryLimit {
		limit = o.config.HistoryLimit
	}
	raw, err := o.store.ListSyncSummaries(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync history: %w", err)
	}
	out := make([]Result, 0, len(raw))
	for _, data := range raw {
		var r Result
		if err := json.Unmarshal(data, &r); err != nil {
			o.logger.Warn("skipping undecodable sync summary", slog.String("error", err.Error()))
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Run loop
// -----------------------------------------------------------------------------

func (o *Orchestrator) run(parent context.Context, syncType SyncType) (Result, error) {
	if !o.running.CompareAndSwap(false, true) {
		return Result{}, ErrSyncInProgress
	}
	defer o.running.Store(false)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	o.mu.Lock()
	o.cancelRun = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.cancelRun = nil
		o.progress = Progress{Phase: PhaseIdle}
		o.mu.Unlock()
	}()

	ctx, span := o.tracer.Start(ctx, "catalog.sync",
		trace.WithAttributes(attribute.String("sync.type", string(syncType))))
	defer span.End()

	startedAt := time.Now().UTC()
	session := NewSession(syncType, startedAt)
	syncsInProgress.Inc()
	defer syncsInProgress.Dec()

	o.logger.Info("sync started",
		slog.String("session_id", session.ID),
		slog.String("type", string(syncType)),
	)

	result, err := o.execute(ctx, session)
	result.SessionID = session.ID
	result.Type = syncType
	result.StartedAt = startedAt
	result.CompletedAt = time.Now().UTC()
	result.DurationMS = result.CompletedAt.Sub(startedAt).Milliseconds()

	if err != nil {
		result.Phase = PhaseFailed
		result.Errors = append(result.Errors, err.Error())
		span.RecordError(err)
	}

	syncRunsTotal.WithLabelValues(string(syncType), string(result.Phase)).Inc()
	syncDuration.WithLabelValues(string(syncType)).Observe(float64(result.DurationMS) / 1000)

	o.setPhase(session, result.Phase)
	o.saveSummary(result)

	o.mu.Lock()
	o.lastResult = &result
	o.mu.Unlock()

	o.logger.Info("sync finished",
		slog.String("session_id", session.ID),
		slog.String("phase", string(result.Phase)),
		slog.Int("processed", result.TotalProcessed),
		slog.Int("inserted", result.Inserted),
		slog.Int("updated", result.Updated),
		slog.Int("deleted", result.Deleted),
		slog.Int("skipped", result.Skipped),
	)
	return result, err
}

// execute runs the phases and returns a partially filled Result. The
// caller stamps identity, timing, and failure details.
func (o *Orchestrator) execute(ctx context.Context, session *Session) (Result, error) {
	var result Result
	var stats BatchStats

	o.setPhase(session, PhaseInitializing)

	cursor := ""
	pageOffset := 0
	var since time.Time
	resuming := false

	cp, err := o.loadCheckpoint(ctx, session.Type)
	switch {
	case err == nil:
		cursor = cp.Cursor
		pageOffset = cp.Offset
		since = cp.Since
		session.ObjectsProcessed = cp.ObjectsProcessed
		session.ItemsProcessed = cp.ItemsProcessed
		resuming = true
		o.logger.Info("resuming from checkpoint",
			slog.String("session_id", session.ID),
			slog.String("interrupted_session_id", cp.SessionID),
			slog.Int("objects_processed", cp.ObjectsProcessed),
		)
	case !errors.Is(err, store.ErrNotFound):
		return result, err
	}

	if session.Type == SyncIncremental && !resuming {
		since, err = o.incrementalWatermark(ctx)
		if err != nil {
			return result, err
		}
	}

	if session.Type == SyncFull && !resuming {
		o.setPhase(session, PhaseClearing)
		err := o.exec.Do(ctx, opClearMirror, func(ctx context.Context) error {
			return o.store.ClearAll(ctx)
		})
		if err != nil {
			return result, fmt.Errorf("clear mirror: %w", err)
		}
	}

	o.setPhase(session, PhaseDownloading)

	for {
		if err := ctx.Err(); err != nil {
			result.Phase = PhaseCancelled
			o.fillStats(&result, stats, session)
			o.logger.Info("sync cancelled at batch boundary",
				slog.String("session_id", session.ID),
				slog.Int("objects_processed", session.ObjectsProcessed),
			)
			return result, nil
		}

		page, err := resilience.Execute(ctx, o.exec, opListPage,
			func(ctx context.Context) (remote.Page, error) {
				return o.remote.ListPage(ctx, cursor, since)
			})
		if err != nil {
			if ctx.Err() != nil {
				result.Phase = PhaseCancelled
				o.fillStats(&result, stats, session)
				return result, nil
			}
			o.fillStats(&result, stats, session)
			return result, fmt.Errorf("fetch catalog page: %w", err)
		}

		o.setPhase(session, PhaseProcessing)

		finalPage := page.Cursor == ""

		// On a mid-page resume the first pageOffset objects were already
		// committed by the interrupted run.
		objects := page.Objects
		if pageOffset > 0 {
			if pageOffset > len(objects) {
				o.logger.Warn("checkpoint offset beyond refetched page, clamping",
					slog.Int("offset", pageOffset),
					slog.Int("page_size", len(objects)),
				)
				pageOffset = len(objects)
			}
			objects = objects[pageOffset:]
		}
		committed := pageOffset
		pageOffset = 0

		for _, batch := range splitBatches(objects, o.config.CheckpointBatchSize) {
			var opts []store.BatchOption
			if finalPage && batch.last && session.Type == SyncFull {
				opts = append(opts, store.WithLastFullSync(time.Now().UTC()))
			}

			batchStats, err := resilience.Execute(ctx, o.exec, opReconcileBatch,
				func(ctx context.Context) (BatchStats, error) {
					return o.reconciler.ReconcileBatch(ctx, batch.objects, opts...)
				})
			if err != nil {
				if ctx.Err() != nil {
					result.Phase = PhaseCancelled
					o.fillStats(&result, stats, session)
					return result, nil
				}
				o.fillStats(&result, stats, session)
				return result, fmt.Errorf("reconcile batch: %w", err)
			}

			stats.add(batchStats)
			session.ObjectsProcessed += len(batch.objects)
			session.ItemsProcessed += countItems(batch.objects)
			recordBatchMetrics(session.Type, batchStats)

			committed += len(batch.objects)
			cpCursor, cpOffset := cursor, committed
			if batch.last {
				// Page done; resume after it.
				cpCursor, cpOffset = page.Cursor, 0
			}
			if err := o.saveCheckpoint(ctx, session, cpCursor, cpOffset, since); err != nil {
				o.logger.Warn("checkpoint write failed",
					slog.String("session_id", session.ID),
					slog.String("error", err.Error()),
				)
			}
			o.emitProgress(session)

			if o.config.YieldInterval > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(o.config.YieldInterval):
				}
			}
		}

		if finalPage {
			break
		}
		cursor = page.Cursor
		o.setPhase(session, PhaseDownloading)
	}

	if err := o.store.ClearCheckpoint(ctx); err != nil {
		o.logger.Warn("checkpoint clear failed", slog.String("error", err.Error()))
	}

	result.Phase = PhaseCompleted
	o.fillStats(&result, stats, session)
	return result, nil
}

// incrementalWatermark picks the change cutoff for an incremental run:
// the newest stored object, falling back to the last full sync.
func (o *Orchestrator) incrementalWatermark(ctx context.Context) (time.Time, error) {
	if t, err := o.store.LatestUpdatedAt(ctx); err == nil {
		return t, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return time.Time{}, err
	}
	t, err := o.store.LastFullSync(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return time.Time{}, ErrNoPreviousSync
	}
	return t, err
}

func (o *Orchestrator) fillStats(result *Result, stats BatchStats, session *Session) {
	result.TotalProcessed = session.ObjectsProcessed
	result.Inserted = stats.Inserted
	result.Updated = stats.Updated
	result.Deleted = stats.Deleted
	result.Skipped = stats.Skipped
}

func (o *Orchestrator) loadCheckpoint(ctx context.Context, syncType SyncType) (checkpoint, error) {
	var cp checkpoint
	data, err := o.store.LoadCheckpoint(ctx)
	if err != nil {
		return cp, err
	}
	if err := json.Unmarshal(data, &cp); err != nil {
		// A corrupt checkpoint is dropped, not fatal.
		o.logger.Warn("discarding corrupt checkpoint", slog.String("error", err.Error()))
		_ = o.store.ClearCheckpoint(ctx)
		return cp, store.ErrNotFound
	}
	if cp.Type != syncType {
		// A checkpoint from the other sync type does not apply.
		return cp, store.ErrNotFound
	}
	return cp, nil
}

func (o *Orchestrator) saveCheckpoint(ctx context.Context, session *Session, cursor string, offset int, since time.Time) error {
	data, err := json.Marshal(checkpoint{
		SessionID:        session.ID,
		Type:             session.Type,
		Cursor:           cursor,
		Offset:           offset,
		ObjectsProcessed: session.ObjectsProcessed,
		ItemsProcessed:   session.ItemsProcessed,
		Since:            since,
		StartedAt:        session.StartedAt,
	})
	if err != nil {
		return err
	}
	// Checkpoint writes survive cancellation: use a fresh context so a
	// cancelled run still records its resume point.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return o.store.SaveCheckpoint(saveCtx, data)
}

func (o *Orchestrator) saveSummary(result Result) {
	data, err := json.Marshal(result)
	if err != nil {
		o.logger.Warn("sync summary marshal failed", slog.String("error", err.Error()))
		return
	}
	key := result.StartedAt.Format(time.RFC3339Nano) + "/" + result.SessionID
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.store.SaveSyncSummary(ctx, key, data); err != nil {
		o.logger.Warn("sync summary write failed", slog.String("error", err.Error()))
	}
}

// setPhase records a phase transition, resetting per-phase progress.
func (o *Orchestrator) setPhase(session *Session, phase Phase) {
	o.mu.Lock()
	o.progress = Progress{
		SessionID: session.ID,
		Type:      session.Type,
		Phase:     phase,
	}
	p := o.progress
	o.mu.Unlock()

	if o.config.OnProgress != nil {
		o.config.OnProgress(p)
	}
}

// emitProgress publishes the committed counts within a phase.
func (o *Orchestrator) emitProgress(session *Session) {
	o.mu.Lock()
	o.progress.ObjectsProcessed = session.ObjectsProcessed
	o.progress.ItemsProcessed = session.ItemsProcessed
	p := o.progress
	o.mu.Unlock()

	if o.config.OnProgress != nil {
		o.config.OnProgress(p)
	}
}

type objectBatch struct {
	objects []catalog.Object
	last    bool
}

func countItems(objects []catalog.Object) int {
	n := 0
	for _, obj := range objects {
		if obj.Type == catalog.TypeItem {
			n++
		}
	}
	return n
}

// splitBatches chunks a page into checkpoint-sized batches. The final
// chunk is marked so full-sync completion can commit with it.
func splitBatches(objects []catalog.Object, size int) []objectBatch {
	if len(objects) == 0 {
		return []objectBatch{{objects: nil, last: true}}
	}
	var out []objectBatch
	for start := 0; start < len(objects); start += size {
		end := start + size
		if end > len(objects) {
			end = len(objects)
		}
		out = append(out, objectBatch{objects: objects[start:end]})
	}
	out[len(out)-1].last = true
	return out
}
