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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/catalog-sync/services/catalog"
	"github.com/AleutianAI/catalog-sync/services/catalog/store"
)

// BatchStats tallies the outcome of one reconciled batch.
type BatchStats struct {
	Inserted int
	Updated  int
	Deleted  int
	Skipped  int
}

// add accumulates another batch's stats.
func (s *BatchStats) add(other BatchStats) {
	s.Inserted += other.Inserted
	s.Updated += other.Updated
	s.Deleted += other.Deleted
	s.Skipped += other.Skipped
}

// Total returns the number of objects that produced a write.
func (s BatchStats) Total() int {
	return s.Inserted + s.Updated + s.Deleted
}

// Reconciler applies batches of remote objects to the local mirror.
//
// Reconciliation is idempotent: applying the same batch twice yields the
// same mirror state. Each batch commits in one store transaction, so a
// crash mid-batch leaves the mirror at the previous batch boundary.
//
// Thread Safety: Safe for concurrent use, though the orchestrator
// serializes calls in practice.
type Reconciler struct {
	store  *store.Store
	logger *slog.Logger
}

// NewReconciler creates a reconciler over the local mirror.
func NewReconciler(st *store.Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:  st,
		logger: logger.With(slog.String("component", "reconciler")),
	}
}

// ReconcileBatch applies one batch of remote objects.
//
// Description:
//
//	Objects are sorted into dependency order so parents reconcile before
//	children. For each object, the deletion flag is checked first: a
//	deletion tombstones the local record regardless of payload, and a
//	deletion anywhere in the batch supersedes any payload for the same
//	ID in that batch, whichever arrived first. Live objects without
//	their typed payload are skipped with a warning rather than failing
//	the batch. Everything else is fully replaced (insert or update),
//	with parent links for variations and modifiers resolved against the
//	batch and the mirror.
//
//	All writes, the updated-at watermark, and any batch options commit
//	in a single transaction.
//
// Inputs:
//
//	ctx - Cancellation context.
//	objects - Remote objects in arbitrary order.
//	opts - Store batch options, e.g. committing the full-sync marker
//	  with the final batch.
//
// Outputs:
//
//	BatchStats - Per-outcome tallies.
//	error - Non-nil only on storage failure; malformed objects are
//	  counted as skipped, never fatal.
func (r *Reconciler) ReconcileBatch(ctx context.Context, objects []catalog.Object, opts ...store.BatchOption) (BatchStats, error) {
	var stats BatchStats

	sorted := catalog.SortByDependency(objects)

	// IDs tombstoned anywhere in this batch. A staged tombstone wins over
	// any payload for the same ID regardless of arrival order.
	tombstoned := make(map[catalog.ObjectType]map[string]bool)
	for _, obj := range sorted {
		if !obj.IsDeleted {
			continue
		}
		if tombstoned[obj.Type] == nil {
			tombstoned[obj.Type] = make(map[string]bool)
		}
		tombstoned[obj.Type][obj.ID] = true
	}

	// IDs present in this batch, so a child can link to a parent that
	// commits in the same transaction.
	inBatch := make(map[catalog.ObjectType]map[string]bool)
	for _, obj := range sorted {
		if obj.IsDeleted || tombstoned[obj.Type][obj.ID] {
			continue
		}
		if inBatch[obj.Type] == nil {
			inBatch[obj.Type] = make(map[string]bool)
		}
		inBatch[obj.Type][obj.ID] = true
	}

	writes := make([]catalog.Object, 0, len(sorted))
	for _, obj := range sorted {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		// Deletion wins over everything else, payload or not.
		if obj.IsDeleted {
			deleted, err := r.tombstone(ctx, obj, &writes)
			if err != nil {
				return stats, err
			}
			if deleted {
				stats.Deleted++
			}
			continue
		}

		if tombstoned[obj.Type][obj.ID] {
			r.logger.Debug("payload superseded by deletion in same batch",
				slog.String("id", obj.ID),
				slog.String("type", string(obj.Type)),
			)
			stats.Skipped++
			continue
		}

		if err := obj.Validate(); err != nil {
			r.logger.Warn("skipping malformed object",
				slog.String("id", obj.ID),
				slog.String("type", string(obj.Type)),
				slog.String("reason", err.Error()),
			)
			stats.Skipped++
			continue
		}

		r.resolveParentLink(ctx, &obj, inBatch)

		existing, err := r.store.Get(ctx, obj.Type, obj.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			stats.Inserted++
		case err != nil:
			return stats, fmt.Errorf("lookup %s/%s: %w", obj.Type, obj.ID, err)
		case existing.IsDeleted:
			// Resurrection of a tombstoned object counts as an insert.
			stats.Inserted++
		default:
			stats.Updated++
		}

		writes = append(writes, obj)
	}

	if err := r.store.UpsertBatch(ctx, writes, opts...); err != nil {
		return stats, fmt.Errorf("commit batch: %w", err)
	}
	return stats, nil
}

// tombstone stages a deletion write. Returns true when a live object was
// actually deleted; repeat deletions and unknown IDs are no-ops for the
// stats but still write the tombstone record so the state converges.
func (r *Reconciler) tombstone(ctx context.Context, obj catalog.Object, writes *[]catalog.Object) (bool, error) {
	existing, err := r.store.Get(ctx, obj.Type, obj.ID)
	wasLive := false
	switch {
	case errors.Is(err, store.ErrNotFound):
		r.logger.Debug("deletion for unknown object",
			slog.String("id", obj.ID),
			slog.String("type", string(obj.Type)),
		)
	case err != nil:
		return false, fmt.Errorf("lookup %s/%s: %w", obj.Type, obj.ID, err)
	default:
		wasLive = !existing.IsDeleted
	}

	deletedAt := obj.UpdatedAt
	if deletedAt.IsZero() {
		deletedAt = time.Now().UTC()
	}
	*writes = append(*writes, catalog.Object{
		ID:        obj.ID,
		Type:      obj.Type,
		UpdatedAt: deletedAt,
		Version:   obj.Version,
		IsDeleted: true,
	})
	return wasLive, nil
}

// resolveParentLink re-resolves the parent reference for child types.
// Absence is tolerated: the parent may arrive in a later batch, and the
// link is re-attempted on the child's next observed update.
func (r *Reconciler) resolveParentLink(ctx context.Context, obj *catalog.Object, inBatch map[catalog.ObjectType]map[string]bool) {
	parentID, hasParent := obj.ParentID()
	if !hasParent {
		return
	}
	parentType, _ := obj.ParentType()

	linked := false
	if parentID != "" {
		if inBatch[parentType][parentID] {
			linked = true
		} else {
			parent, err := r.store.Get(ctx, parentType, parentID)
			linked = err == nil && !parent.IsDeleted
		}
		if !linked {
			r.logger.Debug("parent not present yet, leaving unlinked",
				slog.String("id", obj.ID),
				slog.String("type", string(obj.Type)),
				slog.String("parent_id", parentID),
			)
		}
	}

	switch obj.Type {
	case catalog.TypeItemVariation:
		obj.ItemVariation.ItemLinked = linked
	case catalog.TypeModifier:
		obj.Modifier.ListLinked = linked
	}
}
