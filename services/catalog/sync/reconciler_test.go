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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/catalog-sync/services/catalog"
	"github.com/AleutianAI/catalog-sync/services/catalog/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.OpenDB(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return store.NewStore(db)
}

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func item(id, name string) catalog.Object {
	return catalog.Object{
		ID: id, Type: catalog.TypeItem, UpdatedAt: testTime,
		Item: &catalog.ItemData{Name: name},
	}
}

func variation(id, itemID string) catalog.Object {
	return catalog.Object{
		ID: id, Type: catalog.TypeItemVariation, UpdatedAt: testTime,
		ItemVariation: &catalog.ItemVariationData{ItemID: itemID, Name: "Regular"},
	}
}

func deletion(id string, typ catalog.ObjectType) catalog.Object {
	return catalog.Object{
		ID: id, Type: typ, UpdatedAt: testTime, IsDeleted: true,
	}
}

func TestReconcileBatch_InsertThenUpdate(t *testing.T) {
	st := newTestStore(t)
	r := NewReconciler(st, nil)
	ctx := context.Background()

	stats, err := r.ReconcileBatch(ctx, []catalog.Object{item("item-1", "Espresso")})
	require.NoError(t, err)
	assert.Equal(t, BatchStats{Inserted: 1}, stats)

	updated := item("item-1", "Double Espresso")
	updated.UpdatedAt = testTime.Add(time.Hour)
	stats, err = r.ReconcileBatch(ctx, []catalog.Object{updated})
	require.NoError(t, err)
	assert.Equal(t, BatchStats{Updated: 1}, stats)

	got, err := st.Get(ctx, catalog.TypeItem, "item-1")
	require.NoError(t, err)
	assert.Equal(t, "Double Espresso", got.Item.Name)
}

func TestReconcileBatch_Idempotent(t *testing.T) {
	st := newTestStore(t)
	r := NewReconciler(st, nil)
	ctx := context.Background()

	batch := []catalog.Object{
		item("item-1", "Espresso"),
		variation("var-1", "item-1"),
		deletion("item-9", catalog.TypeItem),
	}

	_, err := r.ReconcileBatch(ctx, batch)
	require.NoError(t, err)
	first, err := st.Get(ctx, catalog.TypeItem, "item-1")
	require.NoError(t, err)

	// Applying the same batch again converges to the same state.
	stats, err := r.ReconcileBatch(ctx, batch)
	require.NoError(t, err)
	assert.Zero(t, stats.Inserted)
	assert.Zero(t, stats.Deleted, "repeated deletion is a no-op")

	second, err := st.Get(ctx, catalog.TypeItem, "item-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestReconcileBatch_ReverseOrderStillLinks(t *testing.T) {
	st := newTestStore(t)
	r := NewReconciler(st, nil)
	ctx := context.Background()

	// Children before parents in the wire order; the dependency sort must
	// still resolve the link within the batch.
	batch := []catalog.Object{
		variation("var-1", "item-1"),
		item("item-1", "Espresso"),
		{
			ID: "mod-1", Type: catalog.TypeModifier, UpdatedAt: testTime,
			Modifier: &catalog.ModifierData{Name: "Oat Milk", ModifierListID: "ml-1"},
		},
		{
			ID: "ml-1", Type: catalog.TypeModifierList, UpdatedAt: testTime,
			ModifierList: &catalog.ModifierListData{Name: "Milk Options"},
		},
	}

	stats, err := r.ReconcileBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Inserted)

	v, err := st.Get(ctx, catalog.TypeItemVariation, "var-1")
	require.NoError(t, err)
	assert.True(t, v.ItemVariation.ItemLinked)

	m, err := st.Get(ctx, catalog.TypeModifier, "mod-1")
	require.NoError(t, err)
	assert.True(t, m.Modifier.ListLinked)
}

func TestReconcileBatch_MissingParentTolerated(t *testing.T) {
	st := newTestStore(t)
	r := NewReconciler(st, nil)
	ctx := context.Background()

	// Parent absent from batch and mirror: child stores unlinked.
	stats, err := r.ReconcileBatch(ctx, []catalog.Object{variation("var-1", "item-later")})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Inserted)

	v, err := st.Get(ctx, catalog.TypeItemVariation, "var-1")
	require.NoError(t, err)
	assert.False(t, v.ItemVariation.ItemLinked)

	// Parent arrives, child is updated: the link resolves this time.
	_, err = r.ReconcileBatch(ctx, []catalog.Object{item("item-later", "Late Item")})
	require.NoError(t, err)

	relinked := variation("var-1", "item-later")
	relinked.UpdatedAt = testTime.Add(time.Hour)
	_, err = r.ReconcileBatch(ctx, []catalog.Object{relinked})
	require.NoError(t, err)

	v, err = st.Get(ctx, catalog.TypeItemVariation, "var-1")
	require.NoError(t, err)
	assert.True(t, v.ItemVariation.ItemLinked)
}

func TestReconcileBatch_DeletionBeatsPayload(t *testing.T) {
	st := newTestStore(t)
	r := NewReconciler(st, nil)
	ctx := context.Background()

	_, err := r.ReconcileBatch(ctx, []catalog.Object{item("item-1", "Espresso")})
	require.NoError(t, err)

	// Deletion carrying a payload still deletes.
	del := item("item-1", "Espresso")
	del.IsDeleted = true
	stats, err := r.ReconcileBatch(ctx, []catalog.Object{del})
	require.NoError(t, err)
	assert.Equal(t, BatchStats{Deleted: 1}, stats)

	got, err := st.Get(ctx, catalog.TypeItem, "item-1")
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Nil(t, got.Item)
}

func TestReconcileBatch_TombstoneWinsWithinBatch(t *testing.T) {
	st := newTestStore(t)
	r := NewReconciler(st, nil)
	ctx := context.Background()

	_, err := r.ReconcileBatch(ctx, []catalog.Object{item("item-1", "Espresso")})
	require.NoError(t, err)

	// Payload ordered after the deletion in the same batch: the staged
	// tombstone wins and the payload is dropped.
	stats, err := r.ReconcileBatch(ctx, []catalog.Object{
		deletion("item-1", catalog.TypeItem),
		item("item-1", "Espresso Renamed"),
	})
	require.NoError(t, err)
	assert.Equal(t, BatchStats{Deleted: 1, Skipped: 1}, stats)

	got, err := st.Get(ctx, catalog.TypeItem, "item-1")
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Nil(t, got.Item)

	// Same outcome with the payload first: batch position does not
	// decide, the deletion does.
	_, err = r.ReconcileBatch(ctx, []catalog.Object{item("item-2", "Latte")})
	require.NoError(t, err)
	stats, err = r.ReconcileBatch(ctx, []catalog.Object{
		item("item-2", "Latte Renamed"),
		deletion("item-2", catalog.TypeItem),
	})
	require.NoError(t, err)
	assert.Equal(t, BatchStats{Deleted: 1, Skipped: 1}, stats)

	got, err = st.Get(ctx, catalog.TypeItem, "item-2")
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)

	// A child whose parent is tombstoned in the same batch stays
	// unlinked rather than linking to a dead parent.
	_, err = r.ReconcileBatch(ctx, []catalog.Object{
		item("item-3", "Mocha"),
		deletion("item-3", catalog.TypeItem),
		variation("var-3", "item-3"),
	})
	require.NoError(t, err)
	v, err := st.Get(ctx, catalog.TypeItemVariation, "var-3")
	require.NoError(t, err)
	assert.False(t, v.ItemVariation.ItemLinked)
}

func TestReconcileBatch_DeletionOfUnknownObject(t *testing.T) {
	st := newTestStore(t)
	r := NewReconciler(st, nil)

	stats, err := r.ReconcileBatch(context.Background(), []catalog.Object{
		deletion("never-seen", catalog.TypeItem),
	})
	require.NoError(t, err)
	assert.Zero(t, stats.Deleted, "unknown deletions do not count as deletes")
}

func TestReconcileBatch_SkipsMalformedObjects(t *testing.T) {
	st := newTestStore(t)
	r := NewReconciler(st, nil)
	ctx := context.Background()

	batch := []catalog.Object{
		item("item-1", "Espresso"),
		{ID: "item-2", Type: catalog.TypeItem, UpdatedAt: testTime}, // no payload
		{ID: "odd-1", Type: "SOMETHING_NEW", UpdatedAt: testTime},   // unknown type
	}

	stats, err := r.ReconcileBatch(ctx, batch)
	require.NoError(t, err, "malformed objects never fail the batch")
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 2, stats.Skipped)

	_, err = st.Get(ctx, catalog.TypeItem, "item-2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReconcileBatch_ResurrectionCountsAsInsert(t *testing.T) {
	st := newTestStore(t)
	r := NewReconciler(st, nil)
	ctx := context.Background()

	_, err := r.ReconcileBatch(ctx, []catalog.Object{item("item-1", "Espresso")})
	require.NoError(t, err)
	_, err = r.ReconcileBatch(ctx, []catalog.Object{deletion("item-1", catalog.TypeItem)})
	require.NoError(t, err)

	back := item("item-1", "Espresso Returns")
	back.UpdatedAt = testTime.Add(time.Hour)
	stats, err := r.ReconcileBatch(ctx, []catalog.Object{back})
	require.NoError(t, err)
	assert.Equal(t, BatchStats{Inserted: 1}, stats)
}
