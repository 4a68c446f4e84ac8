// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/catalog-sync/services/catalog"
)

// Key layout:
//
//	obj/<TYPE>/<id>          JSON-encoded catalog.Object
//	meta/latest_updated_at   RFC3339Nano watermark across all objects
//	meta/last_full_sync      RFC3339Nano completion time of the last full sync
//	meta/checkpoint          opaque resume checkpoint owned by the sync engine
//	hist/<key>               opaque sync summaries, keyed chronologically
const (
	objPrefix  = "obj/"
	histPrefix = "hist/"

	metaLatestUpdatedAt = "meta/latest_updated_at"
	metaLastFullSync    = "meta/last_full_sync"
	metaCheckpoint      = "meta/checkpoint"
)

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("not found")
)

// Store is the local catalog mirror.
//
// All mutations go through BadgerDB transactions; a batch and its
// watermark updates commit or roll back together.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db *DB
}

// NewStore creates a store over an open database.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying database for lifecycle management.
func (s *Store) DB() *DB { return s.db }

func objKey(typ catalog.ObjectType, id string) []byte {
	return []byte(objPrefix + string(typ) + "/" + id)
}

// -----------------------------------------------------------------------------
// Objects
// -----------------------------------------------------------------------------

// BatchOption configures an UpsertBatch commit.
type BatchOption func(*batchOptions)

type batchOptions struct {
	lastFullSync    time.Time
	setLastFullSync bool
}

// WithLastFullSync commits the last-full-sync watermark in the same
// transaction as the batch. Used for the final batch of a full sync so
// the watermark never observes a partially applied catalog.
func WithLastFullSync(t time.Time) BatchOption {
	return func(o *batchOptions) {
		o.lastFullSync = t
		o.setLastFullSync = true
	}
}

// Upsert writes a single object, replacing any existing version.
func (s *Store) Upsert(ctx context.Context, obj catalog.Object) error {
	return s.UpsertBatch(ctx, []catalog.Object{obj})
}

// UpsertBatch writes a batch of objects in one transaction.
//
// Description:
//
//	Every object is fully replaced (no field merging). The
//	latest-updated-at watermark advances to the maximum UpdatedAt in the
//	batch if that exceeds the stored value. The whole batch, the
//	watermark, and any WithLastFullSync marker commit atomically.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) UpsertBatch(ctx context.Context, objects []catalog.Object, opts ...BatchOption) error {
	var o batchOptions
	for _, opt := range opts {
		opt(&o)
	}
	if len(objects) == 0 && !o.setLastFullSync {
		return nil
	}

	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		var maxUpdated time.Time
		for _, obj := range objects {
			data, err := json.Marshal(obj)
			if err != nil {
				return fmt.Errorf("marshal object %s: %w", obj.ID, err)
			}
			if err := txn.Set(objKey(obj.Type, obj.ID), data); err != nil {
				return fmt.Errorf("set object %s: %w", obj.ID, err)
			}
			if obj.UpdatedAt.After(maxUpdated) {
				maxUpdated = obj.UpdatedAt
			}
		}

		if !maxUpdated.IsZero() {
			if err := advanceWatermark(txn, metaLatestUpdatedAt, maxUpdated); err != nil {
				return err
			}
		}

		if o.setLastFullSync {
			if err := setTime(txn, metaLastFullSync, o.lastFullSync); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get fetches one object. Returns ErrNotFound if the key does not exist.
func (s *Store) Get(ctx context.Context, typ catalog.ObjectType, id string) (catalog.Object, error) {
	var obj catalog.Object
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(objKey(typ, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("object %s/%s: %w", typ, id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get object %s/%s: %w", typ, id, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &obj)
		})
	})
	return obj, err
}

// Tombstone marks an object deleted, clearing its payload but keeping the
// key so repeated deletions stay idempotent. Unknown objects get a bare
// tombstone record.
func (s *Store) Tombstone(ctx context.Context, typ catalog.ObjectType, id string, deletedAt time.Time) error {
	obj := catalog.Object{
		ID:        id,
		Type:      typ,
		UpdatedAt: deletedAt,
		IsDeleted: true,
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("marshal tombstone %s: %w", id, err)
	}

	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set(objKey(typ, id), data); err != nil {
			return fmt.Errorf("set tombstone %s: %w", id, err)
		}
		if !deletedAt.IsZero() {
			return advanceWatermark(txn, metaLatestUpdatedAt, deletedAt)
		}
		return nil
	})
}

// ListByType returns all live (non-tombstoned) objects of one type.
func (s *Store) ListByType(ctx context.Context, typ catalog.ObjectType) ([]catalog.Object, error) {
	var out []catalog.Object
	prefix := []byte(objPrefix + string(typ) + "/")

	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var obj catalog.Object
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &obj)
			})
			if err != nil {
				return fmt.Errorf("decode object %s: %w", it.Item().Key(), err)
			}
			if !obj.IsDeleted {
				out = append(out, obj)
			}
		}
		return nil
	})
	return out, err
}

// CountByType returns live object counts per type. Used by the status
// endpoint.
func (s *Store) CountByType(ctx context.Context) (map[catalog.ObjectType]int, error) {
	counts := make(map[catalog.ObjectType]int)
	prefix := []byte(objPrefix)

	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var obj catalog.Object
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &obj)
			})
			if err != nil {
				return fmt.Errorf("decode object %s: %w", it.Item().Key(), err)
			}
			if !obj.IsDeleted {
				counts[obj.Type]++
			}
		}
		return nil
	})
	return counts, err
}

// ClearAll drops every object and the latest-updated-at watermark. The
// last-full-sync marker and the sync history survive; a full sync resets
// the mirror, not the engine's memory of past runs.
func (s *Store) ClearAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if err := s.db.DropPrefix([]byte(objPrefix)); err != nil {
		return fmt.Errorf("drop objects: %w", err)
	}
	if err := s.db.DropPrefix([]byte(metaLatestUpdatedAt)); err != nil {
		return fmt.Errorf("drop watermark: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Watermarks
// -----------------------------------------------------------------------------

// LatestUpdatedAt returns the newest UpdatedAt seen across all stored
// objects, or ErrNotFound when nothing has been stored.
func (s *Store) LatestUpdatedAt(ctx context.Context) (time.Time, error) {
	return s.getTime(ctx, metaLatestUpdatedAt)
}

// LastFullSync returns when the last full sync completed, or ErrNotFound
// when no full sync has ever completed.
func (s *Store) LastFullSync(ctx context.Context) (time.Time, error) {
	return s.getTime(ctx, metaLastFullSync)
}

// SetLastFullSync records the completion time of a full sync.
func (s *Store) SetLastFullSync(ctx context.Context, t time.Time) error {
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return setTime(txn, metaLastFullSync, t)
	})
}

func (s *Store) getTime(ctx context.Context, key string) (time.Time, error) {
	var out time.Time
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		return item.Value(func(val []byte) error {
			t, err := time.Parse(time.RFC3339Nano, string(val))
			if err != nil {
				return fmt.Errorf("parse %s: %w", key, err)
			}
			out = t
			return nil
		})
	})
	return out, err
}

func setTime(txn *badger.Txn, key string, t time.Time) error {
	if err := txn.Set([]byte(key), []byte(t.UTC().Format(time.RFC3339Nano))); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// advanceWatermark moves a time key forward, never backward.
func advanceWatermark(txn *badger.Txn, key string, t time.Time) error {
	item, err := txn.Get([]byte(key))
	if err == nil {
		var current time.Time
		verr := item.Value(func(val []byte) error {
			current, err = time.Parse(time.RFC3339Nano, string(val))
			return err
		})
		if verr == nil && !t.After(current) {
			return nil
		}
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return setTime(txn, key, t)
}

// -----------------------------------------------------------------------------
// Checkpoint
// -----------------------------------------------------------------------------

// SaveCheckpoint stores the opaque resume checkpoint.
func (s *Store) SaveCheckpoint(ctx context.Context, data []byte) error {
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set([]byte(metaCheckpoint), data); err != nil {
			return fmt.Errorf("set checkpoint: %w", err)
		}
		return nil
	})
}

// LoadCheckpoint returns the stored checkpoint, or ErrNotFound.
func (s *Store) LoadCheckpoint(ctx context.Context) ([]byte, error) {
	var out []byte
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaCheckpoint))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("checkpoint: %w", ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get checkpoint: %w", err)
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

// ClearCheckpoint removes the checkpoint. Missing is not an error.
func (s *Store) ClearCheckpoint(ctx context.Context) error {
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		err := txn.Delete([]byte(metaCheckpoint))
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete checkpoint: %w", err)
		}
		return nil
	})
}

// -----------------------------------------------------------------------------
// Sync history
// -----------------------------------------------------------------------------

// SaveSyncSummary stores an opaque sync summary under a caller-chosen
// chronological key (the sync engine uses start time plus session ID).
func (s *Store) SaveSyncSummary(ctx context.Context, key string, data []byte) error {
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set([]byte(histPrefix+key), data); err != nil {
			return fmt.Errorf("set sync summary %s: %w", key, err)
		}
		return nil
	})
}

// ListSyncSummaries returns up to limit summaries, newest first.
func (s *Store) ListSyncSummaries(ctx context.Context, limit int) ([][]byte, error) {
	var out [][]byte
	prefix := []byte(histPrefix)

	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks past the end of the prefix range.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read sync summary %s: %w", it.Item().Key(), err)
			}
			out = append(out, data)
		}
		return nil
	})
	return out, err
}
