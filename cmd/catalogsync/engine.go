// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/AleutianAI/catalog-sync/services/catalog/config"
	"github.com/AleutianAI/catalog-sync/services/catalog/remote"
	"github.com/AleutianAI/catalog-sync/services/catalog/resilience"
	"github.com/AleutianAI/catalog-sync/services/catalog/store"
	syncengine "github.com/AleutianAI/catalog-sync/services/catalog/sync"
)

// engine bundles the wired sync stack for a command's lifetime.
type engine struct {
	store        *store.Store
	orchestrator *syncengine.Orchestrator
}

// close releases the database.
func (e *engine) close() error {
	return e.store.DB().Close()
}

// buildEngine wires store, remote client, recovery executor, and
// orchestrator from the loaded configuration. onProgress may be nil.
func buildEngine(cfg config.Config, onProgress syncengine.ProgressFunc) (*engine, error) {
	db, err := store.OpenDB(store.Config{
		Path:           cfg.Database.Path,
		SyncWrites:     cfg.Database.SyncWrites,
		GCInterval:     cfg.Database.GCInterval.Std(),
		GCDiscardRatio: 0.5,
		Logger:         logger.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	client, err := remote.NewClient(remote.Config{
		BaseURL:           cfg.Remote.BaseURL,
		AccessToken:       cfg.Remote.AccessToken,
		Timeout:           cfg.Remote.Timeout.Std(),
		PageLimit:         cfg.Remote.PageLimit,
		RequestsPerSecond: cfg.Remote.RequestsPerSecond,
	}, nil, logger.Logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create remote client: %w", err)
	}

	registry := resilience.NewRegistry(resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Recovery.FailureThreshold,
		RecoveryTimeout:  cfg.Recovery.RecoveryTimeout.Std(),
		HalfOpenMaxCalls: cfg.Recovery.HalfOpenMaxCalls,
	})
	exec := resilience.NewExecutor(registry, resilience.NewDegradationManager(),
		resilience.ExecutorConfig{
			MaxRetryAttempts: cfg.Recovery.MaxRetryAttempts,
			BaseRetryDelay:   cfg.Recovery.BaseRetryDelay.Std(),
			MaxRetryDelay:    cfg.Recovery.MaxRetryDelay.Std(),
		}, logger.Logger)

	st := store.NewStore(db)
	orch := syncengine.NewOrchestrator(st, client, exec, syncengine.Config{
		CheckpointBatchSize: cfg.Sync.CheckpointBatchSize,
		YieldInterval:       cfg.Sync.YieldInterval.Std(),
		HistoryLimit:        cfg.Sync.HistoryLimit,
		OnProgress:          onProgress,
	}, logger.Logger)

	return &engine{store: st, orchestrator: orch}, nil
}
