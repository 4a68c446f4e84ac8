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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/catalog-sync/pkg/ux"
	"github.com/AleutianAI/catalog-sync/services/catalog"
	"github.com/AleutianAI/catalog-sync/services/catalog/store"
	syncengine "github.com/AleutianAI/catalog-sync/services/catalog/sync"
)

var (
	statusJSON    bool
	statusHistory int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local mirror state and recent sync history",
	Long: `Inspects the local mirror: per-type object counts, sync watermarks,
and recent sync results. Opens the database read-only, so it works while
a serve process holds the write lock.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false,
		"Print the status as JSON")
	statusCmd.Flags().IntVar(&statusHistory, "history", 5,
		"Number of past sync results to show")
}

// mirrorStatus is the status command's output document.
type mirrorStatus struct {
	Counts          map[string]int      `json:"counts"`
	TotalObjects    int                 `json:"total_objects"`
	LatestUpdatedAt *time.Time          `json:"latest_updated_at,omitempty"`
	LastFullSync    *time.Time          `json:"last_full_sync,omitempty"`
	History         []syncengine.Result `json:"history,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	ux.Plain(statusJSON || !isatty.IsTerminal(os.Stdout.Fd()))

	db, err := store.OpenDB(store.Config{
		Path:     cfg.Database.Path,
		ReadOnly: true,
		Logger:   logger.Logger,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()
	st := store.NewStore(db)

	counts, err := st.CountByType(ctx)
	if err != nil {
		return fmt.Errorf("count objects: %w", err)
	}
	status := mirrorStatus{Counts: make(map[string]int, len(counts))}
	for typ, n := range counts {
		status.Counts[string(typ)] = n
		status.TotalObjects += n
	}

	if t, err := st.LatestUpdatedAt(ctx); err == nil {
		status.LatestUpdatedAt = &t
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if t, err := st.LastFullSync(ctx); err == nil {
		status.LastFullSync = &t
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if statusHistory > 0 {
		raw, err := st.ListSyncSummaries(ctx, statusHistory)
		if err != nil {
			return fmt.Errorf("list sync history: %w", err)
		}
		for _, data := range raw {
			var r syncengine.Result
			if err := json.Unmarshal(data, &r); err != nil {
				continue
			}
			status.History = append(status.History, r)
		}
	}

	printStatus(status)
	return nil
}

func printStatus(status mirrorStatus) {
	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(status)
		return
	}

	ux.Title("Mirror")
	pairs := make([]ux.CountPair, 0, len(catalog.AllTypes)+1)
	for _, typ := range catalog.AllTypes {
		pairs = append(pairs, ux.CountPair{Label: string(typ), Count: status.Counts[string(typ)]})
	}
	pairs = append(pairs, ux.CountPair{Label: "total", Count: status.TotalObjects})
	ux.Info(ux.CountLine(pairs...))

	if status.LastFullSync != nil {
		ux.Info("last full sync: " + status.LastFullSync.Local().Format(time.RFC3339))
	} else {
		ux.Warning("never fully synced")
	}
	if status.LatestUpdatedAt != nil {
		ux.Info("newest object:  " + status.LatestUpdatedAt.Local().Format(time.RFC3339))
	}

	if len(status.History) > 0 {
		ux.Title("Recent syncs")
		for _, r := range status.History {
			line := fmt.Sprintf("%s %-11s %-9s %d objects in %dms",
				r.StartedAt.Local().Format(time.RFC3339), r.Type, r.Phase,
				r.TotalProcessed, r.DurationMS)
			switch r.Phase {
			case syncengine.PhaseCompleted:
				ux.Success(line)
			case syncengine.PhaseCancelled:
				ux.Warning(line)
			default:
				ux.Error(line)
			}
		}
	}
}
