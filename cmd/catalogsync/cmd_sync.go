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
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/catalog-sync/pkg/ux"
	syncengine "github.com/AleutianAI/catalog-sync/services/catalog/sync"
)

var (
	syncJSON  bool
	syncPlain bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a one-shot sync and exit",
}

var syncFullCmd = &cobra.Command{
	Use:   "full",
	Short: "Replace the local mirror with the remote catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOneShotSync(syncengine.SyncFull)
	},
}

var syncIncrementalCmd = &cobra.Command{
	Use:   "incremental",
	Short: "Apply remote changes since the last sync",
	Long: `Applies remote changes since the last sync watermark. Falls back to
a full sync when the mirror has never been synced.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOneShotSync(syncengine.SyncIncremental)
	},
}

func init() {
	syncCmd.PersistentFlags().BoolVar(&syncJSON, "json", false,
		"Print the sync result as JSON")
	syncCmd.PersistentFlags().BoolVar(&syncPlain, "plain", false,
		"Disable colors and spinner (automatic when stdout is not a terminal)")
	syncCmd.AddCommand(syncFullCmd)
	syncCmd.AddCommand(syncIncrementalCmd)
}

func runOneShotSync(syncType syncengine.SyncType) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ux.Plain(syncPlain || syncJSON || !isatty.IsTerminal(os.Stdout.Fd()))

	spin := ux.NewSpinner(fmt.Sprintf("%s sync starting", syncType))
	spin.Start()
	eng, err := buildEngine(cfg, func(p syncengine.Progress) {
		spin.UpdateMessage(fmt.Sprintf("%s sync: %s, %d objects", p.Type, p.Phase, p.ObjectsProcessed))
	})
	if err != nil {
		spin.StopWithError(err.Error())
		return err
	}
	defer func() { _ = eng.close() }()

	var result syncengine.Result
	switch syncType {
	case syncengine.SyncFull:
		result, err = eng.orchestrator.PerformFullSync(ctx)
	default:
		result, err = eng.orchestrator.PerformIncrementalSync(ctx)
		if errors.Is(err, syncengine.ErrNoPreviousSync) {
			logger.Warn("no previous sync found, running a full sync instead")
			result, err = eng.orchestrator.PerformFullSync(ctx)
		}
	}
	if err != nil {
		spin.StopWithError(err.Error())
		return err
	}
	spin.Stop()

	printResult(result)
	if result.Phase == syncengine.PhaseCancelled {
		return fmt.Errorf("sync %s cancelled after %d objects", result.SessionID, result.TotalProcessed)
	}
	return nil
}

func printResult(result syncengine.Result) {
	if syncJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return
	}

	headline := fmt.Sprintf("%s sync %s in %dms (session %s)",
		result.Type, result.Phase, result.DurationMS, result.SessionID)
	switch result.Phase {
	case syncengine.PhaseCompleted:
		ux.Success(headline)
	case syncengine.PhaseCancelled:
		ux.Warning(headline)
	default:
		ux.Error(headline)
	}

	ux.Info(ux.CountLine(
		ux.CountPair{Label: "processed", Count: result.TotalProcessed},
		ux.CountPair{Label: "inserted", Count: result.Inserted},
		ux.CountPair{Label: "updated", Count: result.Updated},
		ux.CountPair{Label: "deleted", Count: result.Deleted},
		ux.CountPair{Label: "skipped", Count: result.Skipped},
	))
	for _, msg := range result.Errors {
		ux.Error(msg)
	}
}
