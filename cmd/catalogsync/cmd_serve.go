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
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/catalog-sync/services/catalog/server"
	syncengine "github.com/AleutianAI/catalog-sync/services/catalog/sync"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the catalog sync HTTP API",
	Long: `Runs the HTTP API for triggering and observing syncs.

Endpoints:
  POST /v1/sync/full          Start a full sync
  POST /v1/sync/incremental   Start an incremental sync
  POST /v1/sync/cancel        Cancel the running sync
  GET  /v1/sync/status        Engine status and breaker state
  GET  /v1/sync/history       Past sync summaries
  GET  /metrics               Prometheus metrics
  GET  /health                Liveness check

When sync.auto_sync_interval is configured, incremental syncs also run
periodically in the background.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"Listen address (overrides server.addr from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(cfg, nil)
	if err != nil {
		return err
	}
	defer func() { _ = eng.close() }()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv := server.New(ctx, eng.orchestrator, logger.Logger)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
		defer cancel()
		eng.orchestrator.CancelSync()
		return httpServer.Shutdown(shutdownCtx)
	})

	if interval := cfg.Sync.AutoSyncInterval.Std(); interval > 0 {
		g.Go(func() error {
			runAutoSync(gctx, eng.orchestrator, interval)
			return nil
		})
	}

	return g.Wait()
}

// runAutoSync triggers periodic incremental syncs. Conflicts with a
// manually started run and missing prior syncs are expected and only
// logged.
func runAutoSync(ctx context.Context, orch *syncengine.Orchestrator, interval time.Duration) {
	logger.Info("auto sync enabled", "interval", interval.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := orch.PerformIncrementalSync(ctx)
			switch {
			case err == nil:
			case errors.Is(err, syncengine.ErrSyncInProgress):
				logger.Debug("auto sync skipped, run already active")
			case errors.Is(err, syncengine.ErrNoPreviousSync):
				logger.Warn("auto sync skipped, no full sync has completed yet")
			default:
				logger.Error("auto sync failed", "error", err.Error())
			}
		}
	}
}
