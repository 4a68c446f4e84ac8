// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes the sync engine over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	syncengine "github.com/AleutianAI/catalog-sync/services/catalog/sync"
)

// startErrorWindow is how long a sync-start handler waits for an
// immediate rejection (single-flight conflict, missing prior sync)
// before reporting the run as accepted.
const startErrorWindow = 100 * time.Millisecond

// SyncService is the engine surface the HTTP layer depends on.
// Satisfied by *sync.Orchestrator.
type SyncService interface {
	PerformFullSync(ctx context.Context) (syncengine.Result, error)
	PerformIncrementalSync(ctx context.Context) (syncengine.Result, error)
	CancelSync() bool
	Status() syncengine.Status
	History(ctx context.Context, limit int) ([]syncengine.Result, error)
}

// Server is the HTTP API over the sync engine.
type Server struct {
	svc    SyncService
	logger *slog.Logger
	engine *gin.Engine

	// runCtx is the lifetime context handed to background sync runs so
	// they outlive the originating request but stop on shutdown.
	runCtx context.Context
}

// New builds the server and its routes.
//
// Inputs:
//
//	runCtx - Lifetime context for background syncs. Cancelling it
//	  cancels any run the server started.
//	svc - The sync engine.
//	logger - Logger. If nil, slog.Default() is used.
func New(runCtx context.Context, svc SyncService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("catalogsync"))

	s := &Server{
		svc:    svc,
		logger: logger.With(slog.String("component", "http_server")),
		engine: engine,
		runCtx: runCtx,
	}

	engine.GET("/health", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/v1")
	{
		v1.POST("/sync/full", s.handleFullSync)
		v1.POST("/sync/incremental", s.handleIncrementalSync)
		v1.POST("/sync/cancel", s.handleCancel)
		v1.GET("/sync/status", s.handleStatus)
		v1.GET("/sync/history", s.handleHistory)
	}
	return s
}

// Handler returns the http.Handler for mounting or testing.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleFullSync(c *gin.Context) {
	s.startSync(c, "full", s.svc.PerformFullSync)
}

func (s *Server) handleIncrementalSync(c *gin.Context) {
	s.startSync(c, "incremental", s.svc.PerformIncrementalSync)
}

// startSync launches a run in the background and answers 202. Immediate
// rejections within the error window come back synchronously instead.
func (s *Server) startSync(c *gin.Context, kind string, run func(context.Context) (syncengine.Result, error)) {
	errCh := make(chan error, 1)
	go func() {
		result, err := run(s.runCtx)
		errCh <- err
		if err != nil {
			s.logger.Error("sync run failed",
				slog.String("type", kind),
				slog.String("error", err.Error()),
			)
			return
		}
		s.logger.Info("sync run finished",
			slog.String("type", kind),
			slog.String("phase", string(result.Phase)),
			slog.Int("processed", result.TotalProcessed),
		)
	}()

	select {
	case err := <-errCh:
		switch {
		case err == nil:
			// Finished within the window (tiny or empty catalog).
			c.JSON(http.StatusOK, gin.H{"status": "completed", "type": kind})
		case errors.Is(err, syncengine.ErrSyncInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": "sync already in progress"})
		case errors.Is(err, syncengine.ErrNoPreviousSync):
			c.JSON(http.StatusConflict, gin.H{"error": "no previous sync; run a full sync first"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
	case <-time.After(startErrorWindow):
		c.JSON(http.StatusAccepted, gin.H{"status": "started", "type": kind})
	}
}

func (s *Server) handleCancel(c *gin.Context) {
	if !s.svc.CancelSync() {
		c.JSON(http.StatusConflict, gin.H{"error": "no sync in progress"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelling"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Status())
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	history, err := s.svc.History(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"syncs": history, "count": len(history)})
}
