// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command trace starts the modtrace API server.
//
// The server analyzes multi-module source trees on request: module
// dependencies, reachable HTTP call sites, exposed classes, repository
// tables, change impact and graph snapshots.
//
// Usage:
//
//	go run ./cmd/trace
//	go run ./cmd/trace -port 9090 -snapshot-dir ~/.modtrace/snapshots
//	go run ./cmd/trace -allowed-roots /srv/repos,/home/dev/src
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/modtrace/health
//
//	# Reachable HTTP calls
//	curl -X POST http://localhost:8080/v1/modtrace/trace \
//	  -H "Content-Type: application/json" \
//	  -d '{"project_root": "/path/to/project"}'
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/modtrace/services/trace"
	badgerstore "github.com/AleutianAI/modtrace/services/trace/storage/badger"
	"github.com/AleutianAI/modtrace/services/trace/telemetry"
)

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	snapshotDir := flag.String("snapshot-dir", "", "BadgerDB directory for graph snapshots (default: $MODTRACE_SNAPSHOT_DIR or ~/.modtrace/snapshots, \"off\" disables)")
	allowedRoots := flag.String("allowed-roots", "", "Comma-separated directories project roots must live under (empty allows any)")
	maxAnalyze := flag.Duration("max-analyze", 2*time.Minute, "Upper bound on a single analysis")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Telemetry sets the W3C TraceContext propagator so otelgin can pick up
	// traceparent headers from callers.
	telCfg := telemetry.DefaultConfig()
	shutdownTelemetry, err := telemetry.Init(context.Background(), telCfg)
	if err != nil {
		logger.Error("Failed to initialize telemetry", slog.String("error", err.Error()))
		os.Exit(1)
	}

	cfg := trace.DefaultServiceConfig()
	cfg.RequireAbsolute = true
	cfg.MaxAnalyzeDuration = *maxAnalyze
	cfg.AllowedRoots = splitRoots(*allowedRoots)
	cfg.Logger = logger
	svc := trace.NewService(cfg)

	store := openSnapshotStore(logger, *snapshotDir)
	if store != nil {
		mgr, err := store.Snapshots(logger)
		if err != nil {
			logger.Warn("Snapshot manager unavailable", slog.String("error", err.Error()))
		} else {
			svc.WithSnapshots(mgr)
		}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("modtrace"))
	if *debug {
		router.Use(gin.Logger())
	}

	if h := telemetry.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	} else {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	v1 := router.Group("/v1")
	trace.RegisterRoutes(v1, trace.NewHandlers(svc))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting modtrace server",
			slog.String("address", server.Addr),
			slog.Bool("snapshots", svc.SnapshotsEnabled()),
			slog.String("version", trace.ServiceVersion),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down modtrace server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("Server shutdown", slog.String("error", err.Error()))
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close snapshot store", slog.String("error", err.Error()))
		}
	}
	if err := shutdownTelemetry(ctx); err != nil {
		logger.Warn("Telemetry shutdown", slog.String("error", err.Error()))
	}
}

// openSnapshotStore opens the snapshot BadgerDB. Snapshots are optional:
// failures are logged and the server runs without them.
func openSnapshotStore(logger *slog.Logger, dir string) *badgerstore.Store {
	if dir == "" {
		dir = os.Getenv("MODTRACE_SNAPSHOT_DIR")
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		dir = filepath.Join(home, ".modtrace", "snapshots")
	}
	if dir == "off" {
		return nil
	}

	cfg := badgerstore.DefaultConfig(dir)
	cfg.Logger = logger
	store, err := badgerstore.Open(cfg)
	if err != nil {
		logger.Warn("Snapshot BadgerDB unavailable, snapshots disabled",
			slog.String("path", dir),
			slog.String("error", err.Error()),
		)
		return nil
	}
	logger.Info("Snapshot BadgerDB opened", slog.String("path", dir))
	return store
}

func splitRoots(v string) []string {
	var out []string
	for _, r := range strings.Split(v, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, filepath.Clean(r))
		}
	}
	return out
}
