// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package trace provides the modtrace analysis service and its HTTP API.
//
// The service runs the whole pipeline for a project root: index sources,
// build the class graph, project it onto modules, then answer trace,
// exposed API, table, impact and snapshot queries from that graph. Every
// call analyzes the tree again; identical concurrent analyses of one root
// share a single build.
package trace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/modtrace/services/trace/config"
	"github.com/AleutianAI/modtrace/services/trace/deps"
	"github.com/AleutianAI/modtrace/services/trace/export"
	"github.com/AleutianAI/modtrace/services/trace/expose"
	"github.com/AleutianAI/modtrace/services/trace/graph"
	"github.com/AleutianAI/modtrace/services/trace/impact"
	"github.com/AleutianAI/modtrace/services/trace/registry"
	"github.com/AleutianAI/modtrace/services/trace/result"
	"github.com/AleutianAI/modtrace/services/trace/tables"
	"github.com/AleutianAI/modtrace/services/trace/tracer"
)

// ServiceVersion is the modtrace service version.
const ServiceVersion = "0.1.0"

// ServiceConfig configures the service.
type ServiceConfig struct {
	// Analysis, when set, is used for every root instead of loading
	// modtrace.config.yaml from the root.
	Analysis *config.AnalysisConfig

	// MaxAnalyzeDuration bounds one analysis. 0 means no limit.
	// Default: 2m
	MaxAnalyzeDuration time.Duration

	// AllowedRoots is an optional list of allowed project root prefixes.
	// If empty, all paths are allowed.
	AllowedRoots []string

	// RequireAbsolute rejects relative roots instead of resolving them
	// against the working directory. The HTTP server sets it.
	RequireAbsolute bool

	Logger *slog.Logger
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxAnalyzeDuration: 2 * time.Minute,
		Logger:             slog.Default(),
	}
}

// Service runs analyses.
//
// Thread Safety:
//
//	Safe for concurrent use. Analyses of the same root that overlap in
//	time are coalesced; their results are read-only and shared.
type Service struct {
	config    ServiceConfig
	logger    *slog.Logger
	snapshots *graph.SnapshotManager
	flight    singleflight.Group
}

// NewService creates a service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{config: cfg, logger: cfg.Logger}
}

// WithSnapshots enables snapshot operations backed by mgr.
func (s *Service) WithSnapshots(mgr *graph.SnapshotManager) *Service {
	s.snapshots = mgr
	return s
}

// SnapshotsEnabled reports whether a snapshot store is configured.
func (s *Service) SnapshotsEnabled() bool {
	return s.snapshots != nil
}

// Analysis is one indexed and built project.
//
// Thread Safety: Read-only after Analyze returns.
type Analysis struct {
	Root      string
	Config    *config.AnalysisConfig
	Registry  *registry.Registry
	Extractor *deps.Extractor
	Graph     *graph.ClassGraph
	Modules   *graph.ModuleGraph
	Build     graph.BuildStats

	// FileErrors lists classes whose dependencies could not be extracted.
	FileErrors []graph.FileError

	Duration time.Duration
}

// Analyze indexes root and builds its class and module graphs.
//
// Description:
//
//	The root is validated and its config resolved, then the registry and
//	graphs are built. A caller that asks for a root already being built
//	waits for that build instead of starting another. The build itself is
//	bounded by MaxAnalyzeDuration and keeps running if one waiting caller
//	gives up; each caller still returns as soon as its own ctx is done.
//
// Outputs:
//
//	*Analysis - The shared, read-only result.
//	error - ErrRelativePath, ErrPathTraversal, ErrRootNotAllowed,
//	        registry.ErrInvalidRoot, config.ErrInvalidConfig,
//	        ErrAnalysisTimeout or ctx.Err().
func (s *Service) Analyze(ctx context.Context, root string) (*Analysis, error) {
	abs, err := s.resolveRoot(root)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := s.flight.DoChan(abs, func() (interface{}, error) {
		runCtx := context.WithoutCancel(ctx)
		if s.config.MaxAnalyzeDuration > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, s.config.MaxAnalyzeDuration)
			defer cancel()
		}
		a, err := s.analyze(runCtx, abs)
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %w", ErrAnalysisTimeout, s.config.MaxAnalyzeDuration, err)
		}
		return a, err
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			analysesCoalesced.Inc()
		}
		if res.Err != nil {
			analysesTotal.WithLabelValues("error").Inc()
			return nil, res.Err
		}
		analysesTotal.WithLabelValues("ok").Inc()
		return res.Val.(*Analysis), nil
	}
}

func (s *Service) analyze(ctx context.Context, root string) (*Analysis, error) {
	start := time.Now()

	cfg, err := s.configFor(root)
	if err != nil {
		return nil, err
	}

	reg, err := registry.Build(ctx, root,
		registry.WithExtension(cfg.Extension),
		registry.WithIgnoreDirs(cfg.IgnoreDirs),
		registry.WithCacheSize(cfg.CacheSize),
		registry.WithLogger(s.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", root, err)
	}

	builder := graph.NewBuilder(reg, graph.WithLogger(s.logger))
	built, err := builder.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}

	a := &Analysis{
		Root:       reg.Root(),
		Config:     cfg,
		Registry:   reg,
		Extractor:  builder.Extractor(),
		Graph:      built.Graph,
		Modules:    built.Modules,
		Build:      built.Stats,
		FileErrors: built.FileErrors,
		Duration:   time.Since(start),
	}
	s.logger.Info("project analyzed",
		slog.String("root", a.Root),
		slog.Int("classes", a.Graph.NodeCount()),
		slog.Int("edges", a.Graph.EdgeCount()),
		slog.Int("modules", len(a.Modules.Modules())),
		slog.Duration("duration", a.Duration),
	)
	return a, nil
}

func (s *Service) configFor(root string) (*config.AnalysisConfig, error) {
	if s.config.Analysis != nil {
		return s.config.Analysis, nil
	}
	return config.Load(root)
}

// resolveRoot cleans root and applies the path policy. The directory
// itself is checked by registry.Build.
func (s *Service) resolveRoot(root string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", fmt.Errorf("%w: root must not be empty", registry.ErrInvalidRoot)
	}
	for _, seg := range strings.Split(filepath.ToSlash(root), "/") {
		if seg == ".." {
			return "", ErrPathTraversal
		}
	}
	if !filepath.IsAbs(root) {
		if s.config.RequireAbsolute {
			return "", ErrRelativePath
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return "", fmt.Errorf("%w: %v", registry.ErrInvalidRoot, err)
		}
		root = abs
	}
	root = filepath.Clean(root)

	if len(s.config.AllowedRoots) > 0 {
		allowed := false
		for _, prefix := range s.config.AllowedRoots {
			prefix = filepath.Clean(prefix)
			if root == prefix || strings.HasPrefix(root, prefix+string(filepath.Separator)) {
				allowed = true
				break
			}
		}
		if !allowed {
			return "", ErrRootNotAllowed
		}
	}
	return root, nil
}

// TraceRequestOptions selects what a trace starts from and looks for.
type TraceRequestOptions struct {
	// Starts are start class FQNs. Empty uses the entry classes found
	// under the configured entry subdirectory.
	Starts []string

	// Patterns override the configured call-site patterns when non-empty.
	Patterns []string
}

// TraceOutcome is the result of Trace.
type TraceOutcome struct {
	Analysis *Analysis
	Starts   []string
	Patterns []string
	Matches  *result.Aggregator
	Stats    tracer.Stats
}

// Trace analyzes root and traces call sites from its start classes.
func (s *Service) Trace(ctx context.Context, root string, opts TraceRequestOptions) (*TraceOutcome, error) {
	a, err := s.Analyze(ctx, root)
	if err != nil {
		return nil, err
	}

	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = a.Config.Patterns
	}
	starts := opts.Starts
	if len(starts) == 0 {
		starts = tracer.EntryClasses(a.Registry, a.Config.EntrySubdir, a.Config.EntryDepth)
	}

	t, err := tracer.New(a.Registry, a.Graph, tracer.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	matches, stats, err := t.TraceWithStats(ctx, starts, patterns)
	if err != nil {
		return nil, err
	}
	return &TraceOutcome{
		Analysis: a,
		Starts:   starts,
		Patterns: patterns,
		Matches:  matches,
		Stats:    stats,
	}, nil
}

// Expose lists the exposed API of every module, with cross-module callers
// when showDependency is set.
func (s *Service) Expose(ctx context.Context, root string, showDependency bool) (*expose.Report, error) {
	a, err := s.Analyze(ctx, root)
	if err != nil {
		return nil, err
	}
	return expose.Analyze(ctx, a.Extractor, showDependency,
		expose.WithExposeDir(a.Config.ExposeDir),
		expose.WithExcludeSuffixes(a.Config.ExposeExcludeSuffixes),
		expose.WithLogger(s.logger),
	)
}

// Tables lists repository tables per module.
func (s *Service) Tables(ctx context.Context, root string) ([]tables.ModuleTables, error) {
	a, err := s.Analyze(ctx, root)
	if err != nil {
		return nil, err
	}
	return tables.Scan(a.Registry, a.Config.InfraDir), nil
}

// Impact maps a unified diff onto the modules of root.
func (s *Service) Impact(ctx context.Context, root, patch string) (*impact.Report, error) {
	files, err := impact.ParsePatch(patch)
	if err != nil {
		return nil, err
	}
	a, err := s.Analyze(ctx, root)
	if err != nil {
		return nil, err
	}
	an, err := impact.NewAnalyzer(a.Graph, a.Modules,
		impact.WithExtension(a.Config.Extension),
		impact.WithLogger(s.logger),
	)
	if err != nil {
		return nil, err
	}
	return an.AnalyzeFiles(ctx, files)
}

// Export writes the graphs of root through loader.
func (s *Service) Export(ctx context.Context, root string, loader *export.Loader, clean bool) (export.LoadStats, error) {
	a, err := s.Analyze(ctx, root)
	if err != nil {
		return export.LoadStats{}, err
	}
	if clean {
		if err := loader.CleanGraph(ctx); err != nil {
			return export.LoadStats{}, err
		}
	}
	if err := loader.CreateIndexes(ctx); err != nil {
		return export.LoadStats{}, err
	}
	return loader.Load(ctx, a.Graph, a.Modules)
}

// SaveSnapshot analyzes root and stores its class graph.
func (s *Service) SaveSnapshot(ctx context.Context, root, label string) (*graph.SnapshotMetadata, error) {
	if s.snapshots == nil {
		return nil, ErrSnapshotsDisabled
	}
	a, err := s.Analyze(ctx, root)
	if err != nil {
		return nil, err
	}
	return s.snapshots.Save(ctx, a.Graph, label)
}

// ListSnapshots lists stored snapshots, newest first. An empty root lists
// every project.
func (s *Service) ListSnapshots(ctx context.Context, root string, limit int) ([]*graph.SnapshotMetadata, error) {
	if s.snapshots == nil {
		return nil, ErrSnapshotsDisabled
	}
	projectHash := ""
	if root != "" {
		abs, err := s.resolveRoot(root)
		if err != nil {
			return nil, err
		}
		projectHash = graph.ProjectHash(abs)
	}
	return s.snapshots.List(ctx, projectHash, limit)
}

// DiffSnapshots compares two stored snapshots. With an empty targetID the
// base is compared against a fresh analysis of root.
func (s *Service) DiffSnapshots(ctx context.Context, root, baseID, targetID string) (*graph.SnapshotDiff, error) {
	if s.snapshots == nil {
		return nil, ErrSnapshotsDisabled
	}
	base, _, err := s.snapshots.Load(ctx, baseID)
	if err != nil {
		return nil, err
	}

	var target *graph.ClassGraph
	if targetID != "" {
		target, _, err = s.snapshots.Load(ctx, targetID)
		if err != nil {
			return nil, err
		}
	} else {
		a, err := s.Analyze(ctx, root)
		if err != nil {
			return nil, err
		}
		target = a.Graph
		targetID = "current"
	}
	return graph.DiffSnapshots(base, target, baseID, targetID)
}

// LoadSnapshot loads one stored snapshot.
func (s *Service) LoadSnapshot(ctx context.Context, id string) (*graph.ClassGraph, *graph.SnapshotMetadata, error) {
	if s.snapshots == nil {
		return nil, nil, ErrSnapshotsDisabled
	}
	return s.snapshots.Load(ctx, id)
}

// DeleteSnapshot removes one stored snapshot.
func (s *Service) DeleteSnapshot(ctx context.Context, id string) error {
	if s.snapshots == nil {
		return ErrSnapshotsDisabled
	}
	return s.snapshots.Delete(ctx, id)
}
