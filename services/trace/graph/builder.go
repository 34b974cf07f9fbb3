// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/modtrace/services/trace/deps"
	"github.com/AleutianAI/modtrace/services/trace/registry"
)

// ProgressPhase indicates which phase of building is in progress.
type ProgressPhase int

const (
	// ProgressPhaseCollecting indicates classes are being added as nodes.
	ProgressPhaseCollecting ProgressPhase = iota

	// ProgressPhaseExtractingEdges indicates dependencies are being extracted.
	ProgressPhaseExtractingEdges

	// ProgressPhaseFinalizing indicates the graph is being frozen and projected.
	ProgressPhaseFinalizing
)

// String returns the string representation of the ProgressPhase.
func (p ProgressPhase) String() string {
	switch p {
	case ProgressPhaseCollecting:
		return "collecting"
	case ProgressPhaseExtractingEdges:
		return "extracting_edges"
	case ProgressPhaseFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// BuildProgress contains progress information during a build.
type BuildProgress struct {
	Phase            ProgressPhase
	ClassesTotal     int
	ClassesProcessed int
	EdgesCreated     int
}

// ProgressFunc is a callback function for build progress updates.
type ProgressFunc func(progress BuildProgress)

// BuilderOptions configures Builder behavior.
type BuilderOptions struct {
	// Logger receives per-class warnings. Default: slog.Default().
	Logger *slog.Logger

	// ProgressCallback is called once per phase and every ProgressEvery
	// classes during edge extraction. May be nil.
	ProgressCallback ProgressFunc

	// ProgressEvery is the extraction progress interval. Default: 500.
	ProgressEvery int

	// MaxNodes is the maximum number of classes (passed to ClassGraph).
	MaxNodes int

	// MaxEdges is the maximum number of edges (passed to ClassGraph).
	MaxEdges int
}

// DefaultBuilderOptions returns sensible defaults.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		Logger:        slog.Default(),
		ProgressEvery: 500,
		MaxNodes:      DefaultMaxNodes,
		MaxEdges:      DefaultMaxEdges,
	}
}

// BuilderOption is a functional option for configuring Builder.
type BuilderOption func(*BuilderOptions)

// WithLogger sets the builder logger.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(o *BuilderOptions) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithProgressCallback sets the progress callback function.
func WithProgressCallback(fn ProgressFunc) BuilderOption {
	return func(o *BuilderOptions) {
		o.ProgressCallback = fn
	}
}

// WithBuilderMaxNodes sets the maximum number of nodes.
func WithBuilderMaxNodes(n int) BuilderOption {
	return func(o *BuilderOptions) {
		o.MaxNodes = n
	}
}

// WithBuilderMaxEdges sets the maximum number of edges.
func WithBuilderMaxEdges(n int) BuilderOption {
	return func(o *BuilderOptions) {
		o.MaxEdges = n
	}
}

// BuildStats contains statistics about a build operation.
type BuildStats struct {
	// ClassesProcessed is the number of classes whose dependencies were extracted.
	ClassesProcessed int `json:"classes_processed"`

	// ClassesFailed is the number of classes whose text could not be read.
	ClassesFailed int `json:"classes_failed"`

	// NodesCreated is the number of nodes added to the graph.
	NodesCreated int `json:"nodes_created"`

	// EdgesCreated is the number of distinct class edges.
	EdgesCreated int `json:"edges_created"`

	// ImportEdges is the number of edges found by the import rule.
	ImportEdges int `json:"import_edges"`

	// UsageOnlyEdges is the number of edges found only by the usage rule.
	UsageOnlyEdges int `json:"usage_only_edges"`

	// ModuleEdges is the number of edges in the module projection.
	ModuleEdges int `json:"module_edges"`

	// DurationMicro is the total build time in microseconds.
	DurationMicro int64 `json:"duration_micro"`
}

// BuildResult contains the result of a graph build operation.
//
// Individual unreadable classes do not fail the build: they keep their
// node, get no outgoing edges, and are listed in FileErrors.
type BuildResult struct {
	// Graph is the frozen class graph. Partial and unfrozen if Incomplete.
	Graph *ClassGraph

	// Modules is the module projection of Graph. Nil if Incomplete.
	Modules *ModuleGraph

	// FileErrors lists classes whose text could not be read.
	FileErrors []FileError

	// Stats contains build statistics.
	Stats BuildStats

	// Incomplete is true if the build was cancelled.
	Incomplete bool
}

// HasErrors returns true if any class could not be read.
func (r *BuildResult) HasErrors() bool {
	return len(r.FileErrors) > 0
}

// Success returns true if the build completed without errors.
func (r *BuildResult) Success() bool {
	return !r.Incomplete && !r.HasErrors()
}

// Builder constructs the class graph for a registry.
//
// Thread Safety:
//
//	Builder is safe for concurrent use. Each Build() call operates
//	independently and creates a new graph.
type Builder struct {
	reg     *registry.Registry
	extract *deps.Extractor
	options BuilderOptions
}

// NewBuilder creates a Builder over reg.
//
// Example:
//
//	builder := NewBuilder(reg, WithLogger(logger))
//	result, err := builder.Build(ctx)
func NewBuilder(reg *registry.Registry, opts ...BuilderOption) *Builder {
	options := DefaultBuilderOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.ProgressEvery <= 0 {
		options.ProgressEvery = 500
	}

	return &Builder{
		reg:     reg,
		extract: deps.NewExtractor(reg),
		options: options,
	}
}

// Extractor returns the dependency extractor shared by this builder.
func (b *Builder) Extractor() *deps.Extractor {
	return b.extract
}

// Build constructs the class graph and its module projection.
//
// Description:
//
//	Adds every registered class as a node and every directory module,
//	then runs the dependency extractor once per class and adds the
//	resulting edges. The graph is frozen and projected onto modules.
//
// Inputs:
//
//	ctx - Context for cancellation, checked once per class.
//
// Outputs:
//
//	*BuildResult - Graph, module graph, per-class errors and statistics.
//	error - Wraps ErrBuildCancelled and ctx.Err() when cancelled; the
//	        partial result is still returned. Capacity errors are fatal.
//
// Build Phases:
//
//  1. COLLECT: add classes and modules
//  2. EXTRACT EDGES: apply the dependency rules per class
//  3. FINALIZE: freeze and project onto modules
func (b *Builder) Build(ctx context.Context) (*BuildResult, error) {
	start := time.Now()
	units := b.reg.Units()

	ctx, span := startBuildSpan(ctx, len(units))
	defer span.End()

	g := NewClassGraph(b.reg.Root(),
		WithMaxNodes(b.options.MaxNodes),
		WithMaxEdges(b.options.MaxEdges),
	)
	result := &BuildResult{
		Graph:      g,
		FileErrors: make([]FileError, 0),
	}

	fail := func(err error) (*BuildResult, error) {
		result.Incomplete = true
		result.Stats.DurationMicro = time.Since(start).Microseconds()
		setBuildSpanResult(span, result.Stats.NodesCreated, result.Stats.EdgesCreated, true)
		recordBuildMetrics(ctx, time.Since(start), result.Stats.NodesCreated, result.Stats.EdgesCreated, false)
		return result, err
	}

	// Phase 1: collect
	for _, m := range b.reg.Modules() {
		if err := g.AddModule(m); err != nil {
			return fail(err)
		}
	}
	for _, u := range units {
		if _, err := g.AddNode(*u); err != nil {
			return fail(fmt.Errorf("adding class %s: %w", u.FQN, err))
		}
		result.Stats.NodesCreated++
	}
	b.reportProgress(result, ProgressPhaseCollecting, len(units), 0)

	// Phase 2: extract edges
	for i, u := range units {
		if err := ctx.Err(); err != nil {
			return fail(fmt.Errorf("%w: %w", ErrBuildCancelled, err))
		}

		found, err := b.extract.ExtractFor(u.FQN)
		if err != nil {
			result.FileErrors = append(result.FileErrors, FileError{Class: u.FQN, Err: err})
			result.Stats.ClassesFailed++
			b.options.Logger.Warn("skipping class dependencies",
				slog.String("class", u.FQN),
				slog.String("error", err.Error()))
			continue
		}

		for _, d := range found {
			if err := g.AddEdge(u.FQN, d.Class, d.Rules); err != nil {
				return fail(fmt.Errorf("adding edge %s -> %s: %w", u.FQN, d.Class, err))
			}
		}
		result.Stats.ClassesProcessed++

		if (i+1)%b.options.ProgressEvery == 0 {
			result.Stats.EdgesCreated = g.EdgeCount()
			b.reportProgress(result, ProgressPhaseExtractingEdges, len(units), i+1)
		}
	}

	// Phase 3: finalize
	g.Freeze()
	result.Modules = ProjectModules(g)

	result.Stats.EdgesCreated = g.EdgeCount()
	result.Stats.ModuleEdges = result.Modules.EdgeCount()
	for _, e := range g.edges {
		if e.Rules.Has(deps.RuleImport) {
			result.Stats.ImportEdges++
		} else {
			result.Stats.UsageOnlyEdges++
		}
	}
	duration := time.Since(start)
	result.Stats.DurationMicro = duration.Microseconds()

	b.reportProgress(result, ProgressPhaseFinalizing, len(units), len(units))

	b.options.Logger.Debug("class graph built",
		slog.Int("classes", result.Stats.NodesCreated),
		slog.Int("edges", result.Stats.EdgesCreated),
		slog.Int("module_edges", result.Stats.ModuleEdges),
		slog.Int("failed", result.Stats.ClassesFailed),
		slog.Duration("duration", duration))

	setBuildSpanResult(span, result.Stats.NodesCreated, result.Stats.EdgesCreated, false)
	recordBuildMetrics(ctx, duration, result.Stats.NodesCreated, result.Stats.EdgesCreated, true)

	return result, nil
}

// reportProgress calls the progress callback if configured.
func (b *Builder) reportProgress(result *BuildResult, phase ProgressPhase, total, processed int) {
	if b.options.ProgressCallback == nil {
		return
	}

	b.options.ProgressCallback(BuildProgress{
		Phase:            phase,
		ClassesTotal:     total,
		ClassesProcessed: processed,
		EdgesCreated:     result.Stats.EdgesCreated,
	})
}
