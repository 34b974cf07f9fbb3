// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tracer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/modtrace/services/trace/graph"
	"github.com/AleutianAI/modtrace/services/trace/registry"
	"github.com/AleutianAI/modtrace/services/trace/result"
)

// Options configures a Tracer.
type Options struct {
	// Logger receives warnings for unreadable classes.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultOptions returns the default tracer options.
func DefaultOptions() Options {
	return Options{Logger: slog.Default()}
}

// Option is a functional option for Tracer.
type Option func(*Options)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// Stats summarizes one Trace call.
type Stats struct {
	// StartClasses is the number of start classes that were traced.
	StartClasses int `json:"start_classes"`

	// SkippedStarts counts start classes missing from the registry.
	SkippedStarts int `json:"skipped_starts"`

	// ClassesVisited counts class entries, summed over start classes.
	ClassesVisited int `json:"classes_visited"`

	// Unreadable counts classes whose text could not be read.
	Unreadable int `json:"unreadable"`

	// Candidates counts matching lines before deduplication.
	Candidates int `json:"candidates"`

	// Matches counts deduplicated matches.
	Matches int `json:"matches"`
}

// Tracer performs reachability traces over one registry and class graph.
//
// Thread Safety: Safe for concurrent use. Every Trace call keeps its own
// traversal state; the registry and frozen graph are only read.
type Tracer struct {
	reg     *registry.Registry
	cg      *graph.ClassGraph
	options Options
}

// New creates a Tracer.
//
// Inputs:
//
//	reg - Built registry. Must not be nil.
//	cg - Class graph built from reg. Must not be nil.
//
// Outputs:
//
//	*Tracer - The tracer.
//	error - ErrNilInput if reg or cg is nil.
func New(reg *registry.Registry, cg *graph.ClassGraph, opts ...Option) (*Tracer, error) {
	if reg == nil || cg == nil {
		return nil, ErrNilInput
	}
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Tracer{reg: reg, cg: cg, options: options}, nil
}

// Trace collects pattern matches reachable from starts.
//
// Description:
//
//	See TraceWithStats.
func (t *Tracer) Trace(ctx context.Context, starts, patterns []string) (*result.Aggregator, error) {
	agg, _, err := t.TraceWithStats(ctx, starts, patterns)
	return agg, err
}

// TraceWithStats collects pattern matches reachable from starts and
// reports traversal statistics.
//
// Description:
//
//	Start classes are traced in the order given. Each start gets a fresh
//	visited set, so a class reachable from two starts is scanned twice and
//	its matches carry the chain of the first start that reached it.
//	Start classes missing from the registry are skipped.
//
// Inputs:
//
//	ctx - Checked before each class is entered.
//	starts - Start class FQNs.
//	patterns - Substrings matched case-insensitively. Blank entries are
//	           ignored; earlier patterns win when several match one line.
//
// Outputs:
//
//	*result.Aggregator - Deduplicated matches. Partial on cancellation.
//	Stats - Traversal statistics.
//	error - ErrNoPatterns, or ctx.Err() on cancellation.
func (t *Tracer) TraceWithStats(ctx context.Context, starts, patterns []string) (*result.Aggregator, Stats, error) {
	agg := result.NewAggregator()
	var stats Stats

	patterns = normalizePatterns(patterns)
	if len(patterns) == 0 {
		return agg, stats, ErrNoPatterns
	}

	ctx, span := startTraceSpan(ctx, len(starts), len(patterns))
	defer span.End()
	start := time.Now()

	w := &walk{
		tracer:   t,
		patterns: patterns,
		agg:      agg,
		files:    make(map[string]*sourceFile),
		stats:    &stats,
	}

	var err error
	for _, fqn := range starts {
		if !t.reg.Contains(fqn) {
			stats.SkippedStarts++
			t.options.Logger.Debug("start class not registered",
				slog.String("class", fqn),
			)
			continue
		}
		stats.StartClasses++
		w.visited = make(map[string]struct{})
		w.chain = w.chain[:0]
		if err = w.visit(ctx, fqn); err != nil {
			break
		}
	}
	stats.Matches = agg.Len()

	setTraceSpanResult(span, stats)
	recordTraceMetrics(ctx, time.Since(start), stats, err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "trace cancelled")
		return agg, stats, err
	}

	t.options.Logger.Info("trace complete",
		slog.Int("start_classes", stats.StartClasses),
		slog.Int("classes_visited", stats.ClassesVisited),
		slog.Int("candidates", stats.Candidates),
		slog.Int("matches", stats.Matches),
		slog.Duration("duration", time.Since(start)),
	)
	return agg, stats, nil
}

// normalizePatterns trims patterns and drops blanks and duplicates.
func normalizePatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	seen := make(map[string]struct{}, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		key := strings.ToLower(p)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

// sourceFile is the split text of one class, read once per Trace call.
type sourceFile struct {
	lines []string
	decls Declarations
	err   error
}

// walk is the traversal state of one Trace call.
type walk struct {
	tracer   *Tracer
	patterns []string
	agg      *result.Aggregator
	files    map[string]*sourceFile
	stats    *Stats

	// Reset per start class.
	visited map[string]struct{}
	chain   []string
}

// visit enters fqn unless it was already entered from the current start.
func (w *walk) visit(ctx context.Context, fqn string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, seen := w.visited[fqn]; seen {
		return nil
	}
	w.visited[fqn] = struct{}{}

	unit, ok := w.tracer.reg.Lookup(fqn)
	if !ok {
		return nil
	}
	w.stats.ClassesVisited++
	w.chain = append(w.chain, fqn)
	defer func() { w.chain = w.chain[:len(w.chain)-1] }()

	w.scan(unit)

	for _, dep := range w.tracer.cg.DependenciesOf(fqn) {
		if err := w.visit(ctx, dep); err != nil {
			return err
		}
	}
	return nil
}

// scan records a candidate for every line of unit matching a pattern.
func (w *walk) scan(unit *registry.SourceUnit) {
	file := w.load(unit)
	if file.err != nil {
		return
	}

	for i, line := range file.lines {
		pattern, ok := w.firstMatch(line)
		if !ok {
			continue
		}
		w.stats.Candidates++

		m := result.TraceMatch{
			ClassChain:   w.chain,
			MatchedClass: unit.FQN,
			LineNumber:   i + 1,
			LineText:     strings.TrimSpace(line),
			MethodName:   MethodAt(file.lines, i),
			Module:       unit.Module,
			Pattern:      pattern,
		}
		if raw, ok := FirstArgument(line, pattern); ok {
			m.RawArgument = raw
			m.ResolvedArgument = ResolveArgument(raw, file.decls)
		}
		w.agg.Add(m)
	}
}

func (w *walk) firstMatch(line string) (string, bool) {
	for _, p := range w.patterns {
		if indexFold(line, p) >= 0 {
			return p, true
		}
	}
	return "", false
}

// load returns the cached text of unit, reading it on first use.
func (w *walk) load(unit *registry.SourceUnit) *sourceFile {
	if f, ok := w.files[unit.FQN]; ok {
		return f
	}
	f := &sourceFile{}
	text, err := w.tracer.reg.Text(unit.FQN)
	if err != nil {
		f.err = err
		w.stats.Unreadable++
		w.tracer.options.Logger.Warn("skipping unreadable class",
			slog.String("class", unit.FQN),
			slog.String("path", unit.FilePath),
			slog.String("error", err.Error()),
		)
	} else {
		text = strings.ReplaceAll(text, "\r\n", "\n")
		f.lines = strings.Split(text, "\n")
		f.decls = ParseDeclarations(text)
	}
	w.files[unit.FQN] = f
	return f
}
