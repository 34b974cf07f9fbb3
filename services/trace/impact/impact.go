// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package impact maps a unified diff onto the module graph.
//
// Changed files are resolved to classes and modules, then the module
// graph is walked in reverse (breadth-first) to find every module that
// depends on a changed module, directly or transitively. Each impacted
// module carries the class edges that connect it to the module it was
// reached from.
package impact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/AleutianAI/modtrace/services/trace/graph"
	"github.com/AleutianAI/modtrace/services/trace/registry"
)

// Sentinel errors for impact analysis.
var (
	// ErrInvalidPatch is returned when the diff cannot be parsed.
	ErrInvalidPatch = errors.New("invalid unified diff")

	// ErrNilGraph is returned when no class graph is given.
	ErrNilGraph = errors.New("class graph is required")
)

const devNull = "/dev/null"

// FileStatus is the kind of change a diff makes to one file.
type FileStatus string

// File statuses.
const (
	StatusAdded    FileStatus = "added"
	StatusDeleted  FileStatus = "deleted"
	StatusModified FileStatus = "modified"
	StatusRenamed  FileStatus = "renamed"
)

// ChangedFile is one file touched by a diff.
type ChangedFile struct {
	// Path is the root-relative path after the change, or the old path
	// for deletions.
	Path string `json:"path"`

	// OrigPath is the root-relative path before a rename.
	OrigPath string `json:"orig_path,omitempty"`

	Status       FileStatus `json:"status"`
	LinesAdded   int        `json:"lines_added"`
	LinesRemoved int        `json:"lines_removed"`

	// Class is the registered FQN at Path, or "" for unindexed files.
	Class string `json:"class,omitempty"`

	// Module is the first segment of Path.
	Module string `json:"module"`

	// Source reports whether Path has the analyzed source extension.
	Source bool `json:"source"`
}

// ImpactedModule is a module that depends on a changed module.
type ImpactedModule struct {
	Module string `json:"module"`

	// Distance is the number of module edges to the nearest changed module.
	Distance int `json:"distance"`

	// Through is the module this one was reached from.
	Through string `json:"through"`

	// Evidence is the class edges of Module -> Through.
	Evidence []graph.ClassPair `json:"evidence"`
}

// Report is the result of one impact analysis.
type Report struct {
	Files []ChangedFile `json:"files"`

	// ChangedModules are modules containing changed source files, sorted.
	ChangedModules []string `json:"changed_modules"`

	// ChangedClasses are the registered classes in changed files, sorted.
	ChangedClasses []string `json:"changed_classes"`

	// AffectedClasses transitively depend on a changed class, sorted.
	// Changed classes are not repeated here.
	AffectedClasses []string `json:"affected_classes"`

	// ImpactedModules are sorted by distance, then name.
	ImpactedModules []ImpactedModule `json:"impacted_modules"`
}

// Options configures an Analyzer.
type Options struct {
	// Extension is the source file extension. Default: ".java"
	Extension string

	// MaxDepth bounds the reverse walk in module edges. 0 is unbounded.
	MaxDepth int

	// Logger. Default: slog.Default()
	Logger *slog.Logger
}

// Option is a functional option for Analyzer.
type Option func(*Options)

// WithExtension sets the source extension.
func WithExtension(ext string) Option {
	return func(o *Options) {
		if ext != "" {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			o.Extension = ext
		}
	}
}

// WithMaxDepth bounds the reverse module walk.
func WithMaxDepth(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.MaxDepth = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// Analyzer answers impact queries against one built graph.
//
// Thread Safety: Safe for concurrent use.
type Analyzer struct {
	cg      *graph.ClassGraph
	mg      *graph.ModuleGraph
	byPath  map[string]string
	options Options
}

// NewAnalyzer indexes the class graph by file path.
//
// Inputs:
//
//	cg - Frozen class graph.
//	mg - Its module projection. Nil computes it from cg.
func NewAnalyzer(cg *graph.ClassGraph, mg *graph.ModuleGraph, opts ...Option) (*Analyzer, error) {
	if cg == nil {
		return nil, ErrNilGraph
	}
	if mg == nil {
		mg = graph.ProjectModules(cg)
	}
	options := Options{Extension: ".java", Logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}

	byPath := make(map[string]string, cg.NodeCount())
	for _, n := range cg.Nodes() {
		rel, err := filepath.Rel(cg.ProjectRoot, n.FilePath)
		if err != nil {
			continue
		}
		byPath[filepath.ToSlash(rel)] = n.ID
	}
	return &Analyzer{cg: cg, mg: mg, byPath: byPath, options: options}, nil
}

// ParsePatch reads the changed files of a unified diff.
//
// "a/" and "b/" prefixes written by git are removed from paths.
func ParsePatch(patch string) ([]ChangedFile, error) {
	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(patch)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	files := make([]ChangedFile, 0, len(fileDiffs))
	for _, fd := range fileDiffs {
		orig := cleanPath(fd.OrigName)
		next := cleanPath(fd.NewName)

		cf := ChangedFile{Path: next, Status: StatusModified}
		switch {
		case fd.OrigName == devNull:
			cf.Status = StatusAdded
		case fd.NewName == devNull:
			cf.Status = StatusDeleted
			cf.Path = orig
		case orig != next:
			cf.Status = StatusRenamed
			cf.OrigPath = orig
		}

		for _, hunk := range fd.Hunks {
			for _, line := range strings.Split(string(hunk.Body), "\n") {
				switch {
				case strings.HasPrefix(line, "+"):
					cf.LinesAdded++
				case strings.HasPrefix(line, "-"):
					cf.LinesRemoved++
				}
			}
		}
		files = append(files, cf)
	}
	return files, nil
}

func cleanPath(p string) string {
	if p == devNull {
		return ""
	}
	p = strings.TrimPrefix(p, "a/")
	p = strings.TrimPrefix(p, "b/")
	return path.Clean(filepath.ToSlash(p))
}

// Analyze parses patch and computes its impact.
func (a *Analyzer) Analyze(ctx context.Context, patch string) (*Report, error) {
	files, err := ParsePatch(patch)
	if err != nil {
		return nil, err
	}
	return a.AnalyzeFiles(ctx, files)
}

// AnalyzeFiles computes the impact of already parsed changes.
//
// Description:
//
//	Resolves each file to its class and module. Source files of a known
//	module seed the reverse walk. A rename seeds from both paths.
//
// Outputs:
//
//	*Report - The impact report.
//	error - ctx.Err() on cancellation.
func (a *Analyzer) AnalyzeFiles(ctx context.Context, files []ChangedFile) (*Report, error) {
	report := &Report{Files: make([]ChangedFile, 0, len(files))}
	changedModules := make(map[string]struct{})
	changedClasses := make(map[string]struct{})

	for _, cf := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cf.Module = a.moduleOf(cf.Path)
		cf.Source = strings.HasSuffix(cf.Path, a.options.Extension)
		cf.Class = a.byPath[cf.Path]
		report.Files = append(report.Files, cf)

		if !cf.Source {
			continue
		}
		for _, p := range []string{cf.Path, cf.OrigPath} {
			if p == "" {
				continue
			}
			if m := a.moduleOf(p); m != registry.UnknownModule {
				changedModules[m] = struct{}{}
			}
			if cls, ok := a.byPath[p]; ok {
				changedClasses[cls] = struct{}{}
			}
		}
	}

	report.ChangedModules = sortedSet(changedModules)
	report.ChangedClasses = sortedSet(changedClasses)
	report.AffectedClasses = a.affectedClasses(report.ChangedClasses)
	report.ImpactedModules = a.impactedModules(report.ChangedModules)

	a.options.Logger.Debug("impact analyzed",
		slog.Int("files", len(report.Files)),
		slog.Int("changed_modules", len(report.ChangedModules)),
		slog.Int("impacted_modules", len(report.ImpactedModules)),
	)
	return report, nil
}

func (a *Analyzer) moduleOf(rel string) string {
	if rel == "" {
		return registry.UnknownModule
	}
	return registry.ModuleOf(a.cg.ProjectRoot, filepath.Join(a.cg.ProjectRoot, filepath.FromSlash(rel)))
}

// impactedModules walks module edges backwards from seeds.
func (a *Analyzer) impactedModules(seeds []string) []ImpactedModule {
	seen := make(map[string]struct{}, len(seeds))
	queue := make([]string, 0, len(seeds))
	dist := make(map[string]int, len(seeds))
	for _, s := range seeds {
		seen[s] = struct{}{}
		queue = append(queue, s)
	}

	var out []ImpactedModule
	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]
		d := dist[m]
		if a.options.MaxDepth > 0 && d >= a.options.MaxDepth {
			continue
		}
		for _, e := range a.mg.DependedBy(m) {
			if _, ok := seen[e.From]; ok {
				continue
			}
			seen[e.From] = struct{}{}
			dist[e.From] = d + 1
			queue = append(queue, e.From)
			out = append(out, ImpactedModule{
				Module:   e.From,
				Distance: d + 1,
				Through:  m,
				Evidence: e.Evidence,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Module < out[j].Module
	})
	return out
}

// affectedClasses walks class edges backwards from the changed classes.
func (a *Analyzer) affectedClasses(changed []string) []string {
	seen := make(map[string]struct{}, len(changed))
	for _, c := range changed {
		seen[c] = struct{}{}
	}
	queue := append([]string(nil), changed...)
	affected := make(map[string]struct{})
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		for _, dep := range a.cg.Dependents(c) {
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			affected[dep] = struct{}{}
			queue = append(queue, dep)
		}
	}
	return sortedSet(affected)
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
