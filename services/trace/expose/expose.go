// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package expose lists the public API classes of each module and the
// classes in other modules that call them.
//
// A class is exposed when its file lies under a directory named "expose"
// (configurable) and its base name does not end in one of the data-only
// suffixes Dto, Input or Output. A caller is any class outside an expose
// directory, in a different module, that references an exposed class
// under the same gate the dependency extractor uses for usage: an import
// of the exposed FQN, or a whole-word use of its simple name from the same
// package.
package expose

import (
	"context"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/AleutianAI/modtrace/services/trace/deps"
	"github.com/AleutianAI/modtrace/services/trace/registry"
)

// Defaults for exposed class selection.
const DefaultExposeDir = "expose"

// DefaultExcludeSuffixes are base-name suffixes of data-only classes.
var DefaultExcludeSuffixes = []string{"Dto", "Input", "Output"}

// Options configures exposed class selection.
type Options struct {
	// ExposeDir is the directory name marking a module's public API.
	// Default: "expose"
	ExposeDir string

	// ExcludeSuffixes are class-name suffixes left out of the API set.
	// Default: Dto, Input, Output
	ExcludeSuffixes []string

	// Logger receives warnings for unreadable callers.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		ExposeDir:       DefaultExposeDir,
		ExcludeSuffixes: append([]string(nil), DefaultExcludeSuffixes...),
		Logger:          slog.Default(),
	}
}

// Option is a functional option.
type Option func(*Options)

// WithExposeDir overrides the expose directory name.
func WithExposeDir(dir string) Option {
	return func(o *Options) {
		if dir != "" {
			o.ExposeDir = dir
		}
	}
}

// WithExcludeSuffixes overrides the excluded suffixes. A nil slice keeps
// the defaults; an empty one disables exclusion.
func WithExcludeSuffixes(suffixes []string) Option {
	return func(o *Options) {
		if suffixes != nil {
			o.ExcludeSuffixes = suffixes
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

func buildOptions(opts []Option) Options {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// Exposed maps a module to its exposed class FQNs, sorted.
// Modules without exposed classes are absent.
type Exposed map[string][]string

// Module returns the module an exposed class belongs to, or "".
func (e Exposed) Module(fqn string) string {
	for m, classes := range e {
		i := sort.SearchStrings(classes, fqn)
		if i < len(classes) && classes[i] == fqn {
			return m
		}
	}
	return ""
}

// Count returns the number of exposed classes.
func (e Exposed) Count() int {
	n := 0
	for _, classes := range e {
		n += len(classes)
	}
	return n
}

// ScanExposed collects the exposed classes of every module.
//
// The module of an exposed class is the first path segment of its file,
// not a segment of its package.
func ScanExposed(reg *registry.Registry, opts ...Option) Exposed {
	options := buildOptions(opts)
	out := make(Exposed)
	for _, u := range reg.Units() {
		if !inDir(reg.RelPath(u.FilePath), options.ExposeDir) {
			continue
		}
		if hasSuffix(u.SimpleName(), options.ExcludeSuffixes) {
			continue
		}
		out[u.Module] = append(out[u.Module], u.FQN)
	}
	// Units() is sorted by FQN, so each slice already is.
	return out
}

// CallerIndex relates exposed classes to the classes that call them.
type CallerIndex struct {
	// DependenciesTo maps caller FQN -> exposed module -> exposed FQNs.
	DependenciesTo map[string]map[string][]string `json:"dependencies_to"`

	// DependenciesFrom maps exposed FQN -> caller module -> caller FQNs.
	DependenciesFrom map[string]map[string][]string `json:"dependencies_from"`

	// ModuleCallers maps every discovered module to its caller classes.
	// Modules without callers map to an empty slice.
	ModuleCallers map[string][]string `json:"module_callers"`
}

// BuildCallerIndex finds the cross-module callers of exposed classes.
//
// Description:
//
//	Every registered class outside an expose directory and with a known
//	module is tested against every exposed class of a different module.
//	The test is deps.Extractor.References. All result slices are sorted.
//
// Inputs:
//
//	ctx - Checked before each candidate caller.
//	ext - Extractor built over the same registry.
//	exposed - Output of ScanExposed.
//
// Outputs:
//
//	*CallerIndex - The relations.
//	error - ctx.Err() on cancellation.
//
// Complexity: O(classes × exposed classes) text searches.
func BuildCallerIndex(ctx context.Context, ext *deps.Extractor, exposed Exposed, opts ...Option) (*CallerIndex, error) {
	options := buildOptions(opts)
	reg := ext.Registry()

	to := make(map[string]map[string]map[string]struct{})
	from := make(map[string]map[string]map[string]struct{})
	callers := make(map[string]map[string]struct{})
	for _, m := range reg.Modules() {
		callers[m] = make(map[string]struct{})
	}

	modules := make([]string, 0, len(exposed))
	for m := range exposed {
		modules = append(modules, m)
	}
	sort.Strings(modules)

	for _, u := range reg.Units() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if u.Module == registry.UnknownModule || inDir(reg.RelPath(u.FilePath), options.ExposeDir) {
			continue
		}
		text, err := reg.Text(u.FQN)
		if err != nil {
			options.Logger.Warn("skipping unreadable caller",
				slog.String("class", u.FQN),
				slog.String("error", err.Error()),
			)
			continue
		}

		for _, target := range modules {
			if target == u.Module {
				continue
			}
			for _, api := range exposed[target] {
				if !ext.References(text, api) {
					continue
				}
				addNested(to, u.FQN, target, api)
				addNested(from, api, u.Module, u.FQN)
				if callers[u.Module] == nil {
					callers[u.Module] = make(map[string]struct{})
				}
				callers[u.Module][u.FQN] = struct{}{}
			}
		}
	}

	idx := &CallerIndex{
		DependenciesTo:   flattenNested(to),
		DependenciesFrom: flattenNested(from),
		ModuleCallers:    make(map[string][]string, len(callers)),
	}
	for m, set := range callers {
		idx.ModuleCallers[m] = sortedKeys(set)
	}
	return idx, nil
}

// inDir reports whether the slash-separated relative path has a directory
// segment named dir.
func inDir(rel, dir string) bool {
	segments := strings.Split(path.Dir(rel), "/")
	for _, s := range segments {
		if s == dir {
			return true
		}
	}
	return false
}

func hasSuffix(name string, suffixes []string) bool {
	for _, s := range suffixes {
		if s != "" && strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

func addNested(m map[string]map[string]map[string]struct{}, a, b, c string) {
	inner, ok := m[a]
	if !ok {
		inner = make(map[string]map[string]struct{})
		m[a] = inner
	}
	set, ok := inner[b]
	if !ok {
		set = make(map[string]struct{})
		inner[b] = set
	}
	set[c] = struct{}{}
}

func flattenNested(m map[string]map[string]map[string]struct{}) map[string]map[string][]string {
	out := make(map[string]map[string][]string, len(m))
	for a, inner := range m {
		flat := make(map[string][]string, len(inner))
		for b, set := range inner {
			flat[b] = sortedKeys(set)
		}
		out[a] = flat
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
