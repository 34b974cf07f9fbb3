// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package expose

import (
	"context"
	"sort"

	"github.com/AleutianAI/modtrace/services/trace/deps"
)

// ModuleClasses is a group of classes from one module.
type ModuleClasses struct {
	Module  string   `json:"module"`
	Classes []string `json:"classes"`
}

// ClassEntry is one listed class with its cross-module links.
//
// For an exposed class Links are its callers grouped by caller module.
// For a caller class Links are the exposed classes it uses, grouped by
// their module.
type ClassEntry struct {
	Class string          `json:"class"`
	Links []ModuleClasses `json:"links,omitempty"`
}

// ModuleReport is the listing of one module.
type ModuleReport struct {
	Module string `json:"module"`

	// DependenciesTo is the number of modules whose API this module calls.
	DependenciesTo int `json:"dependencies_to"`

	// DependedBy is the number of modules calling this module's API.
	DependedBy int `json:"depended_by"`

	Exposed []ClassEntry `json:"exposed"`
	Callers []ClassEntry `json:"callers,omitempty"`
}

// Report is the exposed API listing of a project.
type Report struct {
	ShowDependency bool           `json:"show_dependency"`
	Modules        []ModuleReport `json:"modules"`
}

// IsEmpty reports whether there is nothing to display.
func (r *Report) IsEmpty() bool {
	return r == nil || len(r.Modules) == 0
}

// Analyze scans exposed classes and, when showDependency is set, their
// callers, and assembles the report.
func Analyze(ctx context.Context, ext *deps.Extractor, showDependency bool, opts ...Option) (*Report, error) {
	exposed := ScanExposed(ext.Registry(), opts...)
	var idx *CallerIndex
	if showDependency {
		var err error
		idx, err = BuildCallerIndex(ctx, ext, exposed, opts...)
		if err != nil {
			return nil, err
		}
	}
	return BuildReport(exposed, idx, showDependency), nil
}

// BuildReport assembles the per-module listing.
//
// Description:
//
//	Without dependencies only modules that expose classes are listed.
//	With dependencies every module known to idx is listed as well, and
//	each module header carries the number of distinct modules it calls
//	into and is called from. Modules, classes and link groups are sorted.
//
// Inputs:
//
//	exposed - Output of ScanExposed.
//	idx - Output of BuildCallerIndex. Ignored unless showDependency.
//	showDependency - Include callers and counts.
func BuildReport(exposed Exposed, idx *CallerIndex, showDependency bool) *Report {
	if idx == nil {
		showDependency = false
	}

	names := make(map[string]struct{}, len(exposed))
	for m := range exposed {
		names[m] = struct{}{}
	}
	if showDependency {
		for m := range idx.ModuleCallers {
			names[m] = struct{}{}
		}
	}

	report := &Report{ShowDependency: showDependency, Modules: make([]ModuleReport, 0, len(names))}
	for _, m := range sortedKeys(names) {
		mr := ModuleReport{Module: m, Exposed: []ClassEntry{}}

		dependedBy := make(map[string]struct{})
		for _, cls := range exposed[m] {
			entry := ClassEntry{Class: cls}
			if showDependency {
				entry.Links = groups(idx.DependenciesFrom[cls])
				for _, g := range entry.Links {
					dependedBy[g.Module] = struct{}{}
				}
			}
			mr.Exposed = append(mr.Exposed, entry)
		}

		if showDependency {
			dependsOn := make(map[string]struct{})
			for _, cls := range idx.ModuleCallers[m] {
				entry := ClassEntry{Class: cls, Links: groups(idx.DependenciesTo[cls])}
				for _, g := range entry.Links {
					dependsOn[g.Module] = struct{}{}
				}
				mr.Callers = append(mr.Callers, entry)
			}
			mr.DependenciesTo = len(dependsOn)
			mr.DependedBy = len(dependedBy)
		}

		report.Modules = append(report.Modules, mr)
	}
	return report
}

func groups(m map[string][]string) []ModuleClasses {
	if len(m) == 0 {
		return nil
	}
	out := make([]ModuleClasses, 0, len(m))
	for module, classes := range m {
		out = append(out, ModuleClasses{Module: module, Classes: classes})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Module < out[j].Module })
	return out
}
