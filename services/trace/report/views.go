// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/modtrace/services/trace/expose"
	"github.com/AleutianAI/modtrace/services/trace/graph"
	"github.com/AleutianAI/modtrace/services/trace/impact"
	"github.com/AleutianAI/modtrace/services/trace/registry"
	"github.com/AleutianAI/modtrace/services/trace/result"
	"github.com/AleutianAI/modtrace/services/trace/tables"
)

// Matches renders traced call sites grouped by module.
//
// Each match is "  - Simple.method -> argument", or without the arrow
// when no argument was resolved. With showChain the class chain follows
// on its own line.
func (r *Renderer) Matches(groups []result.ModuleGroup, showChain bool) error {
	if len(groups) == 0 {
		r.line("No matches found")
		return r.flush()
	}

	r.line("")
	for _, g := range groups {
		r.line("%s", r.moduleHeader(g.Module))
		for _, m := range g.Matches {
			site := r.paint(r.styles.Class, m.SimpleClassName()+"."+m.MethodName)
			if m.HasArgument() {
				r.line("  - %s -> %s", site, r.paint(r.styles.Target, m.DisplayArgument()))
			} else {
				r.line("  - %s", site)
			}
			if showChain && len(m.ClassChain) > 1 {
				r.line("    %s", r.paint(r.styles.Muted, "via "+simpleChain(m.ClassChain)))
			}
		}
		r.line("")
	}
	return r.flush()
}

// Expose renders the exposed API listing.
func (r *Renderer) Expose(rep *expose.Report) error {
	if rep.IsEmpty() {
		r.line("No modules to display.")
		return r.flush()
	}

	for _, m := range rep.Modules {
		r.line("")
		header := r.moduleHeader(m.Module)
		if rep.ShowDependency {
			header += r.paint(r.styles.Muted,
				fmt.Sprintf(" (Dependencies to: %d, Depended by: %d)", m.DependenciesTo, m.DependedBy))
		}
		r.line("%s", header)

		for _, e := range m.Exposed {
			r.line("  - %s", r.paint(r.styles.Class, e.Class))
			if rep.ShowDependency && len(e.Links) > 0 {
				r.line("    Depended by:")
				r.links(e.Links)
			}
		}
		for _, e := range m.Callers {
			r.line("  - %s", e.Class)
			if len(e.Links) > 0 {
				r.line("    Dependencies to:")
				r.links(e.Links)
			}
		}
	}
	r.line("")
	return r.flush()
}

func (r *Renderer) links(links []expose.ModuleClasses) {
	for _, l := range links {
		names := make([]string, len(l.Classes))
		for i, c := range l.Classes {
			names[i] = registry.SimpleName(c)
		}
		r.line("      - %s: %s", l.Module, strings.Join(names, ", "))
	}
}

// Tables renders repository tables grouped by module.
func (r *Renderer) Tables(mods []tables.ModuleTables) error {
	if len(mods) == 0 {
		r.line("No repository classes found.")
		return r.flush()
	}

	for _, m := range mods {
		r.line("")
		r.line("%s", r.moduleHeader(m.Module))
		for _, t := range m.Tables {
			r.line("  - %s %s", r.paint(r.styles.Target, t.Name), r.paint(r.styles.Muted, "("+t.Repository+")"))
		}
	}
	r.line("")
	return r.flush()
}

// Modules renders the module graph, one block per module with its
// outgoing edges. With evidence every class pair is listed under its edge.
func (r *Renderer) Modules(mg *graph.ModuleGraph, evidence bool) error {
	if mg == nil || len(mg.Modules()) == 0 {
		r.line("No modules to display.")
		return r.flush()
	}

	for _, m := range mg.Modules() {
		r.line("")
		r.line("%s", r.moduleHeader(m))
		edges := mg.EdgesFrom(m)
		if len(edges) == 0 {
			r.line("  %s", r.paint(r.styles.Muted, "(no dependencies)"))
			continue
		}
		for _, e := range edges {
			r.line("  -> %s %s", r.paint(r.styles.Target, e.To),
				r.paint(r.styles.Muted, fmt.Sprintf("(%d class edges)", len(e.Evidence))))
			if evidence {
				for _, p := range e.Evidence {
					r.line("      %s -> %s", registry.SimpleName(p.From), registry.SimpleName(p.To))
				}
			}
		}
	}
	r.line("")
	return r.flush()
}

var statusMarks = map[impact.FileStatus]string{
	impact.StatusAdded:    "A",
	impact.StatusDeleted:  "D",
	impact.StatusModified: "M",
	impact.StatusRenamed:  "R",
}

// Impact renders an impact analysis.
func (r *Renderer) Impact(rep *impact.Report) error {
	r.line("Changed files: %d", len(rep.Files))
	for _, f := range rep.Files {
		path := f.Path
		if f.Status == impact.StatusRenamed && f.OrigPath != "" {
			path = f.OrigPath + " -> " + f.Path
		}
		r.line("  %s %s %s [%s]", statusMarks[f.Status], path,
			r.paint(r.styles.Muted, fmt.Sprintf("(+%d -%d)", f.LinesAdded, f.LinesRemoved)), f.Module)
	}

	r.line("")
	if len(rep.ChangedModules) == 0 {
		r.line("Changed modules: none")
	} else {
		r.line("Changed modules: %s", strings.Join(rep.ChangedModules, ", "))
	}

	r.line("Impacted modules:")
	if len(rep.ImpactedModules) == 0 {
		r.line("  none")
	}
	for _, m := range rep.ImpactedModules {
		r.line("  - %s %s", r.paint(r.styles.Target, m.Module),
			r.paint(r.styles.Muted, fmt.Sprintf("(distance %d, via %s)", m.Distance, m.Through)))
		for _, p := range m.Evidence {
			r.line("      %s -> %s", registry.SimpleName(p.From), registry.SimpleName(p.To))
		}
	}

	r.line("Affected classes: %d", len(rep.AffectedClasses))
	return r.flush()
}

// Snapshots renders a snapshot listing, newest first as given.
func (r *Renderer) Snapshots(metas []*graph.SnapshotMetadata) error {
	if len(metas) == 0 {
		r.line("No snapshots found.")
		return r.flush()
	}
	for _, m := range metas {
		created := time.UnixMilli(m.CreatedAtMilli).UTC().Format(time.RFC3339)
		label := m.Label
		if label == "" {
			label = "-"
		}
		r.line("%s  %s  %-16s %d classes, %d edges, %d modules",
			r.paint(r.styles.Target, m.SnapshotID), created, label, m.ClassCount, m.EdgeCount, m.ModuleCount)
	}
	return r.flush()
}

// Diff renders a snapshot diff.
func (r *Renderer) Diff(d *graph.SnapshotDiff) error {
	r.line("Diff %s -> %s", d.BaseSnapshotID, d.TargetSnapshotID)
	if d.IsEmpty() {
		r.line("No changes.")
		return r.flush()
	}

	for _, c := range d.ClassesAdded {
		r.line("%s", r.paint(r.styles.Added, "+ class "+c))
	}
	for _, c := range d.ClassesRemoved {
		r.line("%s", r.paint(r.styles.Removed, "- class "+c))
	}
	for _, mv := range d.ClassesMoved {
		r.line("~ class %s (%s -> %s)", mv.Class, mv.FromModule, mv.ToModule)
	}
	for _, e := range d.EdgesAdded {
		r.line("%s", r.paint(r.styles.Added, "+ edge "+e.From+" -> "+e.To))
	}
	for _, e := range d.EdgesRemoved {
		r.line("%s", r.paint(r.styles.Removed, "- edge "+e.From+" -> "+e.To))
	}
	for _, e := range d.ModuleEdgesAdded {
		r.line("%s", r.paint(r.styles.Added, "+ module edge "+e.From+" -> "+e.To))
	}
	for _, e := range d.ModuleEdgesRemoved {
		r.line("%s", r.paint(r.styles.Removed, "- module edge "+e.From+" -> "+e.To))
	}
	r.line("")
	r.line("%d changes across %d modules (%.0f%% of classes)",
		d.Summary.TotalChanges, d.Summary.ModulesAffected, d.Summary.ChangeRatio*100)
	return r.flush()
}

func simpleChain(chain []string) string {
	names := make([]string, len(chain))
	for i, c := range chain {
		names[i] = registry.SimpleName(c)
	}
	return strings.Join(names, " -> ")
}
