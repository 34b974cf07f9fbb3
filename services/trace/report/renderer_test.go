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
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/modtrace/services/trace/deps"
	"github.com/AleutianAI/modtrace/services/trace/expose"
	"github.com/AleutianAI/modtrace/services/trace/graph"
	"github.com/AleutianAI/modtrace/services/trace/impact"
	"github.com/AleutianAI/modtrace/services/trace/registry"
	"github.com/AleutianAI/modtrace/services/trace/result"
	"github.com/AleutianAI/modtrace/services/trace/tables"
)

func render(t *testing.T, fn func(r *Renderer) error) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, fn(NewRenderer(&buf, false)))
	return buf.String()
}

func TestMatches(t *testing.T) {
	agg := result.NewAggregator()
	agg.Add(result.TraceMatch{
		ClassChain:       []string{"order.app.OrderCommand", "order.infra.OrderRepository"},
		MatchedClass:     "order.infra.OrderRepository",
		MethodName:       "save",
		Module:           "order",
		RawArgument:      `API_BASE + "/save"`,
		ResolvedArgument: "https://orders.example.com/save",
	})
	agg.Add(result.TraceMatch{
		ClassChain:   []string{"user.service.UserService"},
		MatchedClass: "user.service.UserService",
		MethodName:   "ping",
		Module:       "user",
		RawArgument:  `""`,
	})
	agg.Add(result.TraceMatch{
		ClassChain:   []string{"product.app.ProductCommand"},
		MatchedClass: "product.app.ProductCommand",
		MethodName:   "unknown",
		Module:       "product",
	})

	got := render(t, func(r *Renderer) error { return r.Matches(agg.ByModule(), false) })
	want := "\n" +
		"[Module: order]\n" +
		"  - OrderRepository.save -> https://orders.example.com/save\n" +
		"\n" +
		"[Module: product]\n" +
		"  - ProductCommand.unknown\n" +
		"\n" +
		"[Module: user]\n" +
		"  - UserService.ping -> \"\"\n" +
		"\n"
	assert.Equal(t, want, got)

	withChain := render(t, func(r *Renderer) error { return r.Matches(agg.ByModule(), true) })
	assert.Contains(t, withChain, "    via OrderCommand -> OrderRepository\n")
	assert.NotContains(t, withChain, "via ProductCommand")
}

func TestMatches_Empty(t *testing.T) {
	got := render(t, func(r *Renderer) error { return r.Matches(nil, false) })
	assert.Equal(t, "No matches found\n", got)
}

func TestExpose(t *testing.T) {
	rep := &expose.Report{
		ShowDependency: true,
		Modules: []expose.ModuleReport{
			{
				Module:         "order",
				DependenciesTo: 1,
				Exposed:        []expose.ClassEntry{},
				Callers: []expose.ClassEntry{{
					Class: "order.app.OrderCommand",
					Links: []expose.ModuleClasses{{Module: "product", Classes: []string{"product.expose.FindProductApi"}}},
				}},
			},
			{
				Module:     "product",
				DependedBy: 1,
				Exposed: []expose.ClassEntry{{
					Class: "product.expose.FindProductApi",
					Links: []expose.ModuleClasses{{Module: "order", Classes: []string{"order.app.A", "order.app.OrderCommand"}}},
				}},
			},
		},
	}

	got := render(t, func(r *Renderer) error { return r.Expose(rep) })
	want := "\n" +
		"[Module: order] (Dependencies to: 1, Depended by: 0)\n" +
		"  - order.app.OrderCommand\n" +
		"    Dependencies to:\n" +
		"      - product: FindProductApi\n" +
		"\n" +
		"[Module: product] (Dependencies to: 0, Depended by: 1)\n" +
		"  - product.expose.FindProductApi\n" +
		"    Depended by:\n" +
		"      - order: A, OrderCommand\n" +
		"\n"
	assert.Equal(t, want, got)
}

func TestExpose_WithoutDependencies(t *testing.T) {
	rep := &expose.Report{Modules: []expose.ModuleReport{{
		Module:  "product",
		Exposed: []expose.ClassEntry{{Class: "product.expose.FindProductApi"}},
	}}}
	got := render(t, func(r *Renderer) error { return r.Expose(rep) })
	assert.Equal(t, "\n[Module: product]\n  - product.expose.FindProductApi\n\n", got)

	empty := render(t, func(r *Renderer) error { return r.Expose(&expose.Report{}) })
	assert.Equal(t, "No modules to display.\n", empty)
}

func TestTables(t *testing.T) {
	mods := []tables.ModuleTables{{
		Module: "product",
		Tables: []tables.Table{{Name: "product_stock", Repository: "ProductStockRepository"}},
	}}
	got := render(t, func(r *Renderer) error { return r.Tables(mods) })
	assert.Equal(t, "\n[Module: product]\n  - product_stock (ProductStockRepository)\n\n", got)

	empty := render(t, func(r *Renderer) error { return r.Tables(nil) })
	assert.Equal(t, "No repository classes found.\n", empty)
}

func moduleGraph(t *testing.T) *graph.ModuleGraph {
	t.Helper()
	g := graph.NewClassGraph("/p")
	for _, u := range []registry.SourceUnit{
		{FQN: "order.OrderCommand", Package: "order", Module: "order"},
		{FQN: "product.ProductApi", Package: "product", Module: "product"},
	} {
		_, err := g.AddNode(u)
		require.NoError(t, err)
	}
	require.NoError(t, g.AddEdge("order.OrderCommand", "product.ProductApi", deps.RuleImport))
	g.Freeze()
	return graph.ProjectModules(g)
}

func TestModules(t *testing.T) {
	got := render(t, func(r *Renderer) error { return r.Modules(moduleGraph(t), true) })
	want := "\n" +
		"[Module: order]\n" +
		"  -> product (1 class edges)\n" +
		"      OrderCommand -> ProductApi\n" +
		"\n" +
		"[Module: product]\n" +
		"  (no dependencies)\n" +
		"\n"
	assert.Equal(t, want, got)

	empty := render(t, func(r *Renderer) error { return r.Modules(nil, false) })
	assert.Equal(t, "No modules to display.\n", empty)
}

func TestImpact(t *testing.T) {
	rep := &impact.Report{
		Files: []impact.ChangedFile{
			{Path: "product/ProductApi.java", Status: impact.StatusModified, LinesAdded: 2, LinesRemoved: 1, Module: "product"},
		},
		ChangedModules: []string{"product"},
		ImpactedModules: []impact.ImpactedModule{{
			Module:   "order",
			Distance: 1,
			Through:  "product",
			Evidence: []graph.ClassPair{{From: "order.OrderCommand", To: "product.ProductApi"}},
		}},
		AffectedClasses: []string{"order.OrderCommand"},
	}
	got := render(t, func(r *Renderer) error { return r.Impact(rep) })
	want := "Changed files: 1\n" +
		"  M product/ProductApi.java (+2 -1) [product]\n" +
		"\n" +
		"Changed modules: product\n" +
		"Impacted modules:\n" +
		"  - order (distance 1, via product)\n" +
		"      OrderCommand -> ProductApi\n" +
		"Affected classes: 1\n"
	assert.Equal(t, want, got)
}

func TestDiff(t *testing.T) {
	d := &graph.SnapshotDiff{BaseSnapshotID: "a", TargetSnapshotID: "b"}
	assert.Equal(t, "Diff a -> b\nNo changes.\n", render(t, func(r *Renderer) error { return r.Diff(d) }))

	d.ClassesAdded = []string{"c.N"}
	d.ModuleEdgesRemoved = []graph.ModulePair{{From: "a", To: "b"}}
	d.Summary = graph.DiffSummary{TotalChanges: 2, ModulesAffected: 3, ChangeRatio: 0.5}
	got := render(t, func(r *Renderer) error { return r.Diff(d) })
	assert.Contains(t, got, "+ class c.N\n")
	assert.Contains(t, got, "- module edge a -> b\n")
	assert.Contains(t, got, "2 changes across 3 modules (50% of classes)\n")
}

func TestSnapshots(t *testing.T) {
	assert.Equal(t, "No snapshots found.\n", render(t, func(r *Renderer) error { return r.Snapshots(nil) }))

	got := render(t, func(r *Renderer) error {
		return r.Snapshots([]*graph.SnapshotMetadata{{SnapshotID: "abc", CreatedAtMilli: 0, ClassCount: 3, EdgeCount: 2, ModuleCount: 2}})
	})
	assert.Contains(t, got, "abc  1970-01-01T00:00:00Z  -")
	assert.Contains(t, got, "3 classes, 2 edges, 2 modules")
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, map[string]int{"matches": 5}))
	assert.Equal(t, "{\n  \"matches\": 5\n}\n", buf.String())

	var back map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
}

func TestColorEnabled(t *testing.T) {
	assert.False(t, ColorEnabled(nil, false))
	t.Setenv("NO_COLOR", "1")
	assert.False(t, ColorEnabled(nil, false))
}
