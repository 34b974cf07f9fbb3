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
	"sort"
)

// ClassPair is one class edge offered as evidence for a module edge.
type ClassPair struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ModuleEdge is a dependency between two distinct modules.
type ModuleEdge struct {
	From string `json:"from"`
	To   string `json:"to"`

	// Evidence lists the class edges behind this module edge, sorted.
	Evidence []ClassPair `json:"evidence"`
}

// ModuleGraph is the projection of a ClassGraph onto modules.
//
// Thread Safety: Immutable after ProjectModules returns.
type ModuleGraph struct {
	modules []string
	out     map[string][]*ModuleEdge
	in      map[string][]*ModuleEdge
	edges   []*ModuleEdge
	index   map[edgeKey]*ModuleEdge
}

// ProjectModules groups the class edges of cg by module.
//
// Description:
//
//	For every class edge whose endpoints lie in different modules, a
//	module edge From -> To is created (or extended) with the class pair
//	as evidence. Class edges inside one module produce nothing, so the
//	module graph never has self edges. Every module known to cg appears in
//	Modules() even when it has no edges.
//
// Complexity: O(E log E) where E is the class edge count.
func ProjectModules(cg *ClassGraph) *ModuleGraph {
	mg := &ModuleGraph{
		modules: cg.Modules(),
		out:     make(map[string][]*ModuleEdge),
		in:      make(map[string][]*ModuleEdge),
		index:   make(map[edgeKey]*ModuleEdge),
	}

	for _, e := range cg.Edges() {
		from := cg.nodes[e.FromID].Module
		to := cg.nodes[e.ToID].Module
		if from == to {
			continue
		}
		key := edgeKey{from: from, to: to}
		me, ok := mg.index[key]
		if !ok {
			me = &ModuleEdge{From: from, To: to}
			mg.index[key] = me
			mg.edges = append(mg.edges, me)
			mg.out[from] = append(mg.out[from], me)
			mg.in[to] = append(mg.in[to], me)
		}
		// cg.Edges() is sorted, so evidence is appended in order.
		me.Evidence = append(me.Evidence, ClassPair{From: e.FromID, To: e.ToID})
	}

	sortModuleEdges(mg.edges)
	for _, list := range mg.out {
		sortModuleEdges(list)
	}
	for _, list := range mg.in {
		sortModuleEdges(list)
	}
	return mg
}

// Modules returns all modules, sorted.
func (mg *ModuleGraph) Modules() []string {
	out := make([]string, len(mg.modules))
	copy(out, mg.modules)
	return out
}

// HasModule reports whether m is a known module.
func (mg *ModuleGraph) HasModule(m string) bool {
	i := sort.SearchStrings(mg.modules, m)
	return i < len(mg.modules) && mg.modules[i] == m
}

// Edges returns every module edge sorted by (From, To).
func (mg *ModuleGraph) Edges() []*ModuleEdge {
	out := make([]*ModuleEdge, len(mg.edges))
	copy(out, mg.edges)
	return out
}

// EdgeCount returns the number of module edges.
func (mg *ModuleGraph) EdgeCount() int {
	return len(mg.edges)
}

// Edge returns the module edge from -> to if present.
func (mg *ModuleGraph) Edge(from, to string) (*ModuleEdge, bool) {
	e, ok := mg.index[edgeKey{from: from, to: to}]
	return e, ok
}

// EdgesFrom returns the edges leaving m, sorted by To.
func (mg *ModuleGraph) EdgesFrom(m string) []*ModuleEdge {
	out := make([]*ModuleEdge, len(mg.out[m]))
	copy(out, mg.out[m])
	return out
}

// DependedBy returns the edges entering m, sorted by From.
func (mg *ModuleGraph) DependedBy(m string) []*ModuleEdge {
	out := make([]*ModuleEdge, len(mg.in[m]))
	copy(out, mg.in[m])
	return out
}

// DependenciesOf returns the modules m depends on, sorted.
func (mg *ModuleGraph) DependenciesOf(m string) []string {
	out := make([]string, 0, len(mg.out[m]))
	for _, e := range mg.out[m] {
		out = append(out, e.To)
	}
	return out
}

// DependentsOf returns the modules that depend on m, sorted.
func (mg *ModuleGraph) DependentsOf(m string) []string {
	out := make([]string, 0, len(mg.in[m]))
	for _, e := range mg.in[m] {
		out = append(out, e.From)
	}
	return out
}

func sortModuleEdges(edges []*ModuleEdge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
}
