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
	"fmt"

	"github.com/AleutianAI/modtrace/services/trace/deps"
	"github.com/AleutianAI/modtrace/services/trace/registry"
)

// GraphSchemaVersion is the version of the serialization schema.
// Increment when the serialization format changes in a breaking way.
const GraphSchemaVersion = "1.0"

// SerializableGraph is the JSON-serializable representation of a ClassGraph
// and its module projection.
//
// Description:
//
//	Nodes, edges and module edges are sorted for deterministic output,
//	enabling reliable diffing and content hashing. ModuleEdges is derived
//	data: it is written for readers of the JSON and ignored by
//	FromSerializable, which projects again from the class edges.
//
// Thread Safety: SerializableGraph is a value type with no internal state.
type SerializableGraph struct {
	// SchemaVersion identifies the serialization format version.
	SchemaVersion string `json:"schema_version"`

	// ProjectRoot is the absolute path to the analysis root.
	ProjectRoot string `json:"project_root"`

	// BuiltAtMilli is the Unix timestamp in milliseconds when the graph was frozen.
	BuiltAtMilli int64 `json:"built_at_milli"`

	// GraphHash is the deterministic hash of the graph structure.
	GraphHash string `json:"graph_hash"`

	// Modules lists every known module, sorted.
	Modules []string `json:"modules"`

	// Nodes contains all classes, sorted by ID.
	Nodes []SerializableNode `json:"nodes"`

	// Edges contains all class edges, sorted by (from, to).
	Edges []SerializableEdge `json:"edges"`

	// ModuleEdges contains the module projection, sorted by (from, to).
	ModuleEdges []ModuleEdge `json:"module_edges"`
}

// SerializableNode is the JSON-serializable representation of a Node.
type SerializableNode struct {
	ID       string `json:"id"`
	Module   string `json:"module"`
	Package  string `json:"package"`
	FilePath string `json:"file_path"`
}

// SerializableEdge is the JSON-serializable representation of an Edge.
type SerializableEdge struct {
	// FromID is the FQN of the dependent class.
	FromID string `json:"from_id"`

	// ToID is the FQN of the class depended upon.
	ToID string `json:"to_id"`

	// Rules is the human-readable rule list (e.g., "import+usage").
	Rules string `json:"rules"`

	// RuleCode is the rule bitmask for exact reconstruction.
	RuleCode deps.Rule `json:"rule_code"`
}

// ToSerializable converts a ClassGraph to its JSON-serializable representation.
//
// Complexity:
//
//	O(V log V + E log E) where V is node count and E is edge count.
//
// Thread Safety:
//
//	Safe for concurrent use on frozen graphs.
func (g *ClassGraph) ToSerializable() *SerializableGraph {
	if g == nil {
		return &SerializableGraph{
			SchemaVersion: GraphSchemaVersion,
			Modules:       []string{},
			Nodes:         []SerializableNode{},
			Edges:         []SerializableEdge{},
			ModuleEdges:   []ModuleEdge{},
		}
	}

	sortedNodes := g.Nodes()
	nodes := make([]SerializableNode, 0, len(sortedNodes))
	for _, n := range sortedNodes {
		nodes = append(nodes, SerializableNode{
			ID:       n.ID,
			Module:   n.Module,
			Package:  n.Package,
			FilePath: n.FilePath,
		})
	}

	sortedEdges := g.Edges()
	edges := make([]SerializableEdge, 0, len(sortedEdges))
	for _, e := range sortedEdges {
		edges = append(edges, SerializableEdge{
			FromID:   e.FromID,
			ToID:     e.ToID,
			Rules:    e.Rules.String(),
			RuleCode: e.Rules,
		})
	}

	moduleEdges := make([]ModuleEdge, 0)
	for _, me := range ProjectModules(g).Edges() {
		moduleEdges = append(moduleEdges, *me)
	}

	return &SerializableGraph{
		SchemaVersion: GraphSchemaVersion,
		ProjectRoot:   g.ProjectRoot,
		BuiltAtMilli:  g.BuiltAtMilli,
		GraphHash:     g.Hash(),
		Modules:       g.Modules(),
		Nodes:         nodes,
		Edges:         edges,
		ModuleEdges:   moduleEdges,
	}
}

// FromSerializable reconstructs a ClassGraph from its serializable representation.
//
// Description:
//
//	Creates a new graph in building state, calls AddModule(), AddNode() and
//	AddEdge() for each entry so all adjacency lists are rebuilt through
//	the normal construction path, then calls Freeze() and restores the
//	original BuiltAtMilli.
//
// Inputs:
//
//	sg - The serializable graph to reconstruct. Must not be nil.
//	opts - Optional GraphOption values (e.g., WithMaxNodes).
//
// Outputs:
//
//	*ClassGraph - The reconstructed graph in read-only state.
//	error - Non-nil if sg is nil, the schema version is unsupported, or
//	        AddNode/AddEdge fails.
//
// Complexity:
//
//	O(V + E) where V is node count and E is edge count.
func FromSerializable(sg *SerializableGraph, opts ...GraphOption) (*ClassGraph, error) {
	if sg == nil {
		return nil, fmt.Errorf("serializable graph must not be nil")
	}
	if sg.SchemaVersion != GraphSchemaVersion {
		return nil, fmt.Errorf("%w: %q (expected %q)", ErrUnsupportedSchema, sg.SchemaVersion, GraphSchemaVersion)
	}

	g := NewClassGraph(sg.ProjectRoot, opts...)

	for _, m := range sg.Modules {
		if err := g.AddModule(m); err != nil {
			return nil, fmt.Errorf("adding module %s: %w", m, err)
		}
	}

	for _, sn := range sg.Nodes {
		unit := registry.SourceUnit{
			FQN:      sn.ID,
			Package:  sn.Package,
			FilePath: sn.FilePath,
			Module:   sn.Module,
		}
		if _, err := g.AddNode(unit); err != nil {
			return nil, fmt.Errorf("adding node %s: %w", sn.ID, err)
		}
	}

	for i, se := range sg.Edges {
		if err := g.AddEdge(se.FromID, se.ToID, se.RuleCode); err != nil {
			return nil, fmt.Errorf("adding edge %d (%s -> %s): %w", i, se.FromID, se.ToID, err)
		}
	}

	g.Freeze()
	g.BuiltAtMilli = sg.BuiltAtMilli

	return g, nil
}
