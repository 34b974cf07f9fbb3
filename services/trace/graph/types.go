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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/AleutianAI/modtrace/services/trace/deps"
	"github.com/AleutianAI/modtrace/services/trace/registry"
)

// Default configuration values.
const (
	// DefaultMaxNodes is the default maximum number of classes a graph can hold.
	DefaultMaxNodes = 500_000

	// DefaultMaxEdges is the default maximum number of class edges.
	DefaultMaxEdges = 5_000_000
)

// GraphState represents the lifecycle state of the graph.
type GraphState int

const (
	// GraphStateBuilding indicates the graph is accepting AddNode/AddEdge calls.
	GraphStateBuilding GraphState = iota

	// GraphStateReadOnly indicates the graph is frozen and read-only.
	GraphStateReadOnly
)

// String returns the string representation of the GraphState.
func (s GraphState) String() string {
	switch s {
	case GraphStateBuilding:
		return "building"
	case GraphStateReadOnly:
		return "readonly"
	default:
		return "unknown"
	}
}

// Edge is a directed class dependency.
//
// At most one Edge exists per (FromID, ToID). Rules accumulates every
// rule that detected the dependency.
type Edge struct {
	// FromID is the FQN of the dependent class.
	FromID string

	// ToID is the FQN of the class depended upon.
	ToID string

	// Rules records which extraction rules found this edge.
	Rules deps.Rule
}

// Node is one class in the graph with its relationships.
type Node struct {
	// ID is the class FQN.
	ID string

	// Module is the first path segment of the class file under the root.
	Module string

	// Package is the declared package.
	Package string

	// FilePath is the absolute path of the class file.
	FilePath string

	// Outgoing contains edges where this class is the dependent.
	Outgoing []*Edge

	// Incoming contains edges where this class is depended upon.
	Incoming []*Edge
}

// GraphOptions configures ClassGraph limits.
type GraphOptions struct {
	// MaxNodes is the maximum number of classes the graph can hold.
	MaxNodes int

	// MaxEdges is the maximum number of edges the graph can hold.
	MaxEdges int
}

// DefaultGraphOptions returns sensible defaults for graph configuration.
func DefaultGraphOptions() GraphOptions {
	return GraphOptions{
		MaxNodes: DefaultMaxNodes,
		MaxEdges: DefaultMaxEdges,
	}
}

// GraphOption is a functional option for configuring ClassGraph.
type GraphOption func(*GraphOptions)

// WithMaxNodes sets the maximum number of classes the graph can hold.
func WithMaxNodes(n int) GraphOption {
	return func(o *GraphOptions) {
		o.MaxNodes = n
	}
}

// WithMaxEdges sets the maximum number of edges the graph can hold.
func WithMaxEdges(n int) GraphOption {
	return func(o *GraphOptions) {
		o.MaxEdges = n
	}
}

type edgeKey struct {
	from, to string
}

// ClassGraph is the class-level dependency graph for one analysis run.
//
// Thread Safety:
//
//	NOT safe for concurrent use during building. After Freeze() the graph
//	can be read from multiple goroutines.
type ClassGraph struct {
	// ProjectRoot is the absolute path to the analysis root.
	ProjectRoot string

	nodes   map[string]*Node
	edges   []*Edge
	edgeSet map[edgeKey]*Edge

	// modules holds directory-discovered modules; node modules are
	// merged in by Modules().
	modules map[string]struct{}

	state   GraphState
	options GraphOptions

	// BuiltAtMilli is the Unix timestamp in milliseconds when Freeze() was called.
	BuiltAtMilli int64
}

// NewClassGraph creates an empty graph in the Building state.
func NewClassGraph(projectRoot string, opts ...GraphOption) *ClassGraph {
	options := DefaultGraphOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &ClassGraph{
		ProjectRoot: projectRoot,
		nodes:       make(map[string]*Node),
		edges:       make([]*Edge, 0),
		edgeSet:     make(map[edgeKey]*Edge),
		modules:     make(map[string]struct{}),
		state:       GraphStateBuilding,
		options:     options,
	}
}

// State returns the current lifecycle state of the graph.
func (g *ClassGraph) State() GraphState {
	return g.state
}

// IsFrozen returns true if the graph is in read-only mode.
func (g *ClassGraph) IsFrozen() bool {
	return g.state == GraphStateReadOnly
}

// Freeze transitions the graph to read-only mode and stamps BuiltAtMilli.
//
// Adjacency lists are sorted by the far endpoint so every query over a
// frozen graph is deterministic.
func (g *ClassGraph) Freeze() {
	for _, n := range g.nodes {
		sort.Slice(n.Outgoing, func(i, j int) bool { return n.Outgoing[i].ToID < n.Outgoing[j].ToID })
		sort.Slice(n.Incoming, func(i, j int) bool { return n.Incoming[i].FromID < n.Incoming[j].FromID })
	}
	g.state = GraphStateReadOnly
	g.BuiltAtMilli = time.Now().UnixMilli()
}

// NodeCount returns the number of classes.
func (g *ClassGraph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of class edges.
func (g *ClassGraph) EdgeCount() int {
	return len(g.edges)
}

// AddNode adds a class to the graph.
//
// Outputs:
//
//	*Node - The created node.
//	error - ErrGraphFrozen, ErrInvalidNode, ErrDuplicateNode or
//	        ErrMaxNodesExceeded.
func (g *ClassGraph) AddNode(unit registry.SourceUnit) (*Node, error) {
	if g.state == GraphStateReadOnly {
		return nil, ErrGraphFrozen
	}
	if unit.FQN == "" {
		return nil, fmt.Errorf("%w: empty FQN", ErrInvalidNode)
	}
	if _, exists := g.nodes[unit.FQN]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, unit.FQN)
	}
	if len(g.nodes) >= g.options.MaxNodes {
		return nil, ErrMaxNodesExceeded
	}

	node := &Node{
		ID:       unit.FQN,
		Module:   unit.Module,
		Package:  unit.Package,
		FilePath: unit.FilePath,
		Outgoing: make([]*Edge, 0),
		Incoming: make([]*Edge, 0),
	}
	g.nodes[unit.FQN] = node
	return node, nil
}

// AddModule records a module discovered from the directory layout, so it
// is present in projections even when none of its classes have edges.
func (g *ClassGraph) AddModule(name string) error {
	if g.state == GraphStateReadOnly {
		return ErrGraphFrozen
	}
	if name != "" {
		g.modules[name] = struct{}{}
	}
	return nil
}

// AddEdge records that class fromID depends on class toID.
//
// Description:
//
//	The edge set has set semantics: adding an existing edge merges rules
//	into it and is not an error. Self edges are rejected.
//
// Outputs:
//
//	error - ErrGraphFrozen, ErrSelfEdge, ErrNodeNotFound or
//	        ErrMaxEdgesExceeded.
func (g *ClassGraph) AddEdge(fromID, toID string, rules deps.Rule) error {
	if g.state == GraphStateReadOnly {
		return ErrGraphFrozen
	}
	if fromID == toID {
		return fmt.Errorf("%w: %s", ErrSelfEdge, fromID)
	}
	from, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("%w: source %s", ErrNodeNotFound, fromID)
	}
	to, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("%w: target %s", ErrNodeNotFound, toID)
	}

	key := edgeKey{from: fromID, to: toID}
	if existing, ok := g.edgeSet[key]; ok {
		existing.Rules |= rules
		return nil
	}
	if len(g.edges) >= g.options.MaxEdges {
		return ErrMaxEdgesExceeded
	}

	edge := &Edge{FromID: fromID, ToID: toID, Rules: rules}
	g.edges = append(g.edges, edge)
	g.edgeSet[key] = edge
	from.Outgoing = append(from.Outgoing, edge)
	to.Incoming = append(to.Incoming, edge)
	return nil
}

// GetNode returns the node for a class FQN.
func (g *ClassGraph) GetNode(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes sorted by ID.
func (g *ClassGraph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edges returns all edges sorted by (FromID, ToID).
func (g *ClassGraph) Edges() []*Edge {
	out := make([]*Edge, len(g.edges))
	copy(out, g.edges)
	sortEdges(out)
	return out
}

// HasEdge reports whether from depends on to.
func (g *ClassGraph) HasEdge(from, to string) bool {
	_, ok := g.edgeSet[edgeKey{from: from, to: to}]
	return ok
}

// DependenciesOf returns the classes fqn depends on, sorted.
//
// Returns nil for unknown classes.
func (g *ClassGraph) DependenciesOf(fqn string) []string {
	n, ok := g.nodes[fqn]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(n.Outgoing))
	for _, e := range n.Outgoing {
		out = append(out, e.ToID)
	}
	sort.Strings(out)
	return out
}

// Dependents returns the classes that depend on fqn, sorted.
func (g *ClassGraph) Dependents(fqn string) []string {
	n, ok := g.nodes[fqn]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(n.Incoming))
	for _, e := range n.Incoming {
		out = append(out, e.FromID)
	}
	sort.Strings(out)
	return out
}

// Modules returns every module known to the graph, sorted: those added
// with AddModule plus the module of every node.
func (g *ClassGraph) Modules() []string {
	set := make(map[string]struct{}, len(g.modules))
	for m := range g.modules {
		set[m] = struct{}{}
	}
	for _, n := range g.nodes {
		if n.Module != "" {
			set[n.Module] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// ClassesInModule returns the FQNs of the classes in module, sorted.
func (g *ClassGraph) ClassesInModule(module string) []string {
	var out []string
	for id, n := range g.nodes {
		if n.Module == module {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Hash returns a deterministic content hash of the graph structure.
//
// The hash covers node IDs with their modules, the module set, and the
// edge set. It ignores BuiltAtMilli and file paths, so two builds of the
// same tree at different locations hash the same.
//
// Complexity: O(V log V + E log E).
func (g *ClassGraph) Hash() string {
	h := sha256.New()
	for _, m := range g.Modules() {
		fmt.Fprintf(h, "m|%s\n", m)
	}
	for _, n := range g.Nodes() {
		fmt.Fprintf(h, "n|%s|%s\n", n.ID, n.Module)
	}
	for _, e := range g.Edges() {
		fmt.Fprintf(h, "e|%s|%s\n", e.FromID, e.ToID)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sortEdges(edges []*Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].FromID != edges[j].FromID {
			return edges[i].FromID < edges[j].FromID
		}
		return edges[i].ToID < edges[j].ToID
	})
}
