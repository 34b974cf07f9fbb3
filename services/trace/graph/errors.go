// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph provides the class dependency graph and its module projection.
//
// Nodes are registered classes keyed by FQN. Edges are directed class
// dependencies produced by the deps package; the edge set has no
// duplicates and no self-loops. The module graph groups class edges by
// the module of each endpoint and keeps the class pairs as evidence.
//
// # Thread Safety
//
// ClassGraph is NOT safe for concurrent use during building. It is designed for:
//   - Single-writer access during build phase (AddNode, AddEdge calls)
//   - Read-only access after Freeze() is called
//
// ModuleGraph is immutable once returned by ProjectModules.
//
// # Lifecycle
//
//  1. Create with NewClassGraph(projectRoot), or use Builder
//  2. Populate with AddNode(), AddModule() and AddEdge()
//  3. Call Freeze() to finalize
//  4. Query with DependenciesOf(), Dependents(), ProjectModules(), etc.
package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph operations.
var (
	// ErrGraphFrozen is returned when attempting to modify a frozen graph.
	ErrGraphFrozen = errors.New("graph is frozen and cannot be modified")

	// ErrNodeNotFound is returned when an edge references a non-existent node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrDuplicateNode is returned when adding a node with an ID that
	// already exists in the graph.
	ErrDuplicateNode = errors.New("duplicate node ID")

	// ErrSelfEdge is returned when an edge would connect a class to itself.
	ErrSelfEdge = errors.New("self edge")

	// ErrMaxNodesExceeded is returned when the graph has reached its
	// configured maximum node capacity.
	ErrMaxNodesExceeded = errors.New("maximum node count exceeded")

	// ErrMaxEdgesExceeded is returned when the graph has reached its
	// configured maximum edge capacity.
	ErrMaxEdgesExceeded = errors.New("maximum edge count exceeded")

	// ErrInvalidNode is returned for a node with an empty ID.
	ErrInvalidNode = errors.New("invalid node")

	// ErrBuildCancelled is returned when a build operation is cancelled via context.
	ErrBuildCancelled = errors.New("build cancelled")

	// ErrUnsupportedSchema is returned when a serialized graph has an
	// unknown schema version.
	ErrUnsupportedSchema = errors.New("unsupported schema version")

	// ErrSnapshotNotFound is returned when a snapshot ID or latest pointer
	// does not exist.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// FileError represents a class whose text could not be read while
// extracting its dependencies.
type FileError struct {
	// Class is the FQN whose text was requested.
	Class string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e FileError) Error() string {
	return fmt.Sprintf("class %s: %v", e.Class, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e FileError) Unwrap() error {
	return e.Err
}
