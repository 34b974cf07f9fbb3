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
	"sort"
)

// SnapshotDiff contains the differences between two graph snapshots.
type SnapshotDiff struct {
	// BaseSnapshotID is the ID of the base snapshot.
	BaseSnapshotID string `json:"base_snapshot_id"`

	// TargetSnapshotID is the ID of the target snapshot.
	TargetSnapshotID string `json:"target_snapshot_id"`

	// ClassesAdded are FQNs present in target but not in base.
	ClassesAdded []string `json:"classes_added"`

	// ClassesRemoved are FQNs present in base but not in target.
	ClassesRemoved []string `json:"classes_removed"`

	// ClassesMoved are classes whose module changed.
	ClassesMoved []ClassMove `json:"classes_moved"`

	// EdgesAdded are class edges in target but not in base.
	EdgesAdded []ClassPair `json:"edges_added"`

	// EdgesRemoved are class edges in base but not in target.
	EdgesRemoved []ClassPair `json:"edges_removed"`

	// ModuleEdgesAdded are module edges in target but not in base.
	ModuleEdgesAdded []ModulePair `json:"module_edges_added"`

	// ModuleEdgesRemoved are module edges in base but not in target.
	ModuleEdgesRemoved []ModulePair `json:"module_edges_removed"`

	// Summary contains aggregate statistics about the diff.
	Summary DiffSummary `json:"summary"`
}

// ClassMove describes a class that exists in both graphs under different modules.
type ClassMove struct {
	Class      string `json:"class"`
	FromModule string `json:"from_module"`
	ToModule   string `json:"to_module"`
}

// ModulePair identifies a module edge without its evidence.
type ModulePair struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DiffSummary contains aggregate statistics about a diff.
type DiffSummary struct {
	// TotalChanges counts every class, edge and module edge change.
	TotalChanges int `json:"total_changes"`

	// ModulesAffected is the number of distinct modules touched by a change.
	ModulesAffected int `json:"modules_affected"`

	// ChangeRatio is the fraction of classes that changed (0.0 to 1.0).
	ChangeRatio float64 `json:"change_ratio"`
}

// IsEmpty reports whether the two graphs were structurally identical.
func (d *SnapshotDiff) IsEmpty() bool {
	return d.Summary.TotalChanges == 0
}

// DiffSnapshots computes the differences between two graphs.
//
// Description:
//
//	Compares classes by FQN, class edges by (from, to), and module edges
//	by (from, to) after projecting each graph. A class present in both
//	with a different module is reported as moved rather than as a
//	remove plus add.
//
// Inputs:
//
//	base - The base graph for comparison. Must not be nil.
//	target - The target graph for comparison. Must not be nil.
//	baseSnapshotID - ID of the base snapshot (for labeling).
//	targetSnapshotID - ID of the target snapshot (for labeling).
//
// Outputs:
//
//	*SnapshotDiff - The computed differences, every list sorted.
//	error - Non-nil if either graph is nil.
//
// Complexity:
//
//	O(V + E log E) over the larger of the two graphs.
func DiffSnapshots(base, target *ClassGraph, baseSnapshotID, targetSnapshotID string) (*SnapshotDiff, error) {
	if base == nil {
		return nil, fmt.Errorf("base graph must not be nil")
	}
	if target == nil {
		return nil, fmt.Errorf("target graph must not be nil")
	}

	diff := &SnapshotDiff{
		BaseSnapshotID:     baseSnapshotID,
		TargetSnapshotID:   targetSnapshotID,
		ClassesAdded:       []string{},
		ClassesRemoved:     []string{},
		ClassesMoved:       []ClassMove{},
		EdgesAdded:         []ClassPair{},
		EdgesRemoved:       []ClassPair{},
		ModuleEdgesAdded:   []ModulePair{},
		ModuleEdgesRemoved: []ModulePair{},
	}
	affected := make(map[string]struct{})

	for id, tNode := range target.nodes {
		bNode, exists := base.nodes[id]
		if !exists {
			diff.ClassesAdded = append(diff.ClassesAdded, id)
			affected[tNode.Module] = struct{}{}
			continue
		}
		if bNode.Module != tNode.Module {
			diff.ClassesMoved = append(diff.ClassesMoved, ClassMove{
				Class:      id,
				FromModule: bNode.Module,
				ToModule:   tNode.Module,
			})
			affected[bNode.Module] = struct{}{}
			affected[tNode.Module] = struct{}{}
		}
	}
	for id, bNode := range base.nodes {
		if _, exists := target.nodes[id]; !exists {
			diff.ClassesRemoved = append(diff.ClassesRemoved, id)
			affected[bNode.Module] = struct{}{}
		}
	}

	sort.Strings(diff.ClassesAdded)
	sort.Strings(diff.ClassesRemoved)
	sort.Slice(diff.ClassesMoved, func(i, j int) bool {
		return diff.ClassesMoved[i].Class < diff.ClassesMoved[j].Class
	})

	for _, e := range target.Edges() {
		if !base.HasEdge(e.FromID, e.ToID) {
			diff.EdgesAdded = append(diff.EdgesAdded, ClassPair{From: e.FromID, To: e.ToID})
			affected[target.nodes[e.FromID].Module] = struct{}{}
		}
	}
	for _, e := range base.Edges() {
		if !target.HasEdge(e.FromID, e.ToID) {
			diff.EdgesRemoved = append(diff.EdgesRemoved, ClassPair{From: e.FromID, To: e.ToID})
			affected[base.nodes[e.FromID].Module] = struct{}{}
		}
	}

	baseModules := ProjectModules(base)
	targetModules := ProjectModules(target)
	for _, me := range targetModules.Edges() {
		if _, ok := baseModules.Edge(me.From, me.To); !ok {
			diff.ModuleEdgesAdded = append(diff.ModuleEdgesAdded, ModulePair{From: me.From, To: me.To})
		}
	}
	for _, me := range baseModules.Edges() {
		if _, ok := targetModules.Edge(me.From, me.To); !ok {
			diff.ModuleEdgesRemoved = append(diff.ModuleEdgesRemoved, ModulePair{From: me.From, To: me.To})
		}
	}

	totalClasses := len(base.nodes)
	if len(target.nodes) > totalClasses {
		totalClasses = len(target.nodes)
	}
	changedClasses := len(diff.ClassesAdded) + len(diff.ClassesRemoved) + len(diff.ClassesMoved)
	changeRatio := 0.0
	if totalClasses > 0 {
		changeRatio = float64(changedClasses) / float64(totalClasses)
	}

	diff.Summary = DiffSummary{
		TotalChanges: changedClasses + len(diff.EdgesAdded) + len(diff.EdgesRemoved) +
			len(diff.ModuleEdgesAdded) + len(diff.ModuleEdgesRemoved),
		ModulesAffected: len(affected),
		ChangeRatio:     changeRatio,
	}

	return diff, nil
}
