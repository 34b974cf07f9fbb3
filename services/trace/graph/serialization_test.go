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
	"encoding/json"
	"errors"
	"testing"
)

func TestToSerializable_EmptyGraph(t *testing.T) {
	g := NewClassGraph("/test/project")
	g.Freeze()

	sg := g.ToSerializable()

	if sg.SchemaVersion != GraphSchemaVersion {
		t.Errorf("schema version = %q, want %q", sg.SchemaVersion, GraphSchemaVersion)
	}
	if sg.ProjectRoot != "/test/project" {
		t.Errorf("project root = %q, want %q", sg.ProjectRoot, "/test/project")
	}
	if len(sg.Nodes) != 0 || len(sg.Edges) != 0 || len(sg.ModuleEdges) != 0 {
		t.Errorf("expected empty graph, got %d nodes %d edges", len(sg.Nodes), len(sg.Edges))
	}
	if sg.GraphHash == "" {
		t.Error("graph hash should not be empty")
	}
	if sg.BuiltAtMilli == 0 {
		t.Error("built_at_milli should not be zero for frozen graph")
	}
}

func TestToSerializable_NilGraph(t *testing.T) {
	var g *ClassGraph
	sg := g.ToSerializable()

	if sg.SchemaVersion != GraphSchemaVersion {
		t.Errorf("schema version = %q, want %q", sg.SchemaVersion, GraphSchemaVersion)
	}
	if sg.Nodes == nil || sg.Edges == nil {
		t.Error("nil graph should serialize to empty, non-nil slices")
	}
}

func TestToSerializable_Deterministic(t *testing.T) {
	g := buildTestGraph(t)

	a, err := json.Marshal(g.ToSerializable())
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(g.ToSerializable())
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Error("serialization should be deterministic")
	}

	sg := g.ToSerializable()
	for i := 1; i < len(sg.Nodes); i++ {
		if sg.Nodes[i-1].ID >= sg.Nodes[i].ID {
			t.Errorf("nodes not sorted at %d", i)
		}
	}
	if sg.Edges[0].Rules != "import" {
		t.Errorf("edge rules = %q, want import", sg.Edges[0].Rules)
	}
	if len(sg.ModuleEdges) != 2 {
		t.Errorf("module edges = %d, want 2", len(sg.ModuleEdges))
	}
}

func TestFromSerializable_RoundTrip(t *testing.T) {
	g := buildTestGraph(t)

	data, err := json.Marshal(g.ToSerializable())
	if err != nil {
		t.Fatal(err)
	}
	var sg SerializableGraph
	if err := json.Unmarshal(data, &sg); err != nil {
		t.Fatal(err)
	}

	restored, err := FromSerializable(&sg)
	if err != nil {
		t.Fatalf("FromSerializable: %v", err)
	}
	if !restored.IsFrozen() {
		t.Error("restored graph should be frozen")
	}
	if restored.BuiltAtMilli != g.BuiltAtMilli {
		t.Errorf("BuiltAtMilli = %d, want %d", restored.BuiltAtMilli, g.BuiltAtMilli)
	}
	if restored.Hash() != g.Hash() {
		t.Error("round trip changed the graph hash")
	}
	if !restored.HasEdge("b.C", "a.A") {
		t.Error("edge b.C -> a.A lost")
	}
	n, ok := restored.GetNode("b.C")
	if !ok || n.Module != "b" || n.Package != "b" {
		t.Errorf("node b.C = %+v", n)
	}
	mods := restored.Modules()
	if len(mods) != 3 || mods[2] != "d" {
		t.Errorf("Modules() = %v, want edge-less module d preserved", mods)
	}
}

func TestFromSerializable_Errors(t *testing.T) {
	if _, err := FromSerializable(nil); err == nil {
		t.Error("expected error for nil input")
	}

	_, err := FromSerializable(&SerializableGraph{SchemaVersion: "0.1"})
	if !errors.Is(err, ErrUnsupportedSchema) {
		t.Errorf("err = %v, want ErrUnsupportedSchema", err)
	}

	_, err = FromSerializable(&SerializableGraph{
		SchemaVersion: GraphSchemaVersion,
		Nodes:         []SerializableNode{{ID: "a.A", Module: "a"}},
		Edges:         []SerializableEdge{{FromID: "a.A", ToID: "a.Missing"}},
	})
	if !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("err = %v, want ErrNodeNotFound", err)
	}
}
