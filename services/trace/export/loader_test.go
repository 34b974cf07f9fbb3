// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package export

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/modtrace/services/trace/deps"
	"github.com/AleutianAI/modtrace/services/trace/graph"
	"github.com/AleutianAI/modtrace/services/trace/registry"
)

type call struct {
	cypher string
	params map[string]any
}

type fakeRunner struct {
	calls  []call
	failOn string
}

func (f *fakeRunner) Run(_ context.Context, cypher string, params map[string]any) error {
	f.calls = append(f.calls, call{cypher: cypher, params: params})
	if f.failOn != "" && strings.Contains(cypher, f.failOn) {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeRunner) containing(s string) []call {
	var out []call
	for _, c := range f.calls {
		if strings.Contains(c.cypher, s) {
			out = append(out, c)
		}
	}
	return out
}

func testGraph(t *testing.T) *graph.ClassGraph {
	t.Helper()
	g := graph.NewClassGraph("/project")
	for _, u := range []registry.SourceUnit{
		{FQN: "order.app.OrderCommand", Package: "order.app", Module: "order"},
		{FQN: "order.app.OrderRepository", Package: "order.app", Module: "order"},
		{FQN: "product.expose.ProductApi", Package: "product.expose", Module: "product"},
	} {
		_, err := g.AddNode(u)
		require.NoError(t, err)
	}
	require.NoError(t, g.AddEdge("order.app.OrderCommand", "order.app.OrderRepository", deps.RuleUsage))
	require.NoError(t, g.AddEdge("order.app.OrderCommand", "product.expose.ProductApi", deps.RuleImport))
	g.Freeze()
	return g
}

func TestLoader_Load(t *testing.T) {
	r := &fakeRunner{}
	l := NewLoader(r)

	stats, err := l.Load(context.Background(), testGraph(t), nil)
	require.NoError(t, err)

	assert.Equal(t, LoadStats{Modules: 2, Classes: 3, ClassEdges: 2, ModuleEdges: 1, Statements: 4}, stats)
	require.Len(t, r.calls, 4)

	classRows := r.containing(":IN_MODULE")[0].params["batch"].([]map[string]any)
	assert.Equal(t, "order.app.OrderCommand", classRows[0]["fqn"])
	assert.Equal(t, "OrderCommand", classRows[0]["name"])
	assert.Equal(t, "order", classRows[0]["module"])

	edgeRows := r.containing(":DEPENDS_ON]")[0].params["batch"].([]map[string]any)
	assert.Equal(t, "usage", edgeRows[0]["rules"])
	assert.Equal(t, "import", edgeRows[1]["rules"])

	modRows := r.containing("MODULE_DEPENDS_ON")[0].params["batch"].([]map[string]any)
	require.Len(t, modRows, 1)
	assert.Equal(t, "order", modRows[0]["from"])
	assert.Equal(t, "product", modRows[0]["to"])
	assert.Equal(t, 1, modRows[0]["evidence"])
}

func TestLoader_Batches(t *testing.T) {
	r := &fakeRunner{}
	l := NewLoader(r, WithBatchSize(2))

	stats, err := l.Load(context.Background(), testGraph(t), nil)
	require.NoError(t, err)

	// 2 modules in 1 batch, 3 classes in 2, 2 edges in 1, 1 module edge in 1.
	assert.Equal(t, 5, stats.Statements)
	assert.Len(t, r.containing(":IN_MODULE"), 2)
}

func TestLoader_EmptyGraphSendsNothing(t *testing.T) {
	r := &fakeRunner{}
	g := graph.NewClassGraph("/empty")
	g.Freeze()

	stats, err := NewLoader(r).Load(context.Background(), g, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.Statements)
	assert.Empty(t, r.calls)
}

func TestLoader_Errors(t *testing.T) {
	_, err := NewLoader(&fakeRunner{}).Load(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNilGraph)

	r := &fakeRunner{failOn: "DEPENDS_ON]"}
	stats, err := NewLoader(r).Load(context.Background(), testGraph(t), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load class edges")
	assert.Equal(t, 3, stats.Classes)
	assert.Zero(t, stats.ClassEdges)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewLoader(&fakeRunner{}).Load(ctx, testGraph(t), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoader_CleanAndIndexes(t *testing.T) {
	r := &fakeRunner{}
	l := NewLoader(r)
	require.NoError(t, l.CleanGraph(context.Background()))
	require.NoError(t, l.CreateIndexes(context.Background()))
	assert.Len(t, r.containing("DELETE"), 5)
	assert.Len(t, r.containing("CREATE INDEX"), 2)
	assert.NoError(t, l.Close(context.Background()))

	failing := NewLoader(&fakeRunner{failOn: "DELETE"})
	assert.Error(t, failing.CleanGraph(context.Background()))
}

func TestConnect_RequiresURI(t *testing.T) {
	_, err := Connect(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrNoURI)
}
