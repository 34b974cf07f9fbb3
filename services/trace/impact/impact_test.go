// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package impact

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/modtrace/services/trace/graph"
	"github.com/AleutianAI/modtrace/services/trace/internal/testfixture"
	"github.com/AleutianAI/modtrace/services/trace/registry"
)

const productPatch = `diff --git a/product/expose/FindProductApi.java b/product/expose/FindProductApi.java
index 1111111..2222222 100644
--- a/product/expose/FindProductApi.java
+++ b/product/expose/FindProductApi.java
@@ -3,3 +3,4 @@
 public interface FindProductApi {
     ProductDto find(String id);
+    ProductDto findBySku(String sku);
 }
`

const mixedPatch = `diff --git a/order/application/OrderCommand.java b/order/application/OrderCommand.java
index 1111111..2222222 100644
--- a/order/application/OrderCommand.java
+++ b/order/application/OrderCommand.java
@@ -12,3 +12,3 @@
     public void createOrder() {
-        client.post("/api/orders", "order data");
+        client.post("/api/v2/orders", "order data");
     }
diff --git a/user/service/NewThing.java b/user/service/NewThing.java
new file mode 100644
index 0000000..3333333
--- /dev/null
+++ b/user/service/NewThing.java
@@ -0,0 +1,2 @@
+package user.service;
+class NewThing {}
diff --git a/docs/notes.md b/docs/notes.md
deleted file mode 100644
index 4444444..0000000
--- a/docs/notes.md
+++ /dev/null
@@ -1,1 +0,0 @@
-old notes
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAnalyzer(t *testing.T, opts ...Option) *Analyzer {
	t.Helper()
	root := testfixture.WriteTree(t, testfixture.SampleProject())
	reg, err := registry.Build(context.Background(), root, registry.WithLogger(quietLogger()))
	require.NoError(t, err)
	built, err := graph.NewBuilder(reg, graph.WithLogger(quietLogger())).Build(context.Background())
	require.NoError(t, err)
	a, err := NewAnalyzer(built.Graph, built.Modules, append(opts, WithLogger(quietLogger()))...)
	require.NoError(t, err)
	return a
}

func TestNewAnalyzer_NilGraph(t *testing.T) {
	_, err := NewAnalyzer(nil, nil)
	assert.ErrorIs(t, err, ErrNilGraph)
}

func TestParsePatch(t *testing.T) {
	files, err := ParsePatch(mixedPatch)
	require.NoError(t, err)
	require.Len(t, files, 3)

	assert.Equal(t, "order/application/OrderCommand.java", files[0].Path)
	assert.Equal(t, StatusModified, files[0].Status)
	assert.Equal(t, 1, files[0].LinesAdded)
	assert.Equal(t, 1, files[0].LinesRemoved)

	assert.Equal(t, "user/service/NewThing.java", files[1].Path)
	assert.Equal(t, StatusAdded, files[1].Status)
	assert.Equal(t, 2, files[1].LinesAdded)

	assert.Equal(t, "docs/notes.md", files[2].Path)
	assert.Equal(t, StatusDeleted, files[2].Status)
	assert.Equal(t, 1, files[2].LinesRemoved)
}

func TestParsePatch_Empty(t *testing.T) {
	files, err := ParsePatch("")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestAnalyze_ExposedChangeImpactsCaller(t *testing.T) {
	a := newAnalyzer(t)

	report, err := a.Analyze(context.Background(), productPatch)
	require.NoError(t, err)

	require.Len(t, report.Files, 1)
	assert.Equal(t, "product.expose.FindProductApi", report.Files[0].Class)
	assert.Equal(t, "product", report.Files[0].Module)
	assert.True(t, report.Files[0].Source)

	assert.Equal(t, []string{"product"}, report.ChangedModules)
	assert.Equal(t, []string{"product.expose.FindProductApi"}, report.ChangedClasses)
	assert.Equal(t, []string{"order.application.OrderCommand"}, report.AffectedClasses)

	require.Len(t, report.ImpactedModules, 1)
	im := report.ImpactedModules[0]
	assert.Equal(t, "order", im.Module)
	assert.Equal(t, 1, im.Distance)
	assert.Equal(t, "product", im.Through)
	assert.Contains(t, im.Evidence, graph.ClassPair{
		From: "order.application.OrderCommand",
		To:   "product.expose.FindProductApi",
	})
}

func TestAnalyze_MixedPatch(t *testing.T) {
	a := newAnalyzer(t)

	report, err := a.Analyze(context.Background(), mixedPatch)
	require.NoError(t, err)

	assert.Equal(t, []string{"order", "user"}, report.ChangedModules)
	assert.Equal(t, []string{"order.application.OrderCommand"}, report.ChangedClasses)
	assert.Empty(t, report.AffectedClasses)
	assert.Empty(t, report.ImpactedModules)

	// The new file is not in the graph and the notes file is not source.
	assert.Equal(t, "", report.Files[1].Class)
	assert.False(t, report.Files[2].Source)
}

func TestAnalyze_TransitiveAndMaxDepth(t *testing.T) {
	root := testfixture.WriteTree(t, map[string]string{
		"a/A.java": "package a;\nimport b.B;\nclass A { B b; }\n",
		"b/B.java": "package b;\nimport c.C;\nclass B { C c; }\n",
		"c/C.java": "package c;\nclass C {}\n",
	})
	reg, err := registry.Build(context.Background(), root, registry.WithLogger(quietLogger()))
	require.NoError(t, err)
	built, err := graph.NewBuilder(reg, graph.WithLogger(quietLogger())).Build(context.Background())
	require.NoError(t, err)

	files := []ChangedFile{{Path: "c/C.java", Status: StatusModified}}

	a, err := NewAnalyzer(built.Graph, nil, WithLogger(quietLogger()))
	require.NoError(t, err)
	report, err := a.AnalyzeFiles(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, report.ImpactedModules, 2)
	assert.Equal(t, "b", report.ImpactedModules[0].Module)
	assert.Equal(t, 1, report.ImpactedModules[0].Distance)
	assert.Equal(t, "a", report.ImpactedModules[1].Module)
	assert.Equal(t, 2, report.ImpactedModules[1].Distance)
	assert.Equal(t, "b", report.ImpactedModules[1].Through)
	assert.Equal(t, []string{"a.A", "b.B"}, report.AffectedClasses)

	shallow, err := NewAnalyzer(built.Graph, nil, WithMaxDepth(1), WithLogger(quietLogger()))
	require.NoError(t, err)
	report, err = shallow.AnalyzeFiles(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, report.ImpactedModules, 1)
	assert.Equal(t, "b", report.ImpactedModules[0].Module)
}

func TestAnalyze_Cancelled(t *testing.T) {
	a := newAnalyzer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Analyze(ctx, productPatch)
	assert.ErrorIs(t, err, context.Canceled)
}
