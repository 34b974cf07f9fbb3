// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package trace

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/modtrace/services/trace/graph"
	"github.com/AleutianAI/modtrace/services/trace/internal/testfixture"
)

func TestHandlers_HandleInspectClass(t *testing.T) {
	root := testfixture.WriteTree(t, testfixture.SampleProject())
	router := setupTestRouter(newTestService(t))

	q := url.Values{"project_root": {root}, "class": {"order.application.OrderCommand"}}
	w := doJSON(t, router, http.MethodGet, "/v1/modtrace/debug/graph/inspect?"+q.Encode(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[InspectClassResponse](t, w)
	assert.Equal(t, "order", resp.Module)
	assert.Equal(t, "order.application", resp.Package)
	assert.False(t, resp.Truncated)

	peers := make(map[string]InspectEdge)
	for _, e := range resp.Outgoing {
		peers[e.Class] = e
	}
	require.Contains(t, peers, "product.expose.FindProductApi")
	assert.Equal(t, "product", peers["product.expose.FindProductApi"].Module)
	assert.Contains(t, peers["product.expose.FindProductApi"].Rules, "import")
	assert.Contains(t, peers, "order.infra.OrderRepository")
	assert.Empty(t, resp.Incoming)

	q.Set("limit", "1")
	w = doJSON(t, router, http.MethodGet, "/v1/modtrace/debug/graph/inspect?"+q.Encode(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	limited := decode[InspectClassResponse](t, w)
	assert.Len(t, limited.Outgoing, 1)
	assert.True(t, limited.Truncated)
}

func TestHandlers_HandleInspectClassErrors(t *testing.T) {
	root := testfixture.WriteTree(t, testfixture.SampleProject())
	router := setupTestRouter(newTestService(t))

	w := doJSON(t, router, http.MethodGet, "/v1/modtrace/debug/graph/inspect?class=a.B", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MISSING_PARAMETER", decode[ErrorResponse](t, w).Code)

	q := url.Values{"project_root": {root}, "class": {"order.Missing"}}
	w = doJSON(t, router, http.MethodGet, "/v1/modtrace/debug/graph/inspect?"+q.Encode(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "CLASS_NOT_FOUND", decode[ErrorResponse](t, w).Code)
}

func TestHandlers_HandleExportGraph(t *testing.T) {
	root := testfixture.WriteTree(t, testfixture.SampleProject())
	router := setupTestRouter(newTestService(t))

	w := doJSON(t, router, http.MethodGet, "/v1/modtrace/debug/graph/export?project_root="+url.QueryEscape(root), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), graph.ProjectHash(root))

	var sg graph.SerializableGraph
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sg))
	assert.Equal(t, graph.GraphSchemaVersion, sg.SchemaVersion)
	assert.NotEmpty(t, sg.Nodes)

	restored, err := graph.FromSerializable(&sg)
	require.NoError(t, err)
	assert.True(t, restored.HasEdge("order.application.OrderCommand", "product.expose.FindProductApi"))

	w = doJSON(t, router, http.MethodGet, "/v1/modtrace/debug/graph/export", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_LoadAndDeleteSnapshot(t *testing.T) {
	root := testfixture.WriteTree(t, testfixture.SampleProject())

	disabled := setupTestRouter(newTestService(t))
	w := doJSON(t, disabled, http.MethodGet, "/v1/modtrace/snapshots/abc", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	router := setupTestRouter(withSnapshots(t, newTestService(t)))
	w = doJSON(t, router, http.MethodPost, "/v1/modtrace/snapshots", SnapshotRequest{
		ProjectRequest: ProjectRequest{ProjectRoot: root},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	meta := decode[graph.SnapshotMetadata](t, w)

	w = doJSON(t, router, http.MethodGet, "/v1/modtrace/snapshots/"+meta.SnapshotID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[SnapshotResponse](t, w)
	assert.Equal(t, meta.SnapshotID, resp.Metadata.SnapshotID)
	assert.Equal(t, meta.ClassCount, resp.Classes)
	assert.Equal(t, []string{"order", "product", "user"}, resp.Modules)

	w = doJSON(t, router, http.MethodDelete, "/v1/modtrace/snapshots/"+meta.SnapshotID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/modtrace/snapshots/"+meta.SnapshotID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doJSON(t, router, http.MethodDelete, "/v1/modtrace/snapshots/"+meta.SnapshotID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
