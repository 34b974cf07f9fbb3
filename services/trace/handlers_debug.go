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
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/modtrace/services/trace/graph"
)

// HandleInspectClass handles GET /v1/modtrace/debug/graph/inspect.
//
// Description:
//
//	Looks up one class in the freshly built class graph and returns its
//	outgoing and incoming edges with the rules that found each edge. Used
//	to check why two modules are (or are not) connected.
//
// Query Parameters:
//
//	project_root: Root to analyze (required)
//	class: Class FQN (required)
//	limit: Maximum edges per direction, default 50 (optional)
//
// Response:
//
//	200 OK: InspectClassResponse
//	400 Bad Request: Missing parameter or invalid root
//	404 Not Found: Class not in the graph
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleInspectClass(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleInspectClass")

	root, class := c.Query("project_root"), c.Query("class")
	if root == "" || class == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "project_root and class parameters are required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	a, err := h.svc.Analyze(c.Request.Context(), root)
	if err != nil {
		writeServiceError(c, logger, err, "ANALYZE_FAILED")
		return
	}

	g := a.Graph
	node, ok := g.GetNode(class)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "class not found: " + class,
			Code:  "CLASS_NOT_FOUND",
		})
		return
	}

	resp := InspectClassResponse{
		Class:    node.ID,
		Module:   node.Module,
		Package:  node.Package,
		FilePath: node.FilePath,
		Outgoing: make([]InspectEdge, 0, min(len(node.Outgoing), limit)),
		Incoming: make([]InspectEdge, 0, min(len(node.Incoming), limit)),
	}
	peer := func(id string, e *graph.Edge) InspectEdge {
		ie := InspectEdge{Class: id, Rules: e.Rules.String()}
		if n, ok := g.GetNode(id); ok {
			ie.Module = n.Module
		}
		return ie
	}
	for i, e := range node.Outgoing {
		if i >= limit {
			resp.Truncated = true
			break
		}
		resp.Outgoing = append(resp.Outgoing, peer(e.ToID, e))
	}
	for i, e := range node.Incoming {
		if i >= limit {
			resp.Truncated = true
			break
		}
		resp.Incoming = append(resp.Incoming, peer(e.FromID, e))
	}

	logger.Info("inspect class",
		slog.String("class", class),
		slog.Int("outgoing", len(resp.Outgoing)),
		slog.Int("incoming", len(resp.Incoming)),
	)
	c.JSON(http.StatusOK, resp)
}

// HandleExportGraph handles GET /v1/modtrace/debug/graph/export.
//
// Description:
//
//	Builds the graphs of project_root and streams them as a
//	SerializableGraph download, the same document a snapshot stores.
//
// Response:
//
//	200 OK: graph.SerializableGraph (Content-Disposition: attachment)
//	400 Bad Request: Missing or invalid root
func (h *Handlers) HandleExportGraph(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleExportGraph")

	root := c.Query("project_root")
	if root == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "project_root parameter is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	a, err := h.svc.Analyze(c.Request.Context(), root)
	if err != nil {
		writeServiceError(c, logger, err, "ANALYZE_FAILED")
		return
	}
	sg := a.Graph.ToSerializable()

	logger.Info("exporting graph",
		slog.String("project_root", a.Root),
		slog.Int("nodes", len(sg.Nodes)),
		slog.Int("edges", len(sg.Edges)),
	)

	c.Header("Content-Disposition", "attachment; filename=modtrace_"+graph.ProjectHash(a.Root)+".json")
	c.Header("Content-Type", "application/json")
	c.Status(http.StatusOK)

	encoder := json.NewEncoder(c.Writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(sg); err != nil {
		// The body is already started; only the log can carry this.
		logger.Error("failed to encode graph", slog.Any("error", err))
	}
}

// HandleLoadSnapshot handles GET /v1/modtrace/snapshots/:id.
//
// Response:
//
//	200 OK: SnapshotResponse
//	404 Not Found: Snapshot not found
//	503 Service Unavailable: Snapshots not configured
func (h *Handlers) HandleLoadSnapshot(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleLoadSnapshot")

	snapshotID := c.Param("id")
	g, meta, err := h.svc.LoadSnapshot(c.Request.Context(), snapshotID)
	if err != nil {
		writeServiceError(c, logger, err, "SNAPSHOT_LOAD_FAILED")
		return
	}

	logger.Info("snapshot loaded",
		slog.String("snapshot_id", snapshotID),
		slog.Int("classes", g.NodeCount()),
	)
	c.JSON(http.StatusOK, SnapshotResponse{
		Metadata:  meta,
		Classes:   g.NodeCount(),
		Edges:     g.EdgeCount(),
		Modules:   nonNil(g.Modules()),
		GraphHash: g.Hash(),
	})
}

// HandleDeleteSnapshot handles DELETE /v1/modtrace/snapshots/:id.
//
// Response:
//
//	200 OK: {"deleted": true}
//	404 Not Found: Snapshot not found
//	503 Service Unavailable: Snapshots not configured
func (h *Handlers) HandleDeleteSnapshot(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDeleteSnapshot")

	snapshotID := c.Param("id")
	if err := h.svc.DeleteSnapshot(c.Request.Context(), snapshotID); err != nil {
		writeServiceError(c, logger, err, "SNAPSHOT_DELETE_FAILED")
		return
	}

	logger.Info("snapshot deleted", slog.String("snapshot_id", snapshotID))
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
