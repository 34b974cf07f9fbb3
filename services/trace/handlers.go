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
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/modtrace/services/trace/config"
	"github.com/AleutianAI/modtrace/services/trace/graph"
	"github.com/AleutianAI/modtrace/services/trace/impact"
	"github.com/AleutianAI/modtrace/services/trace/registry"
	"github.com/AleutianAI/modtrace/services/trace/tables"
	"github.com/AleutianAI/modtrace/services/trace/tracer"
)

// Handlers contains the HTTP handlers for modtrace.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleHealth handles GET /v1/modtrace/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   ServiceVersion,
		Snapshots: h.svc.SnapshotsEnabled(),
	})
}

// HandleAnalyze handles POST /v1/modtrace/analyze.
//
// Description:
//
//	Indexes the project, builds its class graph and returns module level
//	counts and edges with their evidence.
//
// Request Body:
//
//	AnalyzeRequest
//
// Response:
//
//	200 OK: AnalyzeResponse
//	400 Bad Request: Validation error or invalid root
//	500 Internal Server Error: Processing error
func (h *Handlers) HandleAnalyze(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleAnalyze")

	var req AnalyzeRequest
	if !bindJSON(c, logger, &req) {
		return
	}

	a, err := h.svc.Analyze(c.Request.Context(), req.ProjectRoot)
	if err != nil {
		writeServiceError(c, logger, err, "ANALYZE_FAILED")
		return
	}

	resp := NewAnalyzeResponse(a)

	logger.Info("project analyzed",
		slog.String("project_root", a.Root),
		slog.Int("classes", resp.Classes),
		slog.Int("modules", len(resp.Modules)),
	)
	c.JSON(http.StatusOK, resp)
}

// HandleTrace handles POST /v1/modtrace/trace.
//
// Response:
//
//	200 OK: TraceResponse
//	400 Bad Request: Validation error, invalid root or no patterns
func (h *Handlers) HandleTrace(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleTrace")

	var req TraceRequest
	if !bindJSON(c, logger, &req) {
		return
	}

	out, err := h.svc.Trace(c.Request.Context(), req.ProjectRoot, TraceRequestOptions{
		Starts:   req.StartClasses,
		Patterns: req.Patterns,
	})
	if err != nil {
		writeServiceError(c, logger, err, "TRACE_FAILED")
		return
	}

	logger.Info("trace finished",
		slog.Int("start_classes", len(out.Starts)),
		slog.Int("matches", out.Matches.Len()),
	)
	c.JSON(http.StatusOK, TraceResponse{
		StartClasses: nonNil(out.Starts),
		Patterns:     out.Patterns,
		Matches:      out.Matches.Matches(),
		ByModule:     out.Matches.ByModule(),
		Stats:        out.Stats,
	})
}

// HandleExpose handles POST /v1/modtrace/expose.
func (h *Handlers) HandleExpose(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleExpose")

	var req ExposeRequest
	if !bindJSON(c, logger, &req) {
		return
	}

	rep, err := h.svc.Expose(c.Request.Context(), req.ProjectRoot, req.ShowDependency)
	if err != nil {
		writeServiceError(c, logger, err, "EXPOSE_FAILED")
		return
	}
	c.JSON(http.StatusOK, rep)
}

// HandleTables handles POST /v1/modtrace/tables.
func (h *Handlers) HandleTables(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleTables")

	var req TablesRequest
	if !bindJSON(c, logger, &req) {
		return
	}

	mods, err := h.svc.Tables(c.Request.Context(), req.ProjectRoot)
	if err != nil {
		writeServiceError(c, logger, err, "TABLES_FAILED")
		return
	}
	if mods == nil {
		mods = []tables.ModuleTables{}
	}
	c.JSON(http.StatusOK, TablesResponse{Modules: mods})
}

// HandleImpact handles POST /v1/modtrace/impact.
//
// Description:
//
//	Maps a unified diff onto the project's modules and reports every
//	module that transitively depends on a changed one.
//
// Response:
//
//	200 OK: impact.Report
//	400 Bad Request: Validation error, invalid root or unparsable patch
func (h *Handlers) HandleImpact(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleImpact")

	var req ImpactRequest
	if !bindJSON(c, logger, &req) {
		return
	}

	rep, err := h.svc.Impact(c.Request.Context(), req.ProjectRoot, req.Patch)
	if err != nil {
		writeServiceError(c, logger, err, "IMPACT_FAILED")
		return
	}
	logger.Info("impact analyzed",
		slog.Int("changed_modules", len(rep.ChangedModules)),
		slog.Int("impacted_modules", len(rep.ImpactedModules)),
	)
	c.JSON(http.StatusOK, rep)
}

// HandleSaveSnapshot handles POST /v1/modtrace/snapshots.
//
// Response:
//
//	201 Created: graph.SnapshotMetadata
//	503 Service Unavailable: No snapshot store configured
func (h *Handlers) HandleSaveSnapshot(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSaveSnapshot")

	var req SnapshotRequest
	if !bindJSON(c, logger, &req) {
		return
	}

	meta, err := h.svc.SaveSnapshot(c.Request.Context(), req.ProjectRoot, req.Label)
	if err != nil {
		writeServiceError(c, logger, err, "SNAPSHOT_FAILED")
		return
	}
	logger.Info("snapshot saved", slog.String("snapshot_id", meta.SnapshotID))
	c.JSON(http.StatusCreated, meta)
}

// HandleListSnapshots handles GET /v1/modtrace/snapshots.
//
// Query Parameters:
//
//	project_root: Only list snapshots of this root (optional)
//	limit: Maximum snapshots to return, default 20 (optional)
func (h *Handlers) HandleListSnapshots(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListSnapshots")

	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "limit must be a positive integer",
				Code:  "INVALID_PARAMETER",
			})
			return
		}
		limit = parsed
	}

	metas, err := h.svc.ListSnapshots(c.Request.Context(), c.Query("project_root"), limit)
	if err != nil {
		writeServiceError(c, logger, err, "SNAPSHOT_LIST_FAILED")
		return
	}
	if metas == nil {
		metas = []*graph.SnapshotMetadata{}
	}
	c.JSON(http.StatusOK, SnapshotListResponse{Snapshots: metas})
}

// HandleDiffSnapshots handles GET /v1/modtrace/snapshots/diff.
//
// Query Parameters:
//
//	base: Base snapshot ID (required)
//	target: Target snapshot ID (optional, defaults to a fresh analysis)
//	project_root: Root to analyze when target is omitted
func (h *Handlers) HandleDiffSnapshots(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDiffSnapshots")

	base := c.Query("base")
	if base == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "base parameter is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}
	target := c.Query("target")
	root := c.Query("project_root")
	if target == "" && root == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "target or project_root parameter is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	diff, err := h.svc.DiffSnapshots(c.Request.Context(), root, base, target)
	if err != nil {
		writeServiceError(c, logger, err, "SNAPSHOT_DIFF_FAILED")
		return
	}
	c.JSON(http.StatusOK, diff)
}

// bindJSON decodes and validates the body, writing a 400 on failure.
func bindJSON(c *gin.Context, logger *slog.Logger, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return false
	}
	return true
}

// writeServiceError maps service errors to HTTP status codes.
func writeServiceError(c *gin.Context, logger *slog.Logger, err error, fallbackCode string) {
	status := http.StatusInternalServerError
	code := fallbackCode

	switch {
	case errors.Is(err, ErrRelativePath), errors.Is(err, ErrPathTraversal), errors.Is(err, registry.ErrInvalidRoot):
		status, code = http.StatusBadRequest, "INVALID_PATH"
	case errors.Is(err, ErrRootNotAllowed):
		status, code = http.StatusForbidden, "ROOT_NOT_ALLOWED"
	case errors.Is(err, config.ErrInvalidConfig):
		status, code = http.StatusBadRequest, "INVALID_CONFIG"
	case errors.Is(err, impact.ErrInvalidPatch):
		status, code = http.StatusBadRequest, "INVALID_PATCH"
	case errors.Is(err, tracer.ErrNoPatterns):
		status, code = http.StatusBadRequest, "NO_PATTERNS"
	case errors.Is(err, graph.ErrSnapshotNotFound):
		status, code = http.StatusNotFound, "SNAPSHOT_NOT_FOUND"
	case errors.Is(err, ErrSnapshotsDisabled):
		status, code = http.StatusServiceUnavailable, "SNAPSHOTS_DISABLED"
	case errors.Is(err, ErrAnalysisTimeout), errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "TIMEOUT"
	case errors.Is(err, context.Canceled):
		status, code = 499, "CANCELLED"
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err, "code", code)
	} else {
		logger.Warn("request rejected", "error", err, "code", code)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

// getOrCreateRequestID returns the caller's X-Request-ID or a new one,
// and echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
