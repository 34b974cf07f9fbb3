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
	"github.com/AleutianAI/modtrace/services/trace/graph"
	"github.com/AleutianAI/modtrace/services/trace/result"
	"github.com/AleutianAI/modtrace/services/trace/tables"
	"github.com/AleutianAI/modtrace/services/trace/tracer"
)

// ProjectRequest names the project a request is about.
type ProjectRequest struct {
	// ProjectRoot is the absolute path of the analysis root.
	ProjectRoot string `json:"project_root" binding:"required"`
}

// AnalyzeRequest is the request body for POST /v1/modtrace/analyze.
type AnalyzeRequest struct {
	ProjectRequest
}

// ModuleSummary describes one module of an analyzed project.
type ModuleSummary struct {
	Name       string   `json:"name"`
	Classes    int      `json:"classes"`
	DependsOn  []string `json:"depends_on"`
	DependedBy []string `json:"depended_by"`
}

// AnalyzeResponse is the response for POST /v1/modtrace/analyze.
type AnalyzeResponse struct {
	ProjectRoot string              `json:"project_root"`
	Classes     int                 `json:"classes"`
	ClassEdges  int                 `json:"class_edges"`
	Stats       graph.BuildStats    `json:"stats"`
	Modules     []ModuleSummary     `json:"modules"`
	ModuleEdges []*graph.ModuleEdge `json:"module_edges"`
	FileErrors  []string            `json:"file_errors,omitempty"`
	DurationMs  int64               `json:"duration_ms"`
}

// NewAnalyzeResponse summarizes an analysis.
func NewAnalyzeResponse(a *Analysis) AnalyzeResponse {
	resp := AnalyzeResponse{
		ProjectRoot: a.Root,
		Classes:     a.Graph.NodeCount(),
		ClassEdges:  a.Graph.EdgeCount(),
		Stats:       a.Build,
		Modules:     make([]ModuleSummary, 0, len(a.Modules.Modules())),
		ModuleEdges: a.Modules.Edges(),
		DurationMs:  a.Duration.Milliseconds(),
	}
	for _, m := range a.Modules.Modules() {
		resp.Modules = append(resp.Modules, ModuleSummary{
			Name:       m,
			Classes:    len(a.Graph.ClassesInModule(m)),
			DependsOn:  nonNil(a.Modules.DependenciesOf(m)),
			DependedBy: nonNil(a.Modules.DependentsOf(m)),
		})
	}
	for _, fe := range a.FileErrors {
		resp.FileErrors = append(resp.FileErrors, fe.Error())
	}
	return resp
}

// TraceRequest is the request body for POST /v1/modtrace/trace.
type TraceRequest struct {
	ProjectRequest

	// Patterns override the project's configured call-site patterns.
	Patterns []string `json:"patterns" binding:"omitempty,dive,required"`

	// StartClasses override the entry classes found by directory.
	StartClasses []string `json:"start_classes" binding:"omitempty,dive,required"`
}

// TraceResponse is the response for POST /v1/modtrace/trace.
type TraceResponse struct {
	StartClasses []string             `json:"start_classes"`
	Patterns     []string             `json:"patterns"`
	Matches      []result.TraceMatch  `json:"matches"`
	ByModule     []result.ModuleGroup `json:"by_module"`
	Stats        tracer.Stats         `json:"stats"`
}

// ExposeRequest is the request body for POST /v1/modtrace/expose.
type ExposeRequest struct {
	ProjectRequest
	ShowDependency bool `json:"show_dependency"`
}

// TablesRequest is the request body for POST /v1/modtrace/tables.
type TablesRequest struct {
	ProjectRequest
}

// TablesResponse is the response for POST /v1/modtrace/tables.
type TablesResponse struct {
	Modules []tables.ModuleTables `json:"modules"`
}

// ImpactRequest is the request body for POST /v1/modtrace/impact.
type ImpactRequest struct {
	ProjectRequest

	// Patch is a unified diff, as produced by git diff.
	Patch string `json:"patch" binding:"required"`
}

// SnapshotRequest is the request body for POST /v1/modtrace/snapshots.
type SnapshotRequest struct {
	ProjectRequest
	Label string `json:"label" binding:"max=128"`
}

// SnapshotListResponse is the response for GET /v1/modtrace/snapshots.
type SnapshotListResponse struct {
	Snapshots []*graph.SnapshotMetadata `json:"snapshots"`
}

// SnapshotResponse is the response for GET /v1/modtrace/snapshots/:id.
type SnapshotResponse struct {
	Metadata  *graph.SnapshotMetadata `json:"metadata"`
	Classes   int                     `json:"classes"`
	Edges     int                     `json:"edges"`
	Modules   []string                `json:"modules"`
	GraphHash string                  `json:"graph_hash"`
}

// InspectEdge is one neighbor of an inspected class.
type InspectEdge struct {
	Class  string `json:"class"`
	Module string `json:"module"`
	Rules  string `json:"rules"`
}

// InspectClassResponse is the response for GET
// /v1/modtrace/debug/graph/inspect.
type InspectClassResponse struct {
	Class    string        `json:"class"`
	Module   string        `json:"module"`
	Package  string        `json:"package"`
	FilePath string        `json:"file_path"`
	Outgoing []InspectEdge `json:"outgoing"`
	Incoming []InspectEdge `json:"incoming"`

	// Truncated is true when either edge list was cut at the limit.
	Truncated bool `json:"truncated"`
}

// HealthResponse is the response for GET /v1/modtrace/health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Snapshots bool   `json:"snapshots"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}
