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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all modtrace routes with the router.
//
// Description:
//
//	Registers all /v1/modtrace/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//	Request count and latency are recorded per route.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	GET  /v1/modtrace/health - Health check
//	POST /v1/modtrace/analyze - Build graphs, return module summary
//	POST /v1/modtrace/trace - Trace call sites from entry classes
//	POST /v1/modtrace/expose - List exposed API per module
//	POST /v1/modtrace/tables - List repository tables per module
//	POST /v1/modtrace/impact - Map a unified diff onto modules
//	POST /v1/modtrace/snapshots - Save a graph snapshot
//	GET  /v1/modtrace/snapshots - List snapshots
//	GET  /v1/modtrace/snapshots/diff - Diff two snapshots
//	GET  /v1/modtrace/snapshots/:id - Load one snapshot
//	DELETE /v1/modtrace/snapshots/:id - Delete one snapshot
//	GET  /v1/modtrace/debug/graph/inspect - Edges of one class
//	GET  /v1/modtrace/debug/graph/export - Serialized class graph
//
// Example:
//
//	service := trace.NewService(trace.DefaultServiceConfig())
//	handlers := trace.NewHandlers(service)
//
//	v1 := router.Group("/v1")
//	trace.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	mt := rg.Group("/modtrace", metricsMiddleware())
	{
		mt.GET("/health", handlers.HandleHealth)

		// Analyses
		mt.POST("/analyze", handlers.HandleAnalyze)
		mt.POST("/trace", handlers.HandleTrace)
		mt.POST("/expose", handlers.HandleExpose)
		mt.POST("/tables", handlers.HandleTables)
		mt.POST("/impact", handlers.HandleImpact)

		// Snapshots
		mt.GET("/snapshots/diff", handlers.HandleDiffSnapshots)
		mt.POST("/snapshots", handlers.HandleSaveSnapshot)
		mt.GET("/snapshots", handlers.HandleListSnapshots)
		mt.GET("/snapshots/:id", handlers.HandleLoadSnapshot)
		mt.DELETE("/snapshots/:id", handlers.HandleDeleteSnapshot)

		// Debug
		debug := mt.Group("/debug/graph")
		{
			debug.GET("/inspect", handlers.HandleInspectClass)
			debug.GET("/export", handlers.HandleExportGraph)
		}
	}
}
