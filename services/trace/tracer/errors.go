// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tracer walks the class dependency graph from entry classes and
// collects call sites that match textual patterns.
//
// # Algorithm
//
// Every start class gets its own visited set and class chain. The walk is
// a depth-first traversal over class-level edges (not the module
// projection). A class is entered at most once per start class, which
// bounds the walk on cyclic graphs. At each newly entered class every line
// is tested against the patterns, case-insensitively, and each matching
// line becomes a candidate TraceMatch carrying:
//
//   - the enclosing method, found by scanning backwards for a line shaped
//     like a method signature ("unknown" if none is found)
//   - the first argument of the call, resolved to a literal where the
//     expression is built from string literals and same-file constants
//
// Candidates are deduplicated by (class, method) in a result.Aggregator.
//
// # Heuristics
//
// Nothing here parses the language. Method and argument detection are line
// based and will miss multi-line signatures and calls whose argument list
// spans lines.
package tracer

import "errors"

// Sentinel errors for tracing.
var (
	// ErrNoPatterns is returned when no non-blank pattern was given.
	ErrNoPatterns = errors.New("at least one search pattern is required")

	// ErrNilInput is returned when the registry or graph is nil.
	ErrNilInput = errors.New("registry and class graph are required")
)
