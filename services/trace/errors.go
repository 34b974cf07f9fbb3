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

import "errors"

// Sentinel errors for the modtrace service.
var (
	// ErrRelativePath indicates the project root was a relative path.
	ErrRelativePath = errors.New("project root must be absolute path")

	// ErrPathTraversal indicates the project root contains ".." segments.
	ErrPathTraversal = errors.New("path contains traversal sequences")

	// ErrRootNotAllowed indicates the root is outside every allowed root.
	ErrRootNotAllowed = errors.New("project root is not allowed")

	// ErrSnapshotsDisabled indicates no snapshot store is configured.
	ErrSnapshotsDisabled = errors.New("snapshot store is not configured")

	// ErrAnalysisTimeout indicates an analysis ran past MaxAnalyzeDuration.
	ErrAnalysisTimeout = errors.New("analysis timed out")
)
