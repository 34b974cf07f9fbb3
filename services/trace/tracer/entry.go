// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tracer

import (
	"sort"
	"strings"

	"github.com/AleutianAI/modtrace/services/trace/registry"
)

// Entry class defaults.
const (
	DefaultEntrySubdir = "application"
	DefaultEntryDepth  = 4
)

// EntryClasses selects trace start classes by directory convention.
//
// Description:
//
//	Returns the registered classes whose file lies under a directory named
//	subdir, where that directory sits at most maxDepth levels below the
//	registry root (a direct child of the root is level 1). Files nested
//	below the matching directory are included at any depth.
//
// Inputs:
//
//	reg - Built registry.
//	subdir - Directory name to look for. Empty uses DefaultEntrySubdir.
//	maxDepth - Level bound. Values < 1 use DefaultEntryDepth.
//
// Outputs:
//
//	[]string - Matching FQNs, sorted.
func EntryClasses(reg *registry.Registry, subdir string, maxDepth int) []string {
	if subdir == "" {
		subdir = DefaultEntrySubdir
	}
	if maxDepth < 1 {
		maxDepth = DefaultEntryDepth
	}

	var out []string
	for _, u := range reg.Units() {
		segments := strings.Split(reg.RelPath(u.FilePath), "/")
		dirs := segments[:len(segments)-1]
		for i, dir := range dirs {
			if i >= maxDepth {
				break
			}
			if dir == subdir {
				out = append(out, u.FQN)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}
