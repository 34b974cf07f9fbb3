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
	"regexp"
	"strings"
)

// UnknownMethod is reported when no enclosing method signature is found.
const UnknownMethod = "unknown"

var (
	// visibilityMethodPattern matches "public static Foo<Bar> name(".
	visibilityMethodPattern = regexp.MustCompile(
		`(?:public|private|protected)\s+(?:static\s+)?(?:void|\w+(?:<[^>]+>)?)\s+(\w+)\s*\(`)

	// bareMethodPattern matches package-private signatures "void name(".
	// Group 1 is the leading token, group 2 the name.
	bareMethodPattern = regexp.MustCompile(`^\s*(void|\w+)\s+(\w+)\s*\(`)
)

// controlKeywords are names that bareMethodPattern captures from
// control-flow lines ("else if (", "} while (").
var controlKeywords = map[string]struct{}{
	"if": {}, "while": {}, "for": {}, "switch": {}, "catch": {},
}

// statementKeywords lead statements that look like signatures:
// "return build(", "new Foo(", "throw error(".
var statementKeywords = map[string]struct{}{
	"return": {}, "new": {}, "throw": {}, "else": {}, "case": {},
}

// MethodAt returns the name of the method enclosing lines[idx].
//
// Description:
//
//	Scans from idx (inclusive) towards the top of the file and returns the
//	name captured from the first line that looks like a method signature.
//
// Inputs:
//
//	lines - File text split on "\n".
//	idx - 0-based index of the matching line.
//
// Outputs:
//
//	string - Method name, or UnknownMethod.
func MethodAt(lines []string, idx int) string {
	if idx >= len(lines) {
		idx = len(lines) - 1
	}
	for i := idx; i >= 0; i-- {
		if name, ok := methodName(strings.TrimSpace(lines[i])); ok {
			return name
		}
	}
	return UnknownMethod
}

// methodName extracts a method name from one trimmed line.
func methodName(line string) (string, bool) {
	if m := visibilityMethodPattern.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	m := bareMethodPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	if _, ok := statementKeywords[m[1]]; ok {
		return "", false
	}
	if _, ok := controlKeywords[m[2]]; ok {
		return "", false
	}
	return m[2], true
}
