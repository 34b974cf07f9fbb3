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

// declarationPattern matches `TYPE name = "value";`. Leading modifiers are
// skipped because the match may start at any word boundary.
var declarationPattern = regexp.MustCompile(
	`\b[A-Za-z_][\w.]*(?:<[^>;]*>)?(?:\[\])*\s+([A-Za-z_]\w*)\s*=\s*"((?:[^"\\]|\\.)*)"\s*;`)

// Declarations maps a name to the string literal assigned to it in one file.
type Declarations map[string]string

// ParseDeclarations collects `TYPE name = "value";` declarations of a file.
//
// Fields and local variables are treated alike. Commented-out code is
// ignored. When a name is declared more than once the first declaration
// wins.
func ParseDeclarations(text string) Declarations {
	decls := make(Declarations)
	for _, m := range declarationPattern.FindAllStringSubmatch(stripComments(text), -1) {
		if _, ok := decls[m[1]]; !ok {
			decls[m[1]] = m[2]
		}
	}
	return decls
}

// stripComments blanks out // and /* */ comments outside string and
// character literals. Newlines are kept.
func stripComments(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	var quote byte
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case quote != 0:
			b.WriteByte(c)
			if c == '\\' && i+1 < len(text) {
				i++
				b.WriteByte(text[i])
			} else if c == quote || c == '\n' {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
			b.WriteByte(c)
		case c == '/' && i+1 < len(text) && text[i+1] == '/':
			for i < len(text) && text[i] != '\n' {
				i++
			}
			if i < len(text) {
				b.WriteByte('\n')
			}
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			i += 2
			for i < len(text) && !(text[i] == '*' && i+1 < len(text) && text[i+1] == '/') {
				if text[i] == '\n' {
					b.WriteByte('\n')
				}
				i++
			}
			i++
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// FirstArgument extracts the first argument expression of the call that
// pattern starts on line.
//
// Description:
//
//	Finds pattern (case-insensitive) in line, then the first "(" at or
//	after the end of the occurrence. A pattern ending in "(" already
//	opens the call. Returns the text up to the first
//	top-level "," or ")". Nested parentheses and string or character
//	literals are skipped. A call whose argument list runs past the end of
//	the line yields the rest of the line.
//
// Outputs:
//
//	string - The trimmed expression.
//	bool - False when there is no occurrence, no "(" or an empty argument.
func FirstArgument(line, pattern string) (string, bool) {
	pos := indexFold(line, pattern)
	if pos < 0 {
		return "", false
	}
	var args string
	if strings.HasSuffix(pattern, "(") {
		args = line[pos+len(pattern):]
	} else {
		rest := line[pos+len(pattern):]
		open := strings.IndexByte(rest, '(')
		if open < 0 {
			return "", false
		}
		args = rest[open+1:]
	}

	depth := 0
	var quote byte
	end := len(args)
scan:
	for i := 0; i < len(args); i++ {
		c := args[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth == 0 {
				end = i
				break scan
			}
			depth--
		case ',':
			if depth == 0 {
				end = i
				break scan
			}
		}
	}

	arg := strings.TrimSpace(args[:end])
	arg = strings.TrimSuffix(arg, ";")
	if arg == "" {
		return "", false
	}
	return arg, true
}

// ResolveArgument evaluates a first-argument expression to a literal.
//
// Description:
//
//	A quoted string literal resolves to its contents. Otherwise the
//	expression is split on "+" outside of literals and each operand is
//	resolved on its own: literals verbatim, identifiers through decls
//	("this." is ignored), anything else as "[operand]". The parts are
//	concatenated. Resolution never fails; unresolvable operands stay
//	visible as placeholders.
//
// Examples:
//
//	ResolveArgument(`"/api/orders"`, nil)            // "/api/orders"
//	ResolveArgument(`API_BASE + "/save"`, decls)     // "https://orders.example.com/save"
//	ResolveArgument(`buildUrl(id) + "/x"`, nil)      // "[buildUrl(id)]/x"
func ResolveArgument(expr string, decls Declarations) string {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return ""
	}
	if s, ok := unquote(expr); ok {
		return s
	}

	var b strings.Builder
	for _, operand := range splitConcat(expr) {
		operand = strings.TrimSpace(operand)
		if operand == "" {
			continue
		}
		if s, ok := unquote(operand); ok {
			b.WriteString(s)
			continue
		}
		name := strings.TrimPrefix(operand, "this.")
		if v, ok := decls[name]; ok {
			b.WriteString(v)
			continue
		}
		b.WriteString("[" + operand + "]")
	}
	return b.String()
}

// unquote returns the contents of a double-quoted literal spanning all of s.
// Escape sequences are kept as written.
func unquote(s string) (string, bool) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", false
	}
	body := s[1 : len(s)-1]
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '\\':
			i++
		case '"':
			// Two literals, e.g. "a" + "b" without spaces inside one operand.
			return "", false
		}
	}
	return body, true
}

// splitConcat splits expr on "+" outside of literals and parentheses.
func splitConcat(expr string) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case '+':
			if depth == 0 {
				parts = append(parts, expr[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, expr[start:])
}

// indexFold is strings.Index with ASCII case folding. Byte offsets refer to
// s, so callers can slice s with the result.
func indexFold(s, substr string) int {
	n := len(substr)
	if n == 0 {
		return 0
	}
	for i := 0; i+n <= len(s); i++ {
		if equalFoldASCII(s[i:i+n], substr) {
			return i
		}
	}
	return -1
}

func equalFoldASCII(a, b string) bool {
	for i := 0; i < len(a); i++ {
		if lower(a[i]) != lower(b[i]) {
			return false
		}
	}
	return true
}

func lower(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
