// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package deps derives class-to-class dependencies from source text.
//
// Two textual rules are applied and their results unioned:
//
//   - Import: every "import X;" whose X is a registered class.
//   - Usage: a registered class whose simple name appears as a whole word,
//     provided the text imports that exact class or declares the same
//     package.
//
// The rules are an approximation. Identically named symbols in the same
// package produce false positives; static imports, fully-qualified use
// without an import, and reflection produce false negatives.
package deps

import (
	"regexp"
	"sort"
	"strings"

	"github.com/AleutianAI/modtrace/services/trace/registry"
)

// Rule identifies which detection rule produced a dependency.
type Rule uint8

const (
	// RuleImport means the class is named by an import statement.
	RuleImport Rule = 1 << iota

	// RuleUsage means the simple name is used and the import/package gate passed.
	RuleUsage
)

// String returns a "+"-joined list of rule names.
func (r Rule) String() string {
	var parts []string
	if r&RuleImport != 0 {
		parts = append(parts, "import")
	}
	if r&RuleUsage != 0 {
		parts = append(parts, "usage")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// Has reports whether all bits of other are set.
func (r Rule) Has(other Rule) bool {
	return r&other == other
}

// Dependency is one referenced class and the rules that found it.
type Dependency struct {
	Class string `json:"class"`
	Rules Rule   `json:"rules"`
}

var importPattern = regexp.MustCompile(`import\s+([a-zA-Z0-9_.]+);`)

// classRef is the precomputed lookup data for one registered class.
type classRef struct {
	fqn        string
	pkg        string
	simple     string
	importStmt string

	// word is set only when simple contains non-identifier characters and
	// the token set cannot answer the whole-word test.
	word *regexp.Regexp
}

// Extractor applies the dependency rules against a fixed registry.
//
// Thread Safety: Safe for concurrent use after construction.
type Extractor struct {
	reg     *registry.Registry
	classes []classRef
}

// NewExtractor precomputes per-class lookup data for reg.
//
// Complexity: O(registry size).
func NewExtractor(reg *registry.Registry) *Extractor {
	fqns := reg.FQNs()
	classes := make([]classRef, 0, len(fqns))
	for _, fqn := range fqns {
		ref := classRef{
			fqn:        fqn,
			pkg:        registry.PackageOf(fqn),
			simple:     registry.SimpleName(fqn),
			importStmt: "import " + fqn + ";",
		}
		if !isIdentifier(ref.simple) {
			ref.word = regexp.MustCompile(`\b` + regexp.QuoteMeta(ref.simple) + `\b`)
		}
		classes = append(classes, ref)
	}
	return &Extractor{reg: reg, classes: classes}
}

// Registry returns the registry the extractor was built for.
func (e *Extractor) Registry() *registry.Registry {
	return e.reg
}

// Extract returns the registered classes referenced by text, sorted by FQN.
//
// Description:
//
//	Applies the import rule and the usage rule and merges the results.
//	The text's own class is not known here, so a file that names itself
//	(which every class declaration does) lists itself; use ExtractFor to
//	drop the self reference.
//
// Complexity:
//
//	O(len(text) + registry size). Words are tokenized once; each class
//	is then a set lookup.
func (e *Extractor) Extract(text string) []Dependency {
	found := make(map[string]Rule)

	for _, m := range importPattern.FindAllStringSubmatch(text, -1) {
		if e.reg.Contains(m[1]) {
			found[m[1]] |= RuleImport
		}
	}

	ownPkg := registry.ExtractPackage(text)
	words := wordSet(text)
	for i := range e.classes {
		c := &e.classes[i]
		if !c.usedIn(text, words) {
			continue
		}
		if (ownPkg != "" && ownPkg == c.pkg) || strings.Contains(text, c.importStmt) {
			found[c.fqn] |= RuleUsage
		}
	}

	out := make([]Dependency, 0, len(found))
	for fqn, rules := range found {
		out = append(out, Dependency{Class: fqn, Rules: rules})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Class < out[j].Class })
	return out
}

// ExtractFor returns the dependencies of a registered class, excluding itself.
//
// Outputs:
//
//	[]Dependency - Sorted by FQN.
//	error - registry.ErrClassNotFound, or a *registry.ReadError.
func (e *Extractor) ExtractFor(fqn string) ([]Dependency, error) {
	text, err := e.reg.Text(fqn)
	if err != nil {
		return nil, err
	}
	all := e.Extract(text)
	out := all[:0]
	for _, d := range all {
		if d.Class != fqn {
			out = append(out, d)
		}
	}
	return out, nil
}

// References reports whether text refers to the registered class target
// under either rule.
//
// Used for caller detection against a single class, where building the
// full dependency set would be wasted work.
func (e *Extractor) References(text, target string) bool {
	if strings.Contains(text, "import "+target+";") {
		return true
	}
	simple := registry.SimpleName(target)
	if !containsWord(text, simple) {
		return false
	}
	ownPkg := registry.ExtractPackage(text)
	return ownPkg != "" && ownPkg == registry.PackageOf(target)
}

// Imports returns every imported name in text, registered or not, in
// source order.
func Imports(text string) []string {
	matches := importPattern.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

func (c *classRef) usedIn(text string, words map[string]struct{}) bool {
	if c.word != nil {
		return c.word.MatchString(text)
	}
	_, ok := words[c.simple]
	return ok
}

// containsWord is the single-lookup form of the whole-word test.
func containsWord(text, word string) bool {
	if word == "" {
		return false
	}
	if !isIdentifier(word) {
		return regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`).MatchString(text)
	}
	for start := 0; ; {
		idx := strings.Index(text[start:], word)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(word)
		if (idx == 0 || !isWordByte(text[idx-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		start = idx + 1
	}
}

// wordSet returns every maximal run of word characters in text.
//
// A simple name made of word characters occurs as a regexp \b-delimited
// word exactly when it equals one of these runs.
func wordSet(text string) map[string]struct{} {
	words := make(map[string]struct{})
	start := -1
	for i := 0; i < len(text); i++ {
		if isWordByte(text[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			words[text[start:i]] = struct{}{}
			start = -1
		}
	}
	if start >= 0 {
		words[text[start:]] = struct{}{}
	}
	return words
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isWordByte(s[i]) {
			return false
		}
	}
	return true
}
