// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package result collects trace matches for one analysis run.
package result

import (
	"sort"
	"strings"
)

// TraceMatch is one call site found by the reachability tracer.
type TraceMatch struct {
	// ClassChain is the path of FQNs from the start class to MatchedClass,
	// inclusive of both ends.
	ClassChain []string `json:"class_chain"`

	// MatchedClass is the FQN whose text contains the call site.
	MatchedClass string `json:"matched_class"`

	// LineNumber is 1-based.
	LineNumber int `json:"line_number"`

	// LineText is the matching line, trimmed.
	LineText string `json:"line_text"`

	// MethodName is the enclosing method, or "unknown".
	MethodName string `json:"method_name"`

	// Module is the module of MatchedClass.
	Module string `json:"module"`

	// Pattern is the pattern that matched the line.
	Pattern string `json:"pattern"`

	// RawArgument is the first call argument as written, or "".
	RawArgument string `json:"raw_argument,omitempty"`

	// ResolvedArgument is the best-effort literal value of the first
	// argument. It is also "" for an explicit empty literal; use
	// HasArgument to tell the cases apart.
	ResolvedArgument string `json:"resolved_argument,omitempty"`
}

// HasArgument reports whether the call had a first argument. An explicit
// empty literal counts even though it resolves to "".
func (m TraceMatch) HasArgument() bool {
	return m.RawArgument != ""
}

// DisplayArgument is ResolvedArgument, or RawArgument when the argument
// resolved to the empty string.
func (m TraceMatch) DisplayArgument() string {
	if m.ResolvedArgument == "" {
		return m.RawArgument
	}
	return m.ResolvedArgument
}

// SimpleClassName returns MatchedClass without its package.
func (m TraceMatch) SimpleClassName() string {
	if idx := strings.LastIndexByte(m.MatchedClass, '.'); idx >= 0 {
		return m.MatchedClass[idx+1:]
	}
	return m.MatchedClass
}

// Key is the deduplication key of a match.
type Key struct {
	Class  string
	Method string
}

// Key returns the deduplication key (MatchedClass, MethodName).
func (m TraceMatch) Key() Key {
	return Key{Class: m.MatchedClass, Method: m.MethodName}
}

// Aggregator is an insertion-ordered set of matches keyed by
// (MatchedClass, MethodName).
//
// Only the first match for a key is kept: a second call site in the same
// method of the same class is dropped even when it carries a different
// argument.
//
// Thread Safety: NOT safe for concurrent use. One Aggregator belongs to
// one Trace call.
type Aggregator struct {
	matches []TraceMatch
	seen    map[Key]struct{}
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{seen: make(map[Key]struct{})}
}

// Add records m unless a match with the same key exists.
//
// Returns true if m was added.
func (a *Aggregator) Add(m TraceMatch) bool {
	k := m.Key()
	if _, dup := a.seen[k]; dup {
		return false
	}
	a.seen[k] = struct{}{}
	chain := make([]string, len(m.ClassChain))
	copy(chain, m.ClassChain)
	m.ClassChain = chain
	a.matches = append(a.matches, m)
	return true
}

// Contains reports whether a match for (class, method) was recorded.
func (a *Aggregator) Contains(class, method string) bool {
	_, ok := a.seen[Key{Class: class, Method: method}]
	return ok
}

// Matches returns a copy of the matches in insertion order.
func (a *Aggregator) Matches() []TraceMatch {
	out := make([]TraceMatch, len(a.matches))
	copy(out, a.matches)
	return out
}

// HasMatches reports whether anything was recorded.
func (a *Aggregator) HasMatches() bool {
	return len(a.matches) > 0
}

// Len returns the number of matches.
func (a *Aggregator) Len() int {
	return len(a.matches)
}

// ModuleGroup is the matches of one module, sorted for display.
type ModuleGroup struct {
	Module  string       `json:"module"`
	Matches []TraceMatch `json:"matches"`
}

// ByModule groups matches by module.
//
// Groups are sorted by module name. Within a group matches are sorted by
// class, then method, then line; insertion order breaks remaining ties.
func (a *Aggregator) ByModule() []ModuleGroup {
	index := make(map[string]int)
	var groups []ModuleGroup
	for _, m := range a.matches {
		i, ok := index[m.Module]
		if !ok {
			i = len(groups)
			index[m.Module] = i
			groups = append(groups, ModuleGroup{Module: m.Module})
		}
		groups[i].Matches = append(groups[i].Matches, m)
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].Module < groups[j].Module })
	for _, g := range groups {
		ms := g.Matches
		sort.SliceStable(ms, func(i, j int) bool {
			if ms[i].MatchedClass != ms[j].MatchedClass {
				return ms[i].MatchedClass < ms[j].MatchedClass
			}
			if ms[i].MethodName != ms[j].MethodName {
				return ms[i].MethodName < ms[j].MethodName
			}
			return ms[i].LineNumber < ms[j].LineNumber
		})
	}
	return groups
}
