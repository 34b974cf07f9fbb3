// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tables lists the database tables implied by repository classes.
//
// Every class named <Entity>Repository under a directory named "infra"
// (configurable) maps to the table snake_case(<Entity>).
package tables

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/AleutianAI/modtrace/services/trace/registry"
)

// DefaultInfraDir is the directory holding persistence adapters.
const DefaultInfraDir = "infra"

var (
	repositoryPattern = regexp.MustCompile(`^(.+)Repository$`)
	camelBoundary     = regexp.MustCompile(`([a-z])([A-Z])`)
)

// Table is one table derived from a repository class.
type Table struct {
	// Name is the snake_case table name.
	Name string `json:"name"`

	// Repository is the repository class simple name.
	Repository string `json:"repository"`

	// Class is the repository FQN.
	Class string `json:"class"`
}

// ModuleTables is the tables of one module, sorted by name.
type ModuleTables struct {
	Module string  `json:"module"`
	Tables []Table `json:"tables"`
}

// Scan finds repository classes under infraDir directories.
//
// Inputs:
//
//	reg - Built registry. Only registered classes are considered.
//	infraDir - Directory name to look under. Empty uses DefaultInfraDir.
//
// Outputs:
//
//	[]ModuleTables - Sorted by module. Modules without repositories are
//	                 absent.
func Scan(reg *registry.Registry, infraDir string) []ModuleTables {
	if infraDir == "" {
		infraDir = DefaultInfraDir
	}

	byModule := make(map[string][]Table)
	for _, u := range reg.Units() {
		if !underDir(reg.RelPath(u.FilePath), infraDir) {
			continue
		}
		name := u.SimpleName()
		m := repositoryPattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		byModule[u.Module] = append(byModule[u.Module], Table{
			Name:       SnakeCase(m[1]),
			Repository: name,
			Class:      u.FQN,
		})
	}

	modules := make([]string, 0, len(byModule))
	for m := range byModule {
		modules = append(modules, m)
	}
	sort.Strings(modules)

	out := make([]ModuleTables, 0, len(modules))
	for _, m := range modules {
		ts := byModule[m]
		sort.Slice(ts, func(i, j int) bool {
			if ts[i].Name != ts[j].Name {
				return ts[i].Name < ts[j].Name
			}
			return ts[i].Class < ts[j].Class
		})
		out = append(out, ModuleTables{Module: m, Tables: ts})
	}
	return out
}

// SnakeCase converts "ProductStock" to "product_stock". Runs of capitals
// are not split: "HTTPLog" becomes "httplog".
func SnakeCase(s string) string {
	return strings.ToLower(camelBoundary.ReplaceAllString(s, "${1}_${2}"))
}

func underDir(rel, dir string) bool {
	for _, s := range strings.Split(path.Dir(rel), "/") {
		if s == dir {
			return true
		}
	}
	return false
}
