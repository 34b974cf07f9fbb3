// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// UnknownModule is the module name for paths with no segment under the root.
const UnknownModule = "unknown"

// packageKeyword starts a package declaration line.
const packageKeyword = "package "

// SourceUnit is one indexed source file.
//
// Identity is FQN. A SourceUnit is created once during Build and never
// mutated afterwards.
type SourceUnit struct {
	// FQN is package + "." + file base name.
	FQN string `json:"fqn"`

	// Package is the declared package.
	Package string `json:"package"`

	// FilePath is the absolute path of the file.
	FilePath string `json:"file_path"`

	// Module is the first path segment of FilePath under the root.
	Module string `json:"module"`
}

// SimpleName returns the class name without its package.
func (u SourceUnit) SimpleName() string {
	return SimpleName(u.FQN)
}

// Stats summarizes one scan.
type Stats struct {
	FilesScanned int           `json:"files_scanned"`
	Registered   int           `json:"registered"`
	NoPackage    int           `json:"no_package"`
	Unreadable   int           `json:"unreadable"`
	Collisions   int           `json:"collisions"`
	Duration     time.Duration `json:"duration"`
}

// Options configures a registry scan.
type Options struct {
	// Extension is the source file extension, including the dot.
	// Default: ".java"
	Extension string

	// IgnoreDirs are directory base names that are never descended into.
	IgnoreDirs []string

	// CacheSize bounds the in-run source text cache.
	CacheSize int

	// Logger receives scan warnings. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the default scan options.
func DefaultOptions() Options {
	return Options{
		Extension:  ".java",
		IgnoreDirs: []string{".git", ".idea", "target", "build", "node_modules"},
		CacheSize:  DefaultCacheSize,
		Logger:     slog.Default(),
	}
}

// Option is a functional option for Build.
type Option func(*Options)

// WithExtension sets the source file extension (".java", ".kt", ...).
func WithExtension(ext string) Option {
	return func(o *Options) {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		o.Extension = ext
	}
}

// WithIgnoreDirs replaces the ignored directory names.
func WithIgnoreDirs(dirs []string) Option {
	return func(o *Options) {
		o.IgnoreDirs = dirs
	}
}

// WithCacheSize sets the source cache size.
func WithCacheSize(n int) Option {
	return func(o *Options) {
		o.CacheSize = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// Registry maps fully-qualified class names to source files.
//
// Thread Safety: Read-only after Build; safe for concurrent reads.
type Registry struct {
	root       string
	units      map[string]*SourceUnit
	sorted     []string
	modules    []string
	readErrors []*ReadError
	stats      Stats
	source     *SourceCache
	options    Options
}

// ValidateRoot checks that root exists and is a directory.
//
// Outputs:
//
//	string - The cleaned absolute root.
//	error - Wraps ErrInvalidRoot if root is empty, missing, or a file.
func ValidateRoot(root string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", fmt.Errorf("%w: root must not be empty", ErrInvalidRoot)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: root directory does not exist: %s", ErrInvalidRoot, root)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: not a directory: %s", ErrInvalidRoot, root)
	}
	return abs, nil
}

// Build walks root and indexes every source file that declares a package.
//
// Description:
//
//	Walks the tree once. For each file with the configured extension the
//	text is read, the first trimmed line starting with "package " gives the
//	package name up to ";", and the file is registered as
//	package + "." + base name. Files without a package are skipped
//	silently. Unreadable files are logged and skipped. On an FQN collision
//	the later file wins.
//
// Inputs:
//
//	ctx - Context for cancellation, checked once per file.
//	root - The analysis root. Must exist and be a directory.
//	opts - Optional scan options.
//
// Outputs:
//
//	*Registry - The read-only registry.
//	error - ErrInvalidRoot, or the context error if cancelled.
//
// Complexity: O(total bytes of source).
func Build(ctx context.Context, root string, opts ...Option) (*Registry, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	absRoot, err := ValidateRoot(root)
	if err != nil {
		return nil, err
	}

	source, err := NewSourceCache(options.CacheSize)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		root:    absRoot,
		units:   make(map[string]*SourceUnit),
		source:  source,
		options: options,
	}

	ignored := make(map[string]struct{}, len(options.IgnoreDirs))
	for _, d := range options.IgnoreDirs {
		ignored[d] = struct{}{}
	}

	start := time.Now()
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			options.Logger.Warn("skipping unreadable path",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if d != nil && d.IsDir() && path != absRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if _, skip := ignored[d.Name()]; skip && path != absRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), options.Extension) {
			return nil
		}
		r.indexFile(path)
		return nil
	})
	if walkErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("walking %s: %w", absRoot, walkErr)
	}

	r.sorted = make([]string, 0, len(r.units))
	for fqn := range r.units {
		r.sorted = append(r.sorted, fqn)
	}
	sort.Strings(r.sorted)

	r.modules = scanModules(absRoot, ignored)
	r.stats.Registered = len(r.units)
	r.stats.Duration = time.Since(start)

	options.Logger.Debug("registry built",
		slog.String("root", absRoot),
		slog.Int("files_scanned", r.stats.FilesScanned),
		slog.Int("registered", r.stats.Registered),
		slog.Int("no_package", r.stats.NoPackage),
		slog.Int("unreadable", r.stats.Unreadable),
		slog.Duration("duration", r.stats.Duration))

	return r, nil
}

// indexFile reads and registers a single file.
func (r *Registry) indexFile(path string) {
	r.stats.FilesScanned++

	data, err := os.ReadFile(path)
	if err != nil {
		readErr := &ReadError{Path: path, Err: err}
		r.readErrors = append(r.readErrors, readErr)
		r.stats.Unreadable++
		r.options.Logger.Warn("failed to read file",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}

	text := string(data)
	pkg := ExtractPackage(text)
	if pkg == "" {
		r.stats.NoPackage++
		return
	}

	base := strings.TrimSuffix(filepath.Base(path), r.options.Extension)
	fqn := pkg + "." + base

	if prev, exists := r.units[fqn]; exists {
		r.stats.Collisions++
		r.options.Logger.Debug("fqn collision, keeping later file",
			slog.String("fqn", fqn),
			slog.String("previous", prev.FilePath),
			slog.String("path", path))
	}

	r.units[fqn] = &SourceUnit{
		FQN:      fqn,
		Package:  pkg,
		FilePath: path,
		Module:   ModuleOf(r.root, path),
	}
	r.source.Put(path, text)
}

// scanModules lists the directories directly under root.
func scanModules(root string, ignored map[string]struct{}) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return []string{}
	}
	modules := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, skip := ignored[e.Name()]; skip {
			continue
		}
		modules = append(modules, e.Name())
	}
	sort.Strings(modules)
	return modules
}

// Root returns the absolute analysis root.
func (r *Registry) Root() string {
	return r.root
}

// Len returns the number of registered classes.
func (r *Registry) Len() int {
	return len(r.units)
}

// Lookup returns the SourceUnit for fqn.
func (r *Registry) Lookup(fqn string) (*SourceUnit, bool) {
	u, ok := r.units[fqn]
	return u, ok
}

// Contains reports whether fqn is registered.
func (r *Registry) Contains(fqn string) bool {
	_, ok := r.units[fqn]
	return ok
}

// FQNs returns all registered class names, sorted.
func (r *Registry) FQNs() []string {
	out := make([]string, len(r.sorted))
	copy(out, r.sorted)
	return out
}

// Units returns all source units sorted by FQN.
func (r *Registry) Units() []*SourceUnit {
	out := make([]*SourceUnit, 0, len(r.sorted))
	for _, fqn := range r.sorted {
		out = append(out, r.units[fqn])
	}
	return out
}

// Modules returns the top-level directories under the root, sorted.
func (r *Registry) Modules() []string {
	out := make([]string, len(r.modules))
	copy(out, r.modules)
	return out
}

// ReadErrors returns the files that could not be read during the scan.
func (r *Registry) ReadErrors() []*ReadError {
	out := make([]*ReadError, len(r.readErrors))
	copy(out, r.readErrors)
	return out
}

// Stats returns scan statistics.
func (r *Registry) Stats() Stats {
	return r.stats
}

// Extension returns the source extension used for the scan.
func (r *Registry) Extension() string {
	return r.options.Extension
}

// Text returns the source text of a registered class.
//
// Outputs:
//
//	string - The file text.
//	error - ErrClassNotFound, or a *ReadError if the file vanished or became
//	        unreadable since the scan.
func (r *Registry) Text(fqn string) (string, error) {
	u, ok := r.units[fqn]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrClassNotFound, fqn)
	}
	return r.source.Read(u.FilePath)
}

// RelPath returns path relative to the root using forward slashes.
// Paths outside the root are returned unchanged.
func (r *Registry) RelPath(path string) string {
	rel, err := filepath.Rel(r.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// ExtractPackage returns the declared package of a source text.
//
// Description:
//
//	Finds the first line that, after trimming, starts with "package " and
//	returns the name up to ";". A declaration without a terminator uses the
//	rest of the line. Returns "" if the text declares no package.
func ExtractPackage(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, packageKeyword) {
			continue
		}
		rest := line[len(packageKeyword):]
		if idx := strings.IndexByte(rest, ';'); idx >= 0 {
			rest = rest[:idx]
		}
		return strings.TrimSpace(rest)
	}
	return ""
}

// ModuleOf returns the first path segment of path relative to root.
//
// Paths equal to root, or outside it, map to UnknownModule.
func ModuleOf(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return UnknownModule
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == "" || rel == ".." || strings.HasPrefix(rel, "../") {
		return UnknownModule
	}
	first, _, _ := strings.Cut(rel, "/")
	if first == "" {
		return UnknownModule
	}
	return first
}

// SimpleName returns the segment after the last ".".
func SimpleName(fqn string) string {
	if idx := strings.LastIndexByte(fqn, '.'); idx >= 0 {
		return fqn[idx+1:]
	}
	return fqn
}

// PackageOf returns everything before the last ".", or "" if there is none.
func PackageOf(fqn string) string {
	if idx := strings.LastIndexByte(fqn, '.'); idx >= 0 {
		return fqn[:idx]
	}
	return ""
}
