// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry indexes a source tree into fully-qualified class names.
//
// A class is addressed by the package it declares plus its file base name
// ("com.example.order.application" + "OrderCommand"). Files without a
// package declaration cannot be addressed and are left out of the index.
//
// # Lifecycle
//
//  1. Build(ctx, root) walks the tree once
//  2. The returned Registry is read-only
//  3. Every later phase (dependency extraction, tracing, reporting) reads it
//
// # Thread Safety
//
// A built Registry is safe for concurrent reads. File text is served from an
// LRU cache that is itself safe for concurrent use.
package registry

import (
	"errors"
	"fmt"
)

// Sentinel errors for registry operations.
var (
	// ErrInvalidRoot is returned when the analysis root is missing or is
	// not a directory. Nothing is scanned in that case.
	ErrInvalidRoot = errors.New("invalid analysis root")

	// ErrClassNotFound is returned when an FQN is not in the registry.
	ErrClassNotFound = errors.New("class not found")
)

// ReadError records a source file that could not be read during a scan.
//
// Read failures never abort a scan; they are collected so callers can
// surface them as warnings.
type ReadError struct {
	// Path is the file that failed.
	Path string `json:"path"`

	// Err is the underlying filesystem error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ReadError) Error() string {
	return fmt.Sprintf("reading %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying filesystem error.
func (e *ReadError) Unwrap() error {
	return e.Err
}
