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
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of file texts kept in memory.
const DefaultCacheSize = 4096

// SourceCache holds file text for the lifetime of one analysis run.
//
// Description:
//
//	The registry scan, the dependency extractor, and the tracer all need
//	the same file text. The cache keeps the most recently used files so a
//	run reads each file from disk about once. It is never shared across
//	runs.
//
// Thread Safety: Safe for concurrent use.
type SourceCache struct {
	texts *lru.Cache[string, string]
}

// NewSourceCache creates a cache holding up to size file texts.
//
// Inputs:
//
//	size - Maximum entries. Values <= 0 use DefaultCacheSize.
//
// Outputs:
//
//	*SourceCache - The cache.
//	error - Non-nil if the LRU could not be created.
func NewSourceCache(size int) (*SourceCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	texts, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("creating source cache: %w", err)
	}
	return &SourceCache{texts: texts}, nil
}

// Put stores the text for path.
func (c *SourceCache) Put(path, text string) {
	c.texts.Add(path, text)
}

// Read returns the text for path, reading from disk on a cache miss.
//
// Outputs:
//
//	string - The file text.
//	error - A *ReadError if the file could not be read.
func (c *SourceCache) Read(path string) (string, error) {
	if text, ok := c.texts.Get(path); ok {
		return text, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ReadError{Path: path, Err: err}
	}
	text := string(data)
	c.texts.Add(path, text)
	return text, nil
}

// Len returns the number of cached texts.
func (c *SourceCache) Len() int {
	return c.texts.Len()
}
