// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, ".java", cfg.Extension)
	assert.Equal(t, []string{"client.post"}, cfg.Patterns)
	assert.Equal(t, "application", cfg.EntrySubdir)
	assert.Equal(t, 4, cfg.EntryDepth)
	assert.Equal(t, "expose", cfg.ExposeDir)
	assert.Equal(t, []string{"Dto", "Input", "Output"}, cfg.ExposeExcludeSuffixes)
	assert.Equal(t, "infra", cfg.InfraDir)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, 2*time.Second, cfg.Watch.MinInterval)
	assert.Equal(t, 500, cfg.Neo4j.BatchSize)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	want, _ := Default()
	assert.Equal(t, want.Patterns, cfg.Patterns)
	assert.Equal(t, want.EntrySubdir, cfg.EntrySubdir)
}

func TestLoad_ProjectFileOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ConfigFileName, `
patterns:
  - restTemplate.postForObject
  - webClient.post
entry_subdir: usecase
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"restTemplate.postForObject", "webClient.post"}, cfg.Patterns)
	assert.Equal(t, "usecase", cfg.EntrySubdir)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, "expose", cfg.ExposeDir)
	assert.Equal(t, 4, cfg.EntryDepth)
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ConfigFileName, "patterns: [unclosed\n")
	_, err := Load(dir)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	writeFile(t, dir, ConfigFileName, "patterns: []\n")
	_, err = Load(dir)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	writeFile(t, dir, ConfigFileName, "entry_subdir: a/b\n")
	_, err = Load(dir)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadFile_MustExist(t *testing.T) {
	_, err := LoadFile(t.TempDir(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MODTRACE_PATTERNS", "http.get, http.post ,")
	t.Setenv("MODTRACE_ENTRY_DEPTH", "6")
	t.Setenv("MODTRACE_NEO4J_URI", "bolt://localhost:7687")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, []string{"http.get", "http.post"}, cfg.Patterns)
	assert.Equal(t, 6, cfg.EntryDepth)
	assert.Equal(t, "bolt://localhost:7687", cfg.Neo4j.URI)
}

func TestApplyEnv_Errors(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	env := map[string]string{"MODTRACE_ENTRY_DEPTH": "deep"}
	err = cfg.ApplyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	assert.ErrorIs(t, err, ErrInvalidConfig)

	env = map[string]string{"MODTRACE_WATCH_DEBOUNCE": "soon"}
	err = cfg.ApplyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	assert.ErrorIs(t, err, ErrInvalidConfig)

	env = map[string]string{"MODTRACE_WATCH_DEBOUNCE": "1s"}
	require.NoError(t, cfg.ApplyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }))
	assert.Equal(t, time.Second, cfg.Watch.Debounce)
}

func TestLoad_DotEnv(t *testing.T) {
	const key = "MODTRACE_INFRA_DIR"
	require.Empty(t, os.Getenv(key))
	t.Cleanup(func() { os.Unsetenv(key) })

	dir := t.TempDir()
	writeFile(t, dir, ".env", key+"=persistence\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "persistence", cfg.InfraDir)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AnalysisConfig)
	}{
		{"extension without dot", func(c *AnalysisConfig) { c.Extension = "java" }},
		{"blank pattern", func(c *AnalysisConfig) { c.Patterns = []string{""} }},
		{"zero depth", func(c *AnalysisConfig) { c.EntryDepth = 0 }},
		{"bad neo4j uri", func(c *AnalysisConfig) { c.Neo4j.URI = "not a uri" }},
		{"zero cache", func(c *AnalysisConfig) { c.CacheSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Default()
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
