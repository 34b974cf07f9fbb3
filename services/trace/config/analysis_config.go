// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads analysis settings.
//
// Settings come from three layers, later ones winning:
//
//  1. modtrace_defaults.yaml, embedded in the binary
//  2. modtrace.config.yaml at the project root (optional)
//  3. MODTRACE_* environment variables, including those from a .env file
//
// Command-line flags are applied by the caller after Load returns.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed modtrace_defaults.yaml
var defaultAnalysisYAML []byte

const (
	// ConfigFileName is the per-project config file looked up at the root.
	ConfigFileName = "modtrace.config.yaml"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "MODTRACE_"

	// MaxConfigFileSize bounds the size of a config file.
	MaxConfigFileSize = 1 << 20
)

// ErrInvalidConfig is returned when a config file cannot be parsed or a
// setting fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// AnalysisConfig holds every analysis setting.
//
// Thread Safety: Not safe for concurrent mutation. Treat a loaded config
// as read-only.
type AnalysisConfig struct {
	// Extension is the source file extension, including the dot.
	Extension string `yaml:"extension" validate:"required,startswith=."`

	// IgnoreDirs are directory names skipped while indexing.
	IgnoreDirs []string `yaml:"ignore_dirs" validate:"dive,required"`

	// Patterns are the call-site substrings to trace.
	Patterns []string `yaml:"patterns" validate:"required,min=1,dive,required"`

	// EntrySubdir names the directory holding trace entry classes.
	EntrySubdir string `yaml:"entry_subdir" validate:"required,excludesall=/\\"`

	// EntryDepth bounds how deep EntrySubdir is searched.
	EntryDepth int `yaml:"entry_depth" validate:"gte=1,lte=64"`

	// ExposeDir names the directory marking a module's public API.
	ExposeDir string `yaml:"expose_dir" validate:"required,excludesall=/\\"`

	// ExposeExcludeSuffixes are data-only class suffixes left out of the
	// exposed API.
	ExposeExcludeSuffixes []string `yaml:"expose_exclude_suffixes"`

	// InfraDir names the directory holding repository classes.
	InfraDir string `yaml:"infra_dir" validate:"required,excludesall=/\\"`

	// CacheSize is the number of source texts kept in memory.
	CacheSize int `yaml:"cache_size" validate:"gte=1"`

	Snapshots SnapshotConfig `yaml:"snapshots"`
	Neo4j     Neo4jConfig    `yaml:"neo4j"`
	Watch     WatchConfig    `yaml:"watch"`
}

// SnapshotConfig configures the snapshot store.
type SnapshotConfig struct {
	// Dir is the BadgerDB directory. Empty disables persistence.
	Dir string `yaml:"dir"`
}

// Neo4jConfig configures graph export.
type Neo4jConfig struct {
	// URI is the bolt/neo4j URI. Empty disables export.
	URI string `yaml:"uri" validate:"omitempty,uri"`

	Username string `yaml:"username"`

	// Password is normally supplied through MODTRACE_NEO4J_PASSWORD.
	Password string `yaml:"password"`

	Database string `yaml:"database"`

	// BatchSize is the number of rows per UNWIND statement.
	BatchSize int `yaml:"batch_size" validate:"gte=1,lte=100000"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	// Debounce is the quiet period before a batch of events is handled.
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`

	// MinInterval is the minimum time between two analysis runs.
	MinInterval time.Duration `yaml:"min_interval" validate:"gte=0"`

	// IgnorePatterns are filepath.Match patterns on base names.
	IgnorePatterns []string `yaml:"ignore_patterns"`
}

// Default returns the embedded defaults.
func Default() (*AnalysisConfig, error) {
	var cfg AnalysisConfig
	if err := yaml.Unmarshal(defaultAnalysisYAML, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	return &cfg, nil
}

// Load resolves the configuration for a project.
//
// Description:
//
//	Starts from the embedded defaults, overlays <projectRoot>/
//	modtrace.config.yaml when it exists, loads <projectRoot>/.env without
//	overriding variables already set, applies MODTRACE_* overrides and
//	validates the result. A missing config file is not an error.
//
// Inputs:
//
//	projectRoot - Analysis root. Empty skips the file and .env layers.
//
// Outputs:
//
//	*AnalysisConfig - The validated configuration.
//	error - Wraps ErrInvalidConfig for bad files or values.
func Load(projectRoot string) (*AnalysisConfig, error) {
	path := ""
	if projectRoot != "" {
		path = filepath.Join(projectRoot, ConfigFileName)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	return load(projectRoot, path)
}

// LoadFile is Load with an explicit config file, which must exist.
func LoadFile(projectRoot, configPath string) (*AnalysisConfig, error) {
	if configPath == "" {
		return Load(projectRoot)
	}
	return load(projectRoot, configPath)
}

func load(projectRoot, configPath string) (*AnalysisConfig, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if configPath != "" {
		if err := cfg.overlayFile(configPath); err != nil {
			return nil, err
		}
	}

	if projectRoot != "" {
		if err := LoadDotEnv(projectRoot); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AnalysisConfig) overlayFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if info.Size() > MaxConfigFileSize {
		return fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidConfig, path, MaxConfigFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

// LoadDotEnv loads dir/.env into the process environment. Variables that
// are already set keep their values. A missing file is not an error.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv applies MODTRACE_* overrides read through lookup.
//
// List values (PATTERNS, IGNORE_DIRS, EXPOSE_EXCLUDE_SUFFIXES) are comma
// separated. Durations use time.ParseDuration syntax.
func (c *AnalysisConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = splitList(v)
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q is not an integer", ErrInvalidConfig, EnvPrefix, name, v)
		}
		*dst = n
		return nil
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q is not a duration", ErrInvalidConfig, EnvPrefix, name, v)
		}
		*dst = d
		return nil
	}

	str("EXTENSION", &c.Extension)
	list("IGNORE_DIRS", &c.IgnoreDirs)
	list("PATTERNS", &c.Patterns)
	str("ENTRY_SUBDIR", &c.EntrySubdir)
	str("EXPOSE_DIR", &c.ExposeDir)
	list("EXPOSE_EXCLUDE_SUFFIXES", &c.ExposeExcludeSuffixes)
	str("INFRA_DIR", &c.InfraDir)
	str("SNAPSHOT_DIR", &c.Snapshots.Dir)
	str("NEO4J_URI", &c.Neo4j.URI)
	str("NEO4J_USER", &c.Neo4j.Username)
	str("NEO4J_PASSWORD", &c.Neo4j.Password)
	str("NEO4J_DATABASE", &c.Neo4j.Database)

	for _, f := range []func() error{
		func() error { return num("ENTRY_DEPTH", &c.EntryDepth) },
		func() error { return num("CACHE_SIZE", &c.CacheSize) },
		func() error { return num("NEO4J_BATCH_SIZE", &c.Neo4j.BatchSize) },
		func() error { return dur("WATCH_DEBOUNCE", &c.Watch.Debounce) },
		func() error { return dur("WATCH_MIN_INTERVAL", &c.Watch.MinInterval) },
	} {
		if err := f(); err != nil {
			return err
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every setting.
func (c *AnalysisConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidConfig, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
