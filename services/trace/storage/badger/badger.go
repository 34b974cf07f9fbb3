// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger opens the BadgerDB store that holds graph snapshots.
//
// The store is optional. Analyses never read it back to skip work; it only
// keeps past class graphs so that they can be listed and diffed.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/modtrace/services/trace/graph"
)

// ErrNoDir is returned when a persistent store is opened without a path.
var ErrNoDir = errors.New("snapshot store directory is required")

// Config holds store settings.
type Config struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps everything in RAM. Used by tests and one-shot runs.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives BadgerDB's own log output. Nil silences it.
	Logger *slog.Logger

	// GCInterval is the value log GC period. 0 disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the garbage ratio that triggers a rewrite.
	GCDiscardRatio float64
}

// DefaultConfig returns settings for a persistent store in dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:            dir,
		SyncWrites:     true,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns settings for a throwaway store.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// slogAdapter routes BadgerDB's printf-style logging through slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (l *slogAdapter) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), slog.String("component", "badger"))
}

func (l *slogAdapter) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...), slog.String("component", "badger"))
}

func (l *slogAdapter) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), slog.String("component", "badger"))
}

func (l *slogAdapter) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), slog.String("component", "badger"))
}

// Store is an open snapshot database.
//
// Thread Safety: Safe for concurrent use. Close may be called more than
// once.
type Store struct {
	db       *badger.DB
	dir      string
	inMemory bool
	logger   *slog.Logger

	stopGC    context.CancelFunc
	gcDone    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Open opens (creating if needed) the store described by cfg.
//
// Description:
//
//	Creates Dir with mode 0750 when missing, opens BadgerDB and, for
//	persistent stores with a positive GCInterval, starts a background
//	value log GC loop that Close stops.
//
// Outputs:
//
//	*Store - The open store. Caller must Close it.
//	error - ErrNoDir, or the underlying open failure.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, ErrNoDir
		}
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create snapshot directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&slogAdapter{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, dir: cfg.Dir, inMemory: cfg.InMemory, logger: logger}
	if cfg.InMemory {
		s.dir = ""
	}

	if !cfg.InMemory && cfg.GCInterval > 0 {
		if cfg.GCDiscardRatio <= 0 || cfg.GCDiscardRatio >= 1 {
			cfg.GCDiscardRatio = 0.5
		}
		ctx, cancel := context.WithCancel(context.Background())
		s.stopGC = cancel
		s.gcDone = make(chan struct{})
		go s.gcLoop(ctx, cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// OpenInMemory opens a throwaway store.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

func (s *Store) gcLoop(ctx context.Context, interval time.Duration, ratio float64) {
	defer close(s.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CollectGarbage(ratio)
		}
	}
}

// CollectGarbage runs one value log GC pass.
//
// Returns true if a value log file was rewritten.
func (s *Store) CollectGarbage(ratio float64) bool {
	if s.inMemory {
		return false
	}
	err := s.db.RunValueLogGC(ratio)
	switch {
	case err == nil:
		s.logger.Debug("snapshot store GC rewrote a value log")
		return true
	case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrRejected):
		return false
	default:
		s.logger.Warn("snapshot store GC failed", slog.String("error", err.Error()))
		return false
	}
}

// DB returns the underlying database.
func (s *Store) DB() *badger.DB {
	return s.db
}

// Dir returns the database directory, or "" for in-memory stores.
func (s *Store) Dir() string {
	return s.dir
}

// InMemory reports whether the store lives only in RAM.
func (s *Store) InMemory() bool {
	return s.inMemory
}

// Snapshots returns a snapshot manager over this store.
func (s *Store) Snapshots(logger *slog.Logger) (*graph.SnapshotManager, error) {
	if logger == nil {
		logger = s.logger
	}
	return graph.NewSnapshotManager(s.db, logger)
}

// Close stops GC and closes the database.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.stopGC != nil {
			s.stopGC()
			<-s.gcDone
		}
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}
