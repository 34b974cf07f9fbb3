// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/modtrace/services/trace/deps"
)

// newTestDB creates an in-memory BadgerDB for testing.
func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("failed to open in-memory badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// newTestSnapshotManager creates a SnapshotManager with in-memory DB.
func newTestSnapshotManager(t *testing.T) *SnapshotManager {
	t.Helper()
	db := newTestDB(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	mgr, err := NewSnapshotManager(db, logger)
	if err != nil {
		t.Fatalf("NewSnapshotManager: %v", err)
	}
	return mgr
}

func TestNewSnapshotManager_NilDB(t *testing.T) {
	if _, err := NewSnapshotManager(nil, slog.Default()); err == nil {
		t.Error("expected error for nil DB")
	}
}

func TestNewSnapshotManager_NilLogger(t *testing.T) {
	if _, err := NewSnapshotManager(newTestDB(t), nil); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestSnapshotManager_SaveAndLoad(t *testing.T) {
	mgr := newTestSnapshotManager(t)
	ctx := context.Background()
	g := buildTestGraph(t)

	meta, err := mgr.Save(ctx, g, "baseline")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if meta.SnapshotID == "" {
		t.Error("snapshot ID should not be empty")
	}
	if meta.ProjectHash != ProjectHash("/test/project") {
		t.Errorf("project hash = %q", meta.ProjectHash)
	}
	if meta.ClassCount != 3 || meta.EdgeCount != 3 {
		t.Errorf("counts = %d classes %d edges, want 3/3", meta.ClassCount, meta.EdgeCount)
	}
	if meta.ModuleCount != 3 || meta.ModuleEdgeCount != 2 {
		t.Errorf("module counts = %d/%d, want 3/2", meta.ModuleCount, meta.ModuleEdgeCount)
	}
	if meta.Label != "baseline" {
		t.Errorf("label = %q", meta.Label)
	}
	if meta.CompressedSize <= 0 || meta.ContentHash == "" {
		t.Error("compressed size and content hash should be set")
	}

	loaded, loadedMeta, err := mgr.Load(ctx, meta.SnapshotID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Hash() != g.Hash() {
		t.Error("loaded graph differs from saved graph")
	}
	if loaded.BuiltAtMilli != g.BuiltAtMilli {
		t.Errorf("BuiltAtMilli = %d, want %d", loaded.BuiltAtMilli, g.BuiltAtMilli)
	}
	if loadedMeta.SnapshotID != meta.SnapshotID {
		t.Errorf("metadata ID = %q, want %q", loadedMeta.SnapshotID, meta.SnapshotID)
	}
}

func TestSnapshotManager_LoadLatest(t *testing.T) {
	mgr := newTestSnapshotManager(t)
	ctx := context.Background()

	g1 := buildTestGraph(t)
	g1.BuiltAtMilli = 1000
	if _, err := mgr.Save(ctx, g1, "first"); err != nil {
		t.Fatal(err)
	}

	g2 := NewClassGraph("/test/project")
	g2.AddNode(unit("a.A", "a"))
	g2.Freeze()
	g2.BuiltAtMilli = 2000
	meta2, err := mgr.Save(ctx, g2, "second")
	if err != nil {
		t.Fatal(err)
	}

	latest, latestMeta, err := mgr.LoadLatest(ctx, ProjectHash("/test/project"))
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if latestMeta.SnapshotID != meta2.SnapshotID {
		t.Errorf("latest = %q, want %q", latestMeta.SnapshotID, meta2.SnapshotID)
	}
	if latest.NodeCount() != 1 {
		t.Errorf("latest node count = %d, want 1", latest.NodeCount())
	}
}

func TestSnapshotManager_NotFound(t *testing.T) {
	mgr := newTestSnapshotManager(t)
	ctx := context.Background()

	if _, _, err := mgr.Load(ctx, "missing"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Load err = %v, want ErrSnapshotNotFound", err)
	}
	if _, _, err := mgr.LoadLatest(ctx, ProjectHash("/nowhere")); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("LoadLatest err = %v, want ErrSnapshotNotFound", err)
	}
	if err := mgr.Delete(ctx, "missing"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Delete err = %v, want ErrSnapshotNotFound", err)
	}
	if _, _, err := mgr.Load(ctx, ""); err == nil {
		t.Error("expected error for empty ID")
	}
}

func TestSnapshotManager_ListAndDelete(t *testing.T) {
	mgr := newTestSnapshotManager(t)
	ctx := context.Background()

	var ids []string
	for i, root := range []string{"/p/one", "/p/one", "/p/two"} {
		g := NewClassGraph(root)
		g.AddNode(unit("a.A", "a"))
		g.Freeze()
		g.BuiltAtMilli = int64(1000 + i)
		meta, err := mgr.Save(ctx, g, "")
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, meta.SnapshotID)
	}

	all, err := mgr.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List(all) = %d, want 3", len(all))
	}

	one, err := mgr.List(ctx, ProjectHash("/p/one"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(one) != 2 {
		t.Errorf("List(/p/one) = %d, want 2", len(one))
	}

	limited, err := mgr.List(ctx, "", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("List(limit 1) = %d, want 1", len(limited))
	}

	if err := mgr.Delete(ctx, ids[1]); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := mgr.Load(ctx, ids[1]); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Load after delete err = %v", err)
	}
	// ids[1] was the latest for /p/one; the pointer goes with it.
	if _, _, err := mgr.LoadLatest(ctx, ProjectHash("/p/one")); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("LoadLatest after delete err = %v", err)
	}
	if _, _, err := mgr.Load(ctx, ids[0]); err != nil {
		t.Errorf("other snapshot should survive: %v", err)
	}
}

func TestSnapshotManager_IntegrityCheck(t *testing.T) {
	mgr := newTestSnapshotManager(t)
	ctx := context.Background()
	g := buildTestGraph(t)

	meta, err := mgr.Save(ctx, g, "")
	if err != nil {
		t.Fatal(err)
	}
	dataKey, _ := snapshotKeys(meta.ProjectHash, meta.SnapshotID)
	err = mgr.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(dataKey), []byte("corrupted"))
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := mgr.Load(ctx, meta.SnapshotID); err == nil {
		t.Error("expected integrity error for corrupted data")
	}
}

func TestSnapshotManager_SaveCancelled(t *testing.T) {
	mgr := newTestSnapshotManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewClassGraph("/p")
	g.AddNode(unit("a.A", "a"))
	g.AddNode(unit("a.B", "a"))
	g.AddEdge("a.A", "a.B", deps.RuleUsage)
	g.Freeze()

	if _, err := mgr.Save(ctx, g, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestIsMetaKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"modtrace:snap:abc:123:meta", true},
		{"modtrace:snap:abc:123:data", false},
		{"modtrace:snap:abc:latest", false},
		{"modtrace:snap:index:123", false},
		{":meta", true},
	}
	for _, tt := range tests {
		if got := isMetaKey(tt.key); got != tt.want {
			t.Errorf("isMetaKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}
