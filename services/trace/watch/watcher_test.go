// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupe_KeepsLatestPerPath(t *testing.T) {
	got := dedupe([]Change{
		{Path: "/a/A.java", Op: OpCreate},
		{Path: "/a/B.java", Op: OpWrite},
		{Path: "/a/A.java", Op: OpWrite},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "/a/A.java", got[0].Path)
	assert.Equal(t, OpWrite, got[0].Op)
	assert.Equal(t, "/a/B.java", got[1].Path)
}

func TestFilterSource(t *testing.T) {
	got := filterSource([]Change{
		{Path: "/p/order/A.java", Op: OpWrite},
		{Path: "/p/order/README.md", Op: OpWrite},
		{Path: "/p/order/B.JAVA", Op: OpCreate},
		{Path: "/p/order/application", Op: OpRemove},
		{Path: "/p/order/newdir", Op: OpCreate},
	}, ".java")

	var paths []string
	for _, c := range got {
		paths = append(paths, c.Path)
	}
	assert.Equal(t, []string{"/p/order/A.java", "/p/order/B.JAVA", "/p/order/application"}, paths)
}

func TestShouldIgnore(t *testing.T) {
	w, err := New("/p", nil)
	require.NoError(t, err)
	defer w.Stop()

	assert.True(t, w.shouldIgnore("/p/.git/HEAD"))
	assert.True(t, w.shouldIgnore("/p/order/target/classes"))
	assert.True(t, w.shouldIgnore("/p/order/A.java.swp"))
	assert.False(t, w.shouldIgnore("/p/order/A.java"))
	assert.False(t, w.shouldIgnore("/p/targeting/A.java"))
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "create", OpCreate.String())
	assert.Equal(t, "rename", OpRename.String())
	assert.Equal(t, "unknown", Op(42).String())
}

func TestWatcher_RerunsOnSourceChange(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "order"), 0o755))

	batches := make(chan []Change, 4)
	w, err := New(root, func(_ context.Context, changes []Change) error {
		batches <- changes
		return nil
	}, WithDebounce(50*time.Millisecond), WithMinInterval(0))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(root, "order", "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "order", "Order.java"), []byte("class Order {}"), 0o644))

	select {
	case got := <-batches:
		require.NotEmpty(t, got)
		for _, c := range got {
			assert.Equal(t, ".java", filepath.Ext(c.Path))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no rerun after source change")
	}
	assert.GreaterOrEqual(t, w.Runs(), 1)

	cancel()
	w.Wait()
	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyStarted)
}
