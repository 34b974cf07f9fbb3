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
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Snapshot keyspace:
//
//	modtrace:snap:{project}:{id}:data  gzip(JSON(SerializableGraph))
//	modtrace:snap:{project}:{id}:meta  JSON(SnapshotMetadata)
//	modtrace:snap:{project}:latest     id of the newest save
//	modtrace:snap:index:{id}           project hash, for lookups by id
const (
	snapNamespace = "modtrace:snap:"
	snapIndexNS   = snapNamespace + "index:"
	dataSuffix    = ":data"
	metaSuffix    = ":meta"
	latestSuffix  = ":latest"

	defaultListLimit = 100
)

// SnapshotMetadata describes one stored dependency graph.
type SnapshotMetadata struct {
	// SnapshotID is the first 16 hex chars of SHA256(root:builtAt).
	SnapshotID  string `json:"snapshot_id"`
	ProjectRoot string `json:"project_root"`
	ProjectHash string `json:"project_hash"`
	GraphHash   string `json:"graph_hash"`
	Label       string `json:"label,omitempty"`

	// CreatedAtMilli is the save time, not the analysis time.
	CreatedAtMilli int64 `json:"created_at_milli"`

	ClassCount      int    `json:"class_count"`
	EdgeCount       int    `json:"edge_count"`
	ModuleCount     int    `json:"module_count"`
	ModuleEdgeCount int    `json:"module_edge_count"`
	SchemaVersion   string `json:"schema_version"`

	// CompressedSize and ContentHash describe the stored data blob.
	CompressedSize int64  `json:"compressed_size"`
	ContentHash    string `json:"content_hash"`
}

// SnapshotManager stores class graphs in BadgerDB so later analyses can
// be diffed against them. Nothing reads a snapshot back to skip work.
//
// Thread Safety: safe for concurrent use; Badger transactions provide
// isolation.
type SnapshotManager struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewSnapshotManager wraps an open database. Both arguments are required.
func NewSnapshotManager(db *badger.DB, logger *slog.Logger) (*SnapshotManager, error) {
	switch {
	case db == nil:
		return nil, errors.New("snapshot manager: nil badger db")
	case logger == nil:
		return nil, errors.New("snapshot manager: nil logger")
	}
	return &SnapshotManager{db: db, logger: logger}, nil
}

// Save writes g under a new snapshot ID and makes it the latest snapshot
// of its analysis root.
//
// Description:
//
//	The graph is flattened with ToSerializable, encoded and compressed.
//	All four keys are written in one transaction so a reader never sees
//	a half-written snapshot. Saving the same graph twice (same root and
//	build time) overwrites the earlier entry.
//
// Outputs:
//
//	*SnapshotMetadata - What was stored.
//	error - ctx.Err() if already cancelled, otherwise encode or write errors.
func (m *SnapshotManager) Save(ctx context.Context, g *ClassGraph, label string) (*SnapshotMetadata, error) {
	if ctx == nil {
		return nil, errors.New("save snapshot: nil context")
	}
	if g == nil {
		return nil, errors.New("save snapshot: nil graph")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	flat := g.ToSerializable()
	blob, err := encodeGraph(flat)
	if err != nil {
		return nil, err
	}

	project := ProjectHash(g.ProjectRoot)
	id := hashString(fmt.Sprintf("%s:%d", g.ProjectRoot, g.BuiltAtMilli))[:16]

	meta := &SnapshotMetadata{
		SnapshotID:      id,
		ProjectRoot:     g.ProjectRoot,
		ProjectHash:     project,
		GraphHash:       flat.GraphHash,
		Label:           label,
		CreatedAtMilli:  time.Now().UnixMilli(),
		ClassCount:      len(flat.Nodes),
		EdgeCount:       len(flat.Edges),
		ModuleCount:     len(flat.Modules),
		ModuleEdgeCount: len(flat.ModuleEdges),
		SchemaVersion:   GraphSchemaVersion,
		CompressedSize:  int64(len(blob)),
		ContentHash:     hashBytes(blob),
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot metadata: %w", err)
	}

	dataKey, metaKey := snapshotKeys(project, id)
	writes := []struct {
		key, value []byte
	}{
		{[]byte(dataKey), blob},
		{[]byte(metaKey), metaBytes},
		{latestKey(project), []byte(id)},
		{indexKey(id), []byte(project)},
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		for _, w := range writes {
			if err := txn.Set(w.key, w.value); err != nil {
				return fmt.Errorf("set %s: %w", w.key, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storing snapshot %s: %w", id, err)
	}

	m.logger.Info("snapshot saved",
		slog.String("snapshot_id", id),
		slog.String("project_root", g.ProjectRoot),
		slog.Int("class_count", meta.ClassCount),
		slog.Int("edge_count", meta.EdgeCount),
		slog.Int64("compressed_size", meta.CompressedSize),
	)
	return meta, nil
}

// Load returns the graph and metadata stored under snapshotID. An unknown
// ID yields an error wrapping ErrSnapshotNotFound.
func (m *SnapshotManager) Load(ctx context.Context, snapshotID string) (*ClassGraph, *SnapshotMetadata, error) {
	if ctx == nil {
		return nil, nil, errors.New("load snapshot: nil context")
	}
	if snapshotID == "" {
		return nil, nil, errors.New("load snapshot: empty id")
	}

	project, err := m.readString(indexKey(snapshotID))
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot %s: %w", snapshotID, err)
	}
	return m.read(project, snapshotID)
}

// LoadLatest returns the newest snapshot saved for projectHash.
func (m *SnapshotManager) LoadLatest(ctx context.Context, projectHash string) (*ClassGraph, *SnapshotMetadata, error) {
	if ctx == nil {
		return nil, nil, errors.New("load latest snapshot: nil context")
	}
	if projectHash == "" {
		return nil, nil, errors.New("load latest snapshot: empty project hash")
	}

	id, err := m.readString(latestKey(projectHash))
	if err != nil {
		return nil, nil, fmt.Errorf("latest snapshot of %s: %w", projectHash, err)
	}
	return m.read(projectHash, id)
}

// List returns snapshot metadata newest first.
//
// An empty projectHash lists every analysis root. A limit <= 0 means 100.
// Unreadable metadata entries are logged and skipped.
func (m *SnapshotManager) List(ctx context.Context, projectHash string, limit int) ([]*SnapshotMetadata, error) {
	if ctx == nil {
		return nil, errors.New("list snapshots: nil context")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	scan := []byte(snapNamespace)
	if projectHash != "" {
		scan = []byte(snapNamespace + projectHash + ":")
	}

	out := make([]*SnapshotMetadata, 0)
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = scan
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := string(item.Key())
			if !isMetaKey(key) {
				continue
			}
			meta := new(SnapshotMetadata)
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, meta) }); err != nil {
				m.logger.Warn("skipping unreadable snapshot metadata",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				continue
			}
			out = append(out, meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAtMilli > out[j].CreatedAtMilli })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete removes a snapshot. The latest pointer of its root is cleared
// when it pointed at this snapshot; older snapshots are not promoted.
func (m *SnapshotManager) Delete(ctx context.Context, snapshotID string) error {
	if ctx == nil {
		return errors.New("delete snapshot: nil context")
	}
	if snapshotID == "" {
		return errors.New("delete snapshot: empty id")
	}

	project, err := m.readString(indexKey(snapshotID))
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", snapshotID, err)
	}
	dataKey, metaKey := snapshotKeys(project, snapshotID)

	err = m.db.Update(func(txn *badger.Txn) error {
		for _, k := range [][]byte{[]byte(dataKey), []byte(metaKey), indexKey(snapshotID)} {
			if err := txn.Delete(k); err != nil {
				return fmt.Errorf("delete %s: %w", k, err)
			}
		}

		latest := latestKey(project)
		item, err := txn.Get(latest)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		current, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if string(current) != snapshotID {
			return nil
		}
		return txn.Delete(latest)
	})
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", snapshotID, err)
	}

	m.logger.Info("snapshot deleted", slog.String("snapshot_id", snapshotID))
	return nil
}

// read fetches both halves of a snapshot, verifies the blob against the
// recorded content hash and rebuilds the graph.
func (m *SnapshotManager) read(project, id string) (*ClassGraph, *SnapshotMetadata, error) {
	dataKey, metaKey := snapshotKeys(project, id)

	var blob, metaBytes []byte
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		if blob, err = valueCopy(txn, []byte(dataKey)); err != nil {
			return fmt.Errorf("snapshot %s data: %w", id, err)
		}
		if metaBytes, err = valueCopy(txn, []byte(metaKey)); err != nil {
			return fmt.Errorf("snapshot %s metadata: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	meta := new(SnapshotMetadata)
	if err := json.Unmarshal(metaBytes, meta); err != nil {
		return nil, nil, fmt.Errorf("decoding metadata of snapshot %s: %w", id, err)
	}
	if got := hashBytes(blob); meta.ContentHash != "" && got != meta.ContentHash {
		return nil, nil, fmt.Errorf("snapshot %s is corrupt: content hash %s, recorded %s", id, got, meta.ContentHash)
	}

	flat, err := decodeGraph(blob)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot %s: %w", id, err)
	}
	g, err := FromSerializable(flat)
	if err != nil {
		return nil, nil, fmt.Errorf("rebuilding graph of snapshot %s: %w", id, err)
	}
	return g, meta, nil
}

// readString returns a small string value, mapping a missing key onto
// ErrSnapshotNotFound.
func (m *SnapshotManager) readString(key []byte) (string, error) {
	var v []byte
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		v, err = valueCopy(txn, key)
		return err
	})
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func valueCopy(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func encodeGraph(flat *SerializableGraph) ([]byte, error) {
	raw, err := json.Marshal(flat)
	if err != nil {
		return nil, fmt.Errorf("encoding graph: %w", err)
	}
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("compressing graph: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compressing graph: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeGraph(blob []byte) (*SerializableGraph, error) {
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("decompressing graph: %w", err)
	}
	defer zr.Close()

	flat := new(SerializableGraph)
	if err := json.NewDecoder(io.LimitReader(zr, maxSnapshotBytes)).Decode(flat); err != nil {
		return nil, fmt.Errorf("decoding graph: %w", err)
	}
	return flat, nil
}

// maxSnapshotBytes caps the decompressed size of one snapshot.
const maxSnapshotBytes = 1 << 30

// ProjectHash returns the 16 hex char key prefix for an analysis root.
func ProjectHash(projectRoot string) string {
	return hashString(projectRoot)[:16]
}

func snapshotKeys(projectHash, snapshotID string) (dataKey, metaKey string) {
	base := snapNamespace + projectHash + ":" + snapshotID
	return base + dataSuffix, base + metaSuffix
}

func latestKey(projectHash string) []byte {
	return []byte(snapNamespace + projectHash + latestSuffix)
}

func indexKey(snapshotID string) []byte {
	return []byte(snapIndexNS + snapshotID)
}

func isMetaKey(key string) bool {
	return strings.HasSuffix(key, metaSuffix) && !strings.HasPrefix(key, snapIndexNS)
}

func hashString(s string) string {
	return hashBytes([]byte(s))
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
