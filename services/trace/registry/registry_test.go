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
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/modtrace/services/trace/internal/testfixture"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buildSample(t *testing.T) *Registry {
	t.Helper()
	root := testfixture.WriteTree(t, testfixture.SampleProject())
	reg, err := Build(context.Background(), root, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return reg
}

func TestBuild_RegistersClassesWithPackage(t *testing.T) {
	reg := buildSample(t)

	if reg.Len() != 9 {
		t.Fatalf("Len() = %d, want 9 (fqns: %v)", reg.Len(), reg.FQNs())
	}

	unit, ok := reg.Lookup("order.application.OrderCommand")
	if !ok {
		t.Fatal("order.application.OrderCommand not registered")
	}
	if unit.Module != "order" {
		t.Errorf("Module = %q, want order", unit.Module)
	}
	if unit.Package != "order.application" {
		t.Errorf("Package = %q, want order.application", unit.Package)
	}
	if filepath.Base(unit.FilePath) != "OrderCommand.java" {
		t.Errorf("FilePath = %q", unit.FilePath)
	}
	if unit.SimpleName() != "OrderCommand" {
		t.Errorf("SimpleName() = %q", unit.SimpleName())
	}
}

func TestBuild_SkipsFilesWithoutPackage(t *testing.T) {
	reg := buildSample(t)

	for _, fqn := range reg.FQNs() {
		if SimpleName(fqn) == "NoPackage" {
			t.Errorf("file without package registered as %s", fqn)
		}
	}
	stats := reg.Stats()
	if stats.NoPackage != 1 {
		t.Errorf("NoPackage = %d, want 1", stats.NoPackage)
	}
	if stats.FilesScanned != 10 {
		t.Errorf("FilesScanned = %d, want 10", stats.FilesScanned)
	}
}

func TestBuild_ModuleIsFirstSegment(t *testing.T) {
	reg := buildSample(t)

	for _, u := range reg.Units() {
		rel := reg.RelPath(u.FilePath)
		want := rel[:len(u.Module)]
		if want != u.Module {
			t.Errorf("%s: module %q is not the first segment of %q", u.FQN, u.Module, rel)
		}
	}
}

func TestBuild_Modules(t *testing.T) {
	reg := buildSample(t)

	got := reg.Modules()
	want := []string{"order", "product", "user"}
	if len(got) != len(want) {
		t.Fatalf("Modules() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Modules()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBuild_InvalidRoot(t *testing.T) {
	tests := []struct {
		name string
		root func(t *testing.T) string
	}{
		{"empty", func(t *testing.T) string { return "" }},
		{"missing", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope") }},
		{"file", func(t *testing.T) string {
			p := filepath.Join(t.TempDir(), "file.txt")
			if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
				t.Fatal(err)
			}
			return p
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(context.Background(), tt.root(t), WithLogger(quietLogger()))
			if !errors.Is(err, ErrInvalidRoot) {
				t.Errorf("err = %v, want ErrInvalidRoot", err)
			}
		})
	}
}

func TestBuild_IgnoresConfiguredDirs(t *testing.T) {
	root := testfixture.WriteTree(t, map[string]string{
		"order/a/A.java":             "package order.a;\nclass A {}\n",
		"order/target/gen/Gen.java":  "package order.gen;\nclass Gen {}\n",
		"order/.git/objects/X.java":  "package x;\nclass X {}\n",
		"order/custom/skip/Y.java":   "package order.skip;\nclass Y {}\n",
	})

	reg, err := Build(context.Background(), root,
		WithLogger(quietLogger()),
		WithIgnoreDirs([]string{"target", ".git", "skip"}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if reg.Len() != 1 || !reg.Contains("order.a.A") {
		t.Errorf("FQNs() = %v, want [order.a.A]", reg.FQNs())
	}
}

func TestBuild_Extension(t *testing.T) {
	root := testfixture.WriteTree(t, map[string]string{
		"billing/Invoice.kt":   "package billing\n\nclass Invoice\n",
		"billing/Ignored.java": "package billing;\nclass Ignored {}\n",
	})

	reg, err := Build(context.Background(), root, WithLogger(quietLogger()), WithExtension("kt"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !reg.Contains("billing.Invoice") {
		t.Errorf("billing.Invoice missing, got %v", reg.FQNs())
	}
	if reg.Contains("billing.Ignored") {
		t.Error(".java file registered with .kt extension")
	}
}

func TestBuild_CollisionLastWriteWins(t *testing.T) {
	root := testfixture.WriteTree(t, map[string]string{
		"a/Dup.java": "package shared;\nclass Dup {}\n",
		"b/Dup.java": "package shared;\nclass Dup {}\n",
	})

	reg, err := Build(context.Background(), root, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", reg.Len())
	}
	if reg.Stats().Collisions != 1 {
		t.Errorf("Collisions = %d, want 1", reg.Stats().Collisions)
	}
	unit, _ := reg.Lookup("shared.Dup")
	if unit.Module != "b" {
		t.Errorf("Module = %q, want b (walk order is lexical)", unit.Module)
	}
}

func TestBuild_Cancelled(t *testing.T) {
	root := testfixture.WriteTree(t, testfixture.SampleProject())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Build(ctx, root, WithLogger(quietLogger()))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRegistry_Text(t *testing.T) {
	reg := buildSample(t)

	text, err := reg.Text("order.infra.OrderRepository")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if ExtractPackage(text) != "order.infra" {
		t.Errorf("unexpected text: %q", text)
	}

	_, err = reg.Text("does.not.Exist")
	if !errors.Is(err, ErrClassNotFound) {
		t.Errorf("err = %v, want ErrClassNotFound", err)
	}
}

func TestRegistry_TextAfterFileRemoved(t *testing.T) {
	root := testfixture.WriteTree(t, map[string]string{
		"m/A.java": "package m;\nclass A {}\n",
	})
	reg, err := Build(context.Background(), root, WithLogger(quietLogger()), WithCacheSize(1))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Evict A by filling the single-slot cache with another path.
	reg.source.Put(filepath.Join(root, "other"), "x")
	if err := os.Remove(filepath.Join(root, "m", "A.java")); err != nil {
		t.Fatal(err)
	}

	_, err = reg.Text("m.A")
	var readErr *ReadError
	if !errors.As(err, &readErr) {
		t.Fatalf("err = %v, want *ReadError", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want to wrap os.ErrNotExist", err)
	}
}

func TestExtractPackage(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"simple", "package a.b.c;\n", "a.b.c"},
		{"leading whitespace", "\n\n   package  a.b ;\nclass X {}", "a.b"},
		{"after comment", "// header\n/* x */\npackage x.y;\n", "x.y"},
		{"first wins", "package first;\npackage second;\n", "first"},
		{"no terminator", "package kotlin.style\n", "kotlin.style"},
		{"commented out", "// package nope;\nclass X {}\n", ""},
		{"none", "class X {}\n", ""},
		{"packages word not keyword", "packageX y;\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractPackage(tt.text); got != tt.want {
				t.Errorf("ExtractPackage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestModuleOf(t *testing.T) {
	root := filepath.FromSlash("/src/modules")
	tests := []struct {
		path string
		want string
	}{
		{"/src/modules/order/application/OrderCommand.java", "order"},
		{"/src/modules/product", "product"},
		{"/src/modules/Root.java", "Root.java"},
		{"/src/modules", UnknownModule},
		{"/elsewhere/x/Y.java", UnknownModule},
	}

	for _, tt := range tests {
		if got := ModuleOf(root, filepath.FromSlash(tt.path)); got != tt.want {
			t.Errorf("ModuleOf(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestNameHelpers(t *testing.T) {
	if got := SimpleName("a.b.C"); got != "C" {
		t.Errorf("SimpleName = %q", got)
	}
	if got := SimpleName("C"); got != "C" {
		t.Errorf("SimpleName(no dot) = %q", got)
	}
	if got := PackageOf("a.b.C"); got != "a.b" {
		t.Errorf("PackageOf = %q", got)
	}
	if got := PackageOf("C"); got != "" {
		t.Errorf("PackageOf(no dot) = %q", got)
	}
}
