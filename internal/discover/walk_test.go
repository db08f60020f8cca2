package discover

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/greysquirr3l/codeguardian-go/internal/logging"
)

func quietLogger() *logging.Logger {
	l := logging.New(logging.LevelCritical)
	l.SetOutput(&bytes.Buffer{})
	l.SetErrorOutput(&bytes.Buffer{})
	return l
}

// makeTree creates files (relative, slash-separated) under a temp dir.
func makeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func relPaths(t *testing.T, root string, files []string) []string {
	t.Helper()
	out := make([]string, len(files))
	for i, f := range files {
		rel, err := filepath.Rel(root, f)
		if err != nil {
			t.Fatal(err)
		}
		out[i] = filepath.ToSlash(rel)
	}
	return out
}

func TestWalkDefaults(t *testing.T) {
	root := makeTree(t, map[string]string{
		"main.go":               "package main",
		"pkg/util.go":           "package pkg",
		"pkg/logo.png":          "png",
		"node_modules/lib/a.js": "x",
		".git/config":           "x",
		"web/.env":              "SECRET=1",
		"web/app.ts":            "let a = 1",
		"vendor/dep/dep.go":     "package dep",
		"docs/guide.md":         "# guide",
	})

	w := NewWalker(WithLogger(quietLogger()))
	files, stats, err := w.Walk(context.Background(), []string{root})
	if err != nil {
		t.Fatal(err)
	}

	got := relPaths(t, root, files)
	want := []string{"main.go", "pkg/util.go", "web/app.ts"}
	if len(got) != len(want) {
		t.Fatalf("Walk = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("file %d = %s, want %s", i, got[i], want[i])
		}
	}
	if stats.Filtered != 2 {
		t.Errorf("expected logo.png and guide.md to be filtered, stats %+v", stats)
	}
	if stats.Skipped != 1 {
		t.Errorf("expected .env to be skipped as hidden, stats %+v", stats)
	}
}

func TestWalkIncludeHidden(t *testing.T) {
	root := makeTree(t, map[string]string{
		".config/app.yaml": "a: 1",
		"web/.env":         "SECRET=1",
	})

	w := NewWalker(WithLogger(quietLogger()), WithIncludeHidden(true))
	files, _, err := w.Walk(context.Background(), []string{root})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Errorf("expected hidden files to be included, got %v", relPaths(t, root, files))
	}
}

func TestWalkDeduplicatesAndAcceptsFiles(t *testing.T) {
	root := makeTree(t, map[string]string{
		"a.go": "package a",
		"b.go": "package b",
	})
	direct := filepath.Join(root, "a.go")

	w := NewWalker(WithLogger(quietLogger()))
	files, _, err := w.Walk(context.Background(), []string{direct, root, direct})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Errorf("expected 2 unique files, got %v", files)
	}
	for _, f := range files {
		if !filepath.IsAbs(f) {
			t.Errorf("expected absolute paths, got %s", f)
		}
	}
}

func TestWalkMissingPath(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")

	w := NewWalker(WithLogger(quietLogger()))
	files, stats, err := w.Walk(context.Background(), []string{missing})
	if err != nil {
		t.Fatalf("missing paths are tolerated by default: %v", err)
	}
	if len(files) != 0 || stats.Errors != 1 {
		t.Errorf("files=%v stats=%+v", files, stats)
	}

	strict := NewWalker(WithLogger(quietLogger()), WithAllowIOErrors(false))
	if _, _, err := strict.Walk(context.Background(), []string{missing}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestWalkMaxFileSize(t *testing.T) {
	root := makeTree(t, map[string]string{
		"small.go": "package s",
		"large.go": string(make([]byte, 4096)),
	})

	w := NewWalker(WithLogger(quietLogger()), WithMaxFileSize(1024))
	files, stats, err := w.Walk(context.Background(), []string{root})
	if err != nil {
		t.Fatal(err)
	}
	if got := relPaths(t, root, files); len(got) != 1 || got[0] != "small.go" {
		t.Errorf("expected only small.go, got %v", got)
	}
	if stats.Skipped != 1 {
		t.Errorf("expected one skipped file, stats %+v", stats)
	}
}

func TestWalkSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := makeTree(t, map[string]string{"real/a.go": "package a"})
	outside := makeTree(t, map[string]string{"b.go": "package b"})
	if err := os.Symlink(filepath.Join(outside, "b.go"), filepath.Join(root, "link.go")); err != nil {
		t.Fatal(err)
	}

	w := NewWalker(WithLogger(quietLogger()))
	files, _, err := w.Walk(context.Background(), []string{root})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Errorf("symlinks are not followed by default, got %v", files)
	}

	follow := NewWalker(WithLogger(quietLogger()), WithFollowSymlinks(true))
	files, _, err = follow.Walk(context.Background(), []string{root})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Errorf("expected the link target to be included, got %v", files)
	}
}

func TestWalkCancelled(t *testing.T) {
	root := makeTree(t, map[string]string{"a.go": "package a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewWalker(WithLogger(quietLogger()))
	if _, _, err := w.Walk(ctx, []string{root}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
