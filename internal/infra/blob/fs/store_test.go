package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"simpidemic/internal/blob/core"
)

func TestCleanKeyRejectsEscapes(t *testing.T) {
	for _, key := range []string{"", "  ", "/abs", "../up", "a/../../b", "x.meta"} {
		if _, err := cleanKey(key); !errors.Is(err, core.ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
	if k, err := cleanKey("reports/./a.csv"); err != nil || k != "reports/a.csv" {
		t.Fatalf("expected cleaned key, got %q %v", k, err)
	}
	if _, err := cleanKey("reports/a..b.csv"); err != nil {
		t.Fatalf("dots inside a name are allowed: %v", err)
	}
}

func TestPutWritesSidecarAndListSkipsOrphans(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := s.Put(ctx, "reports/s1/a.json", strings.NewReader("{}"), core.PutOptions{ContentType: "application/json"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "reports", "s1", "a.json.meta")); err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "reports", "s1", "stray.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	list, err := s.List(ctx, "reports/")
	if err != nil || len(list) != 1 {
		t.Fatalf("expected only the sidecar-backed object, got %+v %v", list, err)
	}
	entries, _ := os.ReadDir(filepath.Join(root, "reports", "s1"))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".put-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestCorruptSidecar(t *testing.T) {
	root := t.TempDir()
	s, _ := New(root)
	ctx := context.Background()
	if _, err := s.Put(ctx, "k", strings.NewReader("v"), core.PutOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "k.meta"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Head(ctx, "k"); err == nil || errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if _, err := s.List(ctx, ""); err == nil {
		t.Fatalf("list should surface corrupt sidecars")
	}
}

func TestDefaultRoot(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	s, err := New("")
	if err != nil {
		t.Fatal(err)
	}
	if s.Root() != defaultRoot {
		t.Fatalf("expected default root, got %s", s.Root())
	}
	if _, err := os.Stat(defaultRoot); err != nil {
		t.Fatalf("default root not created: %v", err)
	}
}
