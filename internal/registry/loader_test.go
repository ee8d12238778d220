package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ipnis/internal/storage"
	"ipnis/pkg/types"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestScan_FiltersONNX(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"resnet.onnx":   "a",
		"BERT.ONNX":     "b",
		"notes.txt":     "c",
		"weights.bin":   "d",
		"model.onnx.gz": "e",
	})
	if err := os.Mkdir(filepath.Join(dir, "sub.onnx"), 0o755); err != nil {
		t.Fatal(err)
	}

	entries, err := NewONNXScanner().Scan(dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "BERT" || entries[1].Name != "resnet" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if !filepath.IsAbs(entries[1].File) {
		t.Fatalf("file path not absolute: %s", entries[1].File)
	}
}

func TestScan_ExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	if err := os.Mkdir(filepath.Join(home, "models"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFiles(t, filepath.Join(home, "models"), map[string]string{"x.onnx": "x"})

	entries, err := LoadDir("~/models")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "x" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestScan_MissingDir(t *testing.T) {
	if _, err := LoadDir(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error")
	}
}

func TestImport(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.onnx": "model-a", "b.onnx": "model-b"})
	entries, err := LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewLocal(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}

	got, err := Import(context.Background(), store, entries)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(got) != 2 || got[0].Path != storage.HashBytes([]byte("model-a")) {
		t.Fatalf("unexpected import %+v", got)
	}
	raw, err := store.GetRaw(context.Background(), got[1].Path)
	if err != nil || string(raw) != "model-b" {
		t.Fatalf("stored blob %q err=%v", raw, err)
	}
	if ps := Paths(got); len(ps) != 2 || ps[1] != got[1].Path {
		t.Fatalf("paths %v", ps)
	}
}

type failingStore struct{}

var errDiskFull = errors.New("disk full")

func (failingStore) Put(context.Context, string) (types.Path, error) { return types.Path{}, errDiskFull }

func TestImport_StopsOnError(t *testing.T) {
	_, err := Import(context.Background(), failingStore{}, []Entry{{Name: "a", File: "/nope"}})
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
