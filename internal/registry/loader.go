// Package registry turns a directory of ONNX files into content-addressed
// models.
package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ipnis/internal/common/fsutil"
	"ipnis/pkg/types"
)

// Entry is a model file found on disk.
type Entry struct {
	// Name is the file name without the .onnx extension.
	Name string
	File string
}

// Scanner lists model files in a directory.
type Scanner interface {
	Scan(dir string) ([]Entry, error)
}

type onnxScanner struct{}

// NewONNXScanner returns a Scanner matching *.onnx, case-insensitively.
func NewONNXScanner() Scanner { return onnxScanner{} }

func (onnxScanner) Scan(dir string) ([]Entry, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var out []Entry
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		if !strings.EqualFold(ext, ".onnx") {
			continue
		}
		out = append(out, Entry{Name: strings.TrimSuffix(name, ext), File: filepath.Join(abs, name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// LoadDir scans dir with the ONNX scanner.
func LoadDir(dir string) ([]Entry, error) { return NewONNXScanner().Scan(dir) }

// Importer copies a local file into content storage. *storage.Local
// implements it.
type Importer interface {
	Put(ctx context.Context, sourcePath string) (types.Path, error)
}

// Imported pairs a scanned entry with its content path.
type Imported struct {
	Entry
	Path types.Path
}

// Import copies every entry into store, in order, stopping at the first
// failure.
func Import(ctx context.Context, store Importer, entries []Entry) ([]Imported, error) {
	out := make([]Imported, 0, len(entries))
	for _, e := range entries {
		p, err := store.Put(ctx, e.File)
		if err != nil {
			return out, fmt.Errorf("import %s: %w", e.Name, err)
		}
		out = append(out, Imported{Entry: e, Path: p})
	}
	return out, nil
}

// Paths returns the content paths of imported models.
func Paths(models []Imported) []types.Path {
	out := make([]types.Path, len(models))
	for i, m := range models {
		out[i] = m.Path
	}
	return out
}
