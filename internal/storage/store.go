// Package storage fetches content-addressed model blobs into a local
// directory, downloading them from a remote blob store on first use.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"
	"k8s.io/klog/v2"

	"ipnis/pkg/types"
)

// Store resolves content paths to model bytes.
type Store interface {
	// GetRaw returns the blob contents.
	GetRaw(ctx context.Context, p types.Path) ([]byte, error)
	// DownloadOnLocal returns the path of a local copy of the blob.
	DownloadOnLocal(ctx context.Context, p types.Path) (string, error)
	// DownloadOnLocalTar treats the blob as a tar archive and returns the
	// directory it was unpacked into.
	DownloadOnLocalTar(ctx context.Context, p types.Path) (string, error)
}

// BlobReader downloads blobs by hash.
type BlobReader interface {
	// If no such object exists, Download should return an error for which errors.Is(err, os.ErrNotExist) is true.
	Download(ctx context.Context, p types.Path, destPath string) error
}

// Blobstore is a BlobReader that also accepts uploads.
type Blobstore interface {
	BlobReader
	// Upload stores the file at sourcePath under p.Hash. Uploading an
	// existing object is a no-op.
	Upload(ctx context.Context, sourcePath string, p types.Path) error
}

// ErrIntegrity reports a downloaded blob whose hash or length does not match
// its content path.
var ErrIntegrity = errors.New("blob integrity check failed")

// Local keeps blobs under Dir/blobs/<hash> and unpacked archives under
// Dir/unpacked/<hash>. Missing blobs are fetched from Remote when set.
type Local struct {
	Dir    string
	Remote BlobReader

	group singleflight.Group
}

var _ Store = (*Local)(nil)

// NewLocal creates the directory layout under dir.
func NewLocal(dir string, remote BlobReader) (*Local, error) {
	for _, sub := range []string{"blobs", "unpacked"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	return &Local{Dir: dir, Remote: remote}, nil
}

func (l *Local) blobPath(p types.Path) string { return filepath.Join(l.Dir, "blobs", p.Hash) }

func (l *Local) unpackedPath(p types.Path) string { return filepath.Join(l.Dir, "unpacked", p.Hash) }

func (l *Local) GetRaw(ctx context.Context, p types.Path) ([]byte, error) {
	path, err := l.DownloadOnLocal(ctx, p)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (l *Local) DownloadOnLocal(ctx context.Context, p types.Path) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	dest := l.blobPath(p)
	if present(dest, p.Len) {
		return dest, nil
	}
	if l.Remote == nil {
		return "", fmt.Errorf("blob %s: %w", p, os.ErrNotExist)
	}

	_, err, _ := l.group.Do("blob:"+p.Hash, func() (any, error) {
		if present(dest, p.Len) {
			return nil, nil
		}
		return nil, l.fetch(context.WithoutCancel(ctx), p, dest)
	})
	if err != nil {
		return "", err
	}
	return dest, nil
}

func (l *Local) fetch(ctx context.Context, p types.Path, dest string) error {
	log := klog.FromContext(ctx)

	staging := filepath.Join(filepath.Dir(dest), "."+p.Hash+".staging")
	defer os.Remove(staging)

	startedAt := time.Now()
	if err := l.Remote.Download(ctx, p, staging); err != nil {
		return fmt.Errorf("downloading blob %s: %w", p, err)
	}
	got, err := HashFile(staging)
	if err != nil {
		return err
	}
	if got != p {
		log.Info("discarding corrupt blob", "want", p.String(), "got", got.String())
		return fmt.Errorf("blob %s: %w (got %s)", p, ErrIntegrity, got)
	}
	if err := os.Rename(staging, dest); err != nil {
		return fmt.Errorf("renaming blob: %w", err)
	}
	log.Info("fetched blob", "path", p.String(), "duration", time.Since(startedAt))
	return nil
}

func (l *Local) DownloadOnLocalTar(ctx context.Context, p types.Path) (string, error) {
	dir := l.unpackedPath(p)
	if isDir(dir) {
		return dir, nil
	}
	blob, err := l.DownloadOnLocal(ctx, p)
	if err != nil {
		return "", err
	}
	_, err, _ = l.group.Do("tar:"+p.Hash, func() (any, error) {
		if isDir(dir) {
			return nil, nil
		}
		return nil, unpack(context.WithoutCancel(ctx), blob, dir)
	})
	if err != nil {
		return "", err
	}
	return dir, nil
}

// Put imports a local file into the store and, when the remote accepts
// uploads, publishes it there too.
func (l *Local) Put(ctx context.Context, sourcePath string) (types.Path, error) {
	p, err := HashFile(sourcePath)
	if err != nil {
		return types.Path{}, err
	}
	dest := l.blobPath(p)
	if !present(dest, p.Len) {
		src, err := os.Open(sourcePath)
		if err != nil {
			return types.Path{}, fmt.Errorf("opening source file: %w", err)
		}
		_, err = writeToFile(ctx, src, dest)
		src.Close()
		if err != nil {
			return types.Path{}, err
		}
	}
	if up, ok := l.Remote.(Blobstore); ok {
		if err := up.Upload(ctx, dest, p); err != nil {
			return types.Path{}, err
		}
	}
	return p, nil
}

func present(path string, size uint64) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular() && uint64(st.Size()) == size
}

func isDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}
