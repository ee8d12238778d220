package storage

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"ipnis/pkg/types"
)

// memRemote serves blobs from memory and counts downloads.
type memRemote struct {
	blobs     map[string][]byte
	downloads atomic.Int64
	gate      chan struct{}
}

func (m *memRemote) Download(ctx context.Context, p types.Path, dest string) error {
	m.downloads.Add(1)
	if m.gate != nil {
		<-m.gate
	}
	b, ok := m.blobs[p.Hash]
	if !ok {
		return os.ErrNotExist
	}
	return os.WriteFile(dest, b, 0o644)
}

func newStore(t *testing.T, remote BlobReader) *Local {
	t.Helper()
	l, err := NewLocal(t.TempDir(), remote)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return l
}

func TestPutThenGetRaw(t *testing.T) {
	l := newStore(t, nil)
	src := filepath.Join(t.TempDir(), "m.onnx")
	if err := os.WriteFile(src, []byte("model-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := l.Put(context.Background(), src)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if p != HashBytes([]byte("model-bytes")) {
		t.Fatalf("unexpected path %s", p)
	}
	got, err := l.GetRaw(context.Background(), p)
	if err != nil {
		t.Fatalf("GetRaw: %v", err)
	}
	if string(got) != "model-bytes" {
		t.Fatalf("got %q", got)
	}
}

func TestMissingWithoutRemote(t *testing.T) {
	l := newStore(t, nil)
	_, err := l.GetRaw(context.Background(), HashBytes([]byte("nope")))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}

func TestConcurrentFetchDownloadsOnce(t *testing.T) {
	blob := []byte("shared-model")
	p := HashBytes(blob)
	remote := &memRemote{blobs: map[string][]byte{p.Hash: blob}, gate: make(chan struct{})}
	l := newStore(t, remote)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := l.GetRaw(context.Background(), p)
			if err == nil && !bytes.Equal(b, blob) {
				err = errors.New("content mismatch")
			}
			errs <- err
		}()
	}
	for remote.downloads.Load() == 0 {
		runtime.Gosched()
	}
	close(remote.gate)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("GetRaw: %v", err)
		}
	}
	if got := remote.downloads.Load(); got != 1 {
		t.Fatalf("expected 1 download, got %d", got)
	}
}

func TestCorruptBlobIsRejected(t *testing.T) {
	p := HashBytes([]byte("expected"))
	remote := &memRemote{blobs: map[string][]byte{p.Hash: []byte("tampered")}}
	l := newStore(t, remote)

	_, err := l.DownloadOnLocal(context.Background(), p)
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
	if _, err := os.Stat(l.blobPath(p)); !os.IsNotExist(err) {
		t.Fatalf("corrupt blob left on disk: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(l.Dir, "blobs"))
	if len(entries) != 0 {
		t.Fatalf("staging files left behind: %v", entries)
	}
}

func TestInvalidPath(t *testing.T) {
	l := newStore(t, nil)
	if _, err := l.DownloadOnLocal(context.Background(), types.Path{Hash: "../../etc/passwd", Len: 1}); err == nil {
		t.Fatal("expected error for malformed hash")
	}
}

func tarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, body := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDownloadOnLocalTar(t *testing.T) {
	archive := tarball(t, map[string]string{"model.onnx": "graph", "weights/w0.bin": "w"})
	p := HashBytes(archive)
	l := newStore(t, &memRemote{blobs: map[string][]byte{p.Hash: archive}})

	dir, err := l.DownloadOnLocalTar(context.Background(), p)
	if err != nil {
		t.Fatalf("DownloadOnLocalTar: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "model.onnx"))
	if err != nil || string(b) != "graph" {
		t.Fatalf("model.onnx: %q %v", b, err)
	}
	again, err := l.DownloadOnLocalTar(context.Background(), p)
	if err != nil || again != dir {
		t.Fatalf("second unpack: %q %v", again, err)
	}
}

func TestTarTraversalRejected(t *testing.T) {
	archive := tarball(t, map[string]string{"../evil": "x"})
	p := HashBytes(archive)
	l := newStore(t, &memRemote{blobs: map[string][]byte{p.Hash: archive}})

	if _, err := l.DownloadOnLocalTar(context.Background(), p); !errors.Is(err, errUnsafeEntry) {
		t.Fatalf("expected unsafe entry error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(l.Dir, "evil")); !os.IsNotExist(err) {
		t.Fatal("archive escaped its directory")
	}
}

func TestHTTPReader(t *testing.T) {
	blob := []byte("served")
	p := HashBytes(blob)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/blobs/"+p.Hash {
			w.Write(blob)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	reader, err := NewHTTPReader(srv.URL + "/blobs")
	if err != nil {
		t.Fatal(err)
	}
	l := newStore(t, reader)

	got, err := l.GetRaw(context.Background(), p)
	if err != nil || !bytes.Equal(got, blob) {
		t.Fatalf("GetRaw: %q %v", got, err)
	}
	_, err = l.GetRaw(context.Background(), HashBytes([]byte("absent")))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}
