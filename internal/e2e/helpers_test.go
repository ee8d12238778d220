package e2e

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ipnis/internal/cache"
	"ipnis/internal/client"
	"ipnis/internal/engine"
	"ipnis/internal/engine/enginetest"
	"ipnis/internal/httpapi"
	"ipnis/internal/manager"
	"ipnis/internal/registry"
	"ipnis/internal/signing"
	"ipnis/internal/storage"
	"ipnis/pkg/tensor"
	"ipnis/pkg/types"
)

// createModelsDir writes one identity model per name into a temp dir.
func createModelsDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		model := enginetest.Identity(
			enginetest.Value{Name: "x", Elem: enginetest.Float, Dims: []int64{1, 4}},
			enginetest.Value{Name: "y", Elem: enginetest.Float, Dims: []int64{1, 4}},
		)
		if err := os.WriteFile(filepath.Join(dir, n+".onnx"), model, 0o644); err != nil {
			t.Fatalf("write temp model %s: %v", n, err)
		}
	}
	return dir
}

// doubling runs every model as y = 2x.
func doubling(_ context.Context, in []tensor.Tensor) ([]*tensor.Array[float32], error) {
	src := tensor.RawF32(in[0].Data)
	out := make([]float32, src.Len())
	for i, v := range src.Data() {
		out[i] = 2 * v
	}
	return []*tensor.Array[float32]{tensor.MustArray(src.Shape(), out)}, nil
}

type stack struct {
	srv    *httptest.Server
	mgr    *manager.Manager
	store  *storage.Local
	eng    *enginetest.Engine
	server *signing.KeySigner
	models []registry.Imported
}

// newStack imports every model in modelsDir and serves them over HTTP.
// allowed restricts which accounts may call the server.
func newStack(t *testing.T, modelsDir string, cfg manager.ManagerConfig, allowed ...string) *stack {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	entries, err := registry.LoadDir(modelsDir)
	if err != nil {
		t.Fatalf("scan models: %v", err)
	}
	imported, err := registry.Import(context.Background(), store, entries)
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	eng := &enginetest.Engine{Run: doubling}
	sessions, err := cache.New(cache.Config{Engine: eng, Store: store, Options: engine.DefaultOptions()})
	if err != nil {
		t.Fatal(err)
	}
	cfg.Sessions = sessions
	mgr := manager.NewWithConfig(cfg)
	t.Cleanup(func() { mgr.Close() })

	key, err := signing.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	server := signing.NewSigner(key, allowed)
	srv := httptest.NewServer(httpapi.NewMux(mgr, server))
	t.Cleanup(srv.Close)
	return &stack{srv: srv, mgr: mgr, store: store, eng: eng, server: server, models: imported}
}

func (s *stack) client(t *testing.T, key *signing.Key) *client.Client {
	t.Helper()
	if key == nil {
		var err error
		if key, err = signing.GenerateKey(); err != nil {
			t.Fatal(err)
		}
	}
	return client.New(s.srv.URL, signing.NewSigner(key, nil),
		client.WithServerAccount(s.server.Account()),
		client.WithTimeout(10*time.Second),
	)
}

func row(vals ...float32) tensor.Tensor {
	return tensor.Tensor{Name: "x", Data: tensor.NewDynamicF32(tensor.MustArray([]int{1, len(vals)}, vals))}
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func pathOf(s *stack, name string) types.Path {
	for _, m := range s.models {
		if m.Name == name {
			return m.Path
		}
	}
	return types.Path{}
}
