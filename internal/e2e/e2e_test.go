package e2e

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"ipnis/internal/client"
	"ipnis/internal/manager"
	"ipnis/internal/registry"
	"ipnis/internal/signing"
	"ipnis/internal/storage"
	"ipnis/pkg/tensor"
)

func TestE2E_ImportWarmLoadCall(t *testing.T) {
	dir := createModelsDir(t, "double", "copy")
	s := newStack(t, dir, manager.ManagerConfig{})
	if len(s.models) != 2 || s.models[0].Path != s.models[1].Path {
		t.Fatalf("identical files should share a content path: %+v", s.models)
	}

	ctx := context.Background()
	if err := s.mgr.Warm(ctx, registry.Paths(s.models)); err != nil {
		t.Fatalf("warm: %v", err)
	}
	c := s.client(t, nil)

	model, err := c.LoadModel(ctx, pathOf(s, "double"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(model.Inputs) != 1 || model.Inputs[0].Name != "x" || model.Inputs[0].Type != tensor.Float32 {
		t.Fatalf("unexpected inputs %+v", model.Inputs)
	}
	if len(model.Outputs) != 1 || model.Outputs[0].Name != "y" {
		t.Fatalf("unexpected outputs %+v", model.Outputs)
	}

	out, err := c.Call(ctx, model, []tensor.Tensor{row(1, 2, 3, 4)})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if len(out) != 1 || out[0].Name != "y" {
		t.Fatalf("unexpected outputs %+v", out)
	}
	got := tensor.RawF32(out[0].Data).Data()
	for i, want := range []float32{2, 4, 6, 8} {
		if got[i] != want {
			t.Fatalf("y = %v", got)
		}
	}

	st, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != string(manager.StateReady) || len(st.Sessions) != 1 || st.CompilesTotal != 1 || st.CallsTotal != 1 {
		t.Fatalf("unexpected status %+v", st)
	}
	if s.eng.Compiles() != 1 {
		t.Fatalf("expected one compile, got %d", s.eng.Compiles())
	}
}

func TestE2E_ShapeMismatchIsBadRequest(t *testing.T) {
	s := newStack(t, createModelsDir(t, "double"), manager.ManagerConfig{})
	ctx := context.Background()
	c := s.client(t, nil)
	model, err := c.LoadModel(ctx, pathOf(s, "double"))
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.Call(ctx, model, []tensor.Tensor{row(1, 2, 3)})
	var se *client.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
	if runs := s.eng.Sessions()[0].Runs(); runs != 0 {
		t.Fatalf("engine ran %d times on a rejected input", runs)
	}
}

func TestE2E_UnknownModelIs404(t *testing.T) {
	s := newStack(t, createModelsDir(t), manager.ManagerConfig{})
	_, err := s.client(t, nil).LoadModel(context.Background(), storage.HashBytes([]byte("never stored")))
	var se *client.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestE2E_AllowList(t *testing.T) {
	friend, err := signing.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	s := newStack(t, createModelsDir(t, "double"), manager.ManagerConfig{}, friend.Account())
	ctx := context.Background()

	if _, err := s.client(t, friend).LoadModel(ctx, pathOf(s, "double")); err != nil {
		t.Fatalf("allowed account rejected: %v", err)
	}
	_, err = s.client(t, nil).LoadModel(ctx, pathOf(s, "double"))
	var se *client.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

// TestE2E_Backpressure429 fills the single run slot and the single queue
// slot, so a third call is turned away with 429.
func TestE2E_Backpressure429(t *testing.T) {
	s := newStack(t, createModelsDir(t, "double"), manager.ManagerConfig{
		MaxInflight:   1,
		MaxQueueDepth: 1,
		MaxWait:       20 * time.Millisecond,
	})
	gate := make(chan struct{})
	s.eng.Run = func(ctx context.Context, in []tensor.Tensor) ([]*tensor.Array[float32], error) {
		<-gate
		return doubling(ctx, in)
	}

	ctx := context.Background()
	c := s.client(t, nil)
	model, err := c.LoadModel(ctx, pathOf(s, "double"))
	if err != nil {
		t.Fatal(err)
	}

	results := make(chan error, 2)
	call := func() {
		_, err := c.Call(ctx, model, []tensor.Tensor{row(1, 2, 3, 4)})
		results <- err
	}
	go call()
	waitFor(t, "first call to run", func() bool { return s.mgr.Status().Inflight == 1 })
	go call()
	waitFor(t, "second call to queue", func() bool { return s.mgr.Status().QueueLen == 1 })

	_, err = c.Call(ctx, model, []tensor.Tensor{row(1, 2, 3, 4)})
	if !client.IsTooBusy(err) {
		t.Fatalf("expected too busy, got %v", err)
	}

	close(gate)
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			t.Fatalf("admitted call failed: %v", err)
		}
	}
}
