package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ipnis/internal/httpapi"
	"ipnis/internal/signing"
	"ipnis/internal/storage"
	"ipnis/pkg/tensor"
	"ipnis/pkg/types"
)

// classifier accepts one image input and returns fixed logits.
type classifier struct {
	got []tensor.Tensor
}

func (c *classifier) LoadModel(_ context.Context, p types.Path) (types.Model, error) {
	return types.Model{
		Path: p,
		Inputs: []tensor.Shape{{
			Name: "data", Type: tensor.Uint8,
			Dims: tensor.ImageDims{Channels: tensor.Rgb8, Width: 4, Height: 4},
		}},
		Outputs: []tensor.Shape{{Name: "probs", Type: tensor.Float32, Dims: tensor.ClassDims{NumClasses: 3}}},
	}, nil
}

func (c *classifier) CallTensors(_ context.Context, _ types.Model, in []tensor.Tensor) ([]tensor.Tensor, error) {
	c.got = in
	cls, err := tensor.NewClassF32(tensor.MustArray([]int{1, 3}, []float32{0, 5, 1}))
	if err != nil {
		return nil, err
	}
	return []tensor.Tensor{{Name: "probs", Data: cls}}, nil
}

func (c *classifier) Status() types.StatusResponse { return types.StatusResponse{State: "ready"} }
func (c *classifier) Ready() bool                  { return true }

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 10, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestKeygen(t *testing.T) {
	key := filepath.Join(t.TempDir(), "k.hex")
	out, err := run(t, "keygen", "--key-file", key)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	loaded, err := signing.LoadKey(key)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != loaded.Account() {
		t.Fatalf("printed %q, saved key is %s", out, loaded.Account())
	}
	if _, err := run(t, "keygen", "--key-file", key); err == nil {
		t.Fatal("expected refusal to overwrite")
	}
	if _, err := run(t, "keygen", "--key-file", key, "--force"); err != nil {
		t.Fatalf("forced keygen: %v", err)
	}
}

func TestHashAndPut(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "m.onnx")
	if err := os.WriteFile(model, []byte("onnx bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	want := storage.HashBytes([]byte("onnx bytes")).String()

	out, err := run(t, "hash", model)
	if err != nil || strings.TrimSpace(out) != want {
		t.Fatalf("hash = %q err=%v, want %s", out, err, want)
	}

	store := filepath.Join(dir, "store")
	out, err = run(t, "put", "--storage-dir", store, model)
	if err != nil || strings.TrimSpace(out) != want {
		t.Fatalf("put = %q err=%v", out, err)
	}
	p, _ := types.ParsePath(want)
	local, err := storage.NewLocal(store, nil)
	if err != nil {
		t.Fatal(err)
	}
	if b, err := local.GetRaw(context.Background(), p); err != nil || string(b) != "onnx bytes" {
		t.Fatalf("stored %q err=%v", b, err)
	}
}

func TestCall_ImageTopK(t *testing.T) {
	k, err := signing.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	svc := &classifier{}
	ts := httptest.NewServer(httpapi.NewMux(svc, signing.NewSigner(k, nil)))
	defer ts.Close()

	dir := t.TempDir()
	img := filepath.Join(dir, "cat.png")
	writePNG(t, img)
	path := storage.HashBytes([]byte("model")).String()

	out, err := run(t, "--url", ts.URL, "--key-file", filepath.Join(dir, "client.key"), "--server", k.Account(),
		"call", path, "data="+img, "--top", "2")
	if err != nil {
		t.Fatalf("call: %v\n%s", err, out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 || lines[0] != "probs:" || !strings.HasPrefix(strings.TrimSpace(lines[1]), "1 ") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if len(svc.got) != 1 || svc.got[0].Name != "data" {
		t.Fatalf("service got %+v", svc.got)
	}
	if shape := svc.got[0].Data.ArrayShape(); len(shape) != 4 || shape[2] != 4 || shape[3] != 4 {
		t.Fatalf("image not resized to model shape: %v", shape)
	}
}

func TestReadInputs(t *testing.T) {
	model := types.Model{Inputs: []tensor.Shape{{Name: "x", Type: tensor.Float32, Dims: tensor.UnknownDims{tensor.Any, 2}}}}
	dir := t.TempDir()
	file := filepath.Join(dir, "x.json")
	body := `{"name":"ignored","data":{"dynamic":{"f32":{"shape":[1,2],"data":[1,2]}}}}`
	if err := os.WriteFile(file, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := readInputs(model, []string{"x=@" + file})
	if err != nil {
		t.Fatalf("readInputs: %v", err)
	}
	if len(got) != 1 || got[0].Name != "x" {
		t.Fatalf("unexpected inputs %+v", got)
	}

	for _, bad := range []string{"x", "=a", "y=@" + file, "x=@" + filepath.Join(dir, "absent.json")} {
		if _, err := readInputs(model, []string{bad}); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}
