package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"ipnis/internal/client"
	"ipnis/internal/signing"
	"ipnis/internal/storage"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func buildBinary(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	bin := filepath.Join(t.TempDir(), "ipnisd")
	cmd := exec.Command("go", "build", "-o", bin, ".")
	cmd.Dir = filepath.Dir(thisFile)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("go build failed: %v\n%s", err, out)
	}
	return bin
}

type serverProc struct {
	base    string
	account string
}

func startServer(t *testing.T, bin string, args ...string) *serverProc {
	t.Helper()
	port := findFreePort(t)
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "node.key")
	key, err := signing.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	if err := key.SaveKey(keyFile); err != nil {
		t.Fatal(err)
	}
	args = append([]string{
		"--addr", fmt.Sprintf("127.0.0.1:%d", port),
		"--storage-dir", filepath.Join(dir, "store"),
		"--key-file", keyFile,
	}, args...)
	cmd := exec.Command(bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { _ = cmd.Process.Kill(); _ = cmd.Wait() })

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not become healthy in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
	return &serverProc{base: base, account: key.Account()}
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestBlackbox_Flow(t *testing.T) {
	if testing.Short() {
		t.Skip("builds and spawns the daemon")
	}
	sp := startServer(t, buildBinary(t), "--engine", "born", "--max-inflight", "2")

	if code, body := get(t, sp.base+"/readyz"); code != http.StatusOK {
		t.Fatalf("/readyz %d %s", code, body)
	}
	if code, body := get(t, sp.base+"/metrics"); code != http.StatusOK || !strings.Contains(body, "ipnis_http_requests_total") {
		t.Fatalf("/metrics %d", code)
	}

	k, err := signing.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	c := client.New(sp.base, signing.NewSigner(k, nil), client.WithServerAccount(sp.account))
	ctx := context.Background()

	st, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Engine != "born" || st.MaxInflight != 2 {
		t.Fatalf("unexpected status %+v", st)
	}

	_, err = c.LoadModel(ctx, storage.HashBytes([]byte("not stored anywhere")))
	var se *client.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a missing blob, got %v", err)
	}
}

func TestBlackbox_RejectsUnknownAccount(t *testing.T) {
	if testing.Short() {
		t.Skip("builds and spawns the daemon")
	}
	friend, err := signing.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	sp := startServer(t, buildBinary(t), "--allow", friend.Account())

	stranger, err := signing.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	c := client.New(sp.base, signing.NewSigner(stranger, nil))
	_, err = c.LoadModel(context.Background(), storage.HashBytes([]byte("x")))
	var se *client.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}
