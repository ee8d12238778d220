package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

var testHash = strings.Repeat("ab", 32)

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "addr: :9999\nengine: onnxruntime\nmax_inflight: 3\nallowed_accounts: [a1, a2]\ncors:\n  enabled: true\n  origins: ['*']\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.Engine != "onnxruntime" || cfg.MaxInflight != 3 || len(cfg.AllowedAccounts) != 2 || !cfg.CORS.Enabled || cfg.CORS.Origins[0] != "*" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":7070","storage_dir":"/s","max_cached_sessions":4,"preload":["`+testHash+`:10"]}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.StorageDir != "/s" || cfg.MaxCachedSessions != 4 || len(cfg.Preload) != 1 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "addr=\":8081\"\nmodels_dir=\"/x\"\nthreads=4\nlarge_object_threshold=1000\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.ModelsDir != "/x" || cfg.Threads != 4 || cfg.LargeObjectThreshold != 1000 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}

func TestWithDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv("IPNIS_ADDR", "")

	cfg, err := Config{KeyFile: "~/key.hex"}.WithDefaults()
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if cfg.Addr != DefaultAddr || cfg.Engine != DefaultEngine || cfg.OptimizationLevel != DefaultOptimizationLevel {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.MaxInflight != runtime.NumCPU() || cfg.MaxQueueDepth != DefaultMaxQueueDepth || cfg.MaxWaitSeconds != DefaultMaxWaitSeconds {
		t.Fatalf("unexpected admission defaults: %+v", cfg)
	}
	if cfg.LargeObjectThreshold != DefaultLargeObjectThreshold || cfg.MaxBodyBytes != DefaultMaxBodyBytes || cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("unexpected limits: %+v", cfg)
	}
	if cfg.StorageDir != filepath.Join(home, ".ipnis", "store") || cfg.KeyFile != filepath.Join(home, "key.hex") {
		t.Fatalf("home not expanded: %q %q", cfg.StorageDir, cfg.KeyFile)
	}
	if cfg.ModelsDir != "" {
		t.Fatalf("models dir should stay empty, got %q", cfg.ModelsDir)
	}
}

func TestWithDefaults_KeepsExplicitValues(t *testing.T) {
	t.Setenv("IPNIS_ADDR", ":1234")
	cfg, err := Config{Addr: ":5555", Threads: 8, MaxWaitSeconds: 2}.WithDefaults()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":5555" || cfg.Threads != 8 || cfg.MaxWaitSeconds != 2 {
		t.Fatalf("explicit values overwritten: %+v", cfg)
	}

	cfg, err = Config{}.WithDefaults()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":1234" {
		t.Fatalf("env addr ignored: %q", cfg.Addr)
	}
}
