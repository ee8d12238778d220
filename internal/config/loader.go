// Package config loads the daemon configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"ipnis/internal/common/fsutil"
	"ipnis/internal/engine"
	"ipnis/pkg/types"
)

// Defaults applied by WithDefaults.
const (
	DefaultAddr                 = ":8080"
	DefaultStorageDir           = "~/.ipnis/store"
	DefaultEngine               = engine.KindBorn
	DefaultOptimizationLevel    = "basic"
	DefaultThreads              = 1
	DefaultLargeObjectThreshold = 2_000_000_000
	DefaultMaxQueueDepth        = 32
	DefaultMaxWaitSeconds       = 30
	DefaultLogLevel             = "warn"
	DefaultMaxBodyBytes         = 64 << 20
)

// CORS configures the opt-in CORS middleware.
type CORS struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and are replaced by WithDefaults.
type Config struct {
	Addr       string `json:"addr" yaml:"addr" toml:"addr"`
	StorageDir string `json:"storage_dir" yaml:"storage_dir" toml:"storage_dir"`
	// BlobURL is an HTTP blob server consulted for blobs missing locally.
	BlobURL   string `json:"blob_url" yaml:"blob_url" toml:"blob_url"`
	GCSBucket string `json:"gcs_bucket" yaml:"gcs_bucket" toml:"gcs_bucket"`
	// GCSCredentialsFile overrides application default credentials.
	GCSCredentialsFile string `json:"gcs_credentials_file" yaml:"gcs_credentials_file" toml:"gcs_credentials_file"`

	Engine            string `json:"engine" yaml:"engine" toml:"engine"`
	ORTLibraryPath    string `json:"ort_library_path" yaml:"ort_library_path" toml:"ort_library_path"`
	OptimizationLevel string `json:"optimization_level" yaml:"optimization_level" toml:"optimization_level"`
	Threads           int    `json:"threads" yaml:"threads" toml:"threads"`

	LargeObjectThreshold uint64 `json:"large_object_threshold" yaml:"large_object_threshold" toml:"large_object_threshold"`
	MaxCachedSessions    int    `json:"max_cached_sessions" yaml:"max_cached_sessions" toml:"max_cached_sessions"`
	MaxInflight          int    `json:"max_inflight" yaml:"max_inflight" toml:"max_inflight"`
	MaxQueueDepth        int    `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWaitSeconds       int    `json:"max_wait_seconds" yaml:"max_wait_seconds" toml:"max_wait_seconds"`

	KeyFile         string   `json:"key_file" yaml:"key_file" toml:"key_file"`
	AllowedAccounts []string `json:"allowed_accounts" yaml:"allowed_accounts" toml:"allowed_accounts"`

	LogLevel     string `json:"log_level" yaml:"log_level" toml:"log_level"`
	MaxBodyBytes int64  `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	CORS         CORS   `json:"cors" yaml:"cors" toml:"cors"`

	// ModelsDir holds *.onnx files imported and compiled at startup.
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	// Preload lists content paths ("<hash>:<len>") compiled at startup.
	Preload []string `json:"preload" yaml:"preload" toml:"preload"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// WithDefaults returns a copy of c with unspecified fields filled in and
// home-relative directories expanded.
func (c Config) WithDefaults() (Config, error) {
	if c.Addr == "" {
		c.Addr = DefaultAddr
		if v := os.Getenv("IPNIS_ADDR"); v != "" {
			c.Addr = v
		}
	}
	if c.StorageDir == "" {
		c.StorageDir = DefaultStorageDir
	}
	if c.Engine == "" {
		c.Engine = DefaultEngine
	}
	if c.OptimizationLevel == "" {
		c.OptimizationLevel = DefaultOptimizationLevel
	}
	if c.Threads <= 0 {
		c.Threads = DefaultThreads
	}
	if c.LargeObjectThreshold == 0 {
		c.LargeObjectThreshold = DefaultLargeObjectThreshold
	}
	if c.MaxInflight <= 0 {
		c.MaxInflight = runtime.NumCPU()
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = DefaultMaxQueueDepth
	}
	if c.MaxWaitSeconds <= 0 {
		c.MaxWaitSeconds = DefaultMaxWaitSeconds
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}

	var err error
	for _, p := range []*string{&c.StorageDir, &c.KeyFile, &c.ModelsDir, &c.GCSCredentialsFile} {
		if *p, err = fsutil.ExpandHome(*p); err != nil {
			return c, err
		}
	}
	return c, nil
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	switch strings.ToLower(c.Engine) {
	case "", engine.KindBorn, engine.KindONNXRuntime, "ort":
	default:
		return fmt.Errorf("unknown engine %q", c.Engine)
	}
	if _, err := engine.ParseOptimizationLevel(c.OptimizationLevel); err != nil {
		return err
	}
	if _, err := c.PreloadPaths(); err != nil {
		return err
	}
	if c.MaxCachedSessions < 0 {
		return fmt.Errorf("max_cached_sessions must not be negative")
	}
	return nil
}

// PreloadPaths parses Preload.
func (c Config) PreloadPaths() ([]types.Path, error) {
	out := make([]types.Path, 0, len(c.Preload))
	for _, s := range c.Preload {
		p, err := types.ParsePath(s)
		if err != nil {
			return nil, fmt.Errorf("preload: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}
