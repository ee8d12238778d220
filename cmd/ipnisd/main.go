package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/api/option"

	"ipnis/internal/cache"
	"ipnis/internal/common/fsutil"
	"ipnis/internal/config"
	"ipnis/internal/engine"
	"ipnis/internal/httpapi"
	"ipnis/internal/manager"
	"ipnis/internal/registry"
	"ipnis/internal/signing"
	"ipnis/internal/storage"
	"ipnis/pkg/types"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath string
		flags   config.Config
		allow   string
	)
	root := &cobra.Command{
		Use:           "ipnisd",
		Short:         "Serve ONNX models addressed by content hash",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg config.Config
			if cfgPath != "" {
				var err error
				if cfg, err = config.Load(cfgPath); err != nil {
					return err
				}
			}
			overlay(&cfg, flags, cmd)
			if allow != "" {
				cfg.AllowedAccounts = splitCSV(allow)
			}
			cfg, err := cfg.WithDefaults()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	f := root.Flags()
	f.StringVar(&cfgPath, "config", "", "Config file (.yaml, .json or .toml)")
	f.StringVar(&flags.Addr, "addr", "", "HTTP listen address (defaults IPNIS_ADDR or :8080)")
	f.StringVar(&flags.StorageDir, "storage-dir", "", "Local blob directory")
	f.StringVar(&flags.BlobURL, "blob-url", "", "HTTP blob server for blobs missing locally")
	f.StringVar(&flags.GCSBucket, "gcs-bucket", "", "GCS bucket for blobs missing locally")
	f.StringVar(&flags.GCSCredentialsFile, "gcs-credentials", "", "GCS service account JSON")
	f.StringVar(&flags.Engine, "engine", "", "Inference engine: born|onnxruntime")
	f.StringVar(&flags.ORTLibraryPath, "ort-library", "", "Path to the ONNX Runtime shared library")
	f.StringVar(&flags.OptimizationLevel, "opt-level", "", "Graph optimization: disable|basic|extended|all")
	f.IntVar(&flags.Threads, "threads", 0, "Intra-op threads per session")
	f.IntVar(&flags.MaxCachedSessions, "max-sessions", 0, "Bound on cached sessions (0=unbounded)")
	f.IntVar(&flags.MaxInflight, "max-inflight", 0, "Concurrent runs (defaults to NumCPU)")
	f.IntVar(&flags.MaxQueueDepth, "max-queue", 0, "Calls allowed to wait for a run slot")
	f.IntVar(&flags.MaxWaitSeconds, "max-wait", 0, "Seconds a call may wait for a run slot")
	f.StringVar(&flags.KeyFile, "key-file", "", "Hex private key; generated when missing")
	f.StringVar(&allow, "allow", "", "Comma-separated accounts allowed to call (empty=any)")
	f.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug|info|warn|error")
	f.StringVar(&flags.ModelsDir, "models-dir", "", "Directory of *.onnx files imported at startup")
	return root
}

// overlay copies flags the user set on the command line over cfg.
func overlay(cfg *config.Config, flags config.Config, cmd *cobra.Command) {
	set := func(name string) bool { return cmd.Flags().Changed(name) }
	if set("addr") {
		cfg.Addr = flags.Addr
	}
	if set("storage-dir") {
		cfg.StorageDir = flags.StorageDir
	}
	if set("blob-url") {
		cfg.BlobURL = flags.BlobURL
	}
	if set("gcs-bucket") {
		cfg.GCSBucket = flags.GCSBucket
	}
	if set("gcs-credentials") {
		cfg.GCSCredentialsFile = flags.GCSCredentialsFile
	}
	if set("engine") {
		cfg.Engine = flags.Engine
	}
	if set("ort-library") {
		cfg.ORTLibraryPath = flags.ORTLibraryPath
	}
	if set("opt-level") {
		cfg.OptimizationLevel = flags.OptimizationLevel
	}
	if set("threads") {
		cfg.Threads = flags.Threads
	}
	if set("max-sessions") {
		cfg.MaxCachedSessions = flags.MaxCachedSessions
	}
	if set("max-inflight") {
		cfg.MaxInflight = flags.MaxInflight
	}
	if set("max-queue") {
		cfg.MaxQueueDepth = flags.MaxQueueDepth
	}
	if set("max-wait") {
		cfg.MaxWaitSeconds = flags.MaxWaitSeconds
	}
	if set("key-file") {
		cfg.KeyFile = flags.KeyFile
	}
	if set("log-level") {
		cfg.LogLevel = flags.LogLevel
	}
	if set("models-dir") {
		cfg.ModelsDir = flags.ModelsDir
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	remote, err := openRemote(ctx, cfg)
	if err != nil {
		return err
	}
	store, err := storage.NewLocal(cfg.StorageDir, remote)
	if err != nil {
		return err
	}
	eng, err := engine.New(engine.Config{Kind: cfg.Engine, LibraryPath: cfg.ORTLibraryPath})
	if err != nil {
		return err
	}
	opt, _ := engine.ParseOptimizationLevel(cfg.OptimizationLevel)
	sessions, err := cache.New(cache.Config{
		Engine:               eng,
		Store:                store,
		Options:              engine.Options{OptimizationLevel: opt, Threads: cfg.Threads},
		LargeObjectThreshold: cfg.LargeObjectThreshold,
		MaxEntries:           cfg.MaxCachedSessions,
		Logger:               &logger,
	})
	if err != nil {
		return err
	}
	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Sessions:      sessions,
		MaxInflight:   cfg.MaxInflight,
		MaxQueueDepth: cfg.MaxQueueDepth,
		MaxWait:       time.Duration(cfg.MaxWaitSeconds) * time.Second,
		Logger:        &logger,
	})
	defer mgr.Close()

	key, err := loadOrCreateKey(cfg.KeyFile)
	if err != nil {
		return err
	}
	signer := signing.NewSigner(key, cfg.AllowedAccounts)

	httpapi.SetLogger(logger)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.Origins, cfg.CORS.Methods, cfg.CORS.Headers)
	httpapi.SetBaseContext(ctx)

	go preload(ctx, logger, mgr, store, cfg)

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(mgr, signer)}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Addr).
			Str("engine", eng.Name()).
			Str("account", signer.Account()).
			Str("storage", cfg.StorageDir).
			Msg("ipnisd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

func openRemote(ctx context.Context, cfg config.Config) (storage.BlobReader, error) {
	switch {
	case cfg.GCSBucket != "":
		var opts []option.ClientOption
		if cfg.GCSCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.GCSCredentialsFile))
		}
		return storage.NewGCSStore(ctx, cfg.GCSBucket, opts...)
	case cfg.BlobURL != "":
		return storage.NewHTTPReader(cfg.BlobURL)
	}
	return nil, nil
}

func loadOrCreateKey(path string) (*signing.Key, error) {
	if path == "" {
		return signing.GenerateKey()
	}
	if fsutil.PathExists(path) {
		return signing.LoadKey(path)
	}
	key, err := signing.GenerateKey()
	if err != nil {
		return nil, err
	}
	return key, key.SaveKey(path)
}

// preload imports models_dir and compiles it together with the configured
// preload paths. Failures are logged and leave the manager not ready.
func preload(ctx context.Context, logger zerolog.Logger, mgr *manager.Manager, store *storage.Local, cfg config.Config) {
	paths, _ := cfg.PreloadPaths()
	if cfg.ModelsDir != "" {
		entries, err := registry.LoadDir(cfg.ModelsDir)
		if err != nil {
			logger.Warn().Err(err).Str("dir", cfg.ModelsDir).Msg("models dir scan failed")
		}
		imported, err := registry.Import(ctx, store, entries)
		if err != nil {
			logger.Warn().Err(err).Msg("model import failed")
		}
		for _, m := range imported {
			logger.Info().Str("model", m.Name).Str("path", m.Path.String()).Msg("model imported")
		}
		paths = append(paths, registry.Paths(imported)...)
	}
	if len(paths) == 0 {
		return
	}
	if err := mgr.Warm(ctx, dedupe(paths)); err != nil {
		logger.Error().Err(err).Msg("preload failed")
		return
	}
	logger.Info().Int("models", len(paths)).Msg("preload complete")
}

func dedupe(paths []types.Path) []types.Path {
	seen := make(map[types.Path]bool, len(paths))
	out := paths[:0]
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
