// Command imaged serves the image generation API and web UI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"imaged/internal/common/fsutil"
	"imaged/internal/config"
	"imaged/internal/diffusers"
	"imaged/internal/httpapi"
	"imaged/internal/manager"
	"imaged/internal/preview"
	"imaged/internal/registry"
	"imaged/internal/webui"
)

func main() {
	if err := mainImpl(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "imaged: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl(args []string) error {
	// A missing .env is normal.
	_ = godotenv.Load()

	cfg, remote, err := loadConfig(args, os.LookupEnv)
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger(cfg.LogLevel, cfg.LogFile, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	modelsDir, err := fsutil.EnsureDir(cfg.ModelsDir)
	if err != nil {
		return fmt.Errorf("models dir: %w", err)
	}
	loraDir, err := fsutil.EnsureDir(cfg.LoRADir)
	if err != nil {
		return fmt.Errorf("lora dir: %w", err)
	}
	cacheDir, err := fsutil.EnsureDir(cfg.CacheDir)
	if err != nil {
		return fmt.Errorf("cache dir: %w", err)
	}

	var factory manager.BackendFactory
	switch cfg.Backend {
	case "preview":
		factory = preview.Factory(preview.Options{})
	default:
		factory = diffusers.Factory(diffusers.Options{
			CacheDir:     cacheDir,
			Python:       cfg.Python,
			Port:         cfg.WorkerPort,
			Remote:       remote,
			StartTimeout: cfg.WorkerStartTimeoutDuration(),
			Logger:       log,
		})
	}

	h := manager.New(manager.Config{
		Backend:       factory,
		Catalog:       registry.New(modelsDir, loraDir),
		CacheDir:      modelsDir,
		MaxQueueDepth: cfg.MaxQueueDepth,
		MaxWait:       cfg.MaxWait(),
		Logger:        &log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	httpapi.SetLogger(log)
	httpapi.SetDefaultLogLevel(cfg.LogLevel)
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetGenerateTimeout(cfg.GenerateTimeoutDuration())
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins, nil, nil)
	httpapi.SetShutdownFunc(stop)

	ui := webui.New(h, log, cfg.DefaultModel)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(h, ui),
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Str("backend", cfg.Backend).
			Str("models_dir", modelsDir).Str("lora_dir", loraDir).Msg("imaged listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", cfg.Addr, err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		log.Info().Msg("shutting down")
		shCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := srv.Shutdown(shCtx)
		if err != nil {
			log.Warn().Err(err).Msg("graceful shutdown")
		}
		// Whatever is still generating is abandoned.
		cancelBase()
		if cerr := h.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("close handler")
		}
		return nil
	})
	return eg.Wait()
}

// loadConfig layers defaults, IMAGED_* variables, the config file and the
// flags explicitly set on the command line, in that order.
func loadConfig(args []string, lookup func(string) (string, bool)) (config.Config, string, error) {
	fs := flag.NewFlagSet("imaged", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a YAML, JSON or TOML config file")
	addr := fs.String("addr", "", "HTTP listen address, e.g. :8888")
	modelsDir := fs.String("models-dir", "", "Hugging Face cache directory holding models--org--repo dirs")
	loraDir := fs.String("lora-dir", "", "Directory of *.safetensors LoRA adapters")
	cacheDir := fs.String("cache-dir", "", "Directory for the python environment and worker logs")
	defaultModel := fs.String("default-model", "", "Model preselected in the UI")
	backend := fs.String("backend", "", "Inference backend: diffusers or preview")
	python := fs.String("python", "", "Python interpreter to use instead of a managed virtualenv")
	workerPort := fs.Int("worker-port", 0, "Preferred port of the diffusers worker")
	remote := fs.String("worker-remote", "", "host:port of an already running worker")
	maxQueue := fs.Int("max-queue-depth", 0, "Requests allowed to wait for the pipeline")
	maxWait := fs.Int("max-wait-seconds", 0, "How long a request may wait for the pipeline")
	genTimeout := fs.Int("generate-timeout-seconds", 0, "Timeout of one /api/generate call (0 disables)")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	logFile := fs.String("log-file", "", "Also write logs to this rotated file")
	corsEnabled := fs.Bool("cors", false, "Enable CORS")
	corsOrigins := fs.String("cors-origins", "", "Comma-separated allowed CORS origins")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, "", err
	}

	cfg := config.Defaults()
	if err := cfg.ApplyEnv(lookup); err != nil {
		return cfg, "", err
	}
	if *configPath != "" {
		fileCfg, err := config.LoadOnto(*configPath, cfg)
		if err != nil {
			return cfg, "", fmt.Errorf("load config: %w", err)
		}
		cfg = fileCfg
	}

	// Only flags given on the command line apply, zero values included.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "models-dir":
			cfg.ModelsDir = *modelsDir
		case "lora-dir":
			cfg.LoRADir = *loraDir
		case "cache-dir":
			cfg.CacheDir = *cacheDir
		case "default-model":
			cfg.DefaultModel = *defaultModel
		case "backend":
			cfg.Backend = *backend
		case "python":
			cfg.Python = *python
		case "worker-port":
			cfg.WorkerPort = *workerPort
		case "max-queue-depth":
			cfg.MaxQueueDepth = *maxQueue
		case "max-wait-seconds":
			cfg.MaxWaitSeconds = *maxWait
		case "generate-timeout-seconds":
			cfg.GenerateTimeout = *genTimeout
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-file":
			cfg.LogFile = *logFile
		case "cors":
			cfg.CORSEnabled = *corsEnabled
		case "cors-origins":
			cfg.CORSOrigins = config.SplitCSV(*corsOrigins)
		}
	})
	if err := cfg.Validate(); err != nil {
		return cfg, "", err
	}
	return cfg, *remote, nil
}

// newLogger builds the process logger: console output on a terminal, JSON
// otherwise, plus an optional rotated file.
func newLogger(level, file string, stderr *os.File) (zerolog.Logger, func(), error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("log level: %w", err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	w, closeFn, err := logWriter(file, stderr)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), closeFn, nil
}
