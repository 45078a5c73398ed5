package ctl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"imaged/internal/common/fsutil"
	"imaged/internal/diffusers"
	"imaged/internal/manager"
	"imaged/internal/preview"
	"imaged/internal/registry"
)

// DefaultVerifyModels are checked when no model is named.
var DefaultVerifyModels = []string{
	"Disty0/Z-Image-Turbo-SDNQ-int8",
	"Disty0/Z-Image-Turbo-SDNQ-uint4-svd-r32",
}

// VerifyOptions are the flags of `imagectl verify`.
type VerifyOptions struct {
	Backend   string
	ModelsDir string
	CacheDir  string
	Python    string
	OutDir    string
	Prompt    string
	Steps     int
	Size      int
	LogLevel  string
}

// DefaultVerifyOptions returns the low-cost settings of the smoke test.
func DefaultVerifyOptions() VerifyOptions {
	return VerifyOptions{
		Backend:   "diffusers",
		ModelsDir: "~/AI-models/",
		CacheDir:  "~/.cache/imaged",
		OutDir:    ".",
		Prompt:    "A cat",
		Steps:     1,
		Size:      256,
	}
}

func newBackendFactory(opts VerifyOptions, log zerolog.Logger) (manager.BackendFactory, error) {
	switch opts.Backend {
	case "preview":
		return preview.Factory(preview.Options{}), nil
	case "diffusers":
		cache, err := fsutil.EnsureDir(opts.CacheDir)
		if err != nil {
			return nil, err
		}
		return diffusers.Factory(diffusers.Options{CacheDir: cache, Python: opts.Python, Logger: log}), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want diffusers or preview)", opts.Backend)
	}
}

// runVerify loads each model in-process, generates one small image and
// saves it as verify_<n>.png. It keeps going after a failure and reports
// how many models failed.
func runVerify(ctx context.Context, opts VerifyOptions, models []string) error {
	if len(models) == 0 {
		models = DefaultVerifyModels
	}
	lvl, err := zerolog.ParseLevel(opts.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.WarnLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.TimeOnly}).Level(lvl).With().Timestamp().Logger()

	factory, err := fnNewBackend(opts, log)
	if err != nil {
		return err
	}
	modelsDir, err := fsutil.EnsureDir(opts.ModelsDir)
	if err != nil {
		return err
	}
	if _, err := fsutil.EnsureDir(opts.OutDir); err != nil {
		return err
	}
	h := manager.New(manager.Config{
		Backend:  factory,
		Catalog:  registry.New(modelsDir, filepath.Join(modelsDir, "lora")),
		CacheDir: modelsDir,
		Logger:   &log,
	})
	defer func() {
		if err := h.Close(); err != nil {
			warn("close: %v", err)
		}
	}()

	failed := 0
	for i, m := range models {
		out := filepath.Join(opts.OutDir, fmt.Sprintf("verify_%d.png", i+1))
		if err := verifyOne(ctx, h, m, opts, out); err != nil {
			errl("FAIL %s: %v", m, err)
			failed++
			continue
		}
		ok("OK   %s -> %s", m, out)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d models failed verification", failed, len(models))
	}
	return nil
}

func verifyOne(ctx context.Context, h *manager.ModelHandler, model string, opts VerifyOptions, out string) error {
	info("Testing load for %s...", model)
	start := time.Now()
	if err := h.LoadModel(ctx, model); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	info("Loaded in %s; testing generation...", time.Since(start).Round(time.Millisecond))
	p := manager.DefaultParams()
	p.Prompt = opts.Prompt
	p.Steps = opts.Steps
	p.Width = opts.Size
	p.Height = opts.Size
	img, err := h.Generate(ctx, p)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	return os.WriteFile(out, img.PNG, 0o644)
}
