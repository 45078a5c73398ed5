// Package diffusers runs diffusion pipelines through a Python worker process
// that wraps the diffusers library. The worker is started in a managed
// virtualenv and driven over a local JSON HTTP protocol.
package diffusers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"imaged/internal/manager"
)

const defaultStartTimeout = 10 * time.Minute

// Options for New.
type Options struct {
	// CacheDir holds the virtualenv, the worker script and its log.
	CacheDir string
	// Python is an interpreter to use as is. When empty a virtualenv is
	// created under CacheDir.
	Python string
	// Port is the preferred worker port; any free port is used if taken.
	Port int
	// Remote is the host:port of an already running worker to use instead
	// of starting one.
	Remote string
	// StartTimeout bounds the wait for the worker to report healthy.
	StartTimeout time.Duration
	Logger       zerolog.Logger
}

// Backend is a manager.Backend backed by a worker process.
type Backend struct {
	c    *client
	proc *process
	log  zerolog.Logger
}

// Factory returns a manager.BackendFactory that starts the worker on first use.
func Factory(opts Options) manager.BackendFactory {
	return func(ctx context.Context) (manager.Backend, error) {
		return New(ctx, opts)
	}
}

// New prepares the python environment if needed, starts the worker and
// waits until it is healthy.
func New(ctx context.Context, opts Options) (*Backend, error) {
	log := opts.Logger.With().Str("component", "diffusers").Logger()
	timeout := opts.StartTimeout
	if timeout <= 0 {
		timeout = defaultStartTimeout
	}
	if opts.Remote != "" {
		if _, _, err := net.SplitHostPort(opts.Remote); err != nil {
			return nil, fmt.Errorf("invalid remote %q; use form 'host:port'", opts.Remote)
		}
		b := &Backend{c: newClient("http://" + opts.Remote), log: log}
		hctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		h, err := b.c.health(hctx)
		if err != nil || h.Status != "ok" {
			return nil, fmt.Errorf("remote worker %s not healthy: %v", opts.Remote, err)
		}
		log.Info().Str("remote", opts.Remote).Str("device", h.Device).Msg("using remote worker")
		return b, nil
	}

	if opts.CacheDir == "" {
		return nil, errors.New("cache dir is required")
	}
	cache, err := filepath.Abs(opts.CacheDir)
	if err != nil {
		return nil, err
	}
	e, err := prepareEnv(ctx, cache, opts.Python, log)
	if err != nil {
		return nil, err
	}
	port, err := findFreePort(opts.Port)
	if err != nil {
		return nil, fmt.Errorf("find port: %w", err)
	}
	p, err := startProcess(e, port, log)
	if err != nil {
		return nil, err
	}
	b := &Backend{c: newClient(p.baseURL), proc: p, log: log}
	if err := p.waitHealthy(ctx, b.c, timeout, log); err != nil {
		_ = p.stop()
		return nil, err
	}
	return b, nil
}

// Health queries the worker for its compute device and Triton support.
func (b *Backend) Health(ctx context.Context) (triton bool, device string, err error) {
	h, err := b.c.health(ctx)
	if err != nil {
		return false, "", err
	}
	return h.Triton, h.Device, nil
}

// Load implements manager.Backend.
func (b *Backend) Load(ctx context.Context, spec manager.LoadSpec) (manager.Pipeline, manager.LoadReport, error) {
	if err := b.checkAlive(); err != nil {
		return nil, manager.LoadReport{}, err
	}
	out, err := b.c.load(ctx, loadRequest{
		Model:      spec.Model,
		Family:     string(spec.Family),
		Quantize:   spec.Quantize,
		Components: spec.QuantizeComponents,
		CacheDir:   spec.CacheDir,
	})
	if err != nil {
		return nil, manager.LoadReport{}, err
	}
	rep := manager.LoadReport{Quantized: out.Quantized, Device: out.Device, Warnings: out.Warnings}
	if out.ModelType != "" && out.ModelType != string(spec.Family) {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("worker loaded %s as %s", spec.Model, out.ModelType))
	}
	return &pipeline{b: b, model: spec.Model}, rep, nil
}

// Close stops the worker if this backend started it.
func (b *Backend) Close() error {
	if b.proc == nil {
		return nil
	}
	b.log.Info().Msg("stopping worker")
	return b.proc.stop()
}

// checkAlive turns a dead worker into a descriptive error.
func (b *Backend) checkAlive() error {
	if b.proc == nil {
		return nil
	}
	if done, err := b.proc.exited(); done {
		return manager.ErrDependencyUnavailable(fmt.Sprintf("worker exited: %v; log tail: %s", err, strings.TrimSpace(b.proc.tail())))
	}
	return nil
}

// pipeline is the worker's resident pipeline.
type pipeline struct {
	b     *Backend
	model string
}

func (p *pipeline) LoadLoRA(ctx context.Context, path, adapter string) error {
	return p.b.c.call(ctx, "/lora/load", loraLoadRequest{Path: path, Adapter: adapter})
}

func (p *pipeline) DeleteAdapter(ctx context.Context, adapter string) error {
	return p.b.c.call(ctx, "/lora/delete", adapterRequest{Adapter: adapter})
}

func (p *pipeline) SetAdapterWeight(ctx context.Context, adapter string, w float64) error {
	return p.b.c.call(ctx, "/lora/weights", weightsRequest{Adapter: adapter, Weight: w})
}

func (p *pipeline) DisableLoRA(ctx context.Context) error {
	return p.b.c.call(ctx, "/lora/disable", struct{}{})
}

func (p *pipeline) Generate(ctx context.Context, gp manager.GenParams) ([]byte, error) {
	if err := p.b.checkAlive(); err != nil {
		return nil, err
	}
	return p.b.c.generate(ctx, generateRequest{
		Prompt:         gp.Prompt,
		NegativePrompt: gp.NegativePrompt,
		GuidanceScale:  gp.GuidanceScale,
		Steps:          gp.Steps,
		Width:          gp.Width,
		Height:         gp.Height,
		Seed:           gp.Seed,
	})
}

func (p *pipeline) Close(ctx context.Context) error {
	if err := p.b.checkAlive(); err != nil {
		return nil
	}
	return p.b.c.call(ctx, "/unload", struct{}{})
}
