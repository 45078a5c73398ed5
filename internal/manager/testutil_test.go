package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeBackend is an in-memory Backend used for tests.
type fakeBackend struct {
	mu       sync.Mutex
	loadErr  map[string]error
	warnings []string
	specs    []LoadSpec
	pipes    []*fakePipeline
	closed   bool
	// configure applies to every pipeline created after it is set.
	configure func(*fakePipeline)
}

func newFakeBackend() *fakeBackend { return &fakeBackend{loadErr: map[string]error{}} }

func (b *fakeBackend) Load(ctx context.Context, spec LoadSpec) (Pipeline, LoadReport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.specs = append(b.specs, spec)
	if err := b.loadErr[spec.Model]; err != nil {
		return nil, LoadReport{}, err
	}
	p := &fakePipeline{model: spec.Model, png: []byte("\x89PNG fake " + spec.Model)}
	if b.configure != nil {
		b.configure(p)
	}
	b.pipes = append(b.pipes, p)
	return p, LoadReport{Quantized: spec.Quantize, Device: "cpu", Warnings: b.warnings}, nil
}

func (b *fakeBackend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

func (b *fakeBackend) last() *fakePipeline {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pipes) == 0 {
		return nil
	}
	return b.pipes[len(b.pipes)-1]
}

func (b *fakeBackend) factory() BackendFactory {
	return func(context.Context) (Backend, error) { return b, nil }
}

// fakePipeline records every call made on it.
type fakePipeline struct {
	mu        sync.Mutex
	model     string
	calls     []string
	gens      []GenParams
	loraErr   error
	weightErr error
	genErr    error
	png       []byte
	closed    bool
	// started/block let tests hold a generation in flight.
	started chan struct{}
	block   chan struct{}
}

func (p *fakePipeline) record(format string, args ...any) {
	p.mu.Lock()
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
	p.mu.Unlock()
}

func (p *fakePipeline) LoadLoRA(ctx context.Context, path, adapter string) error {
	p.record("load_lora %s %s", adapter, path)
	return p.loraErr
}

func (p *fakePipeline) DeleteAdapter(ctx context.Context, adapter string) error {
	p.record("delete_adapter %s", adapter)
	return nil
}

func (p *fakePipeline) SetAdapterWeight(ctx context.Context, adapter string, w float64) error {
	p.record("set_adapters %s %.2f", adapter, w)
	return p.weightErr
}

func (p *fakePipeline) DisableLoRA(ctx context.Context) error {
	p.record("disable_lora")
	return nil
}

func (p *fakePipeline) Generate(ctx context.Context, gp GenParams) ([]byte, error) {
	p.record("generate")
	p.mu.Lock()
	p.gens = append(p.gens, gp)
	started, block := p.started, p.block
	p.started = nil
	p.mu.Unlock()
	if started != nil {
		close(started)
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.genErr != nil {
		return nil, p.genErr
	}
	return p.png, nil
}

func (p *fakePipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakePipeline) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePipeline) lastGen() GenParams {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gens[len(p.gens)-1]
}

func (p *fakePipeline) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

var errBoom = errors.New("boom")

func newTestHandler(t *testing.T, b *fakeBackend, mut ...func(*Config)) (*ModelHandler, *MemoryPublisher) {
	t.Helper()
	pub := NewMemoryPublisher()
	cfg := Config{
		Backend:      b.factory(),
		Publisher:    pub,
		MaxWait:      200 * time.Millisecond,
		DrainTimeout: 200 * time.Millisecond,
		Seed:         func() (int64, error) { return 1234, nil },
	}
	for _, m := range mut {
		m(&cfg)
	}
	h := New(cfg)
	t.Cleanup(func() { _ = h.Close() })
	return h, pub
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}
