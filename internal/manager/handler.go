package manager

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"imaged/pkg/types"
)

// ModelHandler owns the single pipeline and the model, family and LoRA it
// was configured with. Operations on the pipeline are serialized by opMu;
// mu guards the fields read by status calls.
type ModelHandler struct {
	opMu sync.Mutex

	mu          sync.RWMutex
	state       State
	pipe        Pipeline
	model       string
	family      Family
	lora        string
	err         string
	draining    bool
	loads       uint64
	generations uint64
	startTime   time.Time

	backend      *lazyBackend
	catalog      Catalog
	cacheDir     string
	maxWait      time.Duration
	drainTimeout time.Duration
	log          zerolog.Logger
	publisher    EventPublisher
	seed         func() (int64, error)

	// Queueing primitives
	genCh   chan struct{} // size 1: single in-flight job
	queueCh chan struct{} // buffered: in-flight plus waiting jobs
}

// New constructs a ModelHandler from Config. The backend is not started
// until the first operation that needs it.
func New(cfg Config) *ModelHandler {
	h := &ModelHandler{
		state:        StateIdle,
		backend:      newLazyBackend(cfg.Backend),
		catalog:      cfg.Catalog,
		cacheDir:     cfg.CacheDir,
		maxWait:      cfg.MaxWait,
		drainTimeout: cfg.DrainTimeout,
		publisher:    cfg.Publisher,
		seed:         cfg.Seed,
		startTime:    time.Now(),
	}
	depth := cfg.MaxQueueDepth
	if depth <= 0 {
		depth = defaultMaxQueueDepth
	}
	if h.maxWait <= 0 {
		h.maxWait = defaultMaxWait
	}
	if h.drainTimeout <= 0 {
		h.drainTimeout = defaultDrainTimeout
	}
	if h.catalog == nil {
		h.catalog = emptyCatalog{}
	}
	if h.publisher == nil {
		h.publisher = noopPublisher{}
	}
	if h.seed == nil {
		h.seed = randomSeed
	}
	if cfg.Logger != nil {
		h.log = cfg.Logger.With().Str("component", "handler").Logger()
	} else {
		h.log = zerolog.Nop()
	}
	h.genCh = make(chan struct{}, 1)
	h.queueCh = make(chan struct{}, depth+1)
	return h
}

// LoadModel makes name the resident model. Loading the current model is a
// no-op. On failure the handler is left without any model.
func (h *ModelHandler) LoadModel(ctx context.Context, name string) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	h.opMu.Lock()
	defer h.opMu.Unlock()
	return h.loadModel(ctx, name)
}

// LoadLoRA activates the adapter at path, or clears the adapter when path
// is empty. A load failure is logged and leaves no adapter active; it is not
// returned to the caller.
func (h *ModelHandler) LoadLoRA(ctx context.Context, path string) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	h.opMu.Lock()
	defer h.opMu.Unlock()
	return h.loadLoRA(ctx, path)
}

// Generate samples one image with the resident model.
func (h *ModelHandler) Generate(ctx context.Context, p Params) (*Image, error) {
	if err := h.checkOpen(); err != nil {
		return nil, err
	}
	h.opMu.Lock()
	defer h.opMu.Unlock()
	return h.generate(ctx, p)
}

func (h *ModelHandler) loadModel(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: model name is required", types.ErrInvalidRequest)
	}
	h.mu.RLock()
	same := h.pipe != nil && h.model == name
	h.mu.RUnlock()
	if same {
		return nil
	}

	b, err := h.backend.get(ctx)
	if err != nil {
		h.setError(err)
		return err
	}
	h.release(ctx)

	fam := DetectFamily(name)
	spec := LoadSpec{Model: name, Family: fam, Quantize: IsSDNQ(name), CacheDir: h.cacheDir}
	if spec.Quantize {
		spec.QuantizeComponents = QuantizeComponents
	}
	h.setState(StateLoading)
	h.publisher.Publish(Event{Name: EventLoadStart, Model: name, Fields: map[string]any{"family": string(fam)}})
	h.log.Info().Str("model", name).Str("family", string(fam)).Bool("sdnq", spec.Quantize).Msg("loading model")

	start := time.Now()
	pipe, rep, err := b.Load(ctx, spec)
	pipelineLoads.WithLabelValues(string(fam), outcome(err)).Inc()
	if err != nil {
		err = fmt.Errorf("load model %s: %w", name, err)
		h.setError(err)
		h.publisher.Publish(Event{Name: EventLoadError, Model: name, Fields: map[string]any{"error": err.Error()}})
		h.log.Error().Err(err).Str("model", name).Msg("model load failed")
		return err
	}
	for _, w := range rep.Warnings {
		h.log.Warn().Str("model", name).Msg(w)
	}

	h.mu.Lock()
	h.pipe = pipe
	h.model = name
	h.family = fam
	h.lora = ""
	h.err = ""
	h.setStateLocked(StateReady)
	h.loads++
	h.mu.Unlock()
	h.publisher.Publish(Event{Name: EventLoadDone, Model: name, Fields: map[string]any{
		"family":    string(fam),
		"quantized": rep.Quantized,
		"device":    rep.Device,
		"ms":        time.Since(start).Milliseconds(),
	}})
	h.log.Info().Str("model", name).Bool("quantized", rep.Quantized).Str("device", rep.Device).Dur("took", time.Since(start)).Msg("model loaded")
	return nil
}

func (h *ModelHandler) loadLoRA(ctx context.Context, path string) error {
	h.mu.RLock()
	cur, pipe, model := h.lora, h.pipe, h.model
	h.mu.RUnlock()
	if cur == path {
		return nil
	}
	if pipe == nil {
		return ErrNoModelLoaded
	}

	if cur != "" {
		if err := pipe.DeleteAdapter(ctx, AdapterName); err != nil {
			h.log.Debug().Err(err).Str("lora", cur).Msg("delete adapter")
		}
	}
	h.setLoRA("")
	if path == "" {
		h.publisher.Publish(Event{Name: EventLoRACleared, Model: model})
		h.log.Info().Str("model", model).Msg("lora disabled")
		return nil
	}

	err := pipe.LoadLoRA(ctx, path, AdapterName)
	loraLoads.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		h.publisher.Publish(Event{Name: EventLoRAError, Model: model, Fields: map[string]any{"lora": path, "error": err.Error()}})
		h.log.Warn().Err(err).Str("model", model).Str("lora", path).Msg("model may not support this lora; continuing without it")
		return nil
	}
	h.setLoRA(path)
	h.publisher.Publish(Event{Name: EventLoRALoaded, Model: model, Fields: map[string]any{"lora": path}})
	h.log.Info().Str("model", model).Str("lora", path).Msg("lora loaded")
	return nil
}

func (h *ModelHandler) generate(ctx context.Context, p Params) (*Image, error) {
	h.mu.RLock()
	pipe, model, fam, lora := h.pipe, h.model, h.family, h.lora
	h.mu.RUnlock()
	if pipe == nil {
		return nil, ErrNoModelLoaded
	}
	if p.Steps <= 0 || p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("%w: steps, width and height must be positive", types.ErrInvalidRequest)
	}
	seed := p.Seed
	if seed < 0 {
		s, err := h.seed()
		if err != nil {
			return nil, err
		}
		seed = s
	}

	if lora != "" {
		if err := pipe.SetAdapterWeight(ctx, AdapterName, p.LoRAScale); err != nil {
			h.log.Warn().Err(err).Str("lora", lora).Msg("could not set adapter weight; lora may not apply")
		}
	} else if fam == FamilySD {
		if err := pipe.DisableLoRA(ctx); err != nil {
			h.log.Debug().Err(err).Msg("disable lora")
		}
	}

	gp := GenParams{Prompt: p.Prompt, Steps: p.Steps, Width: p.Width, Height: p.Height, Seed: seed}
	if fam.UsesNegativePrompt() {
		neg := p.NegativePrompt
		gp.NegativePrompt = &neg
	}
	if fam.UsesGuidance() {
		g := p.GuidanceScale
		gp.GuidanceScale = &g
	}

	h.setState(StateGenerating)
	h.log.Info().Str("model", model).Str("family", string(fam)).Int64("seed", seed).Int("steps", p.Steps).
		Int("width", p.Width).Int("height", p.Height).Msg("generating")
	start := time.Now()
	png, err := pipe.Generate(ctx, gp)
	if err == nil && len(png) == 0 {
		err = errEmptyImage
	}
	observeGeneration(fam, start, err)
	if err != nil {
		h.mu.Lock()
		h.setStateLocked(StateReady)
		h.err = err.Error()
		h.mu.Unlock()
		h.publisher.Publish(Event{Name: EventGenerateError, Model: model, Fields: map[string]any{"error": err.Error()}})
		h.log.Error().Err(err).Str("model", model).Msg("generation failed")
		return nil, err
	}
	h.mu.Lock()
	h.setStateLocked(StateReady)
	h.generations++
	h.mu.Unlock()
	h.publisher.Publish(Event{Name: EventGenerateDone, Model: model, Fields: map[string]any{
		"seed": seed, "ms": time.Since(start).Milliseconds(),
	}})
	return &Image{
		PNG: png, Seed: seed, Width: p.Width, Height: p.Height, Steps: p.Steps,
		Model: model, Family: fam, LoRA: lora,
	}, nil
}

// release closes the current pipeline, if any, and clears model state.
// Callers hold opMu.
func (h *ModelHandler) release(ctx context.Context) {
	h.mu.Lock()
	pipe, model := h.pipe, h.model
	h.pipe = nil
	h.model = ""
	h.family = ""
	h.lora = ""
	h.setStateLocked(StateIdle)
	h.mu.Unlock()
	if pipe == nil {
		return
	}
	if err := pipe.Close(ctx); err != nil {
		h.log.Warn().Err(err).Str("model", model).Msg("release pipeline")
	}
	h.publisher.Publish(Event{Name: EventUnload, Model: model})
}

func (h *ModelHandler) setState(s State) {
	h.mu.Lock()
	h.setStateLocked(s)
	h.mu.Unlock()
}

// setStateLocked never leaves StateDraining. Callers hold mu.
func (h *ModelHandler) setStateLocked(s State) {
	if h.state != StateDraining {
		h.state = s
	}
}

// checkOpen rejects direct calls once Close has started.
func (h *ModelHandler) checkOpen() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.draining {
		return ErrTooBusy("shutting down")
	}
	return nil
}

func (h *ModelHandler) setLoRA(path string) {
	h.mu.Lock()
	h.lora = path
	h.mu.Unlock()
}

func (h *ModelHandler) setError(err error) {
	h.mu.Lock()
	h.pipe = nil
	h.model = ""
	h.family = ""
	h.lora = ""
	h.err = err.Error()
	h.setStateLocked(StateError)
	h.mu.Unlock()
}

type emptyCatalog struct{}

func (emptyCatalog) Models() ([]string, error) { return []string{}, nil }

func (emptyCatalog) LoRAs() ([]string, error) { return []string{types.NoLoRA}, nil }

func (emptyCatalog) ResolveLoRA(name string) (string, error) {
	if name == "" || name == types.NoLoRA {
		return "", nil
	}
	return "", fmt.Errorf("%w: no lora directory configured", types.ErrInvalidRequest)
}
