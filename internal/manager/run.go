package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"imaged/pkg/types"
)

// Run executes a complete job under admission control: ensure the model,
// ensure the LoRA, then generate.
func (h *ModelHandler) Run(ctx context.Context, j Job) (*Image, error) {
	release, err := h.admit(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	h.opMu.Lock()
	defer h.opMu.Unlock()
	if err := h.loadModel(ctx, j.Model); err != nil {
		return nil, err
	}
	if err := h.loadLoRA(ctx, j.LoRA); err != nil {
		return nil, err
	}
	return h.generate(ctx, j.Params)
}

// Submit validates an API request, resolves its LoRA name through the
// catalog and runs it.
func (h *ModelHandler) Submit(ctx context.Context, req types.GenerateRequest) (*Image, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	lora, err := h.catalog.ResolveLoRA(req.LoRAName)
	if err != nil {
		if !errors.Is(err, types.ErrInvalidRequest) {
			err = fmt.Errorf("%w: %v", types.ErrInvalidRequest, err)
		}
		return nil, err
	}
	return h.Run(ctx, Job{
		Model: req.ModelName,
		LoRA:  lora,
		Params: Params{
			Prompt:         req.Prompt,
			NegativePrompt: req.NegativePrompt,
			Steps:          req.Steps,
			GuidanceScale:  req.GuidanceScale,
			Width:          req.Width,
			Height:         req.Height,
			Seed:           req.Seed,
			LoRAScale:      req.LoRAScale,
		},
	})
}

// ListModels returns the models available in the catalog.
func (h *ModelHandler) ListModels() ([]string, error) { return h.catalog.Models() }

// ListLoRAs returns the adapters available in the catalog, "None" first.
func (h *ModelHandler) ListLoRAs() ([]string, error) { return h.catalog.LoRAs() }

// Unload releases the pipeline and clears all model state. The runtime
// stays started.
func (h *ModelHandler) Unload(ctx context.Context) error {
	h.opMu.Lock()
	defer h.opMu.Unlock()
	h.release(ctx)
	h.mu.Lock()
	h.err = ""
	h.mu.Unlock()
	return nil
}

// Close drains queued work (up to the drain timeout), releases the pipeline
// and stops the runtime. New work is rejected from the first call on.
func (h *ModelHandler) Close() error {
	h.mu.Lock()
	h.draining = true
	h.state = StateDraining
	h.mu.Unlock()

	deadline := time.Now().Add(h.drainTimeout)
	for len(h.queueCh) > 0 {
		if time.Now().After(deadline) {
			h.log.Warn().Int("queue", len(h.queueCh)).Msg("drain timeout; closing with work in flight")
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	h.opMu.Lock()
	defer h.opMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h.release(ctx)
	return h.backend.close()
}

// Ready reports whether the handler accepts new work.
func (h *ModelHandler) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return !h.draining
}

// BackendStarted reports whether the ML runtime has been started.
func (h *ModelHandler) BackendStarted() bool { return h.backend.started() }

// Snapshot returns a read-only view of the handler state.
func (h *ModelHandler) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Snapshot{State: h.state, Model: h.model, Family: h.family, LoRA: h.lora, Err: h.err}
}

// Status builds a detailed status response for /status.
func (h *ModelHandler) Status() types.StatusResponse {
	started := h.backend.started()
	h.mu.RLock()
	defer h.mu.RUnlock()
	return types.StatusResponse{
		State:            string(h.state),
		Model:            h.model,
		Family:           string(h.family),
		LoRA:             h.lora,
		BackendStarted:   started,
		QueueLen:         len(h.queueCh),
		Inflight:         len(h.genCh),
		MaxQueueDepth:    cap(h.queueCh) - 1,
		LoadsTotal:       h.loads,
		GenerationsTotal: h.generations,
		LastError:        h.err,
		UptimeSeconds:    int64(time.Since(h.startTime).Seconds()),
		ServerTimeUnix:   time.Now().Unix(),
	}
}
