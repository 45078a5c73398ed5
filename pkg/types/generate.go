package types

import (
	"errors"
	"fmt"
	"strings"
)

// NoLoRA is the adapter name meaning "no adapter".
const NoLoRA = "None"

// Parameter bounds and defaults for GenerateRequest.
const (
	MinSteps = 1
	MaxSteps = 50

	MinImageSize = 256
	MaxImageSize = 2048

	DefaultSteps     = 8
	DefaultImageSize = 1024
	DefaultLoRAScale = 0.7
	RandomSeed       = -1
)

// ErrInvalidRequest is wrapped by every validation error.
var ErrInvalidRequest = errors.New("invalid request")

// GenerateRequest is the payload of POST /api/generate.
type GenerateRequest struct {
	// Pretrained weight repository to use. Loaded on demand.
	// example: Disty0/Z-Image-Turbo-SDNQ-int8
	ModelName string `json:"model_name" example:"Disty0/Z-Image-Turbo-SDNQ-int8"`
	// File name of an adapter in the LoRA directory, or "None".
	// example: None
	LoRAName string `json:"lora_name" example:"None"`
	// Adapter strength applied at generation time.
	// example: 0.7
	LoRAScale float64 `json:"lora_scale" example:"0.7"`
	// example: a lighthouse on a cliff at dusk, cinematic lighting
	Prompt string `json:"prompt" example:"a lighthouse on a cliff at dusk, cinematic lighting"`
	// Ignored by flux models.
	NegativePrompt string `json:"negative_prompt" example:""`
	// Number of denoising steps (1-50).
	// example: 8
	Steps int `json:"steps" example:"8"`
	// Ignored by flux models.
	// example: 0
	GuidanceScale float64 `json:"guidance_scale" example:"0"`
	// example: 1024
	Width int `json:"width" example:"1024"`
	// example: 1024
	Height int `json:"height" example:"1024"`
	// -1 picks a random seed; the seed used is returned in X-Seed.
	// example: -1
	Seed int64 `json:"seed" example:"-1"`
}

// DefaultGenerateRequest returns a request with every optional field set to
// its default. Decode JSON on top of it so omitted fields keep their default.
func DefaultGenerateRequest() GenerateRequest {
	return GenerateRequest{
		LoRAName:  NoLoRA,
		LoRAScale: DefaultLoRAScale,
		Steps:     DefaultSteps,
		Width:     DefaultImageSize,
		Height:    DefaultImageSize,
		Seed:      RandomSeed,
	}
}

// Validate checks required fields and range constraints.
func (r GenerateRequest) Validate() error {
	if strings.TrimSpace(r.ModelName) == "" {
		return fmt.Errorf("%w: model_name is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	if r.Steps < MinSteps || r.Steps > MaxSteps {
		return fmt.Errorf("%w: steps %d must be between %d and %d", ErrInvalidRequest, r.Steps, MinSteps, MaxSteps)
	}
	if r.Width < MinImageSize || r.Width > MaxImageSize {
		return fmt.Errorf("%w: width %d must be between %d and %d", ErrInvalidRequest, r.Width, MinImageSize, MaxImageSize)
	}
	if r.Height < MinImageSize || r.Height > MaxImageSize {
		return fmt.Errorf("%w: height %d must be between %d and %d", ErrInvalidRequest, r.Height, MinImageSize, MaxImageSize)
	}
	return nil
}

// WantsLoRA reports whether the request names an adapter.
func (r GenerateRequest) WantsLoRA() bool {
	n := strings.TrimSpace(r.LoRAName)
	return n != "" && n != NoLoRA
}
