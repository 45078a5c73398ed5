package manager

import "context"

// AdapterName is the fixed adapter name every LoRA is loaded under.
const AdapterName = "default_lora"

// LoadSpec describes a pipeline to load.
type LoadSpec struct {
	Model    string
	Family   Family
	Quantize bool
	// Components to quantize when Quantize is set.
	QuantizeComponents []string
	CacheDir           string
}

// LoadReport carries non-fatal details of a successful load.
type LoadReport struct {
	Quantized bool
	Device    string
	Warnings  []string
}

// GenParams are the sampler arguments passed to a pipeline. A nil
// NegativePrompt or GuidanceScale means the argument is not passed at all.
type GenParams struct {
	Prompt         string
	NegativePrompt *string
	GuidanceScale  *float64
	Steps          int
	Width          int
	Height         int
	Seed           int64
}

// Backend is an ML runtime able to materialize pipelines.
type Backend interface {
	Load(ctx context.Context, spec LoadSpec) (Pipeline, LoadReport, error)
	Close() error
}

// Pipeline is a loaded model. Implementations need not be safe for
// concurrent use; ModelHandler serializes every call.
type Pipeline interface {
	LoadLoRA(ctx context.Context, path, adapter string) error
	DeleteAdapter(ctx context.Context, adapter string) error
	SetAdapterWeight(ctx context.Context, adapter string, weight float64) error
	DisableLoRA(ctx context.Context) error
	// Generate returns PNG-encoded bytes.
	Generate(ctx context.Context, p GenParams) ([]byte, error)
	Close(ctx context.Context) error
}

// BackendFactory starts a Backend. It runs at most once successfully.
type BackendFactory func(ctx context.Context) (Backend, error)
