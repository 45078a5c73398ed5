package manager

// State represents the lifecycle state of the handler.
type State string

const (
	StateIdle       State = "idle"
	StateLoading    State = "loading"
	StateReady      State = "ready"
	StateGenerating State = "generating"
	StateError      State = "error"
	StateDraining   State = "draining"
)

// Snapshot is a read-only projection of the handler state.
type Snapshot struct {
	State  State
	Model  string
	Family Family
	LoRA   string
	Err    string
}

// Params are the per-generation arguments of Generate.
type Params struct {
	Prompt         string
	NegativePrompt string
	Steps          int
	GuidanceScale  float64
	Width          int
	Height         int
	// Seed < 0 picks a random seed.
	Seed      int64
	LoRAScale float64
}

// DefaultParams mirrors the defaults of a direct handler call.
func DefaultParams() Params {
	return Params{Steps: 8, Width: 1024, Height: 1024, Seed: -1, LoRAScale: 0.8}
}

// Job is one complete request: model, optional LoRA path and sampling
// parameters.
type Job struct {
	Model  string
	LoRA   string
	Params Params
}

// Image is a generated picture and the settings that produced it.
type Image struct {
	PNG    []byte
	Seed   int64
	Width  int
	Height int
	Steps  int
	Model  string
	Family Family
	LoRA   string
}
