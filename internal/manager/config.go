package manager

import (
	"time"

	"github.com/rs/zerolog"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxQueueDepth = 8
	defaultMaxWait       = 60 * time.Second
	defaultDrainTimeout  = 30 * time.Second
)

// Catalog lists what can be loaded. *registry.Registry implements it.
type Catalog interface {
	Models() ([]string, error)
	LoRAs() ([]string, error)
	ResolveLoRA(name string) (string, error)
}

// Config encapsulates all tunables for ModelHandler construction.
type Config struct {
	// Backend starts the ML runtime on first use.
	Backend  BackendFactory
	Catalog  Catalog
	CacheDir string

	MaxQueueDepth int
	MaxWait       time.Duration
	DrainTimeout  time.Duration

	Logger    *zerolog.Logger
	Publisher EventPublisher
	// Seed draws a seed for requests with a negative one. Defaults to crypto/rand.
	Seed func() (int64, error)
}
