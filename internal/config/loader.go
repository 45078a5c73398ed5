package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables that override defaults.
const EnvPrefix = "IMAGED_"

// Config holds runtime parameters for the service.
type Config struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir    string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	LoRADir      string `json:"lora_dir" yaml:"lora_dir" toml:"lora_dir"`
	CacheDir     string `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`
	DefaultModel string `json:"default_model" yaml:"default_model" toml:"default_model"`

	// Backend is "diffusers" or "preview".
	Backend            string `json:"backend" yaml:"backend" toml:"backend"`
	Python             string `json:"python" yaml:"python" toml:"python"`
	WorkerPort         int    `json:"worker_port" yaml:"worker_port" toml:"worker_port"`
	WorkerStartTimeout int    `json:"worker_start_timeout_seconds" yaml:"worker_start_timeout_seconds" toml:"worker_start_timeout_seconds"`

	MaxQueueDepth   int   `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWaitSeconds  int   `json:"max_wait_seconds" yaml:"max_wait_seconds" toml:"max_wait_seconds"`
	GenerateTimeout int   `json:"generate_timeout_seconds" yaml:"generate_timeout_seconds" toml:"generate_timeout_seconds"`
	MaxBodyBytes    int64 `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`

	LogLevel    string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFile     string   `json:"log_file" yaml:"log_file" toml:"log_file"`
	CORSEnabled bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Defaults returns the configuration used when nothing else is specified.
func Defaults() Config {
	return Config{
		Addr:               ":8888",
		ModelsDir:          "~/AI-models/",
		LoRADir:            "~/AI-models/lora/",
		CacheDir:           "~/.cache/imaged",
		Backend:            "diffusers",
		WorkerStartTimeout: 600,
		MaxQueueDepth:      8,
		MaxWaitSeconds:     60,
		GenerateTimeout:    900,
		MaxBodyBytes:       1 << 20,
		LogLevel:           "info",
	}
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) { return LoadOnto(path, Config{}) }

// LoadOnto decodes the file at path on top of base. Only keys present in the
// file replace base values, so an explicit 0, "" or false in the file wins.
func LoadOnto(path string, base Config) (Config, error) {
	cfg := base
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from IMAGED_* variables found through lookup
// (os.LookupEnv in production). Unparseable numbers are reported.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"ADDR":          &c.Addr,
		"MODELS_DIR":    &c.ModelsDir,
		"LORA_DIR":      &c.LoRADir,
		"CACHE_DIR":     &c.CacheDir,
		"DEFAULT_MODEL": &c.DefaultModel,
		"BACKEND":       &c.Backend,
		"PYTHON":        &c.Python,
		"LOG_LEVEL":     &c.LogLevel,
		"LOG_FILE":      &c.LogFile,
	}
	for k, dst := range str {
		if v, ok := lookup(EnvPrefix + k); ok && v != "" {
			*dst = v
		}
	}
	ints := map[string]*int{
		"WORKER_PORT":                  &c.WorkerPort,
		"WORKER_START_TIMEOUT_SECONDS": &c.WorkerStartTimeout,
		"MAX_QUEUE_DEPTH":              &c.MaxQueueDepth,
		"MAX_WAIT_SECONDS":             &c.MaxWaitSeconds,
		"GENERATE_TIMEOUT_SECONDS":     &c.GenerateTimeout,
	}
	for k, dst := range ints {
		v, ok := lookup(EnvPrefix + k)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, k, err)
		}
		*dst = n
	}
	if v, ok := lookup(EnvPrefix + "MAX_BODY_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_BODY_BYTES: %w", EnvPrefix, err)
		}
		c.MaxBodyBytes = n
	}
	if v, ok := lookup(EnvPrefix + "CORS_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sCORS_ENABLED: %w", EnvPrefix, err)
		}
		c.CORSEnabled = b
	}
	if v, ok := lookup(EnvPrefix + "CORS_ORIGINS"); ok && v != "" {
		c.CORSOrigins = SplitCSV(v)
	}
	return nil
}

// Validate checks values that cannot be repaired by defaults.
func (c Config) Validate() error {
	switch c.Backend {
	case "diffusers", "preview":
	default:
		return fmt.Errorf("unknown backend %q (want diffusers or preview)", c.Backend)
	}
	if c.MaxQueueDepth < 0 {
		return fmt.Errorf("max_queue_depth must be >= 0")
	}
	if c.MaxWaitSeconds < 0 || c.GenerateTimeout < 0 || c.WorkerStartTimeout < 0 {
		return fmt.Errorf("timeouts must be >= 0")
	}
	if c.WorkerPort < 0 || c.WorkerPort > 65535 {
		return fmt.Errorf("worker_port out of range: %d", c.WorkerPort)
	}
	return nil
}

// MaxWait returns MaxWaitSeconds as a duration.
func (c Config) MaxWait() time.Duration { return time.Duration(c.MaxWaitSeconds) * time.Second }

// GenerateTimeoutDuration returns GenerateTimeout as a duration; zero disables it.
func (c Config) GenerateTimeoutDuration() time.Duration {
	return time.Duration(c.GenerateTimeout) * time.Second
}

// WorkerStartTimeoutDuration returns WorkerStartTimeout as a duration.
func (c Config) WorkerStartTimeoutDuration() time.Duration {
	return time.Duration(c.WorkerStartTimeout) * time.Second
}

// SplitCSV splits a comma-separated list, trimming blanks.
func SplitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
