// Package registry lists the models and LoRA adapters available on disk.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"imaged/internal/common/fsutil"
	"imaged/pkg/types"
)

const (
	cachePrefix = "models--"
	loraExt     = ".safetensors"
)

// ErrBadLoRAName is returned for adapter names that would escape the LoRA
// directory.
var ErrBadLoRAName = errors.New("invalid lora name")

// ScanModels lists the repo ids cached in dir using the Hugging Face cache
// layout: a directory "models--org--repo" becomes "org/repo". The directory
// is created if missing. The result is sorted.
func ScanModels(dir string) ([]string, error) {
	abs, err := fsutil.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	models := []string{}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), cachePrefix) {
			continue
		}
		id := strings.ReplaceAll(strings.TrimPrefix(e.Name(), cachePrefix), "--", "/")
		if id == "" {
			continue
		}
		models = append(models, id)
	}
	sort.Strings(models)
	return models, nil
}

// ScanLoRAs lists the *.safetensors files in dir, prefixed with the "None"
// choice. The directory is created if missing.
func ScanLoRAs(dir string) ([]string, error) {
	abs, err := fsutil.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), loraExt) {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return append([]string{types.NoLoRA}, files...), nil
}

// ResolveLoRA maps an adapter name from a request to a file path under dir.
// "None" and "" resolve to "" (no adapter). The file is not required to
// exist; a missing adapter surfaces later as a failed LoRA load.
func ResolveLoRA(dir, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == types.NoLoRA {
		return "", nil
	}
	if name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrBadLoRAName, name)
	}
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("abs path: %w", err)
	}
	return filepath.Join(abs, name), nil
}

// Registry binds the scan functions to configured directories.
type Registry struct {
	ModelsDir string
	LoRADir   string
}

// New returns a Registry for the given directories.
func New(modelsDir, loraDir string) *Registry {
	return &Registry{ModelsDir: modelsDir, LoRADir: loraDir}
}

func (r *Registry) Models() ([]string, error) { return ScanModels(r.ModelsDir) }

func (r *Registry) LoRAs() ([]string, error) { return ScanLoRAs(r.LoRADir) }

func (r *Registry) ResolveLoRA(name string) (string, error) { return ResolveLoRA(r.LoRADir, name) }
