package diffusers

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog"

	"imaged/internal/common/fsutil"
)

var (
	//go:embed worker.py
	workerPy []byte
	//go:embed requirements.txt
	requirementsTxt []byte
)

const (
	workerName = "worker.py"
	reqName    = "requirements.txt"
)

// env is a prepared python runtime: interpreter plus worker script.
type env struct {
	python string
	script string
	dir    string
}

func venvPython(venv string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(venv, "Scripts", "python.exe")
	}
	return filepath.Join(venv, "bin", "python3")
}

// prepareEnv writes the embedded worker into <cacheDir>/py. Without an
// explicit interpreter it also maintains a virtualenv there, re-running pip
// whenever the embedded requirements change.
func prepareEnv(ctx context.Context, cacheDir, python string, log zerolog.Logger) (env, error) {
	dir, err := fsutil.EnsureDir(filepath.Join(cacheDir, "py"))
	if err != nil {
		return env{}, fmt.Errorf("python cache dir: %w", err)
	}
	e := env{dir: dir, script: filepath.Join(dir, workerName)}
	if _, err := fsutil.WriteIfChanged(e.script, workerPy, 0o755); err != nil {
		return env{}, fmt.Errorf("write worker: %w", err)
	}
	if python != "" {
		e.python = python
		return e, nil
	}

	venv := filepath.Join(dir, "venv")
	e.python = venvPython(venv)
	reqPath := filepath.Join(dir, reqName)
	if fsutil.PathExists(filepath.Join(venv, "pyvenv.cfg")) && fsutil.SameContent(reqPath, requirementsTxt) {
		return e, nil
	}

	log.Info().Str("venv", venv).Msg("creating python virtualenv; this can take several minutes")
	if !fsutil.PathExists(filepath.Join(venv, "pyvenv.cfg")) {
		if err := runLogged(ctx, log, dir, hostPython(), "-m", "venv", venv); err != nil {
			return env{}, fmt.Errorf("create virtualenv: %w", err)
		}
	}
	// Write requirements only once pip succeeded so a failed install is retried.
	tmp := reqPath + ".new"
	if err := os.WriteFile(tmp, requirementsTxt, 0o644); err != nil {
		return env{}, err
	}
	if err := runLogged(ctx, log, dir, e.python, "-m", "pip", "install", "--upgrade", "-r", tmp); err != nil {
		return env{}, fmt.Errorf("pip install: %w", err)
	}
	if err := os.Rename(tmp, reqPath); err != nil {
		return env{}, err
	}
	return e, nil
}

func hostPython() string {
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}

func runLogged(ctx context.Context, log zerolog.Logger, dir, name string, args ...string) error {
	c := exec.CommandContext(ctx, name, args...)
	c.Dir = dir
	w := log.With().Str("cmd", filepath.Base(name)).Logger()
	c.Stdout = w
	c.Stderr = w
	return c.Run()
}
