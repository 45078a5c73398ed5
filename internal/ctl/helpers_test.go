package ctl

import (
	"bytes"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"imaged/internal/httpapi"
	"imaged/internal/manager"
	"imaged/internal/preview"
	"imaged/internal/registry"
)

// quiet silences command output for the duration of the test and returns
// what was written to stdout.
func quiet(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	oldOut, oldErr := stdout, stderr
	stdout, stderr = &buf, io.Discard
	t.Cleanup(func() { stdout, stderr = oldOut, oldErr })
	return &buf
}

// testServer runs the real HTTP API over a preview backend. models are
// installed as HF cache dirs and loras as empty files.
func testServer(t *testing.T, models, loras []string) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	modelsDir := filepath.Join(dir, "models")
	loraDir := filepath.Join(dir, "lora")
	for _, m := range models {
		name := "models--" + strings.ReplaceAll(m, "/", "--")
		if err := os.MkdirAll(filepath.Join(modelsDir, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(loraDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, l := range loras {
		if err := os.WriteFile(filepath.Join(loraDir, l), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	log := zerolog.Nop()
	h := manager.New(manager.Config{
		Backend: preview.Factory(preview.Options{}),
		Catalog: registry.New(modelsDir, loraDir),
		Logger:  &log,
	})
	srv := httptest.NewServer(httpapi.NewMux(h, nil))
	t.Cleanup(func() {
		srv.Close()
		_ = h.Close()
	})
	return srv
}
