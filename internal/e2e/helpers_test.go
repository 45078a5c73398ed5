package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"imaged/internal/httpapi"
	"imaged/internal/manager"
	"imaged/internal/preview"
	"imaged/internal/registry"
	"imaged/internal/webui"
)

// createTempDirs lays out a HF-style models dir and a LoRA dir.
func createTempDirs(t *testing.T, models []string, loras []string) (string, string) {
	t.Helper()
	root := t.TempDir()
	modelsDir := filepath.Join(root, "models")
	loraDir := filepath.Join(root, "lora")
	for _, m := range models {
		p := filepath.Join(modelsDir, "models--"+strings.ReplaceAll(m, "/", "--"))
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", p, err)
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
	return modelsDir, loraDir
}

// newServer wires the API and UI to a handler over a preview backend.
func newServer(t *testing.T, cfg manager.Config, popts preview.Options, modelsDir, loraDir string) (*httptest.Server, *manager.ModelHandler) {
	t.Helper()
	log := zerolog.Nop()
	cfg.Backend = preview.Factory(popts)
	cfg.Catalog = registry.New(modelsDir, loraDir)
	cfg.Logger = &log
	h := manager.New(cfg)
	srv := httptest.NewServer(httpapi.NewMux(h, webui.New(h, log, "")))
	t.Cleanup(func() {
		srv.Close()
		_ = h.Close()
	})
	return srv, h
}

func postJSON(t *testing.T, url, payload string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewBufferString(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
