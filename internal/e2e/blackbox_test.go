package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"imaged/pkg/types"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func projectRootFromThisFile(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// <root>/internal/e2e/blackbox_test.go
	return filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
}

func buildBinary(t *testing.T) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "imaged")
	cmd := exec.Command("go", "build", "-o", bin, "./cmd/imaged")
	cmd.Dir = projectRootFromThisFile(t)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("go build failed: %v\n%s", err, out)
	}
	return bin
}

type serverProc struct {
	cmd  *exec.Cmd
	base string
	done chan error
}

func startServer(t *testing.T, bin string, args ...string) *serverProc {
	t.Helper()
	port := findFreePort(t)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	args = append([]string{"-addr", fmt.Sprintf("127.0.0.1:%d", port), "-backend", "preview", "-log-level", "warn"}, args...)
	cmd := exec.Command(bin, args...)
	cmd.Dir = t.TempDir()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	sp := &serverProc{cmd: cmd, base: base, done: make(chan error, 1)}
	go func() { sp.done <- cmd.Wait() }()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		<-sp.done
	})

	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return sp
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not become healthy in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestBlackbox_Flow(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the server binary")
	}
	bin := buildBinary(t)
	modelsDir, loraDir := createTempDirs(t, []string{"org/sd-turbo", "org/flux-mini"}, []string{"ink.safetensors"})
	sp := startServer(t, bin, "-models-dir", modelsDir, "-lora-dir", loraDir, "-cache-dir", t.TempDir())

	resp, body := get(t, sp.base+"/api/models")
	var models types.ModelsResponse
	if err := json.Unmarshal(body, &models); err != nil || len(models.Models) != 2 {
		t.Fatalf("/api/models %d %s", resp.StatusCode, body)
	}
	resp, body = get(t, sp.base+"/api/loras")
	var loras types.LoRAsResponse
	if err := json.Unmarshal(body, &loras); err != nil || len(loras.LoRAs) != 2 || loras.LoRAs[0] != types.NoLoRA {
		t.Fatalf("/api/loras %d %s", resp.StatusCode, body)
	}

	resp, body = postJSON(t, sp.base+"/api/generate", `{"model_name":"org/sd-turbo","lora_name":"ink.safetensors","prompt":"ink","width":256,"height":256,"steps":1,"seed":3}`)
	if resp.StatusCode != http.StatusOK || !bytes.HasPrefix(body, []byte("\x89PNG")) {
		t.Fatalf("/api/generate %d %q", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Seed") != "3" {
		t.Fatalf("X-Seed=%q", resp.Header.Get("X-Seed"))
	}

	resp, body = get(t, sp.base+"/status")
	var st types.StatusResponse
	if err := json.Unmarshal(body, &st); err != nil || st.Model != "org/sd-turbo" || st.GenerationsTotal != 1 {
		t.Fatalf("/status %d %s", resp.StatusCode, body)
	}

	resp, body = postJSON(t, sp.base+"/shutdown", `{}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/shutdown %d %s", resp.StatusCode, body)
	}
	select {
	case err := <-sp.done:
		if err != nil {
			t.Fatalf("server exited with %v", err)
		}
		sp.done <- nil
	case <-time.After(15 * time.Second):
		t.Fatal("server did not exit after /shutdown")
	}
}

func TestBlackbox_GenerateValidation400(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the server binary")
	}
	bin := buildBinary(t)
	modelsDir, loraDir := createTempDirs(t, []string{"org/sd-turbo"}, nil)
	sp := startServer(t, bin, "-models-dir", modelsDir, "-lora-dir", loraDir, "-cache-dir", t.TempDir())

	resp, body := postJSON(t, sp.base+"/api/generate", `{"model_name":"org/sd-turbo","prompt":""}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", resp.StatusCode, body)
	}
	var e types.ErrorResponse
	if err := json.Unmarshal(body, &e); err != nil || e.Detail == "" || e.Code != http.StatusBadRequest {
		t.Fatalf("error body=%s", body)
	}
}
