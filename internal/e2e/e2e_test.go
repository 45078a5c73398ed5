package e2e

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"imaged/internal/manager"
	"imaged/internal/preview"
	"imaged/pkg/types"
)

func TestE2E_ListGenerateStatus(t *testing.T) {
	modelsDir, loraDir := createTempDirs(t, []string{"org/flux-mini", "org/sd-turbo"}, []string{"ink.safetensors"})
	srv, h := newServer(t, manager.Config{}, preview.Options{}, modelsDir, loraDir)

	resp, body := get(t, srv.URL+"/api/models")
	var models types.ModelsResponse
	if err := json.Unmarshal(body, &models); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("/api/models %d %s", resp.StatusCode, body)
	}
	if len(models.Models) != 2 {
		t.Fatalf("models=%v", models.Models)
	}

	// /status before anything is loaded: runtime not started yet.
	_, body = get(t, srv.URL+"/status")
	var st types.StatusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatal(err)
	}
	if st.BackendStarted || st.Model != "" || st.State != string(manager.StateIdle) {
		t.Fatalf("initial status=%+v", st)
	}

	resp, body = postJSON(t, srv.URL+"/api/generate", `{"model_name":"org/sd-turbo","lora_name":"ink.safetensors","prompt":"ink sketch","width":256,"height":256,"steps":2,"seed":5}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/api/generate %d %s", resp.StatusCode, body)
	}
	if !bytes.HasPrefix(body, []byte("\x89PNG")) || resp.Header.Get("X-Seed") != "5" || resp.Header.Get("X-Model-Family") != "sd" {
		t.Fatalf("bad response headers=%v", resp.Header)
	}
	snap := h.Snapshot()
	if snap.Model != "org/sd-turbo" || !strings.HasSuffix(snap.LoRA, "ink.safetensors") {
		t.Fatalf("snapshot=%+v", snap)
	}

	// Switching model clears the adapter.
	resp, body = postJSON(t, srv.URL+"/api/generate", `{"model_name":"org/flux-mini","prompt":"a quiet harbor","width":256,"height":256,"steps":1}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/api/generate flux %d %s", resp.StatusCode, body)
	}
	if snap := h.Snapshot(); snap.Model != "org/flux-mini" || snap.LoRA != "" || snap.Family != manager.FamilyFlux {
		t.Fatalf("snapshot after switch=%+v", snap)
	}

	_, body = get(t, srv.URL+"/status")
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatal(err)
	}
	if !st.BackendStarted || st.LoadsTotal != 2 || st.GenerationsTotal != 2 {
		t.Fatalf("status=%+v", st)
	}
}

func TestE2E_ValidationAndLoRANames(t *testing.T) {
	modelsDir, loraDir := createTempDirs(t, []string{"org/sd-turbo"}, nil)
	srv, _ := newServer(t, manager.Config{}, preview.Options{}, modelsDir, loraDir)

	cases := map[string]string{
		"blank prompt":  `{"model_name":"org/sd-turbo","prompt":"  "}`,
		"steps":         `{"model_name":"org/sd-turbo","prompt":"x","steps":51}`,
		"width":         `{"model_name":"org/sd-turbo","prompt":"x","width":128}`,
		"lora escape":   `{"model_name":"org/sd-turbo","prompt":"x","lora_name":"../secret.safetensors"}`,
		"missing model": `{"prompt":"x"}`,
	}
	for name, payload := range cases {
		resp, body := postJSON(t, srv.URL+"/api/generate", payload)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status=%d body=%s", name, resp.StatusCode, body)
		}
		var e types.ErrorResponse
		if err := json.Unmarshal(body, &e); err != nil || e.Detail == "" {
			t.Fatalf("%s: body=%s", name, body)
		}
	}
}

func TestE2E_ModelLoadFailure500(t *testing.T) {
	modelsDir, loraDir := createTempDirs(t, nil, nil)
	srv, h := newServer(t, manager.Config{}, preview.Options{FailModels: []string{"org/missing"}}, modelsDir, loraDir)
	resp, body := postJSON(t, srv.URL+"/api/generate", `{"model_name":"org/missing","prompt":"x"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	if snap := h.Snapshot(); snap.Model != "" || snap.State != manager.StateError {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestE2E_Backpressure429(t *testing.T) {
	modelsDir, loraDir := createTempDirs(t, []string{"org/sd-turbo"}, nil)
	cfg := manager.Config{MaxQueueDepth: 1, MaxWait: 50 * time.Millisecond}
	srv, h := newServer(t, cfg, preview.Options{Delay: 50 * time.Millisecond}, modelsDir, loraDir)

	var wg sync.WaitGroup
	wg.Add(1)
	var slowStatus int
	go func() {
		defer wg.Done()
		resp, err := http.Post(srv.URL+"/api/generate", "application/json",
			strings.NewReader(`{"model_name":"org/sd-turbo","prompt":"slow","width":256,"height":256,"steps":20}`))
		if err != nil {
			return
		}
		_ = resp.Body.Close()
		slowStatus = resp.StatusCode
	}()
	waitFor(t, "first request to hold the pipeline", func() bool { return h.Status().Inflight == 1 })

	resp, body := postJSON(t, srv.URL+"/api/generate", `{"model_name":"org/sd-turbo","prompt":"fast","width":256,"height":256,"steps":1}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d %s", resp.StatusCode, body)
	}
	wg.Wait()
	if slowStatus != http.StatusOK {
		t.Fatalf("slow request status=%d", slowStatus)
	}
}

func TestE2E_UIFormRoundTrip(t *testing.T) {
	modelsDir, loraDir := createTempDirs(t, []string{"Qwen/Qwen-Image"}, nil)
	srv, _ := newServer(t, manager.Config{}, preview.Options{}, modelsDir, loraDir)

	resp, body := get(t, srv.URL+"/")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Qwen/Qwen-Image") {
		t.Fatalf("/ %d", resp.StatusCode)
	}
	form := url.Values{
		"model_name": {"Qwen/Qwen-Image"},
		"prompt":     {"a sign that says hello"},
		"resolution": {"512x512"},
		"steps":      {"1"},
		"seed":       {"9"},
	}
	resp, err := http.PostForm(srv.URL+"/ui/generate", form)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "data:image/png;base64,") || !strings.Contains(buf.String(), "<dd>9</dd>") {
		t.Fatalf("ui result missing: %d", resp.StatusCode)
	}
}
