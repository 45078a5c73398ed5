package webui

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"imaged/internal/httpapi"
	"imaged/internal/manager"
	"imaged/pkg/types"
)

type fakeService struct {
	models []string
	loras  []string
	err    error
	got    *types.GenerateRequest
	// wait blocks Submit until its context ends.
	wait bool
}

func (f *fakeService) ListModels() ([]string, error) { return f.models, nil }
func (f *fakeService) ListLoRAs() ([]string, error)  { return f.loras, nil }
func (f *fakeService) Submit(ctx context.Context, req types.GenerateRequest) (*manager.Image, error) {
	f.got = &req
	if f.wait {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &manager.Image{PNG: []byte("png"), Seed: 77, Family: manager.DetectFamily(req.ModelName)}, nil
}

func newTestUI(svc *fakeService) http.Handler {
	return New(svc, zerolog.Nop(), "")
}

func postForm(h http.Handler, v url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/ui/generate", strings.NewReader(v.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestIndexListsModelsAndGuide(t *testing.T) {
	svc := &fakeService{models: []string{"black-forest-labs/FLUX.1-schnell", "a/sd"}, loras: []string{types.NoLoRA, "pixel.safetensors"}}
	w := httptest.NewRecorder()
	newTestUI(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"FLUX.1-schnell", "pixel.safetensors", "1024x1024", manager.FamilyFlux.PromptGuide()} {
		if !strings.Contains(body, want) {
			t.Fatalf("page missing %q", want)
		}
	}
}

func TestIndexGuideFollowsSelectedModel(t *testing.T) {
	svc := &fakeService{models: []string{"a/flux", "Qwen/Qwen-Image"}}
	w := httptest.NewRecorder()
	newTestUI(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?model=Qwen/Qwen-Image", nil))
	if !strings.Contains(w.Body.String(), manager.FamilyQwen.PromptGuide()) {
		t.Fatal("qwen guide missing")
	}
}

func TestIndexPreselectsDefaultModel(t *testing.T) {
	svc := &fakeService{models: []string{"a/sd", "Qwen/Qwen-Image"}}
	w := httptest.NewRecorder()
	New(svc, zerolog.Nop(), "Qwen/Qwen-Image").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(w.Body.String(), `<option value="Qwen/Qwen-Image" selected>`) {
		t.Fatal("default model not selected")
	}
}

func TestGenerateRendersImage(t *testing.T) {
	svc := &fakeService{models: []string{"a/b"}}
	w := postForm(newTestUI(svc), url.Values{
		"model_name":     {"a/b"},
		"lora_name":      {"pixel.safetensors"},
		"lora_scale":     {"0.5"},
		"prompt":         {"a red fox"},
		"resolution":     {"768x1024"},
		"steps":          {"12"},
		"guidance_scale": {"3.5"},
		"seed":           {"-1"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	got := svc.got
	if got == nil {
		t.Fatal("Submit not called")
	}
	if got.Width != 768 || got.Height != 1024 || got.Steps != 12 || got.LoRAScale != 0.5 || got.GuidanceScale != 3.5 || got.LoRAName != "pixel.safetensors" {
		t.Fatalf("request=%+v", *got)
	}
	body := w.Body.String()
	if !strings.Contains(body, "data:image/png;base64,cG5n") {
		t.Fatal("missing data URI")
	}
	if !strings.Contains(body, "<dd>77</dd>") || !strings.Contains(body, "a red fox") {
		t.Fatal("missing image info")
	}
}

func TestGenerateShowsError(t *testing.T) {
	svc := &fakeService{models: []string{"a/b"}, err: errors.New("cuda out of memory")}
	w := postForm(newTestUI(svc), url.Values{"model_name": {"a/b"}, "prompt": {"x"}})
	if !strings.Contains(w.Body.String(), "cuda out of memory") {
		t.Fatalf("error not shown: %s", w.Body.String())
	}
}

func TestGenerateRejectsBadNumbers(t *testing.T) {
	svc := &fakeService{}
	w := postForm(newTestUI(svc), url.Values{"model_name": {"a/b"}, "prompt": {"x"}, "steps": {"many"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	if svc.got != nil {
		t.Fatal("Submit should not be called")
	}
}

func TestParseResolution(t *testing.T) {
	w, h, err := ParseResolution("832x1216")
	if err != nil || w != 832 || h != 1216 {
		t.Fatalf("got %d %d %v", w, h, err)
	}
	if _, _, err := ParseResolution("big"); !errors.Is(err, types.ErrInvalidRequest) {
		t.Fatalf("err=%v", err)
	}
}

func TestAppAndStatic(t *testing.T) {
	ui := newTestUI(&fakeService{})
	w := httptest.NewRecorder()
	ui.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/app", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/static/app.js") {
		t.Fatalf("app status=%d", w.Code)
	}
	w = httptest.NewRecorder()
	ui.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/api/generate") {
		t.Fatalf("static status=%d", w.Code)
	}
}

func TestGenerateUsesGenerationTimeout(t *testing.T) {
	httpapi.SetGenerateTimeout(20 * time.Millisecond)
	t.Cleanup(func() { httpapi.SetGenerateTimeout(0) })
	svc := &fakeService{models: []string{"a/sd"}, wait: true}
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- postForm(newTestUI(svc), url.Values{"model_name": {"a/sd"}, "prompt": {"x"}}) }()
	select {
	case w := <-done:
		if !strings.Contains(w.Body.String(), context.DeadlineExceeded.Error()) {
			t.Fatal("timeout error not shown")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("UI generation ignored the generate timeout")
	}
}

func TestGenerateCanceledByServerShutdown(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	httpapi.SetBaseContext(base)
	t.Cleanup(func() { httpapi.SetBaseContext(nil) })
	svc := &fakeService{models: []string{"a/sd"}, wait: true}
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- postForm(newTestUI(svc), url.Values{"model_name": {"a/sd"}, "prompt": {"x"}}) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case w := <-done:
		if !strings.Contains(w.Body.String(), context.Canceled.Error()) {
			t.Fatal("cancellation not shown")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("UI generation survived base context cancel")
	}
}
