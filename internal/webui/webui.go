// Package webui serves the browser front ends: a server-rendered form that
// calls the model handler in-process, and a static page driving the JSON API.
package webui

import (
	"bytes"
	"context"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"imaged/internal/httpapi"
	"imaged/internal/manager"
	"imaged/pkg/types"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var pageTmpl = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// Resolutions offered by the form, as WxH.
var Resolutions = []string{"1024x1024", "768x1024", "1024x768", "832x1216", "1216x832", "512x512"}

// Service is the subset of the model handler the UI needs.
type Service interface {
	ListModels() ([]string, error)
	ListLoRAs() ([]string, error)
	Submit(ctx context.Context, req types.GenerateRequest) (*manager.Image, error)
}

// Handler renders the UI.
type Handler struct {
	svc          Service
	log          zerolog.Logger
	defaultModel string
	router       chi.Router
}

// New returns the UI router. It owns /, /ui/*, /app and /static/*.
// defaultModel is preselected when it is installed.
func New(svc Service, log zerolog.Logger, defaultModel string) *Handler {
	h := &Handler{svc: svc, log: log.With().Str("component", "webui").Logger(), defaultModel: defaultModel}
	r := chi.NewRouter()
	r.Get("/", h.index)
	r.Post("/ui/generate", h.generate)
	r.Get("/app", h.app)
	static, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) { h.router.ServeHTTP(w, r) }

// page is the template data of the form.
type page struct {
	Models      []string
	LoRAs       []string
	Resolutions []string
	Form        form
	Guide       string
	Family      string
	Error       string
	Result      *result
}

type form struct {
	Model          string
	LoRA           string
	LoRAScale      float64
	Prompt         string
	NegativePrompt string
	Resolution     string
	Steps          int
	GuidanceScale  float64
	Seed           int64
}

type result struct {
	DataURI       template.URL
	Prompt        string
	Seed          int64
	Steps         int
	GuidanceScale float64
	Family        string
}

func defaultForm() form {
	d := types.DefaultGenerateRequest()
	return form{
		LoRA:          d.LoRAName,
		LoRAScale:     d.LoRAScale,
		Resolution:    fmt.Sprintf("%dx%d", d.Width, d.Height),
		Steps:         d.Steps,
		GuidanceScale: d.GuidanceScale,
		Seed:          d.Seed,
	}
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	f := defaultForm()
	if m := r.URL.Query().Get("model"); m != "" {
		f.Model = m
	}
	h.render(w, http.StatusOK, h.newPage(f))
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		p := h.newPage(defaultForm())
		p.Error = "invalid form: " + err.Error()
		h.render(w, http.StatusBadRequest, p)
		return
	}
	f, req, err := parseForm(r)
	p := h.newPage(f)
	if err != nil {
		p.Error = err.Error()
		h.render(w, http.StatusBadRequest, p)
		return
	}
	ctx, cancel := httpapi.GenerationContext(r)
	defer cancel()
	img, err := h.svc.Submit(ctx, req)
	if err != nil {
		h.log.Warn().Err(err).Str("model", req.ModelName).Msg("ui generate failed")
		p.Error = err.Error()
		h.render(w, http.StatusOK, p)
		return
	}
	p.Form.Seed = img.Seed
	p.Result = &result{
		DataURI:       template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(img.PNG)),
		Prompt:        req.Prompt,
		Seed:          img.Seed,
		Steps:         req.Steps,
		GuidanceScale: req.GuidanceScale,
		Family:        string(img.Family),
	}
	h.render(w, http.StatusOK, p)
}

func (h *Handler) app(w http.ResponseWriter, r *http.Request) {
	b, err := staticFS.ReadFile("static/app.html")
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(b)
}

func (h *Handler) newPage(f form) page {
	p := page{Resolutions: Resolutions, Form: f}
	var err error
	if p.Models, err = h.svc.ListModels(); err != nil {
		h.log.Warn().Err(err).Msg("list models")
	}
	if p.LoRAs, err = h.svc.ListLoRAs(); err != nil {
		h.log.Warn().Err(err).Msg("list loras")
	}
	if p.Form.Model == "" {
		p.Form.Model = h.pickModel(p.Models)
	}
	fam := manager.DetectFamily(p.Form.Model)
	p.Family = string(fam)
	p.Guide = fam.PromptGuide()
	return p
}

func (h *Handler) pickModel(models []string) string {
	for _, m := range models {
		if m == h.defaultModel {
			return m
		}
	}
	if len(models) > 0 {
		return models[0]
	}
	return ""
}

func (h *Handler) render(w http.ResponseWriter, status int, p page) {
	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, p); err != nil {
		h.log.Error().Err(err).Msg("render page")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// parseForm maps the posted form onto a request. The returned form echoes
// the input back even when it is invalid.
func parseForm(r *http.Request) (form, types.GenerateRequest, error) {
	req := types.DefaultGenerateRequest()
	f := defaultForm()
	f.Model = r.PostFormValue("model_name")
	f.LoRA = orString(r.PostFormValue("lora_name"), types.NoLoRA)
	f.Prompt = r.PostFormValue("prompt")
	f.NegativePrompt = r.PostFormValue("negative_prompt")
	f.Resolution = orString(r.PostFormValue("resolution"), f.Resolution)

	var err error
	if f.LoRAScale, err = floatField(r, "lora_scale", f.LoRAScale); err != nil {
		return f, req, err
	}
	if f.Steps, err = intField(r, "steps", f.Steps); err != nil {
		return f, req, err
	}
	if f.GuidanceScale, err = floatField(r, "guidance_scale", f.GuidanceScale); err != nil {
		return f, req, err
	}
	seed, err := intField(r, "seed", int(f.Seed))
	if err != nil {
		return f, req, err
	}
	f.Seed = int64(seed)
	width, height, err := ParseResolution(f.Resolution)
	if err != nil {
		return f, req, err
	}

	req.ModelName = f.Model
	req.LoRAName = f.LoRA
	req.LoRAScale = f.LoRAScale
	req.Prompt = f.Prompt
	req.NegativePrompt = f.NegativePrompt
	req.Steps = f.Steps
	req.GuidanceScale = f.GuidanceScale
	req.Width = width
	req.Height = height
	req.Seed = f.Seed
	return f, req, nil
}

// ParseResolution splits "WxH".
func ParseResolution(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("%w: resolution %q must be WxH", types.ErrInvalidRequest, s)
	}
	w, err1 := strconv.Atoi(ws)
	h, err2 := strconv.Atoi(hs)
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("%w: resolution %q must be WxH", types.ErrInvalidRequest, s)
	}
	return w, h, nil
}

func intField(r *http.Request, name string, def int) (int, error) {
	v := strings.TrimSpace(r.PostFormValue(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%w: %s must be an integer", types.ErrInvalidRequest, name)
	}
	return n, nil
}

func floatField(r *http.Request, name string, def float64) (float64, error) {
	v := strings.TrimSpace(r.PostFormValue(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("%w: %s must be a number", types.ErrInvalidRequest, name)
	}
	return n, nil
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
