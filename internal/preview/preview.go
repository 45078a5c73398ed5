// Package preview is a GPU-free manager.Backend. It renders a deterministic
// placeholder picture for a request: a gradient derived from the seed with
// the prompt drawn on top. It is used for UI work, demos and tests.
package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"imaged/internal/manager"
)

var textFont = mustLoadFont(goregular.TTF)

func mustLoadFont(b []byte) *opentype.Font {
	f, err := opentype.Parse(b)
	if err != nil {
		panic(err)
	}
	return f
}

// Options for New.
type Options struct {
	// Delay is slept per generation step, to emulate sampling time.
	Delay time.Duration
	// FailModels lists model names whose load fails, for testing.
	FailModels []string
}

// Backend is the preview manager.Backend.
type Backend struct {
	opts Options

	mu     sync.Mutex
	loaded string
}

// New returns a preview backend.
func New(opts Options) *Backend { return &Backend{opts: opts} }

// Factory returns a manager.BackendFactory for a preview backend.
func Factory(opts Options) manager.BackendFactory {
	return func(context.Context) (manager.Backend, error) { return New(opts), nil }
}

// Loaded returns the model of the live pipeline, if any.
func (b *Backend) Loaded() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded
}

func (b *Backend) Load(ctx context.Context, spec manager.LoadSpec) (manager.Pipeline, manager.LoadReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, manager.LoadReport{}, err
	}
	for _, m := range b.opts.FailModels {
		if m == spec.Model {
			return nil, manager.LoadReport{}, fmt.Errorf("%s: repository not found", spec.Model)
		}
	}
	b.mu.Lock()
	b.loaded = spec.Model
	b.mu.Unlock()
	rep := manager.LoadReport{Device: "cpu"}
	if spec.Quantize {
		rep.Warnings = append(rep.Warnings, "preview backend does not quantize")
	}
	return &pipeline{b: b, model: spec.Model, family: spec.Family, adapters: map[string]adapter{}}, rep, nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	b.loaded = ""
	b.mu.Unlock()
	return nil
}

type adapter struct {
	path   string
	weight float64
	active bool
}

type pipeline struct {
	b        *Backend
	model    string
	family   manager.Family
	adapters map[string]adapter
}

func (p *pipeline) LoadLoRA(ctx context.Context, path, name string) error {
	if !strings.HasSuffix(path, ".safetensors") {
		return fmt.Errorf("%s: not a safetensors file", path)
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}
	if _, ok := p.adapters[name]; ok {
		return fmt.Errorf("adapter %q already in use", name)
	}
	p.adapters[name] = adapter{path: path, weight: 1, active: true}
	return nil
}

func (p *pipeline) DeleteAdapter(ctx context.Context, name string) error {
	if _, ok := p.adapters[name]; !ok {
		return fmt.Errorf("adapter %q not loaded", name)
	}
	delete(p.adapters, name)
	return nil
}

func (p *pipeline) SetAdapterWeight(ctx context.Context, name string, w float64) error {
	a, ok := p.adapters[name]
	if !ok {
		return fmt.Errorf("adapter %q not loaded", name)
	}
	a.weight = w
	a.active = true
	p.adapters[name] = a
	return nil
}

func (p *pipeline) DisableLoRA(ctx context.Context) error {
	for k, a := range p.adapters {
		a.active = false
		p.adapters[k] = a
	}
	return nil
}

func (p *pipeline) Generate(ctx context.Context, gp manager.GenParams) ([]byte, error) {
	if gp.Width <= 0 || gp.Height <= 0 {
		return nil, errors.New("invalid image size")
	}
	if d := p.b.opts.Delay; d > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(gp.Steps) * d):
		}
	}
	tint := 0.0
	for _, a := range p.adapters {
		if a.active {
			tint += a.weight
		}
	}
	img := Render(gp.Seed, gp.Width, gp.Height, tint)
	caption := fmt.Sprintf("%s | seed %d | %d steps", p.model, gp.Seed, gp.Steps)
	drawText(img, gp.Prompt, caption)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *pipeline) Close(ctx context.Context) error {
	p.adapters = map[string]adapter{}
	p.b.mu.Lock()
	if p.b.loaded == p.model {
		p.b.loaded = ""
	}
	p.b.mu.Unlock()
	return nil
}

// Render returns the seed-derived gradient. tint shifts the palette
// towards magenta, so an active adapter is visible.
func Render(seed int64, w, h int, tint float64) *image.NRGBA {
	r := rand.New(rand.NewSource(seed))
	top := color.NRGBA{uint8(r.Intn(256)), uint8(r.Intn(256)), uint8(r.Intn(256)), 255}
	bottom := color.NRGBA{uint8(r.Intn(256)), uint8(r.Intn(256)), uint8(r.Intn(256)), 255}
	if tint > 0 {
		if tint > 1 {
			tint = 1
		}
		bottom.R = lerp(bottom.R, 255, tint)
		bottom.B = lerp(bottom.B, 255, tint)
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		t := float64(y) / float64(max(h-1, 1))
		c := color.NRGBA{lerp(top.R, bottom.R, t), lerp(top.G, bottom.G, t), lerp(top.B, bottom.B, t), 255}
		draw.Draw(img, image.Rect(0, y, w, y+1), &image.Uniform{c}, image.Point{}, draw.Src)
	}
	return img
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t)
}

// drawText writes the word-wrapped prompt in the upper part of the image
// and the caption at the bottom.
func drawText(img *image.NRGBA, prompt, caption string) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	size := float64(w) / 28
	// opentype.NewFace() never returns an error for a parsed font.
	face, _ := opentype.NewFace(textFont, &opentype.FaceOptions{Size: size, DPI: 72})
	defer face.Close()
	small, _ := opentype.NewFace(textFont, &opentype.FaceOptions{Size: size * 0.6, DPI: 72})
	defer small.Close()

	d := font.Drawer{Dst: img, Src: image.White, Face: face}
	margin := w / 20
	lineH := face.Metrics().Height.Ceil()
	y := margin + lineH
	for _, line := range wrap(&d, prompt, w-2*margin) {
		if y > h-2*lineH {
			break
		}
		d.Dot = fixed.P(margin, y)
		d.DrawString(line)
		y += lineH
	}
	d.Face = small
	d.Dot = fixed.P(margin, h-margin)
	d.DrawString(caption)
}

func wrap(d *font.Drawer, s string, width int) []string {
	var lines []string
	cur := ""
	for _, word := range strings.Fields(s) {
		next := word
		if cur != "" {
			next = cur + " " + word
		}
		if cur != "" && d.MeasureString(next).Ceil() > width {
			lines = append(lines, cur)
			cur = word
			continue
		}
		cur = next
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}
