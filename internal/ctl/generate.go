package ctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"imaged/internal/manager"
	"imaged/pkg/types"
)

// defaultNegativePrompt is used for sd models when none is given.
const defaultNegativePrompt = "blurry, low quality, deformed, ugly"

// GenerateOptions are the flags of `imagectl generate`.
type GenerateOptions struct {
	Model          string
	LoRA           string
	LoRAScale      float64
	Prompt         string
	NegativePrompt string
	Steps          int
	GuidanceScale  float64
	Width          int
	Height         int
	Seed           int64
	Output         string
	// Interactive enables prompting for missing values.
	Interactive bool
}

// DefaultGenerateOptions mirrors the API defaults.
func DefaultGenerateOptions() GenerateOptions {
	d := types.DefaultGenerateRequest()
	return GenerateOptions{
		LoRA:          types.NoLoRA,
		LoRAScale:     d.LoRAScale,
		Steps:         d.Steps,
		GuidanceScale: d.GuidanceScale,
		Width:         d.Width,
		Height:        d.Height,
		Seed:          d.Seed,
	}
}

// runGenerate is the API smoke test: pick a model, build the request, save
// the PNG. in is read only when opts.Interactive is set.
func runGenerate(ctx context.Context, c *Client, opts GenerateOptions, in io.Reader) (string, error) {
	p := newPrompter(in, stdout)
	if opts.Model == "" {
		models, err := c.Models(ctx)
		if err != nil {
			return "", err
		}
		if len(models) == 0 {
			return "", errors.New("no models installed on the server; download one into the models directory")
		}
		if !opts.Interactive {
			return "", errors.New("--model is required when stdin is not a terminal")
		}
		if opts.Model, err = p.choose("Select a model", models); err != nil {
			return "", err
		}
	}
	fam := manager.DetectFamily(opts.Model)
	info("   > model: %s (family: %s)", opts.Model, strings.ToUpper(string(fam)))

	heading("%s prompt guide", strings.ToUpper(string(fam)))
	printf("%s\n", fam.PromptGuide())
	if !fam.UsesNegativePrompt() {
		printf("Negative prompt and guidance scale are ignored.\n")
	}

	if opts.Prompt == "" {
		opts.Prompt = fam.DefaultPrompt()
		if opts.Interactive {
			var err error
			if opts.Prompt, err = p.line("Prompt", opts.Prompt); err != nil {
				return "", err
			}
		}
	}
	if fam == manager.FamilySD {
		if err := sdExtras(ctx, c, p, &opts); err != nil {
			return "", err
		}
	}

	req := types.GenerateRequest{
		ModelName:      opts.Model,
		LoRAName:       opts.LoRA,
		LoRAScale:      opts.LoRAScale,
		Prompt:         opts.Prompt,
		NegativePrompt: opts.NegativePrompt,
		Steps:          opts.Steps,
		GuidanceScale:  opts.GuidanceScale,
		Width:          opts.Width,
		Height:         opts.Height,
		Seed:           opts.Seed,
	}
	if err := req.Validate(); err != nil {
		return "", err
	}
	heading("Generating")
	debug("request: %+v", req)

	g, err := c.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	out := opts.Output
	if out == "" {
		out = outputName(opts.Model, opts.LoRA)
	}
	if err := os.WriteFile(out, g.PNG, 0o644); err != nil {
		return "", err
	}
	abs, _ := filepath.Abs(out)
	ok("Saved %s (seed %d, family %s, id %s)", abs, g.Seed, g.Family, g.GenerationID)
	return abs, nil
}

// sdExtras fills the sd-only negative prompt and LoRA fields.
func sdExtras(ctx context.Context, c *Client, p *prompter, opts *GenerateOptions) error {
	if opts.NegativePrompt == "" {
		opts.NegativePrompt = defaultNegativePrompt
		if opts.Interactive {
			var err error
			if opts.NegativePrompt, err = p.line("Negative prompt", defaultNegativePrompt); err != nil {
				return err
			}
		}
	}
	if !opts.Interactive || (opts.LoRA != "" && opts.LoRA != types.NoLoRA) {
		return nil
	}
	loras, err := c.LoRAs(ctx)
	if err != nil {
		return err
	}
	if len(loras) <= 1 {
		info("No LoRA adapters available.")
		return nil
	}
	sel, err := p.choose("Select a LoRA", loras)
	if err != nil || sel == types.NoLoRA {
		return err
	}
	opts.LoRA = sel
	s, err := p.line("LoRA scale", strconv.FormatFloat(opts.LoRAScale, 'g', -1, 64))
	if err != nil {
		return err
	}
	if f, perr := strconv.ParseFloat(s, 64); perr == nil {
		opts.LoRAScale = f
	}
	trigger, err := p.line(fmt.Sprintf("Trigger word for %s (optional)", strings.TrimSuffix(sel, ".safetensors")), "")
	if err != nil {
		return err
	}
	if trigger != "" {
		opts.Prompt += ", " + trigger
	}
	return nil
}

// outputName derives output_<model>_<lora>.png.
func outputName(model, lora string) string {
	m := strings.NewReplacer("/", "_", `\`, "_").Replace(model)
	if lora == "" {
		lora = types.NoLoRA
	}
	return fmt.Sprintf("output_%s_%s.png", m, strings.TrimSuffix(lora, ".safetensors"))
}
