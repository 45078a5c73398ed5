package manager

import "strings"

// Family is the architecture family of a model, derived from its name.
type Family string

const (
	FamilySD   Family = "sd"
	FamilyFlux Family = "flux"
	FamilyQwen Family = "qwen"
)

// QuantizeComponents are the pipeline components SDNQ quantized matmul is
// applied to when a model requests it.
var QuantizeComponents = []string{"transformer", "text_encoder", "text_encoder_2", "unet"}

// DetectFamily classifies a model name by case-insensitive substring match.
// "flux" wins over "qwen"; everything else is sd.
func DetectFamily(model string) Family {
	s := strings.ToLower(model)
	switch {
	case strings.Contains(s, "flux"):
		return FamilyFlux
	case strings.Contains(s, "qwen"):
		return FamilyQwen
	default:
		return FamilySD
	}
}

// IsSDNQ reports whether the model name asks for SDNQ quantization.
func IsSDNQ(model string) bool {
	return strings.Contains(strings.ToLower(model), "sdnq")
}

// UsesNegativePrompt is false for flux, whose pipelines ignore it.
func (f Family) UsesNegativePrompt() bool { return f != FamilyFlux }

// UsesGuidance is false for flux, whose pipelines ignore guidance_scale.
func (f Family) UsesGuidance() bool { return f != FamilyFlux }

// PromptGuide describes how prompts should be written for the family.
func (f Family) PromptGuide() string {
	switch f {
	case FamilyFlux:
		return "FLUX understands natural language. Describe the scene in full sentences: subject, setting, lighting and mood."
	case FamilyQwen:
		return "Qwen models follow instructions. Write the prompt as a clear request, including any text that must appear in the image."
	default:
		return "Stable Diffusion works best with comma-separated keywords: subject, style, quality tags."
	}
}

// DefaultPrompt is a sample prompt that suits the family.
func (f Family) DefaultPrompt() string {
	switch f {
	case FamilyFlux:
		return "A cinematic shot of an old man sitting on a mountainside, daytime, breathtaking, 8k"
	case FamilyQwen:
		return "A wolf howling at the moon in a dark forest, highly detailed, photorealistic."
	default:
		return "a korean girl, solo, whole body with long boots, dynamic pose, beautiful detailed eyes, cinematic lighting, masterpiece, ultra-detailed, 8k"
	}
}
