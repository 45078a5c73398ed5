package manager

import "testing"

func TestDetectFamily(t *testing.T) {
	cases := map[string]Family{
		"black-forest-labs/FLUX.1-schnell":       FamilyFlux,
		"Qwen/Qwen-Image":                        FamilyQwen,
		"someone/qwen-flux-merge":                FamilyFlux,
		"Disty0/Z-Image-Turbo-SDNQ-int8":         FamilySD,
		"stabilityai/stable-diffusion-xl-base-1": FamilySD,
		"":                                       FamilySD,
	}
	for name, want := range cases {
		if got := DetectFamily(name); got != want {
			t.Fatalf("DetectFamily(%q)=%s want %s", name, got, want)
		}
	}
}

func TestIsSDNQ(t *testing.T) {
	if !IsSDNQ("Disty0/Z-Image-Turbo-SDNQ-uint4-svd-r32") || !IsSDNQ("x/sdnq") {
		t.Fatalf("expected sdnq match")
	}
	if IsSDNQ("stabilityai/sdxl") {
		t.Fatalf("unexpected sdnq match")
	}
}

func TestFamilyConventions(t *testing.T) {
	if FamilyFlux.UsesNegativePrompt() || FamilyFlux.UsesGuidance() {
		t.Fatalf("flux ignores negative prompt and guidance")
	}
	for _, f := range []Family{FamilySD, FamilyQwen} {
		if !f.UsesNegativePrompt() || !f.UsesGuidance() {
			t.Fatalf("%s should use negative prompt and guidance", f)
		}
	}
	seen := map[string]bool{}
	for _, f := range []Family{FamilySD, FamilyFlux, FamilyQwen} {
		if f.PromptGuide() == "" || f.DefaultPrompt() == "" {
			t.Fatalf("%s: empty guide or prompt", f)
		}
		if seen[f.DefaultPrompt()] {
			t.Fatalf("%s: default prompt not family specific", f)
		}
		seen[f.DefaultPrompt()] = true
	}
}
