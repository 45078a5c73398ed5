package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func fakeHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
	return home
}

func TestExpandHome(t *testing.T) {
	home := fakeHome(t)
	for in, want := range map[string]string{
		"":         "",
		"/tmp":     "/tmp",
		"~":        home,
		"~/models": filepath.Join(home, "models"),
	} {
		got, err := ExpandHome(in)
		if err != nil {
			t.Fatalf("ExpandHome(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ExpandHome(%q)=%q want %q", in, got, want)
		}
	}
}

func TestEnsureDirCreatesUnderHome(t *testing.T) {
	home := fakeHome(t)
	got, err := EnsureDir("~/AI-models/lora")
	if err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	if want := filepath.Join(home, "AI-models", "lora"); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if fi, err := os.Stat(got); err != nil || !fi.IsDir() {
		t.Fatalf("directory not created: %v", err)
	}
	if _, err := EnsureDir("  "); err == nil {
		t.Fatalf("expected error for blank path")
	}
}

func TestWriteIfChanged(t *testing.T) {
	p := filepath.Join(t.TempDir(), "worker.py")
	wrote, err := WriteIfChanged(p, []byte("v1"), 0o644)
	if err != nil || !wrote {
		t.Fatalf("first write: wrote=%v err=%v", wrote, err)
	}
	wrote, err = WriteIfChanged(p, []byte("v1"), 0o644)
	if err != nil || wrote {
		t.Fatalf("identical write should be skipped: wrote=%v err=%v", wrote, err)
	}
	if !SameContent(p, []byte("v1")) || SameContent(p, []byte("v2")) {
		t.Fatalf("SameContent mismatch")
	}
	if wrote, _ = WriteIfChanged(p, []byte("v2"), 0o644); !wrote {
		t.Fatalf("changed content should be written")
	}
	if !PathExists(p) || PathExists(p+".missing") {
		t.Fatalf("PathExists mismatch")
	}
}
