// Package fsutil holds small filesystem helpers shared by the registry, the
// configuration layer and the diffusers runtime bootstrap.
package fsutil

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome expands a leading '~' to the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// PathExists checks if the given path exists.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}

// EnsureDir expands '~', makes the path absolute and creates the directory
// (and parents) when missing. It returns the absolute path.
func EnsureDir(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("empty directory path")
	}
	p, err := ExpandHome(path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("abs path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", abs, err)
	}
	return abs, nil
}

// SameContent reports whether the file at path exists and holds exactly b.
func SameContent(path string, b []byte) bool {
	cur, err := os.ReadFile(path)
	return err == nil && bytes.Equal(cur, b)
}

// WriteIfChanged writes b to path unless the file already holds it. It
// reports whether a write happened.
func WriteIfChanged(path string, b []byte, perm os.FileMode) (bool, error) {
	if SameContent(path, b) {
		return false, nil
	}
	if err := os.WriteFile(path, b, perm); err != nil {
		return false, err
	}
	return true, nil
}
