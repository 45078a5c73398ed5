package manager

import (
	"errors"
	"fmt"
	"testing"

	"imaged/pkg/types"
)

func TestErrorHelpersSeeThroughWrapping(t *testing.T) {
	busy := fmt.Errorf("run: %w", tooBusyError{reason: "queue full"})
	dep := fmt.Errorf("load: %w", ErrDependencyUnavailable("python missing"))
	none := fmt.Errorf("lora: %w", ErrNoModelLoaded)
	inv := fmt.Errorf("%w: steps", types.ErrInvalidRequest)

	if !IsTooBusy(busy) || IsTooBusy(dep) {
		t.Fatalf("IsTooBusy mismatch")
	}
	if !IsDependencyUnavailable(dep) || IsDependencyUnavailable(none) {
		t.Fatalf("IsDependencyUnavailable mismatch")
	}
	if !IsNoModelLoaded(none) || IsNoModelLoaded(inv) {
		t.Fatalf("IsNoModelLoaded mismatch")
	}
	if !IsInvalidRequest(inv) || IsInvalidRequest(errors.New("x")) {
		t.Fatalf("IsInvalidRequest mismatch")
	}
}

func TestDependencyErrorUnwraps(t *testing.T) {
	cause := errors.New("exec: python3: not found")
	err := dependencyUnavailableError{msg: "start backend: " + cause.Error(), err: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("cause not reachable")
	}
}
