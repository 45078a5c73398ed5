package manager

import (
	"errors"

	"imaged/pkg/types"
)

// ErrNoModelLoaded is returned by LoRA and generation calls made before any
// model has been loaded.
var ErrNoModelLoaded = errors.New("no model loaded; load a model first")

// errEmptyImage is returned when a pipeline produced no image.
var errEmptyImage = errors.New("pipeline returned no image")

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ reason string }

func (e tooBusyError) Error() string { return "too busy: " + e.reason }

// ErrTooBusy constructs a tooBusyError.
func ErrTooBusy(reason string) error { return tooBusyError{reason: reason} }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var t tooBusyError
	return errors.As(err, &t)
}

// dependencyUnavailableError signals that the ML runtime could not be
// started so the HTTP layer can return 503 instead of 500.
type dependencyUnavailableError struct {
	msg string
	err error
}

func (e dependencyUnavailableError) Error() string { return e.msg }

func (e dependencyUnavailableError) Unwrap() error { return e.err }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing/failed runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var d dependencyUnavailableError
	return errors.As(err, &d)
}

// IsNoModelLoaded reports whether err is ErrNoModelLoaded.
func IsNoModelLoaded(err error) bool { return errors.Is(err, ErrNoModelLoaded) }

// IsInvalidRequest reports whether err is a validation failure (return 400).
func IsInvalidRequest(err error) bool { return errors.Is(err, types.ErrInvalidRequest) }
