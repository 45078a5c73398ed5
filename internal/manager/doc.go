// Package manager owns the single diffusion pipeline of the service and
// serializes every operation on it. It is structured into small files by
// concern:
//
//   - handler.go: ModelHandler, constructor, LoadModel/LoadLoRA/Generate.
//   - run.go: Run/Submit, the full request flow under admission control.
//   - config.go: Config and package defaults.
//   - types.go: state, snapshot and parameter types.
//   - family.go: model family detection and per-family prompt conventions.
//   - backend.go: Backend/Pipeline interfaces implemented by runtimes.
//   - loader.go: lazy start of the backend runtime.
//   - admission.go: queue and single in-flight slot.
//   - errors.go: error types and helpers (IsTooBusy, IsNoModelLoaded, ...).
//   - metrics.go, events.go: observability hooks.
//
// External packages should use public methods only.
package manager
