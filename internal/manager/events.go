package manager

// Event represents a handler lifecycle event.
// Minimal and stable: name + model and optional fields via key/values.
type Event struct {
	Name   string
	Model  string
	Fields map[string]any
}

// Event names published by ModelHandler.
const (
	EventLoadStart     = "load_start"
	EventLoadDone      = "load_done"
	EventLoadError     = "load_error"
	EventLoRALoaded    = "lora_loaded"
	EventLoRACleared   = "lora_cleared"
	EventLoRAError     = "lora_error"
	EventGenerateDone  = "generate_done"
	EventGenerateError = "generate_error"
	EventUnload        = "unload_done"
	EventBackpressure  = "backpressure"
)

// EventPublisher receives events from the handler. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
