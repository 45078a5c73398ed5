package types

// ModelsResponse wraps the list of models returned by GET /api/models.
type ModelsResponse struct {
	// Repository ids of the models present in the models directory.
	// example: ["Disty0/Z-Image-Turbo-SDNQ-int8"]
	Models []string `json:"models"`
}

// LoRAsResponse wraps the list of adapters returned by GET /api/loras.
// The first entry is always NoLoRA.
type LoRAsResponse struct {
	// example: ["None","pixel-art.safetensors"]
	LoRAs []string `json:"loras"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: prompt is required
	Detail string `json:"detail" example:"prompt is required"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// MessageResponse is returned by administrative endpoints.
type MessageResponse struct {
	// example: shutting down
	Message string `json:"message" example:"shutting down"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Overall handler state (idle, loading, ready, generating, error, draining).
	// example: ready
	State string `json:"state" example:"ready"`
	// Model currently resident in the pipeline, empty when none.
	// example: Disty0/Z-Image-Turbo-SDNQ-int8
	Model string `json:"model,omitempty" example:"Disty0/Z-Image-Turbo-SDNQ-int8"`
	// Architecture family of the current model (sd, flux, qwen).
	// example: sd
	Family string `json:"family,omitempty" example:"sd"`
	// Absolute path of the active LoRA adapter, empty when none.
	LoRA string `json:"lora,omitempty"`
	// Whether the ML runtime has been started.
	// example: true
	BackendStarted bool `json:"backend_started" example:"true"`
	// Requests waiting for or holding the pipeline.
	// example: 1
	QueueLen int `json:"queue_len" example:"1"`
	// Requests currently holding the pipeline (0 or 1).
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// Maximum queued requests before backpressure triggers.
	// example: 8
	MaxQueueDepth int `json:"max_queue_depth" example:"8"`
	// Total number of model loads.
	// example: 3
	LoadsTotal uint64 `json:"loads_total" example:"3"`
	// Total number of completed generations.
	// example: 42
	GenerationsTotal uint64 `json:"generations_total" example:"42"`
	// Last error observed by the handler (if any).
	LastError string `json:"last_error,omitempty"`
	// Uptime of the handler in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
