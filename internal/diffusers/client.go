package diffusers

import (
	"context"
	"errors"
	"fmt"

	"github.com/maruel/httpjson"
)

// client speaks the worker protocol. Every reply is a JSON object with an
// "error" field that is empty on success.
type client struct {
	baseURL string
}

func newClient(baseURL string) *client { return &client{baseURL: baseURL} }

type healthResponse struct {
	Status          string `json:"status"`
	LibrariesLoaded bool   `json:"libraries_loaded"`
	Triton          bool   `json:"triton"`
	Device          string `json:"device"`
}

type loadRequest struct {
	Model      string   `json:"model"`
	Family     string   `json:"family"`
	Quantize   bool     `json:"quantize"`
	Components []string `json:"components"`
	CacheDir   string   `json:"cache_dir"`
}

type loadResponse struct {
	Error     string   `json:"error"`
	ModelType string   `json:"model_type"`
	Quantized bool     `json:"quantized"`
	Device    string   `json:"device"`
	Warnings  []string `json:"warnings"`
}

type loraLoadRequest struct {
	Path    string `json:"path"`
	Adapter string `json:"adapter"`
}

type adapterRequest struct {
	Adapter string `json:"adapter"`
}

type weightsRequest struct {
	Adapter string  `json:"adapter"`
	Weight  float64 `json:"weight"`
}

type generateRequest struct {
	Prompt         string   `json:"prompt"`
	NegativePrompt *string  `json:"negative_prompt,omitempty"`
	GuidanceScale  *float64 `json:"guidance_scale,omitempty"`
	Steps          int      `json:"steps"`
	Width          int      `json:"width"`
	Height         int      `json:"height"`
	Seed           int64    `json:"seed"`
}

type generateResponse struct {
	Error string `json:"error"`
	Image []byte `json:"image"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// workerError is an error reported by the worker itself.
type workerError struct {
	op  string
	msg string
}

func (e *workerError) Error() string { return e.op + ": " + e.msg }

// IsWorkerError reports whether err was raised inside the worker, as
// opposed to a transport failure.
func IsWorkerError(err error) bool {
	var w *workerError
	return errors.As(err, &w)
}

func (c *client) health(ctx context.Context) (healthResponse, error) {
	var out healthResponse
	hc := httpjson.DefaultClient
	hc.PostCompress = ""
	err := hc.Get(ctx, c.baseURL+"/health", nil, &out)
	return out, err
}

func (c *client) post(ctx context.Context, path string, in any, out *string, decodeInto any) error {
	hc := httpjson.DefaultClient
	hc.PostCompress = ""
	if err := hc.Post(ctx, c.baseURL+path, nil, in, decodeInto); err != nil {
		return fmt.Errorf("worker %s: %w", path, err)
	}
	if *out != "" {
		return &workerError{op: path, msg: *out}
	}
	return nil
}

func (c *client) call(ctx context.Context, path string, in any) error {
	var out errorResponse
	return c.post(ctx, path, in, &out.Error, &out)
}

func (c *client) load(ctx context.Context, in loadRequest) (loadResponse, error) {
	var out loadResponse
	err := c.post(ctx, "/load", in, &out.Error, &out)
	return out, err
}

func (c *client) generate(ctx context.Context, in generateRequest) ([]byte, error) {
	var out generateResponse
	if err := c.post(ctx, "/generate", in, &out.Error, &out); err != nil {
		return nil, err
	}
	return out.Image, nil
}
