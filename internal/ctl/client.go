package ctl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maruel/httpjson"

	"imaged/pkg/types"
)

// Client talks to a running imaged server.
type Client struct {
	BaseURL string
}

// Generated is a successful /api/generate answer.
type Generated struct {
	PNG          []byte
	Seed         int64
	Family       string
	GenerationID string
	RequestID    string
}

func (c *Client) url(path string) string { return strings.TrimRight(c.BaseURL, "/") + path }

// Models lists the models installed on the server.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	var out types.ModelsResponse
	hc := httpjson.DefaultClient
	hc.PostCompress = ""
	if err := hc.Get(ctx, c.url("/api/models"), nil, &out); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return out.Models, nil
}

// LoRAs lists the adapters installed on the server, "None" first.
func (c *Client) LoRAs(ctx context.Context) ([]string, error) {
	var out types.LoRAsResponse
	hc := httpjson.DefaultClient
	hc.PostCompress = ""
	if err := hc.Get(ctx, c.url("/api/loras"), nil, &out); err != nil {
		return nil, fmt.Errorf("list loras: %w", err)
	}
	return out.LoRAs, nil
}

// Shutdown asks the server to exit and returns its message.
func (c *Client) Shutdown(ctx context.Context) (string, error) {
	var out types.MessageResponse
	hc := httpjson.DefaultClient
	hc.PostCompress = ""
	if err := hc.Post(ctx, c.url("/shutdown"), nil, struct{}{}, &out); err != nil {
		return "", fmt.Errorf("shutdown: %w", err)
	}
	return out.Message, nil
}

// Generate posts req and returns the PNG. Non-200 answers are turned into
// errors carrying the server's detail.
func (c *Client) Generate(ctx context.Context, req types.GenerateRequest) (*Generated, error) {
	rid := uuid.NewString()
	hdr := http.Header{}
	hdr.Set("X-Request-Id", rid)
	hdr.Set("Accept", "image/png")
	hc := httpjson.DefaultClient
	// The server does not accept compressed request bodies.
	hc.PostCompress = ""
	resp, err := hc.PostRequest(ctx, c.url("/api/generate"), hdr, req)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("generate: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	seed, _ := strconv.ParseInt(resp.Header.Get("X-Seed"), 10, 64)
	return &Generated{
		PNG:          body,
		Seed:         seed,
		Family:       resp.Header.Get("X-Model-Family"),
		GenerationID: resp.Header.Get("X-Generation-ID"),
		RequestID:    rid,
	}, nil
}

// WaitReady polls /readyz until it answers 200 or ctx expires.
func (c *Client) WaitReady(ctx context.Context, interval time.Duration) error {
	hc := &http.Client{Timeout: 2 * time.Second}
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/readyz"), nil)
		if err != nil {
			return err
		}
		resp, err := hc.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for %s to become ready", c.BaseURL)
		}
	}
}

// APIError is a non-200 answer of /api/generate.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, strings.TrimSpace(e.Body))
}
