// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds timeouts and request defaults for the client.
type ClientConfig struct {
	// ProbeTimeout bounds GET /api/version (default: 5s)
	ProbeTimeout time.Duration

	// ListTimeout bounds GET /api/tags (default: 10s)
	ListTimeout time.Duration

	// IdleTimeout aborts a chat stream that produces no bytes for this
	// long. Zero disables the watchdog (default: 5m).
	IdleTimeout time.Duration

	// NumCtx is the context window hint used when a request carries no
	// options (default: 4096)
	NumCtx int

	// HTTPClient overrides the transport. It must not set an overall
	// Timeout, which would cut long streams short.
	HTTPClient *http.Client
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		ProbeTimeout: 5 * time.Second,
		ListTimeout:  10 * time.Second,
		IdleTimeout:  5 * time.Minute,
		NumCtx:       DefaultNumCtx,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to one server endpoint. The endpoint is fixed at
// construction, so a Client is an immutable snapshot of the server
// configuration it was built from; build a new Client when settings change.
//
// The Client is safe for concurrent use.
type Client struct {
	base       *url.URL
	config     ClientConfig
	httpClient *http.Client
}

// NewClient resolves address and port and returns a client with default
// configuration. Configuration errors are returned before any I/O.
func NewClient(address, port string) (*Client, error) {
	return NewClientWithConfig(address, port, nil)
}

// NewClientWithConfig creates a client with custom configuration. Zero
// fields in config fall back to their defaults.
func NewClientWithConfig(address, port string, config *ClientConfig) (*Client, error) {
	base, err := ResolveEndpoint(address, port)
	if err != nil {
		return nil, err
	}

	def := DefaultConfig()
	cfg := *def
	if config != nil {
		cfg = *config
		if cfg.ProbeTimeout <= 0 {
			cfg.ProbeTimeout = def.ProbeTimeout
		}
		if cfg.ListTimeout <= 0 {
			cfg.ListTimeout = def.ListTimeout
		}
		if cfg.IdleTimeout < 0 {
			cfg.IdleTimeout = 0
		}
		if cfg.NumCtx <= 0 {
			cfg.NumCtx = def.NumCtx
		}
	}

	hc := cfg.HTTPClient
	if hc == nil {
		// Ollama normally runs on loopback over plain HTTP; TLS applies
		// only when the address carries an https scheme.
		hc = &http.Client{}
	}

	return &Client{base: base, config: cfg, httpClient: hc}, nil
}

// BaseURL returns the resolved server URL, e.g. http://127.0.0.1:11434.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Host returns host:port of the resolved endpoint.
func (c *Client) Host() string {
	return c.base.Host
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = path
	return u.String()
}

// =============================================================================
// PROBE AND MODEL LISTING
// =============================================================================

// Version probes the server and returns its version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.ProbeTimeout)
	defer cancel()

	var out VersionResponse
	if err := c.getJSON(ctx, PathVersion, "version probe", &out); err != nil {
		return "", err
	}
	if out.Version == nil {
		return "", newError(KindDecode, "server version response", nil)
	}
	return *out.Version, nil
}

// ListModels retrieves the locally available models sorted by name.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.ListTimeout)
	defer cancel()

	var out ListModelsResponse
	if err := c.getJSON(ctx, PathTags, "model listing", &out); err != nil {
		return nil, err
	}
	if out.Models == nil {
		return nil, newError(KindDecode, "model list", nil)
	}

	models := out.Models
	sort.SliceStable(models, func(i, j int) bool {
		return models[i].Name < models[j].Name
	})
	return models, nil
}

// ModelNames is ListModels reduced to the sorted names.
func (c *Client) ModelNames(ctx context.Context) ([]string, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.Name
	}
	return names, nil
}

func (c *Client) getJSON(ctx context.Context, path, op string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return newError(KindInvalidAddress, "Could not construct URL", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(op, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransport(op, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		what := "server version response"
		if path == PathTags {
			what = "model list"
		}
		return newError(KindDecode, what, err)
	}
	return nil
}

// =============================================================================
// CHAT
// =============================================================================

// ChatStream returns a lazy stream for req. No request is sent until the
// first call to Next. The request is copied, so later edits by the caller
// do not affect the stream.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest) *Stream {
	req.Stream = true
	req.Messages = append([]Message(nil), req.Messages...)
	if req.Options == nil {
		req.Options = &Options{NumCtx: c.config.NumCtx}
	} else {
		opts := *req.Options
		req.Options = &opts
	}
	return newStream(ctx, c, req)
}

// openChat sends the chat request and returns the response body once the
// server has answered with 200.
func (c *Client) openChat(ctx context.Context, chatReq ChatRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, newError(KindUnknown, "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(PathChat), bytes.NewReader(body))
	if err != nil {
		return nil, newError(KindInvalidAddress, "Could not construct URL", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport("chat request", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer drainAndClose(resp.Body)
		return nil, statusError(resp)
	}
	return resp.Body, nil
}

// statusError builds a KindHTTPStatus error, preferring the server's own
// error text when the body carries one.
func statusError(resp *http.Response) *ClientError {
	msg := "unexpected status: " + resp.Status
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body ErrorResponse
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &ClientError{Kind: KindHTTPStatus, Message: msg, StatusCode: resp.StatusCode}
}

// Helper to drain response body
func drainAndClose(r io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 1<<20))
	r.Close()
}
