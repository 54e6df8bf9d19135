// Package client is a typed HTTP client for the supervisr daemon API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns the default daemon endpoint.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080/api",
		Timeout: 10 * time.Second,
	}
}

// Client talks to one supervisr daemon.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates an API client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// Create registers a new task from its spec.
func (c *Client) Create(ctx context.Context, spec TaskSpec) error {
	return c.do(ctx, http.MethodPost, "/tasks", spec, nil)
}

// Start starts the named task. Zero timeout uses the daemon's default.
func (c *Client) Start(ctx context.Context, name string, timeout time.Duration) error {
	return c.do(ctx, http.MethodPost, taskPath(name, "start", timeout), nil, nil)
}

// Stop stops the named task.
func (c *Client) Stop(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, taskPath(name, "stop", 0), nil, nil)
}

// Restart restarts the named task.
func (c *Client) Restart(ctx context.Context, name string, timeout time.Duration) error {
	return c.do(ctx, http.MethodPost, taskPath(name, "restart", timeout), nil, nil)
}

// Remove stops and removes the named task.
func (c *Client) Remove(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(name), nil, nil)
}

// Info fetches the named task's snapshot.
func (c *Client) Info(ctx context.Context, name string) (*TaskInfo, error) {
	var info TaskInfo
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(name), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// List fetches snapshots of every task keyed by name.
func (c *Client) List(ctx context.Context) (map[string]TaskInfo, error) {
	out := make(map[string]TaskInfo)
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func taskPath(name, op string, timeout time.Duration) string {
	p := "/tasks/" + url.PathEscape(name) + "/" + op
	if timeout > 0 {
		p += "?timeout=" + url.QueryEscape(timeout.String())
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var er errorResp
		if json.Unmarshal(data, &er) == nil && er.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, er.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

type errorResp struct {
	Error string `json:"error"`
}
