package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client talks to a running aigate daemon's status API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL  string        // e.g. http://localhost:5000/api
	Timeout  time.Duration
	Logger   *slog.Logger // optional
	Insecure bool         // skip TLS verification
}

// DefaultConfig returns the configuration matching the daemon defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:5000/api",
		Timeout: 10 * time.Second,
	}
}

// New creates an aigate API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	transport := &http.Transport{}
	if config.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout, Transport: transport},
	}
}

// IsReachable checks whether the daemon answers its status endpoint.
func (c *Client) IsReachable(ctx context.Context) bool {
	var resp StatusResponse
	if err := c.getJSON(ctx, "/status", &resp); err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	return true
}

// Status fetches the cached worker health snapshot.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.getJSON(ctx, "/status", &resp)
	return resp, err
}

// Restart asks the daemon to restart the worker and reports the outcome.
func (c *Client) Restart(ctx context.Context) (RestartResponse, error) {
	var resp RestartResponse
	err := c.doJSON(ctx, http.MethodPost, "/status/restart", &resp)
	return resp, err
}

// Diagnostics triggers an on-demand connectivity check.
func (c *Client) Diagnostics(ctx context.Context) (DiagnosticsReport, error) {
	var resp DiagnosticsReport
	err := c.getJSON(ctx, "/diagnostics", &resp)
	return resp, err
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	// The restart endpoint uses 500 with a JSON body for a failed restart;
	// decode before failing so callers see the daemon's message.
	if decodeErr := json.Unmarshal(body, out); decodeErr != nil {
		if resp.StatusCode >= 400 {
			return fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
		}
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusInternalServerError {
		return fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}
	return nil
}
