package design

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hazyhaar/fidelity/horosafe"
)

// Client fetches design documents from the design tool's REST API.
type Client struct {
	http     *http.Client
	baseURL  string
	token    string
	maxBytes int64
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithBaseURL overrides the API root. Default: https://api.figma.com.
func WithBaseURL(u string) Option {
	return func(cl *Client) { cl.baseURL = u }
}

// WithMaxBytes caps the response body. Default: 64MB.
func WithMaxBytes(n int64) Option {
	return func(cl *Client) { cl.maxBytes = n }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// NewClient creates a Client authenticating with a personal access token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{Timeout: 60 * time.Second},
		baseURL:  "https://api.figma.com",
		token:    token,
		maxBytes: 64 << 20,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// File downloads the full document tree of a file.
func (c *Client) File(ctx context.Context, key string) (*File, error) {
	if key == "" {
		return nil, fmt.Errorf("design: empty file key")
	}
	endpoint := c.baseURL + "/v1/files/" + url.PathEscape(key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("design: new request: %w", err)
	}
	req.Header.Set("X-Figma-Token", c.token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("design: get file %s: %w", key, err)
	}
	defer resp.Body.Close()

	body, err := horosafe.LimitedReadAll(resp.Body, c.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("design: read file %s: %w", key, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("design: get file %s: status %d: %s", key, resp.StatusCode, truncate(body, 200))
	}

	var f File
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, fmt.Errorf("design: decode file %s: %w", key, err)
	}
	if f.Document == nil {
		return nil, fmt.Errorf("design: file %s has no document", key)
	}

	c.logger.Debug("design: fetched file",
		"key", key, "name", f.Name, "size", len(body), "elapsed", time.Since(start))
	return &f, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
