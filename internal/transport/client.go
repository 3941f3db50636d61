// Package transport talks to the Personyze REST gateway over HTTPS.
//
// The client knows nothing about sessions or results: it sends a request,
// maps the HTTP outcome to a typed apierr.Error, and returns the body text.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/personyze/tracker-go/internal/apierr"
)

// Gateway defaults.
const (
	DefaultGatewayURL = "https://app.personyze.com/rest/"
	DefaultUserAgent  = "Personyze Go SDK/1.0"
	DefaultTimeout    = 30 * time.Second

	// APIKeyLength is the exact length of a valid API key.
	APIKeyLength = 40

	maxImageBytes = 10 << 20
)

// Client performs authenticated requests against the gateway.
//
// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the gateway URL. A trailing slash is added if missing.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		c.baseURL = u
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a client for the given API key. The key is checked lazily, on
// each request, so a misconfigured client still constructs.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultGatewayURL,
		apiKey:     apiKey,
		userAgent:  DefaultUserAgent,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches path relative to the gateway.
func (c *Client) Get(ctx context.Context, path string) (string, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post sends body as JSON to path.
func (c *Client) Post(ctx context.Context, path string, body []byte) (string, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// Delete issues a DELETE for path.
func (c *Client) Delete(ctx context.Context, path string) (string, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

// FetchImage downloads an absolute image URL without gateway credentials.
// It returns the body and its Content-Type.
func (c *Client) FetchImage(ctx context.Context, href string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return nil, "", apierr.Wrap(apierr.CodeOther, "HTTP request failed", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", apierr.Wrap(apierr.CodeOther, "HTTP request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", apierr.Wrap(apierr.CodeOther, "HTTP request failed", err)
	}
	if err := statusError(resp.StatusCode, data); err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (string, error) {
	if c.apiKey == "" {
		return "", apierr.New(apierr.CodeOther, "tracker not initialized")
	}
	if len(c.apiKey) != APIKeyLength {
		return "", apierr.New(apierr.CodeMalformedAPIKey, fmt.Sprintf("API Key must be %d characters", APIKeyLength))
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return "", apierr.Wrap(apierr.CodeOther, "HTTP request failed", err)
	}
	req.SetBasicAuth("api", c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apierr.Wrap(apierr.CodeOther, "HTTP request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apierr.Wrap(apierr.CodeOther, "HTTP request failed", err)
	}
	if err := statusError(resp.StatusCode, data); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", apierr.New(apierr.CodeOther, "Empty response from server")
	}
	return string(data), nil
}

// statusError maps a non-2xx status to a typed error.
func statusError(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusInternalServerError:
		return apierr.New(apierr.CodeHTTP500, string(body))
	case status == http.StatusServiceUnavailable:
		return apierr.New(apierr.CodeHTTP503, "Service temporarily unavailable")
	case status == http.StatusUnauthorized:
		return apierr.New(apierr.CodeHTTP401, "Invalid API key")
	default:
		return apierr.New(apierr.CodeOther, fmt.Sprintf("HTTP request failed: %d %s", status, http.StatusText(status)))
	}
}
