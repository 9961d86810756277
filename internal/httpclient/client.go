// Package httpclient provides the JSON HTTP client used to talk to the catalog API
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 10 * time.Second

	// MaxResponseSize is the maximum allowed response size (100MB)
	MaxResponseSize = 100 * 1024 * 1024

	// UserAgent is the user agent string for HTTP requests
	UserAgent = "eol-sync/1.0"

	// DefaultRetryInterval is the first wait between attempts of a retried GET
	DefaultRetryInterval = 500 * time.Millisecond

	// maxErrorBodySize bounds how much of an error response is kept on HTTPError
	maxErrorBodySize = 512
)

// RequestOption mutates an outgoing request before it is sent
type RequestOption func(*http.Request)

// WithHeader sets a header on the outgoing request
func WithHeader(key, value string) RequestOption {
	return func(req *http.Request) {
		req.Header.Set(key, value)
	}
}

// Client is an interface for HTTP operations
type Client interface {
	// Get performs an HTTP GET request and returns the response body
	Get(ctx context.Context, url string, opts ...RequestOption) ([]byte, error)

	// Post sends body as JSON with an HTTP POST request and returns the response body
	Post(ctx context.Context, url string, body any, opts ...RequestOption) ([]byte, error)

	// Patch sends body as JSON with an HTTP PATCH request and returns the response body
	Patch(ctx context.Context, url string, body any, opts ...RequestOption) ([]byte, error)
}

// DefaultClient is the default HTTP client implementation
type DefaultClient struct {
	client        *http.Client
	timeout       time.Duration
	maxTries      uint
	retryInterval time.Duration
}

// ClientOption configures a DefaultClient
type ClientOption func(*DefaultClient)

// WithRetry retries GET requests that fail with a transport error, a 429 or
// a 5xx response, up to maxTries attempts in total with exponential backoff
// starting at initialInterval. Other methods are never retried.
func WithRetry(maxTries uint, initialInterval time.Duration) ClientOption {
	return func(c *DefaultClient) {
		c.maxTries = maxTries
		if initialInterval > 0 {
			c.retryInterval = initialInterval
		}
	}
}

// NewDefaultClient creates a new default HTTP client with the specified timeout
// If timeout is 0, uses DefaultTimeout
func NewDefaultClient(timeout time.Duration, opts ...ClientOption) Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	c := &DefaultClient{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		timeout:       timeout,
		maxTries:      1,
		retryInterval: DefaultRetryInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs an HTTP GET request
func (c *DefaultClient) Get(ctx context.Context, url string, opts ...RequestOption) ([]byte, error) {
	if c.maxTries <= 1 {
		return c.do(ctx, http.MethodGet, url, nil, opts)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	return backoff.Retry(ctx, func() ([]byte, error) {
		data, err := c.do(ctx, http.MethodGet, url, nil, opts)
		if err != nil && !isTransient(ctx, err) {
			return nil, backoff.Permanent(err)
		}
		return data, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxTries))
}

// Post performs an HTTP POST request with a JSON body
func (c *DefaultClient) Post(ctx context.Context, url string, body any, opts ...RequestOption) ([]byte, error) {
	return c.do(ctx, http.MethodPost, url, body, opts)
}

// Patch performs an HTTP PATCH request with a JSON body
func (c *DefaultClient) Patch(ctx context.Context, url string, body any, opts ...RequestOption) ([]byte, error) {
	return c.do(ctx, http.MethodPatch, url, body, opts)
}

func (c *DefaultClient) do(
	ctx context.Context, method, url string, body any, opts []RequestOption,
) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			URL:        url,
			Message:    resp.Status,
			Body:       string(bytes.TrimSpace(snippet)),
		}
	}

	// Check Content-Length header if available
	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("response size %d bytes exceeds maximum allowed size of %d bytes (%.2f MB)",
			resp.ContentLength, MaxResponseSize, float64(MaxResponseSize)/(1024*1024))
	}

	// +1 to detect if limit exceeded
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize+1)
	data, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if int64(len(data)) > MaxResponseSize {
		return nil, fmt.Errorf("response size exceeds maximum allowed size of %d bytes (%.2f MB)",
			MaxResponseSize, float64(MaxResponseSize)/(1024*1024))
	}

	return data, nil
}

// isTransient reports whether a failed request may succeed when repeated
func isTransient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Op != "parse"
}
