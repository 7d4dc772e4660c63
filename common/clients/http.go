package clients

import (
	"context"
	"io"
	"net/http"
)

// Logger interface for HTTP client logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Option configures an HTTPClient
type Option func(*HTTPClient)

// WithHeader sets a header on every outgoing request
func WithHeader(key, value string) Option {
	return func(c *HTTPClient) {
		if value != "" {
			c.headers[key] = value
		}
	}
}

// WithBearerToken sets an Authorization bearer header on every request
func WithBearerToken(token string) Option {
	return func(c *HTTPClient) {
		if token != "" {
			c.headers["Authorization"] = "Bearer " + token
		}
	}
}

// HTTPClient wraps http.Client with context-aware helpers
// It automatically extracts metadata from context and adds appropriate headers
type HTTPClient struct {
	client  *http.Client
	logger  Logger
	headers map[string]string
}

// NewHTTPClient creates a new HTTP client wrapper
func NewHTTPClient(client *http.Client, logger Logger, opts ...Option) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	c := &HTTPClient{
		client:  client,
		logger:  logger,
		headers: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DoRequest creates and executes an HTTP request, extracting metadata from context
// This is the central method that handles context-to-header conversion
func (c *HTTPClient) DoRequest(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	// Extract user ID from context and set X-User-ID header
	if userID, ok := GetUserID(ctx); ok {
		req.Header.Set("X-User-ID", userID)
	}
	if requestID, ok := GetRequestID(ctx); ok {
		req.Header.Set("X-Request-ID", requestID)
	}

	c.logger.Debug("outgoing request", "method", method, "url", url)
	return c.client.Do(req)
}
