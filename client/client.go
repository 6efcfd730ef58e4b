// Package client talks to a notes prediction backend over HTTP.
//
// Client implements notes.Predictor: Predict issues the blocking call and
// PredictStream reads the server-sent event stream, falling back to Predict
// when the stream cannot be opened.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	notes "github.com/haowjy/meridian-notes-go"
)

const (
	predictPath       = "/predict"
	predictStreamPath = "/predict/stream"
	healthPath        = "/health"

	// maxErrorBody caps how much of an error response is read into memory.
	maxErrorBody = 64 << 10
)

// Client is a prediction backend client. It is safe for concurrent use;
// every call owns its own buffers and response.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	fallback   bool
}

var _ notes.Predictor = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the bearer credential sent on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithHTTPClient replaces the underlying HTTP client.
// Avoid http.Client.Timeout: it also bounds reading the stream body.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for dropped frames and fallbacks.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithoutFallback makes PredictStream return the stream-unavailable error
// instead of retrying with Predict.
func WithoutFallback() Option {
	return func(c *Client) {
		c.fallback = false
	}
}

// New creates a client for the backend at baseURL (e.g. "http://localhost:8000").
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, &notes.ValidationError{Field: "base_url", Reason: "base URL must not be empty", Err: notes.ErrInvalidRequest}
	}

	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &notes.ValidationError{Field: "base_url", Value: baseURL, Reason: "base URL must be an absolute http(s) URL", Err: notes.ErrInvalidRequest}
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		logger:     slog.Default(),
		fallback:   true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized backend URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Predict issues a blocking prediction. The response body is the final result.
func (c *Client) Predict(ctx context.Context, req *notes.PredictRequest) (*notes.PredictResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	httpReq, err := c.buildHTTPRequest(ctx, http.MethodPost, predictPath, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &notes.TransportError{Op: "predict", URL: httpReq.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, handleErrorResponse(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &notes.TransportError{Op: "read", URL: httpReq.URL.String(), Err: err}
	}

	var result notes.PredictResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse predict response: %w", err)
	}

	return result.Normalize(), nil
}

// Health reports whether the backend answers GET /health with a 2xx status.
func (c *Client) Health(ctx context.Context) error {
	httpReq, err := c.buildHTTPRequest(ctx, http.MethodGet, healthPath, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &notes.TransportError{Op: "health", URL: httpReq.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return handleErrorResponse(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// buildHTTPRequest creates a backend request with the common headers.
// A nil payload sends no body.
func (c *Client) buildHTTPRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	httpReq.Header.Set("X-Request-ID", uuid.NewString())

	return httpReq, nil
}

// handleErrorResponse turns a non-2xx response into an *notes.HTTPError.
// FastAPI-style {"detail": "..."} bodies are unwrapped; anything else is kept raw.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	message := strings.TrimSpace(string(body))
	var errResp struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Detail != nil {
		if s, ok := errResp.Detail.(string); ok {
			message = s
		} else if data, err := json.Marshal(errResp.Detail); err == nil {
			message = string(data)
		}
	}

	return &notes.HTTPError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Retryable:  resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
	}
}
