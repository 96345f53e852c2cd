// ABOUTME: HTTP client for the Novo Rio game API
// ABOUTME: Attaches bearer tokens, classifies failures and validates response shapes

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/markalston/novorio/internal/metrics"
	"github.com/markalston/novorio/internal/models"
)

// MaxRetries caps caller-requested retries of idempotent reads.
const MaxRetries = 2

const maxBodyBytes = 10 << 20

// TokenSource yields the current bearer token, or "" when anonymous.
type TokenSource interface {
	Token() string
}

// Options configures a Client. The zero value is usable.
type Options struct {
	Timeout      time.Duration
	Tokens       TokenSource
	RetryBackoff time.Duration
	AllProxy     string // ssh+socks5://user@host:port?private-key=/path
	Metrics      *metrics.Metrics
	HTTPClient   *http.Client
}

// Client is the API client for the game backend
type Client struct {
	baseURL        string
	httpClient     *http.Client
	tokens         TokenSource
	onUnauthorized func(token string)
	retryBackoff   time.Duration
	metrics        *metrics.Metrics
}

// New creates a new API client with the given base URL
func New(baseURL string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
		if opts.AllProxy != "" {
			if dial := createSOCKS5DialContextFunc(opts.AllProxy); dial != nil {
				httpClient.Transport = &http.Transport{DialContext: dial}
			}
		}
	}

	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   httpClient,
		tokens:       opts.Tokens,
		retryBackoff: backoff,
		metrics:      opts.Metrics,
	}
}

// BaseURL returns the API root the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetTokenSource installs the token provider. It must be called before the
// client is shared between goroutines.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// OnUnauthorized registers the hook invoked with the rejected token whenever
// an authenticated request gets a 401. It must be set before first use.
func (c *Client) OnUnauthorized(fn func(token string)) {
	c.onUnauthorized = fn
}

// RequestOptions tunes a single call.
type RequestOptions struct {
	Retries   int        // GET only, clamped to MaxRetries
	Anonymous bool       // no bearer token, no unauthorized hook
	Query     url.Values // appended to the path
}

// Get calls GET path and decodes the response into out
func (c *Client) Get(ctx context.Context, path string, out any, retries int) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, RequestOptions{Retries: retries})
}

// Post calls POST path with a JSON body
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out, RequestOptions{})
}

// Patch calls PATCH path with a JSON body
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, body, out, RequestOptions{})
}

// Put calls PUT path with a JSON body
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out, RequestOptions{})
}

// Delete calls DELETE path
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out, RequestOptions{})
}

// Do performs a request. Errors are always *APIError.
// Only GETs are retried, and only on network errors and 5xx responses.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts RequestOptions) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return &APIError{Kind: KindServer, Message: "failed to marshal request", Err: err}
		}
	}

	attempts := 1
	if method == http.MethodGet {
		attempts += min(max(opts.Retries, 0), MaxRetries)
	}

	limiter := rate.NewLimiter(rate.Every(c.retryBackoff), 1)
	limiter.Allow() // first retry waits a full backoff

	var lastErr *APIError
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := limiter.Wait(ctx); err != nil {
				return lastErr
			}
			slog.Debug("Retrying request", "method", method, "path", path, "attempt", attempt+1, "error", lastErr)
		}

		lastErr = c.do(ctx, method, path, payload, out, opts)
		if lastErr == nil {
			return nil
		}
		if !lastErr.Retryable() || ctx.Err() != nil {
			break
		}
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, out any, opts RequestOptions) *APIError {
	target := c.baseURL + path
	if len(opts.Query) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		target += sep + opts.Query.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return &APIError{Kind: KindServer, Message: "failed to create request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	token := ""
	if !opts.Anonymous && c.tokens != nil {
		token = c.tokens.Token()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	slog.Debug("Request started", "request_id", requestID, "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(method, 0, time.Since(start))
		return c.handleRequestError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	c.metrics.ObserveRequest(method, resp.StatusCode, time.Since(start))
	slog.Debug("Request completed",
		"request_id", requestID,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	if err != nil {
		return c.handleRequestError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := classifyResponse(resp.StatusCode, respBody)
		if apiErr.Kind == KindUnauthorized && token != "" && c.onUnauthorized != nil {
			c.onUnauthorized(token)
		}
		slog.Debug("Request failed", "request_id", requestID, "status", resp.StatusCode, "kind", apiErr.Kind)
		return apiErr
	}

	return decode(resp.StatusCode, respBody, out)
}

// handleRequestError converts transport failures into network errors
func (c *Client) handleRequestError(ctx context.Context, err error) *APIError {
	if ctx.Err() == context.Canceled {
		return &APIError{Kind: KindNetwork, Message: "request canceled", Err: ctx.Err()}
	}
	if ctx.Err() == context.DeadlineExceeded {
		return &APIError{Kind: KindNetwork, Message: "request timed out", Err: ctx.Err()}
	}
	return &APIError{Kind: KindNetwork, Message: fmt.Sprintf("cannot connect to backend at %s", c.baseURL), Err: err}
}

// decode unwraps the success envelope when present and validates the result.
func decode(status int, body []byte, out any) *APIError {
	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return &APIError{Kind: KindServer, Status: status, Message: "empty response from backend", Err: models.ErrInvalidShape}
	}

	data := body
	var probe map[string]json.RawMessage
	if json.Unmarshal(body, &probe) == nil {
		_, hasSuccess := probe["success"]
		_, hasData := probe["data"]
		if hasSuccess && hasData {
			var env models.Envelope
			if err := json.Unmarshal(body, &env); err != nil {
				return invalidShape(status, err)
			}
			if env.Success != nil && !*env.Success {
				msg := env.Message
				if msg == "" {
					msg = "request was not successful"
				}
				return &APIError{Kind: KindServer, Status: status, Message: msg}
			}
			data = env.Data
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return invalidShape(status, err)
	}
	if v, ok := out.(models.Validator); ok {
		if err := v.Validate(); err != nil {
			return invalidShape(status, err)
		}
	}
	return nil
}

func invalidShape(status int, err error) *APIError {
	if !errors.Is(err, models.ErrInvalidShape) {
		err = fmt.Errorf("%w: %v", models.ErrInvalidShape, err)
	}
	return &APIError{Kind: KindServer, Status: status, Message: "invalid response from backend", Err: err}
}
