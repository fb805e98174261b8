// Package apiclient is the bearer token JSON client shared by the
// provider adapters.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/nhle/universal-inbox/internal/model"
	"github.com/nhle/universal-inbox/internal/source"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	maxBackoff        = 30 * time.Second
)

// StatusError is returned for non 2xx responses that map to no typed
// source error.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d on %s %s: %s", e.StatusCode, e.Method, e.Path, e.Body)
}

// Options configures a Client.
type Options struct {
	Provider model.IntegrationProviderKind
	BaseURL  string
	Token    string

	// Limiter is shared by every client of a provider. When nil, the
	// client gets its own limiter of RequestsPerSecond.
	Limiter           *rate.Limiter
	RequestsPerSecond float64

	HTTPClient *http.Client
	MaxRetries int
}

// Client is a thin HTTP client for a provider's REST or GraphQL API.
// It handles Bearer token authentication, JSON marshaling, client side
// rate limiting and retry with exponential backoff on 429 and 5xx.
type Client struct {
	provider   model.IntegrationProviderKind
	baseURL    string
	token      string
	limiter    *rate.Limiter
	httpClient *http.Client
	maxRetries int
}

// NewLimiter builds a limiter allowing rps requests per second with a
// burst of the same size.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// New creates a client. The token is sent as a Bearer credential.
func New(opts Options) *Client {
	limiter := opts.Limiter
	if limiter == nil {
		limiter = NewLimiter(opts.RequestsPerSecond)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Client{
		provider:   opts.Provider,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		limiter:    limiter,
		httpClient: httpClient,
		maxRetries: maxRetries,
	}
}

// Get performs an HTTP GET request and unmarshals the JSON response.
func (c *Client) Get(ctx context.Context, path string, query url.Values, result any) error {
	return c.Do(ctx, http.MethodGet, withQuery(path, query), nil, result)
}

// Post performs an HTTP POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, result any) error {
	return c.Do(ctx, http.MethodPost, path, body, result)
}

// Patch performs an HTTP PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body, result any) error {
	return c.Do(ctx, http.MethodPatch, path, body, result)
}

// Put performs an HTTP PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, result any) error {
	return c.Do(ctx, http.MethodPut, path, body, result)
}

// Delete performs an HTTP DELETE request.
func (c *Client) Delete(ctx context.Context, path string, result any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, result)
}

// PostForm performs a form encoded HTTP POST request.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values, result any) error {
	return c.send(ctx, http.MethodPost, path, func() (io.Reader, string, error) {
		return strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", nil
	}, result)
}

// Do sends a request with an optional JSON body.
func (c *Client) Do(ctx context.Context, method, path string, body, result any) error {
	var encode func() (io.Reader, string, error)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		encode = func() (io.Reader, string, error) {
			return bytes.NewReader(data), "application/json", nil
		}
	}
	return c.send(ctx, method, path, encode, result)
}

func (c *Client) send(
	ctx context.Context,
	method string,
	path string,
	encode func() (io.Reader, string, error),
	result any,
) error {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = c.baseURL + path
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for rate limiter: %w", err)
		}

		var bodyReader io.Reader
		var contentType string
		if encode != nil {
			var err error
			if bodyReader, contentType, err = encode(); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("executing request %s %s: %w", method, path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			wait := retryAfterDuration(resp, attempt)
			lastErr = &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}
			log.Debug().
				Str("provider", string(c.provider)).
				Int("status", resp.StatusCode).
				Int("attempt", attempt+1).
				Dur("wait", wait).
				Msg("retrying provider request")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return &source.AuthError{
				Provider: c.provider,
				Message:  fmt.Sprintf("authentication failed (401) on %s %s", method, path),
			}
		case resp.StatusCode == http.StatusNotFound:
			return &source.NotFoundError{Provider: c.provider, Resource: method + " " + path}
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}
		}

		// No content to parse (e.g. 204).
		if result == nil || resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
		}
		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

func withQuery(path string, query url.Values) string {
	if len(query) == 0 {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + query.Encode()
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}
