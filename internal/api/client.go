// ABOUTME: HTTP client for the chat REST API with bearer auth and rate limiting
// ABOUTME: Turns non-2xx responses into *Error carrying the server's message

package api

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

	"golang.org/x/time/rate"

	"github.com/2389/coven-chat/internal/metrics"
)

const (
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 4 << 10
)

// ErrNoCredential is returned when no session credential is available.
var ErrNoCredential = errors.New("no session credential")

// TokenSource supplies the bearer credential; "" means signed out.
type TokenSource interface {
	Token() string
}

// Options configures a Client.
type Options struct {
	// BaseURL is the API root, e.g. http://localhost:4000.
	BaseURL string
	Tokens  TokenSource

	HTTPClient *http.Client
	// RateLimit caps requests per second; zero disables limiting.
	RateLimit float64
	Burst     int

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Client talks to the chat REST API.
type Client struct {
	baseURL *url.URL
	tokens  TokenSource
	http    *http.Client
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New validates the base URL and builds a client.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("api base url is required")
	}
	u, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing api base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api base url must be http or https, got %q", opts.BaseURL)
	}
	if opts.Tokens == nil {
		return nil, errors.New("api token source is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: u,
		tokens:  opts.Tokens,
		http:    httpClient,
		limiter: limiter,
		metrics: opts.Metrics,
		logger:  logger.With("component", "api"),
	}, nil
}

// do sends one request and returns the response body of a 2xx reply.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, in any) ([]byte, error) {
	body, err := c.roundTrip(ctx, method, path, query, in)
	c.metrics.Request(op, err)
	if err != nil {
		c.logger.Debug("request failed", "op", op, "method", method, "path", path, "error", err)
		return nil, err
	}
	return body, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, in any) ([]byte, error) {
	token := c.tokens.Token()
	if token == "" {
		return nil, ErrNoCredential
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errorFromResponse(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return data, nil
}
