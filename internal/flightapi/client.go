// Package flightapi fetches current flight records per airline from the
// aviationstack-style flight data API.
package flightapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/time/rate"
)

const (
	maxResponseBytes = 64 << 20
	maxErrorExcerpt  = 256
)

// ErrUnexpectedStatus is returned when the API answers with a non-2xx status.
var ErrUnexpectedStatus = errors.New("unexpected flight API status")

type (
	// Client issues one GET per airline. Requests are paced by a token bucket
	// so a registry of several airlines stays inside the API plan's rate limit.
	Client struct {
		endpoint  *url.URL
		accessKey string
		http      *http.Client
		limiter   *rate.Limiter
		logger    *slog.Logger
	}

	// Option configures optional Client behavior.
	Option func(*Client)
)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient validates cfg and creates a Client.
func NewClient(cfg *Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid flight API endpoint: %w", err)
	}

	c := &Client{
		endpoint:  endpoint,
		accessKey: cfg.accessKey,
		http:      &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		logger:    slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// FetchFlights returns the raw response body for one carrier code.
// The body is not interpreted here; callers decide what valid JSON means.
func (c *Client) FetchFlights(ctx context.Context, code string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	reqURL := c.requestURL(code)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error embeds the full URL, access key included.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return nil, fmt.Errorf("GET %s: %w", maskedURL(reqURL), urlErr.Err)
		}

		return nil, err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("Flight API responded",
		slog.String("url", maskedURL(reqURL)),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(body)),
		slog.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode, excerpt(body))
	}

	return body, nil
}

func (c *Client) requestURL(code string) *url.URL {
	u := *c.endpoint
	q := u.Query()
	q.Set("access_key", c.accessKey)
	q.Set("airline_iata", code)
	u.RawQuery = q.Encode()

	return &u
}

func maskedURL(u *url.URL) string {
	masked := *u
	q := masked.Query()

	if q.Has("access_key") {
		q.Set("access_key", "***")
	}

	masked.RawQuery = q.Encode()

	return masked.String()
}

func excerpt(body []byte) string {
	if len(body) <= maxErrorExcerpt {
		return string(body)
	}

	return string(body[:maxErrorExcerpt]) + "..."
}
