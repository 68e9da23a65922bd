// Package provider implements the geocoding backends queried by the orchestrator:
// a Nominatim-style primary and a Mapbox-style fallback.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"geocoding-enricher/internal/models"

	"golang.org/x/time/rate"
)

// GeocodeProvider is a single geocoding backend.
type GeocodeProvider interface {
	Name() string
	Geocode(ctx context.Context, q models.AddressQuery) (models.Coordinate, error)
}

// Option configures a provider client.
type Option func(*client)

// WithHTTPClient sets the HTTP client. One client is meant to be shared by every provider of a run.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLimiter sets a request limiter, usually shared by every provider of a run.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// NewHTTPClient returns the HTTP client used for provider calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// NewLimiter returns a limiter allowing rps requests per second. rps <= 0 means unlimited.
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

type client struct {
	name       string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newClient(name string, opts ...Option) client {
	c := client{
		name:       name,
		httpClient: NewHTTPClient(30 * time.Second),
		limiter:    NewLimiter(0),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// get issues one synchronous GET and returns the body of a 2xx response.
func (c *client) get(ctx context.Context, reqURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limit: %w", c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", c.name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request: %w", c.name, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProviderError{Provider: c.name, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", c.name, err)
	}
	return body, nil
}

// parseEndpoint validates a configured base URL once, before any record is processed.
func parseEndpoint(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrConfigurationMissing
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &MalformedEndpointError{URL: raw, Err: err}
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, &MalformedEndpointError{URL: raw, Err: errors.New("missing scheme or host")}
	}
	return u, nil
}
