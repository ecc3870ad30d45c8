// Package electricitymaps provides a client for the Electricity Maps
// carbon-intensity API (metered).
package electricitymaps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Electricity Maps operations used by the engine.
type Client interface {
	// Latest fetches the most recent carbon intensity for a zone.
	Latest(ctx context.Context, zone string) (*LatestResponse, error)
	// Forecast fetches the hourly carbon-intensity forecast for a zone.
	Forecast(ctx context.Context, zone string) (*ForecastResponse, error)
	// PowerBreakdown fetches the current generation mix for a zone.
	PowerBreakdown(ctx context.Context, zone string) (*PowerBreakdownResponse, error)
}

// LatestResponse is the parsed /carbon-intensity/latest payload.
type LatestResponse struct {
	Zone            string    `json:"zone"`
	CarbonIntensity float64   `json:"carbonIntensity"`
	Datetime        time.Time `json:"datetime"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ForecastEntry is one point in a forecast series.
type ForecastEntry struct {
	CarbonIntensity float64   `json:"carbonIntensity"`
	Datetime        time.Time `json:"datetime"`
}

// ForecastResponse is the parsed /carbon-intensity/forecast payload.
type ForecastResponse struct {
	Zone      string          `json:"zone"`
	Forecast  []ForecastEntry `json:"forecast"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// PowerBreakdownResponse is the parsed /power-breakdown/latest payload
// (subset: only the renewable share is consumed).
type PowerBreakdownResponse struct {
	Zone                string    `json:"zone"`
	RenewablePercentage float64   `json:"renewablePercentage"`
	Datetime            time.Time `json:"datetime"`
}

// StatusError reports a non-2xx upstream response with its body preserved
// so callers can classify it (429 vs 5xx vs schema-level 4xx).
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("electricitymaps: status %d: %s", e.StatusCode, e.Body)
}

// Option configures the Electricity Maps client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout bounds each request. Default 5s.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

// WithRateLimit sets the request rate limit for the metered API.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new Electricity Maps client. Requests are made exactly
// once; retry policy belongs to the caller's refresh cycle, not the client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.electricitymap.org/v3",
		http: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(1), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get performs a single rate-limited GET and decodes the JSON body into out.
func (c *httpClient) get(ctx context.Context, path, zone string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "electricitymaps: rate limiter wait")
	}

	reqURL := fmt.Sprintf("%s%s?zone=%s", c.baseURL, path, url.QueryEscape(zone))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrap(err, "electricitymaps: create request")
	}
	req.Header.Set("auth-token", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "electricitymaps: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return eris.Wrap(err, "electricitymaps: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "electricitymaps: unmarshal response")
	}
	return nil
}

func (c *httpClient) Latest(ctx context.Context, zone string) (*LatestResponse, error) {
	var out LatestResponse
	if err := c.get(ctx, "/carbon-intensity/latest", zone, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) Forecast(ctx context.Context, zone string) (*ForecastResponse, error) {
	var out ForecastResponse
	if err := c.get(ctx, "/carbon-intensity/forecast", zone, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) PowerBreakdown(ctx context.Context, zone string) (*PowerBreakdownResponse, error) {
	var out PowerBreakdownResponse
	if err := c.get(ctx, "/power-breakdown/latest", zone, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
