// Package gridmeter provides a client for a self-hosted GridMeter
// enterprise grid-data API, used by operators with their own metering.
package gridmeter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the GridMeter operations used by the engine.
type Client interface {
	// Intensity fetches the current carbon intensity for a region.
	Intensity(ctx context.Context, region string) (*IntensityResponse, error)
	// Forecast fetches the 24-hour intensity forecast for a region.
	Forecast(ctx context.Context, region string) (*ForecastResponse, error)
}

// IntensityResponse is the parsed /api/v1/intensity/{region} payload.
type IntensityResponse struct {
	Region           string    `json:"region"`
	IntensityGPerKWh float64   `json:"intensity_g_per_kwh"`
	RenewablePct     float64   `json:"renewable_pct"`
	ObservedAt       time.Time `json:"observed_at"`
}

// ForecastPoint is one entry in a forecast series.
type ForecastPoint struct {
	At               time.Time `json:"at"`
	IntensityGPerKWh float64   `json:"intensity_g_per_kwh"`
}

// ForecastResponse is the parsed /api/v1/forecast/{region} payload.
type ForecastResponse struct {
	Region      string          `json:"region"`
	GeneratedAt time.Time       `json:"generated_at"`
	Points      []ForecastPoint `json:"points"`
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gridmeter: status %d: %s", e.StatusCode, e.Body)
}

// Option configures the GridMeter client.
type Option func(*httpClient)

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

type httpClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a GridMeter client against the given base URL. Requests
// are made exactly once; retries belong to the caller's refresh cycle.
func NewClient(baseURL, token string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		token:   token,
		http: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "gridmeter: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "gridmeter: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return eris.Wrap(err, "gridmeter: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "gridmeter: unmarshal response")
	}
	return nil
}

func (c *httpClient) Intensity(ctx context.Context, region string) (*IntensityResponse, error) {
	var out IntensityResponse
	if err := c.get(ctx, "/api/v1/intensity/"+url.PathEscape(region), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) Forecast(ctx context.Context, region string) (*ForecastResponse, error) {
	var out ForecastResponse
	if err := c.get(ctx, "/api/v1/forecast/"+url.PathEscape(region), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
