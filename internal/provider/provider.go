// Package provider defines the carbon data provider contract and its
// concrete variants: the metered Electricity Maps API, a self-hosted
// GridMeter API, and a deterministic mock.
package provider

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/stellar-k8s/carbonsched/internal/carbon"
	"github.com/stellar-k8s/carbonsched/internal/config"
	"github.com/stellar-k8s/carbonsched/pkg/electricitymaps"
	"github.com/stellar-k8s/carbonsched/pkg/gridmeter"
)

// Provider fetches carbon data for a canonical region. Implementations
// enforce a bounded request timeout and return failures from the
// carbon error taxonomy (Unreachable, InvalidResponse, RateLimited)
// rather than opaque transport errors.
type Provider interface {
	// Name returns the provider identifier used in config and health reports.
	Name() string
	// FetchCurrent returns the most recent intensity sample for a region.
	FetchCurrent(ctx context.Context, region carbon.Region) (carbon.Sample, error)
	// FetchForecast returns the 24-hour intensity forecast for a region.
	FetchForecast(ctx context.Context, region carbon.Region) (carbon.Forecast, error)
}

// FromConfig builds the ordered provider list from configuration. An empty
// or unrecognized order falls back to the mock provider so the engine can
// always operate without upstream credentials.
func FromConfig(cfg config.ProvidersConfig) ([]Provider, error) {
	order := cfg.Order
	if len(order) == 0 {
		order = []string{"mock"}
	}

	providers := make([]Provider, 0, len(order))
	for _, name := range order {
		switch name {
		case "electricitymaps":
			if cfg.ElectricityMaps.APIKey == "" {
				return nil, eris.New("provider: electricitymaps requires an api_key")
			}
			client := electricitymaps.NewClient(
				cfg.ElectricityMaps.APIKey,
				electricitymaps.WithBaseURL(cfg.ElectricityMaps.BaseURL),
				electricitymaps.WithRateLimit(cfg.ElectricityMaps.RatePerSecond, cfg.ElectricityMaps.Burst),
			)
			providers = append(providers, NewElectricityMaps(client))
		case "gridmeter":
			if cfg.GridMeter.BaseURL == "" {
				return nil, eris.New("provider: gridmeter requires a base_url")
			}
			client := gridmeter.NewClient(cfg.GridMeter.BaseURL, cfg.GridMeter.Token)
			providers = append(providers, NewGridMeter(client))
		case "mock":
			providers = append(providers, NewMock())
		default:
			return nil, eris.Errorf("provider: unknown provider %q", name)
		}
	}
	return providers, nil
}
