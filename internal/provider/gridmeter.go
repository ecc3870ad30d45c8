package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/stellar-k8s/carbonsched/internal/carbon"
	"github.com/stellar-k8s/carbonsched/pkg/gridmeter"
)

// GridMeter adapts a self-hosted GridMeter API to the Provider interface.
// GridMeter speaks canonical regions natively, so no zone translation is
// needed.
type GridMeter struct {
	client gridmeter.Client
}

// NewGridMeter wraps a GridMeter client as a Provider.
func NewGridMeter(client gridmeter.Client) *GridMeter {
	return &GridMeter{client: client}
}

func (p *GridMeter) Name() string { return "gridmeter" }

func classifyGMError(err error) error {
	var se *gridmeter.StatusError
	if errors.As(err, &se) {
		return eris.Wrap(carbon.ClassifyHTTPStatus(se.StatusCode), se.Error())
	}
	if strings.Contains(err.Error(), "unmarshal") {
		return eris.Wrap(carbon.ErrInvalidResponse, err.Error())
	}
	return carbon.ClassifyTransportError(err)
}

func (p *GridMeter) FetchCurrent(ctx context.Context, region carbon.Region) (carbon.Sample, error) {
	resp, err := p.client.Intensity(ctx, string(region))
	if err != nil {
		return carbon.Sample{}, classifyGMError(err)
	}
	if resp.IntensityGPerKWh < 0 || resp.ObservedAt.IsZero() ||
		resp.RenewablePct < 0 || resp.RenewablePct > 100 {
		return carbon.Sample{}, eris.Wrapf(carbon.ErrInvalidResponse,
			"gridmeter: implausible intensity payload for region %s", region)
	}

	return carbon.Sample{
		Region:           region,
		IntensityGPerKWh: resp.IntensityGPerKWh,
		RenewablePct:     resp.RenewablePct,
		ObservedAt:       resp.ObservedAt.UTC(),
		Source:           p.Name(),
	}, nil
}

func (p *GridMeter) FetchForecast(ctx context.Context, region carbon.Region) (carbon.Forecast, error) {
	resp, err := p.client.Forecast(ctx, string(region))
	if err != nil {
		return carbon.Forecast{}, classifyGMError(err)
	}
	if len(resp.Points) == 0 || resp.GeneratedAt.IsZero() {
		return carbon.Forecast{}, eris.Wrapf(carbon.ErrInvalidResponse,
			"gridmeter: implausible forecast payload for region %s", region)
	}

	points := make([]carbon.ForecastPoint, 0, len(resp.Points))
	for _, pt := range resp.Points {
		if pt.IntensityGPerKWh < 0 || pt.At.IsZero() {
			return carbon.Forecast{}, eris.Wrapf(carbon.ErrInvalidResponse,
				"gridmeter: implausible forecast entry for region %s", region)
		}
		points = append(points, carbon.ForecastPoint{
			At:               pt.At.UTC(),
			IntensityGPerKWh: pt.IntensityGPerKWh,
		})
	}

	return carbon.Forecast{
		Region:      region,
		Points:      points,
		GeneratedAt: resp.GeneratedAt.UTC(),
		Source:      p.Name(),
	}, nil
}
