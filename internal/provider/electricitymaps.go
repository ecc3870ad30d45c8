package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/stellar-k8s/carbonsched/internal/carbon"
	"github.com/stellar-k8s/carbonsched/pkg/electricitymaps"
)

// defaultZones maps canonical regions to Electricity Maps zone keys for the
// common cloud regions. Unlisted regions fall back to the upper-cased region
// name, which matches country-level zones ("aws:eu-central-1" does not, so
// real deployments extend this table via WithZones).
var defaultZones = map[carbon.Region]string{
	"aws:us-west-2":      "US-NW-PACW",
	"aws:us-east-1":      "US-MIDA-PJM",
	"aws:eu-west-1":      "IE",
	"aws:eu-central-1":   "DE",
	"aws:ap-southeast-2": "AU-NSW",
	"gcp:europe-west1":   "BE",
	"gcp:us-central1":    "US-MIDW-MISO",
	"azure:westeurope":   "NL",
}

// ElectricityMaps adapts the metered Electricity Maps client to the
// Provider interface, translating canonical regions to grid zones and
// upstream failures to the carbon error taxonomy.
type ElectricityMaps struct {
	client electricitymaps.Client
	zones  map[carbon.Region]string
}

// NewElectricityMaps wraps an Electricity Maps client as a Provider.
func NewElectricityMaps(client electricitymaps.Client) *ElectricityMaps {
	zones := make(map[carbon.Region]string, len(defaultZones))
	for k, v := range defaultZones {
		zones[k] = v
	}
	return &ElectricityMaps{client: client, zones: zones}
}

// WithZones extends or overrides the region-to-zone table.
func (p *ElectricityMaps) WithZones(zones map[carbon.Region]string) *ElectricityMaps {
	for k, v := range zones {
		p.zones[k] = v
	}
	return p
}

func (p *ElectricityMaps) Name() string { return "electricitymaps" }

// zoneFor translates a canonical region into an Electricity Maps zone.
func (p *ElectricityMaps) zoneFor(region carbon.Region) string {
	if z, ok := p.zones[region]; ok {
		return z
	}
	name := string(region)
	if i := strings.IndexByte(name, ':'); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToUpper(name)
}

// classify maps client errors to the carbon taxonomy.
func classifyEMError(err error) error {
	var se *electricitymaps.StatusError
	if errors.As(err, &se) {
		return eris.Wrap(carbon.ClassifyHTTPStatus(se.StatusCode), se.Error())
	}
	if strings.Contains(err.Error(), "unmarshal") {
		return eris.Wrap(carbon.ErrInvalidResponse, err.Error())
	}
	return carbon.ClassifyTransportError(err)
}

func (p *ElectricityMaps) FetchCurrent(ctx context.Context, region carbon.Region) (carbon.Sample, error) {
	zone := p.zoneFor(region)

	latest, err := p.client.Latest(ctx, zone)
	if err != nil {
		return carbon.Sample{}, classifyEMError(err)
	}
	if latest.CarbonIntensity < 0 || latest.Datetime.IsZero() {
		return carbon.Sample{}, eris.Wrapf(carbon.ErrInvalidResponse,
			"electricitymaps: implausible latest payload for zone %s", zone)
	}

	sample := carbon.Sample{
		Region:           region,
		IntensityGPerKWh: latest.CarbonIntensity,
		ObservedAt:       latest.Datetime.UTC(),
		Source:           p.Name(),
	}

	// Renewable share comes from a second endpoint; its failure degrades
	// the sample (0%) rather than failing the fetch.
	if breakdown, err := p.client.PowerBreakdown(ctx, zone); err == nil {
		sample.RenewablePct = breakdown.RenewablePercentage
	} else {
		zap.L().Debug("provider: power breakdown unavailable",
			zap.String("zone", zone),
			zap.Error(err),
		)
	}

	return sample, nil
}

func (p *ElectricityMaps) FetchForecast(ctx context.Context, region carbon.Region) (carbon.Forecast, error) {
	zone := p.zoneFor(region)

	resp, err := p.client.Forecast(ctx, zone)
	if err != nil {
		return carbon.Forecast{}, classifyEMError(err)
	}
	if len(resp.Forecast) == 0 {
		return carbon.Forecast{}, eris.Wrapf(carbon.ErrInvalidResponse,
			"electricitymaps: empty forecast for zone %s", zone)
	}

	points := make([]carbon.ForecastPoint, 0, len(resp.Forecast))
	for _, e := range resp.Forecast {
		if e.CarbonIntensity < 0 || e.Datetime.IsZero() {
			return carbon.Forecast{}, eris.Wrapf(carbon.ErrInvalidResponse,
				"electricitymaps: implausible forecast entry for zone %s", zone)
		}
		points = append(points, carbon.ForecastPoint{
			At:               e.Datetime.UTC(),
			IntensityGPerKWh: e.CarbonIntensity,
		})
	}

	generatedAt := resp.UpdatedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now()
	}

	return carbon.Forecast{
		Region:      region,
		Points:      points,
		GeneratedAt: generatedAt.UTC(),
		Source:      p.Name(),
	}, nil
}
