package provider

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"github.com/stellar-k8s/carbonsched/internal/carbon"
)

// Mock is a deterministic, network-free provider. Each region's intensity is
// seeded from a hash of its identifier, so repeated calls return identical
// values and tests can rely on fixed inputs via Seed.
type Mock struct {
	seeded map[carbon.Region]float64
	now    func() time.Time
}

// NewMock creates a mock provider with hash-seeded regional data.
func NewMock() *Mock {
	return &Mock{
		seeded: make(map[carbon.Region]float64),
		now:    time.Now,
	}
}

// WithNow fixes the mock's clock for tests.
func (m *Mock) WithNow(now func() time.Time) *Mock {
	m.now = now
	return m
}

// Seed pins a region to a fixed intensity, overriding the hash-derived value.
func (m *Mock) Seed(region carbon.Region, intensity float64) *Mock {
	m.seeded[region] = intensity
	return m
}

func (m *Mock) Name() string { return "mock" }

// baseIntensity derives a stable intensity in [60, 560) gCO2/kWh from the
// region identifier.
func (m *Mock) baseIntensity(region carbon.Region) float64 {
	if v, ok := m.seeded[region]; ok {
		return v
	}
	h := fnv.New32a()
	h.Write([]byte(region))
	return 60 + float64(h.Sum32()%500)
}

// renewableFor maps intensity back to a plausible renewable share: cleaner
// grids report higher renewable percentages.
func renewableFor(intensity float64) float64 {
	pct := 100 - intensity/6
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func (m *Mock) FetchCurrent(_ context.Context, region carbon.Region) (carbon.Sample, error) {
	intensity := m.baseIntensity(region)
	return carbon.Sample{
		Region:           region,
		IntensityGPerKWh: intensity,
		RenewablePct:     renewableFor(intensity),
		ObservedAt:       m.now().UTC(),
		Source:           m.Name(),
	}, nil
}

func (m *Mock) FetchForecast(_ context.Context, region carbon.Region) (carbon.Forecast, error) {
	base := m.baseIntensity(region)
	now := m.now().UTC().Truncate(time.Hour)

	points := make([]carbon.ForecastPoint, 24)
	for i := range points {
		// Diurnal curve: solar dip mid-day, peak in the evening.
		phase := 2 * math.Pi * float64(i) / 24
		points[i] = carbon.ForecastPoint{
			At:               now.Add(time.Duration(i) * time.Hour),
			IntensityGPerKWh: math.Max(0, base*(1+0.25*math.Sin(phase))),
		}
	}

	return carbon.Forecast{
		Region:      region,
		Points:      points,
		GeneratedAt: m.now().UTC(),
		Source:      m.Name(),
	}, nil
}
