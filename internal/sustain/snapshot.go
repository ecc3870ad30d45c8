// Package sustain builds sustainability snapshots for the dashboard: regional
// rankings, per-node footprint estimates, forecast views, and provider health,
// aggregated from cache state without ever forcing upstream traffic.
package sustain

import (
	"time"

	"github.com/stellar-k8s/carbonsched/internal/carbon"
	"github.com/stellar-k8s/carbonsched/internal/chain"
)

// RegionMetrics is one region's entry in a snapshot, ranked ascending by
// intensity (rank 1 is greenest). Regions without cached data carry no rank.
type RegionMetrics struct {
	Region           carbon.Region     `json:"region"`
	IntensityGPerKWh float64           `json:"intensity_g_per_kwh"`
	RenewablePct     float64           `json:"renewable_pct"`
	Confidence       carbon.Confidence `json:"confidence"`
	ObservedAt       time.Time         `json:"observed_at,omitzero"`
	Source           string            `json:"source,omitempty"`
	Rank             int               `json:"rank,omitempty"`
	HasData          bool              `json:"has_data"`
}

// NodeFootprint is the estimated hourly CO2 contribution of one node. A node
// whose region cannot be resolved or has no usable data is reported unknown,
// never zero, to avoid under-reporting.
type NodeFootprint struct {
	Node            string        `json:"node"`
	Region          carbon.Region `json:"region,omitempty"`
	GramsCO2PerHour float64       `json:"grams_co2_per_hour"`
	Known           bool          `json:"known"`
	Reason          string        `json:"reason,omitempty"`
}

// ForecastView is a region's cached 24-hour forecast, flagged stale when past
// its freshness deadline.
type ForecastView struct {
	Region      carbon.Region          `json:"region"`
	Points      []carbon.ForecastPoint `json:"points"`
	GeneratedAt time.Time              `json:"generated_at"`
	Stale       bool                   `json:"stale"`
}

// Totals summarizes a snapshot for the dashboard landing view.
type Totals struct {
	AvgIntensityGPerKWh float64       `json:"avg_intensity_g_per_kwh"`
	GreenestRegion      carbon.Region `json:"greenest_region,omitempty"`
	DirtiestRegion      carbon.Region `json:"dirtiest_region,omitempty"`
	RegionsTotal        int           `json:"regions_total"`
	RegionsWithData     int           `json:"regions_with_data"`
	NodesTotal          int           `json:"nodes_total"`
	NodesKnown          int           `json:"nodes_known"`
	TotalKnownGramsCO2H float64       `json:"total_known_grams_co2_per_hour"`
}

// Snapshot is an immutable view of cluster sustainability at one instant.
// Built as a single value and published atomically; readers always see the
// last fully-built snapshot.
type Snapshot struct {
	GeneratedAt time.Time                      `json:"generated_at"`
	Regions     []RegionMetrics                `json:"regions"`
	Nodes       []NodeFootprint                `json:"nodes"`
	Totals      Totals                         `json:"totals"`
	Forecasts   map[carbon.Region]ForecastView `json:"forecasts"`
	Health      []chain.Health                 `json:"provider_health"`
}

// RegionDetail returns the metrics entry for one region, if present.
func (s *Snapshot) RegionDetail(region carbon.Region) (RegionMetrics, bool) {
	for _, rm := range s.Regions {
		if rm.Region == region {
			return rm, true
		}
	}
	return RegionMetrics{}, false
}
