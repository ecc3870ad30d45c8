// Package carbon defines the core data model for carbon-intensity-aware
// placement: regions, intensity samples, forecasts, confidence tiers, and
// scoring results.
package carbon

import (
	"strings"
	"time"
)

// Region is a canonical, vendor-qualified region identifier, e.g.
// "aws:us-west-2". It is the sole key into the cache and the directory.
type Region string

// String returns the region as a plain string.
func (r Region) String() string { return string(r) }

// Vendor returns the cloud vendor part of the region, or "" if unqualified.
func (r Region) Vendor() string {
	if i := strings.IndexByte(string(r), ':'); i >= 0 {
		return string(r)[:i]
	}
	return ""
}

// NewRegion builds a canonical region identifier from vendor and region name.
func NewRegion(vendor, name string) Region {
	return Region(strings.ToLower(vendor) + ":" + strings.ToLower(name))
}

// Sample is a single carbon-intensity observation for a region. Samples are
// immutable; a newer sample for the same region supersedes an older one.
type Sample struct {
	Region           Region    `json:"region"`
	IntensityGPerKWh float64   `json:"intensity_g_per_kwh"`
	RenewablePct     float64   `json:"renewable_pct"`
	ObservedAt       time.Time `json:"observed_at"`
	Source           string    `json:"source"`
}

// ForecastPoint is one predicted intensity value in a forecast series.
type ForecastPoint struct {
	At               time.Time `json:"at"`
	IntensityGPerKWh float64   `json:"intensity_g_per_kwh"`
}

// Forecast is an ordered 24-hour intensity forecast for a region. It is
// replaced wholesale on refresh, never patched.
type Forecast struct {
	Region      Region          `json:"region"`
	Points      []ForecastPoint `json:"points"`
	GeneratedAt time.Time       `json:"generated_at"`
	Source      string          `json:"source"`
}

// Confidence describes how much to trust a cached carbon value at read time.
type Confidence int

const (
	// ConfidenceFresh means the value is within its freshness deadline.
	ConfidenceFresh Confidence = iota
	// ConfidenceStale means the value is past its deadline but still served.
	ConfidenceStale
	// ConfidenceUnavailable means no usable cached value exists and a
	// policy fallback was substituted.
	ConfidenceUnavailable
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceFresh:
		return "fresh"
	case ConfidenceStale:
		return "stale"
	case ConfidenceUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the confidence tier as its string form.
func (c Confidence) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// UnmarshalJSON parses the string form produced by MarshalJSON.
func (c *Confidence) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(data), `"`) {
	case "fresh":
		*c = ConfidenceFresh
	case "stale":
		*c = ConfidenceStale
	default:
		*c = ConfidenceUnavailable
	}
	return nil
}

// ScoreResult is the carbon component of a placement decision for one
// candidate region. Recomputed per request, never stored.
type ScoreResult struct {
	Region     Region     `json:"region"`
	Score      float64    `json:"score"`
	Confidence Confidence `json:"confidence"`
	Rationale  string     `json:"rationale"`

	// SampleObservedAt carries the backing sample's timestamp for
	// deterministic tie-breaking between equal scores.
	SampleObservedAt time.Time `json:"sample_observed_at,omitempty"`
}
