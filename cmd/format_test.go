package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stellar-k8s/carbonsched/internal/carbon"
	"github.com/stellar-k8s/carbonsched/internal/chain"
	"github.com/stellar-k8s/carbonsched/internal/sustain"
)

func TestFormatScores(t *testing.T) {
	t.Parallel()

	results := []carbon.ScoreResult{
		{Region: "aws:us-west-2", Score: 100, Confidence: carbon.ConfidenceFresh,
			Rationale: "intensity 50 gCO2/kWh (fresh data, cached range 50-400)"},
		{Region: "aws:us-east-1", Score: 0, Confidence: carbon.ConfidenceFresh,
			Rationale: "intensity 400 gCO2/kWh (fresh data, cached range 50-400)"},
	}

	var buf bytes.Buffer
	formatScores(&buf, results, results[0])
	out := buf.String()

	assert.Contains(t, out, "REGION")
	assert.Contains(t, out, "aws:us-west-2")
	assert.Contains(t, out, "100.0")
	assert.Contains(t, out, "Best placement: aws:us-west-2 (score 100.0)")
}

func TestFormatRegions(t *testing.T) {
	t.Parallel()

	snap := &sustain.Snapshot{
		Regions: []sustain.RegionMetrics{
			{Region: "aws:us-west-2", IntensityGPerKWh: 50, RenewablePct: 80,
				Confidence: carbon.ConfidenceFresh, Rank: 1, HasData: true, Source: "mock"},
			{Region: "aws:no-data", Confidence: carbon.ConfidenceUnavailable},
		},
		Totals: sustain.Totals{
			AvgIntensityGPerKWh: 50,
			GreenestRegion:      "aws:us-west-2",
			DirtiestRegion:      "aws:us-west-2",
			RegionsWithData:     1,
		},
	}

	var buf bytes.Buffer
	formatRegions(&buf, snap)
	out := buf.String()

	assert.Contains(t, out, "50 g/kWh")
	assert.Contains(t, out, "80%")
	assert.Contains(t, out, "aws:no-data")
	assert.Contains(t, out, "unavailable")
	assert.Contains(t, out, "greenest: aws:us-west-2")
}

func TestFormatHealth(t *testing.T) {
	t.Parallel()

	report := []chain.Health{
		{Provider: "electricitymaps", ConsecutiveFailures: 3, LastError: "rate limited"},
		{Provider: "mock", LastSuccess: time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)},
	}

	var buf bytes.Buffer
	formatHealth(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "electricitymaps")
	assert.Contains(t, out, "rate limited")
	assert.Contains(t, out, "never")
	assert.Contains(t, out, "2026-08-26 12:00:00")
}
