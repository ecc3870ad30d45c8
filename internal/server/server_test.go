package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellar-k8s/carbonsched/internal/carbon"
	"github.com/stellar-k8s/carbonsched/internal/chain"
	"github.com/stellar-k8s/carbonsched/internal/config"
	"github.com/stellar-k8s/carbonsched/internal/sustain"
)

type fixedSource struct {
	snap *sustain.Snapshot
}

func (f *fixedSource) Latest() *sustain.Snapshot { return f.snap }

func dashboardSnapshot() *sustain.Snapshot {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	return &sustain.Snapshot{
		GeneratedAt: now,
		Regions: []sustain.RegionMetrics{
			{Region: "aws:us-west-2", IntensityGPerKWh: 50, RenewablePct: 80,
				Confidence: carbon.ConfidenceFresh, Rank: 1, HasData: true},
			{Region: "aws:us-east-1", IntensityGPerKWh: 400, RenewablePct: 20,
				Confidence: carbon.ConfidenceStale, Rank: 2, HasData: true},
		},
		Nodes: []sustain.NodeFootprint{
			{Node: "validator-0", Region: "aws:us-west-2", GramsCO2PerHour: 17.5, Known: true},
			{Node: "validator-1", Known: false, Reason: "unknown topology"},
		},
		Totals: sustain.Totals{
			AvgIntensityGPerKWh: 225,
			GreenestRegion:      "aws:us-west-2",
			DirtiestRegion:      "aws:us-east-1",
			RegionsTotal:        2,
			RegionsWithData:     2,
			NodesTotal:          2,
			NodesKnown:          1,
			TotalKnownGramsCO2H: 17.5,
		},
		Forecasts: map[carbon.Region]sustain.ForecastView{
			"aws:us-west-2": {
				Region:      "aws:us-west-2",
				Points:      []carbon.ForecastPoint{{At: now, IntensityGPerKWh: 55}},
				GeneratedAt: now.Add(-25 * time.Hour),
				Stale:       true,
			},
		},
		Health: []chain.Health{
			{Provider: "electricitymaps", ConsecutiveFailures: 2, LastError: "rate limited"},
			{Provider: "mock", ConsecutiveFailures: 0, LastSuccess: now},
		},
	}
}

func newTestServer(t *testing.T, snap *sustain.Snapshot) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(&fixedSource{snap: snap}, config.ServerConfig{}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, dashboardSnapshot())
	var body map[string]string
	code := get(t, srv.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, dashboardSnapshot())
	var body struct {
		GeneratedAt time.Time      `json:"generated_at"`
		Totals      sustain.Totals `json:"totals"`
	}
	code := get(t, srv.URL+"/api/v1/sustainability/metrics", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, carbon.Region("aws:us-west-2"), body.Totals.GreenestRegion)
	assert.InDelta(t, 225.0, body.Totals.AvgIntensityGPerKWh, 0.001)
}

func TestRegions(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, dashboardSnapshot())
	var body struct {
		Regions []sustain.RegionMetrics `json:"regions"`
	}
	code := get(t, srv.URL+"/api/v1/sustainability/regions", &body)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, body.Regions, 2)
	assert.Equal(t, 1, body.Regions[0].Rank)
}

func TestRegionDetail(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, dashboardSnapshot())

	t.Run("known region with escaped colon", func(t *testing.T) {
		t.Parallel()
		var body sustain.RegionMetrics
		code := get(t, srv.URL+"/api/v1/sustainability/regions/aws%3Aus-west-2", &body)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, carbon.Region("aws:us-west-2"), body.Region)
		assert.InDelta(t, 50.0, body.IntensityGPerKWh, 0.001)
	})

	t.Run("unknown region gets typed 404", func(t *testing.T) {
		t.Parallel()
		var body errorBody
		code := get(t, srv.URL+"/api/v1/sustainability/regions/aws%3Anowhere", &body)
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, "unknown_region", body.Error)
		assert.Contains(t, body.Message, "aws:nowhere")
	})
}

func TestForecast(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, dashboardSnapshot())

	t.Run("series past freshness horizon is flagged stale", func(t *testing.T) {
		t.Parallel()
		var body sustain.ForecastView
		code := get(t, srv.URL+"/api/v1/sustainability/forecast/aws%3Aus-west-2", &body)
		assert.Equal(t, http.StatusOK, code)
		assert.True(t, body.Stale)
		require.Len(t, body.Points, 1)
		assert.InDelta(t, 55.0, body.Points[0].IntensityGPerKWh, 0.001)
	})

	t.Run("known region without cached forecast", func(t *testing.T) {
		t.Parallel()
		var body errorBody
		code := get(t, srv.URL+"/api/v1/sustainability/forecast/aws%3Aus-east-1", &body)
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, "forecast_unavailable", body.Error)
	})

	t.Run("unknown region", func(t *testing.T) {
		t.Parallel()
		var body errorBody
		code := get(t, srv.URL+"/api/v1/sustainability/forecast/gcp%3Anowhere", &body)
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, "unknown_region", body.Error)
	})
}

func TestNodes(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, dashboardSnapshot())
	var body struct {
		Nodes []sustain.NodeFootprint `json:"nodes"`
	}
	code := get(t, srv.URL+"/api/v1/sustainability/nodes", &body)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, body.Nodes, 2)
	assert.True(t, body.Nodes[0].Known)
	assert.False(t, body.Nodes[1].Known)
	assert.Equal(t, "unknown topology", body.Nodes[1].Reason)
}

func TestProviderHealth(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, dashboardSnapshot())
	var body struct {
		Providers []chain.Health `json:"providers"`
	}
	code := get(t, srv.URL+"/api/v1/sustainability/health", &body)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, body.Providers, 2)
	assert.Equal(t, 2, body.Providers[0].ConsecutiveFailures)
	assert.Equal(t, "rate limited", body.Providers[0].LastError)
}

func TestNoSnapshotYet(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)
	for _, path := range []string{
		"/api/v1/sustainability/metrics",
		"/api/v1/sustainability/regions",
		"/api/v1/sustainability/nodes",
		"/api/v1/sustainability/health",
	} {
		var body errorBody
		code := get(t, srv.URL+path, &body)
		assert.Equal(t, http.StatusServiceUnavailable, code, "path %s", path)
		assert.Equal(t, "snapshot_unavailable", body.Error)
	}
}
