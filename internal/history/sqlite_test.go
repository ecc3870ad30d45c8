package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellar-k8s/carbonsched/internal/carbon"
	"github.com/stellar-k8s/carbonsched/internal/config"
	"github.com/stellar-k8s/carbonsched/internal/sustain"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testSnapshot(generatedAt time.Time) *sustain.Snapshot {
	return &sustain.Snapshot{
		GeneratedAt: generatedAt,
		Regions: []sustain.RegionMetrics{
			{
				Region:           "aws:us-west-2",
				IntensityGPerKWh: 50,
				RenewablePct:     80,
				Confidence:       carbon.ConfidenceFresh,
				Rank:             1,
				HasData:          true,
			},
		},
		Nodes: []sustain.NodeFootprint{
			{Node: "validator-0", Region: "aws:us-west-2", GramsCO2PerHour: 17.5, Known: true},
		},
		Totals: sustain.Totals{
			AvgIntensityGPerKWh: 50,
			GreenestRegion:      "aws:us-west-2",
			DirtiestRegion:      "aws:us-west-2",
			RegionsTotal:        1,
			RegionsWithData:     1,
			NodesTotal:          1,
			NodesKnown:          1,
			TotalKnownGramsCO2H: 17.5,
		},
	}
}

func TestSQLiteStore_RecordAndList(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	for i := range 3 {
		require.NoError(t, s.RecordSnapshot(ctx, testSnapshot(base.Add(time.Duration(i)*time.Hour))))
	}

	records, err := s.ListSnapshots(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Newest first.
	assert.True(t, records[0].GeneratedAt.After(records[1].GeneratedAt))
	assert.Equal(t, "aws:us-west-2", records[0].GreenestRegion)
	assert.InDelta(t, 50.0, records[0].AvgIntensityGPerKWh, 0.001)

	// Payload round-trips including confidence tiers.
	require.NotNil(t, records[0].Snapshot)
	require.Len(t, records[0].Snapshot.Regions, 1)
	assert.Equal(t, carbon.ConfidenceFresh, records[0].Snapshot.Regions[0].Confidence)
	assert.True(t, records[0].Snapshot.Nodes[0].Known)
}

func TestSQLiteStore_ListFilter(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	for i := range 5 {
		require.NoError(t, s.RecordSnapshot(ctx, testSnapshot(base.Add(time.Duration(i)*time.Hour))))
	}

	records, err := s.ListSnapshots(ctx, Filter{Since: base.Add(3 * time.Hour)})
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = s.ListSnapshots(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		driver  string
		wantErr bool
	}{
		{driver: "none"},
		{driver: ""},
		{driver: "bogus", wantErr: true},
	}
	for _, tt := range tests {
		s, err := Open(context.Background(), config.HistoryConfig{Driver: tt.driver})
		if tt.wantErr {
			assert.Error(t, err, "driver %q", tt.driver)
			continue
		}
		require.NoError(t, err, "driver %q", tt.driver)
		assert.NoError(t, s.RecordSnapshot(context.Background(), testSnapshot(time.Now())))
		assert.NoError(t, s.Close())
	}
}
