package scorer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellar-k8s/carbonsched/internal/carbon"
	"github.com/stellar-k8s/carbonsched/internal/chain"
	"github.com/stellar-k8s/carbonsched/internal/config"
	"github.com/stellar-k8s/carbonsched/internal/provider"
	"github.com/stellar-k8s/carbonsched/internal/topology"
)

// fakeSource serves canned samples, standing in for the provider chain.
type fakeSource struct {
	samples    map[carbon.Region]carbon.Sample
	confidence map[carbon.Region]carbon.Confidence
}

func (f *fakeSource) Current(_ context.Context, region carbon.Region) (carbon.Sample, carbon.Confidence) {
	s, ok := f.samples[region]
	if !ok {
		return carbon.Sample{Region: region, IntensityGPerKWh: 450, Source: "fallback"},
			carbon.ConfidenceUnavailable
	}
	conf := carbon.ConfidenceFresh
	if c, ok := f.confidence[region]; ok {
		conf = c
	}
	return s, conf
}

func (f *fakeSource) CachedIntensities() map[carbon.Region]carbon.Sample {
	out := make(map[carbon.Region]carbon.Sample, len(f.samples))
	for r, s := range f.samples {
		out[r] = s
	}
	return out
}

func testScorerConfig() config.ScorerConfig {
	return config.ScorerConfig{
		MinScore:         0,
		MaxScore:         100,
		NeutralScore:     50,
		UnavailableScore: 40,
	}
}

func newTestScorer(t *testing.T, source *fakeSource) *Scorer {
	t.Helper()
	dir, err := topology.New(config.TopologyConfig{})
	require.NoError(t, err)
	return New(source, dir, testScorerConfig())
}

func sampleAt(region carbon.Region, intensity float64, observed time.Time) carbon.Sample {
	return carbon.Sample{
		Region:           region,
		IntensityGPerKWh: intensity,
		RenewablePct:     50,
		ObservedAt:       observed,
		Source:           "test",
	}
}

func TestScore_LowerIntensityScoresHigher(t *testing.T) {
	t.Parallel()

	now := time.Now()
	source := &fakeSource{samples: map[carbon.Region]carbon.Sample{
		"aws:us-west-2": sampleAt("aws:us-west-2", 50, now),
		"aws:us-east-1": sampleAt("aws:us-east-1", 400, now),
		"aws:eu-west-1": sampleAt("aws:eu-west-1", 200, now),
	}}
	s := newTestScorer(t, source)
	ctx := context.Background()

	west := s.Score(ctx, "aws:us-west-2", true)
	mid := s.Score(ctx, "aws:eu-west-1", true)
	east := s.Score(ctx, "aws:us-east-1", true)

	assert.Greater(t, west.Score, mid.Score)
	assert.Greater(t, mid.Score, east.Score)
	assert.InDelta(t, 100.0, west.Score, 0.001)
	assert.InDelta(t, 0.0, east.Score, 0.001)

	assert.Equal(t, carbon.ConfidenceFresh, west.Confidence)
	assert.Contains(t, west.Rationale, "fresh")
	assert.Contains(t, west.Rationale, "50 gCO2/kWh")
}

func TestScore_IneligibleIsNeutral(t *testing.T) {
	t.Parallel()

	now := time.Now()
	source := &fakeSource{samples: map[carbon.Region]carbon.Sample{
		"aws:us-west-2": sampleAt("aws:us-west-2", 50, now),
		"aws:us-east-1": sampleAt("aws:us-east-1", 400, now),
	}}
	s := newTestScorer(t, source)
	ctx := context.Background()

	for _, region := range []carbon.Region{"aws:us-west-2", "aws:us-east-1", "aws:no-data"} {
		res := s.Score(ctx, region, false)
		assert.InDelta(t, 50.0, res.Score, 0.001, "region %s", region)
		assert.Contains(t, res.Rationale, "not applicable")
	}
}

func TestScore_UnavailableUsesFallbackScore(t *testing.T) {
	t.Parallel()

	s := newTestScorer(t, &fakeSource{samples: map[carbon.Region]carbon.Sample{}})

	res := s.Score(context.Background(), "aws:nowhere", true)
	assert.InDelta(t, 40.0, res.Score, 0.001)
	assert.Equal(t, carbon.ConfidenceUnavailable, res.Confidence)
	assert.Equal(t, "no data, fallback applied", res.Rationale)
}

func TestScore_StaleConfidenceCarriedThrough(t *testing.T) {
	t.Parallel()

	now := time.Now()
	source := &fakeSource{
		samples: map[carbon.Region]carbon.Sample{
			"aws:us-west-2": sampleAt("aws:us-west-2", 100, now),
			"aws:us-east-1": sampleAt("aws:us-east-1", 300, now),
		},
		confidence: map[carbon.Region]carbon.Confidence{
			"aws:us-west-2": carbon.ConfidenceStale,
		},
	}
	s := newTestScorer(t, source)

	res := s.Score(context.Background(), "aws:us-west-2", true)
	assert.Equal(t, carbon.ConfidenceStale, res.Confidence)
	assert.Contains(t, res.Rationale, "stale")
}

func TestScore_Idempotent(t *testing.T) {
	t.Parallel()

	now := time.Now()
	source := &fakeSource{samples: map[carbon.Region]carbon.Sample{
		"aws:us-west-2": sampleAt("aws:us-west-2", 120, now),
		"aws:us-east-1": sampleAt("aws:us-east-1", 380, now),
	}}
	s := newTestScorer(t, source)
	ctx := context.Background()

	first := s.Score(ctx, "aws:us-west-2", true)
	for range 5 {
		assert.Equal(t, first, s.Score(ctx, "aws:us-west-2", true))
	}
}

func TestScore_DegenerateRangeScoresMidRange(t *testing.T) {
	t.Parallel()

	now := time.Now()
	source := &fakeSource{samples: map[carbon.Region]carbon.Sample{
		"a": sampleAt("a", 250, now),
		"b": sampleAt("b", 250, now),
	}}
	s := newTestScorer(t, source)

	res := s.Score(context.Background(), "a", true)
	assert.InDelta(t, 50.0, res.Score, 0.001)
}

func TestScoreLabels(t *testing.T) {
	t.Parallel()

	now := time.Now()
	source := &fakeSource{samples: map[carbon.Region]carbon.Sample{
		"aws:us-west-2": sampleAt("aws:us-west-2", 50, now),
		"aws:us-east-1": sampleAt("aws:us-east-1", 400, now),
	}}
	dir, err := topology.New(config.TopologyConfig{})
	require.NoError(t, err)
	s := New(source, dir, testScorerConfig())
	ctx := context.Background()

	res := s.ScoreLabels(ctx, map[string]string{
		topology.LabelVendor: "aws",
		topology.LabelRegion: "us-west-2",
	}, true)
	assert.Equal(t, carbon.Region("aws:us-west-2"), res.Region)
	assert.InDelta(t, 100.0, res.Score, 0.001)

	// Missing topology labels exclude the node instead of mis-scoring it.
	res = s.ScoreLabels(ctx, map[string]string{"kubernetes.io/hostname": "n1"}, true)
	assert.InDelta(t, 50.0, res.Score, 0.001)
	assert.Equal(t, carbon.ConfidenceUnavailable, res.Confidence)
	assert.Contains(t, res.Rationale, "unknown topology")
}

// TestScore_SeededChain exercises the full path: seeded mock provider →
// chain → scorer.
func TestScore_SeededChain(t *testing.T) {
	t.Parallel()

	mock := provider.NewMock().
		Seed("aws:us-west-2", 50).
		Seed("aws:us-east-1", 400)
	ch := chain.New([]provider.Provider{mock}, config.CacheConfig{
		CurrentTTLMinutes:   5,
		ForecastTTLHours:    24,
		RefreshTimeoutSecs:  2,
		ProviderTimeoutSecs: 1,
		FallbackIntensity:   450,
	})
	dir, err := topology.New(config.TopologyConfig{})
	require.NoError(t, err)
	s := New(ch, dir, testScorerConfig())
	ctx := context.Background()

	ch.WarmUp(ctx, []carbon.Region{"aws:us-west-2", "aws:us-east-1"})

	west := s.Score(ctx, "aws:us-west-2", true)
	east := s.Score(ctx, "aws:us-east-1", true)

	assert.Greater(t, west.Score, east.Score)
	assert.Equal(t, carbon.ConfidenceFresh, west.Confidence)
	assert.Contains(t, west.Rationale, "fresh")

	best, ok := PickBest([]carbon.ScoreResult{west, east})
	require.True(t, ok)
	assert.Equal(t, carbon.Region("aws:us-west-2"), best.Region)
}

func TestPickBest(t *testing.T) {
	t.Parallel()

	now := time.Now()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		_, ok := PickBest(nil)
		assert.False(t, ok)
	})

	t.Run("highest score wins", func(t *testing.T) {
		t.Parallel()
		best, ok := PickBest([]carbon.ScoreResult{
			{Region: "a", Score: 60},
			{Region: "b", Score: 90},
			{Region: "c", Score: 30},
		})
		require.True(t, ok)
		assert.Equal(t, carbon.Region("b"), best.Region)
	})

	t.Run("score tie broken by newer sample", func(t *testing.T) {
		t.Parallel()
		best, ok := PickBest([]carbon.ScoreResult{
			{Region: "a", Score: 80, SampleObservedAt: now.Add(-time.Hour)},
			{Region: "b", Score: 80, SampleObservedAt: now},
		})
		require.True(t, ok)
		assert.Equal(t, carbon.Region("b"), best.Region)
	})

	t.Run("full tie broken lexically", func(t *testing.T) {
		t.Parallel()
		best, ok := PickBest([]carbon.ScoreResult{
			{Region: "z", Score: 80, SampleObservedAt: now},
			{Region: "a", Score: 80, SampleObservedAt: now},
		})
		require.True(t, ok)
		assert.Equal(t, carbon.Region("a"), best.Region)
	})

	t.Run("input order preserved", func(t *testing.T) {
		t.Parallel()
		in := []carbon.ScoreResult{{Region: "z", Score: 10}, {Region: "a", Score: 90}}
		PickBest(in)
		assert.Equal(t, carbon.Region("z"), in[0].Region)
	})
}
