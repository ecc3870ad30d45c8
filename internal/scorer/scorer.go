// Package scorer computes the carbon component of a placement score. Scores
// are recomputed per request from the cache; the scorer holds no state of its
// own and never fails outright, since an unscoreable region must not block
// scheduling.
package scorer

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/stellar-k8s/carbonsched/internal/carbon"
	"github.com/stellar-k8s/carbonsched/internal/config"
	"github.com/stellar-k8s/carbonsched/internal/topology"
)

// DataSource is the slice of the provider chain the scorer reads from.
type DataSource interface {
	Current(ctx context.Context, region carbon.Region) (carbon.Sample, carbon.Confidence)
	CachedIntensities() map[carbon.Region]carbon.Sample
}

// Scorer turns cached carbon data into normalized placement scores.
type Scorer struct {
	source DataSource
	dir    *topology.Directory
	cfg    config.ScorerConfig
}

// New creates a scorer over the given data source and region directory.
func New(source DataSource, dir *topology.Directory, cfg config.ScorerConfig) *Scorer {
	return &Scorer{source: source, dir: dir, cfg: cfg}
}

// Score produces the carbon score for one candidate region. Ineligible
// workloads always receive the neutral score; carbon data must never
// penalize a workload that opted out.
func (s *Scorer) Score(ctx context.Context, region carbon.Region, eligible bool) carbon.ScoreResult {
	if !eligible {
		return carbon.ScoreResult{
			Region:     region,
			Score:      s.cfg.NeutralScore,
			Confidence: carbon.ConfidenceFresh,
			Rationale:  "not applicable: workload not eligible for carbon-aware placement",
		}
	}

	sample, conf := s.source.Current(ctx, region)
	if conf == carbon.ConfidenceUnavailable {
		return carbon.ScoreResult{
			Region:     region,
			Score:      s.cfg.UnavailableScore,
			Confidence: carbon.ConfidenceUnavailable,
			Rationale:  "no data, fallback applied",
		}
	}

	score, lo, hi := s.normalize(sample.IntensityGPerKWh)
	return carbon.ScoreResult{
		Region:     region,
		Score:      score,
		Confidence: conf,
		Rationale: fmt.Sprintf("intensity %.0f gCO2/kWh (%s data, cached range %.0f-%.0f)",
			sample.IntensityGPerKWh, conf, lo, hi),
		SampleObservedAt: sample.ObservedAt,
	}
}

// ScoreLabels resolves a node's topology labels and scores the resulting
// region. Unresolvable labels yield a neutral result marked unavailable so
// the caller can see the node was excluded rather than mis-scored.
func (s *Scorer) ScoreLabels(ctx context.Context, labels map[string]string, eligible bool) carbon.ScoreResult {
	region, err := s.dir.Resolve(labels)
	if err != nil {
		if !errors.Is(err, carbon.ErrUnknownTopology) {
			zap.L().Warn("scorer: unexpected resolve failure", zap.Error(err))
		}
		return carbon.ScoreResult{
			Score:      s.cfg.NeutralScore,
			Confidence: carbon.ConfidenceUnavailable,
			Rationale:  "unknown topology, excluded from carbon-aware scoring",
		}
	}
	return s.Score(ctx, region, eligible)
}

// normalize maps an intensity onto [MinScore, MaxScore], inverse-monotonic
// against the min/max intensity across all currently cached regions so scores
// are comparable within a scheduling round. It returns the score and the
// range it was normalized against.
func (s *Scorer) normalize(intensity float64) (score, lo, hi float64) {
	cached := s.source.CachedIntensities()
	lo, hi = intensity, intensity
	for _, sample := range cached {
		if sample.IntensityGPerKWh < lo {
			lo = sample.IntensityGPerKWh
		}
		if sample.IntensityGPerKWh > hi {
			hi = sample.IntensityGPerKWh
		}
	}

	if hi <= lo {
		// Degenerate range: every cached region reads the same. Nothing to
		// rank on, so score mid-range.
		return (s.cfg.MinScore + s.cfg.MaxScore) / 2, lo, hi
	}

	frac := (intensity - lo) / (hi - lo)
	score = s.cfg.MaxScore - frac*(s.cfg.MaxScore-s.cfg.MinScore)
	if score < s.cfg.MinScore {
		score = s.cfg.MinScore
	}
	if score > s.cfg.MaxScore {
		score = s.cfg.MaxScore
	}
	return score, lo, hi
}

// PickBest selects the winning candidate deterministically: highest score,
// then most recent backing sample, then lexical region order.
func PickBest(results []carbon.ScoreResult) (carbon.ScoreResult, bool) {
	if len(results) == 0 {
		return carbon.ScoreResult{}, false
	}
	ranked := append([]carbon.ScoreResult(nil), results...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if !ranked[i].SampleObservedAt.Equal(ranked[j].SampleObservedAt) {
			return ranked[i].SampleObservedAt.After(ranked[j].SampleObservedAt)
		}
		return ranked[i].Region < ranked[j].Region
	})
	return ranked[0], true
}
