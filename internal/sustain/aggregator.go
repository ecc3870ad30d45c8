package sustain

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/stellar-k8s/carbonsched/internal/carbon"
	"github.com/stellar-k8s/carbonsched/internal/chain"
	"github.com/stellar-k8s/carbonsched/internal/config"
	"github.com/stellar-k8s/carbonsched/internal/topology"
)

// CacheReader is the read-only slice of the provider chain the aggregator
// consumes. It must never force a synchronous upstream refresh.
type CacheReader interface {
	Peek(region carbon.Region) (carbon.Sample, carbon.Confidence, bool)
	ForecastFor(region carbon.Region) (carbon.Forecast, bool, bool)
	HealthReport() []chain.Health
}

// Recorder persists snapshots for later inspection. Recording failures are
// logged, never propagated into the rebuild path.
type Recorder interface {
	RecordSnapshot(ctx context.Context, snap *Snapshot) error
}

// Aggregator periodically rebuilds the sustainability snapshot and publishes
// it atomically for dashboard readers.
type Aggregator struct {
	cache    CacheReader
	dir      *topology.Directory
	regions  []carbon.Region
	nodes    []Node
	baseline float64
	interval time.Duration
	recorder Recorder
	now      func() time.Time

	current atomic.Pointer[Snapshot]
	log     *zap.Logger
}

// New creates an aggregator over the given cache view. regions is the set to
// report on; nodes is the inventory footprints are estimated for. recorder
// may be nil to disable history recording.
func New(
	cache CacheReader,
	dir *topology.Directory,
	regions []carbon.Region,
	nodes []Node,
	footprint config.FootprintConfig,
	interval time.Duration,
	recorder Recorder,
) *Aggregator {
	return &Aggregator{
		cache:    cache,
		dir:      dir,
		regions:  regions,
		nodes:    nodes,
		baseline: footprint.NodeBaselineKW,
		interval: interval,
		recorder: recorder,
		now:      time.Now,
		log:      zap.L().With(zap.String("component", "sustain.aggregator")),
	}
}

// WithNow fixes the aggregator's clock for tests.
func (a *Aggregator) WithNow(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Latest returns the most recently published snapshot, or nil before the
// first rebuild. The returned snapshot is complete; a rebuild in progress is
// invisible until it is swapped in.
func (a *Aggregator) Latest() *Snapshot {
	return a.current.Load()
}

// Run rebuilds the snapshot on a fixed interval until ctx is cancelled. One
// rebuild runs immediately so the dashboard has data at startup.
func (a *Aggregator) Run(ctx context.Context) {
	a.log.Info("starting snapshot loop", zap.Duration("interval", a.interval))

	a.Rebuild(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.log.Info("snapshot loop stopped")
			return
		case <-ticker.C:
			a.Rebuild(ctx)
		}
	}
}

// Rebuild constructs a fresh snapshot, publishes it, and records it to the
// history sink.
func (a *Aggregator) Rebuild(ctx context.Context) *Snapshot {
	snap := a.BuildSnapshot()
	a.current.Store(snap)

	if a.recorder != nil {
		if err := a.recorder.RecordSnapshot(ctx, snap); err != nil {
			a.log.Warn("history recording failed", zap.Error(err))
		}
	}

	a.log.Debug("snapshot published",
		zap.Int("regions", len(snap.Regions)),
		zap.Int("nodes", len(snap.Nodes)),
	)
	return snap
}

// BuildSnapshot assembles a snapshot from the current cache state. It reads
// a point-in-time view of the cache, so scoring reads are never blocked by
// aggregation.
func (a *Aggregator) BuildSnapshot() *Snapshot {
	snap := &Snapshot{
		GeneratedAt: a.now().UTC(),
		Forecasts:   make(map[carbon.Region]ForecastView, len(a.regions)),
		Health:      a.cache.HealthReport(),
	}

	snap.Regions = a.buildRegions()
	snap.Nodes = a.buildFootprints()
	snap.Forecasts = a.buildForecasts()
	snap.Totals = buildTotals(snap.Regions, snap.Nodes)
	return snap
}

func (a *Aggregator) buildRegions() []RegionMetrics {
	metrics := make([]RegionMetrics, 0, len(a.regions))
	for _, region := range a.regions {
		sample, conf, ok := a.cache.Peek(region)
		rm := RegionMetrics{Region: region, Confidence: conf, HasData: ok}
		if ok {
			rm.IntensityGPerKWh = sample.IntensityGPerKWh
			rm.RenewablePct = sample.RenewablePct
			rm.ObservedAt = sample.ObservedAt
			rm.Source = sample.Source
		}
		metrics = append(metrics, rm)
	}

	// Rank data-backed regions ascending by intensity, ties by region id;
	// regions without data sort last and stay unranked.
	sort.SliceStable(metrics, func(i, j int) bool {
		if metrics[i].HasData != metrics[j].HasData {
			return metrics[i].HasData
		}
		if !metrics[i].HasData {
			return metrics[i].Region < metrics[j].Region
		}
		if metrics[i].IntensityGPerKWh != metrics[j].IntensityGPerKWh {
			return metrics[i].IntensityGPerKWh < metrics[j].IntensityGPerKWh
		}
		return metrics[i].Region < metrics[j].Region
	})
	rank := 0
	for i := range metrics {
		if metrics[i].HasData {
			rank++
			metrics[i].Rank = rank
		}
	}
	return metrics
}

func (a *Aggregator) buildFootprints() []NodeFootprint {
	footprints := make([]NodeFootprint, 0, len(a.nodes))
	for _, node := range a.nodes {
		fp := NodeFootprint{Node: node.Name}

		region, err := a.dir.Resolve(node.Labels)
		if err != nil {
			fp.Reason = "unknown topology"
			footprints = append(footprints, fp)
			continue
		}
		fp.Region = region

		sample, _, ok := a.cache.Peek(region)
		if !ok {
			fp.Reason = "no carbon data for region"
			footprints = append(footprints, fp)
			continue
		}

		// baseline kW × gCO2/kWh = grams per hour.
		fp.GramsCO2PerHour = a.baseline * sample.IntensityGPerKWh
		fp.Known = true
		footprints = append(footprints, fp)
	}
	return footprints
}

func (a *Aggregator) buildForecasts() map[carbon.Region]ForecastView {
	views := make(map[carbon.Region]ForecastView, len(a.regions))
	for _, region := range a.regions {
		forecast, stale, ok := a.cache.ForecastFor(region)
		if !ok {
			continue
		}
		views[region] = ForecastView{
			Region:      region,
			Points:      forecast.Points,
			GeneratedAt: forecast.GeneratedAt,
			Stale:       stale,
		}
	}
	return views
}

func buildTotals(regions []RegionMetrics, nodes []NodeFootprint) Totals {
	t := Totals{
		RegionsTotal: len(regions),
		NodesTotal:   len(nodes),
	}

	var sum float64
	for _, rm := range regions {
		if !rm.HasData {
			continue
		}
		t.RegionsWithData++
		sum += rm.IntensityGPerKWh
		if rm.Rank == 1 {
			t.GreenestRegion = rm.Region
		}
		// Regions arrive rank-ordered, so the last data-backed one is dirtiest.
		t.DirtiestRegion = rm.Region
	}
	if t.RegionsWithData > 0 {
		t.AvgIntensityGPerKWh = sum / float64(t.RegionsWithData)
	}

	for _, fp := range nodes {
		if fp.Known {
			t.NodesKnown++
			t.TotalKnownGramsCO2H += fp.GramsCO2PerHour
		}
	}
	return t
}
