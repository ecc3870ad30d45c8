// Package chain implements the provider chain and cache: the single point of
// truth for what the engine currently believes the carbon data is for each
// region. It shields callers from upstream unreliability by falling back
// across providers, serving stale data on error, and collapsing concurrent
// refreshes per region into a single upstream call.
package chain

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/stellar-k8s/carbonsched/internal/carbon"
	"github.com/stellar-k8s/carbonsched/internal/config"
	"github.com/stellar-k8s/carbonsched/internal/provider"
)

// entry owns at most one current sample and one forecast per region, each
// with its own freshness deadline. Entries are cache-internal; callers only
// ever receive copies.
type entry struct {
	sample        *carbon.Sample
	sampleFresh   time.Time
	forecast      *carbon.Forecast
	forecastFresh time.Time
}

type refreshKind int

const (
	refreshCurrent refreshKind = iota
	refreshForecast
)

type refreshRequest struct {
	region carbon.Region
	kind   refreshKind
}

// Chain wraps an ordered list of providers with a per-region TTL cache,
// per-provider health tracking, and single-flight refresh discipline.
type Chain struct {
	providers []provider.Provider
	cfg       config.CacheConfig
	now       func() time.Time

	mu      sync.RWMutex
	entries map[carbon.Region]*entry

	health *healthTable
	flight singleflight.Group

	refreshCh chan refreshRequest
	pendingMu sync.Mutex
	pending   map[refreshRequest]struct{}
}

// New creates a chain over the given providers in priority order.
func New(providers []provider.Provider, cfg config.CacheConfig) *Chain {
	return &Chain{
		providers: providers,
		cfg:       cfg,
		now:       time.Now,
		entries:   make(map[carbon.Region]*entry),
		health:    newHealthTable(providers),
		refreshCh: make(chan refreshRequest, 256),
		pending:   make(map[refreshRequest]struct{}),
	}
}

// WithNow fixes the chain's clock for tests.
func (c *Chain) WithNow(now func() time.Time) *Chain {
	c.now = now
	return c
}

// Run processes asynchronous refresh requests until ctx is cancelled.
// Reads that find stale entries enqueue work here instead of blocking.
func (c *Chain) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "chain.refresher"))
	log.Info("starting background refresher")

	for {
		select {
		case <-ctx.Done():
			log.Info("background refresher stopped")
			return
		case req := <-c.refreshCh:
			c.clearPending(req)
			rctx, cancel := context.WithTimeout(ctx, c.cfg.RefreshTimeout())
			var err error
			switch req.kind {
			case refreshCurrent:
				_, err = c.refreshCurrentSingleflight(rctx, req.region)
			case refreshForecast:
				_, err = c.refreshForecastSingleflight(rctx, req.region)
			}
			cancel()
			if err != nil {
				log.Warn("background refresh failed",
					zap.String("region", req.region.String()),
					zap.Error(err),
				)
			}
		}
	}
}

// Current returns the best-known intensity sample for a region together with
// its confidence tier. It never fails: a stale sample is served while a
// background refresh runs, and a total miss yields the policy fallback
// tagged unavailable.
func (c *Chain) Current(ctx context.Context, region carbon.Region) (carbon.Sample, carbon.Confidence) {
	now := c.now()

	c.mu.RLock()
	e := c.entries[region]
	var cached *carbon.Sample
	var fresh bool
	if e != nil && e.sample != nil {
		s := *e.sample
		cached = &s
		fresh = now.Before(e.sampleFresh)
	}
	c.mu.RUnlock()

	if cached != nil {
		if fresh {
			return *cached, carbon.ConfidenceFresh
		}
		// Serve stale immediately; refresh in the background.
		c.enqueue(refreshRequest{region: region, kind: refreshCurrent})
		return *cached, carbon.ConfidenceStale
	}

	// Cache miss: one bounded synchronous refresh attempt.
	rctx, cancel := context.WithTimeout(ctx, c.cfg.RefreshTimeout())
	defer cancel()
	sample, err := c.refreshCurrentSingleflight(rctx, region)
	if err != nil {
		zap.L().Warn("chain: no data for region, serving fallback",
			zap.String("region", region.String()),
			zap.Error(err),
		)
		return c.fallbackSample(region), carbon.ConfidenceUnavailable
	}
	return sample, carbon.ConfidenceFresh
}

// Peek returns the cached sample without triggering any refresh. Used by the
// aggregator, which must never force upstream traffic.
func (c *Chain) Peek(region carbon.Region) (carbon.Sample, carbon.Confidence, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e := c.entries[region]
	if e == nil || e.sample == nil {
		return carbon.Sample{}, carbon.ConfidenceUnavailable, false
	}
	s := *e.sample
	if c.now().Before(e.sampleFresh) {
		return s, carbon.ConfidenceFresh, true
	}
	return s, carbon.ConfidenceStale, true
}

// ForecastFor returns the cached forecast for a region and whether it is
// past its freshness deadline. A missing forecast enqueues a background
// fetch and reports ok=false; the dashboard path never blocks on upstream.
func (c *Chain) ForecastFor(region carbon.Region) (carbon.Forecast, bool, bool) {
	c.mu.RLock()
	e := c.entries[region]
	var cached *carbon.Forecast
	var fresh bool
	if e != nil && e.forecast != nil {
		f := *e.forecast
		f.Points = append([]carbon.ForecastPoint(nil), e.forecast.Points...)
		cached = &f
		fresh = c.now().Before(e.forecastFresh)
	}
	c.mu.RUnlock()

	if cached == nil {
		c.enqueue(refreshRequest{region: region, kind: refreshForecast})
		return carbon.Forecast{}, false, false
	}
	if !fresh {
		c.enqueue(refreshRequest{region: region, kind: refreshForecast})
		return *cached, true, true
	}
	return *cached, false, true
}

// CachedIntensities returns copies of every cached sample, fresh or stale.
// The scorer normalizes against this set so scores are comparable across a
// scheduling round.
func (c *Chain) CachedIntensities() map[carbon.Region]carbon.Sample {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[carbon.Region]carbon.Sample, len(c.entries))
	for region, e := range c.entries {
		if e.sample != nil {
			out[region] = *e.sample
		}
	}
	return out
}

// WarmUp primes the cache for the given regions with bounded parallelism.
// Individual failures are logged and do not abort the warm-up.
func (c *Chain) WarmUp(ctx context.Context, regions []carbon.Region) {
	log := zap.L().With(zap.String("component", "chain.warmup"))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, region := range regions {
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(gctx, c.cfg.RefreshTimeout())
			defer cancel()
			if _, err := c.refreshCurrentSingleflight(rctx, region); err != nil {
				log.Warn("warm-up current failed",
					zap.String("region", region.String()), zap.Error(err))
			}
			if _, err := c.refreshForecastSingleflight(rctx, region); err != nil {
				log.Warn("warm-up forecast failed",
					zap.String("region", region.String()), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	log.Info("cache warm-up complete", zap.Int("regions", len(regions)))
}

// HealthReport returns a point-in-time copy of each provider's health,
// in provider priority order.
func (c *Chain) HealthReport() []Health {
	return c.health.report()
}

// fallbackSample is the policy-configured default served when no data
// exists, so scoring never receives an unusable null in the hot path.
func (c *Chain) fallbackSample(region carbon.Region) carbon.Sample {
	return carbon.Sample{
		Region:           region,
		IntensityGPerKWh: c.cfg.FallbackIntensity,
		Source:           "fallback",
	}
}

// enqueue registers an asynchronous refresh, deduplicated per region and
// kind. A full queue drops the request; the next stale read re-enqueues it.
func (c *Chain) enqueue(req refreshRequest) {
	c.pendingMu.Lock()
	if _, ok := c.pending[req]; ok {
		c.pendingMu.Unlock()
		return
	}
	c.pending[req] = struct{}{}
	c.pendingMu.Unlock()

	select {
	case c.refreshCh <- req:
	default:
		c.clearPending(req)
	}
}

func (c *Chain) clearPending(req refreshRequest) {
	c.pendingMu.Lock()
	delete(c.pending, req)
	c.pendingMu.Unlock()
}

// refreshCurrentSingleflight collapses concurrent refreshes for the same
// region into one provider-chain walk; late joiners share the result.
func (c *Chain) refreshCurrentSingleflight(ctx context.Context, region carbon.Region) (carbon.Sample, error) {
	v, err, _ := c.flight.Do("current|"+region.String(), func() (any, error) {
		return c.refreshCurrentOnce(ctx, region)
	})
	if err != nil {
		return carbon.Sample{}, err
	}
	return v.(carbon.Sample), nil
}

func (c *Chain) refreshForecastSingleflight(ctx context.Context, region carbon.Region) (carbon.Forecast, error) {
	v, err, _ := c.flight.Do("forecast|"+region.String(), func() (any, error) {
		return c.refreshForecastOnce(ctx, region)
	})
	if err != nil {
		return carbon.Forecast{}, err
	}
	return v.(carbon.Forecast), nil
}

// refreshCurrentOnce walks the provider chain once: a single attempt per
// provider with a hard per-call timeout, first success wins. All-fail leaves
// any expired entry in place (serve-stale-on-error).
func (c *Chain) refreshCurrentOnce(ctx context.Context, region carbon.Region) (carbon.Sample, error) {
	var lastErr error
	for _, p := range c.providers {
		pctx, cancel := context.WithTimeout(ctx, c.cfg.ProviderTimeout())
		sample, err := p.FetchCurrent(pctx, region)
		cancel()
		if err != nil {
			c.health.recordFailure(p.Name(), err)
			zap.L().Debug("chain: provider failed, trying next",
				zap.String("provider", p.Name()),
				zap.String("region", region.String()),
				zap.Error(err),
			)
			lastErr = err
			continue
		}

		c.health.recordSuccess(p.Name(), c.now())
		c.storeSample(region, sample)
		return sample, nil
	}

	if lastErr == nil {
		lastErr = eris.New("no providers configured")
	}
	return carbon.Sample{}, eris.Wrapf(carbon.ErrUnavailable,
		"chain: all providers failed for region %s: %v", region, lastErr)
}

func (c *Chain) refreshForecastOnce(ctx context.Context, region carbon.Region) (carbon.Forecast, error) {
	var lastErr error
	for _, p := range c.providers {
		pctx, cancel := context.WithTimeout(ctx, c.cfg.ProviderTimeout())
		forecast, err := p.FetchForecast(pctx, region)
		cancel()
		if err != nil {
			c.health.recordFailure(p.Name(), err)
			lastErr = err
			continue
		}

		c.health.recordSuccess(p.Name(), c.now())
		c.storeForecast(region, forecast)
		return forecast, nil
	}

	if lastErr == nil {
		lastErr = eris.New("no providers configured")
	}
	return carbon.Forecast{}, eris.Wrapf(carbon.ErrUnavailable,
		"chain: all providers failed for region %s forecast: %v", region, lastErr)
}

// storeSample writes a sample unless a newer one has already landed: a
// refresh that started earlier but completed later must not clobber fresher
// data, so the write is conditional on ObservedAt.
func (c *Chain) storeSample(region carbon.Region, sample carbon.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[region]
	if e == nil {
		e = &entry{}
		c.entries[region] = e
	}
	if e.sample != nil && sample.ObservedAt.Before(e.sample.ObservedAt) {
		return
	}
	s := sample
	e.sample = &s
	e.sampleFresh = c.now().Add(c.cfg.CurrentTTL())
}

// storeForecast replaces the forecast wholesale, subject to the same
// newer-data-wins rule on GeneratedAt.
func (c *Chain) storeForecast(region carbon.Region, forecast carbon.Forecast) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entries[region]
	if e == nil {
		e = &entry{}
		c.entries[region] = e
	}
	if e.forecast != nil && forecast.GeneratedAt.Before(e.forecast.GeneratedAt) {
		return
	}
	f := forecast
	f.Points = append([]carbon.ForecastPoint(nil), forecast.Points...)
	e.forecast = &f
	e.forecastFresh = c.now().Add(c.cfg.ForecastTTL())
}
