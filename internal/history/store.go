// Package history persists sustainability snapshots so operators can inspect
// footprint trends after the fact. Recording is best-effort; the aggregator
// treats sink failures as non-fatal.
package history

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/stellar-k8s/carbonsched/internal/config"
	"github.com/stellar-k8s/carbonsched/internal/sustain"
)

// Record is one persisted snapshot row.
type Record struct {
	ID                  string            `json:"id"`
	GeneratedAt         time.Time         `json:"generated_at"`
	AvgIntensityGPerKWh float64           `json:"avg_intensity_g_per_kwh"`
	GreenestRegion      string            `json:"greenest_region"`
	TotalKnownGramsCO2H float64           `json:"total_known_grams_co2_per_hour"`
	Snapshot            *sustain.Snapshot `json:"snapshot,omitempty"`
}

// Filter specifies criteria for listing snapshot records.
type Filter struct {
	Since time.Time
	Limit int
}

// Store defines the persistence interface for snapshot history.
type Store interface {
	RecordSnapshot(ctx context.Context, snap *sustain.Snapshot) error
	ListSnapshots(ctx context.Context, filter Filter) ([]Record, error)
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the store selected by configuration. Driver "none" (or empty)
// returns a no-op store with recording disabled.
func Open(ctx context.Context, cfg config.HistoryConfig) (Store, error) {
	switch cfg.Driver {
	case "", "none":
		return Noop{}, nil
	case "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("history: unknown driver %q", cfg.Driver)
	}
}

// Noop discards snapshots and lists nothing.
type Noop struct{}

func (Noop) RecordSnapshot(context.Context, *sustain.Snapshot) error { return nil }

func (Noop) ListSnapshots(context.Context, Filter) ([]Record, error) { return nil, nil }

func (Noop) Migrate(context.Context) error { return nil }

func (Noop) Close() error { return nil }
