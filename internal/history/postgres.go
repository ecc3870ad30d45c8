package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/stellar-k8s/carbonsched/internal/sustain"
)

// pool is the subset of pgxpool.Pool the store uses, satisfied by pgxmock.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore implements Store using a pgx connection pool.
type PostgresStore struct {
	pool    pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 4
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	p, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: p, closeFn: p.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	id             UUID PRIMARY KEY,
	generated_at   TIMESTAMPTZ NOT NULL,
	avg_intensity  DOUBLE PRECISION NOT NULL,
	greenest       TEXT NOT NULL DEFAULT '',
	total_grams_h  DOUBLE PRECISION NOT NULL,
	payload        JSONB NOT NULL,
	recorded_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_snapshots_generated_at ON snapshots(generated_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) RecordSnapshot(ctx context.Context, snap *sustain.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal snapshot")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO snapshots (id, generated_at, avg_intensity, greenest, total_grams_h, payload)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New().String(),
		snap.GeneratedAt.UTC(),
		snap.Totals.AvgIntensityGPerKWh,
		string(snap.Totals.GreenestRegion),
		snap.Totals.TotalKnownGramsCO2H,
		payload,
	)
	return eris.Wrap(err, "postgres: insert snapshot")
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, filter Filter) ([]Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	since := filter.Since
	if since.IsZero() {
		since = time.Unix(0, 0)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, generated_at, avg_intensity, greenest, total_grams_h, payload
		 FROM snapshots WHERE generated_at >= $1
		 ORDER BY generated_at DESC LIMIT $2`,
		since.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list snapshots")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.GeneratedAt, &rec.AvgIntensityGPerKWh,
			&rec.GreenestRegion, &rec.TotalKnownGramsCO2H, &payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		var snap sustain.Snapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal snapshot payload")
		}
		rec.Snapshot = &snap
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate snapshots")
}
