package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/stellar-k8s/carbonsched/internal/sustain"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	id             TEXT PRIMARY KEY,
	generated_at   DATETIME NOT NULL,
	avg_intensity  REAL NOT NULL,
	greenest       TEXT NOT NULL DEFAULT '',
	total_grams_h  REAL NOT NULL,
	payload        TEXT NOT NULL,
	recorded_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_snapshots_generated_at ON snapshots(generated_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordSnapshot(ctx context.Context, snap *sustain.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal snapshot")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, generated_at, avg_intensity, greenest, total_grams_h, payload)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(),
		snap.GeneratedAt.UTC(),
		snap.Totals.AvgIntensityGPerKWh,
		string(snap.Totals.GreenestRegion),
		snap.Totals.TotalKnownGramsCO2H,
		string(payload),
	)
	return eris.Wrap(err, "sqlite: insert snapshot")
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, filter Filter) ([]Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	since := filter.Since
	if since.IsZero() {
		since = time.Unix(0, 0)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, generated_at, avg_intensity, greenest, total_grams_h, payload
		 FROM snapshots WHERE generated_at >= ?
		 ORDER BY generated_at DESC LIMIT ?`,
		since.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshots")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var payload string
		if err := rows.Scan(&rec.ID, &rec.GeneratedAt, &rec.AvgIntensityGPerKWh,
			&rec.GreenestRegion, &rec.TotalKnownGramsCO2H, &payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}
		var snap sustain.Snapshot
		if err := json.Unmarshal([]byte(payload), &snap); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal snapshot payload")
		}
		rec.Snapshot = &snap
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate snapshots")
}
