package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
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
CREATE TABLE IF NOT EXISTS builds (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	site        TEXT NOT NULL,
	zone        TEXT NOT NULL DEFAULT '',
	rows        INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	footprint   BLOB,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_builds_site_zone ON builds(site, zone);
CREATE INDEX IF NOT EXISTS idx_builds_created_at ON builds(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordBuild(ctx context.Context, b *Build) error {
	stamp(b)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO builds (id, kind, site, zone, rows, status, error, duration_ms, footprint, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, string(b.Kind), b.Site, b.Zone, b.Rows, string(b.Status), b.Error, b.DurationMS, b.Footprint, b.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert build %s", b.ID)
}

func (s *SQLiteStore) ListBuilds(ctx context.Context, filter BuildFilter) ([]Build, error) {
	query := `SELECT id, kind, site, zone, rows, status, error, duration_ms, created_at FROM builds WHERE 1=1`
	var args []any

	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.Site != "" {
		query += ` AND site = ?`
		args = append(args, filter.Site)
	}
	if filter.Zone != "" {
		query += ` AND zone = ?`
		args = append(args, filter.Zone)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, filter.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list builds")
	}
	defer rows.Close()

	var builds []Build
	for rows.Next() {
		var b Build
		if err := rows.Scan(&b.ID, &b.Kind, &b.Site, &b.Zone, &b.Rows, &b.Status, &b.Error, &b.DurationMS, &b.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan build")
		}
		builds = append(builds, b)
	}
	return builds, eris.Wrap(rows.Err(), "sqlite: list builds iterate")
}

// stamp fills the ID and CreatedAt of a new build.
func stamp(b *Build) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
}
