package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the ledger uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a small connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 4
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Close is a no-op.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS builds (
	id          UUID PRIMARY KEY,
	kind        TEXT NOT NULL,
	site        TEXT NOT NULL,
	zone        TEXT NOT NULL DEFAULT '',
	rows        INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL DEFAULT 0,
	footprint   BYTEA,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_builds_site_zone ON builds(site, zone);
CREATE INDEX IF NOT EXISTS idx_builds_created_at ON builds(created_at);
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

func (s *PostgresStore) RecordBuild(ctx context.Context, b *Build) error {
	stamp(b)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO builds (id, kind, site, zone, rows, status, error, duration_ms, footprint, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, string(b.Kind), b.Site, b.Zone, b.Rows, string(b.Status), b.Error, b.DurationMS, b.Footprint, b.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert build %s", b.ID)
}

func (s *PostgresStore) ListBuilds(ctx context.Context, filter BuildFilter) ([]Build, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, kind, site, zone, rows, status, error, duration_ms, created_at
		 FROM builds
		 WHERE ($1 = '' OR kind = $1) AND ($2 = '' OR site = $2) AND ($3 = '' OR zone = $3)
		 ORDER BY created_at DESC LIMIT $4`,
		string(filter.Kind), filter.Site, filter.Zone, filter.limit(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list builds")
	}
	defer rows.Close()

	var builds []Build
	for rows.Next() {
		var (
			b            Build
			kind, status string
		)
		if err := rows.Scan(&b.ID, &kind, &b.Site, &b.Zone, &b.Rows, &status, &b.Error, &b.DurationMS, &b.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan build")
		}
		b.Kind, b.Status = Kind(kind), Status(status)
		builds = append(builds, b)
	}
	return builds, eris.Wrap(rows.Err(), "postgres: list builds iterate")
}
