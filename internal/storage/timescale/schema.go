package timescale

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// tableDDL is the base schema. The search column is a generated tsvector
// so fulltext queries hit a precomputed index instead of re-tokenizing
// every message.
const tableDDL = `
CREATE TABLE IF NOT EXISTS %[1]s (
    id         UUID        NOT NULL,
    ts         TIMESTAMPTZ NOT NULL,
    org_id     TEXT        NOT NULL,
    project_id TEXT        NOT NULL,
    service    TEXT        NOT NULL,
    level      TEXT        NOT NULL,
    message    TEXT        NOT NULL,
    metadata   JSONB,
    trace_id   TEXT,
    span_id    TEXT,
    search     TSVECTOR GENERATED ALWAYS AS (to_tsvector('simple', lower(message))) STORED,
    PRIMARY KEY (ts, id)
)`

var indexDDL = []string{
	`CREATE INDEX IF NOT EXISTS %[1]s_org_ts_idx ON %[1]s (org_id, ts DESC)`,
	`CREATE INDEX IF NOT EXISTS %[1]s_search_idx ON %[1]s USING GIN (search)`,
}

// migrations are the ordered, idempotent schema changes applied by
// Migrate. Index 0 is version 1.
var migrations = []string{
	`CREATE INDEX IF NOT EXISTS %[1]s_service_ts_idx ON %[1]s (service, ts DESC)`,
	`CREATE INDEX IF NOT EXISTS %[1]s_metadata_idx ON %[1]s USING GIN (metadata jsonb_path_ops)`,
	`CREATE INDEX IF NOT EXISTS %[1]s_trace_idx ON %[1]s (trace_id) WHERE trace_id IS NOT NULL`,
}

const migrationsTableDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// initializeSchema creates the table, converts it into a hypertable when
// the timescaledb extension is installed, and builds the base indexes.
// Every statement is idempotent so repeated initialization is safe.
func initializeSchema(ctx context.Context, pool *pgxpool.Pool, table string) error {
	if _, err := pool.Exec(ctx, fmt.Sprintf(tableDDL, table)); err != nil {
		return fmt.Errorf("creating table %s: %w", table, err)
	}

	var hasTimescale bool
	err := pool.QueryRow(ctx,
		`SELECT count(*) > 0 FROM pg_extension WHERE extname = 'timescaledb'`).Scan(&hasTimescale)
	if err != nil {
		return fmt.Errorf("checking timescaledb extension: %w", err)
	}
	if hasTimescale {
		_, err = pool.Exec(ctx,
			`SELECT create_hypertable($1, 'ts', if_not_exists => TRUE, migrate_data => TRUE)`, table)
		if err != nil {
			return fmt.Errorf("creating hypertable: %w", err)
		}
	}

	for _, ddl := range indexDDL {
		if _, err := pool.Exec(ctx, fmt.Sprintf(ddl, table)); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}

	if _, err := pool.Exec(ctx, migrationsTableDDL); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}
	return nil
}

// applyMigrations runs every unapplied migration up to and including
// version, recording each in schema_migrations.
func applyMigrations(ctx context.Context, pool *pgxpool.Pool, table string, version int) error {
	if version > len(migrations) {
		return fmt.Errorf("unknown schema version %d (latest is %d)", version, len(migrations))
	}

	for v := 1; v <= version; v++ {
		var applied bool
		err := pool.QueryRow(ctx,
			`SELECT count(*) > 0 FROM schema_migrations WHERE version = $1`, v).Scan(&applied)
		if err != nil {
			return fmt.Errorf("checking migration %d: %w", v, err)
		}
		if applied {
			continue
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", v, err)
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(migrations[v-1], table)); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("applying migration %d: %w", v, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version) VALUES ($1)`, v); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("recording migration %d: %w", v, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("committing migration %d: %w", v, err)
		}
	}
	return nil
}
