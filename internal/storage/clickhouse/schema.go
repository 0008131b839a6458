package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// tableDDL is the base schema. Metadata is stored as a JSON string and
// queried with JSONExtractString; daily partitions back GetSegments and
// range deletes.
const tableDDL = `
CREATE TABLE IF NOT EXISTS %[1]s (
    id         UUID,
    ts         DateTime64(9, 'UTC'),
    org_id     LowCardinality(String),
    project_id LowCardinality(String),
    service    LowCardinality(String),
    level      LowCardinality(String),
    message    String,
    metadata   String CODEC(ZSTD(1)),
    trace_id   String,
    span_id    String
) ENGINE = MergeTree()
PARTITION BY toYYYYMMDD(ts)
ORDER BY (org_id, ts, id)
SETTINGS index_granularity = 8192`

// migrations are the ordered, idempotent schema changes applied by
// Migrate. Index 0 is version 1.
var migrations = []string{
	`ALTER TABLE %[1]s ADD INDEX IF NOT EXISTS %[1]s_message_token_idx lowerUTF8(message) TYPE tokenbf_v1(8192, 3, 0) GRANULARITY 4`,
	`ALTER TABLE %[1]s ADD INDEX IF NOT EXISTS %[1]s_trace_idx trace_id TYPE bloom_filter(0.01) GRANULARITY 4`,
}

const migrationsTableDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    UInt32,
    applied_at DateTime64(3) DEFAULT now64(3)
) ENGINE = MergeTree()
ORDER BY version`

// initializeSchema creates the log table and the migrations ledger.
// Every statement is idempotent so repeated initialization is safe.
func initializeSchema(ctx context.Context, conn driver.Conn, table string) error {
	if err := conn.Exec(ctx, fmt.Sprintf(tableDDL, table)); err != nil {
		return fmt.Errorf("creating table %s: %w", table, err)
	}
	if err := conn.Exec(ctx, migrationsTableDDL); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}
	return nil
}

// applyMigrations runs every unapplied migration up to and including
// version, recording each in schema_migrations.
func applyMigrations(ctx context.Context, conn driver.Conn, table string, version int) error {
	if version > len(migrations) {
		return fmt.Errorf("unknown schema version %d (latest is %d)", version, len(migrations))
	}

	for v := 1; v <= version; v++ {
		var applied uint64
		row := conn.QueryRow(ctx,
			"SELECT count() FROM schema_migrations WHERE version = ?", uint32(v))
		if err := row.Scan(&applied); err != nil {
			return fmt.Errorf("checking migration %d: %w", v, err)
		}
		if applied > 0 {
			continue
		}

		if err := conn.Exec(ctx, fmt.Sprintf(migrations[v-1], table)); err != nil {
			return fmt.Errorf("applying migration %d: %w", v, err)
		}
		if err := conn.Exec(ctx,
			"INSERT INTO schema_migrations (version) VALUES (?)", uint32(v)); err != nil {
			return fmt.Errorf("recording migration %d: %w", v, err)
		}
	}
	return nil
}
