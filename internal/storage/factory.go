package storage

import (
	"fmt"
	"log/slog"

	chdriver "github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/logward-dev/logward/internal/storage/clickhouse"
	"github.com/logward-dev/logward/internal/storage/timescale"
	"github.com/logward-dev/logward/pkg/models"
)

// EngineType selects a storage backend.
type EngineType string

const (
	// EngineTimescale is the Postgres/TimescaleDB time-series backend.
	EngineTimescale EngineType = "timescale"
	// EngineClickHouse is the columnar analytical backend.
	EngineClickHouse EngineType = "clickhouse"
	// EngineEmbedded is reserved for a future SQLite-backed engine. The
	// factory recognizes it but fails with ErrNotImplemented.
	EngineEmbedded EngineType = "embedded"
)

// ParseEngineType converts a string into an EngineType.
func ParseEngineType(s string) (EngineType, error) {
	switch EngineType(s) {
	case EngineTimescale, EngineClickHouse, EngineEmbedded:
		return EngineType(s), nil
	}
	return "", fmt.Errorf("%w: %q", models.ErrUnsupportedEngine, s)
}

// Config holds the scalar connection parameters of an engine. When a
// pool or connection is injected via Options the scalar fields are
// ignored and validation is the injecting caller's responsibility.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string

	// Table is the target table name. Defaults to "log_records".
	Table string

	// SkipSchemaInit declares the schema externally managed; Initialize
	// then performs no DDL.
	SkipSchemaInit bool
}

// DefaultConfig returns a config with the default table name set.
func DefaultConfig() Config {
	return Config{Table: "log_records"}
}

// Options carries cross-cutting construction inputs: the logger and
// optionally an externally owned pool or connection. An injected handle
// is never closed by this layer.
type Options struct {
	Logger *slog.Logger

	// Pool is an injected Postgres pool, used by EngineTimescale.
	Pool *pgxpool.Pool
	// Conn is an injected ClickHouse connection, used by EngineClickHouse.
	Conn chdriver.Conn
}

// Validate enforces the config invariant: either all scalar connection
// fields are present and non-empty, or a handle is injected.
func (c Config) Validate() error {
	if c.Host == "" {
		return &models.ConfigError{Reason: "host is required"}
	}
	if c.Port <= 0 {
		return &models.ConfigError{Reason: "port is required"}
	}
	if c.Database == "" {
		return &models.ConfigError{Reason: "database is required"}
	}
	if c.Username == "" {
		return &models.ConfigError{Reason: "username is required"}
	}
	if c.Password == "" {
		return &models.ConfigError{Reason: "password is required"}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = "log_records"
	}
	return c
}

// Create validates the configuration and constructs the selected engine.
// An unrecognized type is a configuration error; the reserved embedded
// type fails with the distinct ErrNotImplemented.
func Create(engineType EngineType, cfg Config, opts Options) (Engine, error) {
	cfg = cfg.withDefaults()

	switch engineType {
	case EngineTimescale:
		if opts.Pool == nil {
			if err := cfg.Validate(); err != nil {
				return nil, err
			}
		}
		return timescale.New(timescale.Config{
			Host:           cfg.Host,
			Port:           cfg.Port,
			Database:       cfg.Database,
			Username:       cfg.Username,
			Password:       cfg.Password,
			Table:          cfg.Table,
			SkipSchemaInit: cfg.SkipSchemaInit,
			Pool:           opts.Pool,
		}, opts.Logger), nil

	case EngineClickHouse:
		if opts.Conn == nil {
			if err := cfg.Validate(); err != nil {
				return nil, err
			}
		}
		return clickhouse.New(clickhouse.Config{
			Addr:           fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Database:       cfg.Database,
			Username:       cfg.Username,
			Password:       cfg.Password,
			Table:          cfg.Table,
			SkipSchemaInit: cfg.SkipSchemaInit,
			Conn:           opts.Conn,
		}, opts.Logger), nil

	case EngineEmbedded:
		return nil, fmt.Errorf("%w: embedded", models.ErrNotImplemented)

	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedEngine, engineType)
	}
}
