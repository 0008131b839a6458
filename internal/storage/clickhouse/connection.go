// Package clickhouse implements the storage engine and query translator
// for the ClickHouse columnar backend.
package clickhouse

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const (
	defaultMaxOpenConns = 10
	defaultMaxIdleConns = 5
	defaultDialTimeout  = 10 * time.Second
)

// ConnectionConfig holds ClickHouse connection parameters.
type ConnectionConfig struct {
	Addr         string
	Database     string
	Username     string
	Password     string
	MaxOpenConns int
	MaxIdleConns int
	DialTimeout  time.Duration
	TLS          *tls.Config
}

func (c ConnectionConfig) withDefaults() ConnectionConfig {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = defaultMaxOpenConns
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = defaultMaxIdleConns
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaultDialTimeout
	}
	return c
}

// connect opens and pings a native-protocol connection. No retries: a
// failed connection surfaces once and the caller's policy decides what
// happens next.
func connect(ctx context.Context, cfg ConnectionConfig) (driver.Conn, error) {
	cfg = cfg.withDefaults()

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:      cfg.DialTimeout,
		MaxOpenConns:     cfg.MaxOpenConns,
		MaxIdleConns:     cfg.MaxIdleConns,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
		TLS:              cfg.TLS,
	})
	if err != nil {
		return nil, fmt.Errorf("opening clickhouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging clickhouse: %w", err)
	}
	return conn, nil
}
