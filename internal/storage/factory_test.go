package storage

import (
	"errors"
	"testing"

	"github.com/logward-dev/logward/pkg/models"
)

func validConfig() Config {
	return Config{
		Host:     "localhost",
		Port:     5432,
		Database: "logward",
		Username: "logward",
		Password: "secret",
	}
}

func TestParseEngineType(t *testing.T) {
	for _, s := range []string{"timescale", "clickhouse", "embedded"} {
		if _, err := ParseEngineType(s); err != nil {
			t.Errorf("ParseEngineType(%q) = %v", s, err)
		}
	}
	if _, err := ParseEngineType("mongodb"); !errors.Is(err, models.ErrUnsupportedEngine) {
		t.Errorf("ParseEngineType(mongodb) = %v, want ErrUnsupportedEngine", err)
	}
}

func TestCreateValidatesConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing host", func(c *Config) { c.Host = "" }},
		{"missing port", func(c *Config) { c.Port = 0 }},
		{"missing database", func(c *Config) { c.Database = "" }},
		{"missing username", func(c *Config) { c.Username = "" }},
		{"missing password", func(c *Config) { c.Password = "" }},
	}
	for _, engineType := range []EngineType{EngineTimescale, EngineClickHouse} {
		for _, tc := range cases {
			t.Run(string(engineType)+"/"+tc.name, func(t *testing.T) {
				cfg := validConfig()
				tc.mutate(&cfg)
				_, err := Create(engineType, cfg, Options{})
				if !models.IsConfig(err) {
					t.Fatalf("Create = %v, want ConfigError", err)
				}
			})
		}
	}
}

func TestCreateDispatch(t *testing.T) {
	if _, err := Create(EngineTimescale, validConfig(), Options{}); err != nil {
		t.Errorf("timescale: %v", err)
	}
	if _, err := Create(EngineClickHouse, validConfig(), Options{}); err != nil {
		t.Errorf("clickhouse: %v", err)
	}

	// The reserved type and an unknown type fail distinctly.
	if _, err := Create(EngineEmbedded, validConfig(), Options{}); !errors.Is(err, models.ErrNotImplemented) {
		t.Errorf("embedded = %v, want ErrNotImplemented", err)
	}
	if _, err := Create("oracle", validConfig(), Options{}); !errors.Is(err, models.ErrUnsupportedEngine) {
		t.Errorf("oracle = %v, want ErrUnsupportedEngine", err)
	}
}

func TestCreatedEngineCapabilitiesPreInitialize(t *testing.T) {
	ts, err := Create(EngineTimescale, validConfig(), Options{})
	if err != nil {
		t.Fatalf("Create timescale: %v", err)
	}
	if caps := ts.Capabilities(); !caps.SynchronousDeletes {
		t.Errorf("timescale capabilities = %+v", caps)
	}

	ch, err := Create(EngineClickHouse, validConfig(), Options{})
	if err != nil {
		t.Fatalf("Create clickhouse: %v", err)
	}
	if caps := ch.Capabilities(); caps.SynchronousDeletes {
		t.Errorf("clickhouse capabilities = %+v", caps)
	}
}
