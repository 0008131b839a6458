// Package config loads server configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level server configuration.
type Config struct {
	Engine  string  `yaml:"engine"`
	Storage Storage `yaml:"storage"`
	Server  Server  `yaml:"server"`
}

// Storage holds engine connection parameters. Port 0 means use the
// engine's default port.
type Storage struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Database       string `yaml:"database"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	Table          string `yaml:"table"`
	SkipSchemaInit bool   `yaml:"skip_schema_init"`
}

// Server holds HTTP API settings.
type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Engine: "timescale",
		Storage: Storage{
			Host:     "localhost",
			Database: "logward",
			Username: "logward",
			Table:    "log_records",
		},
		Server: Server{
			Addr:            "0.0.0.0:8080",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load reads the configuration file at path, falling back to defaults
// when path is empty, and applies LOGWARD_* environment overrides on
// top.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config YAML: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Engine, "LOGWARD_ENGINE")
	setString(&c.Storage.Host, "LOGWARD_STORAGE_HOST")
	setInt(&c.Storage.Port, "LOGWARD_STORAGE_PORT")
	setString(&c.Storage.Database, "LOGWARD_STORAGE_DATABASE")
	setString(&c.Storage.Username, "LOGWARD_STORAGE_USERNAME")
	setString(&c.Storage.Password, "LOGWARD_STORAGE_PASSWORD")
	setString(&c.Storage.Table, "LOGWARD_STORAGE_TABLE")
	setBool(&c.Storage.SkipSchemaInit, "LOGWARD_SKIP_SCHEMA_INIT")
	setString(&c.Server.Addr, "LOGWARD_API_ADDR")
}

func (c *Config) validate() error {
	if c.Engine == "" {
		return fmt.Errorf("config: engine must be set")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server addr must be set")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("config: shutdown_timeout must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
