package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Engine != "timescale" {
		t.Errorf("Expected default engine 'timescale', got '%s'", cfg.Engine)
	}
	if cfg.Storage.Table != "log_records" {
		t.Errorf("Expected default table 'log_records', got '%s'", cfg.Storage.Table)
	}
	if cfg.Server.Addr != "0.0.0.0:8080" {
		t.Errorf("Expected default addr '0.0.0.0:8080', got '%s'", cfg.Server.Addr)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Expected default shutdown timeout 10s, got %v", cfg.Server.ShutdownTimeout)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "logward.yaml")

	yamlContent := `engine: clickhouse
storage:
  host: ch.internal
  port: 9001
  database: logs
  username: writer
  password: hunter2
  table: app_logs
  skip_schema_init: true
server:
  addr: 127.0.0.1:9090
  shutdown_timeout: 5s
`

	if err := os.WriteFile(configFile, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Engine != "clickhouse" {
		t.Errorf("Expected engine 'clickhouse', got '%s'", cfg.Engine)
	}
	if cfg.Storage.Host != "ch.internal" || cfg.Storage.Port != 9001 {
		t.Errorf("Unexpected storage host/port: %s:%d", cfg.Storage.Host, cfg.Storage.Port)
	}
	if !cfg.Storage.SkipSchemaInit {
		t.Error("Expected skip_schema_init to be true")
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected shutdown timeout 5s, got %v", cfg.Server.ShutdownTimeout)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "logward.yaml")

	yamlContent := `storage:
  password: secret
`

	if err := os.WriteFile(configFile, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Engine != "timescale" {
		t.Errorf("Expected default engine to survive partial file, got '%s'", cfg.Engine)
	}
	if cfg.Storage.Password != "secret" {
		t.Errorf("Expected password 'secret', got '%s'", cfg.Storage.Password)
	}
	if cfg.Storage.Host != "localhost" {
		t.Errorf("Expected default host 'localhost', got '%s'", cfg.Storage.Host)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOGWARD_ENGINE", "clickhouse")
	t.Setenv("LOGWARD_STORAGE_PORT", "9440")
	t.Setenv("LOGWARD_SKIP_SCHEMA_INIT", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Engine != "clickhouse" {
		t.Errorf("Expected env override engine 'clickhouse', got '%s'", cfg.Engine)
	}
	if cfg.Storage.Port != 9440 {
		t.Errorf("Expected env override port 9440, got %d", cfg.Storage.Port)
	}
	if !cfg.Storage.SkipSchemaInit {
		t.Error("Expected env override skip_schema_init to be true")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "logward.yaml")

	yamlContent := `server:
  shutdown_timeout: -1s
`
	if err := os.WriteFile(configFile, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	if _, err := Load(configFile); err == nil {
		t.Error("Expected error for negative shutdown timeout")
	}

	if _, err := Load(filepath.Join(tmpDir, "missing.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}
