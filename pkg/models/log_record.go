package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Level is the severity of a log record.
type Level string

const (
	LevelDebug    Level = "debug"
	LevelInfo     Level = "info"
	LevelWarn     Level = "warn"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// Levels lists all valid severity levels.
var Levels = []Level{LevelDebug, LevelInfo, LevelWarn, LevelError, LevelCritical}

// ParseLevel converts a string into a Level.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError, LevelCritical:
		return Level(s), nil
	}
	return "", fmt.Errorf("unknown level %q", s)
}

// Valid reports whether l is one of the enumerated levels.
func (l Level) Valid() bool {
	_, err := ParseLevel(string(l))
	return err == nil
}

// LogRecord is a single log line handed to ingestion.
// Records are immutable once stored.
type LogRecord struct {
	Timestamp time.Time         `json:"timestamp"`
	OrgID     string            `json:"org_id"`
	ProjectID string            `json:"project_id"`
	Service   string            `json:"service"`
	Level     Level             `json:"level"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	TraceID   string            `json:"trace_id,omitempty"`
	SpanID    string            `json:"span_id,omitempty"`
}

// StoredLogRecord is a LogRecord after acceptance by an engine. The id
// together with the timestamp identifies the record; the timestamp alone
// is not unique.
type StoredLogRecord struct {
	ID uuid.UUID `json:"id"`
	LogRecord
}
