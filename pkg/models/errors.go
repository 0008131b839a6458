package models

import (
	"errors"
	"fmt"
)

// Lifecycle sentinels. Data operations are only valid on an initialized
// engine; calling them earlier is a programming error, not a transient
// failure.
var (
	ErrNotConnected   = errors.New("engine not connected")
	ErrNotInitialized = errors.New("engine not initialized")
	ErrClosed         = errors.New("engine closed")
)

// Factory sentinels. An unrecognized engine type is a configuration
// mistake; a reserved type is merely not built yet. Callers must be able
// to tell them apart.
var (
	ErrUnsupportedEngine = errors.New("unsupported engine type")
	ErrNotImplemented    = errors.New("engine type not yet implemented")
)

// ValidationError reports invalid caller input. It is always raised
// before any native query is sent to the underlying engine.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid parameter: " + e.Reason
	}
	return fmt.Sprintf("invalid parameter %q: %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError for the given field.
func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ConfigError reports a broken storage configuration. Fatal at
// construction time; never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid storage config: " + e.Reason
}

// IsConfig reports whether err is (or wraps) a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
