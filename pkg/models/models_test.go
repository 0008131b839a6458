package models

import (
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	for _, valid := range []string{"debug", "info", "warn", "error", "critical"} {
		level, err := ParseLevel(valid)
		if err != nil {
			t.Errorf("ParseLevel(%q) failed: %v", valid, err)
		}
		if string(level) != valid {
			t.Errorf("ParseLevel(%q) = %q", valid, level)
		}
	}

	for _, invalid := range []string{"", "INFO", "warning", "fatal", "trace"} {
		if _, err := ParseLevel(invalid); err == nil {
			t.Errorf("ParseLevel(%q) accepted invalid level", invalid)
		}
	}
}

func TestParseInterval(t *testing.T) {
	cases := map[string]time.Duration{
		"1m":  time.Minute,
		"5m":  5 * time.Minute,
		"15m": 15 * time.Minute,
		"1h":  time.Hour,
		"6h":  6 * time.Hour,
		"1d":  24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
	}

	for raw, want := range cases {
		interval, err := ParseInterval(raw)
		if err != nil {
			t.Errorf("ParseInterval(%q) failed: %v", raw, err)
			continue
		}
		if interval.Duration() != want {
			t.Errorf("Interval(%q).Duration() = %v, want %v", raw, interval.Duration(), want)
		}
	}

	for _, invalid := range []string{"", "2h", "30s", "1month", "hour"} {
		if _, err := ParseInterval(invalid); err == nil {
			t.Errorf("ParseInterval(%q) accepted invalid interval", invalid)
		}
	}
}

func TestValidationErrorMatching(t *testing.T) {
	err := Validationf("limit", "must be at most %d", 1000)
	if !IsValidation(err) {
		t.Error("Validationf result not recognized by IsValidation")
	}
	if IsValidation(ErrNotInitialized) {
		t.Error("sentinel misclassified as validation error")
	}

	want := `invalid parameter "limit": must be at most 1000`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
