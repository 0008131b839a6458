package models

import (
	"fmt"
	"time"
)

// Interval is a fixed bucketing granularity for time-series aggregation.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval6h  Interval = "6h"
	Interval1d  Interval = "1d"
	Interval1w  Interval = "1w"
)

// ParseInterval converts a string into an Interval.
func ParseInterval(s string) (Interval, error) {
	switch Interval(s) {
	case Interval1m, Interval5m, Interval15m, Interval1h, Interval6h, Interval1d, Interval1w:
		return Interval(s), nil
	}
	return "", fmt.Errorf("unknown interval %q", s)
}

// Duration returns the bucket width.
func (i Interval) Duration() time.Duration {
	switch i {
	case Interval1m:
		return time.Minute
	case Interval5m:
		return 5 * time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval1h:
		return time.Hour
	case Interval6h:
		return 6 * time.Hour
	case Interval1d:
		return 24 * time.Hour
	case Interval1w:
		return 7 * 24 * time.Hour
	}
	return 0
}

// AggregateParams are the abstract parameters of a bucketed aggregation.
type AggregateParams struct {
	FilterSet
	Range    TimeRange `json:"range"`
	Interval Interval  `json:"interval"`
}

// TimeBucket is the per-level record count of one bucket. Start is aligned
// to the interval (a 1h bucket starts on the hour, a 1d bucket at midnight).
type TimeBucket struct {
	Start  time.Time       `json:"start"`
	Counts map[Level]int64 `json:"counts"`
}

// AggregateResult is the bucketed time series, ascending by bucket start.
// Buckets with no matching rows are omitted; callers needing a dense
// series fill the gaps with zero buckets themselves.
type AggregateResult struct {
	Timeseries []TimeBucket `json:"timeseries"`
}
